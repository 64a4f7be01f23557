package lowerg

import (
	"testing"

	"github.com/agc-lang/agc/internal/ir"
)

func TestSizeMemoryRoundsToLastLocal(t *testing.T) {
	b := &ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "add", Result: resultAt(0)},
		{Line: 2, Op: "mul", Result: resultAt(8)},
	}}
	sizeBlock(b)
	if b.FrameSize != 16 {
		t.Fatalf("FrameSize = %d, want 16", b.FrameSize)
	}
}

func TestSizeMemoryNoLocalsIsZero(t *testing.T) {
	b := &ir.Block{Stmts: []ir.Statement{{Line: 1, Op: "stdoutp"}}}
	sizeBlock(b)
	if b.FrameSize != 0 {
		t.Fatalf("FrameSize = %d, want 0", b.FrameSize)
	}
}

func TestInferDepsDerivesFromArgs(t *testing.T) {
	b := &ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "add", Result: resultAt(0)},
		{Line: 2, Op: "mul", Args: []ir.Addr{ir.LocalAddr(0), ir.LocalAddr(0)}, Result: resultAt(8)},
		{Line: 3, Op: "sub", Args: []ir.Addr{ir.LocalAddr(8)}},
	}}
	InferDeps(b)
	if got := b.Stmts[1].Deps; len(got) != 1 || got[0] != 1 {
		t.Fatalf("line 2 Deps = %v, want [1]", got)
	}
	if got := b.Stmts[2].Deps; len(got) != 1 || got[0] != 2 {
		t.Fatalf("line 3 Deps = %v, want [2]", got)
	}
}

func TestInferDepsOverwritesStaleDeps(t *testing.T) {
	b := &ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "add", Result: resultAt(0)},
		{Line: 2, Op: "noop", Deps: []int{99}}, // stale, not backed by any Arg
	}}
	InferDeps(b)
	if len(b.Stmts[1].Deps) != 0 {
		t.Fatalf("stale Deps %v survived re-inference, want none", b.Stmts[1].Deps)
	}
}

func TestResolveCallTargetsAcceptsOpcodeAndClosure(t *testing.T) {
	mod := &ir.Module{
		Closures: []ir.Closure{{SyntheticEvent: ir.Event{Name: "helper"}}},
		Handlers: []ir.Handler{{Block: ir.Block{Stmts: []ir.Statement{
			{Line: 1, Op: "add"},
			{Line: 2, Op: "helper"},
			{Line: 3, Op: "emit"},
		}}}},
	}
	if err := ResolveCallTargets(mod, map[string]bool{"add": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveCallTargetsRejectsUnknown(t *testing.T) {
	mod := &ir.Module{Handlers: []ir.Handler{{Block: ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "totallyMadeUp"},
	}}}}}
	if err := ResolveCallTargets(mod, map[string]bool{"add": true}); err == nil {
		t.Fatal("got nil error for an unresolved call target, want an error")
	}
}

func TestRewriteExitsIsIdempotent(t *testing.T) {
	mod := &ir.Module{Handlers: []ir.Handler{{Block: ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "add"},
		{Line: 2, Op: "mul", Deps: []int{1}},
	}}}}}
	RewriteExits(mod)
	first := len(mod.Handlers[0].Block.Stmts)
	RewriteExits(mod)
	second := len(mod.Handlers[0].Block.Stmts)
	if first != second {
		t.Fatalf("RewriteExits appended again on a second call: %d -> %d statements", first, second)
	}
	last := mod.Handlers[0].Block.Stmts[len(mod.Handlers[0].Block.Stmts)-1]
	// A single sink (line 2, "mul") whose declared result is the fixed-size
	// i64 gets the precise reff spelling rather than the generic __exit.
	if last.Op != reff {
		t.Fatalf("last statement Op = %q, want %q", last.Op, reff)
	}
}

func TestRewriteExitsDependsOnEverySink(t *testing.T) {
	mod := &ir.Module{Handlers: []ir.Handler{{Block: ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "add"},          // not a sink: line 3 depends on it
		{Line: 2, Op: "mul"},          // sink: nothing depends on it
		{Line: 3, Op: "sub", Deps: []int{1}},
	}}}}}
	RewriteExits(mod)
	exit := mod.Handlers[0].Block.Stmts[len(mod.Handlers[0].Block.Stmts)-1]
	want := map[int]bool{2: true, 3: true}
	if len(exit.Deps) != len(want) {
		t.Fatalf("exit Deps = %v, want deps on every sink (lines 2 and 3)", exit.Deps)
	}
	for _, d := range exit.Deps {
		if !want[d] {
			t.Errorf("unexpected exit dependency on line %d", d)
		}
	}
}

func TestRewriteExitsUsesRefvForVariableSizedSink(t *testing.T) {
	mod := &ir.Module{Handlers: []ir.Handler{{Block: ir.Block{Stmts: []ir.Statement{
		{Line: 1, Op: "concat"},
	}}}}}
	RewriteExits(mod)
	last := mod.Handlers[0].Block.Stmts[len(mod.Handlers[0].Block.Stmts)-1]
	if last.Op != refv {
		t.Fatalf("last statement Op = %q, want %q", last.Op, refv)
	}
}

func resultAt(off int64) *ir.Addr {
	a := ir.LocalAddr(off)
	return &a
}
