package assemble

import (
	"bytes"
	"testing"

	"github.com/agc-lang/agc/internal/ir"
)

func sampleModule() *ir.Module {
	result := ir.LocalAddr(0)
	return &ir.Module{
		Consts: []ir.ConstEntry{
			{Offset: -8, Type: ir.Prim(ir.TyI64), Bytes: []byte{42, 0, 0, 0, 0, 0, 0, 0}},
		},
		Handlers: []ir.Handler{
			{
				Event: ir.EventStart,
				Block: ir.Block{
					FrameSize: 8,
					Stmts: []ir.Statement{
						{
							Line: 1,
							Op:   "add",
							Args: []ir.Addr{
								ir.ConstAddr(-8),
								ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyI64), I: 1}),
							},
							Result: &result,
						},
					},
				},
			},
		},
	}
}

// TestAssembleIdempotent checks spec section 8's testable property:
// assembling a disassembled module reproduces the same bytes, even though
// Disassemble doesn't reconstruct every Go-level field (ArgNames, Locals)
// that Assemble never serializes in the first place.
func TestAssembleIdempotent(t *testing.T) {
	bin1, err := Assemble(sampleModule())
	if err != nil {
		t.Fatalf("first assemble: %v", err)
	}
	mod2, err := Disassemble(bin1)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	bin2, err := Assemble(mod2)
	if err != nil {
		t.Fatalf("second assemble: %v", err)
	}
	if !bytes.Equal(bin1, bin2) {
		t.Fatalf("assemble(disassemble(assemble(m))) != assemble(m)\nfirst:  % x\nsecond: % x", bin1, bin2)
	}
}

func TestDisassembleRejectsBadMagic(t *testing.T) {
	if _, err := Disassemble([]byte("not-a-valid-bin-file")); err == nil {
		t.Fatal("got nil error for a bad magic header, want an error")
	}
}

func TestDisassembleRejectsTruncated(t *testing.T) {
	bin, err := Assemble(sampleModule())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, err := Disassemble(bin[:len(bin)-3]); err == nil {
		t.Fatal("got nil error for a truncated BIN buffer, want an error")
	}
}

func TestEliminateDeadDropsUnreferencedConst(t *testing.T) {
	mod := sampleModule()
	mod.Consts = append(mod.Consts, ir.ConstEntry{Offset: -16, Type: ir.Prim(ir.TyI64), Bytes: []byte{0, 0, 0, 0, 0, 0, 0, 0}})
	pruned := EliminateDead(mod)
	if len(pruned.Consts) != 1 {
		t.Fatalf("got %d surviving consts, want 1 (the unreferenced one should be pruned)", len(pruned.Consts))
	}
	if pruned.Consts[0].Offset != -8 {
		t.Fatalf("surviving const has offset %d, want -8", pruned.Consts[0].Offset)
	}
}

func TestEliminateDeadKeepsAllHandlers(t *testing.T) {
	mod := sampleModule()
	pruned := EliminateDead(mod)
	if len(pruned.Handlers) != len(mod.Handlers) {
		t.Fatalf("got %d handlers, want %d (handlers are never pruned)", len(pruned.Handlers), len(mod.Handlers))
	}
}
