package grammar

import (
	"testing"

	"github.com/agc-lang/agc/internal/assemble"
	"github.com/agc-lang/agc/internal/lowerg"
	"github.com/agc-lang/agc/internal/lowerm"
	"github.com/agc-lang/agc/internal/opcode"
)

const sampleSource = `
event tick: i64

const greeting = "hello"

handler _start {
	let total = 1 + 2 * 3
	emit tick(total)
}
`

func TestParseIRMProgram(t *testing.T) {
	prog, err := ParseIRM("sample.agcm", sampleSource)
	if err != nil {
		t.Fatalf("ParseIRM: %v", err)
	}
	if len(prog.Events) != 1 || prog.Events[0].Name != "tick" {
		t.Fatalf("got Events %+v, want one event named tick", prog.Events)
	}
	if len(prog.Consts) != 1 || prog.Consts[0].Name != "greeting" {
		t.Fatalf("got Consts %+v, want one const named greeting", prog.Consts)
	}
	if len(prog.Handlers) != 1 || prog.Handlers[0].Event != "_start" {
		t.Fatalf("got Handlers %+v, want one handler for _start", prog.Handlers)
	}
	if len(prog.Handlers[0].Body) != 2 {
		t.Fatalf("got %d statements in _start, want 2 (let, emit)", len(prog.Handlers[0].Body))
	}
}

// TestFullPipeline exercises surface source all the way to an assembled
// BIN buffer: ParseIRM -> lowerm.Lower -> lowerg.Lower -> assemble.Assemble,
// the same chain cmd/agc's build subcommand runs.
func TestFullPipeline(t *testing.T) {
	prog, err := ParseIRM("sample.agcm", sampleSource)
	if err != nil {
		t.Fatalf("ParseIRM: %v", err)
	}
	mod, err := lowerm.Lower(prog)
	if err != nil {
		t.Fatalf("lowerm.Lower: %v", err)
	}
	if err := lowerg.Lower(mod, opcode.Names()); err != nil {
		t.Fatalf("lowerg.Lower: %v", err)
	}
	bin, err := assemble.Assemble(mod)
	if err != nil {
		t.Fatalf("assemble.Assemble: %v", err)
	}
	if len(bin) < len(assemble.Magic) || string(bin[:len(assemble.Magic)]) != assemble.Magic {
		t.Fatalf("assembled output doesn't start with the BIN magic header")
	}
}

func TestParseIRMAcceptsKeywordPrefixedIdentifier(t *testing.T) {
	// "emitter" must parse as one identifier, not the "emit" keyword
	// followed by a dangling "ter".
	src := "const emitter = 1\n"
	prog, err := ParseIRM("sample.agcm", src)
	if err != nil {
		t.Fatalf("ParseIRM: %v", err)
	}
	if len(prog.Consts) != 1 || prog.Consts[0].Name != "emitter" {
		t.Fatalf("got Consts %+v, want one const named \"emitter\"", prog.Consts)
	}
}

func TestParseIRMRejectsTrailingGarbage(t *testing.T) {
	if _, err := ParseIRM("sample.agcm", "const x = 1\n)))"); err == nil {
		t.Fatal("got nil error for trailing garbage after a valid program, want an error")
	}
}
