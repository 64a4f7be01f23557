// Package diag defines the structured diagnostics shared by every compiler
// stage, from the parser kernel through the assembler. A diag.Error always
// carries a source position so a failure can be reported without the
// caller re-deriving where it happened.
package diag

import "fmt"

// Kind classifies a diagnostic per the taxonomy in spec section 7.
type Kind int

const (
	Lexical Kind = iota
	Grammar
	Unresolved
	TypeMismatch
	Forbidden
	Assembly
	LinkVersion
	LinkOpcode
	Recoverable
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical"
	case Grammar:
		return "grammar"
	case Unresolved:
		return "unresolved"
	case TypeMismatch:
		return "type-mismatch"
	case Forbidden:
		return "forbidden-construct"
	case Assembly:
		return "assembly"
	case LinkVersion:
		return "link-version"
	case LinkOpcode:
		return "link-opcode"
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Position is (filename, line, column, byte offset), the unit the parser
// combinator kernel tracks over its input stream.
type Position struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Error is a single structured diagnostic. It implements the standard
// error interface so it composes with fmt.Errorf("%w", ...) and
// errors.As/errors.Is, but callers that need the position or kind should
// type-assert to *Error rather than parse the message.
type Error struct {
	Kind    Kind
	Pos     Position
	Msg     string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 && e.Pos.File == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an Error at the given position.
func New(kind Kind, pos Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a position and kind to an existing error, preserving it
// for errors.Unwrap.
func Wrap(kind Kind, pos Position, err error) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: err.Error(), Wrapped: err}
}

// Bag accumulates diagnostics across a compilation pass instead of
// aborting on the first failure, matching the teacher's own
// frontend/parser behavior of collecting all errors for a package before
// reporting.
type Bag struct {
	errs []*Error
}

func (b *Bag) Add(e *Error) { b.errs = append(b.errs, e) }

func (b *Bag) Addf(kind Kind, pos Position, format string, args ...any) {
	b.Add(New(kind, pos, format, args...))
}

func (b *Bag) Empty() bool { return len(b.errs) == 0 }

func (b *Bag) Errors() []*Error { return b.errs }

// Err returns nil if the bag is empty, or a combined error value
// otherwise, so a Bag can be returned as a plain `error` from functions
// whose callers don't need per-diagnostic detail.
func (b *Bag) Err() error {
	if b.Empty() {
		return nil
	}
	if len(b.errs) == 1 {
		return b.errs[0]
	}
	return &multiError{errs: b.errs}
}

type multiError struct{ errs []*Error }

func (m *multiError) Error() string {
	s := fmt.Sprintf("%d errors:", len(m.errs))
	for _, e := range m.errs {
		s += "\n  " + e.Error()
	}
	return s
}
