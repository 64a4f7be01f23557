package ir

import "github.com/agc-lang/agc/internal/diag"

// builtinEventBit marks a built-in event id per spec section 3 ("built-in
// events live in a reserved id range (high bit set)") and section 6
// ("Built-in event ids are packed-ASCII strings with the high bit set").
const builtinEventBit = uint64(1) << 63

// Event is a named signal with a fixed payload type and size, per spec
// section 3. PayloadSize is 0 for void, 8 for a fixed scalar, -1 for a
// variable-size payload.
type Event struct {
	Name        string
	ID          uint64
	PayloadType *Type
	PayloadSize int
	Builtin     bool
}

// BuiltinEventID packs an up-to-7-byte ASCII event name into a uint64 with
// the high bit set, the convention spec sections 3 and 6 describe for
// _start/stdout/stderr/__conn.
func BuiltinEventID(name string) uint64 {
	var id uint64
	for i := 0; i < 7 && i < len(name); i++ {
		id |= uint64(name[i]) << uint(8*i)
	}
	return id | builtinEventBit
}

var (
	EventStart  = Event{Name: "_start", ID: BuiltinEventID("_start"), PayloadSize: 0, Builtin: true}
	EventStdout = Event{Name: "stdout", ID: BuiltinEventID("stdout"), PayloadType: Prim(TyString), PayloadSize: -1, Builtin: true}
	EventStderr = Event{Name: "stderr", ID: BuiltinEventID("stderr"), PayloadType: Prim(TyString), PayloadSize: -1, Builtin: true}
	EventConn   = Event{Name: "__conn", ID: BuiltinEventID("__conn"), PayloadSize: -1, Builtin: true}
)

// Statement is one (opcode, inputs, optional output) triple plus its line
// number and dependency list, per spec section 3.
type Statement struct {
	Line   int
	Op     string
	Args   []Addr
	Result *Addr // nil when the call produces no value
	Deps   []int // line numbers this statement depends on, deduped
	Pos    diag.Position
}

// AddDep appends a dependency line if it isn't already present, keeping
// the per-statement dependency list deduped as spec section 4.E's
// tie-break rule requires.
func (s *Statement) AddDep(line int) {
	for _, d := range s.Deps {
		if d == line {
			return
		}
	}
	s.Deps = append(s.Deps, line)
}

// Local describes one named slot in a handler or closure frame.
type Local struct {
	Name   string
	Type   *Type
	Offset int64
	Size   int
}

// Block is the statement body shared by a Handler and a Closure: a
// sequence of statements plus the memory layout (frame size, locals) that
// internal/lowerg computed for it.
type Block struct {
	FrameSize int
	Locals    []Local
	Stmts     []Statement
}

// Handler is a (event id, function) pair with a precomputed frame size,
// per spec section 3. Registration is immutable after assembly.
type Handler struct {
	Event Event
	Block Block
}

// Closure is a nested function lifted out of a handler body into its own
// handler-like block (spec section 3/4.E). It shares its parent's frame
// until its own synthetic event fires, and its Scope records the chain of
// enclosing closure names used to resolve a free variable when the same
// name is visible through more than one nesting level.
type Closure struct {
	SyntheticEvent Event
	ParentHandler  int // index into Module.Handlers
	Scope          []string
	ArgNames       []string
	Block          Block
}

// ConstEntry is one value in the global, read-only constant pool (spec
// section 3), addressed by a negative offset.
type ConstEntry struct {
	Offset int64 // negative
	Type   *Type
	Bytes  []byte // little-endian scalar, or length-prefixed string payload
}

// Module is a named scope containing type/function/event declarations and
// handler registrations (spec section 3), already lowered to IR-G form:
// by the time a Module reaches internal/assemble, imports have been
// inlined and all that's left is constants, custom events, and
// handler/closure blocks.
type Module struct {
	Name         string
	Consts       []ConstEntry
	CustomEvents []Event
	Handlers     []Handler
	Closures     []Closure
}

// NextConstOffset returns the next negative offset available in the
// constant pool, i.e. one slot past the most negative existing entry.
func (m *Module) NextConstOffset() int64 {
	var min int64
	for _, c := range m.Consts {
		if c.Offset < min {
			min = c.Offset
		}
	}
	return min - 8
}
