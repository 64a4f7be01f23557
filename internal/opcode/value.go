// Package opcode is the registry of built-in operations spec section 4.G
// describes: name, argument/result type signatures, an execution cost
// used for the GPU-dispatch heuristic, and the Go closure internal/runtime
// calls to actually perform the operation. It plays the role the
// teacher's Opcode enum and opcodeName table (std/compiler/ir.go,
// backend_ir.go) play for its own stack machine, generalized from a
// closed enum to an open, name-keyed registry since this spec's opcode
// set is far larger and doesn't correspond 1:1 to a single native
// instruction.
package opcode

import "github.com/agc-lang/agc/internal/ir"

// Value is a runtime operand or result: every opcode.Eval closure receives
// and returns these rather than the raw ir.Immediate wire format, since
// array/either values need more structure than a scalar constant-pool
// entry does.
type Value struct {
	Type  *ir.Type
	I     int64
	F     float64
	B     bool
	S     string
	Arr   []Value
	Tag   int // TyEither/TyLabeled: which alternative/field is populated
	Error error
}

func I64(v int64) Value    { return Value{Type: ir.Prim(ir.TyI64), I: v} }
func F64(v float64) Value  { return Value{Type: ir.Prim(ir.TyF64), F: v} }
func Bool(v bool) Value    { return Value{Type: ir.Prim(ir.TyBool), B: v} }
func Str(v string) Value   { return Value{Type: ir.Prim(ir.TyString), S: v} }
func Void() Value          { return Value{Type: ir.Prim(ir.TyVoid)} }
func Arr(elem *ir.Type, vs []Value) Value {
	return Value{Type: ir.ArrayOf(elem), Arr: vs}
}

// Ok/Err build a Fallible{T} = Either{T, Error} value (spec's GLOSSARY).
func Ok(t *ir.Type, v Value) Value  { return Value{Type: ir.Fallible(t), Tag: 0, Arr: []Value{v}} }
func Err(t *ir.Type, err error) Value {
	return Value{Type: ir.Fallible(t), Tag: 1, Error: err}
}

// Some/None build a Maybe{T} = Either{T, ()} value.
func Some(t *ir.Type, v Value) Value { return Value{Type: ir.Maybe(t), Tag: 0, Arr: []Value{v}} }
func None(t *ir.Type) Value          { return Value{Type: ir.Maybe(t), Tag: 1} }
