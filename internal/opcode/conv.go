package opcode

import (
	"strconv"

	"github.com/agc-lang/agc/internal/ir"
)

// registerConv declares the total conversion functions spec section 4.G
// requires between sized ints, floats, strings, and bool. Every numeric
// narrowing saturates to the target width rather than wrapping or
// panicking, the same default the arithmetic opcodes use.
func registerConv() {
	register(&Opcode{
		Name: "i64_to_i8", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyI8), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(clamp(args[0].I, 8)), nil },
	})
	register(&Opcode{
		Name: "i64_to_i16", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyI16), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(clamp(args[0].I, 16)), nil },
	})
	register(&Opcode{
		Name: "i64_to_i32", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyI32), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(clamp(args[0].I, 32)), nil },
	})
	register(&Opcode{
		Name: "i64_to_f64", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return F64(float64(args[0].I)), nil },
	})
	register(&Opcode{
		Name: "f64_to_i64", Args: []ArgSpec{{Type: ir.Prim(ir.TyF64)}}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			f := args[0].F
			switch {
			case f != f: // NaN
				return I64(0), nil
			case f >= 9223372036854775807:
				return I64(9223372036854775807), nil
			case f <= -9223372036854775808:
				return I64(-9223372036854775808), nil
			default:
				return I64(int64(f)), nil
			}
		},
	})
	register(&Opcode{
		Name: "f64_to_f32", Args: []ArgSpec{{Type: ir.Prim(ir.TyF64)}}, Result: ir.Prim(ir.TyF32), Cost: 1,
		Eval: func(args []Value) (Value, error) { return F64(float64(float32(args[0].F))), nil },
	})
	register(&Opcode{
		Name: "i64_to_string", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyString), Cost: 2,
		Eval: func(args []Value) (Value, error) { return Str(strconv.FormatInt(args[0].I, 10)), nil },
	})
	register(&Opcode{
		Name: "f64_to_string", Args: []ArgSpec{{Type: ir.Prim(ir.TyF64)}}, Result: ir.Prim(ir.TyString), Cost: 2,
		Eval: func(args []Value) (Value, error) { return Str(strconv.FormatFloat(args[0].F, 'g', -1, 64)), nil },
	})
	register(&Opcode{
		Name: "bool_to_string", Args: []ArgSpec{{Type: ir.Prim(ir.TyBool)}}, Result: ir.Prim(ir.TyString), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Str(strconv.FormatBool(args[0].B)), nil },
	})
	// string -> numeric conversions are total by being Fallible: a parse
	// failure is a recoverable error value (spec section 7), not a panic.
	register(&Opcode{
		Name: "string_to_i64", Args: []ArgSpec{{Type: ir.Prim(ir.TyString)}}, Result: ir.Fallible(ir.Prim(ir.TyI64)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			v, err := strconv.ParseInt(args[0].S, 10, 64)
			if err != nil {
				return Err(ir.Prim(ir.TyI64), err), nil
			}
			return Ok(ir.Prim(ir.TyI64), I64(v)), nil
		},
	})
	register(&Opcode{
		Name: "string_to_f64", Args: []ArgSpec{{Type: ir.Prim(ir.TyString)}}, Result: ir.Fallible(ir.Prim(ir.TyF64)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			v, err := strconv.ParseFloat(args[0].S, 64)
			if err != nil {
				return Err(ir.Prim(ir.TyF64), err), nil
			}
			return Ok(ir.Prim(ir.TyF64), F64(v)), nil
		},
	})
	register(&Opcode{
		Name: "string_to_bool", Args: []ArgSpec{{Type: ir.Prim(ir.TyString)}}, Result: ir.Fallible(ir.Prim(ir.TyBool)), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			v, err := strconv.ParseBool(args[0].S)
			if err != nil {
				return Err(ir.Prim(ir.TyBool), err), nil
			}
			return Ok(ir.Prim(ir.TyBool), Bool(v)), nil
		},
	})
}
