package opcode

import "github.com/agc-lang/agc/internal/ir"

// registerResult declares the Result/Maybe/Either predicate and unwrap
// opcodes of spec section 4.G. Every Either-shaped Value (Fallible{T} and
// Maybe{T} both being Either under the hood, per the GLOSSARY) carries its
// active alternative in Tag (0 = main/ok/some, nonzero = alt/err/none), so
// isMain/isAlt work uniformly across both and isOk/isSome are just the
// Fallible/Maybe-flavored spellings of the same check.
func registerResult() {
	elemTy := ir.Prim(ir.TyI64)
	eitherArg := ArgSpec{Type: ir.Fallible(elemTy)}

	for _, name := range []string{"isOk", "isSome", "isMain"} {
		register(&Opcode{
			Name: name, Args: []ArgSpec{eitherArg}, Result: ir.Prim(ir.TyBool), Cost: 1,
			Eval: func(args []Value) (Value, error) { return Bool(args[0].Tag == 0), nil },
		})
	}
	register(&Opcode{
		Name: "isAlt", Args: []ArgSpec{eitherArg}, Result: ir.Prim(ir.TyBool), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Bool(args[0].Tag != 0), nil },
	})
	register(&Opcode{
		Name: "getOr", Args: []ArgSpec{eitherArg, {Type: elemTy}}, Result: elemTy, Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].Tag == 0 {
				return args[0].Arr[0], nil
			}
			return args[1], nil
		},
	})
	register(&Opcode{
		Name: "getOrR", Args: []ArgSpec{eitherArg, {Type: elemTy}}, Result: elemTy, Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].Tag == 0 {
				return args[0].Arr[0], nil
			}
			return args[1], nil
		},
	})
	register(&Opcode{
		Name: "getR", Args: []ArgSpec{eitherArg}, Result: elemTy, Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].Tag == 0 {
				return args[0].Arr[0], nil
			}
			return Value{Type: elemTy}, nil
		},
	})
	register(&Opcode{
		Name: "getErr", Args: []ArgSpec{eitherArg}, Result: ir.Prim(ir.TyError), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].Tag == 0 {
				return Value{Type: ir.Prim(ir.TyError)}, nil
			}
			msg := "no error"
			if args[0].Error != nil {
				msg = args[0].Error.Error()
			}
			return Value{Type: ir.Prim(ir.TyError), S: msg}, nil
		},
	})
	register(&Opcode{
		Name: "resfrom", Args: []ArgSpec{{Type: elemTy}, boolArg()}, Result: ir.Fallible(elemTy), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[1].B {
				return Ok(elemTy, args[0]), nil
			}
			return Err(elemTy, errResfromFalse), nil
		},
	})
}

var errResfromFalse = arrayError("resfrom: ok was false")
