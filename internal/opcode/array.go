package opcode

import "github.com/agc-lang/agc/internal/ir"

// registerArray declares the array opcodes of spec section 4.G. Ops
// needing a closure operand (map/parmap/filter/filterl/each/eachl/find/
// findl/every/everyl/some/somel/foldl/foldp/reducel/reducep) are
// registered with a nil Eval: internal/runtime dispatches these directly
// against its own worker pool rather than through the generic Eval hook,
// since invoking a closure means re-entering the scheduler rather than
// doing a pure value computation. Cost reflects per-element work plus
// dispatch overhead; internal/runtime feeds it into ShouldDispatchGPU for
// parmap only.
func registerArray() {
	anyArrayArg := arrI64Arg()
	elemTy := ir.Prim(ir.TyI64)

	register(&Opcode{
		Name: "arrlen", Args: []ArgSpec{anyArrayArg}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(int64(len(args[0].Arr))), nil },
	})
	register(&Opcode{
		Name: "filled", Args: []ArgSpec{anyArrayArg}, Result: ir.Prim(ir.TyBool), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Bool(len(args[0].Arr) > 0), nil },
	})
	register(&Opcode{
		Name: "push", Args: []ArgSpec{anyArrayArg, {Type: elemTy}}, Result: ir.ArrayOf(elemTy), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			out := append(append([]Value{}, args[0].Arr...), args[1])
			return Arr(args[0].Type.Elem, out), nil
		},
	})
	register(&Opcode{
		Name: "pop", Args: []ArgSpec{anyArrayArg}, Result: ir.Fallible(popTupleType(elemTy)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			if len(args[0].Arr) == 0 {
				return Err(popTupleType(args[0].Type.Elem), errEmptyArray), nil
			}
			n := len(args[0].Arr)
			rest := append([]Value{}, args[0].Arr[:n-1]...)
			last := args[0].Arr[n-1]
			tupleTy := popTupleType(args[0].Type.Elem)
			return Ok(tupleTy, Value{Type: tupleTy, Arr: []Value{Arr(args[0].Type.Elem, rest), last}}), nil
		},
	})
	register(&Opcode{
		Name: "arrcat", Args: []ArgSpec{anyArrayArg, anyArrayArg}, Result: ir.ArrayOf(elemTy), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			out := append(append([]Value{}, args[0].Arr...), args[1].Arr...)
			return Arr(args[0].Type.Elem, out), nil
		},
	})
	register(&Opcode{
		Name: "arrrepeat", Args: []ArgSpec{{Type: elemTy}, i64Arg()}, Result: ir.ArrayOf(elemTy), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			if args[1].I < 0 {
				return Value{}, errNegativeCount
			}
			out := make([]Value, args[1].I)
			for i := range out {
				out[i] = args[0]
			}
			return Arr(args[0].Type, out), nil
		},
	})
	register(&Opcode{
		Name: "arrindex", Args: []ArgSpec{anyArrayArg, {Type: elemTy}}, Result: ir.Prim(ir.TyI64), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			for i, v := range args[0].Arr {
				if valuesEqual(v, args[1]) {
					return I64(int64(i)), nil
				}
			}
			return I64(-1), nil
		},
	})

	register(&Opcode{Name: "map", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.ArrayOf(elemTy), Cost: 4})
	register(&Opcode{Name: "parmap", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.ArrayOf(elemTy), Cost: 4})
	register(&Opcode{Name: "filter", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.ArrayOf(elemTy), Cost: 4})
	register(&Opcode{Name: "filterl", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.ArrayOf(elemTy), Cost: 4})
	register(&Opcode{Name: "each", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Prim(ir.TyVoid), Cost: 4})
	register(&Opcode{Name: "eachl", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Prim(ir.TyVoid), Cost: 4})
	register(&Opcode{Name: "find", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Maybe(elemTy), Cost: 4})
	register(&Opcode{Name: "findl", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Maybe(elemTy), Cost: 4})
	register(&Opcode{Name: "every", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Prim(ir.TyBool), Cost: 4})
	register(&Opcode{Name: "everyl", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Prim(ir.TyBool), Cost: 4})
	register(&Opcode{Name: "some", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Prim(ir.TyBool), Cost: 4})
	register(&Opcode{Name: "somel", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Prim(ir.TyBool), Cost: 4})
	register(&Opcode{Name: "foldp", Args: []ArgSpec{anyArrayArg, i64Arg(), funcArg()}, Result: ir.Prim(ir.TyI64), Cost: 6})
	register(&Opcode{Name: "foldl", Args: []ArgSpec{anyArrayArg, i64Arg(), funcArg()}, Result: ir.Prim(ir.TyI64), Cost: 5})
	register(&Opcode{Name: "reducel", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Fallible(elemTy), Cost: 5})
	register(&Opcode{Name: "reducep", Args: []ArgSpec{anyArrayArg, funcArg()}, Result: ir.Fallible(elemTy), Cost: 6})
}

func popTupleType(elem *ir.Type) *ir.Type {
	return &ir.Type{Kind: ir.TyTuple, Fields: []ir.Field{
		{Name: "rest", Type: ir.ArrayOf(elem)},
		{Name: "last", Type: elem},
	}}
}

func valuesEqual(a, b Value) bool {
	if a.Type == nil || b.Type == nil || a.Type.Kind != b.Type.Kind {
		return false
	}
	switch a.Type.Kind {
	case ir.TyString:
		return a.S == b.S
	case ir.TyF32, ir.TyF64:
		return a.F == b.F
	case ir.TyBool:
		return a.B == b.B
	default:
		return a.I == b.I
	}
}

var errEmptyArray = arrayError("pop: array is empty")
var errNegativeCount = arrayError("arrrepeat: negative count")

type arrayError string

func (e arrayError) Error() string { return string(e) }
