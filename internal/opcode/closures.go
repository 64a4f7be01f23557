package opcode

import (
	"fmt"

	"github.com/agc-lang/agc/internal/ir"
)

// registerClosure declares makeclosure, the opcode internal/lowerm emits
// for a closure literal that captures free variables from its enclosing
// body (spec section 4.E's "liftClosures" step: a lifted closure still
// needs to carry its captured-by-value arguments somewhere, since its
// body now runs in its own block rather than inline in the capturing
// one). Its first operand is the bare closure reference (the same
// func-typed Value a top-level closure constant produces); the rest are
// the captured values, evaluated in the capturing frame at the point the
// literal appears. internal/runtime prepends them ahead of a call's own
// arguments whenever it invokes the resulting reference.
func registerClosure() {
	register(&Opcode{
		Name: "makeclosure", Args: []ArgSpec{funcArg()}, Result: ir.Prim(ir.TyFunc), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if len(args) == 0 {
				return Value{}, fmt.Errorf("makeclosure: missing closure reference")
			}
			base := args[0]
			return Value{Type: base.Type, S: base.S, Arr: append([]Value{}, args[1:]...)}, nil
		},
	})
}
