package opcode

import (
	"time"

	"github.com/agc-lang/agc/internal/ir"
)

// registerTime declares the time opcodes of spec section 4.G. now and
// elapsed are pure reads of the process clock and need no scheduler
// involvement; wait is registered with a nil Eval because honoring
// context cancellation during the sleep needs internal/runtime's ctx,
// which the generic Eval signature doesn't carry (the same reason the
// closure-taking array and datastore ops dispatch specially).
func registerTime() {
	register(&Opcode{
		Name: "now", Args: nil, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(time.Now().UnixNano()), nil },
	})
	register(&Opcode{
		Name: "elapsed", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(time.Now().UnixNano() - args[0].I), nil },
	})
	register(&Opcode{
		Name: "wait", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyVoid), Cost: 10,
	})
}
