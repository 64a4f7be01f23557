package opcode

import "github.com/agc-lang/agc/internal/ir"

// registerIO declares the IO opcodes of spec section 4.G/4.H: stdout/
// stderr output (registered in registerMisc, since they were already
// there and predate this file), exit/getOrExit process control, the HTTP
// client/server pair, and subprocess execution. Every one of these needs
// either internal/runtime's ctx (for cancellation) or its Scheduler state
// (the exit-code sentinel, the pending-connection table a listening HTTP
// server parks requests in), so all are registered with a nil Eval and
// dispatched specially by internal/runtime, the same pattern the
// closure-taking array and datastore ops already use.
func registerIO() {
	register(&Opcode{
		Name: "exitop", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyVoid), Cost: 1,
	})
	register(&Opcode{
		// getorexit unwraps a Fallible{T}: on Ok it passes the value
		// through, on Err it converts the unhandled error into a process
		// exit with a nonzero code (spec section 7's "final getOrExit-style
		// sink at the handler boundary").
		Name: "getorexit", Args: []ArgSpec{{Type: ir.Fallible(ir.Prim(ir.TyI64))}}, Result: ir.Prim(ir.TyI64), Cost: 1,
	})
	register(&Opcode{
		Name: "httpget", Args: []ArgSpec{strArg()}, Result: ir.Fallible(ir.Prim(ir.TyString)), Cost: 20,
	})
	register(&Opcode{
		Name: "httppost", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Fallible(ir.Prim(ir.TyString)), Cost: 20,
	})
	register(&Opcode{
		// httplsn starts a background HTTP server bound to addr; each
		// incoming request parks its response and fires the built-in
		// __conn event with "requestID\x00body" as payload, request/response
		// correlation a later httpsend call closes.
		Name: "httplsn", Args: []ArgSpec{strArg()}, Result: ir.Fallible(ir.Prim(ir.TyVoid)), Cost: 10,
	})
	register(&Opcode{
		Name: "httpsend", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyVoid), Cost: 5,
	})
	register(&Opcode{
		// execop runs cmd through the host shell and returns its combined
		// stdout+stderr, Fallible on a nonzero exit or launch failure.
		Name: "execop", Args: []ArgSpec{strArg()}, Result: ir.Fallible(ir.Prim(ir.TyString)), Cost: 20,
	})
}
