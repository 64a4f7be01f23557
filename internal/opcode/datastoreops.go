package opcode

import "github.com/agc-lang/agc/internal/ir"

// registerDatastore declares the keyed-datastore ops of spec section 4.J.
// Every op takes a (namespace, key) dyad rather than a bare key. The
// f/v suffix pair (dsgetf/dsgetv, dssetf/dssetv) distinguishes the
// Fallible{T}-returning form (f, an absent key is an error) from the
// plain/Maybe-returning form (v). The run/with/mutOnly/closure family of
// spec section 4.J collapses onto internal/datastore.Store's Run/MutOnly
// primitive: dsrrun/dsrwith are read-only (mutate=false), dsmrun/dsmwith/
// dsmonly/dswonly mutate the stored entry, and dsrclos/dsmclos are the
// spellings used when fn is a captured closure value (built by the
// makeclosure opcode) rather than a bare top-level closure reference --
// the runtime's closure resolution handles both identically, so they
// dispatch through the same path as dsrrun/dsmrun.
//
// Every one of these needs a context.Context and internal/datastore.Store,
// neither of which the generic Eval signature carries, so internal/runtime
// dispatches them directly against its own Scheduler.store.
func registerDatastore() {
	ns, key := strArg(), strArg()
	valTy := ir.Prim(ir.TyString)

	register(&Opcode{Name: "dsgetv", Args: []ArgSpec{ns, key}, Result: ir.Maybe(valTy), Cost: 8})
	register(&Opcode{Name: "dsgetf", Args: []ArgSpec{ns, key}, Result: ir.Fallible(valTy), Cost: 8})
	register(&Opcode{Name: "dssetv", Args: []ArgSpec{ns, key, {Type: valTy}}, Result: ir.Prim(ir.TyVoid), Cost: 8})
	register(&Opcode{Name: "dssetf", Args: []ArgSpec{ns, key, {Type: valTy}}, Result: ir.Fallible(ir.Prim(ir.TyVoid)), Cost: 8})
	register(&Opcode{Name: "dshas", Args: []ArgSpec{ns, key}, Result: ir.Prim(ir.TyBool), Cost: 4})
	register(&Opcode{Name: "dsdel", Args: []ArgSpec{ns, key}, Result: ir.Prim(ir.TyVoid), Cost: 8})

	register(&Opcode{Name: "dsrrun", Args: []ArgSpec{ns, key, funcArg()}, Result: valTy, Cost: 10})
	register(&Opcode{Name: "dsmrun", Args: []ArgSpec{ns, key, funcArg()}, Result: valTy, Cost: 10})
	register(&Opcode{Name: "dsrwith", Args: []ArgSpec{ns, key, {Type: valTy}, funcArg()}, Result: valTy, Cost: 10})
	register(&Opcode{Name: "dsmwith", Args: []ArgSpec{ns, key, {Type: valTy}, funcArg()}, Result: valTy, Cost: 10})
	register(&Opcode{Name: "dsmonly", Args: []ArgSpec{ns, key, funcArg()}, Result: ir.Prim(ir.TyVoid), Cost: 10})
	register(&Opcode{Name: "dswonly", Args: []ArgSpec{ns, key, {Type: valTy}, funcArg()}, Result: ir.Prim(ir.TyVoid), Cost: 10})
	register(&Opcode{Name: "dsrclos", Args: []ArgSpec{ns, key, funcArg()}, Result: valTy, Cost: 10})
	register(&Opcode{Name: "dsmclos", Args: []ArgSpec{ns, key, funcArg()}, Result: valTy, Cost: 10})
}
