package assemble

import "github.com/agc-lang/agc/internal/ir"

// EliminateDead mark-and-sweeps closures and constants that are never
// reached from a handler, the IR-G analogue of the teacher's
// eliminateDeadFunctions in std/compiler/dce.go (rooted at main.main and
// its interface-implementation set instead of at the event handlers).
// Handlers themselves are never dropped: every registered handler is a
// potential event-loop entry point, so spec section 4.F's dead-code pass
// only prunes closures and constants nothing reachable mentions.
func EliminateDead(mod *ir.Module) *ir.Module {
	reachableClosures := map[string]bool{}
	reachableConsts := map[int64]bool{}

	closureByName := make(map[string]*ir.Closure, len(mod.Closures))
	for i := range mod.Closures {
		closureByName[mod.Closures[i].SyntheticEvent.Name] = &mod.Closures[i]
	}

	var visit func(b *ir.Block)
	visit = func(b *ir.Block) {
		for _, s := range b.Stmts {
			markConsts(s, reachableConsts)
			for _, a := range s.Args {
				if a.Kind == ir.AddrImmediate && a.Imm.Type != nil && a.Imm.Type.Kind == ir.TyFunc {
					if c, ok := closureByName[a.Imm.S]; ok && !reachableClosures[a.Imm.S] {
						reachableClosures[a.Imm.S] = true
						visit(&c.Block)
					}
				}
			}
			if c, ok := closureByName[s.Op]; ok && !reachableClosures[s.Op] {
				reachableClosures[s.Op] = true
				visit(&c.Block)
			}
		}
	}

	for i := range mod.Handlers {
		visit(&mod.Handlers[i].Block)
	}

	pruned := &ir.Module{
		Name:         mod.Name,
		CustomEvents: mod.CustomEvents,
		Handlers:     mod.Handlers,
	}
	for _, c := range mod.Consts {
		if reachableConsts[c.Offset] {
			pruned.Consts = append(pruned.Consts, c)
		}
	}
	for _, c := range mod.Closures {
		if reachableClosures[c.SyntheticEvent.Name] {
			pruned.Closures = append(pruned.Closures, c)
		}
	}
	return pruned
}

func markConsts(s ir.Statement, consts map[int64]bool) {
	for _, a := range s.Args {
		if a.Kind == ir.AddrConst {
			consts[a.Offset] = true
		}
	}
	if s.Result != nil && s.Result.Kind == ir.AddrConst {
		consts[s.Result.Offset] = true
	}
}
