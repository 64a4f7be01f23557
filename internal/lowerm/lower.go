// Lowering from the surface AST to IR-M: three-address statements over a
// single-assignment handler/closure body (spec section 4.D). Diagnostics
// are batch-collected into a diag.Bag rather than returned on first error,
// matching the teacher compiler's own style of reporting every problem it
// can find in one pass (std/compiler/frontend.go).
package lowerm

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/agc-lang/agc/internal/diag"
	"github.com/agc-lang/agc/internal/ir"
	"github.com/agc-lang/agc/internal/types"
)

// CustomEventID hashes a declared event name into a 63-bit id with the
// high bit clear, keeping the built-in packed-ASCII range (spec section
// 3/6) and the custom-event range disjoint. Grounded on the same
// xxhash/v2 dependency internal/opcode uses for its registry lookup,
// applied here to a different key space.
func CustomEventID(name string) uint64 {
	return xxhash.Sum64String(name) &^ (uint64(1) << 63)
}

type frame struct {
	nextOffset int64
	vars       map[string]ir.Addr
	producedBy map[int64]int // local offset -> line that last wrote it
	stmts      []ir.Statement
	nextLine   int
}

func newFrame() *frame {
	return &frame{vars: map[string]ir.Addr{}, producedBy: map[int64]int{}, nextLine: 1}
}

func (f *frame) allocLocal() ir.Addr {
	a := ir.LocalAddr(f.nextOffset)
	f.nextOffset += 8
	return a
}

func (f *frame) emit(op string, args []ir.Addr, result *ir.Addr, pos diag.Position) *ir.Statement {
	s := ir.Statement{Line: f.nextLine, Op: op, Args: args, Result: result, Pos: pos}
	f.nextLine++
	for _, a := range args {
		if a.Kind == ir.AddrLocal {
			if line, ok := f.producedBy[a.Offset]; ok {
				s.AddDep(line)
			}
		}
	}
	f.stmts = append(f.stmts, s)
	if result != nil && result.Kind == ir.AddrLocal {
		f.producedBy[result.Offset] = s.Line
	}
	return &f.stmts[len(f.stmts)-1]
}

// lowerer carries the module-level scope and constant pool being built up
// across every handler and top-level function const in one Program.
type lowerer struct {
	scope       *types.Scope
	mod         *ir.Module
	eventByName map[string]ir.Event
	constAddr   map[string]ir.Addr
	closureName map[string]bool
	bag         *diag.Bag

	closureSeq     int      // next synthetic name suffix for a nested ClosureLit
	currentHandler int      // index mod.Handlers will get the handler currently being lowered, -1 outside one
	scopeStack     []string // enclosing closure names, innermost last
}

// Lower flattens a parsed Program into an ir.Module whose Handlers and
// Closures carry three-address, single-assignment statement bodies; every
// closure literal is already lifted into mod.Closures here. internal/lowerg
// is responsible for everything address-layout related that follows:
// frame sizing, validation of the lifted closures' bounds, and the final
// dependency/exit rewriting passes of spec section 4.E.
func Lower(p *Program) (*ir.Module, error) {
	l := &lowerer{
		scope:          types.NewScope(),
		mod:            &ir.Module{},
		eventByName:    map[string]ir.Event{},
		constAddr:      map[string]ir.Addr{},
		closureName:    map[string]bool{},
		bag:            &diag.Bag{},
		currentHandler: -1,
	}
	for _, e := range []ir.Event{ir.EventStart, ir.EventStdout, ir.EventStderr, ir.EventConn} {
		l.eventByName[e.Name] = e
	}

	for _, ed := range p.Events {
		l.lowerEventDecl(ed)
	}
	for _, cd := range p.Consts {
		l.lowerConstDecl(cd)
	}
	for _, hd := range p.Handlers {
		l.lowerHandlerDecl(hd)
	}

	if !l.bag.Empty() {
		return nil, l.bag.Err()
	}
	return l.mod, nil
}

func (l *lowerer) lowerEventDecl(ed EventDecl) {
	t, err := types.EvalTypeExpr(l.scope, ed.TypeName)
	if err != nil {
		l.bag.Add(diag.New(diag.Unresolved, ed.Pos, "event %s: %v", ed.Name, err))
		return
	}
	ev := ir.Event{Name: ed.Name, ID: CustomEventID(ed.Name), PayloadType: t, PayloadSize: t.Size()}
	l.eventByName[ed.Name] = ev
	l.mod.CustomEvents = append(l.mod.CustomEvents, ev)
	if err := l.scope.Define(types.Binding{Name: ed.Name, Kind: types.KindEvent}); err != nil {
		l.bag.Add(diag.New(diag.Grammar, ed.Pos, "%s", err.Error()))
	}
}

func (l *lowerer) lowerConstDecl(cd ConstDecl) {
	if clo, ok := cd.Value.(ClosureLit); ok {
		block, err := l.lowerBody(clo.Params, clo.Body)
		if err != nil {
			l.bag.Add(diag.New(diag.Unresolved, cd.Pos, "%s", err.Error()))
			return
		}
		l.mod.Closures = append(l.mod.Closures, ir.Closure{
			SyntheticEvent: ir.Event{Name: cd.Name},
			ParentHandler:  -1,
			ArgNames:       clo.Params,
			Block:          *block,
		})
		if err := l.scope.Define(types.Binding{Name: cd.Name, Kind: types.KindFunc}); err != nil {
			l.bag.Add(diag.New(diag.Grammar, cd.Pos, "%s", err.Error()))
		}
		l.closureName[cd.Name] = true
		return
	}

	imm, t, err := l.literalImmediate(cd.Value)
	if err != nil {
		l.bag.Add(diag.New(diag.Unresolved, cd.Pos, "const %s: %v", cd.Name, err))
		return
	}
	off := l.mod.NextConstOffset()
	l.mod.Consts = append(l.mod.Consts, ir.ConstEntry{Offset: off, Type: t, Bytes: encodeConst(imm)})
	if err := l.scope.Define(types.Binding{Name: cd.Name, Kind: types.KindConst, Type: t}); err != nil {
		l.bag.Add(diag.New(diag.Grammar, cd.Pos, "%s", err.Error()))
		return
	}
	l.constAddr[cd.Name] = ir.ConstAddr(off)
}

func (l *lowerer) literalImmediate(e Expr) (ir.Immediate, *ir.Type, error) {
	switch v := e.(type) {
	case IntLit:
		return ir.Immediate{Type: ir.Prim(ir.TyI64), I: v.Value}, ir.Prim(ir.TyI64), nil
	case FloatLit:
		return ir.Immediate{Type: ir.Prim(ir.TyF64), F: v.Value}, ir.Prim(ir.TyF64), nil
	case StringLit:
		return ir.Immediate{Type: ir.Prim(ir.TyString), S: v.Value}, ir.Prim(ir.TyString), nil
	case BoolLit:
		return ir.Immediate{Type: ir.Prim(ir.TyBool), B: v.Value}, ir.Prim(ir.TyBool), nil
	default:
		return ir.Immediate{}, nil, fmt.Errorf("const value must be a literal")
	}
}

func encodeConst(v ir.Immediate) []byte {
	switch v.Type.Kind {
	case ir.TyString:
		return []byte(v.S)
	case ir.TyBool:
		if v.B {
			return []byte{1}
		}
		return []byte{0}
	case ir.TyF32, ir.TyF64:
		bits := int64(v.F)
		return le64(bits)
	default:
		return le64(v.I)
	}
}

func le64(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b
}

// payloadParam is the reserved name internal/lowerm binds a handler body's
// implicit event-payload argument under, the handler equivalent of a
// closure's own named parameters -- both resolve through the same
// ir.ClosureAddr mechanism, so internal/runtime's dispatch only needs to
// pass the fired event's payload as a one-element closureArgs slice to
// give a handler body access to it (spec section 4.E step "injectArgSlot").
const payloadParam = "_payload"

func (l *lowerer) lowerHandlerDecl(hd HandlerDecl) {
	ev, ok := l.eventByName[hd.Event]
	if !ok {
		l.bag.Add(diag.New(diag.Unresolved, hd.Pos, "handler for undeclared event %s", hd.Event))
		return
	}
	l.currentHandler = len(l.mod.Handlers)
	block, err := l.lowerBody([]string{payloadParam}, hd.Body)
	l.currentHandler = -1
	if err != nil {
		l.bag.Add(diag.New(diag.Unresolved, hd.Pos, "%s", err.Error()))
		return
	}
	l.mod.Handlers = append(l.mod.Handlers, ir.Handler{Event: ev, Block: *block})
}

// lowerBody flattens one handler or closure body into three-address
// statements. params become closure-argument rereference addresses
// (ir.ClosureAddr); every let/assign rebinds a name to a freshly
// allocated local, which is what keeps the body single-assignment per
// spec's resolution of the branch-merge Open Question.
func (l *lowerer) lowerBody(params []string, body []Stmt) (*ir.Block, error) {
	f := newFrame()
	for i, p := range params {
		f.vars[p] = ir.ClosureAddr(i)
	}
	for _, s := range body {
		if err := l.lowerStmt(f, s); err != nil {
			return nil, err
		}
	}
	return &ir.Block{Stmts: f.stmts}, nil
}

func (l *lowerer) lowerStmt(f *frame, s Stmt) error {
	switch v := s.(type) {
	case LetStmt:
		a, err := l.lowerExpr(f, v.Value)
		if err != nil {
			return err
		}
		f.vars[v.Name] = a
		return nil
	case AssignStmt:
		a, err := l.lowerExpr(f, v.Value)
		if err != nil {
			return err
		}
		if _, ok := f.vars[v.Name]; !ok {
			return fmt.Errorf("assignment to undeclared name %s", v.Name)
		}
		f.vars[v.Name] = a
		return nil
	case ExprStmt:
		_, err := l.lowerExpr(f, v.Value)
		return err
	case EmitStmt:
		ev, ok := l.eventByName[v.Event]
		if !ok {
			return fmt.Errorf("emit of undeclared event %s", v.Event)
		}
		payload, err := l.lowerExpr(f, v.Arg)
		if err != nil {
			return err
		}
		f.emit("emit", []ir.Addr{ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyI64), I: int64(ev.ID)}), payload}, nil, v.Pos)
		return nil
	default:
		return fmt.Errorf("unhandled statement type %T", s)
	}
}

func (l *lowerer) lowerExpr(f *frame, e Expr) (ir.Addr, error) {
	switch v := e.(type) {
	case IntLit:
		return ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyI64), I: v.Value}), nil
	case FloatLit:
		return ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyF64), F: v.Value}), nil
	case StringLit:
		return ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyString), S: v.Value}), nil
	case BoolLit:
		return ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyBool), B: v.Value}), nil
	case Ident:
		if a, ok := f.vars[v.Name]; ok {
			return a, nil
		}
		if a, ok := l.constAddr[v.Name]; ok {
			return a, nil
		}
		if l.closureName[v.Name] {
			// A bare reference to a const-bound closure passes it by name:
			// the runtime resolves a "func"-typed operand's S field against
			// its table of closures keyed by synthetic event name.
			return ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyFunc), S: v.Name}), nil
		}
		return ir.Addr{}, fmt.Errorf("undefined name %s", v.Name)
	case Call:
		args := make([]ir.Addr, 0, len(v.Args))
		for _, ae := range v.Args {
			a, err := l.lowerExpr(f, ae)
			if err != nil {
				return ir.Addr{}, err
			}
			args = append(args, a)
		}
		result := f.allocLocal()
		f.emit(v.Fn, args, &result, v.Pos)
		return result, nil
	case ClosureLit:
		return l.lowerClosureLit(f, v)
	default:
		return ir.Addr{}, fmt.Errorf("unhandled expression type %T", e)
	}
}

// lowerClosureLit lifts a nested closure literal to its own module-level
// ir.Closure (spec section 4.E step "liftClosures"), the moment lowerExpr
// encounters it rather than leaving it nested in the AST for a later pass
// to hoist out. Free variables it reads from the capturing frame are
// captured by value: they become leading closure-argument slots ahead of
// the literal's own declared parameters, and the makeclosure opcode
// carries their values alongside the closure reference so
// internal/runtime's invocation convention (closureCallArgs) can prepend
// them to whatever arguments a later call site supplies.
func (l *lowerer) lowerClosureLit(f *frame, clo ClosureLit) (ir.Addr, error) {
	l.closureSeq++
	name := fmt.Sprintf("$closure%d", l.closureSeq)

	var captured []string
	for _, n := range freeVars(clo) {
		if _, ok := f.vars[n]; ok {
			captured = append(captured, n)
		}
	}

	allParams := make([]string, 0, len(captured)+len(clo.Params))
	allParams = append(allParams, captured...)
	allParams = append(allParams, clo.Params...)

	scope := append([]string{}, l.scopeStack...)
	l.scopeStack = append(l.scopeStack, name)
	block, err := l.lowerBody(allParams, clo.Body)
	l.scopeStack = l.scopeStack[:len(l.scopeStack)-1]
	if err != nil {
		return ir.Addr{}, err
	}

	l.mod.Closures = append(l.mod.Closures, ir.Closure{
		SyntheticEvent: ir.Event{Name: name},
		ParentHandler:  l.currentHandler,
		Scope:          scope,
		ArgNames:       allParams,
		Block:          *block,
	})
	l.closureName[name] = true

	ref := ir.ImmAddr(ir.Immediate{Type: ir.Prim(ir.TyFunc), S: name})
	if len(captured) == 0 {
		return ref, nil
	}
	args := make([]ir.Addr, 0, len(captured)+1)
	args = append(args, ref)
	for _, n := range captured {
		args = append(args, f.vars[n])
	}
	result := f.allocLocal()
	f.emit("makeclosure", args, &result, clo.Pos)
	return result, nil
}

// freeVars walks a closure literal's body and collects every identifier
// it reads that isn't one of its own parameters or bound by an earlier
// let within the same body (in which case it's a local, not a capture). A
// nested closure's own free variables not already bound here are free in
// the outer literal too, so a doubly-nested literal captures transitively
// through its immediate parent.
func freeVars(clo ClosureLit) []string {
	bound := make(map[string]bool, len(clo.Params))
	for _, p := range clo.Params {
		bound[p] = true
	}
	seen := map[string]bool{}
	var free []string
	add := func(name string) {
		if !bound[name] && !seen[name] {
			seen[name] = true
			free = append(free, name)
		}
	}
	var walkExpr func(Expr)
	walkExpr = func(e Expr) {
		switch v := e.(type) {
		case Ident:
			add(v.Name)
		case Call:
			for _, a := range v.Args {
				walkExpr(a)
			}
		case ClosureLit:
			for _, n := range freeVars(v) {
				add(n)
			}
		}
	}
	for _, s := range clo.Body {
		switch v := s.(type) {
		case LetStmt:
			walkExpr(v.Value)
			bound[v.Name] = true
		case AssignStmt:
			walkExpr(v.Value)
		case ExprStmt:
			walkExpr(v.Value)
		case EmitStmt:
			walkExpr(v.Arg)
		}
	}
	return free
}
