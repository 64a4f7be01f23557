// Package types holds the flat module scope, operator table, and
// capability/override model used while lowering surface declarations to
// IR-M (spec section 4.C). A module is a single flat name->binding map,
// matching the teacher compiler's own Compiler.scopes []map[string]int
// discipline (std/compiler/ir.go) generalized from a stack of block
// scopes to the single module-level scope this spec needs.
package types

import (
	"fmt"

	"github.com/agc-lang/agc/internal/ir"
)

// Kind distinguishes what a name is bound to.
type Kind int

const (
	KindConst Kind = iota
	KindFunc
	KindEvent
	KindType
)

// Binding is one entry in a Scope.
type Binding struct {
	Name string
	Kind Kind
	Type *ir.Type
}

// Scope is the flat, single-level module namespace of spec section 4.C:
// every const, function, event, and type alias lives in one map, shadowed
// only by an Override when capability-restricted mocking is active.
type Scope struct {
	names    map[string]Binding
	Override map[string]Binding
}

func NewScope() *Scope {
	return &Scope{names: make(map[string]Binding)}
}

func (s *Scope) Define(b Binding) error {
	if _, exists := s.names[b.Name]; exists {
		return fmt.Errorf("%s already defined in this module", b.Name)
	}
	s.names[b.Name] = b
	return nil
}

// Lookup resolves a name, consulting Override first so a test or a
// capability-restricted environment can replace a binding (e.g. a real
// datastore handle with an in-memory fake) without touching the module's
// own declarations.
func (s *Scope) Lookup(name string) (Binding, bool) {
	if s.Override != nil {
		if b, ok := s.Override[name]; ok {
			return b, true
		}
	}
	b, ok := s.names[name]
	return b, ok
}

// Fixity and precedence describe how a surface operator desugars into a
// function-reference call, per spec section 4.C. Higher Prec binds
// tighter; internal/grammar's irm.go hardcodes this same table in its
// binOpLevel layering. No other package reads this table or Fixity; the
// types tests pin its precedence ordering.
type Fixity int

const (
	Infix Fixity = iota
	Prefix
)

type Operator struct {
	Symbol string
	Fn     string // the function/opcode name this operator desugars to
	Fixity Fixity
	Prec   int
}

// DefaultOperators is the table the IR-M grammar's binary-operator
// precedence levels mirror.
var DefaultOperators = []Operator{
	{Symbol: "||", Fn: "or", Fixity: Infix, Prec: 1},
	{Symbol: "&&", Fn: "and", Fixity: Infix, Prec: 2},
	{Symbol: "==", Fn: "eq", Fixity: Infix, Prec: 3},
	{Symbol: "!=", Fn: "neq", Fixity: Infix, Prec: 3},
	{Symbol: "<=", Fn: "lte", Fixity: Infix, Prec: 3},
	{Symbol: ">=", Fn: "gte", Fixity: Infix, Prec: 3},
	{Symbol: "<", Fn: "lt", Fixity: Infix, Prec: 3},
	{Symbol: ">", Fn: "gt", Fixity: Infix, Prec: 3},
	{Symbol: "+", Fn: "add", Fixity: Infix, Prec: 4},
	{Symbol: "-", Fn: "sub", Fixity: Infix, Prec: 4},
	{Symbol: "*", Fn: "mul", Fixity: Infix, Prec: 5},
	{Symbol: "/", Fn: "div", Fixity: Infix, Prec: 5},
	{Symbol: "%", Fn: "rem", Fixity: Infix, Prec: 5},
}

// Lookup type names used by surface type annotations (event payload types,
// closure return types). Composite type syntax (T[], T[N], Either{..})
// is out of scope for the minimal surface grammar; only primitives and
// previously-registered aliases resolve here.
var primitiveTypes = map[string]*ir.Type{
	"void":   ir.Prim(ir.TyVoid),
	"bool":   ir.Prim(ir.TyBool),
	"i8":     ir.Prim(ir.TyI8),
	"i16":    ir.Prim(ir.TyI16),
	"i32":    ir.Prim(ir.TyI32),
	"i64":    ir.Prim(ir.TyI64),
	"f32":    ir.Prim(ir.TyF32),
	"f64":    ir.Prim(ir.TyF64),
	"string": ir.Prim(ir.TyString),
	"Error":  ir.Prim(ir.TyError),
}

// EvalTypeExpr resolves a surface type-name to a *ir.Type, consulting
// module-level type aliases (KindType bindings) before the primitive
// table, per spec section 4.C's compile-time type constructors. A name
// containing any of the constructs typeexpr.go adds (if/then/else,
// Env{}/EnvExists{}, include{}.Name) is routed through that constant-
// folding reader instead of the plain lookup; a bare alias or primitive
// name never contains the characters that trigger it.
func EvalTypeExpr(s *Scope, name string) (*ir.Type, error) {
	if isCompoundTypeExpr(name) {
		return evalCompoundTypeExpr(s, name)
	}
	return evalPlainName(s, name)
}
