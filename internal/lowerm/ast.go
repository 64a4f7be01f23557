// Package lowerm lowers the surface-language AST into IR-M: three-address
// statements over a single-assignment handler/closure body, per spec
// section 4.D. The surface grammar itself (internal/grammar's IR-M
// parser) is a minimal stand-in for the external language frontend the
// spec places out of scope; this package only needs an expression tree
// to flatten, not a full surface language.
package lowerm

import "github.com/agc-lang/agc/internal/diag"

// Expr is a surface-language expression, before three-address flattening.
type Expr interface{ exprNode() }

type Ident struct {
	Name string
	Pos  diag.Position
}

type IntLit struct {
	Value int64
	Pos   diag.Position
}

type FloatLit struct {
	Value float64
	Pos   diag.Position
}

type StringLit struct {
	Value string
	Pos   diag.Position
}

type BoolLit struct {
	Value bool
	Pos   diag.Position
}

// Call is both a function call and the surface spelling of an operator
// application (binary operators lower to a Call of their opcode name, per
// spec section 4.C's operator-to-function-reference desugaring).
type Call struct {
	Fn   string
	Args []Expr
	Pos  diag.Position
}

func (Ident) exprNode()     {}
func (IntLit) exprNode()    {}
func (FloatLit) exprNode()  {}
func (StringLit) exprNode() {}
func (BoolLit) exprNode()   {}
func (Call) exprNode()      {}

// Stmt is a surface-language statement inside a handler or closure body.
type Stmt interface{ stmtNode() }

type LetStmt struct {
	Name  string
	Value Expr
	Pos   diag.Position
}

type AssignStmt struct {
	Name  string
	Value Expr
	Pos   diag.Position
}

type ExprStmt struct {
	Value Expr
	Pos   diag.Position
}

// EmitStmt fires a custom event with a payload expression, the surface
// spelling of spec section 3's emit operation.
type EmitStmt struct {
	Event string
	Arg   Expr
	Pos   diag.Position
}

func (LetStmt) stmtNode()    {}
func (AssignStmt) stmtNode() {}
func (ExprStmt) stmtNode()   {}
func (EmitStmt) stmtNode()   {}

// ClosureLit is a nested function literal assigned to a const, lowered
// into its own lifted Closure block (spec section 4.E, step "liftClosures").
type ClosureLit struct {
	Params []string
	Body   []Stmt
	Pos    diag.Position
}

func (ClosureLit) exprNode() {}

// ConstDecl binds a module-level constant, either a literal or a closure.
type ConstDecl struct {
	Name  string
	Value Expr
	Pos   diag.Position
}

// EventDecl declares a custom event and its payload type name (resolved
// against internal/types by the caller).
type EventDecl struct {
	Name     string
	TypeName string
	Pos      diag.Position
}

// HandlerDecl binds a body to a built-in or custom event name.
type HandlerDecl struct {
	Event string
	Body  []Stmt
	Pos   diag.Position
}

// Program is the root of a lowered surface module.
type Program struct {
	Consts   []ConstDecl
	Events   []EventDecl
	Handlers []HandlerDecl
}
