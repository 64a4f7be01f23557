package grammar

import (
	"github.com/agc-lang/agc/internal/diag"
	"github.com/agc-lang/agc/internal/lowerm"
	"github.com/agc-lang/agc/internal/parse"
)

// IR-M surface syntax, the minimal stand-in for the external-language
// frontend spec section 1's Non-goals place out of scope:
//
//	event tick: i64
//
//	const greeting = "hello"
//
//	const adder = fn(a, b): i64 {
//	  let s = a + b
//	  s
//	}
//
//	handler _start {
//	  let total = adder(1, 2)
//	  emit tick(total)
//	}

// --- expressions, by ascending precedence: or, and, comparison, additive, term, primary ---

var exprNode = parse.Lazy(func() parse.Node { return orExprNode })

func exprRule() parse.Node { return exprNode }

var primaryNode = parse.Or(
	closureLitNode,
	callNode,
	parse.Map(ident(), func(c *parse.CST) (*parse.CST, error) {
		return valCST(lowerm.Ident{Name: c.Text, Pos: c.Pos})
	}),
	parse.Map(floatLit(), func(c *parse.CST) (*parse.CST, error) {
		return valCST(lowerm.FloatLit{Value: c.Value.(float64), Pos: c.Pos})
	}),
	parse.Map(intLit(), func(c *parse.CST) (*parse.CST, error) {
		return valCST(lowerm.IntLit{Value: c.Value.(int64), Pos: c.Pos})
	}),
	parse.Map(stringLit(), func(c *parse.CST) (*parse.CST, error) {
		return valCST(lowerm.StringLit{Value: c.Value.(string), Pos: c.Pos})
	}),
	parse.Map(boolLit(), func(c *parse.CST) (*parse.CST, error) {
		return valCST(lowerm.BoolLit{Value: c.Value.(bool), Pos: c.Pos})
	}),
	parse.Map(parse.And(kw("("), exprRule(), kw(")")), func(c *parse.CST) (*parse.CST, error) {
		return c.GetIndex(1), nil
	}),
)

func valCST(e lowerm.Expr) (*parse.CST, error) { return &parse.CST{Kind: "expr", Value: e}, nil }

var callNode = parse.Map(
	parse.And(ident(), kw("("), sepBy(exprRule(), kw(",")), kw(")")),
	func(c *parse.CST) (*parse.CST, error) {
		var args []lowerm.Expr
		for _, a := range c.GetIndex(2).Children {
			args = append(args, a.Value.(lowerm.Expr))
		}
		return valCST(lowerm.Call{Fn: c.GetIndex(0).Text, Args: args, Pos: c.GetIndex(0).Pos})
	},
)

// opRule is one (literal, opcode name) pair for a precedence level. Order
// matters: when one operator's spelling is a prefix of another's (< and
// <=), the longer spelling must be listed first or Or's first-match rule
// will swallow just the prefix and strand the rest.
type opRule struct{ lit, fn string }

// binOpLevel left-folds a chain of same-precedence binary operators into
// nested lowerm.Call nodes, e.g. a+b+c -> add(add(a,b),c).
func binOpLevel(next parse.Node, ops []opRule) parse.Node {
	var opAlts []parse.Node
	for _, o := range ops {
		fnName := o.fn
		opAlts = append(opAlts, parse.Map(kw(o.lit), func(c *parse.CST) (*parse.CST, error) {
			return &parse.CST{Kind: "op", Text: fnName}, nil
		}))
	}
	pair := parse.And(parse.Or(opAlts...), next)
	return parse.Map(
		parse.And(next, parse.Star(pair)),
		func(c *parse.CST) (*parse.CST, error) {
			acc := c.GetIndex(0).Value.(lowerm.Expr)
			for _, p := range c.GetIndex(1).Children {
				fn := p.GetIndex(0).Text
				rhs := p.GetIndex(1).Value.(lowerm.Expr)
				acc = lowerm.Call{Fn: fn, Args: []lowerm.Expr{acc, rhs}}
			}
			return valCST(acc)
		},
	)
}

var termNode = binOpLevel(primaryNode, []opRule{{"*", "mul"}, {"/", "div"}, {"%", "rem"}})
var additiveNode = binOpLevel(termNode, []opRule{{"+", "add"}, {"-", "sub"}})
var comparisonNode = binOpLevel(additiveNode, []opRule{
	{"==", "eq"}, {"!=", "neq"}, {"<=", "lte"}, {">=", "gte"}, {"<", "lt"}, {">", "gt"},
})
var andExprNode = binOpLevel(comparisonNode, []opRule{{"&&", "and"}})
var orExprNode = binOpLevel(andExprNode, []opRule{{"||", "or"}})

// --- closures ---

var paramListNode = sepBy(ident(), kw(","))

var closureLitNode = parse.Map(
	parse.And(kw("fn"), kw("("), paramListNode, kw(")"), parse.Opt(parse.And(kw(":"), ident())), kw("{"), parse.Star(stmtRule()), kw("}")),
	func(c *parse.CST) (*parse.CST, error) {
		var params []string
		for _, p := range c.GetIndex(2).Children {
			params = append(params, p.Text)
		}
		var body []lowerm.Stmt
		for _, s := range c.GetIndex(6).Children {
			body = append(body, s.Value.(lowerm.Stmt))
		}
		return valCST(lowerm.ClosureLit{Params: params, Body: body, Pos: c.GetIndex(0).Pos})
	},
)

// --- statements ---

var stmtNodeM = parse.Lazy(func() parse.Node { return stmtAltNode })

func stmtRule() parse.Node { return stmtNodeM }

var letStmtNode = parse.Map(
	parse.And(kw("let"), ident(), kw("="), exprRule()),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "stmt", Value: lowerm.LetStmt{Name: c.GetIndex(1).Text, Value: c.GetIndex(3).Value.(lowerm.Expr), Pos: c.GetIndex(0).Pos}}, nil
	},
)

var emitStmtNode = parse.Map(
	parse.And(kw("emit"), ident(), kw("("), exprRule(), kw(")")),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "stmt", Value: lowerm.EmitStmt{Event: c.GetIndex(1).Text, Arg: c.GetIndex(3).Value.(lowerm.Expr), Pos: c.GetIndex(0).Pos}}, nil
	},
)

var assignStmtNode = parse.Map(
	parse.And(ident(), kw("="), exprRule()),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "stmt", Value: lowerm.AssignStmt{Name: c.GetIndex(0).Text, Value: c.GetIndex(2).Value.(lowerm.Expr), Pos: c.GetIndex(0).Pos}}, nil
	},
)

var exprStmtNode = parse.Map(
	exprRule(),
	func(c *parse.CST) (*parse.CST, error) {
		e := c.Value.(lowerm.Expr)
		var pos diag.Position
		return &parse.CST{Kind: "stmt", Value: lowerm.ExprStmt{Value: e, Pos: pos}}, nil
	},
)

var stmtAltNode = parse.Or(letStmtNode, emitStmtNode, assignStmtNode, exprStmtNode)

// --- declarations ---

var constDeclNode = parse.Map(
	parse.And(kw("const"), ident(), kw("="), exprRule()),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "decl-const", Value: lowerm.ConstDecl{Name: c.GetIndex(1).Text, Value: c.GetIndex(3).Value.(lowerm.Expr), Pos: c.GetIndex(0).Pos}}, nil
	},
)

var eventDeclNode = parse.Map(
	parse.And(kw("event"), ident(), kw(":"), ident()),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "decl-event", Value: lowerm.EventDecl{Name: c.GetIndex(1).Text, TypeName: c.GetIndex(3).Text, Pos: c.GetIndex(0).Pos}}, nil
	},
)

var handlerDeclNode = parse.Map(
	parse.And(kw("handler"), ident(), kw("{"), parse.Star(stmtRule()), kw("}")),
	func(c *parse.CST) (*parse.CST, error) {
		var body []lowerm.Stmt
		for _, s := range c.GetIndex(3).Children {
			body = append(body, s.Value.(lowerm.Stmt))
		}
		return &parse.CST{Kind: "decl-handler", Value: lowerm.HandlerDecl{Event: c.GetIndex(1).Text, Body: body, Pos: c.GetIndex(0).Pos}}, nil
	},
)

var declNode = parse.Or(constDeclNode, eventDeclNode, handlerDeclNode)

var programNode = parse.Map(
	parse.And(ws, parse.Star(declNode)),
	func(c *parse.CST) (*parse.CST, error) {
		p := &lowerm.Program{}
		for _, d := range c.GetIndex(1).Children {
			switch d.Kind {
			case "decl-const":
				p.Consts = append(p.Consts, d.Value.(lowerm.ConstDecl))
			case "decl-event":
				p.Events = append(p.Events, d.Value.(lowerm.EventDecl))
			case "decl-handler":
				p.Handlers = append(p.Handlers, d.Value.(lowerm.HandlerDecl))
			}
		}
		return &parse.CST{Kind: "program", Value: p}, nil
	},
)

// ParseIRM parses a complete surface-syntax source file into a
// lowerm.Program, ready for internal/lowerm to flatten into IR-M.
func ParseIRM(file, src string) (*lowerm.Program, error) {
	cst, err := parse.Parse(programNode, file, src)
	if err != nil {
		return nil, err
	}
	return cst.Value.(*lowerm.Program), nil
}
