package grammar

import (
	"fmt"
	"strconv"

	"github.com/agc-lang/agc/internal/ir"
	"github.com/agc-lang/agc/internal/parse"
)

// IR-G textual syntax (spec section 4.B/4.F), e.g.:
//
//	global:
//	  @-8 = "hi\n"
//
//	events:
//	  event custom1 9001 -1
//
//	handler for _start with size 16
//	  @0 = concat(@-8, @-8) #1
//	  stdoutp(@0) #2 <- [#1]
//	  exitop(0i64) #3 <- [#2]
//
//	closure clo1 of _start with size 8 args 1
//	  @0 = add(@c0, 1i64) #1
//	  refv(@0) #2 <- [#1]

// --- addresses and immediates ---

var addrNode = parse.Map(
	parse.And(parse.Char('@'), parse.Or(
		parse.Map(parse.And(parse.Char('c'), parse.Plus(digit)), func(c *parse.CST) (*parse.CST, error) {
			var s string
			for _, d := range c.GetIndex(1).Children {
				s += d.Text
			}
			n, _ := strconv.Atoi(s)
			return &parse.CST{Kind: "addr-closure", Value: n}, nil
		}),
		parse.Map(parse.And(parse.Opt(parse.Char('-')), parse.Plus(digit)), func(c *parse.CST) (*parse.CST, error) {
			s := ""
			if len(c.GetIndex(0).Children) > 0 {
				s = "-"
			}
			for _, d := range c.GetIndex(1).Children {
				s += d.Text
			}
			n, _ := strconv.ParseInt(s, 10, 64)
			return &parse.CST{Kind: "addr-plain", Value: n}, nil
		}),
	)),
	func(c *parse.CST) (*parse.CST, error) {
		inner := c.GetIndex(1)
		var a ir.Addr
		switch inner.Kind {
		case "addr-closure":
			a = ir.ClosureAddr(inner.Value.(int))
		case "addr-plain":
			n := inner.Value.(int64)
			if n < 0 {
				a = ir.ConstAddr(n)
			} else {
				a = ir.LocalAddr(n)
			}
		}
		return &parse.CST{Kind: "addr", Value: a, Pos: c.Pos}, nil
	},
)

func addr() parse.Node { return tok(addrNode) }

var immNode = tok(parse.Or(
	parse.Map(parse.And(floatLit(), kw("f32")), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyF32), F: c.GetIndex(0).Value.(float64)})
	}),
	parse.Map(parse.And(floatLit(), kw("f64")), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyF64), F: c.GetIndex(0).Value.(float64)})
	}),
	parse.Map(parse.And(intLit(), kw("i8")), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyI8), I: c.GetIndex(0).Value.(int64)})
	}),
	parse.Map(parse.And(intLit(), kw("i16")), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyI16), I: c.GetIndex(0).Value.(int64)})
	}),
	parse.Map(parse.And(intLit(), kw("i32")), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyI32), I: c.GetIndex(0).Value.(int64)})
	}),
	parse.Map(parse.And(intLit(), kw("i64")), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyI64), I: c.GetIndex(0).Value.(int64)})
	}),
	parse.Map(boolLit(), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyBool), B: c.Value.(bool)})
	}),
	parse.Map(stringLit(), func(c *parse.CST) (*parse.CST, error) {
		return immCST(ir.Immediate{Type: ir.Prim(ir.TyString), S: c.Value.(string)})
	}),
))

func immCST(v ir.Immediate) (*parse.CST, error) {
	return &parse.CST{Kind: "imm", Value: v}, nil
}

func imm() parse.Node { return immNode }

var argNode = parse.Or(
	parse.Map(addr(), func(c *parse.CST) (*parse.CST, error) { return &parse.CST{Kind: "arg", Value: ir.Addr(c.Value.(ir.Addr))}, nil }),
	parse.Map(imm(), func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "arg", Value: ir.ImmAddr(c.Value.(ir.Immediate))}, nil
	}),
)

func arg() parse.Node { return argNode }

// --- statements ---

var lineNode = tok(parse.Map(parse.And(parse.Char('#'), parse.Plus(digit)), func(c *parse.CST) (*parse.CST, error) {
	s := ""
	for _, d := range c.GetIndex(1).Children {
		s += d.Text
	}
	n, _ := strconv.Atoi(s)
	return &parse.CST{Kind: "line", Value: n}, nil
}))

var depListNode = parse.Map(
	parse.And(kw("<-"), kw("["), sepBy(lineNode, kw(",")), kw("]")),
	func(c *parse.CST) (*parse.CST, error) {
		var deps []int
		for _, d := range c.GetIndex(2).Children {
			deps = append(deps, d.Value.(int))
		}
		return &parse.CST{Kind: "deps", Value: deps}, nil
	},
)

var stmtNode = parse.Map(
	parse.And(
		parse.Opt(parse.Map(parse.And(addr(), kw("=")), func(c *parse.CST) (*parse.CST, error) { return c.GetIndex(0), nil })),
		ident(),
		kw("("),
		sepBy(arg(), kw(",")),
		kw(")"),
		lineNode,
		parse.Opt(depListNode),
	),
	func(c *parse.CST) (*parse.CST, error) {
		s := ir.Statement{Op: c.GetIndex(1).Text, Line: c.GetIndex(5).Value.(int)}
		if resAddrOpt := c.GetIndex(0).GetIndex(0); resAddrOpt != nil {
			a := resAddrOpt.Value.(ir.Addr)
			s.Result = &a
		}
		for _, a := range c.GetIndex(3).Children {
			s.Args = append(s.Args, a.Value.(ir.Addr))
		}
		if depsOpt := c.GetIndex(6); depsOpt != nil {
			inner := depsOpt.GetIndex(0)
			if inner != nil {
				s.Deps = inner.Value.([]int)
			}
		}
		return &parse.CST{Kind: "stmt", Value: s}, nil
	},
)

func stmt() parse.Node { return stmtNode }

// --- global memory section ---

var globalEntryNode = parse.Map(
	parse.And(addr(), kw("="), imm()),
	func(c *parse.CST) (*parse.CST, error) {
		a := c.GetIndex(0).Value.(ir.Addr)
		v := c.GetIndex(2).Value.(ir.Immediate)
		return &parse.CST{Kind: "global-entry", Value: ir.ConstEntry{Offset: a.Offset, Type: v.Type, Bytes: encodeImmediate(v)}}, nil
	},
)

func encodeImmediate(v ir.Immediate) []byte {
	switch v.Type.Kind {
	case ir.TyString:
		return []byte(v.S)
	case ir.TyBool:
		if v.B {
			return []byte{1}
		}
		return []byte{0}
	case ir.TyF32, ir.TyF64:
		return encodeI64(int64(v.F))
	default:
		return encodeI64(v.I)
	}
}

func encodeI64(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b
}

var globalSectionNode = parse.Map(
	parse.And(kw("global:"), parse.Star(globalEntryNode)),
	func(c *parse.CST) (*parse.CST, error) {
		var entries []ir.ConstEntry
		for _, e := range c.GetIndex(1).Children {
			entries = append(entries, e.Value.(ir.ConstEntry))
		}
		return &parse.CST{Kind: "global-section", Value: entries}, nil
	},
)

// --- custom events section ---

var eventEntryNode = parse.Map(
	parse.And(kw("event"), ident(), intLit(), intLit()),
	func(c *parse.CST) (*parse.CST, error) {
		name := c.GetIndex(1).Text
		id := c.GetIndex(2).Value.(int64)
		size := c.GetIndex(3).Value.(int64)
		return &parse.CST{Kind: "event-entry", Value: ir.Event{Name: name, ID: uint64(id), PayloadSize: int(size)}}, nil
	},
)

var eventsSectionNode = parse.Map(
	parse.And(kw("events:"), parse.Star(eventEntryNode)),
	func(c *parse.CST) (*parse.CST, error) {
		var events []ir.Event
		for _, e := range c.GetIndex(1).Children {
			events = append(events, e.Value.(ir.Event))
		}
		return &parse.CST{Kind: "events-section", Value: events}, nil
	},
)

// --- handler / closure blocks ---

var handlerHeaderNode = parse.Map(
	parse.And(kw("handler"), kw("for"), ident(), kw("with"), kw("size"), intLit()),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "handler-header", Named: map[string]*parse.CST{
			"event": c.GetIndex(2),
			"size":  c.GetIndex(5),
		}}, nil
	},
)

var closureHeaderNode = parse.Map(
	parse.And(kw("closure"), ident(), kw("of"), ident(), kw("with"), kw("size"), intLit(), kw("args"), intLit()),
	func(c *parse.CST) (*parse.CST, error) {
		return &parse.CST{Kind: "closure-header", Named: map[string]*parse.CST{
			"name":   c.GetIndex(1),
			"parent": c.GetIndex(3),
			"size":   c.GetIndex(6),
			"args":   c.GetIndex(8),
		}}, nil
	},
)

func blockBody() parse.Node { return parse.Star(stmt()) }

var handlerBlockNode = parse.Map(
	parse.And(handlerHeaderNode, blockBody()),
	func(c *parse.CST) (*parse.CST, error) {
		h := ir.Handler{
			Event: ir.Event{Name: c.GetIndex(0).Get("event").Text},
			Block: ir.Block{FrameSize: int(c.GetIndex(0).Get("size").Value.(int64))},
		}
		for _, s := range c.GetIndex(1).Children {
			h.Block.Stmts = append(h.Block.Stmts, s.Value.(ir.Statement))
		}
		return &parse.CST{Kind: "handler-block", Value: h}, nil
	},
)

var closureBlockNode = parse.Map(
	parse.And(closureHeaderNode, blockBody()),
	func(c *parse.CST) (*parse.CST, error) {
		hdr := c.GetIndex(0)
		cl := ir.Closure{
			SyntheticEvent: ir.Event{Name: hdr.Get("name").Text},
			Block:          ir.Block{FrameSize: int(hdr.Get("size").Value.(int64))},
		}
		cl.ArgNames = make([]string, hdr.Get("args").Value.(int64))
		for _, s := range c.GetIndex(1).Children {
			cl.Block.Stmts = append(cl.Block.Stmts, s.Value.(ir.Statement))
		}
		return &parse.CST{Kind: "closure-block", Value: cl, Named: map[string]*parse.CST{"parent": hdr.Get("parent")}}, nil
	},
)

var blockNode = parse.Or(handlerBlockNode, closureBlockNode)

var moduleNode = parse.Map(
	parse.And(ws, parse.Opt(globalSectionNode), parse.Opt(eventsSectionNode), parse.Star(blockNode)),
	func(c *parse.CST) (*parse.CST, error) {
		mod := &ir.Module{}
		if g := c.GetIndex(1); g != nil {
			mod.Consts = g.GetIndex(0).Value.([]ir.ConstEntry)
		}
		if e := c.GetIndex(2); e != nil {
			mod.CustomEvents = e.GetIndex(0).Value.([]ir.Event)
		}
		parentByName := map[string]int{}
		for _, b := range c.GetIndex(3).Children {
			switch b.Kind {
			case "handler-block":
				h := b.Value.(ir.Handler)
				parentByName[h.Event.Name] = len(mod.Handlers)
				mod.Handlers = append(mod.Handlers, h)
			case "closure-block":
				cl := b.Value.(ir.Closure)
				if parentName := b.Get("parent"); parentName != nil {
					cl.ParentHandler = parentByName[parentName.Text]
				}
				mod.Closures = append(mod.Closures, cl)
			}
		}
		return &parse.CST{Kind: "module", Value: mod}, nil
	},
)

// ParseIRG parses a complete IR-G source file into an ir.Module.
func ParseIRG(file, src string) (*ir.Module, error) {
	cst, err := parse.Parse(moduleNode, file, src)
	if err != nil {
		return nil, fmt.Errorf("parsing IR-G: %w", err)
	}
	return cst.Value.(*ir.Module), nil
}
