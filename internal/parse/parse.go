package parse

import (
	"fmt"
	"strings"

	"github.com/agc-lang/agc/internal/diag"
)

// CST is a typed concrete-syntax-tree node produced by a successful parse.
// Composite nodes (And/NamedAnd/Star/Plus/Or) expose Get/GetIndex for
// structured traversal by later passes (the IR-M and IR-G grammars), per
// spec section 4.A.
type CST struct {
	Kind     string // node kind tag, set by the combinator that produced it
	Text     string // the exact matched text, for leaf (Token/CharRange) nodes
	Pos      diag.Position
	Children []*CST          // And/Star/Plus/Or: ordered children
	Named    map[string]*CST // NamedAnd/NamedOr: labeled children
	Value    any             // attached by Map, e.g. a typed AST node
}

// Get returns a NamedAnd/NamedOr child by label.
func (c *CST) Get(name string) *CST {
	if c == nil || c.Named == nil {
		return nil
	}
	return c.Named[name]
}

// GetIndex returns an And/Star/Plus/Or ordered child by position.
func (c *CST) GetIndex(i int) *CST {
	if c == nil || i < 0 || i >= len(c.Children) {
		return nil
	}
	return c.Children[i]
}

// Fail is returned by Check/Apply on a non-matching alternative. It
// carries the furthest position reached, so Or can report the most
// specific union of child errors instead of the first alternative tried.
type Fail struct {
	Pos     diag.Position
	Message string
	Causes  []*Fail
}

func (f *Fail) Error() string {
	if len(f.Causes) == 0 {
		return fmt.Sprintf("%s: %s", f.Pos, f.Message)
	}
	parts := make([]string, len(f.Causes))
	for i, c := range f.Causes {
		parts[i] = c.Error()
	}
	return fmt.Sprintf("%s: %s (%s)", f.Pos, f.Message, strings.Join(parts, " | "))
}

func furthest(a, b *Fail) *Fail {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Pos.Offset > a.Pos.Offset {
		return b
	}
	return a
}

// Node is a parser combinator. Check is a pure, non-mutating lookahead:
// it reports whether the node would accept at c without returning an
// advanced cursor. Apply performs the real parse, advancing the cursor
// only on success (spec section 4.A's contract).
type Node interface {
	Check(c Cursor) bool
	Apply(c Cursor) (Cursor, *CST, *Fail)
}

// ActionFunc transforms a successfully parsed CST, e.g. attaching a typed
// AST value. Map wires one into a node without requiring every grammar to
// hand-write a second traversal pass over the raw CST.
type ActionFunc func(*CST) (*CST, error)

type mapNode struct {
	inner  Node
	action ActionFunc
}

func Map(n Node, action ActionFunc) Node { return &mapNode{inner: n, action: action} }

func (m *mapNode) Check(c Cursor) bool { return m.inner.Check(c) }

func (m *mapNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	nc, cst, fail := m.inner.Apply(c)
	if fail != nil {
		return c, nil, fail
	}
	out, err := m.action(cst)
	if err != nil {
		return c, nil, &Fail{Pos: c.Pos(), Message: err.Error()}
	}
	return nc, out, nil
}

// --- Token: exact literal match ---

type tokenNode struct{ lit string }

func Token(lit string) Node { return &tokenNode{lit: lit} }

func (t *tokenNode) Check(c Cursor) bool {
	_, ok, _ := t.match(c)
	return ok
}

func (t *tokenNode) match(c Cursor) (Cursor, bool, diag.Position) {
	start := c.Pos()
	for _, want := range t.lit {
		got, ok := c.Peek()
		if !ok || got != want {
			return c, false, start
		}
		c = c.Advance()
	}
	return c, true, start
}

func (t *tokenNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	nc, ok, start := t.match(c)
	if !ok {
		return c, nil, &Fail{Pos: start, Message: fmt.Sprintf("expected %q", t.lit)}
	}
	return nc, &CST{Kind: "token", Text: t.lit, Pos: start}, nil
}

// --- CharRange: a single rune in [lo, hi] ---

type charRangeNode struct{ lo, hi rune }

func CharRange(lo, hi rune) Node { return &charRangeNode{lo: lo, hi: hi} }

func Char(r rune) Node { return CharRange(r, r) }

func (cr *charRangeNode) Check(c Cursor) bool {
	r, ok := c.Peek()
	return ok && r >= cr.lo && r <= cr.hi
}

func (cr *charRangeNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	start := c.Pos()
	r, ok := c.Peek()
	if !ok || r < cr.lo || r > cr.hi {
		return c, nil, &Fail{Pos: start, Message: fmt.Sprintf("expected char in [%q-%q]", cr.lo, cr.hi)}
	}
	return c.Advance(), &CST{Kind: "char", Text: string(r), Pos: start}, nil
}

// --- Not: any char except the wrapped node ---

type notNode struct{ inner Node }

func Not(n Node) Node { return &notNode{inner: n} }

func (n *notNode) Check(c Cursor) bool {
	if c.AtEOF() {
		return false
	}
	return !n.inner.Check(c)
}

func (n *notNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	start := c.Pos()
	if c.AtEOF() || n.inner.Check(c) {
		return c, nil, &Fail{Pos: start, Message: "negated alternative matched"}
	}
	r, _ := c.Peek()
	return c.Advance(), &CST{Kind: "not", Text: string(r), Pos: start}, nil
}

// --- Opt: zero or one ---

type optNode struct{ inner Node }

func Opt(n Node) Node { return &optNode{inner: n} }

func (o *optNode) Check(Cursor) bool { return true }

func (o *optNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	nc, cst, fail := o.inner.Apply(c)
	if fail != nil {
		return c, &CST{Kind: "opt", Pos: c.Pos()}, nil
	}
	return nc, &CST{Kind: "opt", Pos: c.Pos(), Children: []*CST{cst}}, nil
}

// --- Star: zero or more ---

type starNode struct{ inner Node }

func Star(n Node) Node { return &starNode{inner: n} }

func (s *starNode) Check(Cursor) bool { return true }

func (s *starNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	start := c.Pos()
	var children []*CST
	for {
		if c.AtEOF() {
			break
		}
		nc, cst, fail := s.inner.Apply(c)
		if fail != nil {
			break
		}
		if nc.Offset == c.Offset {
			// Guard against a zero-width inner match looping forever.
			break
		}
		children = append(children, cst)
		c = nc
	}
	return c, &CST{Kind: "star", Pos: start, Children: children}, nil
}

// --- Plus: one or more ---

type plusNode struct{ inner Node }

func Plus(n Node) Node { return &plusNode{inner: n} }

func (p *plusNode) Check(c Cursor) bool { return p.inner.Check(c) }

func (p *plusNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	start := c.Pos()
	nc, first, fail := p.inner.Apply(c)
	if fail != nil {
		return c, nil, fail
	}
	children := []*CST{first}
	c = nc
	for !c.AtEOF() {
		nc2, cst, fail2 := p.inner.Apply(c)
		if fail2 != nil || nc2.Offset == c.Offset {
			break
		}
		children = append(children, cst)
		c = nc2
	}
	return c, &CST{Kind: "plus", Pos: start, Children: children}, nil
}

// --- And: ordered sequence, commits on full success, rewinds otherwise ---

type andNode struct{ parts []Node }

func And(parts ...Node) Node { return &andNode{parts: parts} }

func (a *andNode) Check(c Cursor) bool {
	if len(a.parts) == 0 {
		return true
	}
	return a.parts[0].Check(c)
}

func (a *andNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	start := c.Pos()
	cur := c
	children := make([]*CST, 0, len(a.parts))
	for _, p := range a.parts {
		nc, cst, fail := p.Apply(cur)
		if fail != nil {
			// rewind: report failure against the original cursor c, not cur.
			return c, nil, fail
		}
		children = append(children, cst)
		cur = nc
	}
	return cur, &CST{Kind: "and", Pos: start, Children: children}, nil
}

// --- Or: ordered alternation, first acceptor wins ---

type orNode struct{ alts []Node }

func Or(alts ...Node) Node { return &orNode{alts: alts} }

func (o *orNode) Check(c Cursor) bool {
	for _, a := range o.alts {
		if a.Check(c) {
			return true
		}
	}
	return false
}

func (o *orNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	var worst *Fail
	for _, a := range o.alts {
		nc, cst, fail := a.Apply(c)
		if fail == nil {
			return nc, cst, nil
		}
		worst = furthest(worst, fail)
	}
	if worst == nil {
		worst = &Fail{Pos: c.Pos(), Message: "no alternative"}
	}
	return c, nil, &Fail{Pos: c.Pos(), Message: "no alternative matched", Causes: []*Fail{worst}}
}

// --- NamedAnd: labeled sequence ---

type namedPart struct {
	Name string
	Node Node
}

func N(name string, n Node) namedPart { return namedPart{Name: name, Node: n} }

type namedAndNode struct{ parts []namedPart }

func NamedAnd(parts ...namedPart) Node { return &namedAndNode{parts: parts} }

func (n *namedAndNode) Check(c Cursor) bool {
	if len(n.parts) == 0 {
		return true
	}
	return n.parts[0].Node.Check(c)
}

func (n *namedAndNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	start := c.Pos()
	cur := c
	named := make(map[string]*CST, len(n.parts))
	var ordered []*CST
	for _, p := range n.parts {
		nc, cst, fail := p.Node.Apply(cur)
		if fail != nil {
			return c, nil, fail
		}
		named[p.Name] = cst
		ordered = append(ordered, cst)
		cur = nc
	}
	return cur, &CST{Kind: "named-and", Pos: start, Named: named, Children: ordered}, nil
}

// --- NamedOr: labeled alternation ---

type namedOrNode struct{ parts []namedPart }

func NamedOr(parts ...namedPart) Node { return &namedOrNode{parts: parts} }

func (n *namedOrNode) Check(c Cursor) bool {
	for _, p := range n.parts {
		if p.Node.Check(c) {
			return true
		}
	}
	return false
}

func (n *namedOrNode) Apply(c Cursor) (Cursor, *CST, *Fail) {
	var worst *Fail
	for _, p := range n.parts {
		nc, cst, fail := p.Node.Apply(c)
		if fail == nil {
			return nc, &CST{Kind: "named-or", Pos: c.Pos(), Named: map[string]*CST{p.Name: cst}, Children: []*CST{cst}}, nil
		}
		worst = furthest(worst, fail)
	}
	if worst == nil {
		worst = &Fail{Pos: c.Pos(), Message: "no alternative"}
	}
	return c, nil, &Fail{Pos: c.Pos(), Message: "no named alternative matched", Causes: []*Fail{worst}}
}

// Parse runs n against the full source text for file, requiring the
// entire input be consumed.
func Parse(n Node, file, src string) (*CST, error) {
	c := NewCursor(file, src)
	nc, cst, fail := n.Apply(c)
	if fail != nil {
		return nil, diag.Wrap(diag.Grammar, fail.Pos, fail)
	}
	if !nc.AtEOF() {
		return nil, diag.New(diag.Grammar, nc.Pos(), "unexpected trailing input")
	}
	return cst, nil
}
