// Package grammar declares the IR-M and IR-G grammars (spec section 4.B)
// on top of the internal/parse combinator kernel. Both grammars are
// whitespace-significant-free (insignificant whitespace is skipped
// between tokens) and line-insensitive.
package grammar

import (
	"strconv"
	"strings"

	"github.com/agc-lang/agc/internal/parse"
)

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\r' || r == '\n' }

// ws skips zero or more spaces, tabs, newlines, and "//" line comments,
// mirroring the teacher parser's trivia-skipping between tokens.
var ws = parse.Star(parse.Or(
	parse.CharRange(' ', ' '),
	parse.Char('\t'),
	parse.Char('\r'),
	parse.Char('\n'),
	lineComment,
))

var lineComment = parse.And(
	parse.Token("//"),
	parse.Star(parse.Not(parse.Char('\n'))),
)

// tok wraps a node so it consumes trailing trivia, the common shape every
// grammar rule below is built from.
func tok(n parse.Node) parse.Node {
	return parse.Map(parse.And(n, ws), func(c *parse.CST) (*parse.CST, error) {
		return c.GetIndex(0), nil
	})
}

// kw matches a literal token. For a word-shaped literal (starts with a
// letter or underscore, as every surface-syntax keyword does) it also
// requires that no identifier-continuation rune follows, so "emit" does
// not swallow the first four letters of "emitter".
func kw(lit string) parse.Node {
	if len(lit) == 0 {
		return tok(parse.Token(lit))
	}
	first := rune(lit[0])
	if (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || first == '_' {
		return tok(parse.And(parse.Token(lit), parse.Not(identCont)))
	}
	return tok(parse.Token(lit))
}

var identStart = parse.Or(parse.CharRange('a', 'z'), parse.CharRange('A', 'Z'), parse.Char('_'))
var identCont = parse.Or(identStart, parse.CharRange('0', '9'))

var identNode = tok(parse.Map(parse.And(identStart, parse.Star(identCont)), func(c *parse.CST) (*parse.CST, error) {
	var sb strings.Builder
	sb.WriteString(c.GetIndex(0).Text)
	for _, ch := range c.GetIndex(1).Children {
		sb.WriteString(ch.Text)
	}
	return &parse.CST{Kind: "ident", Text: sb.String(), Pos: c.Pos}, nil
}))

func ident() parse.Node { return identNode }

var digit = parse.CharRange('0', '9')

var intLitNode = tok(parse.Map(
	parse.And(parse.Opt(parse.Char('-')), parse.Plus(digit)),
	func(c *parse.CST) (*parse.CST, error) {
		var sb strings.Builder
		if len(c.GetIndex(0).Children) > 0 {
			sb.WriteString("-")
		}
		for _, d := range c.GetIndex(1).Children {
			sb.WriteString(d.Text)
		}
		v, err := strconv.ParseInt(sb.String(), 10, 64)
		if err != nil {
			return nil, err
		}
		return &parse.CST{Kind: "int", Text: sb.String(), Value: v, Pos: c.Pos}, nil
	},
))

func intLit() parse.Node { return intLitNode }

var floatLitNode = tok(parse.Map(
	parse.And(parse.Opt(parse.Char('-')), parse.Plus(digit), parse.Char('.'), parse.Plus(digit)),
	func(c *parse.CST) (*parse.CST, error) {
		var sb strings.Builder
		if len(c.GetIndex(0).Children) > 0 {
			sb.WriteString("-")
		}
		for _, d := range c.GetIndex(1).Children {
			sb.WriteString(d.Text)
		}
		sb.WriteString(".")
		for _, d := range c.GetIndex(3).Children {
			sb.WriteString(d.Text)
		}
		v, err := strconv.ParseFloat(sb.String(), 64)
		if err != nil {
			return nil, err
		}
		return &parse.CST{Kind: "float", Text: sb.String(), Value: v, Pos: c.Pos}, nil
	},
))

func floatLit() parse.Node { return floatLitNode }

var stringLitNode = tok(parse.Map(
	parse.And(parse.Char('"'), parse.Star(parse.Not(parse.Char('"'))), parse.Char('"')),
	func(c *parse.CST) (*parse.CST, error) {
		var sb strings.Builder
		for _, ch := range c.GetIndex(1).Children {
			sb.WriteString(ch.Text)
		}
		return &parse.CST{Kind: "string", Text: sb.String(), Value: sb.String(), Pos: c.Pos}, nil
	},
))

func stringLit() parse.Node { return stringLitNode }

var boolLitNode = tok(parse.Map(
	parse.And(parse.Or(parse.Token("true"), parse.Token("false")), parse.Not(identCont)),
	func(c *parse.CST) (*parse.CST, error) {
		text := c.GetIndex(0).Text
		return &parse.CST{Kind: "bool", Text: text, Value: text == "true", Pos: c.Pos}, nil
	},
))

func boolLit() parse.Node { return boolLitNode }

// sepBy parses zero or more `item` separated by `sep`.
func sepBy(item, sep parse.Node) parse.Node {
	rest := parse.Star(parse.Map(parse.And(sep, item), func(c *parse.CST) (*parse.CST, error) {
		return c.GetIndex(1), nil
	}))
	return parse.Map(parse.Opt(parse.And(item, rest)), func(c *parse.CST) (*parse.CST, error) {
		var items []*parse.CST
		inner := c.GetIndex(0)
		if inner != nil {
			items = append(items, inner.GetIndex(0))
			items = append(items, inner.GetIndex(1).Children...)
		}
		return &parse.CST{Kind: "list", Children: items}, nil
	})
}
