// Package parse implements the parser combinator kernel of spec section
// 4.A: a deterministic, backtracking set of composable nodes over a
// character stream that tracks (filename, line, column, byte offset).
//
// The teacher (tinyrange-rtg/std/compiler/parser.go) hand-writes a single
// recursive-descent parser with its own Cursor-like position tracking
// inline; this package generalizes that same position-tracking discipline
// into a reusable combinator kernel, since the teacher never needed one
// grammar to share a kernel with another.
package parse

import "github.com/agc-lang/agc/internal/diag"

// Cursor is an immutable snapshot of parse position. Nodes never mutate a
// Cursor in place; Apply returns a new Cursor on success so that And can
// rewind to a prior snapshot on failure without undo bookkeeping.
type Cursor struct {
	File   string
	Src    []rune
	Offset int // rune index into Src
	Line   int
	Column int
}

// NewCursor starts a cursor at the beginning of src, line 1 column 1.
func NewCursor(file, src string) Cursor {
	return Cursor{File: file, Src: []rune(src), Offset: 0, Line: 1, Column: 1}
}

func (c Cursor) AtEOF() bool { return c.Offset >= len(c.Src) }

func (c Cursor) Peek() (rune, bool) {
	if c.AtEOF() {
		return 0, false
	}
	return c.Src[c.Offset], true
}

// Advance returns a new cursor moved past one rune, updating line/column
// bookkeeping. Advancing past EOF is a no-op.
func (c Cursor) Advance() Cursor {
	r, ok := c.Peek()
	if !ok {
		return c
	}
	n := c
	n.Offset++
	if r == '\n' {
		n.Line++
		n.Column = 1
	} else {
		n.Column++
	}
	return n
}

// Pos reports the current position as a diag.Position.
func (c Cursor) Pos() diag.Position {
	return diag.Position{File: c.File, Line: c.Line, Column: c.Column, Offset: c.Offset}
}
