package parse

import "testing"

func TestTokenMatch(t *testing.T) {
	n := Token("fn")
	c := NewCursor("t", "fn foo")
	nc, cst, fail := n.Apply(c)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if cst.Text != "fn" {
		t.Fatalf("got text %q, want %q", cst.Text, "fn")
	}
	if nc.Offset != 2 {
		t.Fatalf("cursor advanced to offset %d, want 2", nc.Offset)
	}
}

func TestTokenNoMatchLeavesCursor(t *testing.T) {
	n := Token("fn")
	c := NewCursor("t", "let x")
	nc, _, fail := n.Apply(c)
	if fail == nil {
		t.Fatal("got nil failure, want a mismatch error")
	}
	if nc.Offset != c.Offset {
		t.Fatalf("cursor moved on failure: %d != %d", nc.Offset, c.Offset)
	}
}

func TestOrFirstMatchWins(t *testing.T) {
	n := Or(Token("<="), Token("<"))
	c := NewCursor("t", "<=x")
	nc, cst, fail := n.Apply(c)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if cst.Text != "<=" {
		t.Fatalf("got %q, want the longer alternative to win when listed first", cst.Text)
	}
	if nc.Offset != 2 {
		t.Fatalf("cursor at %d, want 2", nc.Offset)
	}
}

func TestOrShorterFirstStrandsInput(t *testing.T) {
	// Demonstrates why grammar.go lists longer operators first: Or is
	// first-match, not longest-match.
	n := Or(Token("<"), Token("<="))
	c := NewCursor("t", "<=x")
	nc, cst, fail := n.Apply(c)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if cst.Text != "<" || nc.Offset != 1 {
		t.Fatalf("got %q at offset %d, want \"<\" at offset 1 (strands the second '=')", cst.Text, nc.Offset)
	}
}

func TestStarZeroOrMore(t *testing.T) {
	n := Star(CharRange('a', 'z'))
	c := NewCursor("t", "abc123")
	nc, cst, fail := n.Apply(c)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if len(cst.Children) != 3 {
		t.Fatalf("matched %d chars, want 3", len(cst.Children))
	}
	if nc.Offset != 3 {
		t.Fatalf("cursor at %d, want 3", nc.Offset)
	}
}

func TestPlusRequiresAtLeastOne(t *testing.T) {
	n := Plus(CharRange('0', '9'))
	c := NewCursor("t", "abc")
	if _, _, fail := n.Apply(c); fail == nil {
		t.Fatal("got nil failure on zero matches, want an error")
	}
}

func TestNotRejectsInnerMatch(t *testing.T) {
	// And.Check only probes its first part, so the boundary guard only
	// takes effect on Apply -- the same reason kw()'s word-boundary check
	// must be part of the Apply chain, not relied on via Check alone.
	n := And(Token("emit"), Not(CharRange('a', 'z')))
	if _, _, fail := n.Apply(NewCursor("t", "emitter")); fail == nil {
		t.Fatal("matched \"emit\" as a prefix of \"emitter\", want the word-boundary guard to reject it")
	}
	if _, _, fail := n.Apply(NewCursor("t", "emit ")); fail != nil {
		t.Fatalf("guard rejected a genuine word boundary: %v", fail)
	}
}

func TestOptNeverFails(t *testing.T) {
	n := Opt(Token("x"))
	c := NewCursor("t", "y")
	_, cst, fail := n.Apply(c)
	if fail != nil {
		t.Fatalf("Opt failed on a non-match: %v", fail)
	}
	if len(cst.Children) != 0 {
		t.Fatalf("got %d children on a non-match, want 0", len(cst.Children))
	}
}

func TestLazyResolvesOnce(t *testing.T) {
	calls := 0
	var expr Node
	expr = Lazy(func() Node {
		calls++
		return Token("x")
	})
	c := NewCursor("t", "xx")
	if _, _, fail := expr.Apply(c); fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if _, _, fail := expr.Apply(c.Advance()); fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if calls != 1 {
		t.Fatalf("build() called %d times, want exactly 1", calls)
	}
}

func TestLazyMutualRecursion(t *testing.T) {
	// A minimal grammar where a parenthesized group recursively contains
	// itself, the shape internal/grammar's expression ladder relies on
	// Lazy to express without a package-level initialization cycle.
	var group Node
	group = Lazy(func() Node {
		return Or(Token("x"), And(Token("("), group, Token(")")))
	})
	c := NewCursor("t", "((x))")
	_, _, fail := group.Apply(c)
	if fail != nil {
		t.Fatalf("recursive group failed to parse: %v", fail)
	}
}
