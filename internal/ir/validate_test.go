package ir

import "testing"

func TestTopoOrderAcyclic(t *testing.T) {
	b := &Block{Stmts: []Statement{
		{Line: 1, Op: "add"},
		{Line: 2, Op: "mul", Deps: []int{1}},
		{Line: 3, Op: "sub", Deps: []int{1, 2}},
	}}
	order, err := TopoOrder(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[int]int, len(order))
	for i, line := range order {
		pos[line] = i
	}
	if pos[1] >= pos[2] || pos[2] >= pos[3] {
		t.Fatalf("got order %v, want 1 before 2 before 3", order)
	}
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	b := &Block{Stmts: []Statement{
		{Line: 1, Op: "a", Deps: []int{2}},
		{Line: 2, Op: "b", Deps: []int{1}},
	}}
	if _, err := TopoOrder(b); err == nil {
		t.Fatalf("got nil error, want a cycle error")
	}
}

func TestValidateAddr(t *testing.T) {
	cases := []struct {
		name string
		addr Addr
		args int
		ok   bool
	}{
		{"const ok", ConstAddr(-8), 0, true},
		{"const positive rejected", Addr{Kind: AddrConst, Offset: 8}, 0, false},
		{"local ok", LocalAddr(0), 0, true},
		{"local negative rejected", Addr{Kind: AddrLocal, Offset: -1}, 0, false},
		{"closure in range", ClosureAddr(0), 2, true},
		{"closure out of range", ClosureAddr(2), 2, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateAddr(c.addr, c.args)
			if c.ok && err != nil {
				t.Fatalf("got error %v, want nil", err)
			}
			if !c.ok && err == nil {
				t.Fatalf("got nil error, want an error")
			}
		})
	}
}

func TestCheckDepClosureCatchesMissingDep(t *testing.T) {
	b := &Block{Stmts: []Statement{
		{Line: 1, Op: "add", Result: &Addr{Kind: AddrLocal, Offset: 0}},
		{Line: 2, Op: "use", Args: []Addr{{Kind: AddrLocal, Offset: 0}}}, // missing Deps: []int{1}
	}}
	producedBy := func(s *Statement, a Addr) (int, bool) {
		if a.Kind != AddrLocal {
			return 0, false
		}
		for _, other := range b.Stmts {
			if other.Result != nil && other.Result.Offset == a.Offset {
				return other.Line, true
			}
		}
		return 0, false
	}
	if err := CheckDepClosure(b, producedBy); err == nil {
		t.Fatalf("got nil error, want a missing-dependency error")
	}
}
