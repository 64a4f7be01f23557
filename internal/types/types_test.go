package types

import (
	"testing"

	"github.com/agc-lang/agc/internal/ir"
)

func TestScopeDefineRejectsRedefinition(t *testing.T) {
	s := NewScope()
	if err := s.Define(Binding{Name: "x", Kind: KindConst}); err != nil {
		t.Fatalf("first Define failed: %v", err)
	}
	if err := s.Define(Binding{Name: "x", Kind: KindFunc}); err == nil {
		t.Fatal("got nil error redefining \"x\", want an error")
	}
}

func TestScopeOverrideShadowsNames(t *testing.T) {
	s := NewScope()
	if err := s.Define(Binding{Name: "store", Kind: KindConst, Type: ir.Prim(ir.TyString)}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	s.Override = map[string]Binding{"store": {Name: "store", Kind: KindConst, Type: ir.Prim(ir.TyI64)}}
	b, ok := s.Lookup("store")
	if !ok {
		t.Fatal("Lookup(\"store\") = not found, want the override")
	}
	if b.Type.Kind != ir.TyI64 {
		t.Fatalf("Lookup(\"store\").Type = %v, want the override's TyI64", b.Type.Kind)
	}
}

func TestEvalTypeExprPrimitive(t *testing.T) {
	s := NewScope()
	ty, err := EvalTypeExpr(s, "i64")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ty.Kind != ir.TyI64 {
		t.Fatalf("got kind %v, want TyI64", ty.Kind)
	}
}

func TestEvalTypeExprUnresolved(t *testing.T) {
	s := NewScope()
	if _, err := EvalTypeExpr(s, "NotARealType"); err == nil {
		t.Fatal("got nil error for an unknown type name, want an error")
	}
}

func TestEvalTypeExprAlias(t *testing.T) {
	s := NewScope()
	if err := s.Define(Binding{Name: "Handle", Kind: KindType, Type: ir.Prim(ir.TyI64)}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	ty, err := EvalTypeExpr(s, "Handle")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ty.Kind != ir.TyI64 {
		t.Fatalf("alias \"Handle\" resolved to kind %v, want TyI64", ty.Kind)
	}
}

func TestDefaultOperatorsOrderedByPrecedence(t *testing.T) {
	// internal/grammar's binOpLevel tables must list the same operators at
	// the same relative precedence; this pins the table against silent drift.
	byPrec := map[string]int{}
	for _, op := range DefaultOperators {
		byPrec[op.Symbol] = op.Prec
	}
	if byPrec["||"] >= byPrec["&&"] {
		t.Fatalf("|| (%d) should bind looser than && (%d)", byPrec["||"], byPrec["&&"])
	}
	if byPrec["&&"] >= byPrec["=="] {
		t.Fatalf("&& (%d) should bind looser than == (%d)", byPrec["&&"], byPrec["=="])
	}
	if byPrec["+"] >= byPrec["*"] {
		t.Fatalf("+ (%d) should bind looser than * (%d)", byPrec["+"], byPrec["*"])
	}
}
