// Package ir holds the data model shared by every compiler stage after
// parsing: the type system, the IR-M/IR-G module shapes, and the BIN
// section types the assembler lays out. Keeping these in one package
// (rather than letting each stage define its own) mirrors the teacher's
// own std/compiler/ir.go, which is the single source of truth for
// TypeInfo/Opcode/IRFunc/IRModule consumed by every backend.
package ir

import "fmt"

// TypeKind enumerates the primitive and composite type shapes of spec
// section 3.
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyBool
	TyI8
	TyI16
	TyI32
	TyI64
	TyF32
	TyF64
	TyString
	TyError
	TyTuple
	TyLabeled
	TyEither
	TyBuffer  // T[N]: fixed-capacity
	TyArray   // T[]: variable length
	TyFunc
)

func (k TypeKind) String() string {
	switch k {
	case TyVoid:
		return "void"
	case TyBool:
		return "bool"
	case TyI8:
		return "i8"
	case TyI16:
		return "i16"
	case TyI32:
		return "i32"
	case TyI64:
		return "i64"
	case TyF32:
		return "f32"
	case TyF64:
		return "f64"
	case TyString:
		return "string"
	case TyError:
		return "Error"
	case TyTuple:
		return "tuple"
	case TyLabeled:
		return "labeled"
	case TyEither:
		return "either"
	case TyBuffer:
		return "buffer"
	case TyArray:
		return "array"
	case TyFunc:
		return "func"
	default:
		return fmt.Sprintf("ty(%d)", int(k))
	}
}

// Field is one labeled-field or tuple slot.
type Field struct {
	Name string // empty for unlabeled tuple slots
	Type *Type
}

// Type is a compile-time type. Composite kinds use the Elems/Elem fields;
// TyBuffer additionally carries N (fixed capacity).
type Type struct {
	Kind    TypeKind
	Elem    *Type   // TyArray, TyBuffer element type
	N       int     // TyBuffer capacity
	Fields  []Field // TyTuple, TyLabeled
	Alts    []*Type // TyEither: two or more alternative types
	Params  []*Type // TyFunc
	Results []*Type // TyFunc
}

// Size reports the byte size of scalar and fixed-capacity types; variable
// arrays and strings have no static size and return -1, matching the
// event payload-size convention of spec section 3 (0 void, 8 scalar, -1
// variable).
func (t *Type) Size() int {
	switch t.Kind {
	case TyVoid:
		return 0
	case TyBool, TyI8:
		return 1
	case TyI16:
		return 2
	case TyI32, TyF32:
		return 4
	case TyI64, TyF64:
		return 8
	case TyBuffer:
		if t.Elem == nil {
			return -1
		}
		es := t.Elem.Size()
		if es < 0 {
			return -1
		}
		return es * t.N
	default:
		return -1
	}
}

func (t *Type) String() string {
	switch t.Kind {
	case TyArray:
		return t.Elem.String() + "[]"
	case TyBuffer:
		return fmt.Sprintf("%s[%d]", t.Elem, t.N)
	case TyEither:
		s := "either{"
		for i, a := range t.Alts {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + "}"
	default:
		return t.Kind.String()
	}
}

// Convenience constructors used throughout lowering and the opcode table.
func Prim(k TypeKind) *Type { return &Type{Kind: k} }

func ArrayOf(elem *Type) *Type { return &Type{Kind: TyArray, Elem: elem} }

func BufferOf(elem *Type, n int) *Type { return &Type{Kind: TyBuffer, Elem: elem, N: n} }

// Fallible{T} = Either{T, Error}
func Fallible(t *Type) *Type { return &Type{Kind: TyEither, Alts: []*Type{t, Prim(TyError)}} }

// Maybe{T} = Either{T, ()}
func Maybe(t *Type) *Type { return &Type{Kind: TyEither, Alts: []*Type{t, Prim(TyVoid)}} }

// Equal performs a structural comparison, used by function-overload
// resolution in internal/types.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TyArray, TyBuffer:
		return a.N == b.N && Equal(a.Elem, b.Elem)
	case TyTuple, TyLabeled:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case TyEither:
		if len(a.Alts) != len(b.Alts) {
			return false
		}
		for i := range a.Alts {
			if !Equal(a.Alts[i], b.Alts[i]) {
				return false
			}
		}
		return true
	case TyFunc:
		if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		for i := range a.Results {
			if !Equal(a.Results[i], b.Results[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
