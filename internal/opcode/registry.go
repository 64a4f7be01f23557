package opcode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/agc-lang/agc/internal/ir"
)

// Mutability describes whether an argument slot may be written back into
// by the opcode (spec section 4.G's argument mutability flag). It is
// declared per argument and folded into Signature; internal/lowerg's
// dependency inference does not read it and derives edges from result
// addresses alone.
type Mutability int

const (
	Immutable Mutability = iota
	Mutable
)

type ArgSpec struct {
	Type       *ir.Type
	Mutability Mutability
}

// Opcode is one entry in the built-in operation registry.
type Opcode struct {
	Name   string
	Args   []ArgSpec
	Result *ir.Type
	Cost   int // relative execution cost, consulted by ShouldDispatchGPU
	Eval   func(args []Value) (Value, error)
}

// Signature hashes the opcode's name and declared shape with xxhash/v2.
// Nothing in this module calls it: the BIN layout carries no per-opcode
// signature, and internal/runtime raises no diag.LinkOpcode diagnostic.
func (o *Opcode) Signature() uint64 {
	var sb strings.Builder
	sb.WriteString(o.Name)
	for _, a := range o.Args {
		sb.WriteByte('|')
		sb.WriteString(a.Type.String())
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(a.Mutability)))
	}
	if o.Result != nil {
		sb.WriteString("->")
		sb.WriteString(o.Result.String())
	}
	return xxhash.Sum64String(sb.String())
}

var registry = map[string]*Opcode{}

func register(o *Opcode) {
	if _, exists := registry[o.Name]; exists {
		panic(fmt.Sprintf("opcode %s registered twice", o.Name))
	}
	registry[o.Name] = o
}

// Lookup resolves an opcode by name, as every lowerg/assemble/runtime
// stage needs to when it sees a statement's Op field.
func Lookup(name string) (*Opcode, bool) {
	o, ok := registry[name]
	return o, ok
}

// Names reports every registered opcode, used by internal/lowerg's
// ResolveCallTargets to build its set of known builtins.
func Names() map[string]bool {
	out := make(map[string]bool, len(registry))
	for n := range registry {
		out[n] = true
	}
	return out
}

func init() {
	registerConv()
	registerArith()
	registerBitwise()
	registerLogic()
	registerCompare()
	registerString()
	registerArray()
	registerClosure()
	registerResult()
	registerTime()
	registerMisc()
	registerIO()
	registerDatastore()
}

func i64Arg() ArgSpec          { return ArgSpec{Type: ir.Prim(ir.TyI64)} }
func f64Arg() ArgSpec          { return ArgSpec{Type: ir.Prim(ir.TyF64)} }
func boolArg() ArgSpec         { return ArgSpec{Type: ir.Prim(ir.TyBool)} }
func strArg() ArgSpec          { return ArgSpec{Type: ir.Prim(ir.TyString)} }
func funcArg() ArgSpec         { return ArgSpec{Type: ir.Prim(ir.TyFunc)} }
func arrI64Arg() ArgSpec       { return ArgSpec{Type: ir.ArrayOf(ir.Prim(ir.TyI64))} }

// registerArith declares the per-width saturating/wrapping integer
// arithmetic and the float arithmetic of spec section 4.G. Saturating is
// the default opcode name (add/sub/mul); the explicit _wrap suffix gets
// the truncating behavior. Narrower widths reuse the same width-
// parameterized addAt/subAt/mulAt helpers arith.go already declares,
// clamping their int64 operands to the narrow width on the way in so a
// mis-widened operand from an earlier statement can't silently smuggle
// extra bits through.
func registerArith() {
	type entry struct {
		suffix string
		bits   int
		ty     *ir.Type
	}
	widths := []entry{
		{"i8", 8, ir.Prim(ir.TyI8)},
		{"i16", 16, ir.Prim(ir.TyI16)},
		{"i32", 32, ir.Prim(ir.TyI32)},
		{"i64", 64, ir.Prim(ir.TyI64)},
	}
	type op struct {
		name string
		fn   func(bits int, a, b int64, saturating bool) int64
	}
	ops := []op{{"add", addAt}, {"sub", subAt}, {"mul", mulAt}}
	for _, w := range widths {
		bits, ty := w.bits, w.ty
		for _, o := range ops {
			fn := o.fn
			name := o.name
			if bits != 64 {
				name = o.name + "_" + w.suffix
			}
			register(&Opcode{
				Name: name, Args: []ArgSpec{{Type: ty}, {Type: ty}}, Result: ty, Cost: 1,
				Eval: func(args []Value) (Value, error) {
					return Value{Type: ty, I: clamp(fn(bits, clamp(args[0].I, bits), clamp(args[1].I, bits), true), bits)}, nil
				},
			})
			wrapName := o.name + "_wrap"
			if bits != 64 {
				wrapName = o.name + "_wrap_" + w.suffix
			}
			register(&Opcode{
				Name: wrapName, Args: []ArgSpec{{Type: ty}, {Type: ty}}, Result: ty, Cost: 1,
				Eval: func(args []Value) (Value, error) {
					return Value{Type: ty, I: wrap(fn(bits, wrap(args[0].I, bits), wrap(args[1].I, bits), false), bits)}, nil
				},
			})
		}
		register(&Opcode{
			Name: "neg_" + w.suffix, Args: []ArgSpec{{Type: ty}}, Result: ty, Cost: 1,
			Eval: func(args []Value) (Value, error) { return Value{Type: ty, I: clamp(-args[0].I, bits)}, nil },
		})
		register(&Opcode{
			Name: "abs_" + w.suffix, Args: []ArgSpec{{Type: ty}}, Result: ty, Cost: 1,
			Eval: func(args []Value) (Value, error) {
				v := args[0].I
				if v < 0 {
					v = -v
				}
				return Value{Type: ty, I: clamp(v, bits)}, nil
			},
		})
		register(&Opcode{
			Name: "min_" + w.suffix, Args: []ArgSpec{{Type: ty}, {Type: ty}}, Result: ty, Cost: 1,
			Eval: func(args []Value) (Value, error) {
				if args[0].I < args[1].I {
					return Value{Type: ty, I: args[0].I}, nil
				}
				return Value{Type: ty, I: args[1].I}, nil
			},
		})
		register(&Opcode{
			Name: "max_" + w.suffix, Args: []ArgSpec{{Type: ty}, {Type: ty}}, Result: ty, Cost: 1,
			Eval: func(args []Value) (Value, error) {
				if args[0].I > args[1].I {
					return Value{Type: ty, I: args[0].I}, nil
				}
				return Value{Type: ty, I: args[1].I}, nil
			},
		})
		register(&Opcode{
			Name: "pow_" + w.suffix, Args: []ArgSpec{{Type: ty}, {Type: ty}}, Result: ty, Cost: 2,
			Eval: func(args []Value) (Value, error) {
				return Value{Type: ty, I: clamp(int64(math.Pow(float64(args[0].I), float64(args[1].I))), bits)}, nil
			},
		})
	}
	// Unsuffixed aliases at the canonical 64-bit width, matching the plain
	// add/sub/mul naming already used elsewhere in the registry and tests.
	register(&Opcode{
		Name: "neg", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(clamp(-args[0].I, 64)), nil },
	})
	register(&Opcode{
		Name: "abs", Args: []ArgSpec{i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			v := args[0].I
			if v < 0 {
				v = -v
			}
			return I64(clamp(v, 64)), nil
		},
	})
	register(&Opcode{
		Name: "min", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].I < args[1].I {
				return I64(args[0].I), nil
			}
			return I64(args[1].I), nil
		},
	})
	register(&Opcode{
		Name: "max", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].I > args[1].I {
				return I64(args[0].I), nil
			}
			return I64(args[1].I), nil
		},
	})
	register(&Opcode{
		Name: "pow", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			return I64(clamp(int64(math.Pow(float64(args[0].I), float64(args[1].I))), 64)), nil
		},
	})
	register(&Opcode{
		Name: "div", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Fallible(ir.Prim(ir.TyI64)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			if args[1].I == 0 {
				return Err(ir.Prim(ir.TyI64), fmt.Errorf("division by zero")), nil
			}
			return Ok(ir.Prim(ir.TyI64), I64(clamp(args[0].I/args[1].I, 64))), nil
		},
	})
	register(&Opcode{
		Name: "rem", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Fallible(ir.Prim(ir.TyI64)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			if args[1].I == 0 {
				return Err(ir.Prim(ir.TyI64), fmt.Errorf("division by zero")), nil
			}
			return Ok(ir.Prim(ir.TyI64), I64(args[0].I%args[1].I)), nil
		},
	})
	register(&Opcode{
		Name: "shl", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(args[0].I << uint64(args[1].I&63)), nil },
	})
	register(&Opcode{
		Name: "shr", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(args[0].I >> uint64(args[1].I&63)), nil },
	})
	// wrl/wrr: width-preserving rotate left/right over 64-bit operands.
	register(&Opcode{
		Name: "wrl", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			n := uint64(args[1].I & 63)
			u := uint64(args[0].I)
			return I64(int64(u<<n | u>>(64-n))), nil
		},
	})
	register(&Opcode{
		Name: "wrr", Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			n := uint64(args[1].I & 63)
			u := uint64(args[0].I)
			return I64(int64(u>>n | u<<(64-n))), nil
		},
	})

	// Float arithmetic: saturating has no meaning for IEEE floats, so there
	// is only one add/sub/mul/div family, with div Fallible on a zero
	// divisor like its integer counterpart.
	type fop struct {
		name string
		fn   func(a, b float64) float64
	}
	for _, o := range []fop{
		{"fadd", func(a, b float64) float64 { return a + b }},
		{"fsub", func(a, b float64) float64 { return a - b }},
		{"fmul", func(a, b float64) float64 { return a * b }},
	} {
		fn := o.fn
		register(&Opcode{
			Name: o.name, Args: []ArgSpec{f64Arg(), f64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 1,
			Eval: func(args []Value) (Value, error) { return F64(fn(args[0].F, args[1].F)), nil },
		})
	}
	register(&Opcode{
		Name: "fdiv", Args: []ArgSpec{f64Arg(), f64Arg()}, Result: ir.Fallible(ir.Prim(ir.TyF64)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			if args[1].F == 0 {
				return Err(ir.Prim(ir.TyF64), fmt.Errorf("division by zero")), nil
			}
			return Ok(ir.Prim(ir.TyF64), F64(args[0].F/args[1].F)), nil
		},
	})
	register(&Opcode{
		Name: "fneg", Args: []ArgSpec{f64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return F64(-args[0].F), nil },
	})
	register(&Opcode{
		Name: "fabs", Args: []ArgSpec{f64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return F64(math.Abs(args[0].F)), nil },
	})
	register(&Opcode{
		Name: "fmin", Args: []ArgSpec{f64Arg(), f64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return F64(math.Min(args[0].F, args[1].F)), nil },
	})
	register(&Opcode{
		Name: "fmax", Args: []ArgSpec{f64Arg(), f64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return F64(math.Max(args[0].F, args[1].F)), nil },
	})
	register(&Opcode{
		Name: "fpow", Args: []ArgSpec{f64Arg(), f64Arg()}, Result: ir.Prim(ir.TyF64), Cost: 2,
		Eval: func(args []Value) (Value, error) { return F64(math.Pow(args[0].F, args[1].F)), nil },
	})
}

// registerBitwise declares the integer bitwise and boolean-logic
// xor/nand/nor/xnor opcodes (spec section 4.G); and/or/not live in
// registerLogic alongside the boolean forms they're paired with.
func registerBitwise() {
	type entry struct {
		name string
		fn   func(a, b int64) int64
	}
	for _, e := range []entry{
		{"xor", func(a, b int64) int64 { return a ^ b }},
		{"nand", func(a, b int64) int64 { return ^(a & b) }},
		{"nor", func(a, b int64) int64 { return ^(a | b) }},
		{"xnor", func(a, b int64) int64 { return ^(a ^ b) }},
	} {
		fn := e.fn
		register(&Opcode{
			Name: e.name, Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
			Eval: func(args []Value) (Value, error) { return I64(fn(args[0].I, args[1].I)), nil },
		})
	}
	type bentry struct {
		name string
		fn   func(a, b bool) bool
	}
	for _, e := range []bentry{
		{"bxor", func(a, b bool) bool { return a != b }},
		{"bnand", func(a, b bool) bool { return !(a && b) }},
		{"bnor", func(a, b bool) bool { return !(a || b) }},
		{"bxnor", func(a, b bool) bool { return a == b }},
	} {
		fn := e.fn
		register(&Opcode{
			Name: e.name, Args: []ArgSpec{boolArg(), boolArg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
			Eval: func(args []Value) (Value, error) { return Bool(fn(args[0].B, args[1].B)), nil },
		})
	}
}

func registerLogic() {
	register(&Opcode{
		Name: "and", Args: []ArgSpec{boolArg(), boolArg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Bool(args[0].B && args[1].B), nil },
	})
	register(&Opcode{
		Name: "or", Args: []ArgSpec{boolArg(), boolArg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Bool(args[0].B || args[1].B), nil },
	})
	register(&Opcode{
		Name: "not", Args: []ArgSpec{boolArg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Bool(!args[0].B), nil },
	})
}

func registerCompare() {
	type entry struct {
		name string
		cmp  func(a, b int64) bool
	}
	for _, e := range []entry{
		{"eq", func(a, b int64) bool { return a == b }},
		{"neq", func(a, b int64) bool { return a != b }},
		{"lt", func(a, b int64) bool { return a < b }},
		{"lte", func(a, b int64) bool { return a <= b }},
		{"gt", func(a, b int64) bool { return a > b }},
		{"gte", func(a, b int64) bool { return a >= b }},
	} {
		cmp := e.cmp
		register(&Opcode{
			Name: e.name, Args: []ArgSpec{i64Arg(), i64Arg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
			Eval: func(args []Value) (Value, error) { return Bool(cmp(args[0].I, args[1].I)), nil },
		})
	}
	type fentry struct {
		name string
		cmp  func(a, b float64) bool
	}
	for _, e := range []fentry{
		{"feq", func(a, b float64) bool { return a == b }},
		{"fneq", func(a, b float64) bool { return a != b }},
		{"flt", func(a, b float64) bool { return a < b }},
		{"flte", func(a, b float64) bool { return a <= b }},
		{"fgt", func(a, b float64) bool { return a > b }},
		{"fgte", func(a, b float64) bool { return a >= b }},
	} {
		cmp := e.cmp
		register(&Opcode{
			Name: e.name, Args: []ArgSpec{f64Arg(), f64Arg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
			Eval: func(args []Value) (Value, error) { return Bool(cmp(args[0].F, args[1].F)), nil },
		})
	}
}

func registerString() {
	register(&Opcode{
		Name: "concat", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyString), Cost: 2,
		Eval: func(args []Value) (Value, error) { return Str(args[0].S + args[1].S), nil },
	})
	register(&Opcode{
		Name: "strlen", Args: []ArgSpec{strArg()}, Result: ir.Prim(ir.TyI64), Cost: 1,
		Eval: func(args []Value) (Value, error) { return I64(int64(len(args[0].S))), nil },
	})
	register(&Opcode{
		Name: "hash64", Args: []ArgSpec{strArg()}, Result: ir.Prim(ir.TyI64), Cost: 2,
		Eval: func(args []Value) (Value, error) { return I64(int64(xxhash.Sum64String(args[0].S))), nil },
	})
	register(&Opcode{
		Name: "strrepeat", Args: []ArgSpec{strArg(), i64Arg()}, Result: ir.Prim(ir.TyString), Cost: 3,
		Eval: func(args []Value) (Value, error) {
			if args[1].I < 0 {
				return Value{}, fmt.Errorf("strrepeat: negative count")
			}
			return Str(strings.Repeat(args[0].S, int(args[1].I))), nil
		},
	})
	register(&Opcode{
		Name: "strsplit", Args: []ArgSpec{strArg(), strArg()}, Result: ir.ArrayOf(ir.Prim(ir.TyString)), Cost: 3,
		Eval: func(args []Value) (Value, error) {
			parts := strings.Split(args[0].S, args[1].S)
			out := make([]Value, len(parts))
			for i, p := range parts {
				out[i] = Str(p)
			}
			return Arr(ir.Prim(ir.TyString), out), nil
		},
	})
	register(&Opcode{
		Name: "strget", Args: []ArgSpec{strArg(), i64Arg()}, Result: ir.Fallible(ir.Prim(ir.TyString)), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			rs := []rune(args[0].S)
			i := args[1].I
			if i < 0 || i >= int64(len(rs)) {
				return Err(ir.Prim(ir.TyString), fmt.Errorf("strget: index %d out of range", i)), nil
			}
			return Ok(ir.Prim(ir.TyString), Str(string(rs[i]))), nil
		},
	})
	register(&Opcode{
		Name: "strtochararray", Args: []ArgSpec{strArg()}, Result: ir.ArrayOf(ir.Prim(ir.TyString)), Cost: 2,
		Eval: func(args []Value) (Value, error) {
			rs := []rune(args[0].S)
			out := make([]Value, len(rs))
			for i, r := range rs {
				out[i] = Str(string(r))
			}
			return Arr(ir.Prim(ir.TyString), out), nil
		},
	})
	register(&Opcode{
		Name: "strtrim", Args: []ArgSpec{strArg()}, Result: ir.Prim(ir.TyString), Cost: 1,
		Eval: func(args []Value) (Value, error) { return Str(strings.TrimSpace(args[0].S)), nil },
	})
	register(&Opcode{
		Name: "strindex", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyI64), Cost: 2,
		Eval: func(args []Value) (Value, error) { return I64(int64(strings.Index(args[0].S, args[1].S))), nil },
	})
	register(&Opcode{
		Name: "strjoin", Args: []ArgSpec{{Type: ir.ArrayOf(ir.Prim(ir.TyString))}, strArg()}, Result: ir.Prim(ir.TyString), Cost: 3,
		Eval: func(args []Value) (Value, error) {
			parts := make([]string, len(args[0].Arr))
			for i, v := range args[0].Arr {
				parts[i] = v.S
			}
			return Str(strings.Join(parts, args[1].S)), nil
		},
	})
	register(&Opcode{
		Name: "strmatches", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyBool), Cost: 2,
		Eval: func(args []Value) (Value, error) { return Bool(strings.Contains(args[0].S, args[1].S)), nil },
	})
	type sentry struct {
		name string
		fn   func(a, b string) bool
	}
	for _, e := range []sentry{
		{"streq", func(a, b string) bool { return a == b }},
		{"strneq", func(a, b string) bool { return a != b }},
		{"strlt", func(a, b string) bool { return a < b }},
		{"strlte", func(a, b string) bool { return a <= b }},
		{"strgt", func(a, b string) bool { return a > b }},
		{"strgte", func(a, b string) bool { return a >= b }},
	} {
		fn := e.fn
		register(&Opcode{
			Name: e.name, Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyBool), Cost: 1,
			Eval: func(args []Value) (Value, error) { return Bool(fn(args[0].S, args[1].S)), nil },
		})
	}
	register(&Opcode{
		Name: "strmin", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyString), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].S < args[1].S {
				return Str(args[0].S), nil
			}
			return Str(args[1].S), nil
		},
	})
	register(&Opcode{
		Name: "strmax", Args: []ArgSpec{strArg(), strArg()}, Result: ir.Prim(ir.TyString), Cost: 1,
		Eval: func(args []Value) (Value, error) {
			if args[0].S > args[1].S {
				return Str(args[0].S), nil
			}
			return Str(args[1].S), nil
		},
	})
}

func registerMisc() {
	register(&Opcode{
		Name: "stdoutp", Args: []ArgSpec{strArg()}, Result: ir.Prim(ir.TyVoid), Cost: 5,
		Eval: func(args []Value) (Value, error) { return Void(), nil }, // internal/runtime overrides via WithIO
	})
	register(&Opcode{
		Name: "stderrp", Args: []ArgSpec{strArg()}, Result: ir.Prim(ir.TyVoid), Cost: 5,
		Eval: func(args []Value) (Value, error) { return Void(), nil },
	})
}
