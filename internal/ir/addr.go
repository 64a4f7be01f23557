package ir

import "math"

// AddrKind distinguishes the four places a statement's input/output
// address can refer to, per spec section 3's invariant 1.
type AddrKind int

const (
	AddrConst     AddrKind = iota // constant pool, negative offset @-k
	AddrLocal                     // this handler's memory, non-negative offset @k
	AddrClosure                   // ancestor closure's argument rereference slot
	AddrImmediate                  // a literal typed value carried inline
)

// ClosureArgBase is the most-negative int64, the start of the reserved
// closure-argument rereference address window (spec section 3).
const ClosureArgBase = int64(math.MinInt64)

// Addr is one statement operand or result location.
type Addr struct {
	Kind   AddrKind
	Offset int64 // meaning depends on Kind: const-pool offset, local offset, or closure-arg slot index
	Imm    Immediate
}

// Immediate is a typed literal value appearing directly in a statement,
// e.g. 42i64, 3.14f64, true, "...".
type Immediate struct {
	Type *Type
	I    int64
	F    float64
	B    bool
	S    string
}

func ConstAddr(offset int64) Addr { return Addr{Kind: AddrConst, Offset: offset} }
func LocalAddr(offset int64) Addr { return Addr{Kind: AddrLocal, Offset: offset} }

// ClosureAddr builds a closure-argument rereference address for the
// slot-th captured argument of the closure currently being lowered, i.e.
// ClosureArgBase + slot, which must lie in [ClosureArgBase,
// ClosureArgBase+K) for a K-argument closure (testable property 4).
func ClosureAddr(slot int) Addr {
	return Addr{Kind: AddrClosure, Offset: ClosureArgBase + int64(slot)}
}

func ImmAddr(v Immediate) Addr { return Addr{Kind: AddrImmediate, Imm: v} }

func (a Addr) String() string {
	switch a.Kind {
	case AddrConst:
		return fmtAddr("@", a.Offset)
	case AddrLocal:
		return fmtAddr("@", a.Offset)
	case AddrClosure:
		return fmtAddr("@", a.Offset)
	default:
		return "<imm>"
	}
}

func fmtAddr(prefix string, off int64) string {
	if off < 0 {
		return prefix + "-" + itoa(-off)
	}
	return prefix + itoa(off)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
