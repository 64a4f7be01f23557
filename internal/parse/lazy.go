package parse

// lazyNode defers resolving its inner Node until first use, which is what
// lets a grammar's rules reference each other recursively (an expression
// grammar where a call's arguments are themselves expressions) without
// hitting Go's package-level initialization-cycle restriction.
type lazyNode struct {
	build func() Node
	inner Node
}

// Lazy wraps a rule defined in terms of other not-yet-initialized
// package-level rules. build is called once, on first Check/Apply.
func Lazy(build func() Node) Node { return &lazyNode{build: build} }

func (l *lazyNode) resolve() Node {
	if l.inner == nil {
		l.inner = l.build()
	}
	return l.inner
}

func (l *lazyNode) Check(c Cursor) bool { return l.resolve().Check(c) }

func (l *lazyNode) Apply(c Cursor) (Cursor, *CST, *Fail) { return l.resolve().Apply(c) }
