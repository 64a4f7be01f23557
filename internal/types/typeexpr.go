// typeexpr.go implements the compile-time type-expression evaluator spec
// section 4.C calls for beyond flat alias lookup: a small constant-folding
// interpreter supporting arithmetic and comparison over environment-
// supplied integers, boolean combination, a conditional that picks between
// two branches, Env{NAME}/EnvExists{NAME} environment lookup, and
// include{"path"}.Name file inclusion of a type alias declared elsewhere.
// It is a hand-rolled recursive-descent reader in the same spirit as
// internal/grammar's token-at-a-time scanning, kept separate from the
// internal/parse combinator kernel because its inputs are short, single-line
// type expressions rather than full program sources.
package types

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/agc-lang/agc/internal/ir"
)

// typeReader walks a type expression left to right. s.scope resolves plain
// identifiers (aliases and primitives); s.includeDepth guards against a
// cyclical include{} chain.
type typeReader struct {
	src          string
	pos          int
	scope        *Scope
	includeDepth int
}

func (r *typeReader) skipSpace() {
	for r.pos < len(r.src) && (r.src[r.pos] == ' ' || r.src[r.pos] == '\t') {
		r.pos++
	}
}

func (r *typeReader) peekWord(w string) bool {
	r.skipSpace()
	if !strings.HasPrefix(r.src[r.pos:], w) {
		return false
	}
	end := r.pos + len(w)
	if end < len(r.src) && isIdentRune(rune(r.src[end])) {
		return false
	}
	return true
}

func (r *typeReader) consumeWord(w string) bool {
	if !r.peekWord(w) {
		return false
	}
	r.pos += len(w)
	return true
}

func (r *typeReader) consumeByte(b byte) bool {
	r.skipSpace()
	if r.pos < len(r.src) && r.src[r.pos] == b {
		r.pos++
		return true
	}
	return false
}

func (r *typeReader) consumeOp(ops ...string) (string, bool) {
	r.skipSpace()
	for _, op := range ops {
		if strings.HasPrefix(r.src[r.pos:], op) {
			r.pos += len(op)
			return op, true
		}
	}
	return "", false
}

func isIdentRune(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func (r *typeReader) readIdent() (string, error) {
	r.skipSpace()
	start := r.pos
	for r.pos < len(r.src) && isIdentRune(rune(r.src[r.pos])) {
		r.pos++
	}
	if r.pos == start {
		return "", fmt.Errorf("expected identifier at %q", r.src[r.pos:])
	}
	return r.src[start:r.pos], nil
}

func (r *typeReader) readInt() (int64, error) {
	r.skipSpace()
	start := r.pos
	if r.pos < len(r.src) && r.src[r.pos] == '-' {
		r.pos++
	}
	for r.pos < len(r.src) && r.src[r.pos] >= '0' && r.src[r.pos] <= '9' {
		r.pos++
	}
	if r.pos == start {
		return 0, fmt.Errorf("expected integer at %q", r.src[r.pos:])
	}
	return strconv.ParseInt(r.src[start:r.pos], 10, 64)
}

func (r *typeReader) readStringLit() (string, error) {
	if !r.consumeByte('"') {
		return "", fmt.Errorf(`expected string literal at %q`, r.src[r.pos:])
	}
	start := r.pos
	for r.pos < len(r.src) && r.src[r.pos] != '"' {
		r.pos++
	}
	if r.pos >= len(r.src) {
		return "", fmt.Errorf("unterminated string literal")
	}
	s := r.src[start:r.pos]
	r.pos++
	return s, nil
}

// --- numeric expressions: + - * / over int literals and Env{NAME} ---

func (r *typeReader) numExpr() (int64, error) {
	v, err := r.numTerm()
	if err != nil {
		return 0, err
	}
	for {
		if op, ok := r.consumeOp("+", "-"); ok {
			rhs, err := r.numTerm()
			if err != nil {
				return 0, err
			}
			if op == "+" {
				v += rhs
			} else {
				v -= rhs
			}
			continue
		}
		return v, nil
	}
}

func (r *typeReader) numTerm() (int64, error) {
	v, err := r.numFactor()
	if err != nil {
		return 0, err
	}
	for {
		if op, ok := r.consumeOp("*", "/"); ok {
			rhs, err := r.numFactor()
			if err != nil {
				return 0, err
			}
			if op == "*" {
				v *= rhs
			} else {
				if rhs == 0 {
					return 0, fmt.Errorf("type expression: division by zero")
				}
				v /= rhs
			}
			continue
		}
		return v, nil
	}
}

func (r *typeReader) numFactor() (int64, error) {
	if r.consumeByte('(') {
		v, err := r.numExpr()
		if err != nil {
			return 0, err
		}
		if !r.consumeByte(')') {
			return 0, fmt.Errorf("expected )")
		}
		return v, nil
	}
	if r.consumeWord("Env") {
		return r.envInt()
	}
	return r.readInt()
}

func (r *typeReader) envInt() (int64, error) {
	if !r.consumeByte('{') {
		return 0, fmt.Errorf("expected { after Env")
	}
	name, err := r.readIdent()
	if err != nil {
		return 0, err
	}
	if !r.consumeByte('}') {
		return 0, fmt.Errorf("expected } closing Env{%s", name)
	}
	v, _ := strconv.ParseInt(os.Getenv(name), 10, 64) // unset/unparsable -> 0
	return v, nil
}

// --- boolean expressions: || && comparisons EnvExists{} true/false ---

func (r *typeReader) boolExpr() (bool, error) {
	v, err := r.boolAnd()
	if err != nil {
		return false, err
	}
	for r.peekWord("||") || strings.HasPrefix(r.rest(), "||") {
		r.consumeOp("||")
		rhs, err := r.boolAnd()
		if err != nil {
			return false, err
		}
		v = v || rhs
	}
	return v, nil
}

func (r *typeReader) rest() string {
	r.skipSpace()
	return r.src[r.pos:]
}

func (r *typeReader) boolAnd() (bool, error) {
	v, err := r.boolCmp()
	if err != nil {
		return false, err
	}
	for strings.HasPrefix(r.rest(), "&&") {
		r.consumeOp("&&")
		rhs, err := r.boolCmp()
		if err != nil {
			return false, err
		}
		v = v && rhs
	}
	return v, nil
}

func (r *typeReader) boolCmp() (bool, error) {
	if r.consumeByte('(') {
		v, err := r.boolExpr()
		if err != nil {
			return false, err
		}
		if !r.consumeByte(')') {
			return false, fmt.Errorf("expected )")
		}
		return v, nil
	}
	if r.consumeWord("true") {
		return true, nil
	}
	if r.consumeWord("false") {
		return false, nil
	}
	if r.consumeWord("EnvExists") {
		if !r.consumeByte('{') {
			return false, fmt.Errorf("expected { after EnvExists")
		}
		name, err := r.readIdent()
		if err != nil {
			return false, err
		}
		if !r.consumeByte('}') {
			return false, fmt.Errorf("expected } closing EnvExists{%s", name)
		}
		_, ok := os.LookupEnv(name)
		return ok, nil
	}
	// fall through to a numeric comparison
	save := r.pos
	lhs, err := r.numExpr()
	if err != nil {
		r.pos = save
		return false, fmt.Errorf("expected boolean expression at %q", r.rest())
	}
	op, ok := r.consumeOp("==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return false, fmt.Errorf("expected comparison operator at %q", r.rest())
	}
	rhs, err := r.numExpr()
	if err != nil {
		return false, err
	}
	switch op {
	case "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	case "<=":
		return lhs <= rhs, nil
	case ">=":
		return lhs >= rhs, nil
	case "<":
		return lhs < rhs, nil
	default:
		return lhs > rhs, nil
	}
}

// --- type-valued expressions: identifiers, include{}, and the conditional ---

func (r *typeReader) typeExpr() (*ir.Type, error) {
	if r.consumeWord("if") {
		cond, err := r.boolExpr()
		if err != nil {
			return nil, err
		}
		if !r.consumeWord("then") {
			return nil, fmt.Errorf("expected \"then\"")
		}
		thenT, err := r.typeExpr()
		if err != nil {
			return nil, err
		}
		if !r.consumeWord("else") {
			return nil, fmt.Errorf("expected \"else\"")
		}
		elseT, err := r.typeExpr()
		if err != nil {
			return nil, err
		}
		if cond {
			return thenT, nil
		}
		return elseT, nil
	}
	if r.consumeWord("include") {
		return r.includeType()
	}
	name, err := r.readIdent()
	if err != nil {
		return nil, err
	}
	return evalPlainName(r.scope, name)
}

var typeAliasDecl = regexp.MustCompile(`(?m)^\s*type\s+(\w+)\s*=\s*(.+?)\s*$`)

// includeType reads include{"path"}.Name: it loads path from disk, scans it
// for a "type Name = <expr>" declaration, and folds that expression in a
// fresh scope. A depth guard turns an include cycle into an error instead
// of a stack overflow.
func (r *typeReader) includeType() (*ir.Type, error) {
	if !r.consumeByte('{') {
		return nil, fmt.Errorf("expected { after include")
	}
	path, err := r.readStringLit()
	if err != nil {
		return nil, err
	}
	if !r.consumeByte('}') {
		return nil, fmt.Errorf("expected } closing include{...}")
	}
	if !r.consumeByte('.') {
		return nil, fmt.Errorf("expected .Name after include{%q}", path)
	}
	name, err := r.readIdent()
	if err != nil {
		return nil, err
	}
	if r.includeDepth > 8 {
		return nil, fmt.Errorf("include{%q}: nesting too deep (cycle?)", path)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("include{%q}: %w", path, err)
	}
	for _, m := range typeAliasDecl.FindAllStringSubmatch(string(contents), -1) {
		if m[1] != name {
			continue
		}
		sub := &typeReader{src: m[2], scope: r.scope, includeDepth: r.includeDepth + 1}
		return sub.typeExpr()
	}
	return nil, fmt.Errorf("include{%q}: no \"type %s = ...\" declaration found", path, name)
}

func evalPlainName(s *Scope, name string) (*ir.Type, error) {
	if b, ok := s.Lookup(name); ok && b.Kind == KindType {
		return b.Type, nil
	}
	if t, ok := primitiveTypes[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unresolved type %q", name)
}

// isCompoundTypeExpr reports whether name needs the constant-folding reader
// rather than a plain alias/primitive lookup: every construct this file
// adds (if/include/Env/EnvExists) introduces a byte a bare identifier never
// contains.
func isCompoundTypeExpr(name string) bool {
	return strings.ContainsAny(name, "{ ")
}

func evalCompoundTypeExpr(s *Scope, name string) (*ir.Type, error) {
	r := &typeReader{src: name, scope: s}
	t, err := r.typeExpr()
	if err != nil {
		return nil, err
	}
	if rest := r.rest(); rest != "" {
		return nil, fmt.Errorf("unexpected trailing input %q in type expression %q", rest, name)
	}
	return t, nil
}
