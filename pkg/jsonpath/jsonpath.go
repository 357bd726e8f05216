// Package jsonpath evaluates dotted/bracketed path expressions against a
// nested map-or-list operand. The dialect supports attribute segments,
// numeric and quoted-key bracket segments, the wildcard [*], filter
// predicates [?field == value], recursive descent (..name), and
// substitution segments ([s/pattern/replacement/]) that regex-replace
// string leaves.
package jsonpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

type segment interface {
	apply(matches []types.Value) []types.Value
}

// attrSeg matches a map key; recursive descends the whole subtree.
type attrSeg struct {
	name      string
	recursive bool
}

func (s attrSeg) apply(matches []types.Value) []types.Value {
	var out []types.Value
	for _, m := range matches {
		if s.recursive {
			collectRecursive(m, s.name, &out)
			continue
		}
		if m.Type() == types.TypeMap {
			if v, ok := m.AsMap().Get(s.name); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

func collectRecursive(v types.Value, name string, out *[]types.Value) {
	switch v.Type() {
	case types.TypeMap:
		m := v.AsMap()
		// Matches at this level precede matches in descendants.
		for _, k := range m.Keys() {
			if k == name {
				child, _ := m.Get(k)
				*out = append(*out, child)
			}
		}
		for _, k := range m.Keys() {
			child, _ := m.Get(k)
			collectRecursive(child, name, out)
		}
	case types.TypeList:
		for _, item := range v.AsList() {
			collectRecursive(item, name, out)
		}
	}
}

// indexSeg matches a list element; negative indices count from the end.
type indexSeg struct {
	idx int
}

func (s indexSeg) apply(matches []types.Value) []types.Value {
	var out []types.Value
	for _, m := range matches {
		if m.Type() != types.TypeList {
			continue
		}
		list := m.AsList()
		i := s.idx
		if i < 0 {
			i = len(list) + i
		}
		if i >= 0 && i < len(list) {
			out = append(out, list[i])
		}
	}
	return out
}

// wildcardSeg matches every list element or map value.
type wildcardSeg struct{}

func (s wildcardSeg) apply(matches []types.Value) []types.Value {
	var out []types.Value
	for _, m := range matches {
		switch m.Type() {
		case types.TypeList:
			out = append(out, m.AsList()...)
		case types.TypeMap:
			om := m.AsMap()
			for _, k := range om.Keys() {
				v, _ := om.Get(k)
				out = append(out, v)
			}
		}
	}
	return out
}

// keySeg matches a quoted map key (allows dots, leading underscores, and
// other characters that would collide with path syntax).
type keySeg struct {
	key string
}

func (s keySeg) apply(matches []types.Value) []types.Value {
	var out []types.Value
	for _, m := range matches {
		if m.Type() == types.TypeMap {
			if v, ok := m.AsMap().Get(s.key); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// filterSeg keeps list elements whose attribute path compares true
// against a literal.
type filterSeg struct {
	attrs []string
	op    string
	lit   types.Value
}

func (s filterSeg) apply(matches []types.Value) []types.Value {
	var out []types.Value
	for _, m := range matches {
		if m.Type() != types.TypeList {
			continue
		}
		for _, item := range m.AsList() {
			field := item
			ok := true
			for _, attr := range s.attrs {
				if field.Type() != types.TypeMap {
					ok = false
					break
				}
				v, found := field.AsMap().Get(attr)
				if !found {
					ok = false
					break
				}
				field = v
			}
			if ok && s.compare(field) {
				out = append(out, item)
			}
		}
	}
	return out
}

func (s filterSeg) compare(v types.Value) bool {
	switch s.op {
	case "==":
		return v.Equal(s.lit)
	case "!=":
		return !v.Equal(s.lit)
	}
	a, aOk := v.AsNumber()
	b, bOk := s.lit.AsNumber()
	if aOk && bOk {
		switch s.op {
		case "<":
			return a < b
		case "<=":
			return a <= b
		case ">":
			return a > b
		case ">=":
			return a >= b
		}
	}
	if v.Type() == types.TypeString && s.lit.Type() == types.TypeString {
		cmp := strings.Compare(v.AsString(), s.lit.AsString())
		switch s.op {
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		}
	}
	return false
}

// subSeg regex-replaces string leaves; non-string matches pass through
// unchanged.
type subSeg struct {
	re   *regexp.Regexp
	repl string
}

func (s subSeg) apply(matches []types.Value) []types.Value {
	out := make([]types.Value, 0, len(matches))
	for _, m := range matches {
		if m.Type() == types.TypeString {
			out = append(out, types.NewString(s.re.ReplaceAllString(m.AsString(), s.repl)))
		} else {
			out = append(out, m)
		}
	}
	return out
}

// Resolve evaluates a path expression against the operand.
//
// If the compiled path yields more than one match, or the path contains
// an explicit wildcard segment, the result is the list of all matches in
// document order. A single match without a wildcard segment is returned
// bare. Zero matches fail in strict mode and return Null in non-strict
// mode.
func Resolve(path string, operand types.Value, strict bool) (types.Value, error) {
	if operand.Type() != types.TypeMap && operand.Type() != types.TypeList {
		return types.Null, types.NewOperandTypeError(operand.Type())
	}

	segs, err := compile(path)
	if err != nil {
		return types.Null, err
	}

	matches := []types.Value{operand}
	for _, seg := range segs {
		matches = seg.apply(matches)
		if len(matches) == 0 {
			break
		}
	}

	wildcard := false
	for _, seg := range segs {
		if _, ok := seg.(wildcardSeg); ok {
			wildcard = true
			break
		}
	}

	switch {
	case len(matches) == 0:
		if strict {
			err := types.NewNoMatchError(path)
			err.WithDetail("expression", types.NewString(path))
			err.WithDetail("operand", operand)
			return types.Null, err
		}
		return types.Null, nil
	case len(matches) == 1 && !wildcard:
		return matches[0], nil
	default:
		return types.NewList(matches), nil
	}
}

// compile parses the path text into segments.
func compile(path string) ([]segment, error) {
	s := &scanner{input: path, path: path}

	// Optional root marker.
	if strings.HasPrefix(s.input, "$") {
		s.pos++
	}

	var segs []segment
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		switch {
		case ch == '.':
			if s.pos+1 < len(s.input) && s.input[s.pos+1] == '.' {
				s.pos += 2
				name, err := s.readIdent()
				if err != nil {
					return nil, err
				}
				segs = append(segs, attrSeg{name: name, recursive: true})
			} else {
				s.pos++
				name, err := s.readIdent()
				if err != nil {
					return nil, err
				}
				segs = append(segs, attrSeg{name: name})
			}
		case ch == '[':
			seg, err := s.readBracket()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		case isIdentByte(ch) && len(segs) == 0:
			// Leading bare identifier (no dot), e.g. "ACTIONS.foo".
			name, err := s.readIdent()
			if err != nil {
				return nil, err
			}
			segs = append(segs, attrSeg{name: name})
		default:
			return nil, types.NewInvalidPathError(path)
		}
	}

	if len(segs) == 0 {
		return nil, types.NewInvalidPathError(path)
	}
	return segs, nil
}

type scanner struct {
	input string
	path  string // original, for error messages
	pos   int
}

func (s *scanner) readIdent() (string, error) {
	start := s.pos
	for s.pos < len(s.input) && isIdentByte(s.input[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		return "", types.NewInvalidPathError(s.path)
	}
	return s.input[start:s.pos], nil
}

func (s *scanner) readBracket() (segment, error) {
	s.pos++ // consume [
	if s.pos >= len(s.input) {
		return nil, types.NewInvalidPathError(s.path)
	}

	switch ch := s.input[s.pos]; {
	case ch == '*':
		s.pos++
		if err := s.expect(']'); err != nil {
			return nil, err
		}
		return wildcardSeg{}, nil

	case ch == '\'' || ch == '"':
		key, err := s.readQuoted(ch)
		if err != nil {
			return nil, err
		}
		if err := s.expect(']'); err != nil {
			return nil, err
		}
		return keySeg{key: key}, nil

	case ch == '?':
		s.pos++
		return s.readFilter()

	case ch == 's' && s.pos+1 < len(s.input) && s.input[s.pos+1] == '/':
		s.pos += 2
		return s.readSubstitution()

	case ch == '-' || (ch >= '0' && ch <= '9'):
		start := s.pos
		s.pos++
		for s.pos < len(s.input) && s.input[s.pos] >= '0' && s.input[s.pos] <= '9' {
			s.pos++
		}
		idx, err := strconv.Atoi(s.input[start:s.pos])
		if err != nil {
			return nil, types.NewInvalidPathError(s.path)
		}
		if err := s.expect(']'); err != nil {
			return nil, err
		}
		return indexSeg{idx: idx}, nil

	default:
		return nil, types.NewInvalidPathError(s.path)
	}
}

func (s *scanner) expect(ch byte) error {
	if s.pos >= len(s.input) || s.input[s.pos] != ch {
		return types.NewInvalidPathError(s.path)
	}
	s.pos++
	return nil
}

func (s *scanner) readQuoted(quote byte) (string, error) {
	s.pos++ // skip opening quote
	var sb strings.Builder
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		if ch == '\\' && s.pos+1 < len(s.input) {
			s.pos++
			sb.WriteByte(s.input[s.pos])
			s.pos++
			continue
		}
		if ch == quote {
			s.pos++
			return sb.String(), nil
		}
		sb.WriteByte(ch)
		s.pos++
	}
	return "", types.NewInvalidPathError(s.path)
}

// readFilter parses `field.path <op> literal]` after the leading `?`.
func (s *scanner) readFilter() (segment, error) {
	end := s.findClosing()
	if end < 0 {
		return nil, types.NewInvalidPathError(s.path)
	}
	body := strings.TrimSpace(s.input[s.pos:end])
	s.pos = end + 1

	body = strings.TrimPrefix(body, "@.")

	var op string
	var opIdx int
	for _, candidate := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if i := strings.Index(body, candidate); i >= 0 {
			op = candidate
			opIdx = i
			break
		}
	}
	if op == "" {
		return nil, types.NewInvalidPathError(s.path)
	}

	lhs := strings.TrimSpace(body[:opIdx])
	rhs := strings.TrimSpace(body[opIdx+len(op):])
	if lhs == "" || rhs == "" {
		return nil, types.NewInvalidPathError(s.path)
	}

	lit, err := parseFilterLiteral(rhs)
	if err != nil {
		return nil, types.NewInvalidPathError(s.path)
	}

	return filterSeg{attrs: strings.Split(lhs, "."), op: op, lit: lit}, nil
}

func (s *scanner) findClosing() int {
	depth := 0
	inStr := byte(0)
	for i := s.pos; i < len(s.input); i++ {
		ch := s.input[i]
		if inStr != 0 {
			if ch == '\\' {
				i++
			} else if ch == inStr {
				inStr = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inStr = ch
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

func parseFilterLiteral(text string) (types.Value, error) {
	if len(text) >= 2 && (text[0] == '\'' || text[0] == '"') && text[len(text)-1] == text[0] {
		return types.NewString(text[1 : len(text)-1]), nil
	}
	switch text {
	case "true", "True":
		return types.NewBool(true), nil
	case "false", "False":
		return types.NewBool(false), nil
	case "null", "None":
		return types.Null, nil
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return types.NewInt(i), nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return types.NewFloat(f), nil
	}
	return types.Null, fmt.Errorf("invalid filter literal %q", text)
}

// readSubstitution parses `pattern/replacement/]` after the leading `s/`.
func (s *scanner) readSubstitution() (segment, error) {
	pattern, err := s.readUntilSlash()
	if err != nil {
		return nil, err
	}
	repl, err := s.readUntilSlash()
	if err != nil {
		return nil, err
	}
	if err := s.expect(']'); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, types.NewInvalidPathError(s.path)
	}
	return subSeg{re: re, repl: repl}, nil
}

func (s *scanner) readUntilSlash() (string, error) {
	var sb strings.Builder
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		if ch == '\\' && s.pos+1 < len(s.input) && s.input[s.pos+1] == '/' {
			sb.WriteByte('/')
			s.pos += 2
			continue
		}
		if ch == '/' {
			s.pos++
			return sb.String(), nil
		}
		sb.WriteByte(ch)
		s.pos++
	}
	return "", types.NewInvalidPathError(s.path)
}

func isIdentByte(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}
