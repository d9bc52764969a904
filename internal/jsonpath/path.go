// Package jsonpath evaluates the small dotted path language used by site field
// maps against decoded JSON trees.
//
// Supported forms are `a.b`, `a[0].b`, `a[*].b`, `a[?flag].b` and
// `a[?key=value].b`. A wildcard applies the rest of the path to every element
// and flattens the results into one ordered list. A filter does the same for
// the elements whose key is truthy, or whose key renders as value. Filter
// values cannot contain dots.
// Missing keys, out of range indexes and type mismatches yield "absent"; the
// evaluator never panics on malformed input.
package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath reports a path expression that cannot be compiled.
var ErrInvalidPath = errors.New("invalid path")

type segmentKind int

const (
	segmentKey segmentKind = iota
	segmentIndex
	segmentWildcard
	segmentFilter
)

type segment struct {
	kind  segmentKind
	key   string
	index int
	// value and hasValue describe an equality filter.
	value    string
	hasValue bool
}

// Path is a compiled path expression.
type Path struct {
	expr     string
	segments []segment
}

// String returns the source expression.
func (p Path) String() string {
	return p.expr
}

// IsZero reports whether the path was never compiled.
func (p Path) IsZero() bool {
	return len(p.segments) == 0
}

// Compile parses expr into a Path.
func Compile(expr string) (Path, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Path{}, fmt.Errorf("%w: empty expression", ErrInvalidPath)
	}
	var segments []segment
	for _, part := range strings.Split(expr, ".") {
		if part == "" {
			return Path{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, expr)
		}
		parsed, err := parsePart(part)
		if err != nil {
			return Path{}, fmt.Errorf("%w: %q: %w", ErrInvalidPath, expr, err)
		}
		segments = append(segments, parsed...)
	}
	return Path{expr: expr, segments: segments}, nil
}

// MustCompile is Compile for expressions known at build time.
func MustCompile(expr string) Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func parsePart(part string) ([]segment, error) {
	var out []segment
	name := part
	if i := strings.IndexByte(part, '['); i >= 0 {
		name = part[:i]
		part = part[i:]
	} else {
		part = ""
	}
	if name != "" {
		out = append(out, segment{kind: segmentKey, key: name})
	}
	for part != "" {
		if part[0] != '[' {
			return nil, fmt.Errorf("unexpected %q", part)
		}
		end := strings.IndexByte(part, ']')
		if end < 0 {
			return nil, errors.New("unterminated bracket")
		}
		inner := strings.TrimSpace(part[1:end])
		part = part[end+1:]
		if inner == "*" {
			out = append(out, segment{kind: segmentWildcard})
			continue
		}
		if strings.HasPrefix(inner, "?") {
			f, err := parseFilter(inner[1:])
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			continue
		}
		idx, err := strconv.Atoi(inner)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("bad index %q", inner)
		}
		out = append(out, segment{kind: segmentIndex, index: idx})
	}
	return out, nil
}

func parseFilter(expr string) (segment, error) {
	key, value, hasValue := strings.Cut(expr, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return segment{}, fmt.Errorf("bad filter %q", expr)
	}
	f := segment{kind: segmentFilter, key: key, hasValue: hasValue}
	if hasValue {
		value = strings.TrimSpace(value)
		if lit, ok := unquote(value); ok {
			value = lit
		}
		f.value = value
	}
	return f, nil
}

// Eval walks v and returns the addressed value. ok is false when the value is
// absent or empty.
func (p Path) Eval(v any) (any, bool) {
	if p.IsZero() {
		return nil, false
	}
	out := eval(v, p.segments)
	if isEmpty(out) {
		return nil, false
	}
	return out, true
}

func eval(v any, segments []segment) any {
	for i, seg := range segments {
		switch seg.kind {
		case segmentKey:
			m, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v = m[seg.key]
		case segmentIndex:
			list, ok := v.([]any)
			if !ok || seg.index >= len(list) {
				return nil
			}
			v = list[seg.index]
		case segmentWildcard:
			list, ok := v.([]any)
			if !ok {
				return nil
			}
			collected := make([]any, 0, len(list))
			for _, item := range list {
				collected = appendFlat(collected, eval(item, segments[i+1:]))
			}
			return collected
		case segmentFilter:
			list, ok := v.([]any)
			if !ok {
				return nil
			}
			collected := make([]any, 0, len(list))
			for _, item := range list {
				if seg.matches(item) {
					collected = appendFlat(collected, eval(item, segments[i+1:]))
				}
			}
			return collected
		}
		if v == nil {
			return nil
		}
	}
	return v
}

func (s segment) matches(item any) bool {
	m, ok := item.(map[string]any)
	if !ok {
		return false
	}
	v, ok := m[s.key]
	if !ok {
		return false
	}
	if s.hasValue {
		text, ok := Scalar(v)
		return ok && text == s.value
	}
	return truthy(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		t = strings.TrimSpace(t)
		return t != "" && !strings.EqualFold(t, "false")
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Scalar renders strings, numbers and booleans as text. ok is false for
// anything else.
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func appendFlat(dst []any, v any) []any {
	switch t := v.(type) {
	case nil:
		return dst
	case []any:
		for _, item := range t {
			dst = appendFlat(dst, item)
		}
		return dst
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.HasPrefix(strings.ToLower(s), "data:") {
			return dst
		}
		return append(dst, t)
	default:
		return append(dst, t)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
