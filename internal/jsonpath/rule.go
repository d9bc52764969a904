package jsonpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule resolves one output field from an ordered list of alternatives; the
// first one that yields a non-empty value wins. An alternative is a path, a
// quoted literal, or a template such as "{ref}-{color.id}".
type Rule struct {
	terms []term
}

type term struct {
	path     Path
	literal  string
	template []templatePart
	kind     termKind
}

type termKind int

const (
	termPath termKind = iota
	termLiteral
	termTemplate
)

// templatePart is either fixed text or a path placeholder.
type templatePart struct {
	text string
	path Path
}

// Literal builds a rule that always yields value.
func Literal(value string) Rule {
	return Rule{terms: []term{{kind: termLiteral, literal: value}}}
}

// ParseRule parses a single scalar rule. Values wrapped in matching single or
// double quotes are literals, values with {placeholders} are templates and
// everything else is a path.
func ParseRule(expr string) (Rule, error) {
	t, err := parseTerm(expr)
	if err != nil {
		return Rule{}, err
	}
	return Rule{terms: []term{t}}, nil
}

// ParseRules parses an ordered fallback list.
func ParseRules(exprs []string) (Rule, error) {
	if len(exprs) == 0 {
		return Rule{}, fmt.Errorf("%w: empty fallback list", ErrInvalidPath)
	}
	var r Rule
	for _, expr := range exprs {
		t, err := parseTerm(expr)
		if err != nil {
			return Rule{}, err
		}
		r.terms = append(r.terms, t)
	}
	return r, nil
}

func parseTerm(expr string) (term, error) {
	expr = strings.TrimSpace(expr)
	if lit, ok := unquote(expr); ok {
		return term{kind: termLiteral, literal: lit}, nil
	}
	if strings.ContainsAny(expr, "{}") {
		parts, err := parseTemplate(expr)
		if err != nil {
			return term{}, err
		}
		return term{kind: termTemplate, template: parts}, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return term{}, err
	}
	return term{kind: termPath, path: p}, nil
}

func parseTemplate(expr string) ([]templatePart, error) {
	var parts []templatePart
	rest := expr
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.Contains(rest, "}") {
				return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidPath, expr)
			}
			parts = append(parts, templatePart{text: rest})
			break
		}
		if open > 0 {
			if strings.Contains(rest[:open], "}") {
				return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidPath, expr)
			}
			parts = append(parts, templatePart{text: rest[:open]})
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidPath, expr)
		}
		p, err := Compile(rest[open+1 : open+closing])
		if err != nil {
			return nil, err
		}
		parts = append(parts, templatePart{path: p})
		rest = rest[open+closing+1:]
	}
	return parts, nil
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	first, last := s[0], s[len(s)-1]
	if (first == '\'' || first == '"') && first == last {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// Resolve evaluates the rule against v.
func (r Rule) Resolve(v any) (any, bool) {
	for _, t := range r.terms {
		if out, ok := t.resolve(v); ok {
			return out, true
		}
	}
	return nil, false
}

func (t term) resolve(v any) (any, bool) {
	switch t.kind {
	case termLiteral:
		return t.literal, true
	case termTemplate:
		var b strings.Builder
		for _, part := range t.template {
			if part.path.IsZero() {
				b.WriteString(part.text)
				continue
			}
			value, ok := part.path.Eval(v)
			if !ok {
				return nil, false
			}
			if list, isList := value.([]any); isList {
				value = list[0]
			}
			text, ok := Scalar(value)
			if !ok || strings.TrimSpace(text) == "" {
				return nil, false
			}
			b.WriteString(text)
		}
		return b.String(), true
	default:
		return t.path.Eval(v)
	}
}

// UnmarshalYAML accepts a scalar (path or quoted literal) or a sequence of paths.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseRule(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = parsed
		return nil
	case yaml.SequenceNode:
		var exprs []string
		if err := node.Decode(&exprs); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		parsed, err := ParseRules(exprs)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = parsed
		return nil
	default:
		return fmt.Errorf("line %d: field rule must be a string or list", node.Line)
	}
}

// Spec maps output field names to rules.
type Spec map[string]Rule

// Extract applies every rule in spec to v. Fields that resolve to nothing are
// omitted from the result. Dotted field names nest: "_meta.color" lands in
// out["_meta"]["color"].
func Extract(v any, spec Spec) map[string]any {
	out := make(map[string]any, len(spec))
	for field, rule := range spec {
		if value, ok := rule.Resolve(v); ok {
			setNested(out, strings.Split(field, "."), value)
		}
	}
	return out
}

func setNested(m map[string]any, keys []string, value any) {
	for _, k := range keys[:len(keys)-1] {
		child, ok := m[k].(map[string]any)
		if !ok {
			if _, taken := m[k]; taken {
				return
			}
			child = make(map[string]any)
			m[k] = child
		}
		m = child
	}
	m[keys[len(keys)-1]] = value
}

// Decode parses a JSON document keeping numbers as json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}
