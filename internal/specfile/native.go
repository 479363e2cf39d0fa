package specfile

import (
	"context"
	"sort"
	"strings"
)

const maxExpandDepth = 16

// NativeQuerier answers queries without rpm installed. It understands
// %define/%global, %{name}, %name, %{?name}, %{?name:alt}, %{!?name:alt},
// %{nil} and %%, which covers the preamble of ordinary spec files. %if blocks are not
// evaluated.
type NativeQuerier struct {
	defines map[string]string
}

// NewNativeQuerier creates a querier seeded with extra macro definitions
func NewNativeQuerier(defines map[string]string) *NativeQuerier {
	return &NativeQuerier{defines: defines}
}

// Query implements Querier
func (q *NativeQuerier) Query(ctx context.Context, s *Spec, tag string) (string, error) {
	raw, ok := s.Directive(tag)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(expand(raw, q.macros(s), 0)), nil
}

// Source implements Querier
func (q *NativeQuerier) Source(ctx context.Context, s *Spec) (string, error) {
	return strings.TrimSpace(expand(primarySource(s), q.macros(s), 0)), nil
}

// macros collects definitions from the command line, the spec body and the
// main header tags
func (q *NativeQuerier) macros(s *Spec) map[string]string {
	m := map[string]string{"nil": ""}
	for k, v := range q.defines {
		m[k] = v
	}

	for _, line := range s.lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || (fields[0] != "%define" && fields[0] != "%global") {
			continue
		}
		name := fields[1]
		if strings.ContainsAny(name, "(){}") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimSpace(line)[len(fields[0]):])
		m[name] = strings.TrimSpace(rest[len(name):])
	}

	for _, tag := range []string{"name", "version", "release", "epoch", "summary", "license", "url"} {
		if _, set := m[tag]; set {
			continue
		}
		if v, ok := s.Directive(tag); ok {
			m[tag] = v
		}
	}
	return m
}

func expand(s string, macros map[string]string, depth int) string {
	if depth > maxExpandDepth || !strings.Contains(s, "%") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}

		next := s[i+1]
		switch {
		case next == '%':
			b.WriteByte('%')
			i++
		case next == '{':
			end := matchBrace(s, i+1)
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(expandBody(s[i+2:end], macros, depth))
			i = end
		case isMacroStart(next):
			j := i + 1
			for j < len(s) && isMacroChar(s[j]) {
				j++
			}
			name := s[i+1 : j]
			if v, ok := macros[name]; ok {
				b.WriteString(expand(v, macros, depth+1))
			} else {
				b.WriteString(s[i:j])
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// expandBody expands the inside of %{...}
func expandBody(body string, macros map[string]string, depth int) string {
	negate := false
	conditional := false
	switch {
	case strings.HasPrefix(body, "!?"):
		negate, conditional = true, true
		body = body[2:]
	case strings.HasPrefix(body, "?"):
		conditional = true
		body = body[1:]
	}

	name, alt, hasAlt := strings.Cut(body, ":")
	value, defined := macros[name]

	if !conditional {
		if defined {
			return expand(value, macros, depth+1)
		}
		return "%{" + body + "}"
	}

	switch {
	case negate && !defined:
		return expand(alt, macros, depth+1)
	case negate:
		return ""
	case defined && hasAlt:
		return expand(alt, macros, depth+1)
	case defined:
		return expand(value, macros, depth+1)
	default:
		return ""
	}
}

// matchBrace returns the index of the brace closing the one at open
func matchBrace(s string, open int) int {
	level := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return i
			}
		}
	}
	return -1
}

func isMacroStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isMacroChar(c byte) bool {
	return isMacroStart(c) || (c >= '0' && c <= '9')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
