package weblog

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Selector decides which calls are intercepted: exported methods of types
// declared under one of its namespace prefixes.
type Selector struct {
	prefixes []string
}

// NewSelector builds a selector from namespace patterns such as
// "controller..*", "controller.*" or "controller". Empty patterns are ignored.
func NewSelector(patterns ...string) Selector {
	var s Selector
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		p = strings.TrimSuffix(p, "..*")
		p = strings.TrimSuffix(p, ".*")
		p = strings.TrimSuffix(p, "*")
		p = strings.TrimSuffix(p, ".")
		if p == "" {
			continue
		}
		s.prefixes = append(s.prefixes, p)
	}
	return s
}

// ParseSelector splits a comma-separated pattern list (as found in env vars).
func ParseSelector(list string) Selector {
	return NewSelector(strings.Split(list, ",")...)
}

// Match reports whether typeName.method is intercepted.
func (s Selector) Match(typeName, method string) bool {
	if !exported(method) {
		return false
	}
	for _, p := range s.prefixes {
		if typeName == p || strings.HasPrefix(typeName, p+".") {
			return true
		}
	}
	return false
}

// Prefixes returns the normalized namespace prefixes.
func (s Selector) Prefixes() []string {
	return append([]string(nil), s.prefixes...)
}

func exported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
