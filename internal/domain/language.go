package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Languages is the set of language codes with a registered matching
// configuration. The zero value accepts nothing; a nil *Languages accepts
// every non-blank code.
type Languages struct {
	codes map[string]struct{}
}

// NewLanguages builds a registry from language codes. Codes are normalized;
// blanks are skipped.
func NewLanguages(codes ...string) *Languages {
	l := &Languages{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		c = NormalizeText(c)
		if c == "" {
			continue
		}
		l.codes[c] = struct{}{}
	}
	return l
}

// ParseLanguages builds a registry from a comma-separated list ("xho,zul,afr").
func ParseLanguages(raw string) *Languages {
	return NewLanguages(strings.Split(raw, ",")...)
}

// Check returns the normalized code, or an error wrapping ErrInvalidLanguage.
func (l *Languages) Check(code string) (string, error) {
	c := NormalizeText(code)
	if l == nil {
		if c == "" {
			return "", fmt.Errorf("language %q: %w", code, ErrInvalidLanguage)
		}
		return c, nil
	}
	if _, ok := l.codes[c]; !ok {
		return "", fmt.Errorf("language %q: %w", code, ErrInvalidLanguage)
	}
	return c, nil
}

// Codes returns the registered codes in sorted order.
func (l *Languages) Codes() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.codes))
	for c := range l.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered languages.
func (l *Languages) Len() int {
	if l == nil {
		return 0
	}
	return len(l.codes)
}
