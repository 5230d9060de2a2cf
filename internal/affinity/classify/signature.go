package classify

import (
	"fmt"
	"strings"
)

// Signature is the classification key of a guarded operation: the method
// name plus its parameter and result types as written in source.
type Signature struct {
	Name    string
	Params  []string
	Results []string
}

// String returns the canonical form used by exact rules:
//
//	Repaint(int64,int,int,int,int)
//	ImageUpdate(image.Image,int,int,int,int,int) bool
//	Listeners(reflect.Type) ([]any,error)
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(s.Params, ","))
	b.WriteByte(')')
	switch len(s.Results) {
	case 0:
	case 1:
		b.WriteByte(' ')
		b.WriteString(s.Results[0])
	default:
		b.WriteString(" (")
		b.WriteString(strings.Join(s.Results, ","))
		b.WriteByte(')')
	}
	return b.String()
}

// ParseSignature parses the canonical form produced by String. Whitespace
// after commas is tolerated so hand-written config entries may use the
// usual Go spacing.
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return Signature{}, fmt.Errorf("signature %q: missing name or parameter list", s)
	}
	closing := matchParen(s, open)
	if closing < 0 {
		return Signature{}, fmt.Errorf("signature %q: unbalanced parentheses", s)
	}

	sig := Signature{
		Name:   s[:open],
		Params: splitTypes(s[open+1 : closing]),
	}

	rest := strings.TrimSpace(s[closing+1:])
	if strings.HasPrefix(rest, "(") {
		end := matchParen(rest, 0)
		if end != len(rest)-1 {
			return Signature{}, fmt.Errorf("signature %q: malformed result list", s)
		}
		sig.Results = splitTypes(rest[1:end])
	} else if rest != "" {
		sig.Results = []string{rest}
	}
	return sig, nil
}

// matchParen returns the index of the parenthesis closing the one at
// s[open], or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTypes splits a comma-separated type list at top level only, so
// func(int, int) parameter types survive intact.
func splitTypes(list string) []string {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, normalizeType(list[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, normalizeType(list[start:]))
}

func normalizeType(t string) string {
	return strings.Join(strings.Fields(t), " ")
}
