// Package classify decides whether a guarded operation is exempt from
// affinity checking.
//
// The allow-list is data: a slice of [Rule] values matched against a
// [Signature]. Anything no rule matches is strict.
package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one exemption. Exactly one of Signature or the Prefix/Suffix
// pair is used: a non-empty Signature matches the canonical signature
// string; otherwise the method name must start with Prefix and end with
// Suffix. The first letter of Prefix is compared case-insensitively, so
// "add" matches both addFooListener and AddFooListener.
type Rule struct {
	Signature string `yaml:"signature,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Suffix    string `yaml:"suffix,omitempty"`
}

func (r Rule) matches(sig Signature, canonical string) bool {
	if r.Signature != "" {
		return r.Signature == canonical
	}
	if r.Prefix == "" && r.Suffix == "" {
		return false
	}
	name := sig.Name
	if !hasPrefixFold(name, r.Prefix) || !strings.HasSuffix(name, r.Suffix) {
		return false
	}
	// The affixes must not overlap: "addListener" has no subject between
	// "add" and "Listener", but is still a listener registration.
	return len(name) >= len(r.Prefix)+len(r.Suffix)
}

// DefaultRules are the operations known to be safe from any goroutine:
// repaint requests, revalidation, image-update callbacks, listener
// enumeration and listener registration/removal.
var DefaultRules = []Rule{
	{Signature: "Repaint()"},
	{Signature: "Repaint(int64,int,int,int,int)"},
	{Signature: "Repaint(image.Rectangle)"},
	{Signature: "Repaint(int,int,int,int)"},
	{Signature: "Revalidate()"},
	{Signature: "ImageUpdate(image.Image,int,int,int,int,int) bool"},
	{Signature: "Listeners(reflect.Type) []any"},
	{Prefix: "add", Suffix: "Listener"},
	{Prefix: "remove", Suffix: "Listener"},
}

// Classifier is an immutable rule set. The zero value exempts nothing.
type Classifier struct {
	rules []Rule
}

// New returns a classifier using rules.
func New(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Default returns a classifier using DefaultRules.
func Default() *Classifier {
	return New(DefaultRules...)
}

// With returns a new classifier with extra rules appended. The receiver is
// not modified.
func (c *Classifier) With(rules ...Rule) *Classifier {
	merged := make([]Rule, 0, len(c.rules)+len(rules))
	merged = append(merged, c.rules...)
	merged = append(merged, rules...)
	return &Classifier{rules: merged}
}

// Rules returns a copy of the rule set.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// IsExempt reports whether sig may be called from any goroutine.
func (c *Classifier) IsExempt(sig Signature) bool {
	if c == nil {
		return false
	}
	canonical := sig.String()
	for _, r := range c.rules {
		if r.matches(sig, canonical) {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(s) < len(prefix) {
		return false
	}
	r1, n1 := utf8.DecodeRuneInString(s)
	r2, n2 := utf8.DecodeRuneInString(prefix)
	if unicode.ToLower(r1) != unicode.ToLower(r2) {
		return false
	}
	return strings.HasPrefix(s[n1:], prefix[n2:])
}
