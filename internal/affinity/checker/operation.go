package checker

import (
	"fmt"

	"github.com/kolkov/affinity/internal/affinity/classify"
	"github.com/kolkov/affinity/internal/affinity/report"
)

// Operation identifies a guarded operation. Operations are built once, at
// weave or registration time, and passed by value to every hook call.
type Operation struct {
	// Type is the receiver type qualified by package name
	// ("widgets.Button"). Empty for constructors and plain functions.
	Type string

	// Method is the method or function name.
	Method string

	// Signature is the classification key.
	Signature classify.Signature
}

// NewOperation parses sig (canonical signature form, see
// [classify.ParseSignature]) and returns the operation of typ.
func NewOperation(typ, sig string) (Operation, error) {
	s, err := classify.ParseSignature(sig)
	if err != nil {
		return Operation{}, fmt.Errorf("operation %s: %w", typ, err)
	}
	return Operation{Type: typ, Method: s.Name, Signature: s}, nil
}

// MustOperation is like NewOperation but panics if sig cannot be parsed.
// It is meant for package-level variables in generated code.
func MustOperation(typ, sig string) Operation {
	op, err := NewOperation(typ, sig)
	if err != nil {
		panic(err)
	}
	return op
}

// String returns "Type.Method", or just Method for plain functions.
func (o Operation) String() string {
	return o.report().String()
}

func (o Operation) report() report.Operation {
	return report.Operation{
		Type:      o.Type,
		Method:    o.Method,
		Signature: o.Signature.String(),
	}
}
