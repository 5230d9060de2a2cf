package instrument

import (
	"fmt"
	"go/token"
)

// InstrumentationError is a weaving failure tied to a source position.
//
// Example output:
//
//	button.go:42:1: attach method Add has no pointer parameter to record
//
//	Suggestion: Take the child component as a named pointer parameter
type InstrumentationError struct {
	File       string
	Line       int
	Column     int
	Message    string
	Suggestion string
}

// Error formats the error as file:line:column: message, followed by the
// suggestion when there is one.
func (e *InstrumentationError) Error() string {
	result := fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// NewInstrumentationError creates an error positioned at pos.
func NewInstrumentationError(fset *token.FileSet, pos token.Pos, msg string) *InstrumentationError {
	position := fset.Position(pos)
	return &InstrumentationError{
		File:    position.Filename,
		Line:    position.Line,
		Column:  position.Column,
		Message: msg,
	}
}

// NewInstrumentationErrorWithSuggestion creates a positioned error with a
// hint for fixing it.
func NewInstrumentationErrorWithSuggestion(fset *token.FileSet, pos token.Pos, msg, suggestion string) *InstrumentationError {
	err := NewInstrumentationError(fset, pos, msg)
	err.Suggestion = suggestion
	return err
}
