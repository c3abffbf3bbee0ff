package rules

import (
	"fmt"
	"sort"
	"strings"
)

// ItemNotFoundError signals a lookup for an id that does not exist
type ItemNotFoundError struct {
	Kind string // "import rule", "mapping", "import summary"
	ID   string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ValidationErrors collects field-level validation messages for one save
type ValidationErrors struct {
	Fields map[string][]string
}

func newValidationErrors() *ValidationErrors {
	return &ValidationErrors{Fields: map[string][]string{}}
}

func (e *ValidationErrors) add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationErrors) empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationErrors) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.Fields[field], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// UnexpectedError wraps a datastore or dependency failure during a
// lifecycle operation
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
