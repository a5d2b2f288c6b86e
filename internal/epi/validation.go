package epi

import (
	"fmt"
	"strings"
)

// ValidationError collects every issue found while checking a configuration
// so callers see all of them at once.
type ValidationError struct {
	Kind   error
	Issues []string
}

func newValidationError(kind error) *ValidationError {
	return &ValidationError{Kind: kind}
}

func (e *ValidationError) Error() string {
	prefix := "invalid configuration"
	if e.Kind != nil {
		prefix = e.Kind.Error()
	}
	if len(e.Issues) == 0 {
		return prefix + ": unknown validation error"
	}
	if len(e.Issues) == 1 {
		return prefix + ": " + e.Issues[0]
	}
	return prefix + ": " + strings.Join(e.Issues, "; ")
}

// Unwrap lets errors.Is match the sentinel the issues belong to.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) Addf(format string, v ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, v...))
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

func (e *ValidationError) errOrNil() error {
	if e.HasIssues() {
		return e
	}
	return nil
}
