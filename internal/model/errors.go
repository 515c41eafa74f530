package model

import "fmt"

// ValidationError reports an invalid domain value. It is the only error the
// parser surfaces; everything else degrades to a warning.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return fmt.Sprintf("VALIDATION_FAILED: %s", e.Message)
	}
	return fmt.Sprintf("VALIDATION_FAILED: %s: %s", e.Field, e.Message)
}

func ValidateHeadingLevel(level int) error {
	if level < 1 || level > 6 {
		return &ValidationError{Field: "heading_level", Message: fmt.Sprintf("heading level %d out of range 1..6", level)}
	}
	return nil
}
