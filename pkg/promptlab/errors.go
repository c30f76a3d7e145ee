package promptlab

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports model output that still violated the prompt schema
// after the repair attempt. Output carries the offending text for diagnosis.
type ValidationError struct {
	Issues []string
	Output string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("generated prompt failed schema validation: %s", strings.Join(e.Issues, "; "))
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}
