package workflows

import (
	"fmt"
)

// WrapActivityError wraps an activity error with the failed operation.
func WrapActivityError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// FormatErrorForResult renders an error for a result's Errors slice.
//
// Failures that stop a workflow are both recorded and returned. Failures a
// workflow can continue past, such as planning in the daily pass, are only
// recorded.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}
