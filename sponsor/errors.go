package sponsor

import "fmt"

// Category classifies a rejection so callers can decide mechanically whether
// to retry, wait, or alert an operator.
type Category string

const (
	// CategoryValidation - malformed operation; never retry unchanged.
	CategoryValidation Category = "validation"
	// CategoryRateLimit - retryable after the stated window elapses.
	CategoryRateLimit Category = "rate_limit"
	// CategoryInfrastructure - operational misconfiguration (signing key,
	// unknown chain); surfaced as an alert, not retried here.
	CategoryInfrastructure Category = "infrastructure"
)

// RejectionError is a sponsorship rejection with a machine-discriminable
// category and a human-readable reason.
type RejectionError struct {
	Category Category
	Reason   string
	Details  []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("sponsorship rejected (%s): %s", e.Category, e.Reason)
}

func reject(cat Category, format string, args ...any) *RejectionError {
	return &RejectionError{Category: cat, Reason: fmt.Sprintf(format, args...)}
}
