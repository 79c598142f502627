package check

import "fmt"

// ValidationError rejects a request before any cache or store work. These
// are user-correctable: the caller sent something outside the catalog.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// BatchTooLargeError rejects a batch exceeding the configured limit
type BatchTooLargeError struct {
	Size  int
	Limit int
}

// Error implements error
func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d items exceeds limit of %d", e.Size, e.Limit)
}

// Denial reasons. "not a member" deliberately does not reveal whether the
// organization exists; "Insufficient permissions" confirms membership.
const (
	ReasonNotAMember   = "not a member"
	ReasonInsufficient = "Insufficient permissions"
)
