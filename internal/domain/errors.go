package domain

import "fmt"

// Sentinel errors for the domain layer.
var (
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrWorkflowNotFound = fmt.Errorf("workflow not found")
	ErrThrottled        = fmt.Errorf("system overloaded")
	ErrRateLimited      = fmt.Errorf("rate limit exceeded")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrStoreFailure     = fmt.Errorf("store operation failed")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Engine.Run")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
