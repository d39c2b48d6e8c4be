package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound        = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput    = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState    = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrQueueFull       = NewDomainError("QUEUE_FULL", "Offline queue is at capacity and no low-priority action can be evicted")
	ErrClaimTerminal   = NewDomainError("CLAIM_TERMINAL", "Claim is cleared or rejected and cannot be financially mutated")
	ErrNoRateAvailable = NewDomainError("NO_RATE_AVAILABLE", "No exchange rate available from source or cache")
)
