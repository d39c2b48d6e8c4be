package dto

import "net/http"

// Error code constants organized by category
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
)

// ErrorCodeHTTPStatus maps domain error codes to HTTP status codes. Codes not
// listed map to 500; a domain error never leaks as an internal error page.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeValidation: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,

	// Domain codes from internal/domain/shared and the aggregates.
	"NOT_FOUND":            http.StatusNotFound,
	"INVALID_INPUT":        http.StatusBadRequest,
	"INVALID_AMOUNT":       http.StatusBadRequest,
	"INVALID_CURRENCY":     http.StatusBadRequest,
	"INVALID_RATE":         http.StatusBadRequest,
	"INVALID_SOURCE":       http.StatusBadRequest,
	"INVALID_PRIORITY":     http.StatusBadRequest,
	"INVALID_PAYLOAD":      http.StatusBadRequest,
	"INVALID_STATE":        http.StatusConflict,
	"CLAIM_TERMINAL":       http.StatusConflict,
	"QUEUE_FULL":           http.StatusTooManyRequests,
	"NO_RATE_AVAILABLE":    http.StatusServiceUnavailable,
	"SOURCE_NOT_FETCHABLE": http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status for an error code.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
