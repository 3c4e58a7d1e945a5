package client

import "fmt"

// ErrorCode classifies API failures.
type ErrorCode string

const (
	ErrorCodeAuthentication ErrorCode = "authentication"
	ErrorCodeRateLimit      ErrorCode = "rate_limit"
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
	ErrorCodeNotFound       ErrorCode = "not_found"
	ErrorCodeServerError    ErrorCode = "server_error"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeUnknown        ErrorCode = "unknown"
)

// APIError is a structured error from the agent API.
type APIError struct {
	Code          ErrorCode
	Message       string
	Type          string
	StatusCode    int
	IsRetryable   bool
	OriginalError error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error if any.
func (e *APIError) Unwrap() error {
	return e.OriginalError
}

// NewAPIError creates a structured API error.
func NewAPIError(code ErrorCode, message string, originalErr error) *APIError {
	return &APIError{
		Code:          code,
		Message:       message,
		OriginalError: originalErr,
		IsRetryable:   isRetryableCode(code),
	}
}

func isRetryableCode(code ErrorCode) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeTimeout, ErrorCodeServerError:
		return true
	default:
		return false
	}
}

// codeForStatus maps an HTTP status to an error code.
func codeForStatus(status int) ErrorCode {
	switch status {
	case 401, 403:
		return ErrorCodeAuthentication
	case 404:
		return ErrorCodeNotFound
	case 429:
		return ErrorCodeRateLimit
	case 400, 422:
		return ErrorCodeInvalidRequest
	default:
		if status >= 500 {
			return ErrorCodeServerError
		}
		return ErrorCodeUnknown
	}
}
