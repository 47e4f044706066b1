package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses, download results and internal error handling.
const (
	ErrCodeFetch        = "FETCH_FAILED"
	ErrCodePersist      = "PERSIST_FAILED"
	ErrCodeCollision    = "FILENAME_COLLISION"
	ErrCodeParse        = "PARSE_FAILED"
	ErrCodeTimeout      = "FETCH_TIMEOUT"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HarvestError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type HarvestError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *HarvestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}

// NewHarvestError creates a new HarvestError.
func NewHarvestError(code, message string, err error) *HarvestError {
	return &HarvestError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *HarvestError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// AsHarvestError unwraps err into a *HarvestError, wrapping unknown errors
// as ErrCodeInternal. It returns nil for a nil error.
func AsHarvestError(err error) *HarvestError {
	if err == nil {
		return nil
	}
	var he *HarvestError
	if errors.As(err, &he) {
		return he
	}
	return NewHarvestError(ErrCodeInternal, err.Error(), err)
}

// ErrorCode returns the code of err when it is (or wraps) a HarvestError,
// and "" otherwise.
func ErrorCode(err error) string {
	var he *HarvestError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}
