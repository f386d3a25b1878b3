package domain

import "fmt"

// Error represents a domain error
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrCodeManifestNotFound  = "MANIFEST_NOT_FOUND"
	ErrCodeManifestMalformed = "MANIFEST_MALFORMED"
	ErrCodeBuildFailed       = "BUILD_FAILED"
	ErrCodeElfLoadFailed     = "ELF_LOAD_FAILED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
)

// NewError creates a new domain error
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new domain error with a cause
func NewErrorWithCause(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
