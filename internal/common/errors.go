package common

import (
	"errors"
	"fmt"
)

// AppError carries a stable code alongside a human-readable message. The code
// surfaces unchanged in PipelineImportResult.Code.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf extracts the AppError code from an error chain, or "" when none.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Common application errors.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCompanyNotFound   = errors.New("company not found")
	ErrDuplicateFile     = errors.New("file already processed")
	ErrEngineUnavailable = errors.New("recognition engine unavailable")
	ErrInvoiceExists     = errors.New("invoice already exists for supplier")
)

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
