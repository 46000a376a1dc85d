package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict  = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Billing computation errors. All of these are recoverable by the
	// caller: re-prompt, fix configuration or retry, never substitute a
	// zero amount.
	ErrNotConfigured      = new(ErrCodeNotConfigured, "service is not configured for the client")
	ErrAmbiguousPlan      = new(ErrCodeAmbiguousPlan, "multiple contract lines are eligible")
	ErrOverageUnderpriced = new(ErrCodeOverageUnderpriced, "bucket overage has no overage rate configured")
	ErrInvalidTierTable   = new(ErrCodeInvalidTierTable, "usage tier table has gaps or overlaps")
	ErrNoActiveTaxRate    = new(ErrCodeNoActiveTaxRate, "no active tax rate for taxable item")
	ErrCycleConflict      = new(ErrCodeCycleConflict, "billing cycle overlaps an existing cycle")
	ErrInvoiceNotEditable = new(ErrCodeInvoiceNotEditable, "invoice is not editable")
	ErrTransientFailure   = new(ErrCodeTransientFailure, "transient storage failure")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrDatabase:           http.StatusInternalServerError,
		ErrNotFound:           http.StatusNotFound,
		ErrAlreadyExists:      http.StatusConflict,
		ErrVersionConflict:    http.StatusConflict,
		ErrValidation:         http.StatusBadRequest,
		ErrInvalidOperation:   http.StatusBadRequest,
		ErrSystem:             http.StatusInternalServerError,
		ErrNotConfigured:      http.StatusUnprocessableEntity,
		ErrAmbiguousPlan:      http.StatusConflict,
		ErrOverageUnderpriced: http.StatusUnprocessableEntity,
		ErrInvalidTierTable:   http.StatusUnprocessableEntity,
		ErrNoActiveTaxRate:    http.StatusUnprocessableEntity,
		ErrCycleConflict:      http.StatusConflict,
		ErrInvoiceNotEditable: http.StatusConflict,
		ErrTransientFailure:   http.StatusServiceUnavailable,
	}
)

const (
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeVersionConflict  = "version_conflict"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeDatabase         = "database_error"

	ErrCodeNotConfigured      = "not_configured"
	ErrCodeAmbiguousPlan      = "ambiguous_plan"
	ErrCodeOverageUnderpriced = "overage_underpriced"
	ErrCodeInvalidTierTable   = "invalid_tier_table"
	ErrCodeNoActiveTaxRate    = "no_active_tax_rate"
	ErrCodeCycleConflict      = "cycle_conflict"
	ErrCodeInvoiceNotEditable = "invoice_not_editable"
	ErrCodeTransientFailure   = "transient_failure"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// new creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsNotConfigured checks if an error is a not configured error
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsAmbiguousPlan checks if an error is an ambiguous plan error
func IsAmbiguousPlan(err error) bool {
	return errors.Is(err, ErrAmbiguousPlan)
}

// IsCycleConflict checks if an error is a billing cycle conflict error
func IsCycleConflict(err error) bool {
	return errors.Is(err, ErrCycleConflict)
}

// IsTransientFailure checks if an error is a transient storage failure
func IsTransientFailure(err error) bool {
	return errors.Is(err, ErrTransientFailure)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
