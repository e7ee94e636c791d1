/*
errors.go - Centralized error types for the credit ledger

ERROR CATEGORIES:
  1. Validation errors - Malformed or out-of-range input, field-level detail
  2. Not-found errors - Customer missing or outside the requesting store
  3. Invariant violations - Operation would drive the balance negative
  4. Concurrency errors - Another writer changed the customer first
  Anything else returned by the ledger is a persistence failure.

SEE ALSO:
  - ledger.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package credit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrCustomerNotFound is returned when the customer does not exist or
	// belongs to another store.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrNegativeBalance is returned when a transaction would leave the
	// customer with a negative credit balance.
	ErrNegativeBalance = errors.New("credit balance cannot be negative")

	// ErrConcurrentModification is returned when the customer's version
	// changed between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateID is returned when a record with the same id already exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level problems with a request.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field problems were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NegativeBalanceError provides details about a rejected balance change.
type NegativeBalanceError struct {
	CustomerID CustomerID
	Previous   decimal.Decimal
	Change     decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("credit balance cannot be negative: balance %s, change %s",
		e.Previous.StringFixed(2), e.Change.StringFixed(2))
}

func (e *NegativeBalanceError) Unwrap() error {
	return ErrNegativeBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrDuplicateID)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}
