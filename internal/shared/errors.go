package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the operation collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientQuantity indicates stock cannot cover the request.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrExpired indicates the batch or code is past its end of life.
	ErrExpired = errors.New("expired")
	// ErrValidation indicates the input failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrUpstream indicates a dependency (database, redis) was unavailable.
	ErrUpstream = errors.New("upstream unavailable")
)

// FieldError describes a single validation failure within a request.
type FieldError struct {
	ProductID   int64  `json:"productId,omitempty"`
	ItemID      int64  `json:"itemId,omitempty"`
	BatchNumber string `json:"batchNumber,omitempty"`
	Field       string `json:"field,omitempty"`
	Reason      string `json:"reason"`
}

func (e FieldError) String() string {
	parts := []string{}
	if e.ProductID != 0 {
		parts = append(parts, fmt.Sprintf("product %d", e.ProductID))
	}
	if e.ItemID != 0 {
		parts = append(parts, fmt.Sprintf("item %d", e.ItemID))
	}
	if e.BatchNumber != "" {
		parts = append(parts, fmt.Sprintf("batch %s", e.BatchNumber))
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	parts = append(parts, e.Reason)
	return strings.Join(parts, ": ")
}

// ValidationErrors aggregates every failure found during the validate
// phase of a workflow so callers see all problems at once.
type ValidationErrors struct {
	Errors []FieldError
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return ErrValidation.Error()
	}
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.String())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match ErrValidation.
func (v *ValidationErrors) Unwrap() error { return ErrValidation }

// Add appends a failure to the collection.
func (v *ValidationErrors) Add(e FieldError) {
	v.Errors = append(v.Errors, e)
}

// HasErrors reports whether anything was collected.
func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// AsError returns the collection as an error, or nil when empty.
func (v *ValidationErrors) AsError() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
