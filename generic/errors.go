/*
errors.go - Centralized error types for the forecast engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages (forecast, reconcile) return these, usually as one of the
  structured errors below so callers get context AND errors.Is() works.

ERROR CATEGORIES:
  1. Validation errors - Bad parameters, bad cost centers (client input)
  2. State errors      - Mutation of a closed period, duplicates, conflicts
  3. Lookup errors     - Referenced period/cost center/payment missing

INFRASTRUCTURE ERRORS:
  Storage failures are NOT part of this taxonomy. Stores wrap them with
  fmt.Errorf("...: %w", err) and they propagate untouched. Nothing in the
  computation layer retries them.

USAGE:
  if errors.Is(err, generic.ErrPeriodClosed) {
      // tell the user the period is locked
  }

  var closed *generic.PeriodClosedError
  if errors.As(err, &closed) {
      log.Printf("period %s is closed", closed.PeriodID)
  }

SEE ALSO:
  - forecast/lifecycle.go: Returns PeriodClosedError
  - forecast/proration.go: Returns InvalidCostCenterError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidParameter is returned for non-positive areas, negative
	// surcharges, malformed categories and similar input problems.
	// Always raised before any computation or write happens.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidCostCenter is returned when a cost center cannot take part
	// in proration (non-positive area, area above the condominium total).
	ErrInvalidCostCenter = errors.New("invalid cost center")

	// ErrPeriodClosed is returned when a mutation targets a closed period.
	ErrPeriodClosed = errors.New("period is closed")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record that must be unique
	// (e.g. a second period for the same month/year).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConcurrentModification is returned when the optimistic version check
	// on a period fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidParameterError describes which input was rejected and why.
type InvalidParameterError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid parameter %s=%q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// InvalidCostCenterError describes a cost center rejected by proration or
// by cost center registration.
type InvalidCostCenterError struct {
	CostCenterID string
	AreaM2       string
	Reason       string
}

func (e *InvalidCostCenterError) Error() string {
	return fmt.Sprintf("invalid cost center %s (area %s m²): %s", e.CostCenterID, e.AreaM2, e.Reason)
}

func (e *InvalidCostCenterError) Unwrap() error {
	return ErrInvalidCostCenter
}

// PeriodClosedError is returned by every save/recalculate on a closed period.
type PeriodClosedError struct {
	PeriodID string
}

func (e *PeriodClosedError) Error() string {
	return fmt.Sprintf("period %s is closed and can no longer be changed", e.PeriodID)
}

func (e *PeriodClosedError) Unwrap() error {
	return ErrPeriodClosed
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "period", "cost_center", "payment", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Invalid is shorthand for building an InvalidParameterError.
func Invalid(field, value, reason string) error {
	return &InvalidParameterError{Field: field, Value: value, Reason: reason}
}

// NotFound is shorthand for building a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
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
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidCostCenter)
}

// IsConflict returns true if the request is valid but clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
