package submission

import (
	"errors"
	"fmt"

	"benchline/internal/domain"
	"benchline/internal/validation"
)

var (
	ErrSessionClosed   = errors.New("work session closed")
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownCategory = errors.New("unknown attachment category")
	ErrNoAttachment    = errors.New("attachment not found")
)

// IllegalTransitionError is returned when an operation does not fit the
// tracking's current status, e.g. starting twice or editing completed work.
type IllegalTransitionError struct {
	Op     string
	Status domain.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: work is %s", e.Op, e.Status)
}

// ValidationFailedError carries the report of a rejected submit. State is unchanged.
type ValidationFailedError struct {
	Report validation.Report
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("submission incomplete: %d required items outstanding", e.Report.Outstanding())
}

// PersistenceError wraps a collaborator failure. The operation was not applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s not applied: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AttachmentRejectedError means an upload broke a photo or file constraint.
type AttachmentRejectedError struct {
	Category string
	Reason   string
}

func (e *AttachmentRejectedError) Error() string {
	return fmt.Sprintf("attachment rejected for %s: %s", e.Category, e.Reason)
}
