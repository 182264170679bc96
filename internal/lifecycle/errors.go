package lifecycle

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the service boundary. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidOrExpired  = errors.New("invalid or expired otp")
	ErrNotPending        = errors.New("order is not awaiting verification")
	ErrRequestInProgress = errors.New("request already in progress")
	ErrDependency        = errors.New("dependency failure")
)

// ValidationError describes input rejected before anything was persisted.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}
