package orders

import "errors"

var (
	// ErrNotFound is returned when no order exists for the given id.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyExists is returned when an order id collides on create.
	ErrAlreadyExists = errors.New("order already exists")
	// ErrIdempotencyConflict is returned when the idempotency key was already used.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	// ErrStatusMismatch is returned when a conditional transition finds the order in another status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrOTPRejected is returned when a verification does not match an outstanding, unexpired OTP.
	ErrOTPRejected = errors.New("otp rejected")
)

// Reasons an OTP verification was rejected. They are for logs only; callers
// see ErrOTPRejected regardless.
const (
	RejectNoOutstandingOTP  = "no_outstanding_otp"
	RejectMismatch          = "mismatch"
	RejectExpired           = "expired"
	RejectAttemptsExhausted = "attempts_exhausted"
)

// RejectionError carries the internal reason behind ErrOTPRejected.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "otp rejected: " + e.Reason }

// Is makes errors.Is(err, ErrOTPRejected) hold for every RejectionError.
func (e *RejectionError) Is(target error) bool { return target == ErrOTPRejected }
