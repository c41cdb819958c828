package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed intervals and missing or invalid fields.
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when a live booking already occupies the interval.
	ErrConflict = errors.New("booking conflict")

	// ErrInvalidState is returned for transitions not allowed from the current status.
	ErrInvalidState = errors.New("invalid booking state")

	// ErrForbidden is returned when the actor lacks the required role for the booking or resource.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream is returned when the payment collaborator is unreachable or times out.
	ErrUpstream = errors.New("upstream unavailable")

	ErrNotFound = errors.New("not found")

	// ErrUnsupported is returned for operations delegated to other collaborators, such as cancelling a paid booking.
	ErrUnsupported = errors.New("unsupported operation")

	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	ErrAlreadyReviewed     = errors.New("review already exists")
	ErrResourceUnavailable = errors.New("resource is not available for rent")
	ErrLockNotAcquired     = errors.New("resource lock not acquired")

	// ErrResourceBusy is returned when another request holds the resource; the call may be retried.
	ErrResourceBusy = errors.New("resource is busy, retry later")
)

// ErrDepositUnpaid is an invalid-state error: the requested deposit has to be settled before payment.
var ErrDepositUnpaid = fmt.Errorf("%w: deposit requested but not paid", ErrInvalidState)
