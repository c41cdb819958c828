package service

import (
	"errors"
	"fmt"

	"rentdesk/internal/database"
	"rentdesk/internal/domain"
)

// translateStoreError maps storage sentinels onto the domain error taxonomy.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrBookingNotFound), errors.Is(err, database.ErrResourceNotFound):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, database.ErrNotAvailable):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case errors.Is(err, database.ErrConcurrentModification):
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, err)
	case errors.Is(err, database.ErrDuplicateReview):
		return fmt.Errorf("%w: %w", domain.ErrAlreadyReviewed, err)
	case errors.Is(err, database.ErrPaymentRefUsed):
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	default:
		return err
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStateError(bookingID string, status fmt.Stringer, event string) error {
	return fmt.Errorf("%w: cannot %s booking %s in status %s", domain.ErrInvalidState, event, bookingID, status)
}
