package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrBookingNotFound        = errors.New("booking not found")
	ErrResourceNotFound       = errors.New("resource not found")
	ErrNotAvailable           = errors.New("resource is already booked for the requested interval")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrDuplicateReview        = errors.New("review of this type already exists for the booking")
	ErrPaymentRefUsed         = errors.New("payment reference is already used")

	ErrNotificationTaskNotFound = errors.New("notification task not found")
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
