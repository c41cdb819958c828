package models

// SystemActorID identifies calls made by the engine itself (sweeper, payment webhook).
const SystemActorID int64 = 0

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

const (
	// HoursPerDay is the billing unit of the pricing calculator.
	HoursPerDay = 24

	// DefaultMaxBookingDays limits how far ahead a booking may start.
	DefaultMaxBookingDays = 365

	// DefaultMaxRentalDays limits the length of a single booking.
	DefaultMaxRentalDays = 90

	// NotificationQueueSize is the in-memory notification queue capacity.
	NotificationQueueSize = 1000
)
