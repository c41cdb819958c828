package models

import "time"

// NotificationTask is a queued notify(userId, eventType, bookingId) delivery.
type NotificationTask struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	EventType   string     `json:"event_type"`
	BookingID   string     `json:"booking_id"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
