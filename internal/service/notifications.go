package service

import (
	"context"
	"errors"
	"fmt"

	"rentdesk/internal/domain"
	"rentdesk/internal/events"

	"github.com/rs/zerolog"
)

// NotificationDispatcher turns booking events into notify(userID, eventType, bookingID) calls.
type NotificationDispatcher struct {
	notifier domain.Notifier
	logger   *zerolog.Logger
}

func NewNotificationDispatcher(notifier domain.Notifier, logger *zerolog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{notifier: notifier, logger: logger}
}

// Register subscribes the dispatcher to every booking event on the bus.
func (d *NotificationDispatcher) Register(bus *events.EventBus) {
	bus.Subscribe(d.Handle, events.BookingEvents...)
}

func (d *NotificationDispatcher) Handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	var errs []error
	for _, userID := range Recipients(event.Type, payload) {
		if err := d.notifier.Notify(context.Background(), userID, event.Type, payload.BookingID); err != nil {
			d.logger.Warn().Err(err).
				Int64("user_id", userID).
				Str("event_type", event.Type).
				Str("booking_id", payload.BookingID).
				Msg("failed to enqueue notification")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recipients returns who is told about an event: the counterpart of whoever acted.
func Recipients(eventType string, p events.BookingEventPayload) []int64 {
	switch eventType {
	case events.EventBookingCreated, events.EventBookingDepositPaid, events.EventBookingPaid:
		return []int64{p.OwnerID}
	case events.EventBookingApproved, events.EventBookingRejected, events.EventBookingDepositRequested:
		return []int64{p.RenterID}
	case events.EventBookingCompleted:
		return []int64{p.RenterID, p.OwnerID}
	case events.EventBookingCancelled:
		if p.ActorID == p.RenterID {
			return []int64{p.OwnerID}
		}
		return []int64{p.RenterID}
	default:
		return nil
	}
}
