package domain

import (
	"context"
	"time"

	"rentdesk/internal/models"
)

// BookingRepository is the durable store for bookings.
type BookingRepository interface {
	// CreateBookingWithLock re-checks the live set for the resource and inserts in one serialized transaction.
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// UpdateBookingWithVersion persists a transition computed from the row at fromVersion/fromStatus.
	UpdateBookingWithVersion(ctx context.Context, booking *models.Booking, fromVersion int64, fromStatus models.BookingStatus) error
	// ApproveBookingWithLock persists an approval after re-checking conflicts with other live bookings.
	ApproveBookingWithLock(ctx context.Context, booking *models.Booking, fromVersion int64) error
	HasConflict(ctx context.Context, resourceID int64, start, end time.Time, excludeID string) (bool, error)
	GetRenterBookings(ctx context.Context, renterID int64) ([]*models.Booking, error)
	GetResourceBookings(ctx context.Context, resourceID int64, from, to time.Time) ([]*models.Booking, error)
	GetPaidBookingsEndedBefore(ctx context.Context, before time.Time, limit int) ([]*models.Booking, error)
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, review *models.Review) error
	GetBookingReviews(ctx context.Context, bookingID string) ([]*models.Review, error)
}

// Catalog is the resource lookup collaborator.
type Catalog interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
}

// ResourceRepository is the writable side of the catalog.
type ResourceRepository interface {
	Catalog
	GetResources(ctx context.Context) ([]models.Resource, error)
	SetResourceAvailability(ctx context.Context, id int64, available bool) error
}

// Identity answers role questions about a booking.
type Identity interface {
	IsOwnerOf(ctx context.Context, resourceID, actorID int64) (bool, error)
	IsRenterOf(ctx context.Context, bookingID string, actorID int64) (bool, error)
}

// PaymentConfirmer checks an external payment reference. Calls are idempotent and may be repeated.
type PaymentConfirmer interface {
	ConfirmExternalPayment(ctx context.Context, ref string) (bool, error)
}

// ResourceLocker provides per-resource mutual exclusion around check-and-insert.
type ResourceLocker interface {
	Lock(ctx context.Context, resourceID int64) (unlock func(), err error)
}

// ActorRateLimiter counts requests per actor in a fixed window.
type ActorRateLimiter interface {
	CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier enqueues a best-effort notify(userId, eventType, bookingId).
type Notifier interface {
	Notify(ctx context.Context, userID int64, eventType string, bookingID string) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error)
	ApproveBooking(ctx context.Context, bookingID string, actorID int64, in ApproveInput) (*models.Booking, error)
	RejectBooking(ctx context.Context, bookingID string, actorID int64, reason string) (*models.Booking, error)
	RequestDeposit(ctx context.Context, bookingID string, actorID int64, amount models.Money, reason string) (*models.Booking, error)
	PayDeposit(ctx context.Context, bookingID string, actorID int64, paymentRef string) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID string, actorID int64, paymentRef string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string, actorID int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, actorID int64) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	HasConflict(ctx context.Context, resourceID int64, start, end time.Time) (bool, error)
	GetRenterBookings(ctx context.Context, renterID int64) ([]*models.Booking, error)
	GetResourceBookings(ctx context.Context, resourceID int64, from, to time.Time) ([]*models.Booking, error)
}

type ResourceService interface {
	ListResources(ctx context.Context) ([]models.Resource, error)
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	SetAvailability(ctx context.Context, resourceID, actorID int64, available bool) (*models.Resource, error)
}

type ReviewService interface {
	CreateReview(ctx context.Context, in CreateReviewInput) (*models.Review, error)
	GetBookingReviews(ctx context.Context, bookingID string) ([]*models.Review, error)
}

type CreateBookingInput struct {
	ResourceID int64     `json:"resource_id"`
	RenterID   int64     `json:"renter_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

type ApproveInput struct {
	DeliveryMethod models.DeliveryMethod `json:"delivery_method"`
	PickupLocation string                `json:"pickup_location"`
}

type CreateReviewInput struct {
	BookingID string            `json:"booking_id"`
	ActorID   int64             `json:"actor_id"`
	Rating    int               `json:"rating"`
	Comment   string            `json:"comment"`
	Type      models.ReviewType `json:"type"`
}
