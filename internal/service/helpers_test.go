package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rentdesk/internal/clock"
	"rentdesk/internal/config"
	"rentdesk/internal/database"
	"rentdesk/internal/domain"
	"rentdesk/internal/events"
	"rentdesk/internal/models"
	"rentdesk/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ownerID    int64 = 100
	renterID   int64 = 7
	otherID    int64 = 8
	resourceID int64 = 1
)

var baseNow = time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) ConfirmExternalPayment(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

type blockingPayments struct{}

func (blockingPayments) ConfirmExternalPayment(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

type notification struct {
	UserID    int64
	EventType string
	BookingID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, eventType, bookingID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, EventType: eventType, BookingID: bookingID})
	return n.err
}

func (n *recordingNotifier) events() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type testEnv struct {
	db        *database.DB
	clock     *clock.Fixed
	payments  *mockPayments
	notifier  *recordingNotifier
	bookings  *BookingService
	reviews   *ReviewService
	resources *ResourceService
}

func setupEnv(t *testing.T) *testEnv {
	return setupEnvWithPayments(t, nil)
}

func setupEnvWithPayments(t *testing.T, payments domain.PaymentConfirmer) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.SyncResources(context.Background(), []models.Resource{
		{ID: resourceID, OwnerID: ownerID, Name: "Evening dress", PricePerDay: 5000, IsAvailable: true},
		{ID: 2, OwnerID: ownerID, Name: "Tuxedo", PricePerDay: 7000, IsAvailable: false},
	}))

	env := &testEnv{
		db:       db,
		clock:    clock.NewFixed(baseNow),
		payments: new(mockPayments),
		notifier: &recordingNotifier{},
	}
	if payments == nil {
		payments = env.payments
	}

	bus := events.NewEventBus()
	NewNotificationDispatcher(env.notifier, &logger).Register(bus)

	env.bookings = NewBookingService(db, db, db, payments, repository.NewMemoryLocker(), bus, env.clock, config.BookingConfig{
		MaxBookingDays: 90,
		PaymentTimeout: 50 * time.Millisecond,
		LockTTL:        time.Second,
	}, &logger)
	env.reviews = NewReviewService(db, db, db, env.clock, &logger)
	env.resources = NewResourceService(db, &logger)
	return env
}

func day(n int) time.Time {
	return baseNow.Add(24 * time.Hour).Add(time.Duration(n) * 24 * time.Hour)
}

func (e *testEnv) create(t *testing.T, start, end time.Time) *models.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(context.Background(), domain.CreateBookingInput{
		ResourceID: resourceID, RenterID: renterID, StartAt: start, EndAt: end,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) approve(t *testing.T, id string) *models.Booking {
	t.Helper()
	b, err := e.bookings.ApproveBooking(context.Background(), id, ownerID, domain.ApproveInput{
		DeliveryMethod: models.DeliveryPickup, PickupLocation: "Shop on Main St",
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) pay(t *testing.T, id, ref string) *models.Booking {
	t.Helper()
	e.payments.On("ConfirmExternalPayment", mock.Anything, ref).Return(true, nil).Once()
	b, err := e.bookings.ConfirmPayment(context.Background(), id, renterID, ref)
	require.NoError(t, err)
	return b
}

// paidBooking returns a booking for [day(0), day(2)) moved to paid.
func (e *testEnv) paidBooking(t *testing.T) *models.Booking {
	t.Helper()
	b := e.create(t, day(0), day(2))
	e.approve(t, b.ID)
	return e.pay(t, b.ID, "pay-"+b.ID)
}

func (e *testEnv) completedBooking(t *testing.T) *models.Booking {
	t.Helper()
	b := e.paidBooking(t)
	e.clock.Set(day(3))
	done, err := e.bookings.CompleteBooking(context.Background(), b.ID, ownerID)
	require.NoError(t, err)
	return done
}
