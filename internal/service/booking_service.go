package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentdesk/internal/clock"
	"rentdesk/internal/config"
	"rentdesk/internal/domain"
	"rentdesk/internal/events"
	"rentdesk/internal/metrics"
	"rentdesk/internal/models"
	"rentdesk/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	eventCreate         = "create"
	eventApprove        = "approve"
	eventReject         = "reject"
	eventRequestDeposit = "request_deposit"
	eventPayDeposit     = "pay_deposit"
	eventConfirmPayment = "confirm_payment"
	eventComplete       = "complete"
	eventCancel         = "cancel"
)

type BookingService struct {
	repo     domain.BookingRepository
	catalog  domain.Catalog
	identity domain.Identity
	payments domain.PaymentConfirmer
	locker   domain.ResourceLocker
	eventBus domain.EventPublisher
	clock    clock.Clock
	cfg      config.BookingConfig
	logger   *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	catalog domain.Catalog,
	identity domain.Identity,
	payments domain.PaymentConfirmer,
	locker domain.ResourceLocker,
	eventBus domain.EventPublisher,
	clk clock.Clock,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if cfg.MaxRentalDays <= 0 {
		cfg.MaxRentalDays = models.DefaultMaxRentalDays
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &BookingService{
		repo:     repo,
		catalog:  catalog,
		identity: identity,
		payments: payments,
		locker:   locker,
		eventBus: eventBus,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *BookingService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

func (s *BookingService) CreateBooking(ctx context.Context, in domain.CreateBookingInput) (booking *models.Booking, err error) {
	defer func() { s.observe(eventCreate, "", err) }()

	start := in.StartAt.UTC().Truncate(time.Second)
	end := in.EndAt.UTC().Truncate(time.Second)
	now := s.now()

	if err := s.validateRequest(in.ResourceID, in.RenterID, start, end, now); err != nil {
		return nil, err
	}

	resource, err := s.catalog.GetResource(ctx, in.ResourceID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if !resource.IsAvailable {
		return nil, fmt.Errorf("%w: resource %d", domain.ErrResourceUnavailable, resource.ID)
	}
	if resource.OwnerID == in.RenterID {
		return nil, validationError("owner cannot rent own resource %d", resource.ID)
	}

	if s.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTTL)
		unlock, err := s.locker.Lock(lockCtx, resource.ID)
		cancel()
		if err != nil {
			if errors.Is(err, domain.ErrLockNotAcquired) {
				return nil, fmt.Errorf("%w: %w", domain.ErrResourceBusy, err)
			}
			return nil, err
		}
		defer unlock()
	}

	total, err := pricing.Price(resource.PricePerDay, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	booking = &models.Booking{
		ID:         uuid.NewString(),
		ResourceID: resource.ID,
		RenterID:   in.RenterID,
		OwnerID:    resource.OwnerID,
		StartAt:    start,
		EndAt:      end,
		TotalPrice: total,
		Status:     models.StatusPendingApproval,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		return nil, translateStoreError(err)
	}

	s.publish(events.EventBookingCreated, booking, in.RenterID)
	return booking, nil
}

func (s *BookingService) validateRequest(resourceID, renterID int64, start, end, now time.Time) error {
	switch {
	case resourceID <= 0:
		return validationError("resource id is required")
	case renterID <= 0:
		return validationError("renter id is required")
	case start.IsZero() || end.IsZero():
		return validationError("start and end are required")
	case !start.Before(end):
		return validationError("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	case start.Before(now):
		return validationError("start %s is in the past", start.Format(time.RFC3339))
	case start.After(now.AddDate(0, 0, s.cfg.MaxBookingDays)):
		return validationError("start is more than %d days ahead", s.cfg.MaxBookingDays)
	case end.After(start.AddDate(0, 0, s.cfg.MaxRentalDays)):
		return validationError("booking is longer than %d days", s.cfg.MaxRentalDays)
	}
	return nil
}

func (s *BookingService) ApproveBooking(ctx context.Context, bookingID string, actorID int64, in domain.ApproveInput) (booking *models.Booking, err error) {
	defer func() { s.observe(eventApprove, bookingID, err) }()

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, current, actorID); err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(models.StatusApproved) {
		return nil, invalidStateError(bookingID, current.Status, eventApprove)
	}

	location := strings.TrimSpace(in.PickupLocation)
	switch in.DeliveryMethod {
	case models.DeliveryPickup:
		if location == "" {
			return nil, validationError("pickup location is required for pickup delivery")
		}
	case models.DeliveryShipping:
		location = ""
	default:
		return nil, validationError("invalid delivery method %q", in.DeliveryMethod)
	}

	now := s.now()
	next := current.Clone()
	next.Status = models.StatusApproved
	next.ApprovedAt = &now
	next.DeliveryMethod = in.DeliveryMethod
	next.PickupLocation = location
	next.DeliveryCode = newDeliveryCode()
	next.UpdatedAt = now

	if err := s.repo.ApproveBookingWithLock(ctx, next, current.Version); err != nil {
		return nil, translateStoreError(err)
	}

	s.publish(events.EventBookingApproved, next, actorID)
	return next, nil
}

func (s *BookingService) RejectBooking(ctx context.Context, bookingID string, actorID int64, reason string) (booking *models.Booking, err error) {
	defer func() { s.observe(eventReject, bookingID, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("rejection reason is required")
	}

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, current, actorID); err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(models.StatusRejected) {
		return nil, invalidStateError(bookingID, current.Status, eventReject)
	}

	next := current.Clone()
	next.Status = models.StatusRejected
	next.RejectionReason = reason
	next.UpdatedAt = s.now()

	if err := s.save(ctx, current, next); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingRejected, next, actorID)
	return next, nil
}

func (s *BookingService) RequestDeposit(ctx context.Context, bookingID string, actorID int64, amount models.Money, reason string) (booking *models.Booking, err error) {
	defer func() { s.observe(eventRequestDeposit, bookingID, err) }()

	if amount <= 0 {
		return nil, validationError("deposit amount must be positive")
	}

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, current, actorID); err != nil {
		return nil, err
	}
	if current.Status != models.StatusApproved {
		return nil, invalidStateError(bookingID, current.Status, eventRequestDeposit)
	}
	if current.Deposit.Requested() {
		return nil, fmt.Errorf("%w: deposit already requested for booking %s", domain.ErrInvalidState, bookingID)
	}

	now := s.now()
	next := current.Clone()
	next.Deposit = &models.Deposit{
		Amount:      amount,
		Reason:      strings.TrimSpace(reason),
		RequestedAt: now,
	}
	next.UpdatedAt = now

	if err := s.save(ctx, current, next); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingDepositRequested, next, actorID)
	return next, nil
}

// PayDeposit settles a requested deposit after the payment collaborator confirms paymentRef.
func (s *BookingService) PayDeposit(ctx context.Context, bookingID string, actorID int64, paymentRef string) (booking *models.Booking, err error) {
	defer func() { s.observe(eventPayDeposit, bookingID, err) }()

	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, validationError("payment reference is required")
	}

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRenter(ctx, current, actorID); err != nil {
		return nil, err
	}
	if current.Status != models.StatusApproved {
		return nil, invalidStateError(bookingID, current.Status, eventPayDeposit)
	}
	if !current.Deposit.Requested() {
		return nil, fmt.Errorf("%w: no deposit requested for booking %s", domain.ErrInvalidState, bookingID)
	}
	if current.Deposit.Paid() {
		return nil, fmt.Errorf("%w: deposit already paid for booking %s", domain.ErrInvalidState, bookingID)
	}

	if err := s.confirmExternalPayment(ctx, bookingID, paymentRef); err != nil {
		return nil, err
	}

	now := s.now()
	next := current.Clone()
	next.Deposit.PaidAt = &now
	next.Deposit.PaymentRef = paymentRef
	next.UpdatedAt = now

	if err := s.save(ctx, current, next); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingDepositPaid, next, actorID)
	return next, nil
}

// ConfirmPayment moves an approved booking to paid once the payment reference is confirmed.
// A requested deposit has to be settled first.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID string, actorID int64, paymentRef string) (booking *models.Booking, err error) {
	defer func() { s.observe(eventConfirmPayment, bookingID, err) }()

	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, validationError("payment reference is required")
	}

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != models.SystemActorID {
		if err := s.requireRenter(ctx, current, actorID); err != nil {
			return nil, err
		}
	}
	if !current.Status.CanTransitionTo(models.StatusPaid) {
		return nil, invalidStateError(bookingID, current.Status, eventConfirmPayment)
	}
	if current.Deposit.Requested() && !current.Deposit.Paid() {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrDepositUnpaid, bookingID)
	}
	if current.Deposit.Paid() && current.Deposit.PaymentRef == paymentRef {
		return nil, validationError("payment reference %q already settled the deposit", paymentRef)
	}

	if err := s.confirmExternalPayment(ctx, bookingID, paymentRef); err != nil {
		return nil, err
	}

	now := s.now()
	next := current.Clone()
	next.Status = models.StatusPaid
	next.PaidAt = &now
	next.PaymentRef = paymentRef
	next.UpdatedAt = now

	if err := s.save(ctx, current, next); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingPaid, next, actorID)
	return next, nil
}

// CompleteBooking finishes a paid booking whose interval has ended.
// Completing an already completed booking returns it unchanged.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID string, actorID int64) (booking *models.Booking, err error) {
	defer func() { s.observe(eventComplete, bookingID, err) }()

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != models.SystemActorID {
		if err := s.requireOwner(ctx, current, actorID); err != nil {
			return nil, err
		}
	}
	if current.Status == models.StatusCompleted {
		return current, nil
	}
	if !current.Status.CanTransitionTo(models.StatusCompleted) {
		return nil, invalidStateError(bookingID, current.Status, eventComplete)
	}

	now := s.now()
	if now.Before(current.EndAt) {
		return nil, fmt.Errorf("%w: booking %s ends at %s", domain.ErrInvalidState, bookingID, current.EndAt.Format(time.RFC3339))
	}

	next := current.Clone()
	next.Status = models.StatusCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now

	if err := s.save(ctx, current, next); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			if latest, loadErr := s.load(ctx, bookingID); loadErr == nil && latest.Status == models.StatusCompleted {
				return latest, nil
			}
		}
		return nil, err
	}

	s.publish(events.EventBookingCompleted, next, actorID)
	return next, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID string, actorID int64) (booking *models.Booking, err error) {
	defer func() { s.observe(eventCancel, bookingID, err) }()

	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	isRenter, err := s.identity.IsRenterOf(ctx, current.ID, actorID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	isOwner, err := s.identity.IsOwnerOf(ctx, current.ResourceID, actorID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if !isRenter && !isOwner {
		return nil, fmt.Errorf("%w: actor %d is not a participant of booking %s", domain.ErrForbidden, actorID, bookingID)
	}

	if current.Status == models.StatusPaid {
		return nil, fmt.Errorf("%w: booking %s is paid, cancellation is handled by refunds", domain.ErrUnsupported, bookingID)
	}
	if !current.Status.CanTransitionTo(models.StatusCancelled) {
		return nil, invalidStateError(bookingID, current.Status, eventCancel)
	}

	now := s.now()
	next := current.Clone()
	next.Status = models.StatusCancelled
	next.CancelledAt = &now
	next.UpdatedAt = now

	if err := s.save(ctx, current, next); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCancelled, next, actorID)
	return next, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.load(ctx, bookingID)
}

// HasConflict reports whether any live booking of the resource overlaps [start, end).
func (s *BookingService) HasConflict(ctx context.Context, resourceID int64, start, end time.Time) (bool, error) {
	if !start.Before(end) {
		return false, validationError("start must be before end")
	}
	conflict, err := s.repo.HasConflict(ctx, resourceID, start, end, "")
	if err != nil {
		return false, translateStoreError(err)
	}
	return conflict, nil
}

func (s *BookingService) GetRenterBookings(ctx context.Context, renterID int64) ([]*models.Booking, error) {
	bookings, err := s.repo.GetRenterBookings(ctx, renterID)
	return bookings, translateStoreError(err)
}

func (s *BookingService) GetResourceBookings(ctx context.Context, resourceID int64, from, to time.Time) ([]*models.Booking, error) {
	if !from.Before(to) {
		return nil, validationError("from must be before to")
	}
	bookings, err := s.repo.GetResourceBookings(ctx, resourceID, from, to)
	return bookings, translateStoreError(err)
}

func (s *BookingService) load(ctx context.Context, bookingID string) (*models.Booking, error) {
	if bookingID == "" {
		return nil, validationError("booking id is required")
	}
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return booking, nil
}

// save persists next only if the stored row is still at current's version and status.
func (s *BookingService) save(ctx context.Context, current, next *models.Booking) error {
	if err := s.repo.UpdateBookingWithVersion(ctx, next, current.Version, current.Status); err != nil {
		return translateStoreError(err)
	}
	return nil
}

func (s *BookingService) requireOwner(ctx context.Context, booking *models.Booking, actorID int64) error {
	ok, err := s.identity.IsOwnerOf(ctx, booking.ResourceID, actorID)
	if err != nil {
		return translateStoreError(err)
	}
	if !ok {
		return fmt.Errorf("%w: actor %d does not own resource %d", domain.ErrForbidden, actorID, booking.ResourceID)
	}
	return nil
}

func (s *BookingService) requireRenter(ctx context.Context, booking *models.Booking, actorID int64) error {
	ok, err := s.identity.IsRenterOf(ctx, booking.ID, actorID)
	if err != nil {
		return translateStoreError(err)
	}
	if !ok {
		return fmt.Errorf("%w: actor %d is not the renter of booking %s", domain.ErrForbidden, actorID, booking.ID)
	}
	return nil
}

// confirmExternalPayment asks the payment collaborator within the configured timeout.
// Any failure to get an answer is reported as an upstream error.
func (s *BookingService) confirmExternalPayment(ctx context.Context, bookingID, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	started := time.Now()
	confirmed, err := s.payments.ConfirmExternalPayment(ctx, ref)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	metrics.ObservePayment(started, err)

	if err != nil {
		s.logger.Error().Err(err).
			Str("booking_id", bookingID).
			Str("payment_ref", ref).
			Msg("payment confirmation failed")
		return fmt.Errorf("%w: payment confirmation: %v", domain.ErrUpstream, err)
	}
	if !confirmed {
		return fmt.Errorf("%w: reference %s", domain.ErrPaymentNotConfirmed, ref)
	}
	return nil
}

func (s *BookingService) observe(event, bookingID string, err error) {
	metrics.ObserveTransition(event, err)
	if err == nil {
		return
	}
	s.logger.Warn().Err(err).
		Str("booking_id", bookingID).
		Str("event", event).
		Msg("booking operation rejected")
}

func (s *BookingService) publish(eventType string, booking *models.Booking, actorID int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		ResourceID: booking.ResourceID,
		RenterID:   booking.RenterID,
		OwnerID:    booking.OwnerID,
		Status:     booking.Status.String(),
		StartAt:    booking.StartAt,
		EndAt:      booking.EndAt,
		Reason:     booking.RejectionReason,
		ActorID:    actorID,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).
			Str("booking_id", booking.ID).
			Str("event_type", eventType).
			Msg("failed to publish booking event")
	}
}

func newDeliveryCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
