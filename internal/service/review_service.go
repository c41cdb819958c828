package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rentdesk/internal/clock"
	"rentdesk/internal/domain"
	"rentdesk/internal/metrics"
	"rentdesk/internal/models"

	"github.com/rs/zerolog"
)

const eventReview = "review"

// ReviewService lets participants of a completed booking leave one review each.
type ReviewService struct {
	bookings domain.BookingRepository
	reviews  domain.ReviewRepository
	identity domain.Identity
	clock    clock.Clock
	logger   *zerolog.Logger
}

func NewReviewService(bookings domain.BookingRepository, reviews domain.ReviewRepository, identity domain.Identity, clk clock.Clock, logger *zerolog.Logger) *ReviewService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &ReviewService{
		bookings: bookings,
		reviews:  reviews,
		identity: identity,
		clock:    clk,
		logger:   logger,
	}
}

func (s *ReviewService) CreateReview(ctx context.Context, in domain.CreateReviewInput) (review *models.Review, err error) {
	defer func() {
		metrics.ObserveTransition(eventReview, err)
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", in.BookingID).Msg("review rejected")
		}
	}()

	if in.BookingID == "" {
		return nil, validationError("booking id is required")
	}
	if in.Rating < models.MinRating || in.Rating > models.MaxRating {
		return nil, validationError("rating must be between %d and %d", models.MinRating, models.MaxRating)
	}
	if !in.Type.IsValid() {
		return nil, validationError("invalid review type %q", in.Type)
	}

	booking, err := s.bookings.GetBooking(ctx, in.BookingID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	var allowed bool
	switch in.Type {
	case models.ReviewByRenter:
		allowed, err = s.identity.IsRenterOf(ctx, booking.ID, in.ActorID)
	case models.ReviewByOwner:
		allowed, err = s.identity.IsOwnerOf(ctx, booking.ResourceID, in.ActorID)
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: actor %d cannot leave a %s review for booking %s", domain.ErrForbidden, in.ActorID, in.Type, booking.ID)
	}

	if booking.Status != models.StatusCompleted {
		return nil, invalidStateError(booking.ID, booking.Status, eventReview)
	}

	review = &models.Review{
		BookingID: booking.ID,
		AuthorID:  in.ActorID,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		Type:      in.Type,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Second),
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("type", string(review.Type)).
		Int("rating", review.Rating).
		Msg("review created")
	return review, nil
}

func (s *ReviewService) GetBookingReviews(ctx context.Context, bookingID string) ([]*models.Review, error) {
	if _, err := s.bookings.GetBooking(ctx, bookingID); err != nil {
		return nil, translateStoreError(err)
	}
	reviews, err := s.reviews.GetBookingReviews(ctx, bookingID)
	return reviews, translateStoreError(err)
}
