package service

import (
	"context"
	"sync"
	"testing"

	"rentdesk/internal/domain"
	"rentdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReview(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	b := env.completedBooking(t)

	review, err := env.reviews.CreateReview(ctx, domain.CreateReviewInput{
		BookingID: b.ID, ActorID: renterID, Rating: 5, Comment: "  perfect fit ", Type: models.ReviewByRenter,
	})
	require.NoError(t, err)
	assert.NotZero(t, review.ID)
	assert.Equal(t, "perfect fit", review.Comment)
	assert.Equal(t, renterID, review.AuthorID)

	_, err = env.reviews.CreateReview(ctx, domain.CreateReviewInput{
		BookingID: b.ID, ActorID: renterID, Rating: 4, Type: models.ReviewByRenter,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)

	_, err = env.reviews.CreateReview(ctx, domain.CreateReviewInput{
		BookingID: b.ID, ActorID: ownerID, Rating: 4, Type: models.ReviewByOwner,
	})
	require.NoError(t, err)

	reviews, err := env.reviews.GetBookingReviews(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
}

func TestCreateReview_Gates(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	completed := env.completedBooking(t)
	pending := env.create(t, day(10), day(11))

	tests := []struct {
		name    string
		in      domain.CreateReviewInput
		wantErr error
	}{
		{"rating too low", domain.CreateReviewInput{BookingID: completed.ID, ActorID: renterID, Rating: 0, Type: models.ReviewByRenter}, domain.ErrValidation},
		{"rating too high", domain.CreateReviewInput{BookingID: completed.ID, ActorID: renterID, Rating: 6, Type: models.ReviewByRenter}, domain.ErrValidation},
		{"bad type", domain.CreateReviewInput{BookingID: completed.ID, ActorID: renterID, Rating: 3, Type: "guest"}, domain.ErrValidation},
		{"missing booking id", domain.CreateReviewInput{ActorID: renterID, Rating: 3, Type: models.ReviewByRenter}, domain.ErrValidation},
		{"unknown booking", domain.CreateReviewInput{BookingID: "missing", ActorID: renterID, Rating: 3, Type: models.ReviewByRenter}, domain.ErrNotFound},
		{"owner posing as renter", domain.CreateReviewInput{BookingID: completed.ID, ActorID: ownerID, Rating: 3, Type: models.ReviewByRenter}, domain.ErrForbidden},
		{"renter posing as owner", domain.CreateReviewInput{BookingID: completed.ID, ActorID: renterID, Rating: 3, Type: models.ReviewByOwner}, domain.ErrForbidden},
		{"stranger", domain.CreateReviewInput{BookingID: completed.ID, ActorID: otherID, Rating: 3, Type: models.ReviewByRenter}, domain.ErrForbidden},
		{"not completed", domain.CreateReviewInput{BookingID: pending.ID, ActorID: renterID, Rating: 3, Type: models.ReviewByRenter}, domain.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reviews.CreateReview(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	reviews, err := env.reviews.GetBookingReviews(ctx, completed.ID)
	require.NoError(t, err)
	assert.Empty(t, reviews)

	_, err = env.reviews.GetBookingReviews(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateReview_ConcurrentAtMostOnce(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	b := env.completedBooking(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.reviews.CreateReview(ctx, domain.CreateReviewInput{
				BookingID: b.ID, ActorID: renterID, Rating: 5, Type: models.ReviewByRenter,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)
	}
	assert.Equal(t, 1, success)
}
