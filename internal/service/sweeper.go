package service

import (
	"context"
	"time"

	"rentdesk/internal/clock"
	"rentdesk/internal/domain"
	"rentdesk/internal/models"

	"github.com/rs/zerolog"
)

// CompletionSweeper periodically completes paid bookings whose interval has ended.
type CompletionSweeper struct {
	repo      domain.BookingRepository
	bookings  domain.BookingService
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *zerolog.Logger
}

func NewCompletionSweeper(repo domain.BookingRepository, bookings domain.BookingService, clk clock.Clock, interval time.Duration, batchSize int, logger *zerolog.Logger) *CompletionSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &CompletionSweeper{
		repo:      repo,
		bookings:  bookings,
		clock:     clk,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (s *CompletionSweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("completion sweeper started")
	defer s.logger.Info().Msg("completion sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("completion sweep failed")
			}
		}
	}
}

// RunOnce completes one batch of due bookings and returns how many were completed.
func (s *CompletionSweeper) RunOnce(ctx context.Context) (int, error) {
	due, err := s.repo.GetPaidBookingsEndedBefore(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, booking := range due {
		if _, err := s.bookings.CompleteBooking(ctx, booking.ID, models.SystemActorID); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("failed to complete booking")
			continue
		}
		completed++
	}

	if len(due) > 0 {
		s.logger.Info().Int("due", len(due)).Int("completed", completed).Msg("completion sweep finished")
	}
	return completed, nil
}
