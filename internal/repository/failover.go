package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"rentdesk/internal/domain"

	"github.com/rs/zerolog"
)

const primaryRetryAfter = time.Minute

// failoverState tracks whether the primary backend is considered down.
type failoverState struct {
	logger     *zerolog.Logger
	retryAfter time.Duration

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
}

// usePrimary reports whether the next call should go to the primary,
// probing it again once retryAfter has elapsed.
func (f *failoverState) usePrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.down {
		return true
	}
	if time.Since(f.lastCheck) > f.retryAfter {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *failoverState) markDown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.down {
		f.logger.Error().Err(err).Msg("primary repository failed, falling back to memory")
	}
	f.down = true
	f.lastCheck = time.Now()
}

func (f *failoverState) markUp() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		f.logger.Info().Msg("primary repository recovered")
	}
	f.down = false
}

type FailoverLocker struct {
	primary  domain.ResourceLocker
	fallback domain.ResourceLocker
	state    failoverState
}

func NewFailoverLocker(primary, fallback domain.ResourceLocker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		state:    failoverState{logger: logger, retryAfter: primaryRetryAfter},
	}
}

// Lock prefers the primary. Contention on the primary is returned as is;
// backend failures switch to the fallback.
func (l *FailoverLocker) Lock(ctx context.Context, resourceID int64) (func(), error) {
	if l.state.usePrimary() {
		unlock, err := l.primary.Lock(ctx, resourceID)
		if err == nil {
			l.state.markUp()
			return unlock, nil
		}
		if errors.Is(err, domain.ErrLockNotAcquired) {
			return nil, err
		}
		l.state.markDown(err)
	}

	return l.fallback.Lock(ctx, resourceID)
}

type FailoverRateLimiter struct {
	primary  domain.ActorRateLimiter
	fallback domain.ActorRateLimiter
	state    failoverState
}

func NewFailoverRateLimiter(primary, fallback domain.ActorRateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		state:    failoverState{logger: logger, retryAfter: primaryRetryAfter},
	}
}

func (r *FailoverRateLimiter) CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error) {
	if r.state.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, actorID, limit, window)
		if err == nil {
			r.state.markUp()
			return allowed, nil
		}
		r.state.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, actorID, limit, window)
}
