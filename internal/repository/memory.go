package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rentdesk/internal/domain"
)

// MemoryLocker serializes work per resource within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[int64]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, resourceID int64) (func(), error) {
	l.mu.Lock()
	slot, ok := l.locks[resourceID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.locks[resourceID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: resource %d: %v", domain.ErrLockNotAcquired, resourceID, ctx.Err())
	}
}

type MemoryRateLimiter struct {
	rateLimits sync.Map
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{}
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryRateLimiter) CheckRateLimit(_ context.Context, actorID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, _ := r.rateLimits.LoadOrStore(actorID, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++

	return entry.count <= limit, nil
}
