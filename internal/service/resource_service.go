package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rentdesk/internal/domain"
	"rentdesk/internal/models"

	"github.com/rs/zerolog"
)

// ResourceService serves the rentable catalog and lets owners take items off the market.
type ResourceService struct {
	repo      domain.ResourceRepository
	logger    *zerolog.Logger
	resources []models.Resource
	byID      map[int64]models.Resource
	mu        sync.RWMutex
}

func NewResourceService(repo domain.ResourceRepository, logger *zerolog.Logger) *ResourceService {
	return &ResourceService{
		repo:   repo,
		logger: logger,
	}
}

// ListResources returns the catalog ordered by id.
func (s *ResourceService) ListResources(ctx context.Context) ([]models.Resource, error) {
	s.mu.RLock()
	cached := s.resources
	s.mu.RUnlock()
	if cached != nil {
		return append([]models.Resource(nil), cached...), nil
	}

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Resource(nil), s.resources...), nil
}

func (s *ResourceService) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	if id <= 0 {
		return nil, validationError("resource id must be positive")
	}

	s.mu.RLock()
	res, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return &res, nil
	}

	found, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return found, nil
}

// SetAvailability toggles whether new bookings are accepted. Existing bookings are untouched.
func (s *ResourceService) SetAvailability(ctx context.Context, resourceID, actorID int64, available bool) (*models.Resource, error) {
	res, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.OwnerID != actorID {
		return nil, fmt.Errorf("%w: actor %d does not own resource %d", domain.ErrForbidden, actorID, resourceID)
	}

	if err := s.repo.SetResourceAvailability(ctx, resourceID, available); err != nil {
		return nil, translateStoreError(err)
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("refresh resource cache")
	}

	s.logger.Info().
		Int64("resource_id", resourceID).
		Int64("actor_id", actorID).
		Bool("available", available).
		Msg("resource availability changed")

	res.IsAvailable = available
	return res, nil
}

// Refresh reloads the catalog from the store.
func (s *ResourceService) Refresh(ctx context.Context) error {
	resources, err := s.repo.GetResources(ctx)
	if err != nil {
		return err
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	if resources == nil {
		resources = []models.Resource{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = resources
	s.byID = make(map[int64]models.Resource, len(resources))
	for _, r := range resources {
		s.byID[r.ID] = r
	}
	return nil
}
