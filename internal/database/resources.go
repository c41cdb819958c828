package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rentdesk/internal/models"
)

// SyncResources upserts the configured catalog and refreshes the cache.
func (db *DB) SyncResources(ctx context.Context, resources []models.Resource) error {
	now := nowUTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range resources {
			r := resources[i]
			_, err := tx.ExecContext(ctx, `
                INSERT INTO resources (id, owner_id, name, price_per_day, is_available, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(id) DO UPDATE SET
                    owner_id = excluded.owner_id,
                    name = excluded.name,
                    price_per_day = excluded.price_per_day,
                    is_available = excluded.is_available,
                    updated_at = excluded.updated_at`,
				r.ID, r.OwnerID, r.Name, int64(r.PricePerDay), r.IsAvailable, toUnix(now), toUnix(now))
			if err != nil {
				return fmt.Errorf("failed to upsert resource %d: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.mu.Lock()
	db.resourcesCache = make(map[int64]models.Resource, len(resources))
	db.resourcesGen++
	db.mu.Unlock()

	db.logger.Info().Int("count", len(resources)).Msg("resources synced")
	return nil
}

func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	db.mu.RLock()
	cached, ok := db.resourcesCache[id]
	gen := db.resourcesGen
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	var (
		r                    models.Resource
		createdAt, updatedAt int64
	)
	err := db.QueryRowContext(ctx, `
        SELECT id, owner_id, name, price_per_day, is_available, created_at, updated_at
        FROM resources WHERE id = ?`, id).
		Scan(&r.ID, &r.OwnerID, &r.Name, &r.PricePerDay, &r.IsAvailable, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updatedAt)

	db.cacheResource(r, gen)
	return &r, nil
}

// cacheResource stores r unless a resource write happened after generation gen was observed.
func (db *DB) cacheResource(r models.Resource, gen uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.resourcesGen != gen {
		return
	}
	db.resourcesCache[r.ID] = r
}

func (db *DB) GetResources(ctx context.Context) ([]models.Resource, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, owner_id, name, price_per_day, is_available, created_at, updated_at
        FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var (
			r                    models.Resource
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.PricePerDay, &r.IsAvailable, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.CreatedAt = fromUnix(createdAt)
		r.UpdatedAt = fromUnix(updatedAt)
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

func (db *DB) SetResourceAvailability(ctx context.Context, id int64, available bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE resources SET is_available = ?, updated_at = ? WHERE id = ?`,
		available, toUnix(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update resource availability: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrResourceNotFound
	}

	db.mu.Lock()
	delete(db.resourcesCache, id)
	db.resourcesGen++
	db.mu.Unlock()
	return nil
}

// IsOwnerOf reports whether actorID owns the resource.
func (db *DB) IsOwnerOf(ctx context.Context, resourceID, actorID int64) (bool, error) {
	r, err := db.GetResource(ctx, resourceID)
	if err != nil {
		return false, err
	}
	return r.OwnerID == actorID, nil
}
