package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rentdesk/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite store. A single connection serializes writers, and
// transactions start with BEGIN IMMEDIATE so check-then-insert paths are serializable.
type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu             sync.RWMutex
	resourcesCache map[int64]models.Resource
	// resourcesGen is bumped on every resource write; reads started before a bump are not cached.
	resourcesGen uint64
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:             sqlDB,
		logger:         logger,
		resourcesCache: make(map[int64]models.Resource),
	}

	if err := db.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func dsn(path string) string {
	params := "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
            id INTEGER PRIMARY KEY,
            owner_id INTEGER NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            price_per_day INTEGER NOT NULL CHECK (price_per_day >= 0),
            is_available BOOLEAN NOT NULL DEFAULT 1,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            resource_id INTEGER NOT NULL,
            renter_id INTEGER NOT NULL,
            owner_id INTEGER NOT NULL,
            start_at INTEGER NOT NULL,
            end_at INTEGER NOT NULL,
            total_price INTEGER NOT NULL CHECK (total_price >= 0),
            status TEXT NOT NULL CHECK (status IN ('pending_approval', 'approved', 'rejected', 'paid', 'completed', 'cancelled')),
            delivery_method TEXT NOT NULL DEFAULT '' CHECK (delivery_method IN ('', 'pickup', 'shipping')),
            pickup_location TEXT NOT NULL DEFAULT '',
            delivery_code TEXT NOT NULL DEFAULT '',
            rejection_reason TEXT NOT NULL DEFAULT '',
            payment_ref TEXT NOT NULL DEFAULT '',
            approved_at INTEGER,
            paid_at INTEGER,
            completed_at INTEGER,
            cancelled_at INTEGER,
            deposit_amount INTEGER,
            deposit_reason TEXT,
            deposit_requested_at INTEGER,
            deposit_paid_at INTEGER,
            deposit_payment_ref TEXT,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (start_at < end_at),
            CHECK (delivery_method <> 'pickup' OR pickup_location <> ''),
            CHECK (
                (deposit_amount IS NULL AND deposit_requested_at IS NULL AND deposit_paid_at IS NULL)
                OR (deposit_amount > 0 AND deposit_requested_at IS NOT NULL)
            )
        )`,
		`CREATE TABLE IF NOT EXISTS reviews (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id TEXT NOT NULL REFERENCES bookings(id),
            author_id INTEGER NOT NULL,
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL CHECK (type IN ('renter', 'owner')),
            created_at INTEGER NOT NULL,
            UNIQUE (booking_id, type)
        )`,
		`CREATE TABLE IF NOT EXISTS notification_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            event_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at INTEGER NOT NULL,
            processed_at INTEGER,
            next_retry_at INTEGER
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_live ON bookings(resource_id, status, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_renter_id ON bookings(renter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_end ON bookings(status, end_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_payment_ref ON bookings(payment_ref) WHERE payment_ref <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_deposit_payment_ref ON bookings(deposit_payment_ref) WHERE deposit_payment_ref <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_status ON notification_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction and commits when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Timestamps are stored as unix seconds so interval predicates compare numerically.

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
