package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rentdesk/internal/config"

	"github.com/rs/zerolog"
)

const (
	snapshotPrefix   = "rentdesk_"
	snapshotExt      = ".db"
	snapshotStamp    = "20060102T150405Z"
	defaultSnapEvery = 24 * time.Hour
)

// BackupService writes point-in-time copies of the booking store and prunes expired ones.
type BackupService struct {
	db     *DB
	dbPath string
	cfg    config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		dbPath: dbPath,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start snapshots once immediately and then on every tick until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("snapshots disabled")
		return
	}

	every := s.interval()
	s.logger.Info().Dur("every", every).Str("dir", s.cfg.StoragePath).Msg("snapshot loop started")

	s.runOnce(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("snapshot loop stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) interval() time.Duration {
	if s.cfg.Schedule == "" {
		return defaultSnapEvery
	}
	d, err := time.ParseDuration(s.cfg.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.cfg.Schedule).Msg("bad snapshot schedule, using 24h")
		return defaultSnapEvery
	}
	return d
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.Snapshot(ctx); err != nil {
		s.logger.Error().Err(err).Msg("snapshot failed")
	}
	if removed, err := s.Prune(); err != nil {
		s.logger.Warn().Err(err).Msg("prune snapshots")
	} else if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("expired snapshots pruned")
	}
}

// Snapshot writes a consistent copy of the store and returns its path.
// VACUUM INTO is preferred; a raw file copy is used when the live handle is unavailable.
func (s *BackupService) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	target := filepath.Join(s.cfg.StoragePath, snapshotPrefix+s.now().UTC().Format(snapshotStamp)+snapshotExt)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("snapshot %s already exists", filepath.Base(target))
	}

	if s.db != nil {
		_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", target)
		if err == nil {
			s.logger.Info().Str("path", target).Msg("snapshot written")
			return target, nil
		}
		s.logger.Warn().Err(err).Msg("vacuum into failed, copying file")
		_ = os.Remove(target)
	}

	if err := copyFile(s.dbPath, target); err != nil {
		return "", fmt.Errorf("copy store: %w", err)
	}
	s.logger.Info().Str("path", target).Msg("snapshot copied")
	return target, nil
}

// Prune removes snapshots older than the retention window and reports how many went.
// Files without the snapshot prefix are never touched.
func (s *BackupService) Prune() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read snapshot dir: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// copyFile is not consistent under concurrent writes.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
