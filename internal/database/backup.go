package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls the periodic snapshot loop.
type BackupConfig struct {
	Enabled       bool
	Interval      time.Duration
	Dir           string
	RetentionDays int
}

type BackupService struct {
	db     *DB
	config BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg BackupConfig, logger *zerolog.Logger) *BackupService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &BackupService{db: db, config: cfg, logger: logger}
}

// Start snapshots the database once immediately and then every interval until ctx ends.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.config.Interval).Str("dir", s.config.Dir).Msg("Backup service started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	if removed, err := s.CleanupOldBackups(); err != nil {
		s.logger.Error().Err(err).Msg("Backup cleanup failed")
	} else if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups removed")
	}
}

// PerformBackup writes a consistent snapshot with VACUUM INTO and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", time.Now().Format("20060102_150405.000"))
	path := filepath.Join(s.config.Dir, name)

	s.logger.Info().Str("path", path).Msg("Performing database backup")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return path, nil
}

// CleanupOldBackups deletes backup files older than the retention window.
func (s *BackupService) CleanupOldBackups() (int, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "backup_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.config.Dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
