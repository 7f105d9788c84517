package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Snapshotter writes a consistent copy of its data to dest.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

type Config struct {
	Interval      time.Duration
	Path          string
	RetentionDays int
	Ext           string // file extension of a snapshot, e.g. ".db"
}

type Service struct {
	source Snapshotter
	config Config
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(source Snapshotter, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Ext == "" {
		cfg.Ext = ".bak"
	}
	return &Service{
		source: source,
		config: cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "backup").Logger(),
	}
}

// Start takes a backup immediately and then every interval until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.config.Interval).Str("path", s.config.Path).Msg("Backup service started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes one snapshot and returns its path.
func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s%s", s.now().Format("20060102_150405"), s.config.Ext)
	dest := filepath.Join(s.config.Path, name)

	s.logger.Info().Str("path", dest).Msg("Performing backup")
	if err := s.source.Snapshot(ctx, dest); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	s.logger.Info().Str("path", dest).Msg("Backup completed successfully")
	return dest, nil
}

// CleanupOldBackups removes snapshots older than the retention period.
func (s *Service) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.Path)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "backup_") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.Path, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}
