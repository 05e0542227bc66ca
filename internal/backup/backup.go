// Package backup snapshots the provider configuration before destructive
// changes and retains a bounded, newest-first history.
package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/specsync/specsync/internal/config"
)

// DefaultPath is the project-local backup file.
const DefaultPath = ".specsync/backups.yaml"

// DefaultMaxBackups bounds the retained history.
const DefaultMaxBackups = 5

// ErrBackupNotFound is returned when a restore targets an unknown backup id.
var ErrBackupNotFound = errors.New("backup not found")

// Backup is one retained configuration snapshot. ConfigData holds the
// serialized configuration so a snapshot survives schema-tolerant edits to
// the live file.
type Backup struct {
	ID         string    `yaml:"backup_id"`
	CreatedAt  time.Time `yaml:"created_at"`
	Reason     string    `yaml:"reason"`
	ConfigData string    `yaml:"config_data"`
}

type backupFile struct {
	Backups []Backup `yaml:"backups"`
}

// Service manages the backup history file.
type Service struct {
	path   string
	max    int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithMaxBackups overrides the retained history bound.
func WithMaxBackups(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a backup service over the given file.
func NewService(path string, logger *slog.Logger, opts ...Option) *Service {
	if path == "" {
		path = DefaultPath
	}
	s := &Service{
		path:   path,
		max:    DefaultMaxBackups,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create snapshots the configuration, prepends it to the history, and prunes
// entries beyond the maximum, oldest first. The file write is atomic.
func (s *Service) Create(cfg *config.Config, reason string) (*Backup, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config for backup: %w", err)
	}

	now := s.now().UTC()
	b := Backup{
		// Timestamp prefix keeps ids sortable, uuid suffix keeps them unique
		// within a second.
		ID:         fmt.Sprintf("%s-%s", now.Format("20060102T150405Z"), uuid.NewString()[:8]),
		CreatedAt:  now,
		Reason:     reason,
		ConfigData: string(data),
	}

	existing, err := s.load()
	if err != nil {
		return nil, err
	}

	backups := append([]Backup{b}, existing...)
	if len(backups) > s.max {
		backups = backups[:s.max]
	}

	if err := s.write(backups); err != nil {
		return nil, err
	}

	s.logger.Info("created configuration backup", "id", b.ID, "reason", reason)
	return &b, nil
}

// List returns the retained backups, newest first.
func (s *Service) List() ([]Backup, error) {
	return s.load()
}

// Restore deserializes the snapshot with the given id. The caller is
// responsible for persisting it as the active configuration.
func (s *Service) Restore(id string) (*config.Config, error) {
	backups, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, b := range backups {
		if b.ID != id {
			continue
		}
		cfg := &config.Config{}
		if err := yaml.Unmarshal([]byte(b.ConfigData), cfg); err != nil {
			return nil, fmt.Errorf("failed to deserialize backup %s: %w", id, err)
		}
		return cfg, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
}

func (s *Service) load() ([]Backup, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	var f backupFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse backup file: %w", err)
	}
	return f.Backups, nil
}

func (s *Service) write(backups []Backup) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := yaml.Marshal(backupFile{Backups: backups})
	if err != nil {
		return fmt.Errorf("failed to marshal backups: %w", err)
	}

	if err := config.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return nil
}
