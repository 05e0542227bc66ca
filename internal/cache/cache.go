// Package cache persists fetched remote epics with a TTL so repeated syncs
// do not hammer the provider. Expired entries are never served implicitly;
// refresh is always caller-initiated.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"gopkg.in/yaml.v3"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

// DefaultPath is the project-local epic cache file.
const DefaultPath = ".specsync/cache.yaml"

// DefaultTTLMinutes is how long a cached fetch stays fresh.
const DefaultTTLMinutes = 15

const fileVersion = 1

// memMaxBytes sizes the in-process tier; epic payloads are small.
const memMaxBytes = 4 << 20

type cacheFile struct {
	Version    int                `yaml:"version"`
	Repo       string             `yaml:"repo"`
	LastSync   time.Time          `yaml:"last_sync"`
	TTLMinutes int                `yaml:"ttl_minutes"`
	Epics      []models.RemoteEpic `yaml:"epics"`
}

// Store is a TTL-bounded, file-persisted cache of remote epics with a
// ristretto L1 in front so repeated reads within one invocation skip file IO.
type Store struct {
	path   string
	mem    *ristretto.Cache[string, []byte]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a cache store over the given file.
func NewStore(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	mem, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1 << 10,
		MaxCost:     memMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory cache: %w", err)
	}

	s := &Store{
		path:   path,
		mem:    mem,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the cached epics for key if the entry is still fresh:
// now - last_sync < ttl. Anything else — missing file, key mismatch,
// expired entry — is a miss and the caller must re-fetch.
func (s *Store) Get(key string, ttlMinutes int) ([]models.RemoteEpic, bool, error) {
	data, ok := s.mem.Get(key)
	if !ok {
		var err error
		data, err = os.ReadFile(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("failed to read cache file: %w", err)
		}
	}

	var f cacheFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("failed to parse cache file: %w", err)
	}

	if f.Repo != key {
		return nil, false, nil
	}
	age := s.now().Sub(f.LastSync)
	if age >= time.Duration(ttlMinutes)*time.Minute {
		s.logger.Debug("cache entry expired", "key", key, "age", age)
		return nil, false, nil
	}

	s.logger.Debug("cache hit", "key", key, "epics", len(f.Epics), "age", age)
	return f.Epics, true, nil
}

// Put overwrites the cached entry for key and resets its fetch time.
func (s *Store) Put(key string, epics []models.RemoteEpic, ttlMinutes int) error {
	f := cacheFile{
		Version:    fileVersion,
		Repo:       key,
		LastSync:   s.now(),
		TTLMinutes: ttlMinutes,
		Epics:      epics,
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := config.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	s.mem.Set(key, data, int64(len(data)))
	s.mem.Wait()
	return nil
}

// Invalidate removes the cached entry so the next Get misses.
func (s *Store) Invalidate(key string) error {
	s.mem.Del(key)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Close releases the in-memory tier.
func (s *Store) Close() {
	s.mem.Close()
}
