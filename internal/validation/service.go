// Package validation runs provider connectivity and authorization probes
// under a single timeout and reports outcomes as data, never as errors, so
// the wizard can branch on them.
package validation

import (
	"context"
	"log/slog"
	"time"

	"github.com/specsync/specsync/internal/models"
	"github.com/specsync/specsync/internal/provider"
)

// DefaultTimeout bounds all probes for one validation run.
const DefaultTimeout = 10 * time.Second

// ProviderSource resolves a provider type to its adapter. *provider.Registry
// satisfies it.
type ProviderSource interface {
	Get(t models.ProviderType) (provider.Provider, error)
}

// Service validates collected credentials against a provider.
type Service struct {
	providers ProviderSource
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithTimeout overrides the probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a validation service over the given provider source.
func NewService(providers ProviderSource, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		providers: providers,
		timeout:   DefaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate runs the provider's probes with the configured timeout. A probe
// cut off by the deadline yields a non-fatal, retryable result rather than an
// error.
func (s *Service) Validate(ctx context.Context, ptype models.ProviderType, creds map[string]string) []models.ValidationResult {
	p, err := s.providers.Get(ptype)
	if err != nil {
		return []models.ValidationResult{{
			Step:         "provider",
			Success:      false,
			Fatal:        true,
			Timestamp:    time.Now(),
			ErrorMessage: err.Error(),
			Details:      map[string]any{},
		}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Debug("running validation probes", "provider", ptype, "timeout", s.timeout)
	results := p.Validate(ctx, creds)

	// A provider interrupted mid-probe may return nothing at all.
	if len(results) == 0 && ctx.Err() != nil {
		results = append(results, models.ValidationResult{
			Step:         "network",
			Success:      false,
			Fatal:        false,
			Timestamp:    time.Now(),
			ErrorMessage: "network timeout",
			Suggestion:   "check your network connection and retry, or save without validation",
			Details:      map[string]any{"retryable": true},
		})
	}

	for _, r := range results {
		if r.Success {
			s.logger.Debug("probe passed", "step", r.Step)
		} else {
			s.logger.Warn("probe failed", "step", r.Step, "error", r.ErrorMessage, "fatal", r.Fatal)
		}
	}
	return results
}
