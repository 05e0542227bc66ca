package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

// Provider is the polymorphic surface every git-hosting adapter implements.
type Provider interface {
	// Type returns the provider identifier.
	Type() models.ProviderType
	// Detect pattern-matches a git remote URL against the provider's host
	// signatures. On success it returns a human-readable detection source.
	Detect(remoteURL string) (source string, ok bool)
	// Validate runs the provider's connectivity and authorization probes.
	// Failures are returned as results, never as errors.
	Validate(ctx context.Context, creds map[string]string) []models.ValidationResult
	// FetchEpics retrieves the remote epics for the configured repository.
	FetchEpics(ctx context.Context, cfg *config.Config) ([]models.RemoteEpic, error)
}

// Registry maps provider identifiers to adapters and performs remote-URL
// auto-detection.
type Registry struct {
	providers []Provider
	byType    map[models.ProviderType]Provider
	logger    *slog.Logger
}

// NewRegistry builds a registry with all supported adapters registered in
// detection order.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		byType: make(map[models.ProviderType]Provider),
		logger: logger,
	}
	r.register(NewGitHub(logger))
	r.register(NewAzureDevOps(logger))
	r.register(NewGitLab(logger))
	return r
}

func (r *Registry) register(p Provider) {
	r.providers = append(r.providers, p)
	r.byType[p.Type()] = p
}

// Get returns the adapter for the given provider type.
func (r *Registry) Get(t models.ProviderType) (Provider, error) {
	p, ok := r.byType[t]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", t)
	}
	return p, nil
}

// Detect runs each adapter's remote-URL matcher and returns the first hit.
func (r *Registry) Detect(remoteURL string) (models.ProviderType, string, bool) {
	for _, p := range r.providers {
		if source, ok := p.Detect(remoteURL); ok {
			r.logger.Debug("provider detected", "provider", p.Type(), "source", source)
			return p.Type(), source, true
		}
	}
	return "", "", false
}

// GitRemoteURL returns the repository's origin remote URL via the git CLI.
func GitRemoteURL(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", fmt.Errorf("failed to read origin remote: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

var sshRemoteRe = regexp.MustCompile(`^(?:ssh://)?git@([^:/]+)[:/](.+?)(?:\.git)?$`)

// parseRemote splits a git remote URL (https or ssh form) into host and path.
func parseRemote(remote string) (host, path string, ok bool) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", "", false
	}

	if m := sshRemoteRe.FindStringSubmatch(remote); m != nil {
		return strings.ToLower(m[1]), strings.Trim(m[2], "/"), true
	}

	u, err := url.Parse(remote)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	path = strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	return strings.ToLower(u.Hostname()), path, true
}

// OwnerRepoFromRemote extracts the owner and repository segments from a
// GitHub-style remote URL, used as wizard prefills.
func OwnerRepoFromRemote(remote string) (owner, repo string, ok bool) {
	_, path, ok := parseRemote(remote)
	if !ok {
		return "", "", false
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// probeResult builds a successful validation result for a probe step.
func probeResult(step string, details map[string]any) models.ValidationResult {
	if details == nil {
		details = map[string]any{}
	}
	return models.ValidationResult{
		Step:      step,
		Success:   true,
		Timestamp: time.Now(),
		Details:   details,
	}
}

// probeFailure builds a failed validation result. Fatal controls whether the
// wizard treats the failure as blocking.
func probeFailure(step, message, suggestion string, fatal bool) models.ValidationResult {
	return models.ValidationResult{
		Step:         step,
		Success:      false,
		Fatal:        fatal,
		Timestamp:    time.Now(),
		ErrorMessage: message,
		Suggestion:   suggestion,
		Details:      map[string]any{},
	}
}

// networkFailure classifies a transport error. Timeouts are non-fatal and
// retryable so an unreachable network never blocks the wizard.
func networkFailure(step string, err error) models.ValidationResult {
	if isTimeout(err) {
		r := probeFailure(step, "network timeout", "check your network connection and retry, or save without validation", false)
		r.Details["retryable"] = true
		return r
	}
	return probeFailure(step, err.Error(), "verify the host is reachable and retry", false)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
