package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

// DefaultGitLabHost is used when no self-hosted instance is configured.
const DefaultGitLabHost = "https://gitlab.com"

// GitLab is a partial provider: validation and a minimal epic fetch are
// supported, the rest of the surface is not. Every validation result carries
// details.feature_support = "limited".
type GitLab struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGitLab creates the GitLab adapter.
func NewGitLab(logger *slog.Logger) *GitLab {
	return &GitLab{httpClient: &http.Client{}, logger: logger}
}

func (g *GitLab) Type() models.ProviderType {
	return models.ProviderGitLab
}

// Detect matches gitlab.com and gitlab.* self-hosted remotes.
func (g *GitLab) Detect(remoteURL string) (string, bool) {
	host, _, ok := parseRemote(remoteURL)
	if !ok {
		return "", false
	}
	if host == "gitlab.com" || strings.HasPrefix(host, "gitlab.") {
		return fmt.Sprintf("git remote origin (%s)", host), true
	}
	return "", false
}

// Validate probes the authenticated-user endpoint with the supplied token.
func (g *GitLab) Validate(ctx context.Context, creds map[string]string) []models.ValidationResult {
	host := strings.TrimRight(creds["host"], "/")
	if host == "" {
		host = DefaultGitLabHost
	}
	token := creds["token"]

	limited := func(r models.ValidationResult) models.ValidationResult {
		r.Details["feature_support"] = "limited"
		return r
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/v4/user", nil)
	if err != nil {
		return []models.ValidationResult{limited(probeFailure("user",
			err.Error(), "check the configured host URL", true))}
	}
	req.Header.Set("PRIVATE-TOKEN", token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return []models.ValidationResult{limited(networkFailure("user", err))}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return []models.ValidationResult{limited(probeFailure("user",
				"unexpected response from user endpoint",
				"verify the host runs a GitLab API at /api/v4", true))}
		}
		r := probeResult("user", map[string]any{"username": user.Username})
		return []models.ValidationResult{limited(r)}
	case http.StatusUnauthorized:
		return []models.ValidationResult{limited(probeFailure("user",
			"invalid GitLab token",
			fmt.Sprintf("create a token with api scope at %s/-/user_settings/personal_access_tokens", host), true))}
	default:
		return []models.ValidationResult{limited(probeFailure("user",
			fmt.Sprintf("unexpected response %d from %s", resp.StatusCode, host),
			"verify the host URL and token", true))}
	}
}

type gitlabIssue struct {
	IID         int       `json:"iid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	WebURL      string    `json:"web_url"`
	Labels      []string  `json:"labels"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FetchEpics lists epic-labeled project issues. Single page only; the GitLab
// provider is a limited implementation.
func (g *GitLab) FetchEpics(ctx context.Context, cfg *config.Config) ([]models.RemoteEpic, error) {
	if cfg.GitLab == nil {
		return nil, fmt.Errorf("gitlab settings are not configured")
	}
	host := strings.TrimRight(cfg.GitLab.Host, "/")
	if host == "" {
		host = DefaultGitLabHost
	}
	token := cfg.GitLabToken()
	if token == "" {
		return nil, fmt.Errorf("no gitlab token available (set %s or run the wizard)", config.EnvGitLabToken)
	}

	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/issues?labels=%s&state=all&per_page=100",
		host, url.PathEscape(cfg.GitLab.Project), url.QueryEscape(EpicLabel))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build issues request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("issues request failed with %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var issues []gitlabIssue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("failed to parse issues response: %w", err)
	}

	epics := make([]models.RemoteEpic, 0, len(issues))
	for _, issue := range issues {
		state := "open"
		if issue.State == "closed" {
			state = "closed"
		}
		epics = append(epics, models.RemoteEpic{
			Number:    issue.IID,
			Title:     issue.Title,
			Labels:    issue.Labels,
			State:     state,
			URL:       issue.WebURL,
			Body:      issue.Description,
			UpdatedAt: issue.UpdatedAt,
		})
	}

	g.logger.Info("fetched epics from GitLab", "count", len(epics))
	return epics, nil
}
