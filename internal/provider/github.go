package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gogithub "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

// EpicLabel marks remote issues that represent roadmap-scale units of work.
const EpicLabel = "epic"

// GitHub integrates with GitHub through the delegated gh CLI for auth and the
// REST API for epic retrieval.
type GitHub struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewGitHub creates the GitHub adapter.
func NewGitHub(logger *slog.Logger) *GitHub {
	return &GitHub{runner: execRunner{}, logger: logger}
}

// NewGitHubWithRunner creates the adapter with a custom CLI runner. Used by tests.
func NewGitHubWithRunner(runner CommandRunner, logger *slog.Logger) *GitHub {
	return &GitHub{runner: runner, logger: logger}
}

func (g *GitHub) Type() models.ProviderType {
	return models.ProviderGitHub
}

// Detect matches github.com remotes. Enterprise hosts cannot be recognized
// from the URL alone, so they go through manual selection.
func (g *GitHub) Detect(remoteURL string) (string, bool) {
	host, _, ok := parseRemote(remoteURL)
	if !ok || host != "github.com" {
		return "", false
	}
	return fmt.Sprintf("git remote origin (%s)", host), true
}

// Validate checks that the gh CLI is installed and authenticated, then probes
// repository access. A missing repo grant is a warning, not a blocker.
func (g *GitHub) Validate(ctx context.Context, creds map[string]string) []models.ValidationResult {
	var results []models.ValidationResult
	host := creds["host"]

	if _, err := g.runner.LookPath("gh"); err != nil {
		results = append(results, probeFailure("cli_installed",
			"GitHub CLI (gh) is not installed",
			"install it from https://cli.github.com and run 'gh auth login'", true))
		return results
	}
	results = append(results, probeResult("cli_installed", nil))

	authArgs := []string{"auth", "status"}
	if host != "" {
		authArgs = append(authArgs, "--hostname", host)
	}
	if _, err := g.runner.Run(ctx, "gh", authArgs...); err != nil {
		if isTimeout(err) {
			results = append(results, networkFailure("cli_authenticated", err))
			return results
		}
		suggestion := "run 'gh auth login' to authenticate"
		if host != "" {
			suggestion = fmt.Sprintf("run 'gh auth login --hostname %s' to authenticate", host)
		}
		results = append(results, probeFailure("cli_authenticated",
			"GitHub CLI is not authenticated", suggestion, true))
		return results
	}
	results = append(results, probeResult("cli_authenticated", nil))

	repoRef := fmt.Sprintf("%s/%s", creds["owner"], creds["repository"])
	if host != "" {
		repoRef = fmt.Sprintf("%s/%s", host, repoRef)
	}
	if _, err := g.runner.Run(ctx, "gh", "repo", "view", repoRef, "--json", "name"); err != nil {
		if isTimeout(err) {
			results = append(results, networkFailure("repo_access", err))
			return results
		}
		r := probeFailure("repo_access",
			fmt.Sprintf("repository %s is not accessible", repoRef),
			"check the repository name and your access rights; sync will fail until this is resolved", false)
		r.Details["has_repo_access"] = false
		results = append(results, r)
		return results
	}
	results = append(results, probeResult("repo_access", map[string]any{"has_repo_access": true}))

	return results
}

// FetchEpics lists open and closed epic-labeled issues via the REST API,
// authenticating with a token minted by the gh CLI.
func (g *GitHub) FetchEpics(ctx context.Context, cfg *config.Config) ([]models.RemoteEpic, error) {
	if cfg.GitHub == nil {
		return nil, fmt.Errorf("github settings are not configured")
	}

	token, err := g.cliToken(ctx, cfg.GitHub.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token from gh: %w", err)
	}

	client, err := g.newClient(ctx, token, cfg.GitHub.Host)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("fetching epics from GitHub",
		"owner", cfg.GitHub.Owner, "repo", cfg.GitHub.Repository)

	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		Labels:      []string{EpicLabel},
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var epics []models.RemoteEpic
	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, cfg.GitHub.Owner, cfg.GitHub.Repository, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list issues: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			epics = append(epics, convertIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	g.logger.Info("fetched epics from GitHub", "count", len(epics))
	return epics, nil
}

func (g *GitHub) cliToken(ctx context.Context, host string) (string, error) {
	args := []string{"auth", "token"}
	if host != "" {
		args = append(args, "--hostname", host)
	}
	out, err := g.runner.Run(ctx, "gh", args...)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", fmt.Errorf("gh returned an empty token")
	}
	return token, nil
}

func (g *GitHub) newClient(ctx context.Context, token, host string) (*gogithub.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if host != "" && host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", host)
		client, err := gogithub.NewClient(tc).WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("failed to create enterprise client: %w", err)
		}
		return client, nil
	}
	return gogithub.NewClient(tc), nil
}

func convertIssue(issue *gogithub.Issue) models.RemoteEpic {
	epic := models.RemoteEpic{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		State:  issue.GetState(),
		URL:    issue.GetHTMLURL(),
		Body:   issue.GetBody(),
	}
	for _, l := range issue.Labels {
		epic.Labels = append(epic.Labels, l.GetName())
	}
	if issue.UpdatedAt != nil {
		epic.UpdatedAt = issue.UpdatedAt.Time
	}
	return epic
}
