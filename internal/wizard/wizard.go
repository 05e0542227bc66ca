// Package wizard drives the interactive provider configuration flow as an
// explicit state machine. Nothing is persisted before the Complete step, so
// any interruption leaves the previous configuration untouched.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/specsync/specsync/internal/backup"
	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
	"github.com/specsync/specsync/internal/provider"
)

// ErrAborted is returned when the user exits the wizard before completion.
var ErrAborted = errors.New("wizard aborted")

// Step is a state of the wizard state machine.
type Step string

const (
	StepDetect             Step = "detect"
	StepSelectProvider     Step = "select_provider"
	StepCollectGitHub      Step = "collect_github"
	StepCollectAzureDevOps Step = "collect_azure_devops"
	StepCollectGitLab      Step = "collect_gitlab"
	StepValidate           Step = "validate"
	StepConfirm            Step = "confirm"
	StepComplete           Step = "complete"
)

// State is the wizard's transient, in-memory state. It is never persisted.
type State struct {
	Step            Step
	Provider        models.ProviderType
	AutoDetected    bool
	DetectionSource string
	Collected       map[string]string
	Results         []models.ValidationResult
	Warnings        []string
	StartedAt       time.Time

	tokenFromEnv bool
}

// Validator runs provider probes against collected credentials.
type Validator interface {
	Validate(ctx context.Context, ptype models.ProviderType, creds map[string]string) []models.ValidationResult
}

// BackupCreator snapshots the current configuration before it is replaced.
type BackupCreator interface {
	Create(cfg *config.Config, reason string) (*backup.Backup, error)
}

// Detector auto-detects a provider from a git remote URL.
type Detector interface {
	Detect(remoteURL string) (models.ProviderType, string, bool)
}

// Engine orchestrates the configuration flow.
type Engine struct {
	detector   Detector
	validator  Validator
	backups    BackupCreator
	prompter   Prompter
	configPath string
	remoteURL  func(ctx context.Context) (string, error)
	out        io.Writer
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithRemoteURL overrides how the origin remote is discovered. Used by tests.
func WithRemoteURL(fn func(ctx context.Context) (string, error)) Option {
	return func(e *Engine) { e.remoteURL = fn }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a wizard engine.
func NewEngine(detector Detector, validator Validator, backups BackupCreator, prompter Prompter, configPath string, out io.Writer, logger *slog.Logger, opts ...Option) *Engine {
	if configPath == "" {
		configPath = config.DefaultPath
	}
	e := &Engine{
		detector:   detector,
		validator:  validator,
		backups:    backups,
		prompter:   prompter,
		configPath: configPath,
		remoteURL:  provider.GitRemoteURL,
		out:        out,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the wizard. On success it returns the persisted configuration;
// on user exit it returns ErrAborted with the previous configuration intact.
func (e *Engine) Run(ctx context.Context, force bool) (*config.Config, error) {
	if config.Exists(e.configPath) && !force {
		existing, err := config.Load(e.configPath)
		if err != nil {
			return nil, fmt.Errorf("existing configuration is unreadable: %w", err)
		}

		ok, err := e.prompter.Confirm(
			fmt.Sprintf("A %s configuration already exists. Reconfigure?", existing.Provider.DisplayName()), false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAborted
		}

		if _, err := e.backups.Create(existing, "pre-wizard reconfigure"); err != nil {
			return nil, fmt.Errorf("failed to back up existing configuration: %w", err)
		}
		fmt.Fprintln(e.out, "Existing configuration backed up.")
	}

	state := &State{
		Step:      StepDetect,
		Collected: map[string]string{},
		StartedAt: e.now(),
	}

	for state.Step != StepComplete {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		var err error
		switch state.Step {
		case StepDetect:
			err = e.stepDetect(ctx, state)
		case StepSelectProvider:
			err = e.stepSelectProvider(state)
		case StepCollectGitHub:
			err = e.stepCollectGitHub(ctx, state)
		case StepCollectAzureDevOps:
			err = e.stepCollectAzureDevOps(state)
		case StepCollectGitLab:
			err = e.stepCollectGitLab(state)
		case StepValidate:
			err = e.stepValidate(ctx, state)
		case StepConfirm:
			err = e.stepConfirm(state)
		default:
			err = fmt.Errorf("wizard reached unknown step %q", state.Step)
		}
		if err != nil {
			return nil, err
		}
	}

	return e.complete(state)
}

func (e *Engine) stepDetect(ctx context.Context, state *State) error {
	remote, err := e.remoteURL(ctx)
	if err != nil {
		e.logger.Debug("no usable origin remote", "error", err)
		state.Step = StepSelectProvider
		return nil
	}

	ptype, source, ok := e.detector.Detect(remote)
	if !ok {
		state.Step = StepSelectProvider
		return nil
	}

	use, err := e.prompter.Confirm(
		fmt.Sprintf("Detected %s from %s. Use it?", ptype.DisplayName(), source), true)
	if err != nil {
		return err
	}
	if !use {
		state.Step = StepSelectProvider
		return nil
	}

	state.Provider = ptype
	state.AutoDetected = true
	state.DetectionSource = source
	state.Step = collectStep(ptype)
	return nil
}

func (e *Engine) stepSelectProvider(state *State) error {
	types := models.ProviderTypes()
	options := make([]string, len(types))
	for i, t := range types {
		options[i] = t.DisplayName()
	}

	idx, err := e.prompter.Select("Choose a git hosting provider:", options)
	if err != nil {
		return err
	}

	state.Provider = types[idx]
	state.AutoDetected = false
	state.DetectionSource = ""
	state.Step = collectStep(state.Provider)
	return nil
}

func collectStep(t models.ProviderType) Step {
	switch t {
	case models.ProviderAzureDevOps:
		return StepCollectAzureDevOps
	case models.ProviderGitLab:
		return StepCollectGitLab
	default:
		return StepCollectGitHub
	}
}

func (e *Engine) stepCollectGitHub(ctx context.Context, state *State) error {
	var defaultOwner, defaultRepo string
	if remote, err := e.remoteURL(ctx); err == nil {
		defaultOwner, defaultRepo, _ = provider.OwnerRepoFromRemote(remote)
	}

	host, err := e.prompter.Input("GitHub Enterprise host (leave blank for github.com)", "")
	if err != nil {
		return err
	}
	owner, err := e.prompter.Input("Repository owner", defaultOwner)
	if err != nil {
		return err
	}
	repo, err := e.prompter.Input("Repository name", defaultRepo)
	if err != nil {
		return err
	}

	state.Collected = map[string]string{
		"auth_method": "cli",
		"host":        host,
		"owner":       owner,
		"repository":  repo,
	}
	state.Step = StepValidate
	return nil
}

func (e *Engine) stepCollectAzureDevOps(state *State) error {
	orgURL, err := e.prompter.Input("Organization URL (e.g. https://dev.azure.com/your-org)", "")
	if err != nil {
		return err
	}
	project, err := e.prompter.Input("Project name", "")
	if err != nil {
		return err
	}

	pat := os.Getenv(config.EnvAzurePAT)
	state.tokenFromEnv = pat != ""
	if state.tokenFromEnv {
		fmt.Fprintf(e.out, "Using personal access token from %s.\n", config.EnvAzurePAT)
	} else {
		pat, err = e.prompter.Input("Personal access token", "")
		if err != nil {
			return err
		}
	}

	state.Collected = map[string]string{
		"organization_url":      orgURL,
		"project":               project,
		"personal_access_token": pat,
	}
	state.Step = StepValidate
	return nil
}

func (e *Engine) stepCollectGitLab(state *State) error {
	host, err := e.prompter.Input("GitLab host", provider.DefaultGitLabHost)
	if err != nil {
		return err
	}
	project, err := e.prompter.Input("Project path (group/project)", "")
	if err != nil {
		return err
	}

	token := os.Getenv(config.EnvGitLabToken)
	state.tokenFromEnv = token != ""
	if state.tokenFromEnv {
		fmt.Fprintf(e.out, "Using token from %s.\n", config.EnvGitLabToken)
	} else {
		token, err = e.prompter.Input("Personal access token", "")
		if err != nil {
			return err
		}
	}

	state.Collected = map[string]string{
		"host":    host,
		"token":   token,
		"project": project,
	}
	state.Step = StepValidate
	return nil
}

func (e *Engine) stepValidate(ctx context.Context, state *State) error {
	fmt.Fprintln(e.out, "Validating configuration...")
	state.Results = e.validator.Validate(ctx, state.Provider, state.Collected)

	for _, r := range state.Results {
		if r.Success {
			fmt.Fprintf(e.out, "  ok  %s\n", r.Step)
		} else {
			fmt.Fprintf(e.out, "  FAIL %s: %s\n", r.Step, r.ErrorMessage)
			if r.Suggestion != "" {
				fmt.Fprintf(e.out, "       %s\n", r.Suggestion)
			}
		}
	}

	if models.AllSucceeded(state.Results) {
		state.Warnings = nil
		state.Step = StepConfirm
		return nil
	}

	choice, err := e.prompter.Select("Validation did not pass. How do you want to proceed?",
		[]string{"Retry", "Save anyway", "Abort"})
	if err != nil {
		return err
	}
	switch choice {
	case 0:
		state.Results = nil
		state.Step = collectStep(state.Provider)
	case 1:
		state.Warnings = models.FailureMessages(state.Results)
		state.Step = StepConfirm
	default:
		return ErrAborted
	}
	return nil
}

func (e *Engine) stepConfirm(state *State) error {
	fmt.Fprintln(e.out, "\nConfiguration summary:")
	fmt.Fprintf(e.out, "  provider:      %s\n", state.Provider)
	if state.AutoDetected {
		fmt.Fprintf(e.out, "  detected from: %s\n", state.DetectionSource)
	}
	for _, key := range []string{"host", "owner", "repository", "organization_url", "project", "auth_method"} {
		if v := state.Collected[key]; v != "" {
			fmt.Fprintf(e.out, "  %-14s %s\n", key+":", v)
		}
	}
	if tok := state.Collected["personal_access_token"]; tok != "" {
		fmt.Fprintf(e.out, "  token:         %s\n", maskSecret(tok))
	} else if tok := state.Collected["token"]; tok != "" {
		fmt.Fprintf(e.out, "  token:         %s\n", maskSecret(tok))
	}
	for _, w := range state.Warnings {
		fmt.Fprintf(e.out, "  warning:       %s\n", w)
	}

	ok, err := e.prompter.Confirm("Save this configuration?", true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	state.Step = StepComplete
	return nil
}

// complete builds and persists the final configuration. This is the only
// place the wizard writes to disk.
func (e *Engine) complete(state *State) (*config.Config, error) {
	cfg, err := e.buildConfig(state)
	if err != nil {
		return nil, err
	}

	if err := config.Save(cfg, e.configPath); err != nil {
		return nil, fmt.Errorf("failed to persist configuration: %w", err)
	}

	e.logger.Info("provider configuration saved",
		"provider", cfg.Provider, "path", e.configPath, "warnings", len(cfg.Warnings))
	fmt.Fprintf(e.out, "Configuration saved to %s.\n", e.configPath)
	return cfg, nil
}

func (e *Engine) buildConfig(state *State) (*config.Config, error) {
	cfg := &config.Config{
		Provider:        state.Provider,
		AutoDetected:    state.AutoDetected,
		DetectionSource: state.DetectionSource,
		ConfiguredBy:    "wizard",
		Warnings:        state.Warnings,
	}

	if models.AllSucceeded(state.Results) {
		t := e.now()
		cfg.ValidatedAt = &t
	}

	// Tokens sourced from the environment stay there; the file only records
	// values the user typed in.
	collected := state.Collected
	if state.tokenFromEnv {
		collected = make(map[string]string, len(state.Collected))
		for k, v := range state.Collected {
			collected[k] = v
		}
		delete(collected, "personal_access_token")
		delete(collected, "token")
	}

	switch state.Provider {
	case models.ProviderGitHub:
		s := &config.GitHubSettings{}
		if err := mapstructure.Decode(collected, s); err != nil {
			return nil, fmt.Errorf("failed to decode collected values: %w", err)
		}
		cfg.GitHub = s
	case models.ProviderAzureDevOps:
		s := &config.AzureDevOpsSettings{}
		if err := mapstructure.Decode(collected, s); err != nil {
			return nil, fmt.Errorf("failed to decode collected values: %w", err)
		}
		cfg.AzureDevOps = s
	case models.ProviderGitLab:
		s := &config.GitLabSettings{}
		if err := mapstructure.Decode(collected, s); err != nil {
			return nil, fmt.Errorf("failed to decode collected values: %w", err)
		}
		cfg.GitLab = s
	default:
		return nil, fmt.Errorf("unknown provider %q", state.Provider)
	}

	return cfg, nil
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
