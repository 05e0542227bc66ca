package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/specsync/specsync/internal/models"
)

// DefaultPath is the project-local location of the provider configuration.
const DefaultPath = ".specsync/config.yaml"

// Environment variables consulted ahead of stored credentials.
const (
	EnvAzurePAT    = "AZURE_DEVOPS_EXT_PAT"
	EnvGitLabToken = "GITLAB_TOKEN"
)

// Config is the persisted provider configuration. Exactly one provider
// sub-block is populated, matching Provider.
type Config struct {
	Provider        models.ProviderType `mapstructure:"provider" yaml:"provider"`
	AutoDetected    bool                `mapstructure:"auto_detected" yaml:"auto_detected"`
	DetectionSource string              `mapstructure:"detection_source" yaml:"detection_source,omitempty"`
	ValidatedAt     *time.Time          `mapstructure:"validated_at" yaml:"validated_at,omitempty"`
	ConfiguredBy    string              `mapstructure:"configured_by" yaml:"configured_by"`
	Warnings        []string            `mapstructure:"warnings" yaml:"warnings,omitempty"`

	GitHub      *GitHubSettings      `mapstructure:"github" yaml:"github,omitempty"`
	AzureDevOps *AzureDevOpsSettings `mapstructure:"azure_devops" yaml:"azure_devops,omitempty"`
	GitLab      *GitLabSettings      `mapstructure:"gitlab" yaml:"gitlab,omitempty"`
}

// GitHubSettings configures the GitHub provider. Auth is delegated to the gh
// CLI; Host is only set for GitHub Enterprise.
type GitHubSettings struct {
	AuthMethod string `mapstructure:"auth_method" yaml:"auth_method"`
	Host       string `mapstructure:"host" yaml:"host,omitempty"`
	Owner      string `mapstructure:"owner" yaml:"owner"`
	Repository string `mapstructure:"repository" yaml:"repository"`
}

// AzureDevOpsSettings configures the Azure DevOps provider.
type AzureDevOpsSettings struct {
	OrganizationURL     string `mapstructure:"organization_url" yaml:"organization_url"`
	Project             string `mapstructure:"project" yaml:"project"`
	PersonalAccessToken string `mapstructure:"personal_access_token" yaml:"personal_access_token,omitempty"`
}

// GitLabSettings configures the GitLab provider.
type GitLabSettings struct {
	Host    string `mapstructure:"host" yaml:"host"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
	Project string `mapstructure:"project" yaml:"project"`
}

// Load reads and validates the provider configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Exists reports whether a provider configuration is present at path.
func Exists(path string) bool {
	if path == "" {
		path = DefaultPath
	}
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks the sub-block invariant: exactly one provider sub-block is
// populated and it matches Provider.
func (c *Config) Validate() error {
	if !c.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	populated := 0
	if c.GitHub != nil {
		populated++
	}
	if c.AzureDevOps != nil {
		populated++
	}
	if c.GitLab != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("exactly one provider sub-block must be set, found %d", populated)
	}

	switch c.Provider {
	case models.ProviderGitHub:
		if c.GitHub == nil {
			return fmt.Errorf("provider is %s but the github sub-block is missing", c.Provider)
		}
	case models.ProviderAzureDevOps:
		if c.AzureDevOps == nil {
			return fmt.Errorf("provider is %s but the azure_devops sub-block is missing", c.Provider)
		}
	case models.ProviderGitLab:
		if c.GitLab == nil {
			return fmt.Errorf("provider is %s but the gitlab sub-block is missing", c.Provider)
		}
	}

	return nil
}

// AzurePAT returns the Azure DevOps personal access token, preferring the
// environment variable over the stored value.
func (c *Config) AzurePAT() string {
	if v := os.Getenv(EnvAzurePAT); v != "" {
		return v
	}
	if c.AzureDevOps != nil {
		return c.AzureDevOps.PersonalAccessToken
	}
	return ""
}

// GitLabToken returns the GitLab token, preferring the environment variable
// over the stored value.
func (c *Config) GitLabToken() string {
	if v := os.Getenv(EnvGitLabToken); v != "" {
		return v
	}
	if c.GitLab != nil {
		return c.GitLab.Token
	}
	return ""
}

// RepoKey returns a stable provider+repository signature used as the epic
// cache key.
func (c *Config) RepoKey() string {
	switch c.Provider {
	case models.ProviderGitHub:
		if c.GitHub != nil {
			return fmt.Sprintf("github:%s/%s", c.GitHub.Owner, c.GitHub.Repository)
		}
	case models.ProviderAzureDevOps:
		if c.AzureDevOps != nil {
			return fmt.Sprintf("azure_devops:%s/%s", c.AzureDevOps.OrganizationURL, c.AzureDevOps.Project)
		}
	case models.ProviderGitLab:
		if c.GitLab != nil {
			return fmt.Sprintf("gitlab:%s/%s", c.GitLab.Host, c.GitLab.Project)
		}
	}
	return string(c.Provider)
}

// Save validates and writes the configuration atomically: the file is written
// to a temp file in the target directory and renamed into place, so an
// interrupted save never leaves a partial config.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	return writeAtomic(path, data, 0600)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic exposes the temp-then-rename write discipline for the other
// state files (backups, cache, roadmap).
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeAtomic(path, data, perm)
}
