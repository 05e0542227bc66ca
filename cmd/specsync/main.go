package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/backup"
	"github.com/specsync/specsync/internal/cache"
	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/provider"
	"github.com/specsync/specsync/internal/roadmap"
	"github.com/specsync/specsync/internal/validation"
	"github.com/specsync/specsync/internal/wizard"
)

var (
	// Version information - set by build flags
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"

	// CLI flags
	configFile  string
	verbose     bool
	force       bool
	refresh     bool
	dryRun      bool
	roadmapFile string
	cacheTTL    int
	timeoutSecs int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "Connect a spec-driven project workflow to your git hosting provider",
	Long: `specsync links a locally-edited roadmap to remotely-tracked epics on
GitHub, Azure DevOps, or GitLab.

Run 'specsync config wizard' to configure a provider, then 'specsync sync'
to reconcile ROADMAP.md against the remote tracker.`,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Provider configuration commands",
	Long:  "Commands for configuring, backing up, and restoring the provider integration.",
}

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Run the interactive configuration wizard",
	Long: `Walk through provider detection, credential collection, validation,
and confirmation. The existing configuration is backed up before it is
replaced and nothing is written until the final confirmation.`,
	RunE: runWizard,
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List retained configuration backups",
	RunE:  runListBackups,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a configuration backup",
	Long:  "Restore the configuration snapshot with the given id and persist it as the active configuration.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the roadmap with remote epics",
	Long: `Fetch remote epics (cached between runs), match them against local
roadmap items by branch reference and fuzzy title similarity, and write the
merged roadmap back. Local items are never deleted.

Use --refresh to bypass the cache and --dry-run to preview without writing.`,
	RunE: runSync,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured provider connection",
	Long:  "Run the provider's connectivity and authorization probes against the saved configuration.",
	RunE:  runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("specsync version %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Provider config path (default: .specsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	wizardCmd.Flags().BoolVar(&force, "force", false, "Reconfigure without prompting about the existing configuration")
	wizardCmd.Flags().IntVar(&timeoutSecs, "timeout", 10, "Validation probe timeout in seconds")

	syncCmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the epic cache and re-fetch from the provider")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview the merge without writing the roadmap")
	syncCmd.Flags().StringVar(&roadmapFile, "roadmap", roadmap.DefaultPath, "Roadmap file path")
	syncCmd.Flags().IntVar(&cacheTTL, "cache-ttl", cache.DefaultTTLMinutes, "Cache freshness in minutes")

	validateCmd.Flags().IntVar(&timeoutSecs, "timeout", 10, "Validation probe timeout in seconds")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
	configCmd.AddCommand(wizardCmd)
	configCmd.AddCommand(backupsCmd)
	configCmd.AddCommand(restoreCmd)
}

func runWizard(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	registry := provider.NewRegistry(logger)
	validator := validation.NewService(registry, logger,
		validation.WithTimeout(time.Duration(timeoutSecs)*time.Second))
	backups := backup.NewService(backupPath(), logger)
	prompter := wizard.NewStdPrompter(os.Stdin, os.Stdout)

	engine := wizard.NewEngine(registry, validator, backups, prompter, configPath(), os.Stdout, logger)

	cfg, err := engine.Run(ctx, force)
	if errors.Is(err, wizard.ErrAborted) {
		fmt.Println("Wizard cancelled. Existing configuration unchanged.")
		return nil
	}
	if err != nil {
		return err
	}

	if len(cfg.Warnings) > 0 {
		logger.Warn("configuration saved with warnings", "count", len(cfg.Warnings))
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration (run 'specsync config wizard'): %w", err)
	}

	registry := provider.NewRegistry(logger)
	store, err := cache.NewStore(cachePath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := roadmap.NewEngine(registry, store, cfg, roadmapFile, logger)
	report, err := engine.Run(ctx, roadmap.Options{
		Refresh:    refresh,
		DryRun:     dryRun,
		TTLMinutes: cacheTTL,
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println("=== Sync Summary ===")
	fmt.Printf("Matched by reference: %d\n", report.Matched)
	fmt.Printf("Matched by similarity: %d\n", report.FuzzyMatched)
	fmt.Printf("Local only: %d\n", report.LocalOnly)
	fmt.Printf("New from remote: %d\n", report.RemoteOnly)
	if dryRun {
		fmt.Println("Dry run - roadmap was not written.")
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry := provider.NewRegistry(logger)
	validator := validation.NewService(registry, logger,
		validation.WithTimeout(time.Duration(timeoutSecs)*time.Second))

	results := validator.Validate(ctx, cfg.Provider, credentialsFromConfig(cfg))
	failed := false
	for _, r := range results {
		if r.Success {
			fmt.Printf("ok   %s\n", r.Step)
			continue
		}
		failed = true
		fmt.Printf("FAIL %s: %s\n", r.Step, r.ErrorMessage)
		if r.Suggestion != "" {
			fmt.Printf("     %s\n", r.Suggestion)
		}
	}
	if failed {
		return fmt.Errorf("validation failed")
	}
	fmt.Println("All probes passed.")
	return nil
}

func runListBackups(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	backups := backup.NewService(backupPath(), logger)

	list, err := backups.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No backups found.")
		return nil
	}

	for _, b := range list {
		fmt.Printf("%s  %s  %s\n", b.ID, b.CreatedAt.Format(time.RFC3339), b.Reason)
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	backups := backup.NewService(backupPath(), logger)

	cfg, err := backups.Restore(args[0])
	if err != nil {
		return err
	}

	if err := config.Save(cfg, configPath()); err != nil {
		return fmt.Errorf("failed to persist restored configuration: %w", err)
	}

	logger.Info("configuration restored", "backup", args[0], "provider", cfg.Provider)
	return nil
}

// credentialsFromConfig rebuilds the probe credential map from the persisted
// configuration, honoring environment token overrides.
func credentialsFromConfig(cfg *config.Config) map[string]string {
	creds := map[string]string{}
	switch {
	case cfg.GitHub != nil:
		creds["host"] = cfg.GitHub.Host
		creds["owner"] = cfg.GitHub.Owner
		creds["repository"] = cfg.GitHub.Repository
	case cfg.AzureDevOps != nil:
		creds["organization_url"] = cfg.AzureDevOps.OrganizationURL
		creds["project"] = cfg.AzureDevOps.Project
		creds["personal_access_token"] = cfg.AzurePAT()
	case cfg.GitLab != nil:
		creds["host"] = cfg.GitLab.Host
		creds["project"] = cfg.GitLab.Project
		creds["token"] = cfg.GitLabToken()
	}
	return creds
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.DefaultPath
}

func backupPath() string {
	return backup.DefaultPath
}

func cachePath() string {
	return cache.DefaultPath
}

func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	return ctx, cancel
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{}

	if verbose {
		opts.Level = slog.LevelDebug
	} else {
		opts.Level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)

	return logger
}
