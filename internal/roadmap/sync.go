package roadmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/specsync/specsync/internal/cache"
	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
	"github.com/specsync/specsync/internal/provider"
)

// ErrMergeInvariant signals that a merge would drop a local roadmap item.
// This must never happen; the merge aborts without writing.
var ErrMergeInvariant = errors.New("merge would drop a local roadmap item")

// Options controls a sync run.
type Options struct {
	// Refresh bypasses the cache and re-fetches from the provider.
	Refresh bool
	// DryRun computes the merge without writing the roadmap.
	DryRun bool
	// TTLMinutes bounds cache freshness; zero uses the default.
	TTLMinutes int
}

// Engine fetches remote epics (cached), merges them against the local
// roadmap, and writes the merged result back to disk.
type Engine struct {
	registry    *provider.Registry
	cache       *cache.Store
	matcher     *Matcher
	cfg         *config.Config
	roadmapPath string
	logger      *slog.Logger
}

// NewEngine creates a sync engine for the configured provider.
func NewEngine(registry *provider.Registry, store *cache.Store, cfg *config.Config, roadmapPath string, logger *slog.Logger) *Engine {
	if roadmapPath == "" {
		roadmapPath = DefaultPath
	}
	return &Engine{
		registry:    registry,
		cache:       store,
		matcher:     NewMatcher(),
		cfg:         cfg,
		roadmapPath: roadmapPath,
		logger:      logger,
	}
}

// Run executes one sync: fetch (through the cache unless refreshing), merge,
// and write. The roadmap write is atomic and only happens when the merge
// preserved every local item.
func (e *Engine) Run(ctx context.Context, opts Options) (*models.SyncReport, error) {
	ttl := opts.TTLMinutes
	if ttl <= 0 {
		ttl = cache.DefaultTTLMinutes
	}
	key := e.cfg.RepoKey()

	var epics []models.RemoteEpic
	if !opts.Refresh {
		cached, ok, err := e.cache.Get(key, ttl)
		if err != nil {
			return nil, fmt.Errorf("cache read failed: %w", err)
		}
		if ok {
			epics = cached
		}
	}

	if epics == nil {
		p, err := e.registry.Get(e.cfg.Provider)
		if err != nil {
			return nil, err
		}
		e.logger.Info("fetching epics from provider", "provider", e.cfg.Provider, "refresh", opts.Refresh)
		epics, err = p.FetchEpics(ctx, e.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch epics: %w", err)
		}
		if err := e.cache.Put(key, epics, ttl); err != nil {
			return nil, fmt.Errorf("cache write failed: %w", err)
		}
	}

	doc, err := LoadFile(e.roadmapPath)
	if err != nil {
		return nil, err
	}

	result, err := Merge(doc.Items, epics, e.matcher)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		e.logger.Info("dry run, roadmap not written",
			"matched", result.Report.Matched,
			"fuzzy_matched", result.Report.FuzzyMatched,
			"local_only", result.Report.LocalOnly,
			"remote_only", result.Report.RemoteOnly)
		return &result.Report, nil
	}

	doc.Items = result.Items
	if err := doc.WriteFile(e.roadmapPath); err != nil {
		return nil, err
	}

	e.logger.Info("roadmap synchronized",
		"items", len(result.Items),
		"matched", result.Report.Matched,
		"fuzzy_matched", result.Report.FuzzyMatched,
		"local_only", result.Report.LocalOnly,
		"remote_only", result.Report.RemoteOnly)
	return &result.Report, nil
}

// Merge applies the conflict-resolving merge policy. Local edits are
// authoritative: a matched item keeps its local text and priority and only
// gains the remote URL and number. Local items are never deleted. Unconsumed
// epics become remote-only entries with priorities derived from their labels.
//
// Output ordering: priority ascending, original local order within a band,
// remote-only additions appended within their mapped band.
func Merge(local []models.RoadmapItem, epics []models.RemoteEpic, matcher *Matcher) (*models.MergeResult, error) {
	consumed := make(map[int]bool)
	report := models.SyncReport{}

	merged := make([]models.RoadmapItem, 0, len(local))
	for _, item := range local {
		out := item

		if epic := matchItem(&item, epics, consumed, matcher, &report); epic != nil {
			out.GitHubURL = epic.URL
			out.GitHubNumber = epic.Number
			out.Provenance = models.ProvenanceMerged
			consumed[epic.Number] = true
		} else {
			out.Provenance = models.ProvenanceLocalOnly
			report.LocalOnly++
		}

		merged = append(merged, out)
	}

	for _, epic := range epics {
		if consumed[epic.Number] {
			continue
		}
		merged = append(merged, models.RoadmapItem{
			Text:         epic.Title,
			Priority:     PriorityFromLabels(epic.Labels),
			GitHubURL:    epic.URL,
			GitHubNumber: epic.Number,
			Provenance:   models.ProvenanceRemoteOnly,
		})
		report.RemoteOnly++
	}

	ordered := orderItems(merged)

	if err := checkPreserved(local, ordered); err != nil {
		return nil, err
	}

	return &models.MergeResult{Items: ordered, Report: report}, nil
}

// matchItem resolves a local item to a remote epic: by already-linked issue
// number first (keeps reruns stable), then by explicit branch reference, then
// by fuzzy title match.
func matchItem(item *models.RoadmapItem, epics []models.RemoteEpic, consumed map[int]bool, matcher *Matcher, report *models.SyncReport) *models.RemoteEpic {
	if item.GitHubNumber != 0 {
		for i := range epics {
			if epics[i].Number == item.GitHubNumber && !consumed[epics[i].Number] {
				report.Matched++
				return &epics[i]
			}
		}
	}

	if item.FeatureBranchRef != "" {
		for i := range epics {
			if !consumed[epics[i].Number] && epics[i].ReferencesBranch(item.FeatureBranchRef) {
				report.Matched++
				return &epics[i]
			}
		}
	}

	if epic, _, ok := matcher.BestMatch(item.Text, epics, consumed); ok {
		report.FuzzyMatched++
		return epic
	}

	return nil
}

// orderItems sorts into priority bands, keeping relative order within each
// band (locals already precede remote-only entries in the input).
func orderItems(items []models.RoadmapItem) []models.RoadmapItem {
	ordered := make([]models.RoadmapItem, 0, len(items))
	for rank := 1; rank <= 5; rank++ {
		for _, item := range items {
			if item.Priority.Rank() == rank {
				ordered = append(ordered, item)
			}
		}
	}
	return ordered
}

// checkPreserved enforces the never-delete invariant: every local item must
// survive the merge, identified by its text and branch reference.
func checkPreserved(local, merged []models.RoadmapItem) error {
	for _, in := range local {
		found := false
		for _, out := range merged {
			if out.Text == in.Text && out.FeatureBranchRef == in.FeatureBranchRef {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrMergeInvariant, in.Text)
		}
	}
	return nil
}
