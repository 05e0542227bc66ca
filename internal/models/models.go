package models

import (
	"strings"
	"time"
)

// ProviderType identifies a supported git-hosting provider.
type ProviderType string

const (
	ProviderGitHub      ProviderType = "github"
	ProviderAzureDevOps ProviderType = "azure_devops"
	ProviderGitLab      ProviderType = "gitlab"
)

// ProviderTypes returns all supported providers in selection order.
func ProviderTypes() []ProviderType {
	return []ProviderType{ProviderGitHub, ProviderAzureDevOps, ProviderGitLab}
}

// Valid reports whether the provider type is one of the supported values.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderAzureDevOps, ProviderGitLab:
		return true
	}
	return false
}

// DisplayName returns the human-readable provider name.
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderGitHub:
		return "GitHub"
	case ProviderAzureDevOps:
		return "Azure DevOps"
	case ProviderGitLab:
		return "GitLab"
	}
	return string(p)
}

// Priority is a roadmap priority band, P1 being the most urgent.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// Rank returns the sort rank of the priority, lower is more urgent.
// Unknown priorities rank after P4.
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	case PriorityP4:
		return 4
	}
	return 5
}

// Valid reports whether the priority is one of P1..P4.
func (p Priority) Valid() bool {
	return p.Rank() <= 4
}

// Provenance records how a roadmap item ended up in a merge result.
type Provenance string

const (
	ProvenanceLocalOnly  Provenance = "local-only"
	ProvenanceRemoteOnly Provenance = "remote-only"
	ProvenanceMerged     Provenance = "merged"
)

// RemoteEpic is a remote tracker issue representing a large unit of work.
type RemoteEpic struct {
	Number    int       `json:"number" yaml:"number"`
	Title     string    `json:"title" yaml:"title"`
	Labels    []string  `json:"labels" yaml:"labels"`
	State     string    `json:"state" yaml:"state"`
	URL       string    `json:"url" yaml:"url"`
	Body      string    `json:"body" yaml:"body"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// IsOpen reports whether the epic is in the open state.
func (e *RemoteEpic) IsOpen() bool {
	return strings.EqualFold(e.State, "open")
}

// HasLabel reports whether the epic carries the given label, case-insensitively.
func (e *RemoteEpic) HasLabel(name string) bool {
	for _, l := range e.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// ReferencesBranch reports whether the epic's title or body mentions the given
// feature branch reference.
func (e *RemoteEpic) ReferencesBranch(ref string) bool {
	if ref == "" {
		return false
	}
	ref = strings.ToLower(ref)
	return strings.Contains(strings.ToLower(e.Title), ref) ||
		strings.Contains(strings.ToLower(e.Body), ref)
}

// RoadmapItem is a single entry in the local roadmap document.
type RoadmapItem struct {
	Text             string     `json:"text" yaml:"text"`
	Priority         Priority   `json:"priority" yaml:"priority"`
	Done             bool       `json:"done,omitempty" yaml:"done,omitempty"`
	FeatureBranchRef string     `json:"feature_branch_ref,omitempty" yaml:"feature_branch_ref,omitempty"`
	GitHubURL        string     `json:"github_url,omitempty" yaml:"github_url,omitempty"`
	GitHubNumber     int        `json:"github_number,omitempty" yaml:"github_number,omitempty"`
	Provenance       Provenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// ValidationResult captures the outcome of a single validation probe.
// Failures are data, not errors: the wizard branches on them.
type ValidationResult struct {
	Step         string         `json:"step"`
	Success      bool           `json:"success"`
	Fatal        bool           `json:"fatal"`
	Timestamp    time.Time      `json:"timestamp"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Suggestion   string         `json:"suggestion,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// AllSucceeded reports whether every probe passed.
func AllSucceeded(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return len(results) > 0
}

// AnyFatal reports whether any probe failed fatally.
func AnyFatal(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Success && r.Fatal {
			return true
		}
	}
	return false
}

// FailureMessages returns one human-readable line per failed probe.
func FailureMessages(results []ValidationResult) []string {
	var msgs []string
	for _, r := range results {
		if !r.Success && r.ErrorMessage != "" {
			msgs = append(msgs, r.Step+": "+r.ErrorMessage)
		}
	}
	return msgs
}

// SyncReport summarizes a roadmap merge.
type SyncReport struct {
	Matched      int `json:"matched"`
	FuzzyMatched int `json:"fuzzy_matched"`
	LocalOnly    int `json:"local_only"`
	RemoteOnly   int `json:"remote_only"`
}

// MergeResult is the ordered output of the roadmap merge plus its summary.
type MergeResult struct {
	Items  []RoadmapItem `json:"items"`
	Report SyncReport    `json:"report"`
}
