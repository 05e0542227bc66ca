// Package roadmap parses the local roadmap document, matches its items
// against remote epics, and applies the conflict-resolving merge.
package roadmap

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

// DefaultPath is the roadmap document at the repository root.
const DefaultPath = "ROADMAP.md"

// Document is a parsed roadmap file.
type Document struct {
	Title string
	Items []models.RoadmapItem
}

var (
	sectionRe = regexp.MustCompile(`^##\s+(P[1-4])\b`)
	itemRe    = regexp.MustCompile(`^- \[( |x|X)\]\s+(.*)$`)
	branchRe  = regexp.MustCompile("`([^`]+)`")
	linkRe    = regexp.MustCompile(`\s*\(\[#(\d+)\]\((\S+)\)\)\s*$`)
)

// Parse reads a roadmap document. Items appear under `## P1`..`## P4` section
// headers as `- [ ] text`, optionally carrying a feature branch reference in
// backticks and a trailing issue link `([#12](url))`.
func Parse(data []byte) (*Document, error) {
	doc := &Document{Title: "# Roadmap"}
	current := models.PriorityP3

	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimRight(line, " \t")

		if strings.HasPrefix(trimmed, "# ") {
			doc.Title = trimmed
			continue
		}
		if m := sectionRe.FindStringSubmatch(trimmed); m != nil {
			current = models.Priority(m[1])
			continue
		}
		m := itemRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}

		item := models.RoadmapItem{
			Priority: current,
			Done:     strings.EqualFold(m[1], "x"),
		}
		text := m[2]

		if lm := linkRe.FindStringSubmatch(text); lm != nil {
			n, err := strconv.Atoi(lm[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad issue number %q", i+1, lm[1])
			}
			item.GitHubNumber = n
			item.GitHubURL = lm[2]
			text = strings.TrimSpace(text[:len(text)-len(lm[0])])
		}
		if bm := branchRe.FindStringSubmatch(text); bm != nil {
			item.FeatureBranchRef = bm[1]
			text = strings.TrimSpace(strings.Replace(text, bm[0], "", 1))
		}

		item.Text = strings.TrimSpace(text)
		if item.Text == "" {
			return nil, fmt.Errorf("line %d: roadmap item has no text", i+1)
		}
		doc.Items = append(doc.Items, item)
	}

	return doc, nil
}

// Render writes the document back out, items grouped into priority sections
// in the order they appear in Items.
func (d *Document) Render() []byte {
	var b strings.Builder
	b.WriteString(d.Title)
	b.WriteString("\n")

	for _, p := range []models.Priority{models.PriorityP1, models.PriorityP2, models.PriorityP3, models.PriorityP4} {
		var section []models.RoadmapItem
		for _, item := range d.Items {
			if item.Priority == p {
				section = append(section, item)
			}
		}
		if len(section) == 0 {
			continue
		}

		b.WriteString("\n## ")
		b.WriteString(string(p))
		b.WriteString("\n")
		for _, item := range section {
			b.WriteString(renderItem(item))
			b.WriteString("\n")
		}
	}

	return []byte(b.String())
}

func renderItem(item models.RoadmapItem) string {
	box := " "
	if item.Done {
		box = "x"
	}
	line := fmt.Sprintf("- [%s] %s", box, item.Text)
	if item.FeatureBranchRef != "" {
		line += fmt.Sprintf(" `%s`", item.FeatureBranchRef)
	}
	if item.GitHubNumber != 0 && item.GitHubURL != "" {
		line += fmt.Sprintf(" ([#%d](%s))", item.GitHubNumber, item.GitHubURL)
	}
	return line
}

// LoadFile parses the roadmap at path. A missing file yields an empty
// document rather than an error.
func LoadFile(path string) (*Document, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Title: "# Roadmap"}, nil
		}
		return nil, fmt.Errorf("failed to read roadmap: %w", err)
	}
	return Parse(data)
}

// WriteFile renders and atomically writes the document.
func (d *Document) WriteFile(path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := config.WriteFileAtomic(path, d.Render(), 0644); err != nil {
		return fmt.Errorf("failed to write roadmap: %w", err)
	}
	return nil
}
