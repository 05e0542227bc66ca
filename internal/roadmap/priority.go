package roadmap

import (
	"strings"

	"github.com/specsync/specsync/internal/models"
)

// DefaultPriority is assigned when no label maps to a priority band.
const DefaultPriority = models.PriorityP3

// priorityLabels maps common label spellings, case-insensitive, to priority
// bands.
var priorityLabels = map[string]models.Priority{
	"p1":                models.PriorityP1,
	"priority:p1":       models.PriorityP1,
	"priority/p1":       models.PriorityP1,
	"critical":          models.PriorityP1,
	"priority:critical": models.PriorityP1,
	"priority/critical": models.PriorityP1,

	"p2":            models.PriorityP2,
	"priority:p2":   models.PriorityP2,
	"priority/p2":   models.PriorityP2,
	"high":          models.PriorityP2,
	"priority:high": models.PriorityP2,
	"priority/high": models.PriorityP2,

	"p3":              models.PriorityP3,
	"priority:p3":     models.PriorityP3,
	"priority/p3":     models.PriorityP3,
	"medium":          models.PriorityP3,
	"priority:medium": models.PriorityP3,
	"priority/medium": models.PriorityP3,

	"p4":           models.PriorityP4,
	"priority:p4":  models.PriorityP4,
	"priority/p4":  models.PriorityP4,
	"low":          models.PriorityP4,
	"priority:low": models.PriorityP4,
	"priority/low": models.PriorityP4,
}

// PriorityFromLabels maps an epic's labels to a priority band. The first
// recognized label wins; unrecognized labels fall back to DefaultPriority.
func PriorityFromLabels(labels []string) models.Priority {
	for _, label := range labels {
		key := strings.ToLower(strings.TrimSpace(label))
		if p, ok := priorityLabels[key]; ok {
			return p
		}
	}
	return DefaultPriority
}
