package roadmap

import (
	"strings"
	"unicode"

	"github.com/specsync/specsync/internal/models"
)

// MatchThreshold is the minimum similarity score accepted as a fuzzy match.
// A score of exactly 0.8 is accepted.
const MatchThreshold = 0.8

// Matcher scores similarity between a roadmap item's text and an epic title.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher with the default threshold.
func NewMatcher() *Matcher {
	return &Matcher{threshold: MatchThreshold}
}

// Score returns the Sørensen–Dice coefficient over the normalized token sets
// of a and b: 2·|A∩B| / (|A|+|B|), in [0,1].
func (m *Matcher) Score(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	common := 0
	for tok := range ta {
		if tb[tok] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(ta)+len(tb))
}

// Accepts reports whether a score clears the match threshold.
func (m *Matcher) Accepts(score float64) bool {
	return score >= m.threshold
}

// BestMatch returns the unconsumed epic whose title best matches text, if the
// score clears the threshold. Ties are broken by the most recently updated
// epic.
func (m *Matcher) BestMatch(text string, epics []models.RemoteEpic, consumed map[int]bool) (*models.RemoteEpic, float64, bool) {
	var best *models.RemoteEpic
	bestScore := 0.0

	for i := range epics {
		epic := &epics[i]
		if consumed[epic.Number] {
			continue
		}
		score := m.Score(text, epic.Title)
		if score > bestScore || (score == bestScore && best != nil && epic.UpdatedAt.After(best.UpdatedAt)) {
			best = epic
			bestScore = score
		}
	}

	if best == nil || !m.Accepts(bestScore) {
		return nil, bestScore, false
	}
	return best, bestScore, true
}

// tokenSet case-folds, trims, strips punctuation, and splits into a set of
// word tokens.
func tokenSet(s string) map[string]bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)

	set := make(map[string]bool)
	for _, tok := range strings.Fields(cleaned) {
		set[tok] = true
	}
	return set
}
