package items

import (
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/models"
)

// DefaultMatchThreshold is the minimum similarity for an item to count as a match.
const DefaultMatchThreshold = 0.7

const (
	serialWeight      = 0.5
	brandWeight       = 0.2
	modelWeight       = 0.2
	descriptionWeight = 0.1
)

// Matcher scores how alike two item descriptions are using a weighted average of
// per-field Jaccard word similarity. A field only contributes when at least one side
// has it; the description always contributes.
type Matcher struct {
	Threshold float64
}

// NewMatcher creates a matcher with the given threshold.
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{Threshold: threshold}
}

// Similarity returns a score in [0, 1].
func (m *Matcher) Similarity(a, b *models.StolenItem) float64 {
	var total, weights float64
	add := func(score, weight float64) {
		total += score * weight
		weights += weight
	}

	switch {
	case a.SerialNumber != "" && b.SerialNumber != "":
		if strings.EqualFold(strings.TrimSpace(a.SerialNumber), strings.TrimSpace(b.SerialNumber)) {
			add(1, serialWeight)
		} else {
			add(0, serialWeight)
		}
	case a.SerialNumber != "" || b.SerialNumber != "":
		add(0, serialWeight)
	}
	if a.Brand != "" || b.Brand != "" {
		add(jaccard(a.Brand, b.Brand), brandWeight)
	}
	if a.Model != "" || b.Model != "" {
		add(jaccard(a.Model, b.Model), modelWeight)
	}
	add(jaccard(a.Description, b.Description), descriptionWeight)

	return total / weights
}

// IsMatch reports whether the similarity of a and b reaches the threshold.
func (m *Matcher) IsMatch(a, b *models.StolenItem) bool {
	return m.Similarity(a, b) >= m.Threshold
}

// matchReason describes why a candidate matched.
func matchReason(search, candidate *models.StolenItem, score float64) string {
	switch {
	case search.SerialNumber != "" && strings.EqualFold(search.SerialNumber, candidate.SerialNumber):
		return "Exact serial number match"
	case score >= 0.9:
		return "Very high similarity match"
	case score >= 0.8:
		return "High similarity match"
	}
	return "Moderate similarity match"
}

// jaccard is |A∩B| / |A∪B| over lower-cased whitespace-separated words. Two empty
// strings are identical; one empty string matches nothing.
func jaccard(x, y string) float64 {
	wx, wy := wordSet(x), wordSet(y)
	switch {
	case len(wx) == 0 && len(wy) == 0:
		return 1
	case len(wx) == 0 || len(wy) == 0:
		return 0
	}
	shared := 0
	for w := range wx {
		if _, ok := wy[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(wx)+len(wy)-shared)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
