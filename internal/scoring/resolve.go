package scoring

import (
	"slices"
	"strconv"

	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

// Aggregate groups matches by category and sums scores per label.
// Two matches for the same label compound: that is how redundant weak
// evidence outranks a single probe.
func Aggregate(matches []Match) ScoreMap {
	scores := make(ScoreMap, len(signal.Categories))
	for _, m := range matches {
		ls, ok := scores[m.Signal.Category]
		if !ok {
			ls = newLabelScores()
			scores[m.Signal.Category] = ls
		}
		ls.add(m.Signal.Label, m.Score)
	}
	return scores
}

// CountEvidence returns the number of independent evidence sources among
// matches. Signals sharing a source count once.
func CountEvidence(matches []Match) int {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m.Signal.Evidence()] = struct{}{}
	}
	return len(seen)
}

// CalculateConfidence maps the number of independent evidence sources to a
// tier. A lone source caps at low regardless of its weight.
func CalculateConfidence(matchCount int) Confidence {
	switch {
	case matchCount <= 0:
		return ConfidenceNone
	case matchCount == 1:
		return ConfidenceLow
	default:
		return ConfidenceHigh
	}
}

// Resolve builds Traits from aggregated scores. The framework category yields
// a single winner (ties go to the label seen first); the other categories
// keep every label with a positive score, highest first.
func Resolve(scores ScoreMap, matches []Match, includeDebug bool) Traits {
	t := Placeholder()

	if winner, ok := topLabel(scores[signal.CategoryFramework]); ok {
		t.FrameworkPrimary = winner
	}
	if meta := rankedLabels(scores[signal.CategoryMeta]); len(meta) > 0 {
		t.FrameworkMeta = meta
	}
	t.StateManagement = rankedLabels(scores[signal.CategoryState])
	t.DataLayer = rankedLabels(scores[signal.CategoryData])
	t.Confidence = CalculateConfidence(CountEvidence(matches))

	if includeDebug && len(matches) > 0 {
		t.DebugSignals = make([]string, 0, len(matches))
		for _, m := range matches {
			t.DebugSignals = append(t.DebugSignals, m.Signal.ID+":"+strconv.Itoa(m.Score))
		}
	}
	return t
}

func topLabel(ls *LabelScores) (string, bool) {
	best, bestScore := "", 0
	for _, label := range ls.Labels() {
		// strict comparison keeps the first label on ties
		if s := ls.Score(label); s > bestScore {
			best, bestScore = label, s
		}
	}
	return best, bestScore > 0
}

func rankedLabels(ls *LabelScores) []string {
	out := make([]string, 0)
	for _, label := range ls.Labels() {
		if ls.Score(label) > 0 {
			out = append(out, label)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return ls.Score(b) - ls.Score(a)
	})
	return out
}
