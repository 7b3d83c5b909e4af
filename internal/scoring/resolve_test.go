package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

func match(id string, cat signal.Category, label string, weight int) Match {
	return Match{
		Signal: signal.Signal{ID: id, Category: cat, Label: label, Weight: weight},
		Score:  weight,
	}
}

func TestAggregate(t *testing.T) {
	scores := Aggregate([]Match{
		match("a", signal.CategoryFramework, "vue", 2),
		match("b", signal.CategoryFramework, "react", 2),
		match("c", signal.CategoryFramework, "vue", 3),
		match("d", signal.CategoryState, "redux", 1),
	})

	fw := scores[signal.CategoryFramework]
	assert.Equal(t, []string{"vue", "react"}, fw.Labels())
	assert.Equal(t, 5, fw.Score("vue"))
	assert.Equal(t, 2, fw.Score("react"))
	assert.Equal(t, 1, scores[signal.CategoryState].Score("redux"))
	assert.Nil(t, scores[signal.CategoryData])
	assert.Equal(t, 0, scores[signal.CategoryData].Score("apollo"))
}

func TestCalculateConfidence(t *testing.T) {
	tests := []struct {
		count int
		want  Confidence
	}{
		{-1, ConfidenceNone},
		{0, ConfidenceNone},
		{1, ConfidenceLow},
		{2, ConfidenceHigh},
		{7, ConfidenceHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateConfidence(tt.count), "count=%d", tt.count)
	}
}

func TestResolve_SingleEvidenceNeverHigh(t *testing.T) {
	for w := signal.MinWeight; w <= signal.MaxWeight; w++ {
		matches := []Match{match("x", signal.CategoryFramework, "svelte", w)}
		traits := Resolve(Aggregate(matches), matches, false)
		assert.Equal(t, ConfidenceLow, traits.Confidence, "weight=%d", w)
	}
}

func TestResolve_SharedSourceCountsOnce(t *testing.T) {
	hook := match("react-devtools-hook", signal.CategoryFramework, "react", 2)
	hook.Signal.Source = "react-devtools"
	renderers := match("react-devtools-renderers", signal.CategoryFramework, "react", 3)
	renderers.Signal.Source = "react-devtools"

	matches := []Match{hook, renderers}
	assert.Equal(t, 1, CountEvidence(matches))
	traits := Resolve(Aggregate(matches), matches, false)
	assert.Equal(t, "react", traits.FrameworkPrimary)
	assert.Equal(t, ConfidenceLow, traits.Confidence)

	matches = append(matches, match("redux-devtools-extension", signal.CategoryState, "redux", 3))
	assert.Equal(t, 2, CountEvidence(matches))
	assert.Equal(t, ConfidenceHigh, Resolve(Aggregate(matches), matches, false).Confidence)
}

func TestResolve_FrameworkTieGoesToFirstEncountered(t *testing.T) {
	matches := []Match{
		match("a", signal.CategoryFramework, "preact", 2),
		match("b", signal.CategoryFramework, "react", 2),
	}
	traits := Resolve(Aggregate(matches), matches, false)
	assert.Equal(t, "preact", traits.FrameworkPrimary)

	reversed := []Match{matches[1], matches[0]}
	traits = Resolve(Aggregate(reversed), reversed, false)
	assert.Equal(t, "react", traits.FrameworkPrimary)
}

func TestResolve_SecondaryOrdering(t *testing.T) {
	matches := []Match{
		match("a", signal.CategoryState, "xstate", 2),
		match("b", signal.CategoryState, "mobx", 3),
		match("c", signal.CategoryState, "vuex", 2),
		match("d", signal.CategoryData, "relay", 2),
	}
	traits := Resolve(Aggregate(matches), matches, false)

	assert.Equal(t, []string{"mobx", "xstate", "vuex"}, traits.StateManagement)
	assert.Equal(t, []string{"relay"}, traits.DataLayer)
	assert.Equal(t, Unknown, traits.FrameworkPrimary)
	assert.Nil(t, traits.FrameworkMeta)
}

func TestResolve_DebugTrace(t *testing.T) {
	matches := []Match{
		match("react-devtools-hook", signal.CategoryFramework, "react", 2),
		match("redux-devtools-extension", signal.CategoryState, "redux", 3),
	}

	withDebug := Resolve(Aggregate(matches), matches, true)
	assert.Equal(t, []string{"react-devtools-hook:2", "redux-devtools-extension:3"}, withDebug.DebugSignals)

	without := Resolve(Aggregate(matches), matches, false)
	assert.Nil(t, without.DebugSignals)

	empty := Resolve(Aggregate(nil), nil, true)
	assert.Nil(t, empty.DebugSignals, "no matches means no debug trace")
}

func TestResolve_Deterministic(t *testing.T) {
	matches := []Match{
		match("a", signal.CategoryFramework, "vue", 2),
		match("b", signal.CategoryMeta, "nuxt", 3),
		match("c", signal.CategoryMeta, "vite", 2),
		match("d", signal.CategoryState, "vuex", 3),
		match("e", signal.CategoryData, "apollo", 3),
		match("f", signal.CategoryData, "tanstack-query", 3),
	}
	first := Resolve(Aggregate(matches), matches, true)
	second := Resolve(Aggregate(matches), matches, true)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"nuxt", "vite"}, first.FrameworkMeta)
	assert.Equal(t, Version, first.Version)
}

func TestTraits_IsUnknown(t *testing.T) {
	assert.True(t, Placeholder().IsUnknown())
	assert.True(t, Traits{}.IsUnknown())
	assert.False(t, Traits{FrameworkPrimary: "react"}.IsUnknown())
}
