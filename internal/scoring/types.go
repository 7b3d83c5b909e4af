// Package scoring turns signal matches into tech-stack traits.
//
// A pass builds a Context, runs every runnable signal inside a recover
// boundary, folds matches into per-category label scores and resolves them
// into Traits. The pass is deterministic for a fixed Context and registry and
// never panics or returns an error: every failure degrades to "no match".
package scoring

import "github.com/fyrsmithlabs/stackprobe/internal/signal"

// Version is the engine version stamped on every Traits value.
const Version = "1.2.0"

// Unknown is the primary framework label when nothing matched.
const Unknown = "unknown"

// Confidence classifies how much independent evidence fired.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Traits is the result of one detection pass.
//
// DebugSignals is only populated outside production. It must never reach a
// sink; the sink package builds its payload from an explicit projection.
type Traits struct {
	FrameworkPrimary string     `json:"framework_primary"`
	FrameworkMeta    []string   `json:"framework_meta,omitempty"`
	StateManagement  []string   `json:"state_management"`
	DataLayer        []string   `json:"data_layer"`
	Confidence       Confidence `json:"confidence"`
	Version          string     `json:"detector_version"`
	DebugSignals     []string   `json:"debug_signals,omitempty"`
}

// Placeholder returns the traits reported when detection is skipped or
// finds nothing.
func Placeholder() Traits {
	return Traits{
		FrameworkPrimary: Unknown,
		StateManagement:  []string{},
		DataLayer:        []string{},
		Confidence:       ConfidenceNone,
		Version:          Version,
	}
}

// IsUnknown reports whether no primary framework was identified.
func (t Traits) IsUnknown() bool {
	return t.FrameworkPrimary == "" || t.FrameworkPrimary == Unknown
}

// Match pairs a signal with the score it contributed.
type Match struct {
	Signal signal.Signal
	Score  int
}

// LabelScores accumulates scores per label, remembering the order in which
// labels were first seen.
type LabelScores struct {
	order  []string
	scores map[string]int
}

func newLabelScores() *LabelScores {
	return &LabelScores{scores: make(map[string]int)}
}

func (l *LabelScores) add(label string, score int) {
	if _, ok := l.scores[label]; !ok {
		l.order = append(l.order, label)
	}
	l.scores[label] += score
}

// Labels returns labels in encounter order.
func (l *LabelScores) Labels() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Score returns the accumulated score for label.
func (l *LabelScores) Score(label string) int {
	if l == nil {
		return 0
	}
	return l.scores[label]
}

// ScoreMap holds accumulated label scores per category.
type ScoreMap map[signal.Category]*LabelScores
