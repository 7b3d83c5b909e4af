// Package signal defines the probe catalog the scoring engine runs.
//
// A Signal is an immutable, weighted boolean probe for one piece of
// environmental evidence: typically a global hook that a browser devtools
// extension injects into every page. Labels are open strings; only the
// category set is closed, so new frameworks are added by adding signals.
package signal

import "fmt"

// Category groups signals whose labels compete or accumulate together.
type Category string

const (
	// CategoryFramework holds the primary UI framework. One label wins.
	CategoryFramework Category = "framework"
	// CategoryMeta holds framework-adjacent tooling (meta-frameworks, bundlers).
	CategoryMeta Category = "meta"
	// CategoryState holds state-management libraries.
	CategoryState Category = "state"
	// CategoryData holds data-fetching layers.
	CategoryData Category = "data"
)

// Categories lists every valid category in resolution order.
var Categories = []Category{CategoryFramework, CategoryMeta, CategoryState, CategoryData}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Weight bounds. No single signal can force high confidence on its own;
// confidence is derived from the number of matches, not their weight.
const (
	MinWeight = 1
	MaxWeight = 5
)

// Environment is a read-only view of the page's global object.
// Paths are dotted property paths from the global scope, for example
// "__VUE_DEVTOOLS_GLOBAL_HOOK__.apps".
//
// Implementations backed by live objects may panic on hostile getters;
// callers that run probes must recover.
type Environment interface {
	// Has reports whether the path resolves to a defined, non-null value.
	Has(path string) bool
	// Len returns the entry count of the collection at path, or 0.
	Len(path string) int
}

// Document is a read-only structural view of the page document.
type Document interface {
	// ScriptSources returns the src attribute of every script element.
	ScriptSources() []string
	// Has reports whether any element matches the CSS selector.
	Has(selector string) bool
}

// Context is the per-invocation snapshot every probe evaluates against.
// Env and Doc are nil when no browser environment exists.
type Context struct {
	Env        Environment
	Doc        Document
	Production bool
}

// HasEnvironment reports whether probes have anything to inspect.
func (c Context) HasEnvironment() bool {
	return c.Env != nil
}

// CheckFunc is a pure, synchronous predicate over a Context.
type CheckFunc func(ctx Context) bool

// Signal is one probe definition.
//
// Source names the piece of evidence the probe reads. Probes with the same
// Source (a hook and a field on that hook) add weight but count once toward
// confidence. An empty Source means the probe stands alone.
type Signal struct {
	ID             string
	Category       Category
	Label          string
	Weight         int
	ProductionSafe bool
	Source         string
	Check          CheckFunc
}

// Evidence returns the key the signal counts under for confidence.
func (s Signal) Evidence() string {
	if s.Source != "" {
		return s.Source
	}
	return s.ID
}

// Validate checks the static fields of the signal.
func (s Signal) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSignal)
	}
	if !s.Category.Valid() {
		return fmt.Errorf("%w: %q on signal %s", ErrUnknownCategory, s.Category, s.ID)
	}
	if s.Label == "" {
		return fmt.Errorf("%w: empty label on signal %s", ErrInvalidSignal, s.ID)
	}
	if s.Weight < MinWeight || s.Weight > MaxWeight {
		return fmt.Errorf("%w: %d on signal %s (must be %d-%d)", ErrInvalidWeight, s.Weight, s.ID, MinWeight, MaxWeight)
	}
	if s.Check == nil {
		return fmt.Errorf("%w: nil check on signal %s", ErrInvalidSignal, s.ID)
	}
	return nil
}
