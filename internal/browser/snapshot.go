// Package browser adapts page environments to the signal interfaces.
//
// Outside js/wasm builds the only environment is a recorded Snapshot. In the
// browser, Live exposes globalThis and document, and the package provides
// the sessionStorage store, the requestIdleCallback scheduler and the
// window.posthog analytics client.
package browser

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

const maxSnapshotSize = 4 * 1024 * 1024

// ErrThrowingGetter is the panic value raised for paths listed under
// throwing_getters.
var ErrThrowingGetter = errors.New("snapshot: getter threw")

// Snapshot is a recorded page environment. JSON input is accepted since
// it is valid YAML:
//
//	name: react-redux
//	globals:
//	  __REACT_DEVTOOLS_GLOBAL_HOOK__:
//	    renderers: [1]
//	  __REDUX_DEVTOOLS_EXTENSION__: true
//	document:
//	  scripts: [/_next/static/chunks/main.js]
//	  selectors: ["[ng-version]"]
type Snapshot struct {
	Name string `yaml:"name"`
	// ServerSide records a render with no browser environment.
	ServerSide bool             `yaml:"server_side"`
	Globals    Globals          `yaml:"globals"`
	Document   DocumentSnapshot `yaml:"document"`
	// ThrowingGetters lists paths whose access panics, reproducing pages
	// with hostile property getters.
	ThrowingGetters []string `yaml:"throwing_getters"`
}

// Globals is a nested property tree rooted at the global object.
type Globals map[string]any

// DocumentSnapshot records the structural parts of a document.
type DocumentSnapshot struct {
	Scripts   []string `yaml:"scripts"`
	Selectors []string `yaml:"selectors"`
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	if info.Size() > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot %s too large: %d bytes (max %d)", path, info.Size(), maxSnapshotSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes YAML or JSON snapshot data.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// Load implements scoring.EnvironmentSource.
func (s *Snapshot) Load() (signal.Environment, signal.Document) {
	if s == nil || s.ServerSide {
		return nil, nil
	}
	return snapshotEnv{globals: s.Globals, throwing: s.ThrowingGetters}, s.Document
}

type snapshotEnv struct {
	globals  Globals
	throwing []string
}

func (e snapshotEnv) Has(path string) bool {
	_, ok := e.resolve(path)
	return ok
}

func (e snapshotEnv) Len(path string) int {
	v, ok := e.resolve(path)
	if !ok {
		return 0
	}
	return e.globals.length(v)
}

func (e snapshotEnv) resolve(path string) (any, bool) {
	for _, t := range e.throwing {
		if path == t || strings.HasPrefix(path, t+".") {
			panic(fmt.Errorf("%w: %s", ErrThrowingGetter, t))
		}
	}
	return e.globals.Lookup(path)
}

// Lookup walks a dotted path. Null values count as absent.
func (g Globals) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = map[string]any(g)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func (Globals) length(v any) int {
	switch c := v.(type) {
	case map[string]any:
		return len(c)
	case []any:
		return len(c)
	case string:
		return len(c)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len()
	}
	return 0
}

// ScriptSources implements signal.Document.
func (d DocumentSnapshot) ScriptSources() []string {
	return slices.Clone(d.Scripts)
}

// Has implements signal.Document. Selectors match verbatim.
func (d DocumentSnapshot) Has(selector string) bool {
	return slices.Contains(d.Selectors, selector)
}
