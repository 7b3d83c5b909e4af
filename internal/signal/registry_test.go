package signal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv map[string]int

func (f fakeEnv) Has(path string) bool {
	_, ok := f[path]
	return ok
}

func (f fakeEnv) Len(path string) int {
	return f[path]
}

type fakeDoc struct {
	scripts   []string
	selectors map[string]bool
}

func (d fakeDoc) ScriptSources() []string { return d.scripts }
func (d fakeDoc) Has(selector string) bool { return d.selectors[selector] }

func always(Context) bool { return true }

func TestBuiltin_ValidAndUnique(t *testing.T) {
	reg, err := NewRegistry(Builtin()...)
	require.NoError(t, err)
	assert.Equal(t, len(Builtin()), reg.Len())

	seen := make(map[string]bool)
	for _, s := range reg.All() {
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		assert.True(t, s.Category.Valid())
		assert.GreaterOrEqual(t, s.Weight, MinWeight)
		assert.LessOrEqual(t, s.Weight, MaxWeight)
	}
}

func TestBuiltin_CoversEveryCategory(t *testing.T) {
	byCategory := make(map[Category]int)
	for _, s := range Builtin() {
		byCategory[s.Category]++
	}
	for _, c := range Categories {
		assert.Positive(t, byCategory[c], "no builtin signals for %s", c)
	}
}

func TestRegistry_Runnable(t *testing.T) {
	reg, err := NewRegistry(
		Signal{ID: "a", Category: CategoryFramework, Label: "x", Weight: 1, ProductionSafe: true, Check: always},
		Signal{ID: "b", Category: CategoryMeta, Label: "y", Weight: 1, ProductionSafe: false, Check: always},
		Signal{ID: "c", Category: CategoryState, Label: "z", Weight: 1, ProductionSafe: true, Check: always},
	)
	require.NoError(t, err)

	t.Run("development runs everything in order", func(t *testing.T) {
		ids := signalIDs(reg.Runnable(false))
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("production runs only safe signals", func(t *testing.T) {
		ids := signalIDs(reg.Runnable(true))
		assert.Equal(t, []string{"a", "c"}, ids)
	})
}

func TestBuiltin_ProductionExcludesPageFingerprinting(t *testing.T) {
	for _, s := range Default().Runnable(true) {
		assert.True(t, s.ProductionSafe, s.ID)
	}
	_, ok := Default().Lookup("next-script-path")
	assert.True(t, ok)
	ids := signalIDs(Default().Runnable(true))
	for _, id := range []string{
		"next-script-path", "angular-version-attr",
		"next-data", "nuxt-state", "gatsby-loader", "remix-context",
		"vue-global", "angular-debug-api", "vuex-devtools-store",
		"apollo-client-global", "tanstack-query-client",
	} {
		assert.NotContains(t, ids, id)
	}
}

func TestBuiltin_ExtensionSourcesGroupProbes(t *testing.T) {
	reg := Default()
	evidence := func(id string) string {
		s, ok := reg.Lookup(id)
		require.True(t, ok, id)
		return s.Evidence()
	}

	assert.Equal(t, evidence("react-devtools-hook"), evidence("react-devtools-renderers"))
	assert.Equal(t, evidence("redux-devtools-extension"), evidence("redux-devtools-compose"))
	assert.NotEqual(t, evidence("react-devtools-hook"), evidence("redux-devtools-extension"))
	assert.Equal(t, "mobx-devtools-hook", evidence("mobx-devtools-hook"))
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		signals []Signal
		wantErr error
	}{
		{
			name:    "empty id",
			signals: []Signal{{Category: CategoryFramework, Label: "x", Weight: 1, Check: always}},
			wantErr: ErrInvalidSignal,
		},
		{
			name:    "unknown category",
			signals: []Signal{{ID: "a", Category: "ui", Label: "x", Weight: 1, Check: always}},
			wantErr: ErrUnknownCategory,
		},
		{
			name:    "weight too low",
			signals: []Signal{{ID: "a", Category: CategoryData, Label: "x", Weight: 0, Check: always}},
			wantErr: ErrInvalidWeight,
		},
		{
			name:    "weight too high",
			signals: []Signal{{ID: "a", Category: CategoryData, Label: "x", Weight: 6, Check: always}},
			wantErr: ErrInvalidWeight,
		},
		{
			name:    "nil check",
			signals: []Signal{{ID: "a", Category: CategoryData, Label: "x", Weight: 1}},
			wantErr: ErrInvalidSignal,
		},
		{
			name: "duplicate id",
			signals: []Signal{
				{ID: "a", Category: CategoryData, Label: "x", Weight: 1, Check: always},
				{ID: "a", Category: CategoryState, Label: "y", Weight: 2, Check: always},
			},
			wantErr: ErrDuplicateID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.signals...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRegistry_With(t *testing.T) {
	base := Default()
	extra := Signal{ID: "zustand", Category: CategoryState, Label: "zustand", Weight: 2, Check: always}

	reg, err := base.With(extra)
	require.NoError(t, err)
	assert.Equal(t, base.Len()+1, reg.Len())

	all := reg.All()
	assert.Equal(t, "zustand", all[len(all)-1].ID)

	_, err = reg.With(extra)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCheckHelpers(t *testing.T) {
	env := fakeEnv{"__VUE__": 0, "hook.renderers": 2, "empty.list": 0}
	doc := fakeDoc{
		scripts:   []string{"https://example.com/_next/static/chunks/main.js"},
		selectors: map[string]bool{"[ng-version]": true},
	}
	ctx := Context{Env: env, Doc: doc}

	assert.True(t, Global("__VUE__")(ctx))
	assert.False(t, Global("__NUXT__")(ctx))
	assert.True(t, NonEmpty("hook.renderers")(ctx))
	assert.False(t, NonEmpty("empty.list")(ctx))
	assert.True(t, ScriptPath("/_next/static/")(ctx))
	assert.False(t, ScriptPath("/_nuxt/")(ctx))
	assert.True(t, Element("[ng-version]")(ctx))

	t.Run("nil environment never matches", func(t *testing.T) {
		empty := Context{}
		assert.False(t, empty.HasEnvironment())
		assert.False(t, Global("__VUE__")(empty))
		assert.False(t, NonEmpty("hook.renderers")(empty))
		assert.False(t, ScriptPath("/_next/")(empty))
		assert.False(t, Element("[ng-version]")(empty))
	})
}

func TestParseCustom(t *testing.T) {
	data := `
[[signal]]
id = "zustand-devtools"
category = "state"
label = "zustand"
weight = 2
production_safe = true
source = "zustand-devtools"
global = "__ZUSTAND_DEVTOOLS__"

[[signal]]
id = "qwik-containers"
category = "framework"
label = "qwik"
weight = 3
non_empty = "qwikevents"
`
	signals, err := ParseCustom([]byte(data))
	require.NoError(t, err)
	require.Len(t, signals, 2)

	assert.Equal(t, "zustand-devtools", signals[0].ID)
	assert.Equal(t, CategoryState, signals[0].Category)
	assert.True(t, signals[0].ProductionSafe)
	assert.False(t, signals[1].ProductionSafe)
	assert.Equal(t, "zustand-devtools", signals[0].Evidence())
	assert.Equal(t, "qwik-containers", signals[1].Evidence())

	ctx := Context{Env: fakeEnv{"__ZUSTAND_DEVTOOLS__": 0, "qwikevents": 1}}
	assert.True(t, signals[0].Check(ctx))
	assert.True(t, signals[1].Check(ctx))
}

func TestParseCustom_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "unknown category",
			data:    "[[signal]]\nid = \"a\"\ncategory = \"ui\"\nlabel = \"x\"\nweight = 1\nglobal = \"X\"\n",
			wantErr: ErrUnknownCategory,
		},
		{
			name:    "no probe",
			data:    "[[signal]]\nid = \"a\"\ncategory = \"data\"\nlabel = \"x\"\nweight = 1\n",
			wantErr: ErrInvalidSignal,
		},
		{
			name:    "both probes",
			data:    "[[signal]]\nid = \"a\"\ncategory = \"data\"\nlabel = \"x\"\nweight = 1\nglobal = \"X\"\nnon_empty = \"Y\"\n",
			wantErr: ErrInvalidSignal,
		},
		{
			name:    "unknown key",
			data:    "[[signal]]\nid = \"a\"\ncategory = \"data\"\nlabel = \"x\"\nweight = 1\nglobal = \"X\"\nselector = \"div\"\n",
			wantErr: ErrInvalidSignal,
		},
		{
			name:    "weight out of range",
			data:    "[[signal]]\nid = \"a\"\ncategory = \"data\"\nlabel = \"x\"\nweight = 9\nglobal = \"X\"\n",
			wantErr: ErrInvalidWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCustom([]byte(tt.data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadCustom(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[signal]]\nid = \"a\"\ncategory = \"data\"\nlabel = \"swr\"\nweight = 2\nglobal = \"__SWR__\"\n"), 0600))

	signals, err := LoadCustom(path)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "swr", signals[0].Label)

	_, err = LoadCustom(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func signalIDs(signals []Signal) []string {
	ids := make([]string, 0, len(signals))
	for _, s := range signals {
		ids = append(ids, s.ID)
	}
	return ids
}
