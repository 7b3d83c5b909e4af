package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const swrCatalog = `
[[signal]]
id = "swr-global"
category = "data"
label = "swr"
weight = 2
global = "__SWR__"
`

const zustandCatalog = swrCatalog + `
[[signal]]
id = "zustand-devtools"
category = "state"
label = "zustand"
weight = 2
production_safe = true
global = "__ZUSTAND_DEVTOOLS__"
`

func TestLoadRegistry(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), r.Len())

	path := filepath.Join(t.TempDir(), "signals.toml")
	require.NoError(t, os.WriteFile(path, []byte(swrCatalog), 0600))

	r, err = LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Len()+1, r.Len())

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func nextReload(t *testing.T, w *CatalogWatcher) Reload {
	t.Helper()
	select {
	case r, ok := <-w.Reloads():
		require.True(t, ok, "reloads channel closed")
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for catalog reload")
		return Reload{}
	}
}

func TestCatalogWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.toml")
	require.NoError(t, os.WriteFile(path, []byte(swrCatalog), 0600))

	w, err := NewCatalogWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte(zustandCatalog), 0600))

	r := nextReload(t, w)
	require.NoError(t, r.Err)
	require.NotNil(t, r.Registry)
	assert.Equal(t, Default().Len()+2, r.Registry.Len())
	assert.Contains(t, signalIDs(r.Registry.All()), "zustand-devtools")
}

func TestCatalogWatcher_InvalidCatalogReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.toml")
	require.NoError(t, os.WriteFile(path, []byte(swrCatalog), 0600))

	w, err := NewCatalogWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("[[signal]]\nid = \"x\"\ncategory = \"nope\"\n"), 0600))

	r := nextReload(t, w)
	assert.Error(t, r.Err)
	assert.Nil(t, r.Registry)
}

func TestCatalogWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.toml")
	require.NoError(t, os.WriteFile(path, []byte(swrCatalog), 0600))

	w, err := NewCatalogWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0600))

	select {
	case r := <-w.Reloads():
		t.Fatalf("unexpected reload: %+v", r)
	case <-time.After(3 * reloadDebounce):
	}
}

func TestCatalogWatcher_StopClosesReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.toml")
	require.NoError(t, os.WriteFile(path, []byte(swrCatalog), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	w, err := NewCatalogWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	cancel()
	w.Stop()
	w.Stop()

	_, ok := <-w.Reloads()
	assert.False(t, ok)
}

func TestCatalogWatcher_MissingDirectory(t *testing.T) {
	w, err := NewCatalogWatcher(filepath.Join(t.TempDir(), "absent", "signals.toml"))
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
}
