package kernel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreLoadMissingYieldsEmpty(t *testing.T) {
	store := NewConfigStore(t.TempDir())
	doc, err := store.LoadConfig("missing")
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestConfigStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(dir)
	require.NoError(t, store.SaveConfig("bot", map[string]any{"enabled": true, "count": float64(3)}))

	loaded, err := store.LoadConfig("bot")
	require.NoError(t, err)
	assert.Equal(t, true, loaded["enabled"])
	assert.Equal(t, float64(3), loaded["count"])
	assert.FileExists(t, filepath.Join(dir, "bot.json"))
}

func TestConfigStoreUpdateConfigShallowMerge(t *testing.T) {
	store := NewConfigStore(t.TempDir())
	require.NoError(t, store.SaveConfig("bot", map[string]any{"a": "1", "b": "2"}))
	require.NoError(t, store.UpdateConfig("bot", map[string]any{"b": "3", "c": "4"}))

	got := store.GetConfig("bot")
	assert.Equal(t, "1", got["a"])
	assert.Equal(t, "3", got["b"])
	assert.Equal(t, "4", got["c"])
}

func TestConfigStoreDeleteConfig(t *testing.T) {
	store := NewConfigStore(t.TempDir())
	require.NoError(t, store.SaveConfig("bot", map[string]any{"a": "1"}))
	assert.True(t, store.HasConfig("bot"))
	require.NoError(t, store.DeleteConfig("bot"))
	assert.False(t, store.HasConfig("bot"))
}

func TestConfigStoreLoadAllConfigsParallel(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(dir)
	require.NoError(t, store.SaveConfig("a", map[string]any{"x": "1"}))
	require.NoError(t, store.SaveConfig("b", map[string]any{"y": "2"}))

	fresh := NewConfigStore(dir)
	require.NoError(t, fresh.LoadAllConfigs())
	assert.True(t, fresh.HasConfig("a"))
	assert.True(t, fresh.HasConfig("b"))
}

func TestConfigBoolHelper(t *testing.T) {
	doc := map[string]any{"disabled": true}
	b, ok := ConfigBool(doc, "disabled")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = ConfigBool(doc, "missing")
	assert.False(t, ok)

	_, ok = ConfigBool(nil, "disabled")
	assert.False(t, ok)
}
