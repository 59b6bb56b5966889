package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSeedsMissingFile(t *testing.T) {
	dir := t.TempDir()
	seed := DefaultConfigWithRoot(dir)
	seed.TopN = 4

	mgr, err := NewManager(WithConfigDir(dir), WithInitialConfig(seed))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.json"), mgr.Path())
	assert.FileExists(t, mgr.Path())
	assert.Equal(t, 4, mgr.Get().TopN)

	// A second manager reads the file instead of the seed.
	again, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)
	assert.Equal(t, 4, again.Get().TopN)
}

func TestManagerFillsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"top_n": 3, "provider_order": ["groq"]}`), 0o644))

	mgr, err := NewManager(WithConfigPath(path))
	require.NoError(t, err)
	cfg := mgr.Get()
	assert.Equal(t, 3, cfg.TopN)
	assert.Equal(t, []string{FamilyGroq}, cfg.ProviderOrder)
	assert.Equal(t, 5, cfg.LookbackDays)
	assert.Equal(t, filepath.Join(dir, "results"), cfg.ResultsDir)
	assert.Equal(t, DefaultFamilyModels(), cfg.FamilyModels)
}

func TestManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"retry_budget": 0}`), 0o644))

	_, err := NewManager(WithConfigPath(path))
	assert.ErrorContains(t, err, "retry_budget")
}

func TestManagerUpdateAndSet(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	var calls int
	mgr.onChange = func(Config) { calls++ }

	require.NoError(t, mgr.UpdateFromJSON(`{"lookback_days": 10}`))
	assert.Equal(t, 10, mgr.Get().LookbackDays)
	assert.Equal(t, 10, mgr.Get().TopN)

	require.NoError(t, mgr.Set("discovery_mode", "llm"))
	require.NoError(t, mgr.Set("provider_order", `["deepseek","gemini"]`))
	cfg := mgr.Get()
	assert.Equal(t, DiscoveryLLM, cfg.DiscoveryMode)
	assert.Equal(t, []string{FamilyDeepSeek, FamilyGemini}, cfg.ProviderOrder)
	assert.Equal(t, 3, calls)

	// Same value again is a no-op.
	require.NoError(t, mgr.Set("discovery_mode", "llm"))
	assert.Equal(t, 3, calls)

	assert.ErrorContains(t, mgr.Set("nope", "1"), "unknown config key")
	assert.Error(t, mgr.Set("top_n", "0"))
	assert.Equal(t, 10, mgr.Get().TopN)

	onDisk, err := readConfig(mgr.Path())
	require.NoError(t, err)
	assert.Equal(t, mgr.Get(), onDisk)
}

func TestManagerWatchReloadsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 4)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) { reloaded <- cfg }))

	bad := mgr.Get()
	bad.MaxWorkers = 0
	require.NoError(t, writeConfig(mgr.Path(), bad))

	good := mgr.Get()
	good.TopN = 25
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, writeConfig(mgr.Path(), good))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 25, cfg.TopN)
		assert.Equal(t, 3, cfg.MaxWorkers)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire on config change")
	}
	assert.Equal(t, 25, mgr.Get().TopN)
}
