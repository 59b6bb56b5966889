package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigWithRootIsValid(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.LookbackDays)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, 10, cfg.TopN)
	assert.Equal(t, 3, cfg.RetryBudget)
	assert.Equal(t, 5, cfg.ConfidenceStageCount)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
	}, cfg.RetryDelays())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.RetryBudget = 0
	cfg.DiscoveryMode = "oracle"
	cfg.ProviderOrder = []string{"gemini", "mistral"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_budget")
	assert.Contains(t, err.Error(), "oracle")
	assert.Contains(t, err.Error(), "mistral")
}

func TestCredentials(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.GroqAPIKey = "gsk"

	creds := cfg.Credentials()
	assert.True(t, creds[FamilyGroq])
	assert.False(t, creds[FamilyGemini])
	assert.False(t, cfg.HasLongport())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("THESISGO_PROVIDER_ORDER", " Groq, gemini ")
	t.Setenv("THESISGO_TOP_N", "7")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.loadFromEnv()

	assert.Equal(t, []string{"groq", "gemini"}, cfg.ProviderOrder)
	assert.Equal(t, 7, cfg.TopN)
	assert.Equal(t, "g-key", cfg.GoogleAPIKey)
}

func TestManagerSetField(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, mgr.Set("top_n", "4"))
	require.NoError(t, mgr.Set("discovery_mode", "llm"))
	assert.Equal(t, 4, mgr.Get().TopN)
	assert.Equal(t, DiscoveryLLM, mgr.Get().DiscoveryMode)

	assert.Error(t, mgr.Set("no_such_key", "1"))
	assert.Error(t, mgr.Set("top_n", "0"), "validation must reject the update")
	assert.Equal(t, 4, mgr.Get().TopN)
}
