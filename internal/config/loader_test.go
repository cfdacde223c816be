package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		require.NoError(t, os.Setenv(k, v))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, old)
			} else {
				_ = os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, map[string]string{"OPENAI_API_KEY": "", "LLM_PROVIDER": ""})
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "openai", cfg.LLMClient.Provider)
	require.Equal(t, 15000, cfg.Extract.TimeoutMS)
	require.Equal(t, 2, cfg.Extract.Retries)
	require.Equal(t, 250, cfg.Extract.RetryBaseMS)
	require.Equal(t, 4, cfg.Extract.Concurrency)
	require.Equal(t, 2, cfg.Jobs.MaxRetries)
	require.Equal(t, 500, cfg.Jobs.RetryBaseMS)
	require.Equal(t, "memory", cfg.Jobs.Store)
	require.Equal(t, 3600, cfg.Session.TTLSecs)
	require.Equal(t, "memory", cfg.DB.Search.Backend)
	require.Equal(t, "memory", cfg.DB.Vector.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	withEnv(t, map[string]string{
		"PORT":              "9090",
		"LLM_PROVIDER":      "ANTHROPIC",
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"EXTRACT_URL":       "http://extract.local",
		"EXTRACT_RETRIES":   "5",
		"JOB_MAX_RETRIES":   "7",
		"REDIS_URL":         "redis://localhost:6379",
		"DATABASE_URL":      "postgres://localhost/ragkit",
	})
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "anthropic", cfg.LLMClient.Provider)
	require.Equal(t, "sk-ant-test", cfg.LLMClient.Anthropic.APIKey)
	require.Equal(t, "http://extract.local", cfg.Extract.URL)
	require.Equal(t, 5, cfg.Extract.Retries)
	require.Equal(t, 7, cfg.Jobs.MaxRetries)
	require.Equal(t, "redis+postgres", cfg.Jobs.Store)
}

func TestIntFromEnv_InvalidFallsBackToDefault(t *testing.T) {
	withEnv(t, map[string]string{"RAGKIT_TEST_INT": "not-a-number"})
	require.Equal(t, 42, intFromEnv("RAGKIT_TEST_INT", 42))
}

func TestBoolFromEnv(t *testing.T) {
	withEnv(t, map[string]string{"RAGKIT_TEST_BOOL": "true"})
	require.True(t, boolFromEnv("RAGKIT_TEST_BOOL", false))
	withEnv(t, map[string]string{"RAGKIT_TEST_BOOL": ""})
	require.False(t, boolFromEnv("RAGKIT_TEST_BOOL", false))
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "foo", firstNonEmpty("", "foo", "bar"))
	require.Equal(t, "", firstNonEmpty())
}
