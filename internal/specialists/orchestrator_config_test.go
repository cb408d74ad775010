package specialists

import (
	"testing"

	"agentengine/internal/config"
	"agentengine/internal/persistence"

	"github.com/stretchr/testify/require"
)

func TestApplyOrchestratorConfig_OpenAI(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		LLMClient: config.LLMClientConfig{Provider: "openai"},
		OpenAI:    config.OpenAIConfig{APIKey: "orig"},
	}
	sp := persistence.Specialist{
		BaseURL:      "https://example.com",
		APIKey:       "key",
		Model:        "model",
		EnableTools:  true,
		AllowTools:   []string{"a", "b"},
		System:       "system",
		ExtraHeaders: map[string]string{"x": "y"},
		ExtraParams:  map[string]any{"temp": 0.2},
	}

	provider := ApplyOrchestratorConfig(cfg, sp)

	require.Equal(t, "openai", provider)
	require.Equal(t, "key", cfg.LLMClient.OpenAI.APIKey)
	require.Equal(t, "model", cfg.LLMClient.OpenAI.Model)
	require.Equal(t, "https://example.com", cfg.LLMClient.OpenAI.BaseURL)
	require.Equal(t, "system", cfg.SystemPrompt)
	require.True(t, cfg.EnableTools)
	require.Equal(t, []string{"a", "b"}, cfg.ToolAllowList)
	require.Equal(t, cfg.LLMClient.OpenAI, cfg.OpenAI)
}

func TestApplyOrchestratorConfig_EmptySystemDoesNotClobber(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		LLMClient:    config.LLMClientConfig{Provider: "openai"},
		SystemPrompt: "keep me",
	}
	sp := persistence.Specialist{Model: "model"}

	ApplyOrchestratorConfig(cfg, sp)

	require.Equal(t, "keep me", cfg.SystemPrompt)
}

func TestApplyLLMClientOverride_OpenAI(t *testing.T) {
	t.Parallel()

	base := config.LLMClientConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{APIKey: "orig"},
	}
	sp := persistence.Specialist{
		BaseURL:      "https://example.com",
		APIKey:       "key",
		Model:        "model",
		ExtraHeaders: map[string]string{"x": "y"},
		ExtraParams:  map[string]any{"temp": 0.7},
	}

	got, provider := ApplyLLMClientOverride(base, sp)

	require.Equal(t, "openai", provider)
	require.Equal(t, "https://example.com", got.OpenAI.BaseURL)
	require.Equal(t, "key", got.OpenAI.APIKey)
	require.Equal(t, "model", got.OpenAI.Model)
	require.Equal(t, map[string]string{"x": "y"}, got.OpenAI.ExtraHeaders)
	require.Equal(t, map[string]any{"temp": 0.7}, got.OpenAI.ExtraParams)
}

func TestApplyOrchestratorConfig_Anthropic(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		LLMClient: config.LLMClientConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "orig"}},
		OpenAI:    config.OpenAIConfig{APIKey: "orig"},
	}
	sp := persistence.Specialist{
		Provider: "anthropic",
		BaseURL:  "https://anthropic.example",
		APIKey:   "anthro-key",
		Model:    "claude",
	}

	provider := ApplyOrchestratorConfig(cfg, sp)

	require.Equal(t, "anthropic", provider)
	require.Equal(t, "https://anthropic.example", cfg.LLMClient.Anthropic.BaseURL)
	require.Equal(t, "anthro-key", cfg.LLMClient.Anthropic.APIKey)
	require.Equal(t, "claude", cfg.LLMClient.Anthropic.Model)
	require.Equal(t, "orig", cfg.OpenAI.APIKey)
}

func TestApplyOrchestratorConfig_Google(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		LLMClient: config.LLMClientConfig{Provider: "openai"},
	}
	sp := persistence.Specialist{
		Provider: "google",
		BaseURL:  "https://gemini.example",
		APIKey:   "gkey",
		Model:    "gemini-x",
	}

	provider := ApplyOrchestratorConfig(cfg, sp)

	require.Equal(t, "google", provider)
	require.Equal(t, "https://gemini.example", cfg.LLMClient.Google.BaseURL)
	require.Equal(t, "gkey", cfg.LLMClient.Google.APIKey)
	require.Equal(t, "gemini-x", cfg.LLMClient.Google.Model)
	// cfg.OpenAI is only synced for the openai/local/empty providers.
	require.Equal(t, config.OpenAIConfig{}, cfg.OpenAI)
}

func TestMergeAnyMap(t *testing.T) {
	t.Parallel()

	require.Nil(t, mergeAnyMap(nil, nil))
	got := mergeAnyMap(map[string]any{"a": 1}, map[string]any{"a": 2, "b": 3})
	require.Equal(t, map[string]any{"a": 2, "b": 3}, got)
}
