package providers

import (
	"fmt"
	"net/http"

	"ragkit/internal/config"
	"ragkit/internal/llm"
	"ragkit/internal/llm/anthropic"
	openaillm "ragkit/internal/llm/openai"
)

// Build constructs an llm.Provider based on the configured chat provider name.
// - openai: uses the OpenAI-compatible client (also covers self-hosted
//   OpenAI-API-shaped servers via cfg.LLMClient.OpenAI.BaseURL)
// - anthropic: uses the Anthropic Messages client
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLMClient.Provider {
	case "", "openai":
		return openaillm.New(cfg.LLMClient.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.LLMClient.Anthropic, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMClient.Provider)
	}
}
