package ai

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GenerationOptions tunes sampling. Zero values leave provider defaults.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}

// GeneratorConfig selects and configures a TextGenerator backend.
type GeneratorConfig struct {
	Provider string // openai (default), gemini, ollama
	BaseURL  string
	APIKey   string
	Model    string
	Options  GenerationOptions
}

// NewTextGenerator builds the backend named by cfg.Provider.
func NewTextGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", "openai-compat", "openai_compat":
		baseURL := cfg.BaseURL
		if strings.TrimSpace(baseURL) == "" {
			baseURL = DefaultOpenAIBaseURL
		}
		return NewOpenAICompatGenerator(baseURL, cfg.APIKey, cfg.Model, cfg.Options), nil
	case "gemini":
		client, err := NewGeminiClient(cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewGeminiGenerator(client, cfg.Model), nil
	case "ollama":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unknown text generator provider %q", cfg.Provider)
	}
}
