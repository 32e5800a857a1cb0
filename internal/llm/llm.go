// Package llm talks to the language-model backends used for generation and
// chat. Every backend implements TextGenerator; backends that can stream
// token deltas also implement Streamer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sakif/app-builder/internal/config"
	"github.com/sakif/app-builder/internal/model"
)

// ErrEmptyResponse is returned when a backend answers without text.
var ErrEmptyResponse = errors.New("llm: empty response")

// TextGenerator generates text from a system prompt and a user prompt.
type TextGenerator interface {
	Name() string
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Streamer streams a chat reply as deltas, calling fn once per delta.
type Streamer interface {
	StreamChat(ctx context.Context, systemPrompt string, messages []model.ChatMessage, fn func(delta string) error) error
}

// New builds the backend named by cfg.Provider. Provider "none" yields
// (nil, nil): callers fall back to scaffolds and canned replies.
func New(cfg config.LLMConfig) (TextGenerator, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case "", config.LLMNone:
		return nil, nil
	case config.LLMOpenAI:
		g := NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
		g.httpClient = httpClient
		return g, nil
	case config.LLMOllama:
		g := NewOllama(cfg.BaseURL, cfg.Model)
		g.httpClient = httpClient
		return g, nil
	case config.LLMGemini:
		g, err := NewGemini(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		g.httpClient = httpClient
		return g, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
