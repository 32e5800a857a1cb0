package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/sse"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o"
)

// OpenAI calls any OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var (
	_ TextGenerator = (*OpenAI)(nil)
	_ Streamer      = (*OpenAI)(nil)
)

// NewOpenAI builds an OpenAI-compatible generator. baseURL includes the /v1
// prefix; apiKey may be empty for local servers.
func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *OpenAI) Name() string { return "openai:" + g.model }

func (g *OpenAI) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := oaiChatRequest{
		Model:       g.model,
		Messages:    oaiMessages(systemPrompt, []model.ChatMessage{{Role: model.RoleUser, Content: userPrompt}}),
		Temperature: 0.7,
	}
	resp, err := g.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("openai: decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StreamChat requests a streamed completion and forwards each content delta.
func (g *OpenAI) StreamChat(ctx context.Context, systemPrompt string, messages []model.ChatMessage, fn func(string) error) error {
	req := oaiChatRequest{
		Model:       g.model,
		Messages:    oaiMessages(systemPrompt, messages),
		Temperature: 0.7,
		Stream:      true,
	}
	resp, err := g.post(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return sse.Consume(ctx, resp.Body, func(payload string) error {
		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("openai: decoding stream chunk: %w", err)
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				if err := fn(c.Delta.Content); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (g *OpenAI) post(ctx context.Context, payload oaiChatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("openai: api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("openai: api error: %s", resp.Status)
	}
	return resp, nil
}

func oaiMessages(systemPrompt string, history []model.ChatMessage) []oaiMessage {
	out := make([]oaiMessage, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, oaiMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		out = append(out, oaiMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
