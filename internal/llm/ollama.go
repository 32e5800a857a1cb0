package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/model"
)

const (
	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	defaultOllamaModel   = "llama3"
)

// Ollama calls a local Ollama server's /api/chat endpoint.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var (
	_ TextGenerator = (*Ollama)(nil)
	_ Streamer      = (*Ollama)(nil)
)

func NewOllama(baseURL, model string) *Ollama {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{baseURL: baseURL, model: model, httpClient: &http.Client{Timeout: 120 * time.Second}}
}

func (g *Ollama) Name() string { return "ollama:" + g.model }

func (g *Ollama) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.post(ctx, ollamaChatRequest{
		Model:    g.model,
		Messages: ollamaMessages(systemPrompt, []model.ChatMessage{{Role: model.RoleUser, Content: userPrompt}}),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: decoding response: %w", err)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Message.Content, nil
}

// StreamChat reads Ollama's newline-delimited JSON stream.
func (g *Ollama) StreamChat(ctx context.Context, systemPrompt string, messages []model.ChatMessage, fn func(string) error) error {
	resp, err := g.post(ctx, ollamaChatRequest{
		Model:    g.model,
		Messages: ollamaMessages(systemPrompt, messages),
		Stream:   true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("ollama: decoding stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	return sc.Err()
}

func (g *Ollama) post(ctx context.Context, payload ollamaChatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return nil, fmt.Errorf("ollama: api error: %s", e.Error)
		}
		return nil, fmt.Errorf("ollama: api error: %s", resp.Status)
	}
	return resp, nil
}

func ollamaMessages(systemPrompt string, history []model.ChatMessage) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		out = append(out, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}
