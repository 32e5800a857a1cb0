package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/app-builder/internal/config"
	"github.com/sakif/app-builder/internal/model"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LLMConfig
		wantNil  bool
		wantErr  bool
		wantName string
	}{
		{name: "none", cfg: config.LLMConfig{Provider: config.LLMNone}, wantNil: true},
		{name: "empty", cfg: config.LLMConfig{}, wantNil: true},
		{name: "openai default model", cfg: config.LLMConfig{Provider: config.LLMOpenAI, APIKey: "k"}, wantName: "openai:gpt-4o"},
		{name: "ollama", cfg: config.LLMConfig{Provider: config.LLMOllama, Model: "qwen"}, wantName: "ollama:qwen"},
		{name: "gemini", cfg: config.LLMConfig{Provider: config.LLMGemini, APIKey: "k", Model: "models/gemini-pro"}, wantName: "gemini:gemini-pro"},
		{name: "gemini no key", cfg: config.LLMConfig{Provider: config.LLMGemini}, wantErr: true},
		{name: "unknown", cfg: config.LLMConfig{Provider: "hal"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, g)
				return
			}
			assert.Equal(t, tt.wantName, g.Name())
		})
	}
}

func TestOpenAI_GenerateText(t *testing.T) {
	var got oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  {\"ok\":true}  "}}]}`)
	}))
	defer srv.Close()

	g := NewOpenAI(srv.URL+"/v1/", "sk-test", "m1")
	text, err := g.GenerateText(context.Background(), "sys", "user says")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user says", got.Messages[1].Content)
	assert.False(t, got.Stream)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error message", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "bad key"},
		{"bare status", http.StatusBadGateway, `oops`, "502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "empty response"},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, "empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOpenAI(srv.URL, "", "m").GenerateText(context.Background(), "", "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestOpenAI_StreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Len(t, req.Messages, 3)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo", ""} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var deltas []string
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hey"},
	}
	err := NewOpenAI(srv.URL, "", "m").StreamChat(context.Background(), "sys", history, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !req.Stream {
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"plan"},"done":true}`)
			return
		}
		fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"message":{"content":"b"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
		fmt.Fprintln(w, `{"message":{"content":"ignored"},"done":false}`)
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "")
	assert.Equal(t, "ollama:llama3", g.Name())

	text, err := g.GenerateText(context.Background(), "sys", "q")
	require.NoError(t, err)
	assert.Equal(t, "plan", text)

	var got strings.Builder
	err = g.StreamChat(context.Background(), "", []model.ChatMessage{{Role: model.RoleUser, Content: "q"}}, func(d string) error {
		got.WriteString(d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", got.String())
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"one "},{"text":"two"}]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGemini("k", "gemini-pro")
	require.NoError(t, err)
	g.baseURL = srv.URL

	text, err := g.GenerateText(context.Background(), "sys", "q")
	require.NoError(t, err)
	assert.Equal(t, "one two", text)
}

func TestGemini_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	g, _ := NewGemini("k", "")
	g.baseURL = srv.URL
	_, err := g.GenerateText(context.Background(), "", "q")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
