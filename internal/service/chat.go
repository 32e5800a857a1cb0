package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/llm"
	"github.com/sakif/app-builder/internal/model"
)

const chatSystemPrompt = "You are a helpful assistant inside an AI app builder. " +
	"Answer questions about building, styling and deploying web applications concisely."

// MaxHistory bounds how many earlier turns are sent to the model.
const MaxHistory = 20

// ChatService streams free-form assistant replies.
type ChatService struct {
	streamer llm.Streamer
	logger   *slog.Logger
}

// NewChatService accepts a nil streamer; replies then echo the message.
func NewChatService(streamer llm.Streamer, logger *slog.Logger) *ChatService {
	return &ChatService{streamer: streamer, logger: logger}
}

// Stream calls emit once per reply fragment, in order. Without a model the
// reply is "Echo: <message>", one word per fragment.
func (s *ChatService) Stream(ctx context.Context, message string, history []model.ChatMessage, emit func(fragment string) error) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return apperror.ValidationFailed("message", "message is required")
	}

	if s.streamer == nil {
		for _, word := range strings.Fields("Echo: " + message) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(word); err != nil {
				return err
			}
		}
		return nil
	}

	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	messages := make([]model.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, model.ChatMessage{Role: model.RoleUser, Content: message})

	if err := s.streamer.StreamChat(ctx, chatSystemPrompt, messages, emit); err != nil {
		return fmt.Errorf("streaming chat: %w", err)
	}
	return nil
}
