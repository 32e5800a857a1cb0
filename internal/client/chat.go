package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/scaffold"
	"github.com/sakif/app-builder/internal/sse"
)

// ErrorReply is appended to the conversation when a chat request fails
// outside dev mode.
const ErrorReply = "Sorry, I encountered an error. Please try again."

// DevStreamDelay paces the words of a canned dev reply.
const DevStreamDelay = 40 * time.Millisecond

// StreamChat sends message with the conversation so far as history,
// appends the user message to conv and streams the reply into one assistant
// message. onFragment, if not nil, sees every fragment as it arrives.
//
// If the request fails in dev mode the canned dev reply is streamed instead
// and no error is returned. Outside dev mode ErrorReply is appended and the
// error is returned.
func (c *Client) StreamChat(ctx context.Context, conv *sse.Conversation, message string, onFragment func(string)) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message is required")
	}

	history := conv.Messages()
	conv.Append(model.ChatMessage{Role: model.RoleUser, Content: message})

	acc := sse.NewAccumulator(conv)
	add := func(fragment string) error {
		if err := acc.Add(fragment); err != nil {
			return err
		}
		if onFragment != nil {
			onFragment(fragment)
		}
		return nil
	}

	err := c.streamMessage(ctx, message, history, add)
	if err == nil {
		return acc.Text(), nil
	}
	if acc.Started() {
		// part of the reply arrived; keep it and report the cut
		return acc.Text(), fmt.Errorf("chat stream interrupted: %w", err)
	}

	if c.canFallBack(err) {
		c.logger.Info("chat unavailable, streaming dev reply", slog.String("error", err.Error()))
		if err := c.streamWords(ctx, scaffold.DevReply(message), add); err != nil {
			return acc.Text(), err
		}
		return acc.Text(), nil
	}

	conv.Append(model.ChatMessage{Role: model.RoleAssistant, Content: ErrorReply})
	return ErrorReply, err
}

func (c *Client) streamMessage(ctx context.Context, message string, history []model.ChatMessage, fn func(string) error) error {
	body := chatTurn{Message: message, History: history}
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/message", body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return sse.Consume(ctx, resp.Body, fn)
}

// streamWords feeds text to fn one word at a time.
func (c *Client) streamWords(ctx context.Context, text string, fn func(string) error) error {
	for i, word := range strings.Fields(text) {
		if i > 0 && c.devDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.devDelay):
			}
		}
		if err := fn(word); err != nil {
			return err
		}
	}
	return nil
}
