package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sakif/app-builder/internal/client"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/sse"
)

const chatGreeting = "Hi! I'm your AI assistant. Ask me anything about building your app."

// cmdChat runs an interactive conversation until EOF or "/exit". Each reply
// is printed as it streams in; failures are reported on stderr and the
// loop continues.
func cmdChat(ctx context.Context, a *App, _ []string) error {
	conv := sse.NewConversation([]model.ChatMessage{{Role: model.RoleAssistant, Content: chatGreeting}})
	a.printf("%s\n(type /exit to leave)\n", chatGreeting)

	for {
		line, err := prompt(a.in, a.out, "you")
		if errors.Is(err, io.EOF) {
			a.printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		a.printf("assistant:")
		_, err = a.client.StreamChat(ctx, conv, line, func(fragment string) {
			a.printf(" %s", fragment)
		})
		a.printf("\n")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(a.errOut, "! %v\n", err)
			if last := lastMessage(conv); last.Content == client.ErrorReply {
				a.printf("assistant: %s\n", last.Content)
			}
		}
	}
}

func lastMessage(conv *sse.Conversation) model.ChatMessage {
	msgs := conv.Messages()
	if len(msgs) == 0 {
		return model.ChatMessage{}
	}
	return msgs[len(msgs)-1]
}
