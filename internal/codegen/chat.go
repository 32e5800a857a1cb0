package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

// BuildReply is the outcome of a chat build turn.
type BuildReply struct {
	Response    string             `json:"response"`
	FileUpdates []model.FileUpdate `json:"file_updates"`
}

// Plan returns the deterministic planning reply for a request.
func Plan(p *model.Project, message string) string {
	return fmt.Sprintf("I see your project '%s'. Your goal: %s\n", p.Name, strings.TrimSpace(message)) +
		"- Suggestion 1: Outline key pages (Home, About, Contact, FAQ, Products).\n" +
		"- Suggestion 2: Define data models and API endpoints required.\n" +
		"- Suggestion 3: Plan UI components and navigation.\n" +
		"Reply with specifics and I can break it into tasks."
}

func noChangeReply(p *model.Project, message string) *BuildReply {
	return &BuildReply{
		Response: fmt.Sprintf("Applying build reasoning for '%s'. Requested change: %s\n", p.Name, strings.TrimSpace(message)) +
			"I can generate specific file updates next. For now, no changes were applied.",
		FileUpdates: []model.FileUpdate{},
	}
}

// Build asks the model for file updates implementing message. Without a
// model, or when the reply is unusable, the reply explains that nothing
// changed and FileUpdates is empty.
func (g *Generator) Build(ctx context.Context, p *model.Project, message string, history []model.ChatMessage) (*BuildReply, error) {
	if g.llm == nil {
		return noChangeReply(p, message), nil
	}

	user := message
	if len(history) > 0 {
		var b strings.Builder
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("user: ")
		b.WriteString(message)
		user = b.String()
	}

	reply, err := g.llm.GenerateText(ctx, BuildSystemPrompt(p), user)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.logger.Warn("chat build failed", slog.String("project_id", p.ID), slog.String("error", err.Error()))
		return noChangeReply(p, message), nil
	}

	out, err := parseBuildReply(reply)
	if err != nil {
		g.logger.Warn("unusable chat build reply", slog.String("project_id", p.ID), slog.String("error", err.Error()))
		return &BuildReply{Response: strings.TrimSpace(reply), FileUpdates: []model.FileUpdate{}}, nil
	}
	return out, nil
}

func parseBuildReply(reply string) (*BuildReply, error) {
	span, ok := ExtractJSON(reply)
	if !ok {
		return nil, ErrNoJSON
	}
	var raw struct {
		Reply       string             `json:"reply"`
		Response    string             `json:"response"`
		FileUpdates []model.FileUpdate `json:"file_updates"`
	}
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("codegen: decoding build reply: %w", err)
	}
	out := &BuildReply{Response: raw.Reply, FileUpdates: []model.FileUpdate{}}
	if out.Response == "" {
		out.Response = raw.Response
	}
	for _, u := range raw.FileUpdates {
		u.Path = strings.TrimSpace(u.Path)
		if u.Path != "" {
			out.FileUpdates = append(out.FileUpdates, u)
		}
	}
	return out, nil
}
