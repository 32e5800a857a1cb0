package codegen

import (
	"fmt"
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

// SystemPrompt instructs the model to answer with the project JSON.
func SystemPrompt(stack model.TechStack, services []string) string {
	integrations := "None - basic app"
	if len(services) > 0 {
		integrations = strings.Join(services, ", ")
	}
	return fmt.Sprintf(`You are an expert full-stack developer generating complete, runnable applications.

Tech stack:
- Frontend: %s
- Backend: %s
- Database: %s

Required integrations: %s

Rules:
1. Generate complete working code. No placeholders.
2. The React entry point must be src/App.js and export a component named App.
3. Include package.json, .env.example and docker-compose.yml.
4. Return ONLY a JSON object, no markdown and no prose:

{
  "app_name": "Short name",
  "description": "What the app does",
  "required_services": ["database"],
  "files": [
    {"path": "src/App.js", "content": "...", "language": "js"}
  ]
}`, stack.Frontend, stack.Backend, stack.Database, integrations)
}

// UserPrompt wraps the user's request.
func UserPrompt(prompt string) string {
	return "Build this application: " + prompt + "\n\nReturn the JSON object now."
}

// BuildSystemPrompt asks for a chat build reply with file updates.
func BuildSystemPrompt(p *model.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are editing the project %q. Current files:\n\n", p.Name)
	for _, f := range p.Files {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", f.Path, f.Content)
	}
	b.WriteString(`Apply the user's requested change. Return ONLY a JSON object:
{"reply": "short summary of what changed", "file_updates": [{"path": "src/App.js", "content": "full new file content"}]}
Each update replaces the whole file. Omit files that do not change.`)
	return b.String()
}
