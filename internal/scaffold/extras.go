package scaffold

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

// Integration names reported in a project's required services.
const (
	ServiceOpenAI          = "openai"
	ServiceStableDiffusion = "stable_diffusion"
	ServiceStripe          = "stripe"
	ServiceAuth            = "auth"
	ServiceDatabase        = "database"
)

var serviceRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{ServiceOpenAI, regexp.MustCompile(`(?i)\b(ai|gpt|chatbot|openai|generate text)\b`)},
	{ServiceStableDiffusion, regexp.MustCompile(`(?i)\b(image|images|picture|dall-e|midjourney|stable diffusion)\b`)},
	{ServiceStripe, regexp.MustCompile(`(?i)\b(payment|payments|checkout|buy|purchase|ecommerce|shop|stripe)\b`)},
	{ServiceAuth, regexp.MustCompile(`(?i)\b(login|signup|sign up|user|users|account|auth|register)\b`)},
}

// DetectServices lists the integrations a prompt implies, in a fixed order.
// Image generation is covered by openai when both match. A database is
// always required.
func DetectServices(prompt string) []string {
	var out []string
	for _, r := range serviceRules {
		if !r.re.MatchString(prompt) {
			continue
		}
		if r.name == ServiceStableDiffusion && len(out) > 0 && out[0] == ServiceOpenAI {
			continue
		}
		out = append(out, r.name)
	}
	return append(out, ServiceDatabase)
}

// DevReply is the canned assistant reply used in dev mode.
func DevReply(message string) string {
	return "Dev reply: " + strings.TrimSpace(message)
}

const dockerCompose = `version: '3.8'
services:
  backend:
    build: ./backend
    ports:
      - "8000:8000"
    environment:
      - MONGO_URL=${MONGO_URL}
      - OPENAI_API_KEY=${OPENAI_API_KEY}
    depends_on:
      - mongodb

  frontend:
    build: ./frontend
    ports:
      - "3000:3000"
    depends_on:
      - backend

  mongodb:
    image: mongo:latest
    ports:
      - "27017:27017"
    volumes:
      - mongodb_data:/data/db

volumes:
  mongodb_data:
`

// DockerCompose returns the compose file added to generated projects.
func DockerCompose() model.File {
	return model.File{Path: "docker-compose.yml", Content: dockerCompose, Language: "yml"}
}

// Readme returns a README describing the project and how to run it.
func Readme(name, description string, stack model.TechStack) model.File {
	if name == "" {
		name = "Generated App"
	}
	if description == "" {
		description = "AI-generated application"
	}
	content := fmt.Sprintf(`# %s

%s

## Tech Stack

- **Frontend**: %s
- **Backend**: %s
- **Database**: %s

## Quick Start

`+"```bash"+`
cp .env.example .env
docker-compose up
`+"```"+`

Generated by App Builder
`, name, description, stack.Frontend, stack.Backend, stack.Database)
	return model.File{Path: "README.md", Content: content, Language: "md"}
}
