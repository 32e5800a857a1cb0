// Package codegen turns a natural-language prompt into a project file set
// using an LLM, and falls back to a scaffold app whenever the model is
// unavailable or its reply cannot be used.
package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/app-builder/internal/llm"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/scaffold"
)

// ErrNoJSON is returned by ParseReply when the reply has no {...} span.
var ErrNoJSON = errors.New("codegen: no JSON object in reply")

// Result is a generated application.
type Result struct {
	AppName          string       `json:"app_name"`
	Description      string       `json:"description"`
	RequiredServices []string     `json:"required_services"`
	Files            []model.File `json:"files"`
	// Fallback is true when the scaffold was used instead of the model reply.
	Fallback bool `json:"-"`
}

// Generator produces projects from prompts. A nil LLM always falls back.
type Generator struct {
	llm    llm.TextGenerator
	logger *slog.Logger
}

func NewGenerator(gen llm.TextGenerator, logger *slog.Logger) *Generator {
	return &Generator{llm: gen, logger: logger}
}

// Available reports whether an LLM backend is configured.
func (g *Generator) Available() bool {
	return g.llm != nil
}

// Generate never fails on model problems; it only returns an error when ctx
// is done.
func (g *Generator) Generate(ctx context.Context, prompt string, stack model.TechStack) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	services := scaffold.DetectServices(prompt)

	if g.llm == nil {
		return g.fallback(prompt, stack, services), nil
	}

	reply, err := g.llm.GenerateText(ctx, SystemPrompt(stack, services), UserPrompt(prompt))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.logger.Warn("generation failed, using scaffold",
			slog.String("model", g.llm.Name()),
			slog.String("error", err.Error()),
		)
		return g.fallback(prompt, stack, services), nil
	}

	res, err := ParseReply(reply)
	if err != nil {
		g.logger.Warn("unusable generation reply, using scaffold",
			slog.Int("reply_bytes", len(reply)),
			slog.String("error", err.Error()),
		)
		return g.fallback(prompt, stack, services), nil
	}

	if res.AppName == "" {
		res.AppName = scaffold.Name(prompt)
	}
	if res.Description == "" {
		res.Description = prompt
	}
	res.RequiredServices = mergeServices(res.RequiredServices, services)
	res.Files = Complete(res.Files, res.AppName, res.Description, stack)
	return res, nil
}

func (g *Generator) fallback(prompt string, stack model.TechStack, services []string) *Result {
	name := scaffold.Name(prompt)
	return &Result{
		AppName:          name,
		Description:      prompt,
		RequiredServices: services,
		Files:            Complete(scaffold.Files(prompt), name, prompt, stack),
		Fallback:         true,
	}
}

var jsonSpanRe = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the span from the first '{' to the last '}'.
func ExtractJSON(reply string) (string, bool) {
	span := jsonSpanRe.FindString(reply)
	return span, span != ""
}

// ParseReply decodes a generation reply. Files with an empty path are
// dropped; a reply without any usable file is an error.
func ParseReply(reply string) (*Result, error) {
	span, ok := ExtractJSON(reply)
	if !ok {
		return nil, ErrNoJSON
	}
	var res Result
	if err := json.Unmarshal([]byte(span), &res); err != nil {
		return nil, fmt.Errorf("codegen: decoding reply: %w", err)
	}
	files := res.Files[:0]
	for _, f := range res.Files {
		f.Path = strings.TrimSpace(f.Path)
		if f.Path != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, errors.New("codegen: reply contains no files")
	}
	res.Files = files
	return &res, nil
}

// Complete normalizes a file set: later duplicates of a path replace
// earlier ones in place, languages are derived from paths, and
// docker-compose.yml and README.md are added when missing.
func Complete(files []model.File, name, description string, stack model.TechStack) []model.File {
	p := &model.Project{}
	for _, f := range files {
		f.Language = strings.TrimSpace(f.Language)
		p.UpsertFile(f)
	}
	if !hasSuffix(p.Files, "docker-compose.yml") {
		p.UpsertFile(scaffold.DockerCompose())
	}
	if !hasSuffix(p.Files, "README.md") {
		p.UpsertFile(scaffold.Readme(name, description, stack))
	}
	return p.Files
}

func hasSuffix(files []model.File, suffix string) bool {
	for _, f := range files {
		if strings.HasSuffix(f.Path, suffix) {
			return true
		}
	}
	return false
}

func mergeServices(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
