package preview

import (
	"errors"
	"strings"
	"testing"

	"github.com/sakif/app-builder/internal/model"
)

func sampleFiles() []model.File {
	return []model.File{
		{Path: "src/index.css", Content: "body{background:#0b0f16}"},
		{Path: "src/App.js", Content: "import React, { useState } from 'react';\nimport './App.css';\n\nexport default function App() { return <h1>Hi</h1>; }"},
		{Path: "src/App.css", Content: ".app{color:red}"},
		{Path: "README.md", Content: "# readme"},
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(sampleFiles())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, err := Build(sampleFiles())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if a != b {
		t.Fatal("Build() is not deterministic")
	}
}

func TestBuild_Document(t *testing.T) {
	html, err := Build(sampleFiles())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	mustContain := []string{
		"<title>Live Preview</title>",
		reactURL,
		reactDOMURL,
		babelURL,
		"min-height: 100vh;",
		"<script type=\"text/babel\">",
		"export default function App()",
		"root.render(<App />);",
		"Error in Preview:",
		"'preview-error'",
		"'console.log'",
		"'console.error'",
	}
	for _, s := range mustContain {
		if !strings.Contains(html, s) {
			t.Errorf("Build() output missing %q", s)
		}
	}

	idx := strings.Index(html, "body{background:#0b0f16}")
	app := strings.Index(html, ".app{color:red}")
	if idx < 0 || app < 0 || idx > app {
		t.Errorf("index.css must be inlined before App.css (index=%d app=%d)", idx, app)
	}
	if strings.Contains(html, "# readme") {
		t.Error("non-stylesheet files must not be inlined")
	}
}

func TestBuild_FirstMatchWins(t *testing.T) {
	files := []model.File{
		{Path: "src/App.js", Content: "function App(){return 'first'}"},
		{Path: "legacy/App.js", Content: "function App(){return 'second'}"},
	}
	html, err := Build(files)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(html, "'first'") || strings.Contains(html, "'second'") {
		t.Error("Build() should use the first App.js")
	}
}

func TestBuild_NoEntry(t *testing.T) {
	tests := []struct {
		name  string
		files []model.File
	}{
		{"nil", nil},
		{"empty", []model.File{}},
		{"css only", []model.File{{Path: "src/App.css", Content: "x"}}},
		{"case sensitive", []model.File{{Path: "src/app.js", Content: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := Build(tt.files)
			if !errors.Is(err, ErrNoEntry) {
				t.Fatalf("Build() error = %v, want ErrNoEntry", err)
			}
			if html != "" {
				t.Error("Build() should return no document on error")
			}
			if _, err := BuildEditable(tt.files); !errors.Is(err, ErrNoEntry) {
				t.Errorf("BuildEditable() error = %v, want ErrNoEntry", err)
			}
		})
	}
	if ErrNoEntry.Error() != "No App.js file found" {
		t.Errorf("ErrNoEntry = %q", ErrNoEntry.Error())
	}
}

func TestBuildEditable(t *testing.T) {
	files := append(sampleFiles(), model.File{Path: "src/theme.css", Content: ".theme{}"})
	html, err := BuildEditable(files)
	if err != nil {
		t.Fatalf("BuildEditable() error = %v", err)
	}

	for _, s := range []string{
		"const { useState, useEffect, useRef } = React;",
		"function App() { return <h1>Hi</h1>; }",
		"'element-selected'",
		"outline: 3px solid #ff4500 !important;",
		"body{background:#0b0f16}\n.app{color:red}\n.theme{}",
	} {
		if !strings.Contains(html, s) {
			t.Errorf("BuildEditable() output missing %q", s)
		}
	}
	for _, s := range []string{"import React", "import './App.css'", "export default"} {
		if strings.Contains(html, s) {
			t.Errorf("BuildEditable() output still contains %q", s)
		}
	}
}

func TestStripModules(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"named import", "import React, { useState } from 'react';\nconst a = 1;", "const a = 1;"},
		{"double quotes", "import x from \"y\"\nfoo()", "foo()"},
		{"side effect import", "import './App.css';\nfoo()", "foo()"},
		{"export default", "export default function App() {}", "function App() {}"},
		{"named export", "export const x = 1;", "const x = 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripModules(tt.in); got != tt.want {
				t.Errorf("StripModules() = %q, want %q", got, tt.want)
			}
		})
	}
}
