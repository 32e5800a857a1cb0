package preview

import (
	"testing"

	"github.com/sakif/app-builder/internal/model"
)

func TestParseSelection(t *testing.T) {
	raw := []byte(`{"type":"element-selected","tagName":"BUTTON","className":"btn primary","id":"go",
		"styles":{"color":"rgb(1, 2, 3)","fontSize":"","padding":"4px"}}`)

	sel, err := ParseSelection(raw)
	if err != nil {
		t.Fatalf("ParseSelection() error = %v", err)
	}
	if sel.TagName != "BUTTON" || sel.ClassName != "btn primary" || sel.ID != "go" {
		t.Errorf("element = %+v", sel)
	}
	want := StyleSnapshot{
		Color:           "rgb(1, 2, 3)",
		BackgroundColor: "#ffffff",
		FontSize:        "16px",
		FontFamily:      "Arial",
		Padding:         "4px",
		Margin:          "0px",
		BorderRadius:    "0px",
	}
	if sel.Styles != want {
		t.Errorf("Styles = %+v, want %+v", sel.Styles, want)
	}
}

func TestParseSelection_Rejects(t *testing.T) {
	for _, raw := range []string{`not json`, `{"type":"console.log"}`} {
		if _, err := ParseSelection([]byte(raw)); err == nil {
			t.Errorf("ParseSelection(%s) expected error", raw)
		}
	}
}

func TestInline(t *testing.T) {
	got := DefaultStyles.Inline()
	want := "color: #000000; background-color: #ffffff; font-size: 16px; font-family: Arial; padding: 10px; margin: 0px; border-radius: 0px;"
	if got != want {
		t.Errorf("Inline() = %q, want %q", got, want)
	}
}

func TestSaveStyles(t *testing.T) {
	files := []model.File{
		{Path: "src/App.js", Content: "js"},
		{Path: "src/index.css", Content: "old index"},
		{Path: "src/App.css", Content: "old app"},
	}

	got, ok := SaveStyles(files, "new css")
	if !ok {
		t.Fatal("SaveStyles() = false, want true")
	}
	if got[1].Content != "new css" || got[2].Content != "old app" {
		t.Errorf("only the first stylesheet should change: %+v", got)
	}
	if files[1].Content != "old index" {
		t.Error("input slice was modified")
	}
}

func TestSaveStyles_NoStylesheet(t *testing.T) {
	files := []model.File{{Path: "src/App.js", Content: "js"}}
	got, ok := SaveStyles(files, "css")
	if ok {
		t.Fatal("SaveStyles() = true, want false")
	}
	if len(got) != 1 || got[0].Content != "js" {
		t.Errorf("files changed: %+v", got)
	}
}

func TestFirstStyleBlock(t *testing.T) {
	html, err := BuildEditable([]model.File{
		{Path: "src/App.js", Content: "function App(){return null}"},
		{Path: "src/App.css", Content: ".a{b:c}"},
	})
	if err != nil {
		t.Fatalf("BuildEditable() error = %v", err)
	}

	text, ok := FirstStyleBlock(html)
	if !ok {
		t.Fatal("FirstStyleBlock() found nothing")
	}
	if want := editableBaseStyle + ".a{b:c}\n"; text != "\n"+want+"  " {
		t.Errorf("FirstStyleBlock() = %q", text)
	}

	if _, ok := FirstStyleBlock("<p>no style</p>"); ok {
		t.Error("FirstStyleBlock() should report false without a style element")
	}
}
