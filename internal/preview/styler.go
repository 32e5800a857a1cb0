package preview

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

// MessageElementSelected is the postMessage type sent by the picker script.
const MessageElementSelected = "element-selected"

// StyleSnapshot is the subset of computed style the styler edits.
type StyleSnapshot struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	FontSize        string `json:"fontSize"`
	FontFamily      string `json:"fontFamily"`
	Padding         string `json:"padding"`
	Margin          string `json:"margin"`
	BorderRadius    string `json:"borderRadius"`
}

// DefaultStyles are shown for properties the picker did not report.
var DefaultStyles = StyleSnapshot{
	Color:           "#000000",
	BackgroundColor: "#ffffff",
	FontSize:        "16px",
	FontFamily:      "Arial",
	Padding:         "10px",
	Margin:          "0px",
	BorderRadius:    "0px",
}

// WithDefaults fills empty properties from DefaultStyles.
func (s StyleSnapshot) WithDefaults() StyleSnapshot {
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	d := DefaultStyles
	return StyleSnapshot{
		Color:           pick(s.Color, d.Color),
		BackgroundColor: pick(s.BackgroundColor, d.BackgroundColor),
		FontSize:        pick(s.FontSize, d.FontSize),
		FontFamily:      pick(s.FontFamily, d.FontFamily),
		Padding:         pick(s.Padding, d.Padding),
		Margin:          pick(s.Margin, d.Margin),
		BorderRadius:    pick(s.BorderRadius, d.BorderRadius),
	}
}

// Inline renders the style attribute written by "apply".
func (s StyleSnapshot) Inline() string {
	return fmt.Sprintf(
		"color: %s; background-color: %s; font-size: %s; font-family: %s; padding: %s; margin: %s; border-radius: %s;",
		s.Color, s.BackgroundColor, s.FontSize, s.FontFamily, s.Padding, s.Margin, s.BorderRadius,
	)
}

// Selection is a decoded "element-selected" message.
type Selection struct {
	Type      string        `json:"type"`
	TagName   string        `json:"tagName"`
	ClassName string        `json:"className"`
	ID        string        `json:"id"`
	Styles    StyleSnapshot `json:"styles"`
}

// ParseSelection decodes a picker message and applies the style defaults.
func ParseSelection(raw []byte) (*Selection, error) {
	var s Selection
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("preview: decoding selection: %w", err)
	}
	if s.Type != MessageElementSelected {
		return nil, fmt.Errorf("preview: unexpected message type %q", s.Type)
	}
	s.Styles = s.Styles.WithDefaults()
	return &s, nil
}

// SaveStyles overwrites the first file whose path contains ".css" with
// styleText. It returns a new slice; the input is not modified. When no
// stylesheet exists the files are returned unchanged with false.
func SaveStyles(files []model.File, styleText string) ([]model.File, bool) {
	out := make([]model.File, len(files))
	copy(out, files)
	for i := range out {
		if strings.Contains(out[i].Path, ".css") {
			out[i].Content = styleText
			return out, true
		}
	}
	return out, false
}

var styleBlockRe = regexp.MustCompile(`(?is)<style[^>]*>(.*?)</style>`)

// FirstStyleBlock returns the text of the first <style> element, which is
// what "save" reads back from the edited document.
func FirstStyleBlock(html string) (string, bool) {
	m := styleBlockRe.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}
