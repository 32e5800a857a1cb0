package preview

import (
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

const editableBaseStyle = `    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; }
    #root { min-height: 100vh; }
`

const editorStyle = `  <style>
    .editor-selected {
      outline: 3px solid #ff4500 !important;
      outline-offset: 2px;
      cursor: pointer !important;
    }
    * {
      cursor: pointer !important;
    }
  </style>
`

// pickerScript reports the clicked element and its computed style to the
// parent window as an "element-selected" message, and lets the parent push
// inline styles back with an "apply-styles" message.
const pickerScript = `  <script>
    document.addEventListener('click', function (e) {
      e.preventDefault();
      e.stopPropagation();
      document.querySelectorAll('.editor-selected').forEach(function (el) {
        el.classList.remove('editor-selected');
      });
      e.target.classList.add('editor-selected');
      var cs = window.getComputedStyle(e.target);
      window.parent.postMessage({
        type: 'element-selected',
        tagName: e.target.tagName,
        className: e.target.className,
        id: e.target.id,
        styles: {
          color: cs.color,
          backgroundColor: cs.backgroundColor,
          fontSize: cs.fontSize,
          fontFamily: cs.fontFamily,
          padding: cs.padding,
          margin: cs.margin,
          borderRadius: cs.borderRadius
        }
      }, '*');
    }, true);

    window.addEventListener('message', function (e) {
      if (!e.data || e.data.type !== 'apply-styles') return;
      var el = document.querySelector('.editor-selected');
      if (el) el.setAttribute('style', e.data.style);
    });
  </script>
`

// BuildEditable renders the visual-editor variant of the preview: every
// ".css" file is inlined, module syntax is stripped from the entry, React
// hooks are taken from the global, and the element picker is injected.
func BuildEditable(files []model.File) (string, error) {
	entry, ok := findFile(files, "App.js")
	if !ok {
		return "", ErrNoEntry
	}

	var sheets []string
	for _, f := range files {
		if strings.HasSuffix(f.Path, ".css") {
			sheets = append(sheets, f.Content)
		}
	}
	css := strings.Join(sheets, "\n")
	if css != "" {
		css += "\n"
	}

	var b strings.Builder
	writeHead(&b, "Visual Editor", editableBaseStyle+css)
	b.WriteString(editorStyle)
	b.WriteString("</head>\n<body>\n  <div id=\"root\"></div>\n  <script type=\"text/babel\">\n")
	b.WriteString("    const { useState, useEffect, useRef } = React;\n")
	b.WriteString(StripModules(entry.Content))
	b.WriteByte('\n')
	b.WriteString(mountScript)
	b.WriteString("  </script>\n")
	b.WriteString(pickerScript)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
