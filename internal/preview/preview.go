// Package preview renders a project's React sources into a self-contained
// HTML document that runs in a sandboxed iframe, and implements the
// point-and-click styler that edits it.
//
// Rendering is a pure function of the file list: the same files always yield
// byte-identical HTML.
package preview

import (
	"errors"
	"regexp"
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

// ErrNoEntry is returned when no file path contains "App.js".
var ErrNoEntry = errors.New("No App.js file found")

const (
	reactURL    = "https://unpkg.com/react@18/umd/react.production.min.js"
	reactDOMURL = "https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"
	babelURL    = "https://unpkg.com/@babel/standalone/babel.min.js"
)

const baseStyle = `    * {
      box-sizing: border-box;
    }
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Roboto', 'Oxygen',
        'Ubuntu', 'Cantarell', 'Fira Sans', 'Droid Sans', 'Helvetica Neue',
        sans-serif;
      -webkit-font-smoothing: antialiased;
      -moz-osx-font-smoothing: grayscale;
    }
    #root {
      min-height: 100vh;
    }
`

const relayScript = `  <script>
    window.addEventListener('error', function (e) {
      var stack = e.error && e.error.stack ? e.error.stack : '';
      document.body.innerHTML =
        '<div style="padding: 20px; color: #e74c3c; font-family: monospace;">' +
        '<h3>Error in Preview:</h3><pre></pre><pre></pre></div>';
      var pres = document.body.querySelectorAll('pre');
      pres[0].textContent = e.message;
      pres[1].textContent = stack;
      window.parent.postMessage({ type: 'preview-error', message: e.message, stack: stack }, '*');
    });

    console.log = function () {
      window.parent.postMessage({ type: 'console.log', args: Array.prototype.slice.call(arguments).map(String) }, '*');
    };

    console.error = function () {
      window.parent.postMessage({ type: 'console.error', args: Array.prototype.slice.call(arguments).map(String) }, '*');
    };
  </script>
`

const mountScript = `
    const root = ReactDOM.createRoot(document.getElementById('root'));
    root.render(<App />);
`

// findFile returns the first file whose path contains needle.
func findFile(files []model.File, needle string) (model.File, bool) {
	for _, f := range files {
		if strings.Contains(f.Path, needle) {
			return f, true
		}
	}
	return model.File{}, false
}

// Build renders the live preview document.
//
// The entry is the first file whose path contains "App.js"; the first
// "index.css" and "App.css" files are inlined after the base style, in that
// order. Sources are embedded verbatim.
func Build(files []model.File) (string, error) {
	entry, ok := findFile(files, "App.js")
	if !ok {
		return "", ErrNoEntry
	}

	var css strings.Builder
	for _, name := range []string{"index.css", "App.css"} {
		if f, ok := findFile(files, name); ok {
			css.WriteString(f.Content)
			css.WriteByte('\n')
		}
	}

	var b strings.Builder
	writeHead(&b, "Live Preview", baseStyle+css.String())
	b.WriteString(relayScript)
	b.WriteString("</head>\n<body>\n  <div id=\"root\"></div>\n  <script type=\"text/babel\">\n")
	b.WriteString(entry.Content)
	b.WriteByte('\n')
	b.WriteString(mountScript)
	b.WriteString("  </script>\n</body>\n</html>\n")
	return b.String(), nil
}

func writeHead(b *strings.Builder, title, style string) {
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"UTF-8\">\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("  <title>" + title + "</title>\n")
	b.WriteString("  <script crossorigin src=\"" + reactURL + "\"></script>\n")
	b.WriteString("  <script crossorigin src=\"" + reactDOMURL + "\"></script>\n")
	b.WriteString("  <script src=\"" + babelURL + "\"></script>\n")
	b.WriteString("  <style>\n")
	b.WriteString(style)
	b.WriteString("  </style>\n")
}

var (
	importRe        = regexp.MustCompile(`import\s+[^;\n]*?from\s+['"][^'"]*['"];?\s*`)
	bareImportRe    = regexp.MustCompile(`(?m)^\s*import\s+['"][^'"]*['"];?\s*\n?`)
	exportDefaultRe = regexp.MustCompile(`export\s+default\s+`)
	exportRe        = regexp.MustCompile(`export\s+`)
)

// StripModules removes ES module syntax so the entry can run as a plain
// Babel script: "import ... from '...'" statements, side-effect imports
// such as "import './App.css'", and "export"/"export default" keywords.
func StripModules(src string) string {
	src = importRe.ReplaceAllString(src, "")
	src = bareImportRe.ReplaceAllString(src, "")
	src = exportDefaultRe.ReplaceAllString(src, "")
	return exportRe.ReplaceAllString(src, "")
}
