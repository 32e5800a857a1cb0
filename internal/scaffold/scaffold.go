// Package scaffold produces the deterministic starter apps used when no LLM
// is available: offline creation in the CLI, and the server's fallback when
// a generation reply cannot be used.
package scaffold

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/app-builder/internal/model"
)

// DefaultName is used when the prompt is blank.
const DefaultName = "Demo App"

// DevUserID owns projects created offline.
const DevUserID = "dev_user"

// IndexCSS is the stylesheet added to every scaffolded project.
const IndexCSS = "body{font-family:sans-serif;margin:0;background:#0b0f16}"

const maxNameRunes = 40

var calculatorRe = regexp.MustCompile(`(?i)\b(calc|calculator|arithmetic|add|subtract|multiply|divide)\b`)

// IsCalculator reports whether prompt asks for a calculator.
func IsCalculator(prompt string) bool {
	return calculatorRe.MatchString(strings.TrimSpace(prompt))
}

// Name is the first 40 characters of the trimmed prompt, or DefaultName.
func Name(prompt string) string {
	p := strings.TrimSpace(prompt)
	if p == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(p) <= maxNameRunes {
		return p
	}
	return string([]rune(p)[:maxNameRunes])
}

// NewID returns an offline project id: "dev_" followed by the base-36
// unix millisecond timestamp.
func NewID(now time.Time) string {
	return "dev_" + strconv.FormatInt(now.UnixMilli(), 36)
}

// Files returns the scaffold file set for prompt: src/App.js and src/index.css.
func Files(prompt string) []model.File {
	app := demoApp(prompt)
	if IsCalculator(prompt) {
		app = calculatorApp
	}
	return []model.File{
		{Path: "src/App.js", Content: app, Language: "js"},
		{Path: "src/index.css", Content: IndexCSS, Language: "css"},
	}
}

// Project builds a complete offline project.
func Project(id, prompt string, now time.Time) model.Project {
	p := strings.TrimSpace(prompt)
	now = now.UTC()
	return model.Project{
		ID:          id,
		UserID:      DevUserID,
		Name:        Name(p),
		Description: p,
		Prompt:      p,
		TechStack:   model.DefaultTechStack,
		Files:       Files(p),
		Status:      model.ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

const header = `    <div style={{minHeight:'100vh', background:'#0b0f16', color:'#d7e7ff', fontFamily:'system-ui', padding:24}}>
      <header style={{display:'flex', alignItems:'center', gap:12, marginBottom:16}}>
        <div style={{width:12, height:12, borderRadius:999, background:'#20d6ff'}}></div>
        <h1 style={{margin:0, background:'linear-gradient(90deg,#20d6ff,#46ff9b)', WebkitBackgroundClip:'text', color:'transparent'}}>`

const fieldStyle = `style={{padding:10, borderRadius:8, border:'1px solid #334155', background:'#0f172a', color:'#d7e7ff'}}`

var calculatorApp = `export default function App(){
  const [a, setA] = React.useState('');
  const [b, setB] = React.useState('');
  const [op, setOp] = React.useState('+');

  const calc = (x, y, o) => {
    const A = parseFloat(x), B = parseFloat(y);
    if (Number.isNaN(A) || Number.isNaN(B)) return '';
    switch (o) {
      case '+': return A + B;
      case '-': return A - B;
      case '*': return A * B;
      case '/': return B !== 0 ? A / B : '∞';
      default: return '';
    }
  };

  const result = calc(a, b, op);

  return (
` + header + `Digital Ninja Calculator</h1>
      </header>
      <div style={{display:'grid', gap:12, maxWidth:480, background:'rgba(255,255,255,0.06)', border:'1px solid rgba(255,255,255,0.12)', borderRadius:12, padding:16}}>
        <input placeholder="First number" value={a} onChange={e=>setA(e.target.value)} ` + fieldStyle + ` />
        <select value={op} onChange={e=>setOp(e.target.value)} ` + fieldStyle + `>
          <option value="+">Add (+)</option>
          <option value="-">Subtract (-)</option>
          <option value="*">Multiply (*)</option>
          <option value="/">Divide (/)</option>
        </select>
        <input placeholder="Second number" value={b} onChange={e=>setB(e.target.value)} ` + fieldStyle + ` />
        <div style={{padding:12, background:'#0f172a', border:'1px solid #334155', borderRadius:8}}>
          <strong style={{color:'#20d6ff'}}>Result:</strong> <span style={{marginLeft:8}}>{String(result)}</span>
        </div>
      </div>
    </div>
  );
}`

// demoApp echoes the prompt as a JS string literal so braces and angle
// brackets in the prompt cannot break the JSX.
func demoApp(prompt string) string {
	quoted, _ := json.Marshal(strings.TrimSpace(prompt))
	return `export default function App(){
  return (
` + header + DefaultName + `</h1>
      </header>
      <p>Generated locally: {` + string(quoted) + `}</p>
    </div>
  );
}`
}
