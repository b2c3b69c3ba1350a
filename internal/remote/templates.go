package remote

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// CommandData is passed to every command template
type CommandData struct {
	ProjectPath string
	Binary      string
	WorkDir     string
	LogPath     string
	Port        int
	PID         int
	URL         string
	Threads     int
	Connections int
	Duration    int // seconds
	Timeout     int // seconds
	Tool        string
}

// Templates parses command templates once and renders them on demand
type Templates struct {
	cache   map[string]*template.Template
	mu      sync.RWMutex
	funcMap template.FuncMap
}

func NewTemplates() *Templates {
	e := &Templates{
		cache: make(map[string]*template.Template),
	}

	e.funcMap = template.FuncMap{
		"quote": ShellQuote,
		"join":  strings.Join,
		"uuid":  e.randomUUID,
	}

	return e
}

// naked lower-case variables users tend to write in config files
var nakedVars = strings.NewReplacer(
	"{{projectPath}}", "{{.ProjectPath}}",
	"{{binary}}", "{{.Binary}}",
	"{{workDir}}", "{{.WorkDir}}",
	"{{logPath}}", "{{.LogPath}}",
	"{{port}}", "{{.Port}}",
	"{{pid}}", "{{.PID}}",
	"{{url}}", "{{.URL}}",
	"{{threads}}", "{{.Threads}}",
	"{{connections}}", "{{.Connections}}",
	"{{duration}}", "{{.Duration}}",
	"{{timeout}}", "{{.Timeout}}",
	"{{tool}}", "{{.Tool}}",
)

// Preprocess converts simple variables like {{port}} to {{.Port}}
func (e *Templates) Preprocess(input string) string {
	return nakedVars.Replace(input)
}

// Parse returns the cached template for text, parsing it on first use
func (e *Templates) Parse(text string) (*template.Template, error) {
	e.mu.RLock()
	t, ok := e.cache[text]
	e.mu.RUnlock()
	if ok {
		return t, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if t, ok = e.cache[text]; ok {
		return t, nil
	}

	t, err := template.New("command").Funcs(e.funcMap).Option("missingkey=error").Parse(e.Preprocess(text))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing command template %q", text)
	}
	e.cache[text] = t
	return t, nil
}

// Render parses (or reuses) text and executes it with data
func (e *Templates) Render(text string, data CommandData) (string, error) {
	t, err := e.Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "rendering command template %q", text)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (e *Templates) randomUUID() string {
	return uuid.New().String()
}

// ShellQuote single-quotes s for a POSIX shell. A leading "~" or "~/" stays
// outside the quotes so the remote shell still expands it.
func ShellQuote(s string) string {
	if s == "~" {
		return s
	}
	if rest, ok := strings.CutPrefix(s, "~/"); ok {
		if rest == "" {
			return "~/"
		}
		return "~/" + singleQuote(rest)
	}
	return singleQuote(s)
}

func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
