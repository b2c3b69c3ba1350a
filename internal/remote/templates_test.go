package remote

import (
	"testing"

	"duelbench/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'plain'", ShellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, ShellQuote("it's"))
	assert.Equal(t, "~/'http-bench'", ShellQuote("~/http-bench"))
	assert.Equal(t, "~", ShellQuote("~"))
	assert.Equal(t, "'/tmp/a b.log'", ShellQuote("/tmp/a b.log"))
	assert.Equal(t, "''", ShellQuote(""))
}

func TestRenderDefaultCommands(t *testing.T) {
	e := NewTemplates()
	cmds := config.DefaultCommands()

	tests := []struct {
		name string
		tmpl string
		data CommandData
		want string
	}{
		{"find pid", cmds.FindPID, CommandData{Port: 8080}, "lsof -t -i:8080 -sTCP:LISTEN"},
		{"kill", cmds.Kill, CommandData{PID: 4242}, "kill -9 4242"},
		{"tool", cmds.ToolCheck, CommandData{Tool: "wrk"}, "command -v wrk"},
		{"build", cmds.Build, CommandData{ProjectPath: "/srv/bench"}, "cd '/srv/bench' && cargo build --release"},
		{
			"probe", cmds.Probe,
			CommandData{URL: "http://127.0.0.1:8080/health", Timeout: 10},
			"curl -s -o /dev/null --max-time 10 'http://127.0.0.1:8080/health'",
		},
		{
			"generator", cmds.Generator,
			CommandData{URL: "http://127.0.0.1:8080/", Threads: 4, Connections: 100, Duration: 30, Timeout: 10},
			"wrk -t4 -c100 -d30s --timeout 10s --latency 'http://127.0.0.1:8080/'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.tmpl, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreprocessNakedVariables(t *testing.T) {
	e := NewTemplates()
	got, err := e.Render("ss -ltnp 'sport = :{{port}}' # {{tool}}", CommandData{Port: 9000, Tool: "ss"})
	require.NoError(t, err)
	assert.Equal(t, "ss -ltnp 'sport = :9000' # ss", got)
}

func TestRenderCachesTemplates(t *testing.T) {
	e := NewTemplates()
	a, err := e.Parse("echo {{.Port}}")
	require.NoError(t, err)
	b, err := e.Parse("echo {{.Port}}")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestRenderErrors(t *testing.T) {
	e := NewTemplates()
	_, err := e.Render("echo {{.Port", CommandData{})
	assert.Error(t, err)
	_, err = e.Render("echo {{.Nope}}", CommandData{})
	assert.Error(t, err)
}

func TestUUIDFunc(t *testing.T) {
	e := NewTemplates()
	got, err := e.Render("{{uuid}}", CommandData{})
	require.NoError(t, err)
	assert.Len(t, got, 36)
}
