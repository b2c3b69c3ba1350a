package loadgen

import (
	"context"
	"testing"
	"time"

	"duelbench/internal/config"
	"duelbench/internal/remote"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExec struct {
	res      remote.Result
	err      error
	commands []string
}

func (s *scriptedExec) Run(_ context.Context, command string) (remote.Result, error) {
	s.commands = append(s.commands, command)
	return s.res, s.err
}

var inv = Invocation{
	URL:         "http://127.0.0.1:8080/",
	Duration:    30 * time.Second,
	Threads:     4,
	Connections: 200,
	Timeout:     10 * time.Second,
}

func TestGenerateRendersCommand(t *testing.T) {
	exec := &scriptedExec{res: remote.Result{Stdout: "Requests/sec: 10.00\n"}}
	g := NewRemote(exec, remote.NewTemplates(), config.DefaultCommands().Generator, nil)

	out, err := g.Generate(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "Requests/sec: 10.00\n", out)
	assert.Equal(t, []string{"wrk -t4 -c200 -d30s --timeout 10s --latency 'http://127.0.0.1:8080/'"}, exec.commands)
}

func TestGenerateNonZeroExitKeepsOutput(t *testing.T) {
	exec := &scriptedExec{res: remote.Result{Stdout: "unable to connect", ExitStatus: 1}}
	g := NewRemote(exec, remote.NewTemplates(), config.DefaultCommands().Generator, nil)

	out, err := g.Generate(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "unable to connect", out)
}

func TestGenerateUnavailable(t *testing.T) {
	tests := []struct {
		name string
		exec *scriptedExec
	}{
		{"missing binary", &scriptedExec{res: remote.Result{Stderr: "sh: wrk: not found", ExitStatus: 127}}},
		{"not executable", &scriptedExec{res: remote.Result{ExitStatus: 126}}},
		{"transport", &scriptedExec{err: errors.New("connection reset")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewRemote(tt.exec, remote.NewTemplates(), config.DefaultCommands().Generator, nil)
			_, err := g.Generate(context.Background(), inv)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrGeneratorUnavailable))
		})
	}
}

func TestLocalGenerator(t *testing.T) {
	g := NewLocal(remote.NewTemplates(), "echo c={{.Connections}} d={{.Duration}}", nil)
	out, err := g.Generate(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "c=200 d=30\n", out)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1, seconds(0))
	assert.Equal(t, 1, seconds(200*time.Millisecond))
	assert.Equal(t, 30, seconds(30*time.Second))
	assert.Equal(t, 2, seconds(1500*time.Millisecond))
}
