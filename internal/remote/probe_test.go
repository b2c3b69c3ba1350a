package remote

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duelbench/internal/refserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProberAnyResponseIsAlive(t *testing.T) {
	srv := httptest.NewServer(refserver.Handler(0))
	defer srv.Close()

	p := NewHTTPProber(2 * time.Second)
	ctx := context.Background()

	assert.NoError(t, p.Probe(ctx, srv.URL+"/health"))
	// a 404 is still an answer
	assert.NoError(t, p.Probe(ctx, srv.URL+"/nope"))
}

func TestHTTPProberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPProber(time.Second).Probe(context.Background(), srv.URL+"/health"))
}

func TestHTTPProberNothingListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = NewHTTPProber(time.Second).Probe(context.Background(), "http://"+addr+"/health")
	assert.Error(t, err)
}

type scriptedExec struct {
	res      Result
	err      error
	commands []string
}

func (s *scriptedExec) Run(_ context.Context, command string) (Result, error) {
	s.commands = append(s.commands, command)
	return s.res, s.err
}

func TestCommandProber(t *testing.T) {
	exec := &scriptedExec{}
	p := CommandProber{Exec: exec, Tmpl: NewTemplates(), Command: "curl -s --max-time {{.Timeout}} {{quote .URL}}", Timeout: 5}

	require.NoError(t, p.Probe(context.Background(), "http://127.0.0.1:8080/health"))
	assert.Equal(t, []string{"curl -s --max-time 5 'http://127.0.0.1:8080/health'"}, exec.commands)

	exec.res = Result{ExitStatus: 7}
	err := p.Probe(context.Background(), "http://127.0.0.1:8080/health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 7")
}
