// Package loadgen drives the external HTTP load generator.
package loadgen

import (
	"context"
	"strings"
	"time"

	"duelbench/internal/remote"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrGeneratorUnavailable means the generator could not be run at all. It is
// fatal to the whole run.
var ErrGeneratorUnavailable = errors.New("load generator unavailable")

// Invocation describes one generator run. Latency percentiles are always requested.
type Invocation struct {
	URL         string
	Duration    time.Duration
	Threads     int
	Connections int
	Timeout     time.Duration
}

type Generator interface {
	Generate(ctx context.Context, inv Invocation) (string, error)
}

// Remote renders the generator command and runs it through an Executor on the
// benchmark host.
type Remote struct {
	exec    remote.Executor
	tmpl    *remote.Templates
	command string
	log     *zap.Logger
}

func NewRemote(exec remote.Executor, tmpl *remote.Templates, command string, log *zap.Logger) *Remote {
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{exec: exec, tmpl: tmpl, command: command, log: log}
}

// NewLocal runs the same command on this machine.
func NewLocal(tmpl *remote.Templates, command string, log *zap.Logger) *Remote {
	return NewRemote(remote.LocalShell{}, tmpl, command, log)
}

// Generate returns the generator's combined output. A non-zero exit still
// returns the output so the trial gets its row.
func (g *Remote) Generate(ctx context.Context, inv Invocation) (string, error) {
	cmd, err := g.tmpl.Render(g.command, remote.CommandData{
		URL:         inv.URL,
		Threads:     inv.Threads,
		Connections: inv.Connections,
		Duration:    seconds(inv.Duration),
		Timeout:     seconds(inv.Timeout),
	})
	if err != nil {
		return "", err
	}

	g.log.Debug("running load generator", zap.String("cmd", cmd))
	res, err := g.exec.Run(ctx, cmd)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "running load generator"), ErrGeneratorUnavailable)
	}

	switch res.ExitStatus {
	case 0:
	case 126, 127:
		return "", errors.Mark(
			errors.Newf("load generator not runnable (exit status %d): %s", res.ExitStatus, strings.TrimSpace(res.Stderr)),
			ErrGeneratorUnavailable)
	default:
		g.log.Warn("load generator exited non-zero",
			zap.Int("exit_status", res.ExitStatus),
			zap.String("url", inv.URL),
			zap.Int("connections", inv.Connections),
			zap.String("stderr", strings.TrimSpace(res.Stderr)))
	}
	return res.Combined(), nil
}

// seconds rounds up, with a floor of one
func seconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
