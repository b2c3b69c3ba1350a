package remote

import (
	"context"
	"strconv"
	"strings"

	"duelbench/internal/config"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrUnhealthy marks a server that did not answer its health probe.
var ErrUnhealthy = errors.New("health probe failed")

// ErrStartFailed marks a start command that exited non-zero.
var ErrStartFailed = errors.New("server start failed")

// Controller manages the server process bound to the benchmark port.
type Controller struct {
	exec   Executor
	tmpl   *Templates
	cmds   config.Commands
	delays config.Delays
	prober Prober
	log    *zap.Logger

	// Sleep implements the settle and warm-up pauses. Tests swap it out.
	Sleep SleepFunc
}

func NewController(exec Executor, tmpl *Templates, cfg config.RunConfig, prober Prober, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		exec:   exec,
		tmpl:   tmpl,
		cmds:   cfg.Commands,
		delays: cfg.Delays,
		prober: prober,
		log:    log,
		Sleep:  Sleep,
	}
}

// FindPIDOnPort returns the pid listening on port. Nothing listening is not an error.
func (c *Controller) FindPIDOnPort(ctx context.Context, port int) (int, bool, error) {
	cmd, err := c.tmpl.Render(c.cmds.FindPID, CommandData{Port: port})
	if err != nil {
		return 0, false, err
	}
	res, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return 0, false, errors.Wrapf(err, "looking up the process on port %d", port)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && pid > 0 {
			return pid, true, nil
		}
	}
	return 0, false, nil
}

// KillProcess force-kills pid. A process that is already gone is an expected
// outcome, so the result is informational only.
func (c *Controller) KillProcess(ctx context.Context, pid int) Outcome {
	cmd, err := c.tmpl.Render(c.cmds.Kill, CommandData{PID: pid})
	if err != nil {
		return Outcome{Err: err}
	}
	res, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return Outcome{Err: err}
	}
	if !res.OK() {
		return Outcome{Err: errors.Newf("kill %d: exit status %d: %s", pid, res.ExitStatus, strings.TrimSpace(res.Stderr))}
	}
	return Outcome{}
}

// EnsurePortFree kills whatever listens on port and waits for the socket to
// be released. Calling it with nothing listening changes nothing.
func (c *Controller) EnsurePortFree(ctx context.Context, port int) error {
	pid, found, err := c.FindPIDOnPort(ctx, port)
	if err != nil {
		return err
	}
	if !found {
		c.log.Debug("port already free", zap.Int("port", port))
		return nil
	}

	c.log.Info("killing process on port", zap.Int("port", port), zap.Int("pid", pid))
	if out := c.KillProcess(ctx, pid); !out.OK() {
		c.log.Debug("kill failed", zap.Int("pid", pid), zap.Error(out.Err))
	}
	c.Sleep(ctx, c.delays.Settle)
	return nil
}

// StartDetached launches binary in the background and returns without waiting for it.
func (c *Controller) StartDetached(ctx context.Context, binary, workDir, logPath string) error {
	cmd, err := c.tmpl.Render(c.cmds.Start, CommandData{
		Binary:  binary,
		WorkDir: workDir,
		LogPath: logPath,
	})
	if err != nil {
		return err
	}
	c.log.Info("starting server", zap.String("binary", binary), zap.String("log", logPath))
	res, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return errors.Wrapf(err, "starting %s", binary)
	}
	if !res.OK() {
		return errors.Mark(
			errors.Newf("starting %s: exit status %d: %s", binary, res.ExitStatus, strings.TrimSpace(res.Combined())),
			ErrStartFailed)
	}
	return nil
}

// WaitForHealth waits out the warm-up and then probes exactly once.
func (c *Controller) WaitForHealth(ctx context.Context, baseURL, probePath string) error {
	c.Sleep(ctx, c.delays.WarmUp)

	url := JoinURL(baseURL, probePath)
	if err := c.prober.Probe(ctx, url); err != nil {
		return errors.Mark(errors.Wrapf(err, "probing %s", url), ErrUnhealthy)
	}
	c.log.Info("server healthy", zap.String("url", url))
	return nil
}

// JoinURL appends path to base without doubling the slash
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
