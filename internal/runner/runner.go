// Package runner sequences a comparison run: preflight, build, then each
// implementation's full trial matrix in turn.
package runner

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"duelbench/internal/config"
	"duelbench/internal/loadgen"
	"duelbench/internal/parser"
	"duelbench/internal/remote"
	"duelbench/internal/results"
	"duelbench/internal/stats"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fatal error classes. Any of these aborts the whole run.
var (
	ErrConnectivity = errors.New("remote host unreachable")
	ErrToolMissing  = errors.New("required tool missing")
	ErrBuildFailed  = errors.New("remote build failed")
	ErrSlotBusy     = errors.New("port slot already owned by another implementation")
)

// Deps are the collaborators of a run. Zero values get sensible defaults.
type Deps struct {
	Remote remote.Transport
	// Local runs tool checks for collaborators configured to run on this machine.
	Local     remote.Executor
	Prober    remote.Prober
	Generator loadgen.Generator
	Table     *results.Table
	Logger    *zap.Logger
	Updates   EventChan
	Sleep     remote.SleepFunc
	Now       func() time.Time
}

type Runner struct {
	cfg    config.RunConfig
	layout results.Layout

	remote  remote.Transport
	local   remote.Executor
	tmpl    *remote.Templates
	ctl     *remote.Controller
	gen     loadgen.Generator
	table   *results.Table
	log     *zap.Logger
	updates EventChan
	sleep   remote.SleepFunc
	now     func() time.Time

	// slot is the one server port; whoever holds it owns the remote server.
	slot      sync.Mutex
	mu        sync.Mutex
	completed int
}

func New(cfg config.RunConfig, layout results.Layout, deps Deps) *Runner {
	r := &Runner{
		cfg:     cfg,
		layout:  layout,
		remote:  deps.Remote,
		local:   deps.Local,
		tmpl:    remote.NewTemplates(),
		gen:     deps.Generator,
		table:   deps.Table,
		log:     deps.Logger,
		updates: deps.Updates,
		sleep:   deps.Sleep,
		now:     deps.Now,
	}
	if r.local == nil {
		r.local = remote.LocalShell{}
	}
	if r.table == nil {
		r.table = results.NewTable()
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.updates == nil {
		// Avoid nil panics if not provided
		r.updates = make(EventChan, 10)
	}
	if r.sleep == nil {
		r.sleep = remote.Sleep
	}
	if r.now == nil {
		r.now = time.Now
	}

	prober := deps.Prober
	if prober == nil {
		if cfg.ProbeLocation == config.LocationLocal {
			prober = remote.NewHTTPProber(cfg.Timeout)
		} else {
			prober = remote.CommandProber{
				Exec:    r.remote,
				Tmpl:    r.tmpl,
				Command: cfg.Commands.Probe,
				Timeout: cfg.TimeoutSeconds(),
			}
		}
	}
	if r.gen == nil {
		if cfg.GeneratorLocation == config.LocationLocal {
			r.gen = loadgen.NewLocal(r.tmpl, cfg.Commands.Generator, r.log)
		} else {
			r.gen = loadgen.NewRemote(r.remote, r.tmpl, cfg.Commands.Generator, r.log)
		}
	}

	r.ctl = remote.NewController(r.remote, r.tmpl, cfg, prober, r.log)
	r.ctl.Sleep = r.sleep
	return r
}

// Table is the result table rows are appended to
func (r *Runner) Table() *results.Table { return r.table }

func (r *Runner) emit(e Event) {
	e.At = r.now()
	r.mu.Lock()
	e.Completed = r.completed
	r.mu.Unlock()
	e.Total = r.cfg.TrialCount()

	// Non-blocking send
	select {
	case r.updates <- e:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Run executes the whole comparison. The returned Summary is filled in as far
// as the run got, even when a fatal error is returned.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{
		RunID:     uuid.Must(uuid.NewV7()).String(),
		StartedAt: r.now(),
		OutputDir: r.layout.Root,
		Host:      r.cfg.Host,
		Planned:   r.cfg.TrialCount(),
		Succeeded: map[string]bool{},
	}

	fail := func(err error) (Summary, error) {
		r.log.Error("run aborted", zap.Error(err))
		r.emit(Event{Phase: PhaseFailed, Err: err, Message: err.Error()})
		r.finish(&sum)
		return sum, err
	}

	r.log.Info("starting comparison run",
		zap.String("run_id", sum.RunID),
		zap.String("host", r.cfg.Host),
		zap.Strings("implementations", labels(r.cfg.Implementations)),
		zap.Int("trials", sum.Planned))

	if err := r.checkConnectivity(ctx); err != nil {
		return fail(err)
	}
	if err := r.checkTools(ctx); err != nil {
		return fail(err)
	}

	r.emit(Event{Phase: PhaseCleanup, Message: "freeing port"})
	if err := r.ctl.EnsurePortFree(ctx, r.cfg.Port); err != nil {
		return fail(err)
	}

	if err := r.build(ctx); err != nil {
		return fail(err)
	}

	for _, impl := range r.cfg.Implementations {
		ok, err := r.RunImplementation(ctx, impl)
		sum.Succeeded[impl.Label] = ok
		if err != nil {
			return fail(err)
		}
	}

	r.emit(Event{Phase: PhaseReport})
	r.finish(&sum)
	r.log.Info("run complete",
		zap.Int("rows", len(sum.Rows)),
		zap.Int("planned", sum.Planned),
		zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)))
	r.emit(Event{Phase: PhaseDone})
	return sum, nil
}

func (r *Runner) finish(sum *Summary) {
	sum.Rows = r.table.Rows()
	if len(r.cfg.Implementations) == 2 {
		sum.Report = stats.Compare(sum.Rows, r.cfg.Implementations[0].Label, r.cfg.Implementations[1].Label, r.cfg.Endpoints)
	}
	sum.FinishedAt = r.now()
}

func (r *Runner) checkConnectivity(ctx context.Context) error {
	r.emit(Event{Phase: PhaseConnectivity, Message: r.cfg.Host})
	res, err := r.remote.Run(ctx, r.cfg.Commands.Connectivity)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "connecting to %s", r.cfg.Host), ErrConnectivity)
	}
	if !res.OK() {
		return errors.Mark(
			errors.Newf("connectivity check on %s exited %d: %s", r.cfg.Host, res.ExitStatus, strings.TrimSpace(res.Stderr)),
			ErrConnectivity)
	}
	r.log.Info("remote host reachable", zap.String("host", r.cfg.Host))
	return nil
}

// requiredTools lists the tools each side needs for the configured locations
func (r *Runner) requiredTools() (remoteTools, localTools []string) {
	add := func(list []string, tool string) []string {
		for _, t := range list {
			if t == tool {
				return list
			}
		}
		return append(list, tool)
	}
	for _, t := range r.cfg.RemoteTools {
		remoteTools = add(remoteTools, t)
	}
	if r.cfg.ProbeLocation == config.LocationRemote {
		remoteTools = add(remoteTools, "curl")
	}
	if r.cfg.GeneratorTool != "" {
		if r.cfg.GeneratorLocation == config.LocationLocal {
			localTools = add(localTools, r.cfg.GeneratorTool)
		} else {
			remoteTools = add(remoteTools, r.cfg.GeneratorTool)
		}
	}
	return remoteTools, localTools
}

func (r *Runner) checkTools(ctx context.Context) error {
	r.emit(Event{Phase: PhasePreflight})
	remoteTools, localTools := r.requiredTools()

	check := func(exec remote.Executor, where, tool string) error {
		cmd, err := r.tmpl.Render(r.cfg.Commands.ToolCheck, remote.CommandData{Tool: tool})
		if err != nil {
			return err
		}
		res, err := exec.Run(ctx, cmd)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "checking for %s on %s", tool, where), ErrToolMissing)
		}
		if !res.OK() {
			return errors.Mark(errors.Newf("%s not found on %s", tool, where), ErrToolMissing)
		}
		r.log.Debug("tool present", zap.String("tool", tool), zap.String("where", where))
		return nil
	}

	for _, tool := range remoteTools {
		if err := check(r.remote, r.cfg.Host, tool); err != nil {
			return err
		}
	}
	for _, tool := range localTools {
		if err := check(r.local, "this machine", tool); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) build(ctx context.Context) error {
	r.emit(Event{Phase: PhaseBuild, Message: r.cfg.ProjectPath})
	cmd, err := r.tmpl.Render(r.cfg.Commands.Build, remote.CommandData{ProjectPath: r.cfg.ProjectPath})
	if err != nil {
		return err
	}
	r.log.Info("building", zap.String("project", r.cfg.ProjectPath))
	start := r.now()
	res, err := r.remote.Run(ctx, cmd)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "running remote build"), ErrBuildFailed)
	}
	if !res.OK() {
		return errors.Mark(
			errors.Newf("build exited %d: %s", res.ExitStatus, tail(res.Combined(), 20)),
			ErrBuildFailed)
	}
	r.log.Info("build finished", zap.Duration("took", r.now().Sub(start)))
	return nil
}

// RemoteLogPath is where a started server writes its output on the host
func RemoteLogPath(binary string) string {
	return "/tmp/" + binary + ".log"
}

// RunImplementation benchmarks one implementation from a free port back to a
// free port. It returns false with a nil error when the server never became
// healthy; an error is fatal to the run.
func (r *Runner) RunImplementation(ctx context.Context, impl config.Implementation) (bool, error) {
	if !r.slot.TryLock() {
		return false, errors.Mark(errors.Newf("cannot start %s", impl.Label), ErrSlotBusy)
	}
	defer r.slot.Unlock()

	log := r.log.With(zap.String("implementation", impl.Label))
	port := r.cfg.Port
	logPath := RemoteLogPath(impl.Binary)

	r.emit(Event{Phase: PhaseCleanup, Implementation: impl.Label})
	if err := r.ctl.EnsurePortFree(ctx, port); err != nil {
		return false, err
	}

	r.emit(Event{Phase: PhaseStarting, Implementation: impl.Label, Message: impl.Binary})
	if err := r.ctl.StartDetached(ctx, impl.Binary, r.cfg.ProjectPath, logPath); err != nil {
		if !errors.Is(err, remote.ErrStartFailed) {
			return false, err
		}
		log.Error("server did not start, skipping implementation", zap.Error(err))
		return false, r.abandon(ctx, impl)
	}

	r.emit(Event{Phase: PhaseHealth, Implementation: impl.Label})
	if err := r.ctl.WaitForHealth(ctx, r.cfg.BaseURL, r.cfg.HealthPath); err != nil {
		log.Error("health check failed, skipping implementation", zap.Error(err))
		return false, r.abandon(ctx, impl)
	}

	for _, trial := range Trials(r.cfg, impl) {
		if _, err := r.RunTrial(ctx, trial); err != nil {
			_ = r.ctl.EnsurePortFree(ctx, port)
			return false, err
		}
	}
	for _, ep := range r.cfg.Endpoints {
		rows := r.table.Filter(impl.Label, ep)
		if len(rows) == 0 {
			continue
		}
		var sum float64
		for _, row := range rows {
			sum += row.RequestsPerSec
		}
		log.Info("endpoint finished",
			zap.String("endpoint", ep),
			zap.Int("trials", len(rows)),
			zap.Float64("mean_rps", sum/float64(len(rows))))
	}

	r.emit(Event{Phase: PhaseStopping, Implementation: impl.Label})
	if err := r.ctl.EnsurePortFree(ctx, port); err != nil {
		return false, err
	}

	local := r.layout.ServerLog(impl.Binary)
	if err := r.remote.Copy(ctx, logPath, local); err != nil {
		log.Warn("could not copy server log", zap.String("remote", logPath), zap.Error(err))
	} else {
		log.Info("server log saved", zap.String("path", local))
	}
	return true, nil
}

// abandon frees the port after a failed start. Only a transport failure is returned.
func (r *Runner) abandon(ctx context.Context, impl config.Implementation) error {
	r.emit(Event{Phase: PhaseSkipped, Implementation: impl.Label, Message: "server not healthy"})
	return r.ctl.EnsurePortFree(ctx, r.cfg.Port)
}

// RunTrial runs the generator once, stores the raw output and the parsed row,
// then waits out the recovery interval.
func (r *Runner) RunTrial(ctx context.Context, trial Trial) (results.MetricRecord, error) {
	defer r.sleep(ctx, r.cfg.Delays.Recovery)

	log := r.log.With(
		zap.String("implementation", trial.Implementation.Label),
		zap.String("endpoint", trial.Endpoint),
		zap.Int("connections", trial.Connections))

	r.emit(Event{Phase: PhaseTrial, Implementation: trial.Implementation.Label, Trial: &trial})
	log.Info("running trial", zap.Int("threads", r.cfg.Threads), zap.Duration("duration", r.cfg.Duration))

	out, err := r.gen.Generate(ctx, loadgen.Invocation{
		URL:         remote.JoinURL(r.cfg.BaseURL, trial.Endpoint),
		Duration:    r.cfg.Duration,
		Threads:     r.cfg.Threads,
		Connections: trial.Connections,
		Timeout:     r.cfg.Timeout,
	})
	if err != nil {
		return results.MetricRecord{}, err
	}

	rawPath := r.layout.RawOutput(trial.Implementation.Label, trial.Endpoint, trial.Connections)
	if err := os.WriteFile(rawPath, []byte(out), 0644); err != nil {
		log.Warn("could not save raw output", zap.String("path", rawPath), zap.Error(err))
	}

	rec := results.NewRecord(trial.Implementation.Label, trial.Endpoint, trial.Connections,
		r.cfg.Threads, r.cfg.Duration, parser.Parse(out))
	if err := r.table.Append(rec); err != nil {
		log.Warn("could not persist row", zap.Error(err))
	}

	r.mu.Lock()
	r.completed++
	r.mu.Unlock()

	log.Info("trial finished",
		zap.Float64("requests_per_sec", rec.RequestsPerSec),
		zap.Float64("latency_avg_ms", rec.LatencyAvgMs),
		zap.Float64("latency_p99_ms", rec.LatencyP99Ms),
		zap.String("socket_errors", rec.SocketErrors))
	r.emit(Event{Phase: PhaseTrial, Implementation: trial.Implementation.Label, Trial: &trial, Row: &rec})
	return rec, nil
}

func labels(impls []config.Implementation) []string {
	out := make([]string, len(impls))
	for i, impl := range impls {
		out[i] = impl.String()
	}
	return out
}

// tail keeps the last n lines of s
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
