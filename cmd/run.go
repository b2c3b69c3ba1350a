package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"duelbench/internal/banner"
	"duelbench/internal/cli"
	"duelbench/internal/config"
	"duelbench/internal/logging"
	"duelbench/internal/remote"
	"duelbench/internal/report"
	"duelbench/internal/results"
	"duelbench/internal/runner"
	"duelbench/internal/storage"
	"duelbench/internal/tui/app"
	"duelbench/internal/tui/history"
)

type runOptions struct {
	tui         bool
	historyPath string
	noHistory   bool
}

func makeRunCommand() *cobra.Command {
	var opts runOptions
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "invalid configuration")
		}
		return runComparison(cfg, opts)
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build both implementations on the host and benchmark them one after the other.",
		Long: `Build both implementations on the host and benchmark them one after the other.

Flags override DUELBENCH_* environment variables, which override the config file
and the built-in defaults.`,
		Args: cobra.NoArgs,
		RunE: runCmdFunc,
	}

	d := config.Default()
	f := cmd.Flags()
	f.String("host", d.Host, "benchmark host")
	f.String("user", d.User, "ssh user")
	f.Int("ssh-port", d.SSH.Port, "ssh port")
	f.String("identity", "", "ssh private key (default: agent, then ~/.ssh/id_*)")
	f.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	f.Bool("insecure-ignore-host-key", false, "skip host key verification")
	f.String("transport", d.Transport, "how commands reach the host: ssh or local")
	f.String("project-path", d.ProjectPath, "project directory on the host")
	f.Int("port", d.Port, "port both servers listen on")
	f.String("base-url", d.BaseURL, "URL the generator and probe target")
	f.Duration("duration", d.Duration, "duration of each trial")
	f.IntSlice("connections", d.Connections, "connection counts, in order")
	f.Int("threads", d.Threads, "generator threads")
	f.StringSlice("endpoints", d.Endpoints, "endpoint paths, in order")
	f.Duration("timeout", d.Timeout, "per-request timeout")
	f.String("output-dir", d.OutputDir, "root directory for run output")
	f.StringSlice("impl", nil, "implementation as label=binary; give exactly two")
	f.String("generator-location", d.GeneratorLocation, "where wrk runs: remote or local")
	f.String("probe-location", d.ProbeLocation, "where the health probe runs: remote or local")

	if err := bindFlags(viper.GetViper(), f, runFlagKeys); err != nil {
		panic(err)
	}

	f.BoolVar(&opts.tui, "tui", false, "show the live terminal UI instead of the running log")
	f.StringVar(&opts.historyPath, "history-db", "", "run history database (default ~/.duelbench/history.db)")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record this run in the history")
	return cmd
}

// runFlagKeys maps run flags onto config keys; a flag only wins once it is set.
var runFlagKeys = map[string]string{
	"host":                     config.KeyHost,
	"user":                     config.KeyUser,
	"ssh-port":                 config.KeySSHPort,
	"identity":                 config.KeyIdentityFile,
	"known-hosts":              config.KeyKnownHosts,
	"insecure-ignore-host-key": config.KeyInsecureHostKey,
	"transport":                config.KeyTransport,
	"project-path":             config.KeyProjectPath,
	"port":                     config.KeyPort,
	"base-url":                 config.KeyBaseURL,
	"duration":                 config.KeyDuration,
	"connections":              config.KeyConnections,
	"threads":                  config.KeyThreads,
	"endpoints":                config.KeyEndpoints,
	"timeout":                  config.KeyTimeout,
	"output-dir":               config.KeyOutputDir,
	"impl":                     config.KeyImpl,
	"generator-location":       config.KeyGeneratorLocation,
	"probe-location":           config.KeyProbeLocation,
}

func bindFlags(v *viper.Viper, f *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		pf := f.Lookup(flag)
		if pf == nil {
			return errors.Newf("no flag --%s to bind to %s", flag, key)
		}
		if err := v.BindPFlag(key, pf); err != nil {
			return errors.Wrapf(err, "binding --%s", flag)
		}
	}
	return nil
}

func newTransport(cfg config.RunConfig, log *zap.Logger) remote.Transport {
	if cfg.Transport == config.TransportLocal {
		return remote.LocalShell{}
	}
	return remote.NewSSHClient(cfg.Host, cfg.User, cfg.SSH, log)
}

func openHistory(path string, log *zap.Logger) *storage.Store {
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			log.Warn("history disabled", zap.Error(err))
			return nil
		}
		path = p
	}
	store, err := storage.Open(path)
	if err != nil {
		log.Warn("history disabled", zap.Error(err))
		return nil
	}
	return store
}

func runComparison(cfg config.RunConfig, opts runOptions) error {
	layout, err := results.NewLayout(cfg.OutputDir, time.Now())
	if err != nil {
		return err
	}

	log, closeLog := logging.New(logging.Config{
		Level:    logLevel,
		Console:  !opts.tui,
		Stdout:   os.Stdout,
		FilePath: layout.Log(),
	})
	defer closeLog()

	if err := cfg.WriteSnapshot(layout.Config()); err != nil {
		log.Warn("config snapshot not written", zap.Error(err))
	}

	sinks, err := layout.OpenSinks()
	if err != nil {
		return err
	}
	table := results.NewTable(sinks...)
	defer table.Close()

	transport := newTransport(cfg, log)
	defer transport.Close()

	var store *storage.Store
	if !opts.noHistory {
		store = openHistory(opts.historyPath, log)
	}
	if store != nil {
		defer store.Close()
	}

	updates := make(runner.EventChan, 100)
	r := runner.New(cfg, layout, runner.Deps{
		Remote:  transport,
		Table:   table,
		Logger:  log,
		Updates: updates,
	})

	// Cancellation is not supported; a run always goes to completion or a fatal error.
	ctx := context.Background()

	var sum runner.Summary
	var runErr error
	if opts.tui {
		done, err := runWithTUI(ctx, r, cfg, layout, updates, store)
		if err != nil {
			return err
		}
		sum, runErr = done.Summary, done.Err
	} else {
		fmt.Println(banner.GetString())
		fmt.Print(banner.Header(cfg, layout.Root))
		sum, runErr = cli.Start(ctx, r, updates, os.Stdout)
	}

	if err := report.WriteText(layout.Report(), sum.Report); err != nil {
		log.Warn("report not written", zap.Error(err))
	}
	if err := report.WriteSummaryJSON(layout.Summary(), sum); err != nil {
		log.Warn("summary not written", zap.Error(err))
	}
	if store != nil {
		if err := store.Save(storage.FromSummary(sum, cfg.Implementations, runErr)); err != nil {
			log.Warn("run not saved to history", zap.Error(err))
		}
	}

	cli.PrintSummary(os.Stdout, sum, runErr)
	return runErr
}

// runWithTUI returns the run's outcome. The error is the UI's own: it failed or
// was closed before the run ended.
func runWithTUI(
	ctx context.Context,
	r *runner.Runner,
	cfg config.RunConfig,
	layout results.Layout,
	updates runner.EventChan,
	store *storage.Store,
) (app.RunDoneMsg, error) {
	var lister history.Lister
	if store != nil {
		lister = store
	}
	m := app.NewModel(app.Options{
		Updates:   updates,
		Total:     cfg.TrialCount(),
		PerTrial:  cfg.Duration + cfg.Delays.Recovery,
		History:   lister,
		ExportDir: layout.Root,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan app.RunDoneMsg, 1)
	go func() {
		sum, err := r.Run(ctx)
		msg := app.RunDoneMsg{Summary: sum, Err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		return app.RunDoneMsg{}, errors.Wrap(err, "running terminal UI")
	}

	select {
	case msg := <-done:
		return msg, nil
	default:
		return app.RunDoneMsg{}, errors.Newf(
			"run abandoned before it finished; the server on %s:%d may still be running", cfg.Host, cfg.Port)
	}
}
