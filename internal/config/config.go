package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Where a collaborator runs: on the remote host through the transport, or on this machine.
const (
	LocationRemote = "remote"
	LocationLocal  = "local"

	TransportSSH   = "ssh"
	TransportLocal = "local"
)

// Implementation is one of the two servers under comparison.
type Implementation struct {
	Label  string `yaml:"label" mapstructure:"label"`
	Binary string `yaml:"binary" mapstructure:"binary"`
}

func (i Implementation) String() string {
	if i.Label == i.Binary {
		return i.Label
	}
	return fmt.Sprintf("%s (%s)", i.Label, i.Binary)
}

// Delays are the fixed, blocking pauses of the benchmark methodology.
type Delays struct {
	Settle   time.Duration `yaml:"settle" mapstructure:"settle"`
	WarmUp   time.Duration `yaml:"warm_up" mapstructure:"warm_up"`
	Recovery time.Duration `yaml:"recovery" mapstructure:"recovery"`
}

// Commands holds the text/template source of every command issued through an executor.
type Commands struct {
	Connectivity string `yaml:"connectivity" mapstructure:"connectivity"`
	ToolCheck    string `yaml:"tool_check" mapstructure:"tool_check"`
	Build        string `yaml:"build" mapstructure:"build"`
	Start        string `yaml:"start" mapstructure:"start"`
	FindPID      string `yaml:"find_pid" mapstructure:"find_pid"`
	Kill         string `yaml:"kill" mapstructure:"kill"`
	Probe        string `yaml:"probe" mapstructure:"probe"`
	Generator    string `yaml:"generator" mapstructure:"generator"`
}

type SSH struct {
	Port                  int           `yaml:"port" mapstructure:"port"`
	IdentityFile          string        `yaml:"identity_file" mapstructure:"identity_file"`
	KnownHostsFile        string        `yaml:"known_hosts" mapstructure:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key" mapstructure:"insecure_ignore_host_key"`
	DialTimeout           time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// RunConfig is built once at startup and never modified afterwards.
type RunConfig struct {
	Host      string `yaml:"host"`
	User      string `yaml:"user"`
	Transport string `yaml:"transport"`
	SSH       SSH    `yaml:"ssh"`

	ProjectPath string `yaml:"project_path"`
	Port        int    `yaml:"port"`
	BaseURL     string `yaml:"base_url"`
	HealthPath  string `yaml:"health_path"`

	Duration    time.Duration `yaml:"duration"`
	Connections []int         `yaml:"connections"`
	Threads     int           `yaml:"threads"`
	Endpoints   []string      `yaml:"endpoints"`
	Timeout     time.Duration `yaml:"timeout"`

	OutputDir       string           `yaml:"output_dir"`
	Implementations []Implementation `yaml:"implementations"`

	GeneratorLocation string   `yaml:"generator_location"`
	GeneratorTool     string   `yaml:"generator_tool"`
	ProbeLocation     string   `yaml:"probe_location"`
	RemoteTools       []string `yaml:"remote_tools"`

	Delays   Delays   `yaml:"delays"`
	Commands Commands `yaml:"commands"`
}

func DefaultCommands() Commands {
	return Commands{
		Connectivity: "echo ok",
		ToolCheck:    "command -v {{.Tool}}",
		Build:        "cd {{quote .ProjectPath}} && cargo build --release",
		Start:        "cd {{quote .WorkDir}} && nohup ./target/release/{{.Binary}} > {{quote .LogPath}} 2>&1 < /dev/null &",
		FindPID:      "lsof -t -i:{{.Port}} -sTCP:LISTEN",
		Kill:         "kill -9 {{.PID}}",
		Probe:        "curl -s -o /dev/null --max-time {{.Timeout}} {{quote .URL}}",
		Generator:    "wrk -t{{.Threads}} -c{{.Connections}} -d{{.Duration}}s --timeout {{.Timeout}}s --latency {{quote .URL}}",
	}
}

// Default mirrors the hyper-http / monoio-http reference setup.
func Default() RunConfig {
	return RunConfig{
		Host:      "localhost",
		User:      os.Getenv("USER"),
		Transport: TransportSSH,
		SSH: SSH{
			Port:        22,
			DialTimeout: 10 * time.Second,
		},
		ProjectPath: "~/http-bench",
		Port:        8080,
		BaseURL:     "http://127.0.0.1:8080",
		HealthPath:  "/health",
		Duration:    30 * time.Second,
		Connections: []int{10, 50, 100, 200, 500, 1000},
		Threads:     4,
		Endpoints:   []string{"/", "/health"},
		Timeout:     10 * time.Second,
		OutputDir:   "benchmark_results",
		Implementations: []Implementation{
			{Label: "monoio-http", Binary: "monoio-http"},
			{Label: "hyper-http", Binary: "hyper-http"},
		},
		GeneratorLocation: LocationRemote,
		GeneratorTool:     "wrk",
		ProbeLocation:     LocationRemote,
		RemoteTools:       []string{"lsof"},
		Delays: Delays{
			Settle:   2 * time.Second,
			WarmUp:   3 * time.Second,
			Recovery: 5 * time.Second,
		},
		Commands: DefaultCommands(),
	}
}

// TrialCount is the number of rows a fully healthy run produces.
func (c RunConfig) TrialCount() int {
	return len(c.Implementations) * len(c.Endpoints) * len(c.Connections)
}

// TrialsPerImplementation is the size of one implementation's matrix.
func (c RunConfig) TrialsPerImplementation() int {
	return len(c.Endpoints) * len(c.Connections)
}

func (c RunConfig) Validate() error {
	var errs []error
	if len(c.Implementations) != 2 {
		errs = append(errs, errors.Newf("exactly two implementations are required, got %d", len(c.Implementations)))
	} else {
		if c.Implementations[0].Label == c.Implementations[1].Label {
			errs = append(errs, errors.Newf("implementation labels must differ, both are %q", c.Implementations[0].Label))
		}
		for _, impl := range c.Implementations {
			if impl.Label == "" || impl.Binary == "" {
				errs = append(errs, errors.Newf("implementation %q needs both a label and a binary", impl.String()))
			}
		}
	}
	if len(c.Endpoints) == 0 {
		errs = append(errs, errors.New("at least one endpoint is required"))
	}
	for _, ep := range c.Endpoints {
		if !strings.HasPrefix(ep, "/") {
			errs = append(errs, errors.Newf("endpoint %q must start with /", ep))
		}
	}
	if len(c.Connections) == 0 {
		errs = append(errs, errors.New("at least one concurrency level is required"))
	}
	for _, n := range c.Connections {
		if n <= 0 {
			errs = append(errs, errors.Newf("concurrency level %d must be positive", n))
		}
	}
	if c.Threads <= 0 {
		errs = append(errs, errors.Newf("threads must be positive, got %d", c.Threads))
	}
	if c.Duration < time.Second {
		errs = append(errs, errors.Newf("duration must be at least 1s, got %s", c.Duration))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.Newf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.Newf("port %d out of range", c.Port))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	if c.Transport != TransportSSH && c.Transport != TransportLocal {
		errs = append(errs, errors.Newf("unknown transport %q (want %s or %s)", c.Transport, TransportSSH, TransportLocal))
	}
	if c.Transport == TransportSSH && c.Host == "" {
		errs = append(errs, errors.New("host is required for the ssh transport"))
	}
	for _, l := range [][2]string{{"generator", c.GeneratorLocation}, {"probe", c.ProbeLocation}} {
		if l[1] != LocationRemote && l[1] != LocationLocal {
			errs = append(errs, errors.Newf("%s location %q must be %s or %s", l[0], l[1], LocationRemote, LocationLocal))
		}
	}
	if c.Delays.Settle < 0 || c.Delays.WarmUp < 0 || c.Delays.Recovery < 0 {
		errs = append(errs, errors.New("delays cannot be negative"))
	}
	return errors.Join(errs...)
}

// DurationSeconds is the trial duration in whole seconds, as the generator expects it.
func (c RunConfig) DurationSeconds() int {
	return int(c.Duration / time.Second)
}

// TimeoutSeconds rounds the per-request timeout up to whole seconds.
func (c RunConfig) TimeoutSeconds() int {
	s := int((c.Timeout + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

type sshSnapshot struct {
	Port                  int    `yaml:"port"`
	IdentityFile          string `yaml:"identity_file,omitempty"`
	KnownHostsFile        string `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key"`
	DialTimeout           string `yaml:"dial_timeout"`
}

type delaysSnapshot struct {
	Settle   string `yaml:"settle"`
	WarmUp   string `yaml:"warm_up"`
	Recovery string `yaml:"recovery"`
}

// snapshot is RunConfig with durations spelled the way the config file accepts them.
type snapshot struct {
	Host              string           `yaml:"host"`
	User              string           `yaml:"user"`
	Transport         string           `yaml:"transport"`
	SSH               sshSnapshot      `yaml:"ssh"`
	ProjectPath       string           `yaml:"project_path"`
	Port              int              `yaml:"port"`
	BaseURL           string           `yaml:"base_url"`
	HealthPath        string           `yaml:"health_path"`
	Duration          string           `yaml:"duration"`
	Connections       []int            `yaml:"connections"`
	Threads           int              `yaml:"threads"`
	Endpoints         []string         `yaml:"endpoints"`
	Timeout           string           `yaml:"timeout"`
	OutputDir         string           `yaml:"output_dir"`
	Implementations   []Implementation `yaml:"implementations"`
	GeneratorLocation string           `yaml:"generator_location"`
	GeneratorTool     string           `yaml:"generator_tool"`
	ProbeLocation     string           `yaml:"probe_location"`
	RemoteTools       []string         `yaml:"remote_tools"`
	Delays            delaysSnapshot   `yaml:"delays"`
	Commands          Commands         `yaml:"commands"`
}

func (c RunConfig) snapshot() snapshot {
	return snapshot{
		Host:              c.Host,
		User:              c.User,
		Transport:         c.Transport,
		SSH: sshSnapshot{
			Port:                  c.SSH.Port,
			IdentityFile:          c.SSH.IdentityFile,
			KnownHostsFile:        c.SSH.KnownHostsFile,
			InsecureIgnoreHostKey: c.SSH.InsecureIgnoreHostKey,
			DialTimeout:           c.SSH.DialTimeout.String(),
		},
		ProjectPath:       c.ProjectPath,
		Port:              c.Port,
		BaseURL:           c.BaseURL,
		HealthPath:        c.HealthPath,
		Duration:          c.Duration.String(),
		Connections:       c.Connections,
		Threads:           c.Threads,
		Endpoints:         c.Endpoints,
		Timeout:           c.Timeout.String(),
		OutputDir:         c.OutputDir,
		Implementations:   c.Implementations,
		GeneratorLocation: c.GeneratorLocation,
		GeneratorTool:     c.GeneratorTool,
		ProbeLocation:     c.ProbeLocation,
		RemoteTools:       c.RemoteTools,
		Delays: delaysSnapshot{
			Settle:   c.Delays.Settle.String(),
			WarmUp:   c.Delays.WarmUp.String(),
			Recovery: c.Delays.Recovery.String(),
		},
		Commands: c.Commands,
	}
}

// WriteSnapshot persists the effective configuration next to the results.
// Credentials never appear in it; only the identity file path is part of the config.
func (c RunConfig) WriteSnapshot(path string) error {
	data, err := yaml.Marshal(c.snapshot())
	if err != nil {
		return errors.Wrap(err, "encoding config snapshot")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing config snapshot %s", path)
	}
	return nil
}
