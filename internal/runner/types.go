package runner

import (
	"fmt"
	"time"

	"duelbench/internal/config"
	"duelbench/internal/results"
	"duelbench/internal/stats"
)

// Trial is one (implementation, endpoint, connections) execution
type Trial struct {
	Implementation config.Implementation
	Endpoint       string
	Connections    int
}

func (t Trial) String() string {
	return fmt.Sprintf("%s %s c=%d", t.Implementation.Label, t.Endpoint, t.Connections)
}

// Trials expands the matrix for one implementation: endpoint outer, connections inner.
func Trials(cfg config.RunConfig, impl config.Implementation) []Trial {
	out := make([]Trial, 0, cfg.TrialsPerImplementation())
	for _, ep := range cfg.Endpoints {
		for _, c := range cfg.Connections {
			out = append(out, Trial{Implementation: impl, Endpoint: ep, Connections: c})
		}
	}
	return out
}

type Phase int

const (
	PhaseConnectivity Phase = iota
	PhasePreflight
	PhaseBuild
	PhaseCleanup
	PhaseStarting
	PhaseHealth
	PhaseTrial
	PhaseStopping
	PhaseSkipped
	PhaseReport
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	"connectivity", "preflight", "build", "cleanup", "starting", "health",
	"trial", "stopping", "skipped", "report", "done", "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Event is a progress snapshot for the UI
type Event struct {
	At             time.Time
	Phase          Phase
	Implementation string
	Trial          *Trial
	// Row is set once a trial has been parsed and stored.
	Row       *results.MetricRecord
	Completed int
	Total     int
	Message   string
	Err       error
}

// EventChan is the channel type
type EventChan chan Event

// Summary is what a finished (or aborted) run leaves behind.
type Summary struct {
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	OutputDir  string                 `json:"output_dir"`
	Host       string                 `json:"host"`
	Planned    int                    `json:"planned_trials"`
	Rows       []results.MetricRecord `json:"rows"`
	Report     stats.Report           `json:"report"`
	// Succeeded maps implementation label to whether its trials ran.
	Succeeded map[string]bool `json:"succeeded"`
}
