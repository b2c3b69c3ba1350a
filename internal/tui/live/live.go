package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"duelbench/internal/results"
	"duelbench/internal/runner"
	"duelbench/internal/tui/components"
	"duelbench/internal/tui/styles"
)

const recentRows = 8

type Model struct {
	Progress progress.Model

	RpsLine components.Sparkline
	P99Line components.Sparkline

	Phase          runner.Phase
	Implementation string
	Trial          *runner.Trial
	Completed      int
	Total          int
	Recent         []results.MetricRecord
	Skipped        []string
	LastErr        error

	// PerTrial is duration plus recovery, used for the remaining-time estimate.
	PerTrial  time.Duration
	StartTime time.Time

	Width  int
	Height int
}

func NewModel(total int, perTrial time.Duration) Model {
	return Model{
		Progress:  progress.New(progress.WithDefaultGradient()),
		RpsLine:   components.NewSparkline(40, "Requests/sec per trial", styles.Active),
		P99Line:   components.NewSparkline(40, "Latency p99 (ms)", styles.Warn),
		Total:     total,
		PerTrial:  perTrial,
		StartTime: time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.Event:
		if msg.Implementation != "" && msg.Implementation != m.Implementation {
			m.RpsLine.Reset()
			m.P99Line.Reset()
			m.Implementation = msg.Implementation
		}
		m.Phase = msg.Phase
		m.Completed = msg.Completed
		if msg.Total > 0 {
			m.Total = msg.Total
		}
		if msg.Trial != nil {
			m.Trial = msg.Trial
		}
		if msg.Phase == runner.PhaseSkipped {
			m.Skipped = append(m.Skipped, msg.Implementation)
		}
		if msg.Err != nil {
			m.LastErr = msg.Err
		}
		if msg.Row != nil {
			m.RpsLine.Add(msg.Row.RequestsPerSec)
			m.P99Line.Add(msg.Row.LatencyP99Ms)
			m.Recent = append(m.Recent, *msg.Row)
			if len(m.Recent) > recentRows {
				m.Recent = m.Recent[len(m.Recent)-recentRows:]
			}
		}
		return m, m.Progress.SetPercent(m.percent())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 6
		if half < 10 {
			half = 10
		}
		m.RpsLine.Width = half
		m.P99Line.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) percent() float64 {
	if m.Total == 0 {
		return 0
	}
	pct := float64(m.Completed) / float64(m.Total)
	if pct > 1.0 {
		pct = 1.0
	}
	return pct
}

// Remaining estimates the time left assuming every planned trial still runs.
func (m Model) Remaining() time.Duration {
	left := m.Total - m.Completed
	if left < 0 {
		left = 0
	}
	return time.Duration(left) * m.PerTrial
}

func (m Model) View() string {
	s := strings.Builder{}

	impl := m.Implementation
	if impl == "" {
		impl = "-"
	}
	trial := "-"
	if m.Trial != nil {
		trial = fmt.Sprintf("%s  c=%d", m.Trial.Endpoint, m.Trial.Connections)
	}

	phaseStyle := styles.Active
	switch m.Phase {
	case runner.PhaseSkipped, runner.PhaseFailed:
		phaseStyle = styles.Error
	case runner.PhaseDone:
		phaseStyle = styles.Success
	}

	col1 := fmt.Sprintf("PHASE: %s\nIMPL:  %s", phaseStyle.Render(m.Phase.String()), impl)
	col2 := fmt.Sprintf("TRIAL: %s\nDONE:  %d/%d", trial, m.Completed, m.Total)
	col3 := fmt.Sprintf("ELAPSED: %s\nLEFT:    ~%s",
		time.Since(m.StartTime).Round(time.Second), m.Remaining().Round(time.Second))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	// Sparklines
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.P99Line.View()),
	))
	s.WriteString("\n\n")

	if len(m.Recent) > 0 {
		var rows strings.Builder
		rows.WriteString(styles.Subtle.Render(fmt.Sprintf("%-14s %-10s %6s %12s %9s %9s  %s",
			"impl", "endpoint", "conns", "req/s", "avg ms", "p99 ms", "socket errors")))
		for _, r := range m.Recent {
			rows.WriteString("\n")
			rows.WriteString(fmt.Sprintf("%-14s %-10s %6d %12.2f %9.3f %9.3f  %s",
				r.Implementation, r.Endpoint, r.Connections, r.RequestsPerSec, r.LatencyAvgMs, r.LatencyP99Ms, r.SocketErrors))
		}
		s.WriteString(styles.Box.Render(rows.String()))
		s.WriteString("\n\n")
	}

	if len(m.Skipped) > 0 {
		s.WriteString(styles.Error.Render("Skipped (not healthy): " + strings.Join(m.Skipped, ", ")))
		s.WriteString("\n")
	}
	if m.LastErr != nil {
		s.WriteString(styles.Error.Render("Error: " + m.LastErr.Error()))
		s.WriteString("\n")
	}

	// Progress
	s.WriteString(m.Progress.View())

	return s.String()
}
