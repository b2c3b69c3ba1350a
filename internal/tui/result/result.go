package result

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"duelbench/internal/report"
	"duelbench/internal/runner"
	"duelbench/internal/tui/styles"
)

type Model struct {
	Summary runner.Summary
	Err     error

	Width  int
	Height int
}

func NewModel(sum runner.Summary, err error) Model {
	return Model{Summary: sum, Err: err}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	if m.Err != nil {
		s.WriteString(styles.Title.Render("Run aborted"))
		s.WriteString("\n\n")
		s.WriteString(styles.Error.Render(m.Err.Error()))
		s.WriteString("\n\n")
	} else {
		s.WriteString(styles.Title.Render("Run complete"))
		s.WriteString("\n\n")
	}

	// 1. Overview
	sum := m.Summary
	labels := make([]string, 0, len(sum.Succeeded))
	for label := range sum.Succeeded {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	var status []string
	for _, label := range labels {
		if sum.Succeeded[label] {
			status = append(status, styles.Success.Render(label+" ok"))
		} else {
			status = append(status, styles.Error.Render(label+" skipped"))
		}
	}

	overview := fmt.Sprintf(
		"Run:     %s\nRows:    %d of %d planned\nElapsed: %s\nOutput:  %s\nStatus:  %s",
		sum.RunID, len(sum.Rows), sum.Planned,
		sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second), sum.OutputDir,
		strings.Join(status, "  "),
	)
	s.WriteString(styles.Box.Render(overview))
	s.WriteString("\n\n")

	// 2. Comparison
	if len(sum.Report.Endpoints) > 0 {
		s.WriteString(report.RenderConsole(sum.Report))
		s.WriteString("\n")
	}

	s.WriteString(styles.Subtle.Render("Press q to quit"))

	return s.String()
}
