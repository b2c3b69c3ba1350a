package app

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"duelbench/internal/runner"
	"duelbench/internal/tui/history"
	"duelbench/internal/tui/live"
	"duelbench/internal/tui/result"
	"duelbench/internal/tui/styles"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// RunDoneMsg is sent once Runner.Run has returned.
type RunDoneMsg struct {
	Summary runner.Summary
	Err     error
}

// View Enum
type ViewID int

const (
	ViewLive ViewID = iota
	ViewResult
	ViewHistory
)

type Options struct {
	// Updates is the runner's event channel; nil opens the history browser only.
	Updates  runner.EventChan
	Total    int
	PerTrial time.Duration
	History  history.Lister
	// ExportDir receives ctrl+p exports
	ExportDir string
}

type Model struct {
	Updates   runner.EventChan
	ExportDir string

	RunActive bool
	Done      *RunDoneMsg

	// Layout
	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	LiveView    live.Model
	ResultView  result.Model
	HistoryView history.Model

	// Feedback
	StatusMsg string
}

func NewModel(opts Options) Model {
	m := Model{
		Updates:     opts.Updates,
		ExportDir:   opts.ExportDir,
		CurrentView: ViewLive,
		MenuItems:   []string{"[1] Live", "[2] Result", "[3] History"},
		LiveView:    live.NewModel(opts.Total, opts.PerTrial),
		HistoryView: history.NewModel(opts.History),
		RunActive:   opts.Updates != nil,
	}
	if opts.Updates == nil {
		m.CurrentView = ViewHistory
		m.MenuItems = []string{"", "", "History"}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.Updates == nil {
		return nil
	}
	return waitForUpdate(m.Updates)
}

func waitForUpdate(sub runner.EventChan) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.RunActive {
				m.StatusMsg = "Run in progress; ctrl+c abandons it."
				return m, clearStatusCmd()
			}
			return m, tea.Quit

		case "tab":
			if m.Updates == nil {
				return m, nil
			}
			m.CurrentView++
			if m.CurrentView > ViewHistory {
				m.CurrentView = ViewLive
			}
			if m.CurrentView == ViewResult && m.Done == nil {
				m.CurrentView = ViewHistory
			}
			if m.CurrentView == ViewHistory {
				m.HistoryView.Refresh()
			}
			return m, nil

		case "ctrl+p":
			return m.export()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		sized := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 7}

		var c tea.Cmd
		m.LiveView, c = m.LiveView.Update(sized)
		cmds = append(cmds, c)
		m.ResultView, _ = m.ResultView.Update(sized)
		m.HistoryView, c = m.HistoryView.Update(sized)
		cmds = append(cmds, c)
		return m, tea.Batch(cmds...)

	case runner.Event:
		var c tea.Cmd
		m.LiveView, c = m.LiveView.Update(msg)
		cmds = append(cmds, c)
		if m.RunActive {
			cmds = append(cmds, waitForUpdate(m.Updates))
		}
		return m, tea.Batch(cmds...)

	case RunDoneMsg:
		m.RunActive = false
		m.Done = &msg
		m.ResultView = result.NewModel(msg.Summary, msg.Err)
		m.ResultView, _ = m.ResultView.Update(tea.WindowSizeMsg{Width: m.Width, Height: m.Height - 7})
		m.HistoryView.Refresh()
		m.CurrentView = ViewResult
		return m, nil
	}

	// Forward everything else (keys, progress frames) to the active view
	var defaultCmd tea.Cmd
	switch m.CurrentView {
	case ViewLive:
		m.LiveView, defaultCmd = m.LiveView.Update(msg)
	case ViewResult:
		m.ResultView, defaultCmd = m.ResultView.Update(msg)
	case ViewHistory:
		m.HistoryView, defaultCmd = m.HistoryView.Update(msg)
	}
	cmds = append(cmds, defaultCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) export() (tea.Model, tea.Cmd) {
	var base string
	var err error
	switch m.CurrentView {
	case ViewResult:
		if m.Done == nil || len(m.Done.Summary.Rows) == 0 {
			m.StatusMsg = "No results to export yet."
			return m, clearStatusCmd()
		}
		base, err = ExportRows(m.ExportDir, "duelbench_"+m.Done.Summary.RunID, m.Done.Summary.Rows)
	case ViewHistory:
		item := m.HistoryView.GetSelectedItem()
		if item == nil {
			return m, nil
		}
		base, err = ExportRows(m.ExportDir, "duelbench_history_"+item.ID, item.Rows)
	default:
		return m, nil
	}

	if err != nil {
		m.StatusMsg = fmt.Sprintf("Export Failed: %v", err)
	} else {
		m.StatusMsg = fmt.Sprintf("Exported to %s.{csv,jsonl}", base)
	}
	return m, clearStatusCmd()
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if item == "" {
			continue
		}
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	contentStr := ""
	switch m.CurrentView {
	case ViewLive:
		contentStr = m.LiveView.View()
	case ViewResult:
		contentStr = m.ResultView.View()
	case ViewHistory:
		contentStr = m.HistoryView.View()
	}

	content := styles.Panel.Width(m.Width - 2).Height(m.Height - 6).Render(contentStr)

	keys := []string{
		styles.RenderKey("Tab", "View"),
		styles.RenderKey("Enter", "Open"),
		styles.RenderKey("Ctrl+P", "Export"),
		styles.RenderKey("q", "Quit"),
	}
	footer := styles.FooterBase.Width(m.Width).Render(strings.Join(keys, "   "))

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorHighlight).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}
