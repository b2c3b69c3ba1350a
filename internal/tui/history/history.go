package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"duelbench/internal/report"
	"duelbench/internal/storage"
	"duelbench/internal/tui/styles"
)

// Lister is the part of the store the browser needs
type Lister interface {
	List() ([]storage.HistoryItem, error)
}

type Model struct {
	Store Lister
	Table table.Model
	Items []storage.HistoryItem
	Err   error

	// Detail is the run opened with enter; nil shows the list.
	Detail *storage.HistoryItem

	Width  int
	Height int
}

func NewModel(store Lister) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Host", Width: 18},
		{Title: "Implementations", Width: 28},
		{Title: "Rows", Width: 9},
		{Title: "Diff (first endpoint)", Width: 22},
		{Title: "Status", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

// Rows renders items as table rows
func Rows(items []storage.HistoryItem) []table.Row {
	rows := make([]table.Row, len(items))
	for i, item := range items {
		diff := "n/a"
		if len(item.Report.Endpoints) > 0 {
			ep := item.Report.Endpoints[0]
			diff = ep.Endpoint + " " + report.Diff(ep.DiffPct)
		}
		status := "ok"
		if item.Failed != "" {
			status = "aborted"
		}
		rows[i] = table.Row{
			item.Timestamp.Local().Format("2006-01-02 15:04:05"),
			item.Host,
			strings.Join(item.Implementations, " vs "),
			fmt.Sprintf("%d/%d", item.Trials(), item.Planned),
			diff,
			status,
		}
	}
	return rows
}

func (m *Model) Refresh() {
	if m.Store == nil {
		return
	}
	items, err := m.Store.List()
	m.Items, m.Err = items, err
	m.Table.SetRows(Rows(items))
}

func (m Model) GetSelectedItem() *storage.HistoryItem {
	if m.Detail != nil {
		return m.Detail
	}
	idx := m.Table.Cursor()
	if idx < 0 || idx >= len(m.Items) {
		return nil
	}
	item := m.Items[idx]
	return &item
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		if msg.Height > 12 {
			m.Table.SetHeight(msg.Height - 12)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if m.Detail == nil {
				m.Detail = m.GetSelectedItem()
			}
			return m, nil
		case "esc", "backspace":
			m.Detail = nil
			return m, nil
		}
	}

	if m.Detail != nil {
		return m, nil
	}
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Err != nil {
		return styles.Error.Render("history unavailable: " + m.Err.Error())
	}
	if m.Detail != nil {
		item := m.Detail
		head := fmt.Sprintf("Run %s on %s, %s (%s)\nOutput: %s",
			item.ID, item.Host, item.Timestamp.Local().Format(time.RFC822), item.Elapsed().Round(time.Second), item.OutputDir)
		if item.Failed != "" {
			head += "\n" + styles.Error.Render("Aborted: "+item.Failed)
		}
		return styles.Box.Render(head) + "\n\n" + report.RenderConsole(item.Report) + "\n" +
			styles.Subtle.Render("esc to go back")
	}
	if len(m.Items) == 0 {
		return styles.Subtle.Render("No runs recorded yet.")
	}
	return styles.Box.Render(m.Table.View())
}
