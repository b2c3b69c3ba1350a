package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"duelbench/internal/report"
	"duelbench/internal/storage"
	"duelbench/internal/tui/app"
	"duelbench/internal/tui/history"
	"duelbench/internal/tui/styles"
)

func makeHistoryCommand() *cobra.Command {
	var (
		dbPath    string
		useTUI    bool
		deleteRun bool
		limit     int
	)
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			p, err := storage.DefaultPath()
			if err != nil {
				return err
			}
			dbPath = p
		}
		store, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if deleteRun {
			if len(args) != 1 {
				return errors.New("--delete needs the id of the run to remove")
			}
			if _, err := store.Get(args[0]); err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted run %s\n", args[0])
			return nil
		}

		if len(args) == 1 {
			item, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Run %s on %s at %s\nOutput: %s\n\n", item.ID, item.Host, item.Timestamp.Local().Format("2006-01-02 15:04:05"), item.OutputDir)
			if item.Failed != "" {
				fmt.Println(styles.Error.Render("Aborted: " + item.Failed))
			}
			fmt.Println(report.RenderConsole(item.Report))
			return nil
		}

		if useTUI {
			p := tea.NewProgram(app.NewModel(app.Options{History: store, ExportDir: "."}), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return errors.Wrap(err, "running terminal UI")
			}
			return nil
		}

		items, err := store.List()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
			Headers("ID", "Time", "Host", "Implementations", "Rows", "Diff (first endpoint)", "Status")
		for i, row := range history.Rows(items) {
			t.Row(append([]string{items[i].ID}, row...)...)
		}
		fmt.Println(t.String())
		return nil
	}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show the report of one.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCmdFunc,
	}
	cmd.Flags().StringVar(&dbPath, "history-db", "", "run history database (default ~/.duelbench/history.db)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "browse the history interactively")
	cmd.Flags().BoolVar(&deleteRun, "delete", false, "remove the given run from the history")
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many runs; 0 for all")
	return cmd
}
