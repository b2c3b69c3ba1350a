package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"duelbench/internal/report"
	"duelbench/internal/runner"
)

// Start runs r without a TUI. One progress line is printed per finished
// trial, next to the running log.
func Start(ctx context.Context, r *runner.Runner, updates runner.EventChan, out io.Writer) (runner.Summary, error) {
	type outcome struct {
		sum runner.Summary
		err error
	}
	done := make(chan outcome, 1)

	// Start Runner
	go func() {
		sum, err := r.Run(ctx)
		done <- outcome{sum, err}
	}()

	for {
		select {
		case e := <-updates:
			printEvent(out, e)
		case res := <-done:
			// Drain updates
			for drained := false; !drained; {
				select {
				case e := <-updates:
					printEvent(out, e)
				default:
					drained = true
				}
			}
			return res.sum, res.err
		}
	}
}

func printEvent(out io.Writer, e runner.Event) {
	switch {
	case e.Row != nil:
		pct := 0.0
		if e.Total > 0 {
			pct = float64(e.Completed) / float64(e.Total)
		}
		fmt.Fprintf(out, "%s %3.0f%% | %d/%d | %s %s c=%d | RPS: %s | p99: %.3f ms | Err: %s\n",
			progressBar(pct, 20), pct*100,
			e.Completed, e.Total,
			e.Row.Implementation, e.Row.Endpoint, e.Row.Connections,
			report.RPS(&e.Row.RequestsPerSec),
			e.Row.LatencyP99Ms,
			e.Row.SocketErrors,
		)
	case e.Phase == runner.PhaseSkipped:
		fmt.Fprintf(out, "!! %s skipped: %s\n", e.Implementation, e.Message)
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary prints the outcome of a run and where its files are.
func PrintSummary(out io.Writer, sum runner.Summary, runErr error) {
	fmt.Fprintf(out, "\n\nCOMPARISON RESULTS\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Run ID         : %s\n", sum.RunID)
	if !sum.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Total Duration : %s\n", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Trials         : %d of %d planned\n", len(sum.Rows), sum.Planned)
	for label, ok := range sum.Succeeded {
		if !ok {
			fmt.Fprintf(out, "Skipped        : %s (server not healthy)\n", label)
		}
	}
	fmt.Fprintf(out, "Output         : %s\n", sum.OutputDir)
	if runErr != nil {
		fmt.Fprintf(out, "\nRUN ABORTED: %v\n", runErr)
	}
	fmt.Fprintf(out, "======================================================================\n\n")

	if len(sum.Report.Endpoints) > 0 {
		fmt.Fprintln(out, report.RenderConsole(sum.Report))
	}
}
