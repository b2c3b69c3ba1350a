// Package report renders the comparison report for people (report.txt and the
// terminal) and for machines (summary.json).
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"duelbench/internal/runner"
	"duelbench/internal/stats"
	"duelbench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

const missing = "-"

// section is one titled table of the report
type section struct {
	title   string
	headers []string
	rows    [][]string
	// tone per row: >0 good, <0 bad, 0 neutral. Only colored on the console.
	tone []int
}

func sections(rep stats.Report) []section {
	a, b := rep.ImplA, rep.ImplB

	throughput := section{
		title:   "Throughput (mean requests/sec over all concurrency levels)",
		headers: []string{"Endpoint", a, b, "Diff " + a + " vs " + b},
	}
	levels := section{
		title: "Per concurrency level",
		headers: []string{
			"Endpoint", "Connections", a + " rps", b + " rps", a + " p99 ms", b + " p99 ms", b + "/" + a,
		},
	}
	levelLatency := section{
		title:   "Latency per concurrency level (mean ms)",
		headers: []string{"Endpoint", "Connections", "Implementation", "Avg", "p50", "p90", "p99"},
	}
	for _, ep := range rep.Endpoints {
		throughput.rows = append(throughput.rows, []string{ep.Endpoint, RPS(ep.MeanA), RPS(ep.MeanB), Diff(ep.DiffPct)})
		throughput.tone = append(throughput.tone, sign(ep.DiffPct))

		for _, lvl := range ep.Levels {
			conns := strconv.Itoa(lvl.Connections)
			levels.rows = append(levels.rows, []string{
				ep.Endpoint, conns, RPS(lvl.RPSA), RPS(lvl.RPSB),
				p99(lvl.LatencyA), p99(lvl.LatencyB), Ratio(lvl.Ratio),
			})
			levels.tone = append(levels.tone, 0)

			for _, side := range []struct {
				impl string
				lat  *stats.LevelLatency
			}{{a, lvl.LatencyA}, {b, lvl.LatencyB}} {
				if side.lat == nil {
					continue
				}
				levelLatency.rows = append(levelLatency.rows, []string{
					ep.Endpoint, conns, side.impl,
					Ms(side.lat.AvgMs), Ms(side.lat.P50Ms), Ms(side.lat.P90Ms), Ms(side.lat.P99Ms),
				})
				levelLatency.tone = append(levelLatency.tone, 0)
			}
		}
	}

	latency := section{
		title: "Latency and errors",
		headers: []string{
			"Implementation", "Endpoint", "Trials", "Avg ms", "p99 ms (mean)", "p99 ms (median)", "p99 ms (max)",
			"Requests", "Read errors", "Error rate",
		},
	}
	for _, l := range rep.Latency {
		latency.rows = append(latency.rows, []string{
			l.Implementation, l.Endpoint, strconv.Itoa(l.Trials),
			Ms(l.MeanAvgMs), Ms(l.MeanP99Ms), Ms(l.MedianP99Ms), Ms(l.MaxP99Ms),
			humanize.Comma(l.Requests), humanize.Comma(int64(l.ReadErrors)),
			fmt.Sprintf("%.2f%%", l.ErrorRatePct),
		})
		tone := 0
		if l.ReadErrors > 0 {
			tone = -1
		}
		latency.tone = append(latency.tone, tone)
	}

	return []section{throughput, levels, levelLatency, latency}
}

func p99(l *stats.LevelLatency) string {
	if l == nil {
		return missing
	}
	return Ms(l.P99Ms)
}

func heading(rep stats.Report) string {
	return fmt.Sprintf("Comparison report: %s vs %s", rep.ImplA, rep.ImplB)
}

// RenderText is the plain report persisted as report.txt.
func RenderText(rep stats.Report) string {
	var sb strings.Builder
	sb.WriteString(heading(rep))
	sb.WriteString("\n")
	for _, s := range sections(rep) {
		sb.WriteString("\n")
		sb.WriteString(s.title)
		sb.WriteString("\n")
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(s.headers...).
			Rows(s.rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 1)
			})
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderConsole is RenderText styled for a terminal.
func RenderConsole(rep stats.Report) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render(heading(rep)))
	sb.WriteString("\n")
	for _, s := range sections(rep) {
		s := s
		sb.WriteString("\n")
		sb.WriteString(styles.Subtle.Render(s.title))
		sb.WriteString("\n")
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
			Headers(s.headers...).
			Rows(s.rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				base := lipgloss.NewStyle().Padding(0, 1)
				if row == table.HeaderRow {
					return base.Foreground(styles.ColorPrimary).Bold(true)
				}
				if row < 0 || row >= len(s.tone) || col != len(s.headers)-1 {
					return base.Foreground(styles.ColorText)
				}
				switch {
				case s.tone[row] > 0:
					return base.Foreground(styles.ColorFaster)
				case s.tone[row] < 0:
					return base.Foreground(styles.ColorSlower)
				}
				return base.Foreground(styles.ColorText)
			})
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteText writes RenderText to path.
func WriteText(path string, rep stats.Report) error {
	if err := os.WriteFile(path, []byte(RenderText(rep)), 0644); err != nil {
		return errors.Wrapf(err, "writing report %s", path)
	}
	return nil
}

// WriteSummaryJSON writes the structured run summary.
func WriteSummaryJSON(path string, sum runner.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding summary")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing summary %s", path)
	}
	return nil
}

// RPS formats a mean throughput; a missing value prints as "-".
func RPS(v *float64) string {
	if v == nil {
		return missing
	}
	return humanize.CommafWithDigits(*v, 2)
}

// Diff is the signed percentage, "n/a" when undefined
func Diff(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func Ratio(v *float64) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf("%.2fx", *v)
}

func Ms(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func sign(v *float64) int {
	switch {
	case v == nil:
		return 0
	case *v > 0:
		return 1
	case *v < 0:
		return -1
	}
	return 0
}
