// Package storage keeps a history of finished runs in a bbolt database.
package storage

import (
	"time"

	"duelbench/internal/config"
	"duelbench/internal/results"
	"duelbench/internal/runner"
	"duelbench/internal/stats"
)

type HistoryItem struct {
	ID              string                 `json:"id"`
	Timestamp       time.Time              `json:"timestamp"`
	Finished        time.Time              `json:"finished"`
	OutputDir       string                 `json:"output_dir"`
	Host            string                 `json:"host"`
	Implementations []string               `json:"implementations"`
	Planned         int                    `json:"planned"`
	Succeeded       map[string]bool        `json:"succeeded"`
	Failed          string                 `json:"failed,omitempty"`
	Rows            []results.MetricRecord `json:"rows"`
	Report          stats.Report           `json:"report"`
}

// FromSummary records a run. runErr is the fatal error, if the run aborted.
func FromSummary(sum runner.Summary, impls []config.Implementation, runErr error) HistoryItem {
	item := HistoryItem{
		ID:        sum.RunID,
		Timestamp: sum.StartedAt,
		Finished:  sum.FinishedAt,
		OutputDir: sum.OutputDir,
		Host:      sum.Host,
		Planned:   sum.Planned,
		Succeeded: sum.Succeeded,
		Rows:      sum.Rows,
		Report:    sum.Report,
	}
	for _, impl := range impls {
		item.Implementations = append(item.Implementations, impl.Label)
	}
	if runErr != nil {
		item.Failed = runErr.Error()
	}
	return item
}

// Trials is the number of rows the run produced
func (h HistoryItem) Trials() int { return len(h.Rows) }

// Elapsed is zero for runs that never finished
func (h HistoryItem) Elapsed() time.Duration {
	if h.Finished.IsZero() {
		return 0
	}
	return h.Finished.Sub(h.Timestamp)
}
