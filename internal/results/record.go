// Package results holds the per-trial rows of a run and the files they are
// written to.
package results

import (
	"fmt"
	"time"

	"duelbench/internal/parser"
)

// MetricRecord is one row of the result table: one trial, parsed.
type MetricRecord struct {
	Implementation string        `json:"implementation"`
	Endpoint       string        `json:"endpoint"`
	Connections    int           `json:"connections"`
	Threads        int           `json:"threads"`
	Duration       time.Duration `json:"duration"`
	Requests       int64         `json:"requests"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	LatencyAvgMs   float64       `json:"latency_avg_ms"`
	LatencyP50Ms   float64       `json:"latency_p50_ms"`
	LatencyP90Ms   float64       `json:"latency_p90_ms"`
	LatencyP99Ms   float64       `json:"latency_p99_ms"`
	TransferPerSec string        `json:"transfer_per_sec"`
	SocketErrors   string        `json:"socket_errors"`
}

// NewRecord annotates a parsed report with the trial it came from.
func NewRecord(impl, endpoint string, connections, threads int, duration time.Duration, r parser.Report) MetricRecord {
	return MetricRecord{
		Implementation: impl,
		Endpoint:       endpoint,
		Connections:    connections,
		Threads:        threads,
		Duration:       duration,
		Requests:       r.Requests,
		RequestsPerSec: r.RequestsPerSec,
		LatencyAvgMs:   r.LatencyAvgMs,
		LatencyP50Ms:   r.LatencyP50Ms,
		LatencyP90Ms:   r.LatencyP90Ms,
		LatencyP99Ms:   r.LatencyP99Ms,
		TransferPerSec: r.TransferPerSec,
		SocketErrors:   r.SocketErrors,
	}
}

// ReadErrors is the read-error count hidden in SocketErrors
func (m MetricRecord) ReadErrors() int {
	return parser.ReadErrors(m.SocketErrors)
}

func (m MetricRecord) String() string {
	return fmt.Sprintf("%s %s c=%d: %.2f req/s, avg %.3fms, p99 %.3fms",
		m.Implementation, m.Endpoint, m.Connections, m.RequestsPerSec, m.LatencyAvgMs, m.LatencyP99Ms)
}
