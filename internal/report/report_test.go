package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"duelbench/internal/results"
	"duelbench/internal/runner"
	"duelbench/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() stats.Report {
	var rows []results.MetricRecord
	for i, rps := range []float64{100, 200, 300} {
		rows = append(rows, results.MetricRecord{Implementation: "monoio-http", Endpoint: "/", Connections: (i + 1) * 10, RequestsPerSec: rps, Requests: 3000, SocketErrors: "0"})
		rows = append(rows, results.MetricRecord{Implementation: "hyper-http", Endpoint: "/", Connections: (i + 1) * 10, RequestsPerSec: 150, Requests: 3000, SocketErrors: "connect 0, read 30, write 0, timeout 0"})
	}
	rows = append(rows, results.MetricRecord{Implementation: "monoio-http", Endpoint: "/health", Connections: 10, RequestsPerSec: 1234.5, SocketErrors: "0"})
	return stats.Compare(rows, "monoio-http", "hyper-http", []string{"/", "/health"})
}

func TestRenderText(t *testing.T) {
	out := RenderText(sampleReport())

	assert.Contains(t, out, "Comparison report: monoio-http vs hyper-http")
	assert.Contains(t, out, "+33.33%")
	assert.Contains(t, out, "n/a", "hyper-http has no /health rows")
	assert.Contains(t, out, "1,234.5")
	assert.Contains(t, out, "0.75x")
	assert.Contains(t, out, "Read errors")
	assert.NotContains(t, out, "\x1b[", "plain text carries no escape codes")
}

func TestRenderTextLevelLatency(t *testing.T) {
	rows := []results.MetricRecord{
		{Implementation: "monoio-http", Endpoint: "/", Connections: 10, RequestsPerSec: 100,
			LatencyAvgMs: 1.25, LatencyP50Ms: 1.125, LatencyP90Ms: 2.5, LatencyP99Ms: 7.75, SocketErrors: "0"},
		{Implementation: "hyper-http", Endpoint: "/", Connections: 10, RequestsPerSec: 100,
			LatencyAvgMs: 3.5, LatencyP50Ms: 3.25, LatencyP90Ms: 4.5, LatencyP99Ms: 11.5, SocketErrors: "0"},
	}
	out := RenderText(stats.Compare(rows, "monoio-http", "hyper-http", []string{"/"}))

	assert.Contains(t, out, "Latency per concurrency level (mean ms)")
	assert.Contains(t, out, "monoio-http p99 ms")
	for _, v := range []string{"1.250", "1.125", "2.500", "7.750", "3.500", "3.250", "4.500", "11.500"} {
		assert.Contains(t, out, v)
	}
}

func TestRenderConsoleHasSameContent(t *testing.T) {
	out := RenderConsole(sampleReport())
	assert.Contains(t, out, "+33.33%")
	assert.Contains(t, out, "Throughput")
}

func TestFormatters(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	assert.Equal(t, "-", RPS(nil))
	assert.Equal(t, "12,345.67", RPS(v(12345.671)))
	assert.Equal(t, "n/a", Diff(nil))
	assert.Equal(t, "-12.50%", Diff(v(-12.5)))
	assert.Equal(t, "+0.00%", Diff(v(0)))
	assert.Equal(t, "1.50x", Ratio(v(1.5)))
	assert.Equal(t, "0.812", Ms(0.8121))
}

func TestWriteTextAndSummary(t *testing.T) {
	dir := t.TempDir()
	rep := sampleReport()

	require.NoError(t, WriteText(filepath.Join(dir, "report.txt"), rep))
	data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, RenderText(rep), string(data))

	sum := runner.Summary{
		RunID:     "c7f9e3a0-0000-4000-8000-000000000000",
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Report:    rep,
		Succeeded: map[string]bool{"monoio-http": true, "hyper-http": true},
	}
	path := filepath.Join(dir, "summary.json")
	require.NoError(t, WriteSummaryJSON(path, sum))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, sum.RunID, decoded["run_id"])

	rpt := decoded["report"].(map[string]any)
	eps := rpt["endpoints"].([]any)
	health := eps[1].(map[string]any)
	assert.Nil(t, health["diff_pct"], "an undefined difference is null, not infinity")
}

func TestWriteTextBadPath(t *testing.T) {
	err := WriteText(filepath.Join(t.TempDir(), "missing", "report.txt"), sampleReport())
	assert.Error(t, err)
}
