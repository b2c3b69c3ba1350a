// Package stats derives the comparison report from the result table.
// Everything here is a pure function of the rows.
package stats

import (
	"sort"

	"duelbench/internal/results"
)

// Report compares implementation A against B
type Report struct {
	ImplA     string               `json:"impl_a"`
	ImplB     string               `json:"impl_b"`
	Endpoints []EndpointComparison `json:"endpoints"`
	Latency   []LatencySummary     `json:"latency"`
}

// EndpointComparison holds the mean requests/sec of each implementation on one
// endpoint. A nil mean means the implementation has no rows there; a nil
// DiffPct means the difference is undefined.
type EndpointComparison struct {
	Endpoint string            `json:"endpoint"`
	MeanA    *float64          `json:"mean_rps_a"`
	MeanB    *float64          `json:"mean_rps_b"`
	DiffPct  *float64          `json:"diff_pct"`
	Levels   []LevelComparison `json:"levels"`
}

// LevelComparison is one concurrency level. Ratio is B/A, "B is Nx faster than A".
// Latencies are nil for an implementation without rows at the level.
type LevelComparison struct {
	Connections int           `json:"connections"`
	RPSA        *float64      `json:"rps_a"`
	RPSB        *float64      `json:"rps_b"`
	Ratio       *float64      `json:"ratio"`
	LatencyA    *LevelLatency `json:"latency_a"`
	LatencyB    *LevelLatency `json:"latency_b"`
}

// LevelLatency holds the mean of each latency column over the trials at one
// level, in milliseconds.
type LevelLatency struct {
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P90Ms float64 `json:"p90_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// LatencySummary aggregates one implementation on one endpoint
type LatencySummary struct {
	Implementation string  `json:"implementation"`
	Endpoint       string  `json:"endpoint"`
	Trials         int     `json:"trials"`
	MeanAvgMs      float64 `json:"mean_avg_ms"`
	MeanP99Ms      float64 `json:"mean_p99_ms"`
	MedianP99Ms    float64 `json:"median_p99_ms"`
	MaxP99Ms       float64 `json:"max_p99_ms"`
	Requests       int64   `json:"requests"`
	ReadErrors     int     `json:"read_errors"`
	ErrorRatePct   float64 `json:"error_rate_pct"`
	// ClampedP99 counts p99 values beyond 10 minutes, recorded as 10 minutes
	// in the median and max.
	ClampedP99 int `json:"clamped_p99,omitempty"`
}

// Compare builds the report. Endpoints come in the given order, followed by
// any other endpoint present in rows, sorted.
func Compare(rows []results.MetricRecord, implA, implB string, endpoints []string) Report {
	rep := Report{ImplA: implA, ImplB: implB}

	for _, ep := range orderedEndpoints(rows, endpoints) {
		a := filter(rows, implA, ep)
		b := filter(rows, implB, ep)

		cmp := EndpointComparison{
			Endpoint: ep,
			MeanA:    Mean(rps(a)),
			MeanB:    Mean(rps(b)),
		}
		cmp.DiffPct = PercentDiff(cmp.MeanA, cmp.MeanB)

		for _, c := range connectionLevels(a, b) {
			la, lb := atLevel(a, c), atLevel(b, c)
			lvl := LevelComparison{
				Connections: c,
				RPSA:        Mean(rps(la)),
				RPSB:        Mean(rps(lb)),
				LatencyA:    levelLatency(la),
				LatencyB:    levelLatency(lb),
			}
			if lvl.RPSA != nil && lvl.RPSB != nil && *lvl.RPSA > 0 && *lvl.RPSB > 0 {
				ratio := *lvl.RPSB / *lvl.RPSA
				lvl.Ratio = &ratio
			}
			cmp.Levels = append(cmp.Levels, lvl)
		}
		rep.Endpoints = append(rep.Endpoints, cmp)

		for _, impl := range []struct {
			name string
			rows []results.MetricRecord
		}{{implA, a}, {implB, b}} {
			if len(impl.rows) > 0 {
				rep.Latency = append(rep.Latency, Summarize(impl.name, ep, impl.rows))
			}
		}
	}
	return rep
}

// Implementations lists the implementation labels in rows in order of first appearance.
func Implementations(rows []results.MetricRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		if !seen[r.Implementation] {
			seen[r.Implementation] = true
			out = append(out, r.Implementation)
		}
	}
	return out
}

// Mean is the arithmetic mean, nil for no values
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

// PercentDiff is (a-b)/b*100, or nil when either side is missing or b is zero.
func PercentDiff(a, b *float64) *float64 {
	if a == nil || b == nil || *b == 0 {
		return nil
	}
	d := (*a - *b) / *b * 100
	return &d
}

// Summarize aggregates the latency and error columns of rows
func Summarize(impl, endpoint string, rows []results.MetricRecord) LatencySummary {
	s := LatencySummary{Implementation: impl, Endpoint: endpoint, Trials: len(rows)}
	if len(rows) == 0 {
		return s
	}

	p99 := NewSafeHistogram()
	var avgSum, p99Sum, rateSum float64
	var rated int
	for _, r := range rows {
		avgSum += r.LatencyAvgMs
		p99Sum += r.LatencyP99Ms
		if p99.RecordMs(r.LatencyP99Ms) {
			s.ClampedP99++
		}

		read := r.ReadErrors()
		s.Requests += r.Requests
		s.ReadErrors += read
		if total := r.Requests + int64(read); total > 0 {
			rateSum += float64(read) / float64(total) * 100
			rated++
		}
	}
	s.MeanAvgMs = avgSum / float64(len(rows))
	s.MeanP99Ms = p99Sum / float64(len(rows))
	s.MedianP99Ms = p99.QuantileMs(50)
	s.MaxP99Ms = p99.MaxMs()
	if rated > 0 {
		s.ErrorRatePct = rateSum / float64(rated)
	}
	return s
}

func orderedEndpoints(rows []results.MetricRecord, configured []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, ep := range configured {
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	var extra []string
	for _, r := range rows {
		if !seen[r.Endpoint] {
			seen[r.Endpoint] = true
			extra = append(extra, r.Endpoint)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func filter(rows []results.MetricRecord, impl, endpoint string) []results.MetricRecord {
	var out []results.MetricRecord
	for _, r := range rows {
		if r.Implementation == impl && r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

func atLevel(rows []results.MetricRecord, connections int) []results.MetricRecord {
	var out []results.MetricRecord
	for _, r := range rows {
		if r.Connections == connections {
			out = append(out, r)
		}
	}
	return out
}

func levelLatency(rows []results.MetricRecord) *LevelLatency {
	if len(rows) == 0 {
		return nil
	}
	var l LevelLatency
	for _, r := range rows {
		l.AvgMs += r.LatencyAvgMs
		l.P50Ms += r.LatencyP50Ms
		l.P90Ms += r.LatencyP90Ms
		l.P99Ms += r.LatencyP99Ms
	}
	n := float64(len(rows))
	l.AvgMs /= n
	l.P50Ms /= n
	l.P90Ms /= n
	l.P99Ms /= n
	return &l
}

func rps(rows []results.MetricRecord) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.RequestsPerSec
	}
	return out
}

func connectionLevels(sets ...[]results.MetricRecord) []int {
	seen := map[int]bool{}
	var out []int
	for _, rows := range sets {
		for _, r := range rows {
			if !seen[r.Connections] {
				seen[r.Connections] = true
				out = append(out, r.Connections)
			}
		}
	}
	sort.Ints(out)
	return out
}
