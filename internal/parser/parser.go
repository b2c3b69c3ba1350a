// Package parser turns the text report of one load-generator run into numbers.
//
// The generator's output is an unstable external contract. Every assumption
// about its layout lives in this file.
package parser

import (
	"math"
	"strconv"
	"strings"
)

// Labels recognised in the generator's report
const (
	labelThreadStats  = "Thread Stats"
	labelLatency      = "Latency"
	labelDistribution = "Distribution"
	labelRequestsIn   = "requests in"
	labelRequestsSec  = "Requests/sec:"
	labelTransferSec  = "Transfer/sec:"
	labelSocketErrors = "Socket errors:"
)

// Report is everything a single run's text yields. Missing sections leave zero values.
type Report struct {
	Requests       int64
	RequestsPerSec float64
	LatencyAvgMs   float64
	LatencyP50Ms   float64
	LatencyP90Ms   float64
	LatencyP99Ms   float64
	TransferPerSec string
	SocketErrors   string
}

// Parse never fails; a section it cannot find keeps its zero value.
func Parse(raw string) Report {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	r := Report{SocketErrors: "0"}
	avg := findAvgLatency(lines)
	p50, p90, p99 := findPercentiles(lines)

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch {
		case strings.Contains(line, labelRequestsIn):
			r.Requests = parseInt(fields[0])
		case strings.Contains(line, labelRequestsSec):
			r.RequestsPerSec = parseFloat(tokenAfter(fields, labelRequestsSec))
		case strings.Contains(line, labelTransferSec):
			r.TransferPerSec = tokenAfter(fields, labelTransferSec)
		case strings.Contains(line, labelSocketErrors):
			idx := strings.Index(line, labelSocketErrors)
			r.SocketErrors = strings.TrimSpace(line[idx+len(labelSocketErrors):])
		}
	}

	r.LatencyAvgMs = NormalizeLatency(avg)
	r.LatencyP50Ms = NormalizeLatency(p50)
	r.LatencyP90Ms = NormalizeLatency(p90)
	r.LatencyP99Ms = NormalizeLatency(p99)
	return r
}

// findAvgLatency returns the second column of the "Latency" row, preferring the
// one under "Thread Stats".
func findAvgLatency(lines []string) string {
	var inThreadStats bool
	var fallback string
	for _, line := range lines {
		if strings.Contains(line, labelThreadStats) {
			inThreadStats = true
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != labelLatency || fields[1] == labelDistribution {
			continue
		}
		if inThreadStats {
			return fields[1]
		}
		if fallback == "" {
			fallback = fields[1]
		}
	}
	return fallback
}

// findPercentiles reads 50%/90%/99% from the "Latency Distribution" block.
// Absent values come back as "0".
func findPercentiles(lines []string) (p50, p90, p99 string) {
	start := 0
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == labelLatency && fields[1] == labelDistribution {
			start = i + 1
			break
		}
	}

	found := map[string]string{}
	for _, line := range lines[start:] {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "50%", "90%", "99%":
			if _, ok := found[fields[0]]; !ok {
				found[fields[0]] = fields[1]
			}
		}
	}

	get := func(label string) string {
		if v, ok := found[label]; ok {
			return v
		}
		return "0"
	}
	return get("50%"), get("90%"), get("99%")
}

// NormalizeLatency converts a latency token to milliseconds using its last two
// characters as the unit. Anything unrecognised is read as milliseconds once the
// two characters are dropped, so "1.20s" becomes 1.2 rather than 1200.
func NormalizeLatency(value string) float64 {
	if value == "" {
		return 0
	}
	if len(value) < 2 {
		return 0
	}

	number, suffix := value[:len(value)-2], value[len(value)-2:]
	n, ok := parseNumber(number)
	if !ok {
		return 0
	}

	var ms float64
	switch suffix {
	case "us":
		ms = round3(n / 1000)
	case "ms":
		ms = n
	case "s ":
		ms = round3(n * 1000)
	default:
		ms = n
	}
	if ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0
	}
	return ms
}

// ReadErrors pulls N out of "... read N, ..." in the socket errors text.
func ReadErrors(socketErrors string) int {
	s := strings.TrimSpace(socketErrors)
	if s == "" || s == "0" {
		return 0
	}
	_, after, found := strings.Cut(s, "read ")
	if !found {
		return 0
	}
	count, _, _ := strings.Cut(after, ",")
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func tokenAfter(fields []string, label string) string {
	for i, f := range fields {
		if f == label && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func parseFloat(s string) float64 {
	n, ok := parseNumber(s)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
