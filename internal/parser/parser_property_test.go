package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// Every recognised suffix scales the number the documented way.
func TestProperty_NormalizeKnownSuffixes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Float64Range(0, 1e6).Draw(t, "n")
		text := strconv.FormatFloat(n, 'f', 2, 64)
		v, _ := strconv.ParseFloat(text, 64)

		if got := NormalizeLatency(text + "ms"); got != v {
			t.Fatalf("ms: got %v want %v", got, v)
		}
		us := rapid.IntRange(0, 1e7).Draw(t, "us")
		if got, want := NormalizeLatency(strconv.Itoa(us)+"us"), float64(us)/1000; math.Abs(got-want) > 1e-9 {
			t.Fatalf("us: got %v want %v", got, want)
		}
		if got, want := NormalizeLatency(text+"s "), math.Round(v*1e6)/1000; math.Abs(got-want) > 1e-6 {
			t.Fatalf("s: got %v want %v", got, want)
		}
	})
}

// Arbitrary input never panics and never yields a negative latency.
func TestProperty_NormalizeNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.String().Draw(t, "in")
		got := NormalizeLatency(in)
		if got < 0 || math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("NormalizeLatency(%q) = %v", in, got)
		}
	})
}

// An unknown two-character suffix falls back to the stripped prefix as milliseconds.
func TestProperty_NormalizeFallback(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 100000).Draw(t, "n")
		suffix := rapid.SampledFrom([]string{"xx", "0s", "mm", "KB", "%%"}).Draw(t, "suffix")
		in := fmt.Sprintf("%d%s", n, suffix)
		if got := NormalizeLatency(in); got != float64(n) {
			t.Fatalf("NormalizeLatency(%q) = %v, want %d", in, got, n)
		}
	})
}

// Parse tolerates anything and keeps its defaults.
func TestProperty_ParseTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		r := Parse(raw)
		if r.Requests < 0 || r.RequestsPerSec < 0 {
			t.Fatalf("negative counters from %q: %+v", raw, r)
		}
		for _, v := range []float64{r.LatencyAvgMs, r.LatencyP50Ms, r.LatencyP90Ms, r.LatencyP99Ms} {
			if v < 0 {
				t.Fatalf("negative latency from %q: %+v", raw, r)
			}
		}
		if r.SocketErrors == "" && !strings.Contains(raw, labelSocketErrors) {
			t.Fatalf("socket errors lost their default for %q", raw)
		}
	})
}
