package results

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Header is the results.csv header, in column order.
var Header = []string{
	"implementation", "endpoint", "connections", "threads", "duration",
	"requests", "requests_per_sec",
	"latency_avg_ms", "latency_p50_ms", "latency_p90_ms", "latency_p99_ms",
	"transfer_per_sec", "socket_errors",
}

// CSVWriter appends rows to results.csv, flushing after each one.
type CSVWriter struct {
	file *os.File
	mu   sync.Mutex
}

// NewCSVWriter creates the file (overwriting it) and writes the header.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	if _, err := io.WriteString(f, strings.Join(Header, ",")+"\n"); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "writing header to %s", path)
	}
	return &CSVWriter{file: f}, nil
}

// Write is safe for concurrent use
func (cw *CSVWriter) Write(r MetricRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	line, err := FormatRow(r)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(cw.file, line); err != nil {
		return errors.Wrap(err, "writing csv row")
	}
	return cw.file.Sync()
}

func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.file.Close()
}

// FormatRow renders one CSV line. socket_errors is always quoted; every other
// field is quoted only when it has to be.
func FormatRow(r MetricRecord) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{
		r.Implementation,
		r.Endpoint,
		strconv.Itoa(r.Connections),
		strconv.Itoa(r.Threads),
		formatDuration(r.Duration),
		strconv.FormatInt(r.Requests, 10),
		formatFloat(r.RequestsPerSec),
		formatFloat(r.LatencyAvgMs),
		formatFloat(r.LatencyP50Ms),
		formatFloat(r.LatencyP90Ms),
		formatFloat(r.LatencyP99Ms),
		r.TransferPerSec,
	}); err != nil {
		return "", errors.Wrap(err, "encoding csv row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "encoding csv row")
	}

	head := strings.TrimRight(buf.String(), "\r\n")
	return head + `,"` + strings.ReplaceAll(r.SocketErrors, `"`, `""`) + "\"\n", nil
}

// ReadCSV loads a results file written by CSVWriter
func ReadCSV(path string) ([]MetricRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(records) == 0 {
		return nil, errors.Newf("%s is empty", path)
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range Header {
		if _, ok := col[name]; !ok {
			return nil, errors.Newf("%s: missing column %q", path, name)
		}
	}

	rows := make([]MetricRecord, 0, len(records)-1)
	for i, rec := range records[1:] {
		get := func(name string) string { return rec[col[name]] }
		line := i + 2

		var r MetricRecord
		var perr error
		parseInt := func(name string) int {
			n, err := strconv.Atoi(get(name))
			if err != nil && perr == nil {
				perr = errors.Wrapf(err, "%s line %d: %s", path, line, name)
			}
			return n
		}
		parseFloat := func(name string) float64 {
			n, err := strconv.ParseFloat(get(name), 64)
			if err != nil && perr == nil {
				perr = errors.Wrapf(err, "%s line %d: %s", path, line, name)
			}
			return n
		}

		r.Implementation = get("implementation")
		r.Endpoint = get("endpoint")
		r.Connections = parseInt("connections")
		r.Threads = parseInt("threads")
		r.Duration = parseDuration(get("duration"))
		r.Requests = int64(parseInt("requests"))
		r.RequestsPerSec = parseFloat("requests_per_sec")
		r.LatencyAvgMs = parseFloat("latency_avg_ms")
		r.LatencyP50Ms = parseFloat("latency_p50_ms")
		r.LatencyP90Ms = parseFloat("latency_p90_ms")
		r.LatencyP99Ms = parseFloat("latency_p99_ms")
		r.TransferPerSec = get("transfer_per_sec")
		r.SocketErrors = get("socket_errors")
		if perr != nil {
			return nil, perr
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// durations are written the way the generator takes them: whole seconds, "30s"
func formatDuration(d time.Duration) string {
	return strconv.Itoa(int(d/time.Second)) + "s"
}

func parseDuration(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
