package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TimestampFormat names each run directory
const TimestampFormat = "20060102-150405"

// Layout is the on-disk shape of one run's output directory.
type Layout struct {
	Root string
}

// NewLayout creates <root>/<timestamp>/ and its raw/ subdirectory.
func NewLayout(root string, now time.Time) (Layout, error) {
	l := Layout{Root: filepath.Join(root, now.Format(TimestampFormat))}
	if err := os.MkdirAll(l.RawDir(), 0755); err != nil {
		return Layout{}, errors.Wrapf(err, "creating output directory %s", l.Root)
	}
	return l, nil
}

func (l Layout) CSV() string     { return filepath.Join(l.Root, "results.csv") }
func (l Layout) JSONL() string   { return filepath.Join(l.Root, "results.jsonl") }
func (l Layout) Log() string     { return filepath.Join(l.Root, "benchmark.log") }
func (l Layout) Config() string  { return filepath.Join(l.Root, "config.yaml") }
func (l Layout) Report() string  { return filepath.Join(l.Root, "report.txt") }
func (l Layout) Summary() string { return filepath.Join(l.Root, "summary.json") }
func (l Layout) RawDir() string  { return filepath.Join(l.Root, "raw") }
func (l Layout) ServerLog(binary string) string {
	return filepath.Join(l.Root, binary+".log")
}

// RawOutput is the artifact for one trial: impl, endpoint with "/" as "_", connections.
func (l Layout) RawOutput(impl, endpoint string, connections int) string {
	return filepath.Join(l.RawDir(), RawName(impl, endpoint, connections))
}

func RawName(impl, endpoint string, connections int) string {
	return fmt.Sprintf("%s_%s_%dc.txt", impl, strings.ReplaceAll(endpoint, "/", "_"), connections)
}

// OpenSinks creates the CSV and JSONL writers for a table.
func (l Layout) OpenSinks() ([]Sink, error) {
	csvw, err := NewCSVWriter(l.CSV())
	if err != nil {
		return nil, err
	}
	jsonw, err := NewJSONLWriter(l.JSONL())
	if err != nil {
		csvw.Close()
		return nil, err
	}
	return []Sink{csvw, jsonw}, nil
}
