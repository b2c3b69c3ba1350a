package results

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Sink receives every row as it is appended
type Sink interface {
	Write(MetricRecord) error
	Close() error
}

// Table is the append-only result table. Insertion order is execution order.
type Table struct {
	mu    sync.Mutex
	rows  []MetricRecord
	sinks []Sink
}

func NewTable(sinks ...Sink) *Table {
	return &Table{sinks: sinks}
}

// Append stores the row and mirrors it to every sink. The row is kept even if
// a sink fails; the first sink error is returned.
func (t *Table) Append(r MetricRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append(t.rows, r)
	var errs []error
	for _, s := range t.sinks {
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rows returns a copy
func (t *Table) Rows() []MetricRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]MetricRecord, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Filter returns the rows of one implementation and endpoint, in order.
func (t *Table) Filter(impl, endpoint string) []MetricRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []MetricRecord
	for _, r := range t.rows {
		if r.Implementation == impl && r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

// Close closes every sink
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.sinks = nil
	return errors.Join(errs...)
}
