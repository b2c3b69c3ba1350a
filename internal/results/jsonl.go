package results

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// JSONLWriter writes one JSON object per row
type JSONLWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return &JSONLWriter{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

func (jw *JSONLWriter) Write(r MetricRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.encoder.Encode(r)
}

func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.file.Close()
}
