package app

import (
	"path/filepath"

	"duelbench/internal/results"
)

// ExportRows writes rows to <dir>/<name>.csv and <dir>/<name>.jsonl through
// the same writers a run uses, and returns the common path prefix.
func ExportRows(dir, name string, rows []results.MetricRecord) (string, error) {
	base := filepath.Join(dir, name)

	csvw, err := results.NewCSVWriter(base + ".csv")
	if err != nil {
		return "", err
	}
	jsonw, err := results.NewJSONLWriter(base + ".jsonl")
	if err != nil {
		csvw.Close()
		return "", err
	}

	table := results.NewTable(csvw, jsonw)
	for _, r := range rows {
		if err := table.Append(r); err != nil {
			table.Close()
			return "", err
		}
	}
	return base, table.Close()
}
