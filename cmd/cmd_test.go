package cmd

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duelbench/internal/config"
	"duelbench/internal/results"
	"duelbench/internal/storage"
)

func writeRows(t *testing.T, dir string, rows ...results.MetricRecord) string {
	t.Helper()
	path := filepath.Join(dir, "results.csv")
	w, err := results.NewCSVWriter(path)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	return path
}

func row(impl, endpoint string, rps float64) results.MetricRecord {
	return results.MetricRecord{
		Implementation: impl,
		Endpoint:       endpoint,
		Connections:    50,
		Threads:        4,
		RequestsPerSec: rps,
		LatencyP99Ms:   1.5,
	}
}

func TestRebuildReportUsesSnapshotOrder(t *testing.T) {
	dir := t.TempDir()
	writeRows(t, dir,
		row("hyper", "/health", 750),
		row("monoio", "/health", 1000),
	)
	cfg := config.Default()
	cfg.Implementations = []config.Implementation{
		{Label: "monoio", Binary: "monoio-http"},
		{Label: "hyper", Binary: "hyper-http"},
	}
	cfg.Endpoints = []string{"/health"}
	require.NoError(t, cfg.WriteSnapshot(filepath.Join(dir, "config.yaml")))

	rep, gotDir, err := rebuildReport(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, gotDir)
	assert.Equal(t, "monoio", rep.ImplA)
	assert.Equal(t, "hyper", rep.ImplB)
	require.Len(t, rep.Endpoints, 1)
	require.NotNil(t, rep.Endpoints[0].DiffPct)
	assert.InDelta(t, 33.333, *rep.Endpoints[0].DiffPct, 0.01)
}

func TestRebuildReportWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	csv := writeRows(t, dir,
		row("hyper", "/", 500),
		row("monoio", "/", 500),
	)

	rep, gotDir, err := rebuildReport(csv)
	require.NoError(t, err)
	assert.Equal(t, dir, gotDir)
	assert.Equal(t, "hyper", rep.ImplA)
	assert.Equal(t, "monoio", rep.ImplB)
}

func TestRebuildReportSingleImplementation(t *testing.T) {
	csv := writeRows(t, t.TempDir(), row("hyper", "/", 500))

	rep, _, err := rebuildReport(csv)
	require.NoError(t, err)
	assert.Equal(t, "hyper", rep.ImplA)
	assert.Empty(t, rep.ImplB)
	require.Len(t, rep.Endpoints, 1)
	assert.Nil(t, rep.Endpoints[0].MeanB)
	assert.Nil(t, rep.Endpoints[0].DiffPct)
}

func TestRebuildReportTooManyImplementations(t *testing.T) {
	csv := writeRows(t, t.TempDir(),
		row("a", "/", 1), row("b", "/", 1), row("c", "/", 1))

	_, _, err := rebuildReport(csv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 implementations")
}

func TestRebuildReportMissingPath(t *testing.T) {
	_, _, err := rebuildReport(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestBindFlagsOnlySetFlagsOverride(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader("host: from-file\nport: 9000\n")))

	f := pflag.NewFlagSet("run", pflag.ContinueOnError)
	f.String("host", "localhost", "")
	f.Int("port", 8080, "")
	require.NoError(t, bindFlags(v, f, map[string]string{"host": config.KeyHost, "port": config.KeyPort}))
	require.NoError(t, f.Parse([]string{"--host", "from-flag"}))

	assert.Equal(t, "from-flag", v.GetString(config.KeyHost))
	assert.Equal(t, 9000, v.GetInt(config.KeyPort))
}

func TestBindFlagsUnknownFlag(t *testing.T) {
	f := pflag.NewFlagSet("run", pflag.ContinueOnError)
	err := bindFlags(viper.New(), f, map[string]string{"missing": config.KeyHost})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--missing")
}

func TestRunFlagsAllBound(t *testing.T) {
	cmd := makeRunCommand()
	for flag := range runFlagKeys {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestHistoryDelete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := storage.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(storage.HistoryItem{ID: "run-1", Timestamp: time.Now()}))
	require.NoError(t, store.Save(storage.HistoryItem{ID: "run-2", Timestamp: time.Now()}))
	require.NoError(t, store.Close())

	cmd := makeHistoryCommand()
	cmd.SetArgs([]string{"--history-db", dbPath, "--delete", "run-1"})
	require.NoError(t, cmd.Execute())

	store, err = storage.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Get("run-1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = store.Get("run-2")
	assert.NoError(t, err)
}

func TestHistoryDeleteUnknownRun(t *testing.T) {
	cmd := makeHistoryCommand()
	cmd.SetArgs([]string{"--history-db", filepath.Join(t.TempDir(), "history.db"), "--delete", "nope"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestHistoryDeleteNeedsID(t *testing.T) {
	cmd := makeHistoryCommand()
	cmd.SetArgs([]string{"--history-db", filepath.Join(t.TempDir(), "history.db"), "--delete"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs the id")
}
