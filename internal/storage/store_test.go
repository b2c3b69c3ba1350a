package storage

import (
	"path/filepath"
	"testing"
	"time"

	"duelbench/internal/config"
	"duelbench/internal/results"
	"duelbench/internal/runner"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func item(id string, at time.Time) HistoryItem {
	return HistoryItem{
		ID:              id,
		Timestamp:       at,
		Host:            "bench-01",
		Implementations: []string{"monoio-http", "hyper-http"},
		Rows:            []results.MetricRecord{{Implementation: "monoio-http", Endpoint: "/", Connections: 10, RequestsPerSec: 100}},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(item("run-1", at)))

	got, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "bench-01", got.Host)
	assert.True(t, at.Equal(got.Timestamp))
	assert.Equal(t, 1, got.Trials())
	assert.InDelta(t, 100, got.Rows[0].RequestsPerSec, 1e-9)
}

func TestGetUnknown(t *testing.T) {
	s := openStore(t)
	_, err := s.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// keys sort opposite to time on purpose
	require.NoError(t, s.Save(item("a", base.Add(2*time.Hour))))
	require.NoError(t, s.Save(item("b", base)))
	require.NoError(t, s.Save(item("c", base.Add(time.Hour))))

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)
	assert.Equal(t, "b", items[2].ID)
}

func TestSaveRequiresID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Save(HistoryItem{}))
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(item("run-1", time.Now())))
	require.NoError(t, s.Delete("run-1"))
	require.NoError(t, s.Delete("run-1"))

	items, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(item("run-1", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	items, err := s.List()
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, path, s.Path())
}

func TestFromSummary(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sum := runner.Summary{
		RunID:      "run-9",
		StartedAt:  start,
		FinishedAt: start.Add(5 * time.Minute),
		Host:       "bench-01",
		Planned:    24,
		Succeeded:  map[string]bool{"monoio-http": false},
	}
	impls := config.Default().Implementations

	h := FromSummary(sum, impls, errors.New("remote build failed"))
	assert.Equal(t, "run-9", h.ID)
	assert.Equal(t, []string{"monoio-http", "hyper-http"}, h.Implementations)
	assert.Equal(t, "remote build failed", h.Failed)
	assert.Equal(t, 5*time.Minute, h.Elapsed())
	assert.Zero(t, HistoryItem{Timestamp: start}.Elapsed())
}
