package history

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractaudit/pkg/models"
)

func openStore(t *testing.T, maxRuns int) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"), maxRuns, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func summary(id string, clean bool) *RunSummary {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &RunSummary{
		RunID:      id,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Categories: map[string]int{models.CategoryHashMismatch: 0},
		Clean:      clean,
	}
	if !clean {
		s.Total = 1
		s.Categories[models.CategoryHashMismatch] = 1
	}
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	store := openStore(t, 0)

	require.NoError(t, store.Record(summary("a", true)))
	require.NoError(t, store.Record(summary("b", false)))
	require.NoError(t, store.Record(summary("c", true)))

	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// 最新的在前
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "a", runs[2].RunID)
	assert.Equal(t, 3*time.Second, runs[0].Duration())

	limited, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "c", latest.RunID)

	found, err := store.Get("b")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 1, found.Categories[models.CategoryHashMismatch])

	missing, err := store.Get("zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Pruning(t *testing.T) {
	store := openStore(t, 2)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Record(summary(id, true)))
	}

	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "d", runs[0].RunID)
	assert.Equal(t, "c", runs[1].RunID)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.TotalRuns)
	assert.Equal(t, uint64(4), stats.CleanRuns)
	assert.Equal(t, 2, stats.Stored)
}

func TestStore_EmptyLatest(t *testing.T) {
	store := openStore(t, 10)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestStore_Reopen(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewStore(path, 0, logger)
	require.NoError(t, err)
	require.NoError(t, store.Record(summary("a", false)))
	require.NoError(t, store.Close())

	store, err = NewStore(path, 0, logger)
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalRuns)
	assert.Equal(t, uint64(0), stats.CleanRuns)
	assert.Equal(t, path, store.Path())
}

func TestNewSummary(t *testing.T) {
	started := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	report := &models.DiscrepancyReport{
		RunID:       "run-1",
		GeneratedAt: started.Add(time.Minute),
		MissingFromChain: []models.MissingFromChain{
			{CodeID: "4", Name: "Vault"},
		},
	}

	s := NewSummary(report, started)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 1, s.Total)
	assert.False(t, s.Clean)
	assert.Equal(t, 1, s.Categories[models.CategoryMissingFromChain])
	assert.Equal(t, time.Minute, s.Duration())

	failed := NewFailedSummary("run-2", started, errors.New("boom"))
	assert.Equal(t, "boom", failed.Error)
	assert.False(t, failed.Clean)
}
