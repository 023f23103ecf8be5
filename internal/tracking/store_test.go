package tracking

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	runID, err := store.StartRun(ctx, "insurance-cost", "linear_regression")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, store.LogParams(ctx, runID, map[string]interface{}{
		"n_estimators": 100,
		"max_depth":    3,
	}))
	require.NoError(t, store.LogMetrics(ctx, runID, map[string]float64{
		"train_rmse": 4500.5,
		"train_r2":   0.87,
	}))
	require.NoError(t, store.FinishRun(ctx, runID, "finished"))

	runs, err := store.Runs(ctx, "insurance-cost")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "linear_regression", runs[0].Name)
	assert.Equal(t, "finished", runs[0].Status)

	values, err := store.Metrics(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 4500.5, values["train_rmse"])
	assert.Equal(t, 0.87, values["train_r2"])
}

func TestStoreMetricsReplace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	runID, err := store.StartRun(ctx, "exp", "model")
	require.NoError(t, err)

	require.NoError(t, store.LogMetrics(ctx, runID, map[string]float64{"rmse": 10}))
	require.NoError(t, store.LogMetrics(ctx, runID, map[string]float64{"rmse": 5}))

	values, err := store.Metrics(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, values["rmse"])
}

func TestStoreSeparatesExperiments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.StartRun(ctx, "exp-a", "m1")
	require.NoError(t, err)
	_, err = store.StartRun(ctx, "exp-b", "m2")
	require.NoError(t, err)

	runs, err := store.Runs(ctx, "exp-a")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "m1", runs[0].Name)
}

func TestStoreRequiresPath(t *testing.T) {
	_, err := NewStore("")
	require.Error(t, err)
}
