package results

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/VForWaTer/tool-vforwater-loader/metrics"
	"github.com/parquet-go/parquet-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spatioTemporalResult() db.ResultTable {
	day := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	return db.ResultTable{
		Columns: []string{"time", "x", "y", "mean", "count", "histogram"},
		Rows: [][]any{
			{day, 0.0, 1000.0, 1.5, int64(4), map[string]any{"1.5": int64(4)}},
			{day, 1000.0, 1000.0, nil, int64(0), nil},
		},
	}
}

func openParquet(t *testing.T, path string) *parquet.File {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	info, err := file.Stat()
	require.NoError(t, err)

	parquetFile, err := parquet.OpenFile(file, info.Size())
	require.NoError(t, err)
	return parquetFile
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pr_3_spatiotemporal_aggs"+FileExtension)
	require.NoError(t, WriteParquet(path, spatioTemporalResult()))

	file := openParquet(t, path)
	assert.EqualValues(t, 2, file.NumRows())

	var fields []string
	for _, field := range file.Schema().Fields() {
		fields = append(fields, field.Name())
		assert.True(t, field.Optional(), "field %s", field.Name())
	}
	assert.ElementsMatch(t, []string{"time", "x", "y", "mean", "count", "histogram"}, fields)
}

func TestWriteParquetEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty"+FileExtension)
	require.NoError(t, WriteParquet(path, db.ResultTable{Columns: []string{"time", "mean"}}))

	file := openParquet(t, path)
	assert.EqualValues(t, 0, file.NumRows())
}

func TestWriteParquetMixedColumn(t *testing.T) {
	table := db.ResultTable{
		Columns: []string{"mean"},
		Rows:    [][]any{{1.5}, {"oops"}},
	}
	err := WriteParquet(filepath.Join(t.TempDir(), "mixed"+FileExtension), table)
	assert.ErrorContains(t, err, "row 1")
}

func TestDispatcher(t *testing.T) {
	directory := t.TempDir()
	successes := testutil.ToFloat64(metrics.ResultFilesWrittenTotal.WithLabelValues(metrics.StatusSuccess))

	dispatcher := NewDispatcher(directory, 2)
	for _, name := range []string{"a_1_temporal_aggs", "b_2_temporal_aggs", "mean_temporal_aggs"} {
		dispatcher.Submit(context.Background(), name, spatioTemporalResult())
	}

	written, err := dispatcher.Wait()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(directory, "a_1_temporal_aggs.parquet"),
		filepath.Join(directory, "b_2_temporal_aggs.parquet"),
		filepath.Join(directory, "mean_temporal_aggs.parquet"),
	}, written)
	for _, path := range written {
		assert.FileExists(t, path)
	}

	assert.Equal(
		t,
		successes+3,
		testutil.ToFloat64(metrics.ResultFilesWrittenTotal.WithLabelValues(metrics.StatusSuccess)),
	)
}

func TestDispatcherCancelled(t *testing.T) {
	directory := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dispatcher := NewDispatcher(directory, 1)
	dispatcher.Submit(ctx, "late", spatioTemporalResult())

	written, err := dispatcher.Wait()
	assert.Error(t, err)
	assert.Empty(t, written)
	assert.NoFileExists(t, filepath.Join(directory, "late.parquet"))
}

func TestDispatcherCollectsFailures(t *testing.T) {
	directory := t.TempDir()
	bad := db.ResultTable{Columns: []string{"v"}, Rows: [][]any{{struct{}{}}}}

	dispatcher := NewDispatcher(directory, 2)
	dispatcher.Submit(context.Background(), "bad", bad)
	dispatcher.Submit(context.Background(), "good", spatioTemporalResult())

	written, err := dispatcher.Wait()
	assert.ErrorContains(t, err, "1 result file writes failed")
	assert.Equal(t, []string{filepath.Join(directory, "good.parquet")}, written)
}
