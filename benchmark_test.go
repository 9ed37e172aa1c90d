package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/aggregate"
	"github.com/VForWaTer/tool-vforwater-loader/config"
	"github.com/VForWaTer/tool-vforwater-loader/csv"
	"github.com/VForWaTer/tool-vforwater-loader/dataset"
	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/VForWaTer/tool-vforwater-loader/db/duckdb"
	"github.com/VForWaTer/tool-vforwater-loader/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

var (
	store *duckdb.DuckDB

	// Two years of hourly discharge values.
	testData = generateTestData(2 * 365 * 24)
)

// Sets up logger and store before running tests.
func TestMain(m *testing.M) {
	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(logHandler))

	directory, err := os.MkdirTemp("", "vforwater-loader-benchmark")
	if err != nil {
		log.ErrorCause(err, "failed to create store directory")
		os.Exit(1)
	}

	store, err = duckdb.NewDuckDB(duckdb.Options{Path: filepath.Join(directory, "benchmark.duckdb")})
	if err != nil {
		log.ErrorCause(err, "failed to initialize store")
		os.Exit(1)
	}

	code := m.Run()

	if err := store.Close(); err != nil {
		log.ErrorCause(err, "failed to close store")
	}
	os.RemoveAll(directory)
	os.Exit(code)
}

func BenchmarkIngestion(b *testing.B) {
	schema := newSchema("ingestion", 1)
	withTestTable(b, schema, false, func() {
		for i := 0; i < b.N; i++ {
			if _, err := store.AppendRows(context.Background(), schema, newTestReader(b)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkTemporalAggregation(b *testing.B) {
	schema := newSchema("aggregation", 2)
	withTestTable(b, schema, true, func() {
		for i := 0; i < b.N; i++ {
			if _, err := store.RunMacro(
				context.Background(),
				db.MacroName(schema.TableName, db.ScaleTemporal),
				db.StringLiteral("month"),
			); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkConcurrentAggregations(b *testing.B) {
	const concurrentAggregations = 64

	schema := newSchema("concurrent_aggregation", 3)
	withTestTable(b, schema, true, func() {
		// SetParallelism multiplies its argument by GOMAXPROCS
		b.SetParallelism(max(concurrentAggregations/runtime.GOMAXPROCS(0), 1))

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := store.RunMacro(
					context.Background(),
					db.MacroName(schema.TableName, db.ScaleTemporal),
					db.StringLiteral("day"),
				); err != nil {
					b.Fatal(err)
				}
			}
		})
	})
}

func BenchmarkEnsureTable(b *testing.B) {
	schema := newSchema("ensure_table", 4)

	for i := 0; i < b.N; i++ {
		if _, err := store.EnsureTable(context.Background(), schema); err != nil {
			b.Fatal(wrap.Errorf(err, "failed to create table no. %d", i))
		}

		b.StopTimer()
		if _, err := store.DropTable(context.Background(), schema.TableName); err != nil {
			b.Fatal(wrap.Errorf(err, "failed to clean up table '%s'", schema.TableName))
		}
		b.StartTimer()
	}
}

func TestRun(t *testing.T) {
	conf, err := config.ReadFromEnv()
	require.NoError(t, err)

	conf.Paths.BasePath = t.TempDir()
	conf.Store.SpatialExtension = false
	conf.Store.UseNativeGeometry = false
	conf.Aggregation.Scales = "temporal"
	conf.Aggregation.Precision = "month"
	conf.Workers = 2

	for _, id := range []int{1, 2} {
		dataPath := filepath.Join(conf.DatasetPath(), fmt.Sprintf("discharge_%d", id), "part-0.csv")
		require.NoError(t, os.MkdirAll(filepath.Dir(dataPath), 0o755))
		require.NoError(t, os.WriteFile(dataPath, generateTestData(24*60), 0o644))
	}
	writeMappings(t, conf, []dataset.FileMapping{
		testMapping(conf, 1),
		testMapping(conf, 2),
	})

	require.NoError(t, run(context.Background(), conf, false))

	for _, name := range []string{
		"discharge_1_temporal_aggs", "discharge_2_temporal_aggs", "mean_temporal_aggs",
	} {
		assert.FileExists(t, filepath.Join(conf.ResultPath(), name+results.FileExtension))
	}

	content, err := os.ReadFile(filepath.Join(conf.ResultPath(), aggregate.ProcessingLogFile))
	require.NoError(t, err)
	var processingLog struct {
		Ingestion struct {
			Tables []string `json:"tables"`
		} `json:"ingestion"`
		Aggregation []struct {
			FanInTables []string `json:"fanInTables"`
		} `json:"aggregation"`
		ResultFiles []string `json:"resultFiles"`
	}
	require.NoError(t, json.Unmarshal(content, &processingLog))
	assert.Equal(t, []string{"discharge_1", "discharge_2"}, processingLog.Ingestion.Tables)
	require.Len(t, processingLog.Aggregation, 1)
	assert.Equal(t, []string{"discharge_1", "discharge_2"}, processingLog.Aggregation[0].FanInTables)
	assert.Len(t, processingLog.ResultFiles, 3)

	// A second run against the same store only aggregates.
	require.NoError(t, run(context.Background(), conf, true))
}

func TestRunWithNothingToDo(t *testing.T) {
	conf, err := config.ReadFromEnv()
	require.NoError(t, err)

	conf.Paths.BasePath = t.TempDir()
	conf.Store.SpatialExtension = false
	conf.Store.UseNativeGeometry = false
	conf.Aggregation.Scales = "none"
	writeMappings(t, conf, nil)

	assert.ErrorIs(t, run(context.Background(), conf, false), errNothingToDo)
	assert.FileExists(t, filepath.Join(conf.ResultPath(), aggregate.ProcessingLogFile))
}

func newSchema(variable string, id int) db.TableSchema {
	return db.TableSchema{
		TableName:  db.TableName(variable, id),
		Dimensions: db.Dimensions{Temporal: []string{"tstamp"}, Variables: []string{"q"}},
	}
}

func testMapping(conf config.Config, id int) dataset.FileMapping {
	return dataset.FileMapping{
		Descriptor: dataset.Descriptor{
			ID:            id,
			VariableName:  "discharge",
			TemporalDims:  []string{"tstamp"},
			VariableNames: []string{"q"},
		},
		DataPath: filepath.Join(conf.DatasetPath(), fmt.Sprintf("discharge_%d", id)),
	}
}

func writeMappings(t *testing.T, conf config.Config, mappings []dataset.FileMapping) {
	t.Helper()

	if mappings == nil {
		mappings = []dataset.FileMapping{}
	}
	encoded, err := json.Marshal(mappings)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(conf.DatasetPath(), 0o755))
	require.NoError(t, os.WriteFile(conf.FileMappingsPath(), encoded, 0o644))
}

func generateTestData(hours int) []byte {
	var buffer bytes.Buffer
	buffer.WriteString("tstamp,q\n")

	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < hours; i++ {
		fmt.Fprintf(&buffer, "%s,%.3f\n", start.Add(time.Duration(i)*time.Hour).Format(time.DateTime), float64(i%97)/7)
	}
	return buffer.Bytes()
}

func newTestReader(b *testing.B) db.DataSource {
	reader, err := csv.NewReader(bytes.NewReader(testData))
	if err != nil {
		b.Fatal(wrap.Error(err, "failed to create reader for CSV test data"))
	}
	return reader
}

func withTestTable(b *testing.B, schema db.TableSchema, withData bool, benchmark func()) {
	if _, err := store.EnsureTable(context.Background(), schema); err != nil {
		b.Fatal(wrap.Errorf(err, "failed to create table '%s'", schema.TableName))
	}
	defer func() {
		if _, err := store.DropTable(context.Background(), schema.TableName); err != nil {
			b.Fatal(wrap.Errorf(err, "failed to clean up table '%s' after benchmark", schema.TableName))
		}
	}()

	if withData {
		if _, err := store.AppendRows(context.Background(), schema, newTestReader(b)); err != nil {
			b.Fatal(wrap.Errorf(err, "failed to insert test data in table '%s'", schema.TableName))
		}

		macro, _, err := db.BuildMacro(schema, db.ScaleTemporal, db.MacroOptions{})
		if err != nil {
			b.Fatal(err)
		}
		if err := store.RegisterMacro(context.Background(), macro); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	benchmark()
	b.StopTimer()
}
