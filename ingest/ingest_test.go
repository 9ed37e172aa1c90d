package ingest

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/VForWaTer/tool-vforwater-loader/dataset"
	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records what the ingestor asks of it. Parquet inserts report a fixed row count.
type fakeStore struct {
	lock          sync.Mutex
	tables        map[string]db.TableSchema
	appendedRows  map[string][][]string
	macros        []string
	metadataPaths []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:       make(map[string]db.TableSchema),
		appendedRows: make(map[string][][]string),
	}
}

func (store *fakeStore) TableExists(_ context.Context, table string) (bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()
	_, ok := store.tables[table]
	return ok, nil
}

func (store *fakeStore) EnsureTable(_ context.Context, schema db.TableSchema) (bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()
	if _, ok := store.tables[schema.TableName]; ok {
		return false, nil
	}
	store.tables[schema.TableName] = schema
	return true, nil
}

func (store *fakeStore) InsertFromFile(context.Context, db.TableSchema, string) (int64, error) {
	return 5, nil
}

func (store *fakeStore) AppendRows(_ context.Context, schema db.TableSchema, data db.DataSource) (int64, error) {
	var rows [][]string
	for {
		row, _, done, err := data.ReadRow()
		if err != nil {
			return 0, err
		}
		if done {
			break
		}
		rows = append(rows, slices.Clone(row))
	}

	store.lock.Lock()
	defer store.lock.Unlock()
	store.appendedRows[schema.TableName] = append(store.appendedRows[schema.TableName], rows...)
	return int64(len(rows)), nil
}

func (store *fakeStore) RegisterMacro(_ context.Context, macro db.Macro) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.macros = append(store.macros, macro.Name)
	return nil
}

func (store *fakeStore) ListMacroNames(context.Context) ([]string, error) {
	store.lock.Lock()
	defer store.lock.Unlock()
	names := slices.Clone(store.macros)
	slices.Sort(names)
	return names, nil
}

func (store *fakeStore) RunMacro(context.Context, string, ...db.Expr) (db.ResultTable, error) {
	return db.ResultTable{}, nil
}

func (store *fakeStore) LoadMetadata(_ context.Context, paths []string) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.metadataPaths = append(store.metadataPaths, paths...)
	return nil
}

func (store *fakeStore) Close() error {
	return nil
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func precipitationMapping(dataPath string) dataset.FileMapping {
	return dataset.FileMapping{
		Descriptor: dataset.Descriptor{
			ID:            3,
			VariableName:  "pr",
			SpatialDims:   []string{"lon", "lat"},
			TemporalDims:  []string{"time"},
			VariableNames: []string{"pr"},
		},
		DataPath: dataPath,
	}
}

func TestLoaderFor(t *testing.T) {
	loader, err := LoaderFor("/data/pr_3/part-0.parquet")
	require.NoError(t, err)
	assert.Equal(t, LoaderParquet, loader)

	loader, err = LoaderFor("/data/stations.CSV")
	require.NoError(t, err)
	assert.Equal(t, LoaderCSV, loader)

	for _, path := range []string{"a.nc", "b.tif", "c.geotiff"} {
		_, err := LoaderFor(path)
		assert.ErrorIs(t, err, ErrUnsupportedFileType, path)
	}

	_, err = LoaderFor("readme.txt")
	assert.ErrorIs(t, err, ErrUnknownFileType)
}

func TestExpandPath(t *testing.T) {
	directory := t.TempDir()
	writeFile(t, filepath.Join(directory, "b.parquet"), "")
	writeFile(t, filepath.Join(directory, "nested", "a.csv"), "")
	writeFile(t, filepath.Join(directory, "a.parquet"), "")

	files, err := ExpandPath(directory)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(directory, "a.parquet"),
		filepath.Join(directory, "b.parquet"),
		filepath.Join(directory, "nested", "a.csv"),
	}, files)

	single := filepath.Join(directory, "a.parquet")
	files, err = ExpandPath(single)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, files)

	_, err = ExpandPath(filepath.Join(directory, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFiles(t *testing.T) {
	base := t.TempDir()
	dataPath := filepath.Join(base, "pr_3")
	writeFile(t, filepath.Join(dataPath, "a.csv"), "pr,lat,lon,time\n1.5,49.0,8.4,2020-01-01\n2.5,49.1,8.5,2020-01-02\n")
	writeFile(t, filepath.Join(dataPath, "b.parquet"), "")
	writeFile(t, filepath.Join(dataPath, "c.nc"), "")
	writeFile(t, filepath.Join(base, "pr_3.metadata.json"), "{}")

	store := newFakeStore()
	ingestor := NewIngestor(store, Options{
		Scales:      db.AllScales,
		Workers:     2,
		MetadataDir: base,
	})

	summary, err := ingestor.LoadFiles(context.Background(), []dataset.FileMapping{precipitationMapping(dataPath)})
	require.NoError(t, err)

	require.Len(t, summary.Files, 3)
	assert.Equal(t, FileResult{
		Path: filepath.Join(dataPath, "a.csv"), Table: "pr_3", Loader: "csv", Rows: 2,
	}, summary.Files[0])
	assert.Equal(t, int64(5), summary.Files[1].Rows)
	assert.Contains(t, summary.Files[2].Error, "netCDF")
	assert.Equal(t, 1, summary.FailedFiles())
	assert.Equal(t, []string{"pr_3"}, summary.Tables)

	assert.Equal(t, [][]string{
		{"2020-01-01", "8.4", "49.0", "1.5"},
		{"2020-01-02", "8.5", "49.1", "2.5"},
	}, store.appendedRows["pr_3"])

	require.Len(t, summary.Macros, 3)
	for i, scale := range db.AllScales {
		assert.Equal(t, scale, summary.Macros[i].Scale)
		assert.Equal(t, MacroGenerated, summary.Macros[i].Outcome)
	}
	macros, err := store.ListMacroNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pr_3_spatial_aggregate", "pr_3_spatiotemporal_aggregate", "pr_3_temporal_aggregate",
	}, macros)

	assert.Equal(t, []string{filepath.Join(base, "pr_3.metadata.json")}, store.metadataPaths)
}

func TestLoadFilesSkipsBadMappings(t *testing.T) {
	base := t.TempDir()
	dataPath := filepath.Join(base, "pr_3.parquet")
	writeFile(t, dataPath, "")

	conflicting := precipitationMapping(dataPath)
	conflicting.Descriptor.SpatialDims = nil

	lineData := precipitationMapping(dataPath)
	lineData.Descriptor.ID = 4
	lineData.Descriptor.SpatialDims = []string{"x"}

	store := newFakeStore()
	summary, err := NewIngestor(store, Options{}).LoadFiles(context.Background(), []dataset.FileMapping{
		precipitationMapping(dataPath),
		conflicting,
		lineData,
		precipitationMapping(filepath.Join(base, "missing")),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.FailedFiles())
	assert.Equal(t, []string{"pr_3"}, summary.Tables)
	assert.Empty(t, summary.Macros)
	assert.Empty(t, store.metadataPaths)
}

func TestGenerateMacrosNotApplicable(t *testing.T) {
	schema := db.TableSchema{
		TableName:  "discharge_9",
		Dimensions: db.Dimensions{Temporal: []string{"tstamp"}, Variables: []string{"q"}},
	}

	store := newFakeStore()
	results := NewIngestor(store, Options{Scales: db.AllScales}).
		GenerateMacros(context.Background(), []db.TableSchema{schema})

	assert.Equal(t, []MacroResult{
		{Table: "discharge_9", Scale: db.ScaleTemporal, Outcome: MacroGenerated, Macro: "discharge_9_temporal_aggregate"},
		{Table: "discharge_9", Scale: db.ScaleSpatial, Outcome: MacroNotApplicable},
		{Table: "discharge_9", Scale: db.ScaleSpatioTemporal, Outcome: MacroNotApplicable},
	}, results)
	assert.Equal(t, []string{"discharge_9_temporal_aggregate"}, store.macros)
}

func TestLoadFilesCancelled(t *testing.T) {
	base := t.TempDir()
	dataPath := filepath.Join(base, "pr_3.parquet")
	writeFile(t, dataPath, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore()
	summary, err := NewIngestor(store, Options{Scales: db.AllScales}).
		LoadFiles(ctx, []dataset.FileMapping{precipitationMapping(dataPath)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Files)
	assert.Empty(t, store.macros)
}
