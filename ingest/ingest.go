package ingest

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/dataset"
	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/VForWaTer/tool-vforwater-loader/metrics"
	"golang.org/x/sync/errgroup"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

type Options struct {
	UseNativeGeometry bool
	// Scales to generate macros for. None disables macro generation.
	Scales  []db.Scale
	Macros  db.MacroOptions
	Workers int
	// Folder searched for metadata files after ingestion. Skipped when blank.
	MetadataDir string
}

type Ingestor struct {
	store   db.AggregationStore
	options Options
}

func NewIngestor(store db.AggregationStore, options Options) *Ingestor {
	options.Workers = max(options.Workers, 1)
	return &Ingestor{store: store, options: options}
}

type FileResult struct {
	Path   string `json:"path"`
	Table  string `json:"table"`
	Loader string `json:"loader,omitempty"`
	Rows   int64  `json:"rows"`
	Error  string `json:"error,omitempty"`
}

type MacroOutcome string

const (
	MacroGenerated MacroOutcome = "generated"
	// The table lacks the dimension the scale needs.
	MacroNotApplicable MacroOutcome = "not_applicable"
	MacroFailed        MacroOutcome = "failed"
)

type MacroResult struct {
	Table   string       `json:"table"`
	Scale   db.Scale     `json:"scale"`
	Outcome MacroOutcome `json:"outcome"`
	Macro   string       `json:"macro,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type Summary struct {
	Files  []FileResult  `json:"files"`
	Macros []MacroResult `json:"macros"`
	// Tables that received at least one file.
	Tables []string `json:"tables"`
}

func (summary Summary) FailedFiles() int {
	failed := 0
	for _, file := range summary.Files {
		if file.Error != "" {
			failed++
		}
	}
	return failed
}

type fileTask struct {
	path   string
	schema db.TableSchema
}

// LoadFiles ingests every file of the given mappings, then generates the aggregation macros of
// each table that received data. Failures of single files, mappings or macros are logged and
// recorded in the summary without stopping the batch.
//
// If ctx is cancelled, tasks already running complete but no new ones are started, and the
// cancellation error is returned along with the partial summary.
func (ingestor *Ingestor) LoadFiles(ctx context.Context, mappings []dataset.FileMapping) (Summary, error) {
	var summary Summary
	var tasks []fileTask
	schemas := make(map[string]db.TableSchema)

	for _, mapping := range mappings {
		schema, err := dataset.ResolveSchema(mapping.Descriptor, ingestor.options.UseNativeGeometry)
		if err != nil {
			log.ErrorCause(err, "skipping dataset", slog.Int("id", mapping.Descriptor.ID))
			summary.Files = append(summary.Files, FileResult{
				Path:  mapping.DataPath,
				Table: mapping.Descriptor.TableName(),
				Error: err.Error(),
			})
			continue
		}

		if existing, ok := schemas[schema.TableName]; ok && !slices.Equal(
			existing.ColumnNames(), schema.ColumnNames(),
		) {
			err := errors.New("another dataset maps to the same table with different columns")
			log.ErrorCause(err, "skipping dataset", slog.String("table", schema.TableName))
			summary.Files = append(summary.Files, FileResult{
				Path: mapping.DataPath, Table: schema.TableName, Error: err.Error(),
			})
			continue
		}
		schemas[schema.TableName] = schema

		files, err := ExpandPath(mapping.DataPath)
		if err != nil {
			log.ErrorCause(err, "skipping data path", slog.String("path", mapping.DataPath))
			summary.Files = append(summary.Files, FileResult{
				Path: mapping.DataPath, Table: schema.TableName, Error: err.Error(),
			})
			continue
		}
		for _, file := range files {
			tasks = append(tasks, fileTask{path: file, schema: schema})
		}
	}

	log.Infof("ingesting %d files with %d workers", len(tasks), ingestor.options.Workers)
	fileResults := ingestor.runFileTasks(ctx, tasks)
	summary.Files = append(summary.Files, fileResults...)

	for _, result := range fileResults {
		if result.Error == "" && !slices.Contains(summary.Tables, result.Table) {
			summary.Tables = append(summary.Tables, result.Table)
		}
	}
	slices.Sort(summary.Tables)

	if err := ctx.Err(); err != nil {
		return summary, wrap.Error(err, "ingestion cancelled")
	}

	tableSchemas := make([]db.TableSchema, 0, len(summary.Tables))
	for _, table := range summary.Tables {
		tableSchemas = append(tableSchemas, schemas[table])
	}
	summary.Macros = ingestor.GenerateMacros(ctx, tableSchemas)

	if ingestor.options.MetadataDir != "" {
		ingestor.loadMetadata(ctx)
	}

	return summary, ctx.Err()
}

func (ingestor *Ingestor) runFileTasks(ctx context.Context, tasks []fileTask) []FileResult {
	results := make([]FileResult, len(tasks))
	submitted := make([]bool, len(tasks))

	var group errgroup.Group
	group.SetLimit(ingestor.options.Workers)

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		submitted[i] = true
		group.Go(func() error {
			results[i] = ingestor.ingestFile(context.WithoutCancel(ctx), task)
			return nil
		})
	}
	_ = group.Wait()

	collected := make([]FileResult, 0, len(tasks))
	for i, result := range results {
		if submitted[i] {
			collected = append(collected, result)
		}
	}
	return collected
}

func (ingestor *Ingestor) ingestFile(ctx context.Context, task fileTask) FileResult {
	result := FileResult{Path: task.path, Table: task.schema.TableName}

	loader, err := LoaderFor(task.path)
	if err != nil {
		log.ErrorCause(err, "skipping file", slog.String("path", task.path))
		metrics.FilesIngestedTotal.WithLabelValues("none", metrics.StatusSkipped).Inc()
		result.Error = err.Error()
		return result
	}
	result.Loader = loader.String()

	start := time.Now()
	rows, err := ingestor.loadFile(ctx, loader, task)
	metrics.IngestDuration.WithLabelValues(loader.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		log.ErrorCause(err, "failed to ingest file", slog.String("path", task.path))
		metrics.FilesIngestedTotal.WithLabelValues(loader.String(), metrics.StatusError).Inc()
		result.Error = err.Error()
		return result
	}

	metrics.FilesIngestedTotal.WithLabelValues(loader.String(), metrics.StatusSuccess).Inc()
	metrics.RowsIngestedTotal.WithLabelValues(task.schema.TableName).Add(float64(max(rows, 0)))
	log.Info(
		"ingested file",
		slog.String("path", task.path),
		slog.String("table", task.schema.TableName),
		slog.Int64("rows", rows),
		slog.Duration("duration", time.Since(start)),
	)
	result.Rows = rows
	return result
}

func (ingestor *Ingestor) loadFile(ctx context.Context, loader Loader, task fileTask) (int64, error) {
	if _, err := ingestor.store.EnsureTable(ctx, task.schema); err != nil {
		return 0, err
	}
	return loader.load(ctx, ingestor.store, task.schema, task.path)
}

// GenerateMacros registers the aggregation macros of every table at every enabled scale. Each
// (table, scale) pair is independent: a failure is recorded and the rest continue.
func (ingestor *Ingestor) GenerateMacros(ctx context.Context, schemas []db.TableSchema) []MacroResult {
	var lock sync.Mutex
	var results []MacroResult

	var group errgroup.Group
	group.SetLimit(ingestor.options.Workers)

	for _, schema := range schemas {
		for _, scale := range ingestor.options.Scales {
			if ctx.Err() != nil {
				break
			}
			group.Go(func() error {
				result := ingestor.generateMacro(context.WithoutCancel(ctx), schema, scale)
				lock.Lock()
				results = append(results, result)
				lock.Unlock()
				return nil
			})
		}
	}
	_ = group.Wait()

	slices.SortFunc(results, func(a, b MacroResult) int {
		if a.Table != b.Table {
			if a.Table < b.Table {
				return -1
			}
			return 1
		}
		return int(a.Scale) - int(b.Scale)
	})
	return results
}

func (ingestor *Ingestor) generateMacro(ctx context.Context, schema db.TableSchema, scale db.Scale) MacroResult {
	result := MacroResult{Table: schema.TableName, Scale: scale}

	macro, ok, err := db.BuildMacro(schema, scale, ingestor.options.Macros)
	if err == nil && ok {
		err = ingestor.store.RegisterMacro(ctx, macro)
	}

	switch {
	case err != nil:
		log.ErrorCause(
			err,
			"failed to generate aggregation macro",
			slog.String("table", schema.TableName),
			slog.String("scale", scale.String()),
		)
		result.Outcome = MacroFailed
		result.Error = err.Error()
		metrics.MacrosGeneratedTotal.WithLabelValues(scale.String(), metrics.StatusError).Inc()
	case !ok:
		log.Debug(
			"table lacks dimensions for scale",
			slog.String("table", schema.TableName),
			slog.String("scale", scale.String()),
		)
		result.Outcome = MacroNotApplicable
		metrics.MacrosGeneratedTotal.WithLabelValues(scale.String(), metrics.StatusSkipped).Inc()
	default:
		result.Outcome = MacroGenerated
		result.Macro = macro.Name
		metrics.MacrosGeneratedTotal.WithLabelValues(scale.String(), metrics.StatusSuccess).Inc()
	}
	return result
}

func (ingestor *Ingestor) loadMetadata(ctx context.Context) {
	paths, err := FindMetadataFiles(ingestor.options.MetadataDir)
	if err != nil {
		log.ErrorCause(err, "skipping metadata")
		return
	}
	if len(paths) == 0 {
		log.Debug("no metadata files found", slog.String("dir", ingestor.options.MetadataDir))
		return
	}

	if err := ingestor.store.LoadMetadata(ctx, paths); err != nil {
		log.ErrorCause(err, "failed to load metadata")
		return
	}
	log.Infof("loaded %d metadata files", len(paths))
}
