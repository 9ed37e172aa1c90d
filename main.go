package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/aggregate"
	"github.com/VForWaTer/tool-vforwater-loader/config"
	"github.com/VForWaTer/tool-vforwater-loader/dataset"
	"github.com/VForWaTer/tool-vforwater-loader/db/duckdb"
	"github.com/VForWaTer/tool-vforwater-loader/ingest"
	"github.com/VForWaTer/tool-vforwater-loader/metrics"
	"github.com/VForWaTer/tool-vforwater-loader/results"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

var errNothingToDo = errors.New("aggregation is disabled and no tables were ingested")

func main() {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	mappingsFlag := flag.String("mappings", "", "file mappings JSON (or set FILE_MAPPINGS env var)")
	databaseFlag := flag.String("database", "", "DuckDB store file (or set DATABASE_PATH env var)")
	scalesFlag := flag.String("scales", "", "aggregation scales: all, none, or a comma-separated list (or set AGGREGATION_SCALES env var)")
	precisionFlag := flag.String("precision", "", "temporal aggregation precision (or set PRECISION env var)")
	resolutionFlag := flag.Float64("resolution", 0, "spatial aggregation resolution (or set RESOLUTION env var)")
	workersFlag := flag.Int("workers", 0, "size of the worker pools (or set WORKERS env var)")
	skipIngestFlag := flag.Bool("skip-ingest", false, "only aggregate what is already in the store")
	flag.Parse()

	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: level})))

	config, err := config.ReadFromEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read config from env")
		os.Exit(1)
	}

	if flag.CommandLine.Changed("mappings") {
		config.Paths.FileMappings = *mappingsFlag
	}
	if flag.CommandLine.Changed("database") {
		config.Store.DatabasePath = *databaseFlag
	}
	if flag.CommandLine.Changed("scales") {
		config.Aggregation.Scales = *scalesFlag
	}
	if flag.CommandLine.Changed("precision") {
		config.Aggregation.Precision = *precisionFlag
	}
	if flag.CommandLine.Changed("resolution") {
		config.Aggregation.Resolution = *resolutionFlag
	}
	if flag.CommandLine.Changed("workers") {
		config.Workers = *workersFlag
	}

	if err := config.Validate(); err != nil {
		log.ErrorCause(err, "invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, *skipIngestFlag); err != nil {
		log.ErrorCause(err, "run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, config config.Config, skipIngest bool) (returnedErr error) {
	processingLog := aggregate.ProcessingLog{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	defer func() {
		processingLog.FinishedAt = time.Now().UTC()
		if returnedErr != nil {
			processingLog.Errors = append(processingLog.Errors, returnedErr.Error())
		}
		if err := processingLog.WriteFile(config.ResultPath()); err != nil {
			log.ErrorCause(err, "failed to write processing log")
		}
		if config.Paths.MetricsFile != "" {
			if err := metrics.WriteTextfile(config.Paths.MetricsFile); err != nil {
				log.ErrorCause(err, "failed to write metrics")
			}
		}
	}()

	scales, err := config.Scales()
	if err != nil {
		return err
	}
	macroOptions, err := config.MacroOptions()
	if err != nil {
		return err
	}

	store, err := duckdb.NewDuckDB(duckdb.Options{
		Path:             config.DatabasePath(),
		SpatialExtension: config.Store.SpatialExtension,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.ErrorCause(err, "failed to close store")
		}
	}()

	if !skipIngest {
		mappings, err := dataset.ReadFileMappingsFile(config.FileMappingsPath())
		if err != nil {
			return err
		}

		ingestor := ingest.NewIngestor(store, ingest.Options{
			UseNativeGeometry: config.Store.UseNativeGeometry,
			Scales:            scales,
			Macros:            macroOptions,
			Workers:           config.Workers,
			MetadataDir:       config.DatasetPath(),
		})

		log.Infof("loading %d datasets into '%s'", len(mappings), config.DatabasePath())
		summary, err := ingestor.LoadFiles(ctx, mappings)
		processingLog.Ingestion = summary
		if err != nil {
			return err
		}
		log.Infof(
			"ingested %d tables (%d of %d files failed)",
			len(summary.Tables), summary.FailedFiles(), len(summary.Files),
		)

		if len(scales) == 0 && len(summary.Tables) == 0 {
			return errNothingToDo
		}
	}

	if len(scales) == 0 {
		log.Info("aggregation disabled")
		return nil
	}

	catalog, err := aggregate.ListAvailable(ctx, store)
	if err != nil {
		return err
	}
	log.Infof("found %d tables with aggregation macros", len(catalog))

	dispatcher := results.NewDispatcher(config.ResultPath(), config.Workers)
	executor := aggregate.NewExecutor(store, catalog, dispatcher, config.Workers)
	params := aggregate.Params{
		Precision:  config.Aggregation.Precision,
		Resolution: config.Aggregation.Resolution,
	}

	var errs []error
	for _, scale := range scales {
		report, err := executor.RunScale(ctx, scale, params)
		processingLog.Aggregation = append(processingLog.Aggregation, report)
		log.Infof(
			"%s aggregation: %d succeeded, %d skipped",
			scale, report.Count(aggregate.OutcomeSuccess), report.Count(aggregate.OutcomeSkipped),
		)
		if err != nil {
			errs = append(errs, err)
			break
		}
	}

	written, err := dispatcher.Wait()
	processingLog.ResultFiles = written
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return wrap.Errors(fmt.Sprintf("run %s finished with errors", processingLog.RunID), errs...)
	}
	return nil
}
