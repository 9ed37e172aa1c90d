package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/VForWaTer/tool-vforwater-loader/metrics"
	"golang.org/x/sync/errgroup"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

type MacroRunner interface {
	RunMacro(ctx context.Context, macroName string, args ...db.Expr) (db.ResultTable, error)
}

// ResultWriter persists result tables. Implemented by results.Dispatcher.
type ResultWriter interface {
	Submit(ctx context.Context, name string, table db.ResultTable)
}

type Params struct {
	// date_trunc part, e.g. "day".
	Precision string
	// Grid cell size in units of the target CRS.
	Resolution float64
}

type Executor struct {
	store   MacroRunner
	catalog Catalog
	writer  ResultWriter
	workers int
}

func NewExecutor(store MacroRunner, catalog Catalog, writer ResultWriter, workers int) *Executor {
	return &Executor{store: store, catalog: catalog, writer: writer, workers: max(workers, 1)}
}

// MacroArgs returns the call arguments of a scale's macros: precision for temporal, resolution for
// spatial, resolution then precision for spatio-temporal.
func MacroArgs(scale db.Scale, params Params) []db.Expr {
	precision := db.StringLiteral(params.Precision)
	resolution := db.NumberLiteral(params.Resolution)

	switch scale {
	case db.ScaleTemporal:
		return []db.Expr{precision}
	case db.ScaleSpatial:
		return []db.Expr{resolution}
	case db.ScaleSpatioTemporal:
		return []db.Expr{resolution, precision}
	default:
		return nil
	}
}

// Run executes the macro of one table at one scale. Fails with db.ErrMacroNotFound if the catalog
// has no such macro.
func (executor *Executor) Run(
	ctx context.Context,
	table string,
	scale db.Scale,
	params Params,
) (db.ResultTable, error) {
	info, err := executor.catalog.MacroFor(table, scale)
	if err != nil {
		return db.ResultTable{}, err
	}

	start := time.Now()
	result, err := executor.store.RunMacro(ctx, info.MacroName, MacroArgs(scale, params)...)
	duration := time.Since(start)
	metrics.AggregationDuration.WithLabelValues(scale.String()).Observe(duration.Seconds())
	if err != nil {
		return db.ResultTable{}, wrap.Errorf(err, "%s aggregation of table '%s' failed", scale, table)
	}

	log.Info(
		"ran aggregation",
		slog.String("table", table),
		slog.String("scale", scale.String()),
		slog.Int("rows", result.Len()),
		slog.Duration("duration", duration),
	)
	return result, nil
}

func ResultFileName(table string, scale db.Scale) string {
	return fmt.Sprintf("%s_%s_aggs", table, scale)
}

func MeanFileName(scale db.Scale) string {
	return fmt.Sprintf("%s_%s_aggs", MeanColumn, scale)
}

type tableRun struct {
	entry      Entry
	projection db.ResultTable
	hasMean    bool
}

// RunScale aggregates every catalogued table at the scale. Per-table runs go in parallel, and each
// result is handed to the writer as it completes. Once all of them are done, the mean columns are
// joined in table order into one wide result, which is written as well.
//
// A failing table is skipped and contributes no column. If ctx is cancelled, running tables
// complete but no new ones start.
func (executor *Executor) RunScale(ctx context.Context, scale db.Scale, params Params) (ScaleReport, error) {
	tables := executor.catalog.TablesAt(scale)
	report := ScaleReport{Scale: scale}
	if len(tables) == 0 {
		log.Infof("no tables with %s aggregations", scale)
		return report, nil
	}

	runs := make([]tableRun, len(tables))
	submitted := make([]bool, len(tables))

	var group errgroup.Group
	group.SetLimit(executor.workers)
	for i, table := range tables {
		if ctx.Err() != nil {
			break
		}
		submitted[i] = true
		group.Go(func() error {
			runs[i] = executor.runTable(context.WithoutCancel(ctx), table, scale, params)
			return nil
		})
	}
	_ = group.Wait()

	reducer := NewMeanReducer(scale)
	for i, run := range runs {
		if !submitted[i] {
			continue
		}
		if run.hasMean {
			if err := reducer.Add(run.entry.Table, run.projection); err != nil {
				log.ErrorCause(err, "excluding table from combined means")
			} else {
				run.entry.InFanIn = true
			}
		}
		report.Entries = append(report.Entries, run.entry)
	}
	report.FanInTables = reducer.Tables()

	if len(reducer.Tables()) > 0 {
		executor.writer.Submit(context.WithoutCancel(ctx), MeanFileName(scale), reducer.Result())
	}

	if err := ctx.Err(); err != nil {
		return report, wrap.Errorf(err, "%s aggregation cancelled", scale)
	}
	return report, nil
}

func (executor *Executor) runTable(ctx context.Context, table string, scale db.Scale, params Params) tableRun {
	run := tableRun{entry: Entry{Table: table, Scale: scale}}

	start := time.Now()
	result, err := executor.Run(ctx, table, scale, params)
	run.entry.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, db.ErrMacroNotFound) {
			log.Warnf("skipping table '%s': %v", table, err)
		} else {
			log.ErrorCause(err, "skipping table", slog.String("table", table))
		}
		metrics.AggregationsTotal.WithLabelValues(scale.String(), metrics.StatusSkipped).Inc()
		run.entry.Outcome = OutcomeSkipped
		run.entry.Reason = err.Error()
		return run
	}

	metrics.AggregationsTotal.WithLabelValues(scale.String(), metrics.StatusSuccess).Inc()
	run.entry.Outcome = OutcomeSuccess
	run.entry.Rows = result.Len()
	executor.writer.Submit(ctx, ResultFileName(table, scale), result)

	projection, err := ExtractMean(scale, table, result)
	if err != nil {
		log.Warnf("table '%s' not included in combined %s means: %v", table, scale, err)
		run.entry.Reason = err.Error()
		return run
	}
	run.projection = projection
	run.hasMean = true
	return run
}
