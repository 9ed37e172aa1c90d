package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"hermannm.dev/wrap"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

var (
	FilesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vforwater_loader_files_ingested_total",
			Help: "Total number of data files processed by ingestion",
		},
		[]string{"loader", "status"},
	)

	RowsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vforwater_loader_rows_ingested_total",
			Help: "Total number of rows inserted into data tables",
		},
		[]string{"table"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vforwater_loader_ingest_duration_seconds",
			Help:    "Duration of single file ingestions",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 0.01s to ~82s
		},
		[]string{"loader"},
	)

	MacrosGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vforwater_loader_macros_generated_total",
			Help: "Total number of aggregation macro generations, by outcome",
		},
		[]string{"scale", "status"},
	)

	AggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vforwater_loader_aggregations_total",
			Help: "Total number of per-table aggregation runs, by outcome",
		},
		[]string{"scale", "status"},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vforwater_loader_aggregation_duration_seconds",
			Help:    "Duration of aggregation macro executions",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"scale"},
	)

	ResultFilesWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vforwater_loader_result_files_written_total",
			Help: "Total number of result files written",
		},
		[]string{"status"},
	)
)

// WriteTextfile writes the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return wrap.Errorf(err, "failed to write metrics to '%s'", path)
	}
	return nil
}
