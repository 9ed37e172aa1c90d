package db

import (
	"context"
)

// AggregationStore is the embedded store holding data tables and their aggregation macros.
// Implemented by duckdb.DuckDB.
type AggregationStore interface {
	// TableExists must not create the store file as a side effect: it returns false when the file
	// does not exist yet.
	TableExists(ctx context.Context, table string) (bool, error)

	// EnsureTable creates the table iff it does not exist. Safe to call concurrently for the same
	// table; exactly one call reports created.
	EnsureTable(ctx context.Context, schema TableSchema) (created bool, err error)

	// InsertFromFile loads a file the store can read natively (e.g. Parquet) into the table.
	InsertFromFile(ctx context.Context, schema TableSchema, path string) (rowCount int64, err error)

	// AppendRows loads an in-memory batch into the table. Rows hold the schema's native columns
	// (Dimensions.NativeColumns) as text.
	AppendRows(ctx context.Context, schema TableSchema, data DataSource) (rowCount int64, err error)

	// RegisterMacro creates or replaces the macro.
	RegisterMacro(ctx context.Context, macro Macro) error

	// ListMacroNames returns the names of every registered aggregation macro, sorted.
	ListMacroNames(ctx context.Context) ([]string, error)

	// RunMacro calls a table macro with literal arguments and returns its full result.
	RunMacro(ctx context.Context, macroName string, args ...Expr) (ResultTable, error)

	// LoadMetadata loads JSON metadata files into the metadata table.
	LoadMetadata(ctx context.Context, paths []string) error

	Close() error
}

type DataSource interface {
	ReadRow() (row []string, rowNumber int, done bool, err error)
}
