package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	goduckdb "github.com/marcboeker/go-duckdb/v2"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

func (store *DuckDB) RunMacro(ctx context.Context, macroName string, args ...db.Expr) (db.ResultTable, error) {
	query, err := db.SelectStatement{
		From: db.TableFunctionSource{Name: macroName, Args: args},
	}.SQL()
	if err != nil {
		return db.ResultTable{}, err
	}

	sqlDB, err := store.conn(ctx)
	if err != nil {
		return db.ResultTable{}, err
	}

	log.Debug("running macro", slog.String("query", query))
	start := time.Now()

	rows, err := sqlDB.QueryContext(ctx, query)
	if err != nil {
		return db.ResultTable{}, wrap.Errorf(err, "macro query failed: %s", query)
	}
	defer rows.Close()

	result, err := scanResultTable(rows)
	if err != nil {
		return db.ResultTable{}, wrap.Errorf(err, "failed to read result of macro '%s'", macroName)
	}

	log.Debug(
		"macro finished",
		slog.String("macro", macroName),
		slog.Int("rows", result.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func scanResultTable(rows *sql.Rows) (db.ResultTable, error) {
	columns, err := rows.Columns()
	if err != nil {
		return db.ResultTable{}, wrap.Error(err, "failed to get result columns")
	}

	result := db.ResultTable{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return db.ResultTable{}, wrap.Errorf(err, "failed to scan row %d", len(result.Rows)+1)
		}

		for i, value := range values {
			values[i] = normalizeValue(value)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return db.ResultTable{}, err
	}

	return result, nil
}

// normalizeValue maps driver values onto the few Go types a db.ResultTable holds.
func normalizeValue(value any) any {
	switch value := value.(type) {
	case nil, bool, string, int64, time.Time:
		return value
	case float64:
		if value == 0 {
			return 0.0
		}
		return value
	case float32:
		if value == 0 {
			return 0.0
		}
		return float64(value)
	case int8:
		return int64(value)
	case int16:
		return int64(value)
	case int32:
		return int64(value)
	case int:
		return int64(value)
	case uint8:
		return int64(value)
	case uint16:
		return int64(value)
	case uint32:
		return int64(value)
	case uint64:
		if value > math.MaxInt64 {
			return float64(value)
		}
		return int64(value)
	case *big.Int:
		if value.IsInt64() {
			return value.Int64()
		}
		float, _ := new(big.Float).SetInt(value).Float64()
		return float
	case []byte:
		return string(value)
	case goduckdb.Map:
		normalized := make(map[string]any, len(value))
		for key, entry := range value {
			normalized[fmt.Sprint(normalizeValue(key))] = normalizeValue(entry)
		}
		return normalized
	case map[string]any:
		normalized := make(map[string]any, len(value))
		for key, entry := range value {
			normalized[key] = normalizeValue(entry)
		}
		return normalized
	case []any:
		normalized := make([]any, len(value))
		for i, entry := range value {
			normalized[i] = normalizeValue(entry)
		}
		return normalized
	default:
		return fmt.Sprint(value)
	}
}
