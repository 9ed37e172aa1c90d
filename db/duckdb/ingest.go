package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb/v2"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

func (store *DuckDB) InsertFromFile(
	ctx context.Context,
	schema db.TableSchema,
	path string,
) (rowCount int64, err error) {
	query, err := db.BuildInsertSQL(schema, db.FileSource(path))
	if err != nil {
		return 0, err
	}

	lock := store.tableLocks.get(schema.TableName)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	result, err := store.exec(ctx, query)
	if err != nil {
		return 0, wrap.Errorf(err, "failed to insert '%s' into table '%s'", path, schema.TableName)
	}

	rowCount = rowsAffected(result)
	log.Debug(
		"inserted file",
		slog.String("table", schema.TableName),
		slog.String("path", path),
		slog.Int64("rows", rowCount),
		slog.Duration("duration", time.Since(start)),
	)
	return rowCount, nil
}

// AppendRows streams the batch into a staging table with the Appender API, then moves it into the
// data table with the same INSERT ... SELECT projection used for files. The staging table is
// dropped afterwards whether or not the insert succeeded.
//
// See https://duckdb.org/docs/data/appender
func (store *DuckDB) AppendRows(
	ctx context.Context,
	schema db.TableSchema,
	data db.DataSource,
) (rowCount int64, err error) {
	if err := schema.Validate(); err != nil {
		return 0, err
	}

	sqlDB, err := store.conn(ctx)
	if err != nil {
		return 0, err
	}

	// Appender and staging table must share a connection.
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return 0, wrap.Error(err, "failed to get store connection")
	}
	defer conn.Close()

	stagingTable := stagingTableName(schema.TableName)
	nativeColumns := schema.Dimensions.NativeColumns()

	createStaging, err := db.CreateTableStatement{Table: stagingTable, Columns: nativeColumns}.SQL()
	if err != nil {
		return 0, wrap.Error(err, "failed to build staging table")
	}
	log.Debug("executing statement", slog.String("query", createStaging))
	if _, err := conn.ExecContext(ctx, createStaging); err != nil {
		return 0, wrap.Errorf(err, "failed to create staging table '%s'", stagingTable)
	}
	defer func() {
		dropStaging, dropErr := db.DropTableStatement{Table: stagingTable}.SQL()
		if dropErr == nil {
			_, dropErr = conn.ExecContext(context.WithoutCancel(ctx), dropStaging)
		}
		if dropErr != nil {
			log.ErrorCause(dropErr, "failed to drop staging table", slog.String("table", stagingTable))
		}
	}()

	stagedCount, err := appendToStaging(conn.Raw, stagingTable, nativeColumns, data)
	if err != nil {
		return 0, wrap.Errorf(err, "failed to stage rows for table '%s'", schema.TableName)
	}

	insert, err := db.BuildInsertSQL(schema, db.TableSource(stagingTable))
	if err != nil {
		return 0, err
	}

	lock := store.tableLocks.get(schema.TableName)
	lock.Lock()
	defer lock.Unlock()

	log.Debug("executing statement", slog.String("query", insert))
	result, err := conn.ExecContext(ctx, insert)
	if err != nil {
		return 0, wrap.Errorf(err, "statement failed: %s", insert)
	}

	rowCount = rowsAffected(result)
	if rowCount == -1 {
		rowCount = stagedCount
	}
	return rowCount, nil
}

func appendToStaging(
	raw func(func(driverConn any) error) error,
	stagingTable string,
	columns []db.ColumnDefinition,
	data db.DataSource,
) (rowCount int64, err error) {
	err = raw(func(driverConn any) error {
		conn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}

		appender, err := goduckdb.NewAppenderFromConn(conn, "", stagingTable)
		if err != nil {
			return wrap.Error(err, "failed to create appender")
		}

		appendErr := appendAll(appender, columns, data, &rowCount)
		closeErr := appender.Close()
		if appendErr != nil {
			return appendErr
		}
		if closeErr != nil {
			return wrap.Error(closeErr, "failed to flush appender")
		}
		return nil
	})
	return rowCount, err
}

func appendAll(
	appender *goduckdb.Appender,
	columns []db.ColumnDefinition,
	data db.DataSource,
	rowCount *int64,
) error {
	convertedRow := make([]any, 0, len(columns))
	values := make([]driver.Value, len(columns))

	for {
		rawRow, rowNumber, done, err := data.ReadRow()
		if done {
			return nil
		}
		if err != nil {
			return wrap.Error(err, "failed to read row")
		}

		convertedRow, err = db.ConvertRow(convertedRow[:0], columns, rawRow)
		if err != nil {
			return wrap.Errorf(err, "failed to convert row %d", rowNumber)
		}
		for i, value := range convertedRow {
			values[i] = value
		}

		if err := appender.AppendRow(values...); err != nil {
			return wrap.Errorf(err, "failed to append row %d", rowNumber)
		}
		*rowCount++
	}
}

func stagingTableName(table string) string {
	return "stg_" + table + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
