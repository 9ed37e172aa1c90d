package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	goduckdb "github.com/marcboeker/go-duckdb/v2"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

type Options struct {
	// File the store lives in. Created on the first write.
	Path string
	// Loads the spatial extension on every connection. Required for geometry cells and spatial
	// aggregation macros.
	SpatialExtension bool
}

// Implements db.AggregationStore for DuckDB.
//
// The database file is opened lazily, so read-only calls against a store that was never written
// do not create an empty file.
type DuckDB struct {
	options Options

	lock   sync.Mutex
	sqlDB  *sql.DB
	closed bool

	tableLocks tableLocks

	catalogViewLock    sync.Mutex
	catalogViewCreated bool
}

var errStoreClosed = errors.New("store is closed")

func NewDuckDB(options Options) (*DuckDB, error) {
	if options.Path == "" {
		return nil, errors.New("store path is blank")
	}
	return &DuckDB{options: options}, nil
}

func (store *DuckDB) Path() string {
	return store.options.Path
}

// storeExists reports whether the store file is there to be read, without creating it.
func (store *DuckDB) storeExists() (bool, error) {
	store.lock.Lock()
	opened := store.sqlDB != nil
	store.lock.Unlock()
	if opened {
		return true, nil
	}

	if _, err := os.Stat(store.options.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, wrap.Errorf(err, "failed to check for store file '%s'", store.options.Path)
	}
	return true, nil
}

// conn opens the database on first use.
func (store *DuckDB) conn(ctx context.Context) (*sql.DB, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	if store.closed {
		return nil, errStoreClosed
	}
	if store.sqlDB != nil {
		return store.sqlDB, nil
	}

	// See https://duckdb.org/docs/extensions/spatial/overview
	connector, err := goduckdb.NewConnector(
		store.options.Path,
		func(execer driver.ExecerContext) error {
			if !store.options.SpatialExtension {
				return nil
			}
			for _, statement := range []string{"INSTALL spatial;", "LOAD spatial;"} {
				if _, err := execer.ExecContext(context.Background(), statement, nil); err != nil {
					return wrap.Errorf(err, "failed to run '%s'", statement)
				}
			}
			return nil
		},
	)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to open DuckDB store at '%s'", store.options.Path)
	}

	sqlDB := sql.OpenDB(connector)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, wrap.Errorf(err, "failed to connect to DuckDB store at '%s'", store.options.Path)
	}

	log.Debug(
		"opened store",
		slog.String("path", store.options.Path),
		slog.Bool("spatial", store.options.SpatialExtension),
	)
	store.sqlDB = sqlDB
	return sqlDB, nil
}

func (store *DuckDB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	sqlDB, err := store.conn(ctx)
	if err != nil {
		return nil, err
	}

	log.Debug("executing statement", slog.String("query", query))
	result, err := sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrap.Errorf(err, "statement failed: %s", query)
	}
	return result, nil
}

func (store *DuckDB) Close() error {
	store.lock.Lock()
	defer store.lock.Unlock()

	store.closed = true
	if store.sqlDB == nil {
		return nil
	}

	err := store.sqlDB.Close()
	store.sqlDB = nil
	if err != nil {
		return wrap.Error(err, "failed to close DuckDB store")
	}
	return nil
}

func rowsAffected(result sql.Result) int64 {
	count, err := result.RowsAffected()
	if err != nil {
		return -1
	}
	return count
}
