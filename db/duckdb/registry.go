package duckdb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

type tableLocks struct {
	lock  sync.Mutex
	locks map[string]*sync.Mutex
}

// get returns the write lock of a table, creating it on first use.
func (locks *tableLocks) get(table string) *sync.Mutex {
	locks.lock.Lock()
	defer locks.lock.Unlock()

	if locks.locks == nil {
		locks.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := locks.locks[table]
	if !ok {
		lock = &sync.Mutex{}
		locks.locks[table] = lock
	}
	return lock
}

func (store *DuckDB) TableExists(ctx context.Context, table string) (bool, error) {
	exists, err := store.storeExists()
	if err != nil || !exists {
		return false, err
	}

	sqlDB, err := store.conn(ctx)
	if err != nil {
		return false, err
	}

	// See https://duckdb.org/docs/sql/meta/information_schema
	var count int64
	if err := sqlDB.QueryRowContext(
		ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = 'main' AND table_name = ?;",
		table,
	).Scan(&count); err != nil {
		return false, wrap.Errorf(err, "failed to look up table '%s'", table)
	}

	return count > 0, nil
}

func (store *DuckDB) EnsureTable(ctx context.Context, schema db.TableSchema) (created bool, err error) {
	query, err := db.BuildCreateTableSQL(schema)
	if err != nil {
		return false, err
	}

	lock := store.tableLocks.get(schema.TableName)
	lock.Lock()
	defer lock.Unlock()

	exists, err := store.TableExists(ctx, schema.TableName)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := store.exec(ctx, query); err != nil {
		return false, wrap.Errorf(err, "failed to create table '%s'", schema.TableName)
	}

	log.Info("created table", slog.String("table", schema.TableName))
	return true, nil
}

// DropTable reports alreadyDropped if the table did not exist.
func (store *DuckDB) DropTable(ctx context.Context, table string) (alreadyDropped bool, err error) {
	exists, err := store.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}

	query, err := db.DropTableStatement{Table: table}.SQL()
	if err != nil {
		return false, err
	}
	if _, err := store.exec(ctx, query); err != nil {
		return false, wrap.Errorf(err, "failed to drop table '%s'", table)
	}
	return false, nil
}
