package duckdb

import (
	"context"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/wrap"
)

const MetadataTable = "metadata"

// LoadMetadata loads each JSON file into the metadata table, creating it from the first file's
// inferred schema. Later files are matched by column name.
//
// See https://duckdb.org/docs/data/json/overview#read_json_auto-function
func (store *DuckDB) LoadMetadata(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	lock := store.tableLocks.get(MetadataTable)
	lock.Lock()
	defer lock.Unlock()

	var errs []error
	for _, path := range paths {
		if err := store.loadMetadataFile(ctx, path); err != nil {
			errs = append(errs, wrap.Errorf(err, "metadata file '%s'", path))
		}
	}
	if len(errs) != 0 {
		return wrap.Errors("failed to load metadata", errs...)
	}
	return nil
}

func (store *DuckDB) loadMetadataFile(ctx context.Context, path string) error {
	exists, err := store.TableExists(ctx, MetadataTable)
	if err != nil {
		return err
	}

	var query db.QueryBuilder
	if exists {
		query.WriteString("INSERT INTO ")
		query.WriteIdentifier(MetadataTable)
		query.WriteString(" BY NAME SELECT * FROM read_json_auto(")
	} else {
		query.WriteString("CREATE TABLE ")
		query.WriteIdentifier(MetadataTable)
		query.WriteString(" AS SELECT * FROM read_json_auto(")
	}
	query.WriteStringLiteral(path)
	query.WriteString(");")
	if err := query.Err(); err != nil {
		return err
	}

	_, err = store.exec(ctx, query.String())
	return err
}
