package duckdb

import (
	"context"
	"log/slog"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// RegisterMacro creates or replaces the macro, and creates the catalog view on first use.
func (store *DuckDB) RegisterMacro(ctx context.Context, macro db.Macro) error {
	if _, err := store.exec(ctx, macro.SQL); err != nil {
		return wrap.Errorf(err, "failed to register macro '%s'", macro.Name)
	}

	if err := store.ensureCatalogView(ctx); err != nil {
		return err
	}

	log.Info(
		"registered aggregation macro",
		slog.String("macro", macro.Name),
		slog.String("table", macro.Table),
		slog.String("scale", macro.Scale.String()),
	)
	return nil
}

func (store *DuckDB) ensureCatalogView(ctx context.Context) error {
	store.catalogViewLock.Lock()
	defer store.catalogViewLock.Unlock()

	if store.catalogViewCreated {
		return nil
	}

	if _, err := store.exec(ctx, db.CatalogViewSQL()); err != nil {
		return wrap.Errorf(err, "failed to create '%s' catalog view", db.CatalogViewName)
	}

	store.catalogViewCreated = true
	return nil
}

// See https://duckdb.org/docs/sql/meta/duckdb_table_functions#duckdb_functions
func (store *DuckDB) ListMacroNames(ctx context.Context) ([]string, error) {
	exists, err := store.storeExists()
	if err != nil || !exists {
		return nil, err
	}

	sqlDB, err := store.conn(ctx)
	if err != nil {
		return nil, err
	}

	const query = "SELECT DISTINCT function_name FROM duckdb_functions()" +
		" WHERE function_type = 'table_macro' AND schema_name = 'main'" +
		" AND function_name LIKE ? ESCAPE '\\'" +
		" ORDER BY function_name;"

	rows, err := sqlDB.QueryContext(ctx, query, db.MacroNameLikePattern())
	if err != nil {
		return nil, wrap.Error(err, "macro catalog query failed")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrap.Error(err, "failed to scan macro name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read macro catalog")
	}

	return names, nil
}

// CatalogEntries reads the catalog view that RegisterMacro maintains in the store file.
func (store *DuckDB) CatalogEntries(ctx context.Context) ([]db.MacroInfo, error) {
	exists, err := store.storeExists()
	if err != nil || !exists {
		return nil, err
	}

	var query db.QueryBuilder
	query.WriteString("SELECT function_name, data_table, variable, id, aggregation_scale FROM ")
	query.WriteIdentifier(db.CatalogViewName)
	query.WriteString(" ORDER BY function_name;")
	if err := query.Err(); err != nil {
		return nil, err
	}

	sqlDB, err := store.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlDB.QueryContext(ctx, query.String())
	if err != nil {
		return nil, wrap.Errorf(err, "'%s' view query failed", db.CatalogViewName)
	}
	defer rows.Close()

	var entries []db.MacroInfo
	for rows.Next() {
		var entry db.MacroInfo
		var scale string
		if err := rows.Scan(&entry.MacroName, &entry.DataTable, &entry.Variable, &entry.ID, &scale); err != nil {
			return nil, wrap.Error(err, "failed to scan catalog entry")
		}
		if entry.Scale, err = db.ParseScale(scale); err != nil {
			return nil, wrap.Errorf(err, "invalid scale in catalog entry '%s'", entry.MacroName)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read catalog view")
	}

	return entries, nil
}
