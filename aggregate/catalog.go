package aggregate

import (
	"context"
	"fmt"
	"slices"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/wrap"
)

// Layer is one data table with the aggregation macros registered for it.
type Layer struct {
	Table    string                    `json:"table"`
	Variable string                    `json:"variable"`
	ID       int                       `json:"id"`
	Macros   map[db.Scale]db.MacroInfo `json:"aggregations"`
}

// Catalog maps data table names to their layers.
type Catalog map[string]Layer

type MacroLister interface {
	ListMacroNames(ctx context.Context) ([]string, error)
}

// ListAvailable decodes the registered macro names of the store into a catalog. A name that does
// not decode means macro generation and discovery disagree, so it fails the whole listing.
func ListAvailable(ctx context.Context, store MacroLister) (Catalog, error) {
	names, err := store.ListMacroNames(ctx)
	if err != nil {
		return nil, wrap.Error(err, "failed to list aggregation macros")
	}
	return NewCatalog(names)
}

func NewCatalog(macroNames []string) (Catalog, error) {
	catalog := make(Catalog)
	for _, name := range macroNames {
		info, err := db.ParseMacroName(name)
		if err != nil {
			return nil, err
		}

		layer, ok := catalog[info.DataTable]
		if !ok {
			layer = Layer{
				Table:    info.DataTable,
				Variable: info.Variable,
				ID:       info.ID,
				Macros:   make(map[db.Scale]db.MacroInfo),
			}
		}
		if existing, duplicate := layer.Macros[info.Scale]; duplicate && existing.MacroName != name {
			return nil, fmt.Errorf(
				"table '%s' has two %s macros ('%s' and '%s')",
				info.DataTable, info.Scale, existing.MacroName, name,
			)
		}
		layer.Macros[info.Scale] = info
		catalog[info.DataTable] = layer
	}
	return catalog, nil
}

// MacroFor fails with db.ErrMacroNotFound if the table has no macro at the scale.
func (catalog Catalog) MacroFor(table string, scale db.Scale) (db.MacroInfo, error) {
	layer, ok := catalog[table]
	if !ok {
		return db.MacroInfo{}, fmt.Errorf("%w (table '%s' is not in the catalog)", db.ErrMacroNotFound, table)
	}
	info, ok := layer.Macros[scale]
	if !ok {
		return db.MacroInfo{}, fmt.Errorf("%w (table '%s', scale '%s')", db.ErrMacroNotFound, table, scale)
	}
	return info, nil
}

// TablesAt returns the tables with a macro at the scale, sorted.
func (catalog Catalog) TablesAt(scale db.Scale) []string {
	var tables []string
	for table, layer := range catalog {
		if _, ok := layer.Macros[scale]; ok {
			tables = append(tables, table)
		}
	}
	slices.Sort(tables)
	return tables
}

func (catalog Catalog) Tables() []string {
	tables := make([]string, 0, len(catalog))
	for table := range catalog {
		tables = append(tables, table)
	}
	slices.Sort(tables)
	return tables
}
