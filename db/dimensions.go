package db

import (
	"fmt"
	"slices"
	"strings"
)

const (
	TimeColumn = "time"
	CellColumn = "cell"
	XColumn    = "x"
	YColumn    = "y"
)

// Scalar spatial axes are renamed to these, in order, so sources with different native axis names
// end up with the same column names.
var CanonicalAxisNames = []string{"lon", "lat", "z"}

// Dimensions is the resolved dimension layout of one dataset. Names are the native column names of
// the source; the canonical target names are derived from them.
type Dimensions struct {
	Temporal        []string `json:"temporal"`
	Spatial         []string `json:"spatial"`
	Variables       []string `json:"variables"`
	UseGeometryCell bool     `json:"useGeometryCell"`
}

func (dims Dimensions) HasTime() bool {
	return len(dims.Temporal) > 0
}

func (dims Dimensions) HasSpace() bool {
	return len(dims.Spatial) > 0
}

func (dims Dimensions) Validate() error {
	if len(dims.Temporal) > 1 {
		return fmt.Errorf(
			"%w: %d temporal dimensions %v (at most 1 is supported)",
			ErrUnsupportedDimensions, len(dims.Temporal), dims.Temporal,
		)
	}
	if len(dims.Spatial) != 0 && len(dims.Spatial) != 2 {
		return fmt.Errorf(
			"%w: %d spatial dimensions %v (only 0 or 2 are supported)",
			ErrUnsupportedDimensions, len(dims.Spatial), dims.Spatial,
		)
	}
	if dims.UseGeometryCell && len(dims.Spatial) != 2 {
		return fmt.Errorf("%w: a geometry cell needs exactly 2 spatial dimensions", ErrUnsupportedDimensions)
	}
	if len(dims.Variables) == 0 {
		return fmt.Errorf("%w: no variable dimensions", ErrUnsupportedDimensions)
	}

	seen := make(map[string]struct{}, len(dims.Variables))
	for _, variable := range dims.Variables {
		// DuckDB identifiers are case-insensitive.
		folded := strings.ToLower(variable)
		if slices.Contains(reservedColumnNames, folded) {
			return fmt.Errorf(
				"%w: variable '%s' collides with a generated column or macro parameter (reserved: %v)",
				ErrUnsupportedDimensions, variable, reservedColumnNames,
			)
		}
		if _, duplicate := seen[folded]; duplicate {
			return fmt.Errorf("%w: variable '%s' is listed twice", ErrUnsupportedDimensions, variable)
		}
		seen[folded] = struct{}{}
	}

	return nil
}

// Names a variable column cannot take. Macro parameters replace any unqualified column reference of
// the same name inside the macro body, quoted or not.
var reservedColumnNames = []string{
	TimeColumn, CellColumn, XColumn, YColumn, pointCol, "lon", "lat", "z", PrecisionParam, ResolutionParam,
}

// SpatialColumns returns the canonical names of the stored spatial columns.
func (dims Dimensions) SpatialColumns() []string {
	if dims.UseGeometryCell {
		return []string{CellColumn}
	}
	return CanonicalAxisNames[:len(dims.Spatial)]
}

// Columns returns the stored column definitions in DDL order: time, spatial, variables.
func (dims Dimensions) Columns() []ColumnDefinition {
	columns := make([]ColumnDefinition, 0, len(dims.Temporal)+len(dims.Spatial)+len(dims.Variables))

	if dims.HasTime() {
		columns = append(columns, ColumnDefinition{Name: TimeColumn, DataType: DataTypeTimestamp})
	}

	if dims.UseGeometryCell {
		columns = append(columns, ColumnDefinition{Name: CellColumn, DataType: DataTypePoint2D})
	} else {
		for _, name := range dims.SpatialColumns() {
			columns = append(columns, ColumnDefinition{Name: name, DataType: DataTypeDouble})
		}
	}

	for _, variable := range dims.Variables {
		columns = append(columns, ColumnDefinition{Name: variable, DataType: DataTypeDouble})
	}

	return columns
}

// Projection maps native source columns onto the stored columns, in the same order as Columns.
func (dims Dimensions) Projection() []SelectColumn {
	projection := make([]SelectColumn, 0, len(dims.Temporal)+len(dims.Spatial)+len(dims.Variables))

	if dims.HasTime() {
		projection = append(projection, As(Column(dims.Temporal[0]), TimeColumn))
	}

	if dims.UseGeometryCell {
		projection = append(
			projection,
			As(Fn("ST_Point2D", Column(dims.Spatial[0]), Column(dims.Spatial[1])), CellColumn),
		)
	} else {
		for i, name := range dims.SpatialColumns() {
			projection = append(projection, As(Column(dims.Spatial[i]), name))
		}
	}

	for _, variable := range dims.Variables {
		projection = append(projection, As(Column(variable), ""))
	}

	return projection
}

// NativeColumns returns the source column names an ingested batch must provide, with the type each
// is staged as.
func (dims Dimensions) NativeColumns() []ColumnDefinition {
	columns := make([]ColumnDefinition, 0, len(dims.Temporal)+len(dims.Spatial)+len(dims.Variables))
	for _, name := range dims.Temporal {
		columns = append(columns, ColumnDefinition{Name: name, DataType: DataTypeTimestamp})
	}
	for _, name := range dims.Spatial {
		columns = append(columns, ColumnDefinition{Name: name, DataType: DataTypeDouble})
	}
	for _, name := range dims.Variables {
		columns = append(columns, ColumnDefinition{Name: name, DataType: DataTypeDouble})
	}
	return columns
}
