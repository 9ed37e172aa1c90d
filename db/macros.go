package db

import (
	"fmt"

	"hermannm.dev/wrap"
)

// Macro parameter names, in the order they appear in scale signatures.
const (
	PrecisionParam  = "precision"
	ResolutionParam = "resolution"
)

const (
	pointsCTE = "points"
	binnedCTE = "binned"
	pointCol  = "point"
)

const (
	DefaultSourceEPSG = 4326
	DefaultTargetEPSG = 3857
)

type MacroOptions struct {
	// Zero value means DefaultFunctions.
	Functions FunctionRegistry
	Alignment Alignment
	// CRS of the stored coordinates. Zero value means DefaultSourceEPSG.
	SourceEPSG int
	// CRS the grid is laid out in. Zero value means DefaultTargetEPSG.
	TargetEPSG int
}

func (options MacroOptions) withDefaults() MacroOptions {
	if options.Functions.Len() == 0 {
		options.Functions = DefaultFunctions()
	}
	if options.Alignment == 0 {
		options.Alignment = AlignmentFloor
	}
	if options.SourceEPSG == 0 {
		options.SourceEPSG = DefaultSourceEPSG
	}
	if options.TargetEPSG == 0 {
		options.TargetEPSG = DefaultTargetEPSG
	}
	return options
}

// Macro is a rendered table macro, ready to be registered in the store.
type Macro struct {
	Name   string
	Table  string
	Scale  Scale
	Params []string
	SQL    string
}

// BuildMacro renders the aggregation macro of a table at one scale. When the table lacks the
// dimension the scale needs (no time axis for temporal scales, no spatial axes for spatial scales),
// ok is false and no macro is produced; that is not an error.
func BuildMacro(schema TableSchema, scale Scale, options MacroOptions) (macro Macro, ok bool, err error) {
	if !scale.IsValid() {
		return Macro{}, false, fmt.Errorf("%w (value %d)", ErrUnknownScale, scale)
	}
	// Also rejects spatial dimensionality other than 0 or 2, and variables that would be shadowed
	// by macro parameters.
	if err := schema.Validate(); err != nil {
		return Macro{}, false, err
	}

	dims := schema.Dimensions
	if scale.RequiresTime() && !dims.HasTime() {
		return Macro{}, false, nil
	}
	if scale.RequiresSpace() && !dims.HasSpace() {
		return Macro{}, false, nil
	}

	options = options.withDefaults()
	if !options.Alignment.IsValid() {
		return Macro{}, false, fmt.Errorf("%w (value %d)", ErrUnknownAlignment, options.Alignment)
	}

	body, err := buildMacroBody(schema, scale, options)
	if err != nil {
		return Macro{}, false, wrap.Errorf(err, "failed to build %s macro body", scale)
	}

	name := MacroName(schema.TableName, scale)
	statement := CreateMacroStatement{Name: name, Params: scale.MacroParams(), Body: body}
	sql, err := statement.SQL()
	if err != nil {
		return Macro{}, false, err
	}

	return Macro{
		Name:   name,
		Table:  schema.TableName,
		Scale:  scale,
		Params: scale.MacroParams(),
		SQL:    sql,
	}, true, nil
}

// The macro body has the shape
//
//	WITH [points AS (reprojection),] binned AS (key columns + variables)
//	SELECT keys, aggregates FROM binned GROUP BY keys ORDER BY keys
func buildMacroBody(schema TableSchema, scale Scale, options MacroOptions) (SelectStatement, error) {
	dims := schema.Dimensions

	var with []CommonTableExpr
	var binned SelectStatement

	if scale.RequiresSpace() {
		with = append(with, CommonTableExpr{
			Name:  pointsCTE,
			Query: reprojectionQuery(schema, options),
		})

		resolution := Param(ResolutionParam)
		x, err := options.Alignment.Bin(Fn("ST_X", Column(pointCol)), resolution)
		if err != nil {
			return SelectStatement{}, err
		}
		y, err := options.Alignment.Bin(Fn("ST_Y", Column(pointCol)), resolution)
		if err != nil {
			return SelectStatement{}, err
		}

		if scale.RequiresTime() {
			binned.Columns = append(binned.Columns, truncatedTime())
		}
		binned.Columns = append(binned.Columns, As(x, XColumn), As(y, YColumn))
		binned.From = TableSource(pointsCTE)
	} else {
		binned.Columns = append(binned.Columns, truncatedTime())
		binned.From = TableSource(schema.TableName)
	}

	for _, variable := range dims.Variables {
		binned.Columns = append(binned.Columns, As(Column(variable), ""))
	}
	with = append(with, CommonTableExpr{Name: binnedCTE, Query: binned})

	keys := make([]Expr, 0, 3)
	columns := make([]SelectColumn, 0, 3+len(dims.Variables)*options.Functions.Len())
	for _, key := range scale.KeyColumns() {
		keys = append(keys, Column(key))
		columns = append(columns, As(Column(key), ""))
	}
	columns = append(columns, options.Functions.Expand(dims.Variables)...)

	return SelectStatement{
		With:    with,
		Columns: columns,
		From:    TableSource(binnedCTE),
		GroupBy: keys,
		OrderBy: keys,
	}, nil
}

func truncatedTime() SelectColumn {
	return As(Fn("date_trunc", Param(PrecisionParam), Column(TimeColumn)), TimeColumn)
}

// Builds the point geometry of every row and transforms it into the target CRS. Coordinates are
// taken as x/y (lon/lat) order regardless of the CRS axis definition.
//
// See https://duckdb.org/docs/extensions/spatial/functions#st_transform
func reprojectionQuery(schema TableSchema, options MacroOptions) SelectStatement {
	dims := schema.Dimensions

	var point Expr
	if dims.UseGeometryCell {
		point = Column(CellColumn)
	} else {
		axes := dims.SpatialColumns()
		point = Fn("ST_Point2D", Column(axes[0]), Column(axes[1]))
	}

	transformed := Fn(
		"ST_Transform",
		point,
		StringLiteral(epsgCode(options.SourceEPSG)),
		StringLiteral(epsgCode(options.TargetEPSG)),
		BoolLiteral(true),
	)

	query := SelectStatement{From: TableSource(schema.TableName)}
	if dims.HasTime() {
		query.Columns = append(query.Columns, As(Column(TimeColumn), ""))
	}
	query.Columns = append(query.Columns, As(transformed, pointCol))
	for _, variable := range dims.Variables {
		query.Columns = append(query.Columns, As(Column(variable), ""))
	}
	return query
}

func epsgCode(epsg int) string {
	return fmt.Sprintf("EPSG:%d", epsg)
}
