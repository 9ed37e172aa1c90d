package db

import (
	"fmt"
	"strconv"
	"strings"
)

// The macro naming convention is the aggregation catalog: stores are discovered by decoding macro
// names, so TableName, MacroName and ParseMacroName must stay exact inverses of each other.
//
//	<variable>_<id>                         data table
//	<variable>_<id>_<scale>_aggregate       aggregation macro
const (
	nameSeparator   = "_"
	MacroNameSuffix = "aggregate"
)

// TableName derives the data table name of a dataset. Spaces in the variable name become '_'.
func TableName(variable string, id int) string {
	return SanitizeVariable(variable) + nameSeparator + strconv.Itoa(id)
}

func SanitizeVariable(variable string) string {
	return strings.ReplaceAll(variable, " ", nameSeparator)
}

func MacroName(table string, scale Scale) string {
	return table + nameSeparator + scale.String() + nameSeparator + MacroNameSuffix
}

// MacroInfo is one decoded catalog entry.
type MacroInfo struct {
	ID        int    `json:"id"`
	Variable  string `json:"variable"`
	DataTable string `json:"dataTable"`
	Scale     Scale  `json:"aggregationScale"`
	MacroName string `json:"macroName"`
}

// ParseMacroName decodes a macro name from the right: the last token is the suffix, then the scale,
// then the dataset ID; everything before that is the (possibly '_'-containing) variable.
func ParseMacroName(name string) (MacroInfo, error) {
	tokens := strings.Split(name, nameSeparator)
	if len(tokens) < 4 {
		return MacroInfo{}, fmt.Errorf("%w '%s': expected at least 4 '_'-separated tokens", ErrMalformedMacroName, name)
	}

	last := len(tokens) - 1
	if tokens[last] != MacroNameSuffix {
		return MacroInfo{}, fmt.Errorf("%w '%s': missing '_%s' suffix", ErrMalformedMacroName, name, MacroNameSuffix)
	}

	scale, err := ParseScale(tokens[last-1])
	if err != nil {
		return MacroInfo{}, fmt.Errorf("%w '%s': %v", ErrMalformedMacroName, name, err)
	}

	id, err := strconv.Atoi(tokens[last-2])
	if err != nil {
		return MacroInfo{}, fmt.Errorf("%w '%s': dataset ID '%s' is not an integer", ErrMalformedMacroName, name, tokens[last-2])
	}

	variable := strings.Join(tokens[:last-2], nameSeparator)
	if variable == "" {
		return MacroInfo{}, fmt.Errorf("%w '%s': blank variable", ErrMalformedMacroName, name)
	}

	return MacroInfo{
		ID:        id,
		Variable:  variable,
		DataTable: strings.Join(tokens[:last-1], nameSeparator),
		Scale:     scale,
		MacroName: name,
	}, nil
}

// MacroNameLikePattern matches candidate macro names in the function catalog (LIKE ... ESCAPE '\').
func MacroNameLikePattern() string {
	return `%\` + nameSeparator + MacroNameSuffix
}

const CatalogViewName = "aggregations"

// CatalogViewSQL creates a view over duckdb_functions() that decodes macro names with the same
// token positions as ParseMacroName, so the store file describes its own aggregations.
//
// See https://duckdb.org/docs/sql/meta/duckdb_table_functions#duckdb_functions
func CatalogViewSQL() string {
	var builder QueryBuilder
	builder.WriteString("CREATE OR REPLACE VIEW ")
	builder.WriteIdentifier(CatalogViewName)
	builder.WriteString(" AS SELECT function_name")
	builder.WriteString(", array_to_string(tokens[1:-3], '_') AS data_table")
	builder.WriteString(", array_to_string(tokens[1:-4], '_') AS variable")
	builder.WriteString(", TRY_CAST(tokens[-3] AS INTEGER) AS id")
	builder.WriteString(", tokens[-2] AS aggregation_scale")
	builder.WriteString(" FROM (SELECT DISTINCT function_name, string_split(function_name, ")
	builder.WriteStringLiteral(nameSeparator)
	builder.WriteString(") AS tokens FROM duckdb_functions()")
	builder.WriteString(" WHERE function_type = 'table_macro' AND schema_name = 'main'")
	builder.WriteString(" AND function_name LIKE ")
	builder.WriteStringLiteral(MacroNameLikePattern())
	builder.WriteString(" ESCAPE '\\');")
	return builder.String()
}
