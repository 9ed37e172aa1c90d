package db

import (
	"fmt"
	"strconv"
	"time"

	"hermannm.dev/wrap"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ConvertRow converts raw text fields to the Go values of the given columns, appending them to
// convertedRow. Blank fields become nil.
func ConvertRow(convertedRow []any, columns []ColumnDefinition, rawRow []string) ([]any, error) {
	if len(rawRow) != len(columns) {
		return nil, fmt.Errorf("row has %d fields, expected %d", len(rawRow), len(columns))
	}

	for i, field := range rawRow {
		column := columns[i]

		convertedField, err := convertField(field, column.DataType)
		if err != nil {
			return nil, wrap.Errorf(
				err,
				"failed to convert field '%s' to %s for column '%s'",
				field,
				column.DataType,
				column.Name,
			)
		}

		convertedRow = append(convertedRow, convertedField)
	}

	return convertedRow, nil
}

func convertField(field string, dataType DataType) (any, error) {
	if field == "" {
		return nil, nil
	}

	switch dataType {
	case DataTypeDouble:
		return strconv.ParseFloat(field, 64)
	case DataTypeTimestamp:
		for _, layout := range timestampLayouts {
			if value, err := time.Parse(layout, field); err == nil {
				return value.UTC(), nil
			}
		}
		return nil, fmt.Errorf("unrecognized timestamp format (expected one of %v)", timestampLayouts)
	}

	return nil, fmt.Errorf("data type '%s' cannot be converted from text", dataType)
}
