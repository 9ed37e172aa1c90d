package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/parquet-go/parquet-go"
	"hermannm.dev/wrap"
)

const FileExtension = ".parquet"

type columnKind uint8

const (
	// Columns with no non-null values are written as strings.
	kindString columnKind = iota
	kindTimestamp
	kindDouble
	kindInt64
	kindBool
	// Maps and lists, written as JSON text.
	kindJSON
)

// WriteParquet writes the table to path, replacing any existing file. Every column is optional, so
// nulls from outer joins are preserved.
func WriteParquet(path string, table db.ResultTable) error {
	kinds, err := columnKinds(table)
	if err != nil {
		return err
	}

	group := make(parquet.Group, len(table.Columns))
	for i, column := range table.Columns {
		group[column] = parquet.Optional(kinds[i].node())
	}
	schema := parquet.NewSchema("aggregation", group)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrap.Errorf(err, "failed to create result directory for '%s'", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return wrap.Errorf(err, "failed to create result file '%s'", path)
	}
	defer file.Close()

	records := make([]map[string]any, 0, len(table.Rows))
	for rowIndex, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", rowIndex, len(row), len(table.Columns))
		}

		record := make(map[string]any, len(row))
		for i, column := range table.Columns {
			value, err := kinds[i].convert(row[i])
			if err != nil {
				return wrap.Errorf(err, "invalid value in row %d, column '%s'", rowIndex, column)
			}
			record[column] = value
		}
		records = append(records, record)
	}

	writer := parquet.NewGenericWriter[map[string]any](file, &parquet.WriterConfig{Schema: schema})
	if _, err := writer.Write(records); err != nil {
		return wrap.Errorf(err, "failed to write records to '%s'", path)
	}
	if err := writer.Close(); err != nil {
		return wrap.Errorf(err, "failed to finish parquet file '%s'", path)
	}
	if err := file.Close(); err != nil {
		return wrap.Errorf(err, "failed to close '%s'", path)
	}
	return nil
}

// The kind of a column is taken from its first non-null value.
func columnKinds(table db.ResultTable) ([]columnKind, error) {
	kinds := make([]columnKind, len(table.Columns))
	for i, column := range table.Columns {
		for _, row := range table.Rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			kind, err := kindOf(row[i])
			if err != nil {
				return nil, wrap.Errorf(err, "unsupported value in column '%s'", column)
			}
			kinds[i] = kind
			break
		}
	}
	return kinds, nil
}

func kindOf(value any) (columnKind, error) {
	switch value.(type) {
	case time.Time:
		return kindTimestamp, nil
	case float64, float32:
		return kindDouble, nil
	case int64, int32, int:
		return kindInt64, nil
	case bool:
		return kindBool, nil
	case string:
		return kindString, nil
	case map[string]any, []any:
		return kindJSON, nil
	default:
		return 0, fmt.Errorf("type %T", value)
	}
}

func (kind columnKind) node() parquet.Node {
	switch kind {
	case kindTimestamp:
		return parquet.Timestamp(parquet.Microsecond)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindInt64:
		return parquet.Int(64)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	case kindJSON:
		return parquet.JSON()
	default:
		return parquet.String()
	}
}

func (kind columnKind) convert(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch kind {
	case kindTimestamp:
		if value, ok := value.(time.Time); ok {
			return value.UnixMicro(), nil
		}
	case kindDouble:
		switch value := value.(type) {
		case float64:
			return value, nil
		case float32:
			return float64(value), nil
		case int64:
			return float64(value), nil
		}
	case kindInt64:
		switch value := value.(type) {
		case int64:
			return value, nil
		case int32:
			return int64(value), nil
		case int:
			return int64(value), nil
		}
	case kindBool:
		if value, ok := value.(bool); ok {
			return value, nil
		}
	case kindJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	default:
		return fmt.Sprint(value), nil
	}

	return nil, fmt.Errorf("value %v of type %T does not match the column's other values", value, value)
}
