package db

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ResultTable is a materialized query result. Values are as scanned from the store, normalized to
// Go scalars (time.Time, float64, int64, string, bool), map[string]any or nil.
type ResultTable struct {
	Columns []string
	Rows    [][]any
}

func (table ResultTable) ColumnIndex(name string) int {
	return slices.Index(table.Columns, name)
}

func (table ResultTable) Len() int {
	return len(table.Rows)
}

// Project keeps the key columns plus one value column, renamed to rename.
func (table ResultTable) Project(keys []string, column string, rename string) (ResultTable, error) {
	indices := make([]int, 0, len(keys)+1)
	for _, name := range append(slices.Clone(keys), column) {
		index := table.ColumnIndex(name)
		if index == -1 {
			return ResultTable{}, fmt.Errorf("result has no column '%s' (columns: %v)", name, table.Columns)
		}
		indices = append(indices, index)
	}

	projected := ResultTable{
		Columns: append(slices.Clone(keys), rename),
		Rows:    make([][]any, 0, len(table.Rows)),
	}
	for _, row := range table.Rows {
		projectedRow := make([]any, len(indices))
		for i, index := range indices {
			projectedRow[i] = row[index]
		}
		projected.Rows = append(projected.Rows, projectedRow)
	}
	return projected, nil
}

// OuterJoin combines two tables on the given key columns, keeping keys present in either side.
// Value columns of a side that lacks a key are nil. Key columns come first in the result, followed
// by the value columns of table and then of other; rows are sorted by key.
//
// An empty table (no columns) is the identity, so fan-in can start from ResultTable{}.
func (table ResultTable) OuterJoin(other ResultTable, on []string) (ResultTable, error) {
	if len(table.Columns) == 0 {
		return other.sortedByKeys(on)
	}
	if len(other.Columns) == 0 {
		return table.sortedByKeys(on)
	}

	left, err := table.split(on)
	if err != nil {
		return ResultTable{}, err
	}
	right, err := other.split(on)
	if err != nil {
		return ResultTable{}, err
	}

	for _, column := range right.valueColumns {
		if slices.Contains(left.valueColumns, column) {
			return ResultTable{}, fmt.Errorf("column '%s' exists on both sides of the join", column)
		}
	}

	joined := ResultTable{Columns: slices.Concat(slices.Clone(on), left.valueColumns, right.valueColumns)}
	rowsByKey := make(map[string][]any, len(left.rows)+len(right.rows))
	width := len(joined.Columns)

	merge := func(row keyedRow, offset int) {
		joinedRow, ok := rowsByKey[row.hash]
		if !ok {
			joinedRow = make([]any, width)
			copy(joinedRow, row.key)
			rowsByKey[row.hash] = joinedRow
			joined.Rows = append(joined.Rows, joinedRow)
		}
		copy(joinedRow[len(on)+offset:], row.values)
	}
	for _, row := range left.rows {
		merge(row, 0)
	}
	for _, row := range right.rows {
		merge(row, len(left.valueColumns))
	}

	sortRowsByKey(joined.Rows, len(on))
	return joined, nil
}

type keyedRow struct {
	hash   string
	key    []any
	values []any
}

type splitTable struct {
	valueColumns []string
	rows         []keyedRow
}

func (table ResultTable) split(keys []string) (splitTable, error) {
	keyIndices := make([]int, 0, len(keys))
	for _, key := range keys {
		index := table.ColumnIndex(key)
		if index == -1 {
			return splitTable{}, fmt.Errorf("join key '%s' missing from columns %v", key, table.Columns)
		}
		keyIndices = append(keyIndices, index)
	}

	var valueIndices []int
	var split splitTable
	for i, column := range table.Columns {
		if !slices.Contains(keyIndices, i) {
			valueIndices = append(valueIndices, i)
			split.valueColumns = append(split.valueColumns, column)
		}
	}

	split.rows = make([]keyedRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		keyed := keyedRow{key: make([]any, len(keyIndices)), values: make([]any, len(valueIndices))}
		for i, index := range keyIndices {
			keyed.key[i] = row[index]
		}
		for i, index := range valueIndices {
			keyed.values[i] = row[index]
		}
		keyed.hash = hashKey(keyed.key)
		split.rows = append(split.rows, keyed)
	}
	return split, nil
}

func (table ResultTable) sortedByKeys(keys []string) (ResultTable, error) {
	for i, key := range keys {
		if i >= len(table.Columns) || table.Columns[i] != key {
			return ResultTable{}, fmt.Errorf("expected key columns %v first, got columns %v", keys, table.Columns)
		}
	}
	sorted := ResultTable{Columns: slices.Clone(table.Columns), Rows: slices.Clone(table.Rows)}
	sortRowsByKey(sorted.Rows, len(keys))
	return sorted, nil
}

func hashKey(key []any) string {
	var builder strings.Builder
	for _, value := range key {
		switch value := value.(type) {
		case time.Time:
			fmt.Fprintf(&builder, "t%d|", value.UnixNano())
		case float64:
			// -0 and 0 are the same coordinate.
			if value == 0 {
				value = 0
			}
			fmt.Fprintf(&builder, "f%v|", value)
		case nil:
			builder.WriteString("n|")
		default:
			fmt.Fprintf(&builder, "%T:%v|", value, value)
		}
	}
	return builder.String()
}

func sortRowsByKey(rows [][]any, keyCount int) {
	slices.SortStableFunc(rows, func(a, b []any) int {
		for i := 0; i < keyCount; i++ {
			if result := compareValues(a[i], b[i]); result != 0 {
				return result
			}
		}
		return 0
	})
}

// Nil sorts first. Values of different kinds compare by their formatted form.
func compareValues(a any, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch a := a.(type) {
	case time.Time:
		if b, ok := b.(time.Time); ok {
			return a.Compare(b)
		}
	case float64:
		if b, ok := toFloat(b); ok {
			return cmp.Compare(a, b)
		}
	case int64:
		if b, ok := toFloat(b); ok {
			return cmp.Compare(float64(a), b)
		}
	case int32:
		if b, ok := toFloat(b); ok {
			return cmp.Compare(float64(a), b)
		}
	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b)
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(value any) (float64, bool) {
	switch value := value.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int64:
		return float64(value), true
	case int32:
		return float64(value), true
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}
