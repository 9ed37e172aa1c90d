package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	"hermannm.dev/wrap"
)

// Reader reads a CSV file with a header row. It implements db.DataSource, returning every column
// in file order; use Select to read a subset in a given order.
type Reader struct {
	inner      *csv.Reader
	header     []string
	currentRow int
}

func NewReader(csvFile io.ReadSeeker) (*Reader, error) {
	delimiter, err := DeduceFieldDelimiter(csvFile, delimiterSampleRows, DefaultDelimitersToCheck)
	if err != nil {
		return nil, err
	}

	inner := csv.NewReader(csvFile)
	inner.ReuseRecord = true
	inner.Comma = delimiter
	inner.TrimLeadingSpace = true

	reader := &Reader{inner: inner}

	header, err := inner.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv file ended before header row")
		}
		return nil, wrap.Error(err, "failed to read CSV header row")
	}
	reader.header = slices.Clone(header)
	reader.currentRow = 1

	return reader, nil
}

func (reader *Reader) Header() []string {
	return reader.header
}

// Implements db.DataSource. Row numbers count the header as row 1.
func (reader *Reader) ReadRow() (row []string, rowNumber int, done bool, err error) {
	reader.currentRow++

	row, err = reader.inner.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, true, nil
		}
		return nil, reader.currentRow, false, wrap.Errorf(err, "failed to read CSV row %d", reader.currentRow)
	}

	return row, reader.currentRow, false, nil
}

// Select returns a db.DataSource yielding only the named columns, in the order given.
func (reader *Reader) Select(columns []string) (*ColumnSelector, error) {
	indices := make([]int, 0, len(columns))
	var missing []string
	for _, column := range columns {
		index := slices.Index(reader.header, column)
		if index == -1 {
			missing = append(missing, column)
			continue
		}
		indices = append(indices, index)
	}
	if len(missing) != 0 {
		return nil, fmt.Errorf("CSV file is missing columns %v (header: %v)", missing, reader.header)
	}

	return &ColumnSelector{reader: reader, indices: indices, row: make([]string, len(indices))}, nil
}

type ColumnSelector struct {
	reader  *Reader
	indices []int
	row     []string
}

// Implements db.DataSource. The returned row is reused between calls.
func (selector *ColumnSelector) ReadRow() (row []string, rowNumber int, done bool, err error) {
	fullRow, rowNumber, done, err := selector.reader.ReadRow()
	if done || err != nil {
		return nil, rowNumber, done, err
	}

	for i, index := range selector.indices {
		if index >= len(fullRow) {
			return nil, rowNumber, false, fmt.Errorf(
				"CSV row %d has %d fields, expected %d", rowNumber, len(fullRow), len(selector.reader.header),
			)
		}
		selector.row[i] = fullRow[index]
	}
	return selector.row, rowNumber, false, nil
}
