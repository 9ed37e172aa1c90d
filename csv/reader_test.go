package csv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduceFieldDelimiter(t *testing.T) {
	cases := map[string]struct {
		input    string
		expected rune
	}{
		"comma":     {"time,lon,lat,pr\n2020-01-01,8.4,49.0,1.5\n", ','},
		"semicolon": {"time;lon;lat;pr\n2020-01-01;8,4;49,0;1,5\n", ';'},
		"tab":       {"time\tpr\n2020-01-01\t1.5\n", '\t'},
		"pipe":      {"time|pr\n2020-01-01|1.5\n", '|'},
		// Commas inside the values vary per row, semicolons do not.
		"consistent wins": {"a;b\n1,5;2\n1,5;2,5\n", ';'},
	}

	for name, testCase := range cases {
		t.Run(name, func(t *testing.T) {
			file := strings.NewReader(testCase.input)
			delimiter, err := DeduceFieldDelimiter(file, delimiterSampleRows, nil)
			require.NoError(t, err)
			assert.Equal(t, string(testCase.expected), string(delimiter))

			position, err := file.Seek(0, 1)
			require.NoError(t, err)
			assert.Zero(t, position)
		})
	}
}

func TestReader(t *testing.T) {
	reader, err := NewReader(strings.NewReader("time; pr\n2020-01-01; 1.5\n2020-01-02;\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "pr"}, reader.Header())

	row, rowNumber, done, err := reader.ReadRow()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 2, rowNumber)
	assert.Equal(t, []string{"2020-01-01", "1.5"}, row)

	row, rowNumber, done, err = reader.ReadRow()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 3, rowNumber)
	assert.Equal(t, []string{"2020-01-02", ""}, row)

	_, _, done, err = reader.ReadRow()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestReaderEmptyFile(t *testing.T) {
	_, err := NewReader(strings.NewReader(""))
	assert.ErrorContains(t, err, "before header row")
}

func TestSelect(t *testing.T) {
	reader, err := NewReader(strings.NewReader("pr,lat,time,lon\n1.5,49.0,2020-01-01,8.4\n"))
	require.NoError(t, err)

	selector, err := reader.Select([]string{"time", "lon", "lat", "pr"})
	require.NoError(t, err)

	row, rowNumber, done, err := selector.ReadRow()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 2, rowNumber)
	assert.Equal(t, []string{"2020-01-01", "8.4", "49.0", "1.5"}, row)

	_, _, done, err = selector.ReadRow()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSelectMissingColumns(t *testing.T) {
	reader, err := NewReader(strings.NewReader("time,pr\n2020-01-01,1.5\n"))
	require.NoError(t, err)

	_, err = reader.Select([]string{"time", "lon", "lat"})
	assert.ErrorContains(t, err, "[lon lat]")
}
