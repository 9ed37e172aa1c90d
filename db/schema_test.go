package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCreateTableSQL(t *testing.T) {
	cases := []struct {
		name     string
		schema   TableSchema
		expected string
	}{
		{
			name: "scalar axes",
			schema: TableSchema{
				TableName: "pr_3",
				Dimensions: Dimensions{
					Temporal:  []string{"date"},
					Spatial:   []string{"rlon", "rlat"},
					Variables: []string{"pr"},
				},
			},
			expected: `CREATE TABLE IF NOT EXISTS "pr_3" ("time" TIMESTAMP, "lon" DOUBLE, "lat" DOUBLE, "pr" DOUBLE);`,
		},
		{
			name: "geometry cell",
			schema: TableSchema{
				TableName: "pr_3",
				Dimensions: Dimensions{
					Temporal:        []string{"date"},
					Spatial:         []string{"rlon", "rlat"},
					Variables:       []string{"pr", "tas"},
					UseGeometryCell: true,
				},
			},
			expected: `CREATE TABLE IF NOT EXISTS "pr_3" ("time" TIMESTAMP, "cell" POINT_2D, "pr" DOUBLE, "tas" DOUBLE);`,
		},
		{
			name: "time series",
			schema: TableSchema{
				TableName:  "discharge_9",
				Dimensions: Dimensions{Temporal: []string{"tstamp"}, Variables: []string{"q"}},
			},
			expected: `CREATE TABLE IF NOT EXISTS "discharge_9" ("time" TIMESTAMP, "q" DOUBLE);`,
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			query, err := BuildCreateTableSQL(testCase.schema)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, query)
		})
	}
}

func TestBuildInsertSQL(t *testing.T) {
	schema := TableSchema{
		TableName: "pr_3",
		Dimensions: Dimensions{
			Temporal:  []string{"date"},
			Spatial:   []string{"rlon", "rlat"},
			Variables: []string{"pr"},
		},
	}

	query, err := BuildInsertSQL(schema, FileSource("/data/it's.parquet"))
	require.NoError(t, err)
	assert.Equal(
		t,
		`INSERT INTO "pr_3" ("time", "lon", "lat", "pr") SELECT "date" AS "time", "rlon" AS "lon", "rlat" AS "lat", "pr" FROM '/data/it''s.parquet';`,
		query,
	)

	schema.Dimensions.UseGeometryCell = true
	query, err = BuildInsertSQL(schema, TableSource("staging"))
	require.NoError(t, err)
	assert.Equal(
		t,
		`INSERT INTO "pr_3" ("time", "cell", "pr") SELECT "date" AS "time", ST_Point2D("rlon", "rlat") AS "cell", "pr" FROM "staging";`,
		query,
	)
}

func TestUnsupportedDimensions(t *testing.T) {
	cases := map[string]Dimensions{
		"1D spatial":         {Spatial: []string{"x"}, Variables: []string{"v"}},
		"3D spatial":         {Spatial: []string{"x", "y", "z"}, Variables: []string{"v"}},
		"two time axes":      {Temporal: []string{"t1", "t2"}, Variables: []string{"v"}},
		"no variables":       {Temporal: []string{"t"}},
		"1D geometry cell":   {Spatial: []string{"x"}, Variables: []string{"v"}, UseGeometryCell: true},
		"precision variable": {Temporal: []string{"t"}, Variables: []string{"precision"}},
		"resolution variable": {
			Spatial: []string{"lon", "lat"}, Variables: []string{"Resolution"},
		},
		"time variable":     {Temporal: []string{"tstamp"}, Variables: []string{"time"}},
		"lon variable":      {Spatial: []string{"x", "y"}, Variables: []string{"lon"}},
		"cell variable":     {Spatial: []string{"lon", "lat"}, Variables: []string{"cell"}},
		"x variable":        {Spatial: []string{"lon", "lat"}, Variables: []string{"X"}},
		"point variable":    {Spatial: []string{"lon", "lat"}, Variables: []string{"point"}},
		"repeated variable": {Temporal: []string{"t"}, Variables: []string{"pr", "PR"}},
	}

	for name, dims := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildCreateTableSQL(TableSchema{TableName: "t_1", Dimensions: dims})
			assert.ErrorIs(t, err, ErrUnsupportedDimensions)
		})
	}
}

func TestInvalidIdentifiers(t *testing.T) {
	schema := TableSchema{
		TableName:  `bad"name`,
		Dimensions: Dimensions{Temporal: []string{"t"}, Variables: []string{"v"}},
	}
	_, err := BuildCreateTableSQL(schema)
	assert.Error(t, err)

	schema.TableName = "ok_1"
	schema.Dimensions.Variables = []string{"v\x00"}
	_, err = BuildCreateTableSQL(schema)
	assert.Error(t, err)

	schema.Dimensions.Variables = []string{"v"}
	schema.Dimensions.Temporal = []string{`t"`}
	_, err = BuildCreateTableSQL(schema)
	assert.ErrorContains(t, err, "invalid column name")
}
