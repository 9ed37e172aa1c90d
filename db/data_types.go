package db

import (
	"hermannm.dev/enumnames"
)

type DataType uint8

const (
	DataTypeTimestamp DataType = iota + 1
	DataTypeDouble
	DataTypePoint2D
)

var dataTypeNames = enumnames.NewMap(map[DataType]string{
	DataTypeTimestamp: "timestamp",
	DataTypeDouble:    "double",
	DataTypePoint2D:   "point2d",
})

// See https://duckdb.org/docs/sql/data_types/overview and
// https://duckdb.org/docs/extensions/spatial/overview (POINT_2D needs the spatial extension).
var duckDBTypeNames = enumnames.NewMap(map[DataType]string{
	DataTypeTimestamp: "TIMESTAMP",
	DataTypeDouble:    "DOUBLE",
	DataTypePoint2D:   "POINT_2D",
})

func (dataType DataType) IsValid() bool {
	return dataTypeNames.ContainsEnumValue(dataType)
}

func (dataType DataType) String() string {
	return dataTypeNames.GetNameOrFallback(dataType, "INVALID_DATA_TYPE")
}

func (dataType DataType) MarshalJSON() ([]byte, error) {
	return dataTypeNames.MarshalToNameJSON(dataType)
}

func (dataType *DataType) UnmarshalJSON(bytes []byte) error {
	return dataTypeNames.UnmarshalFromNameJSON(bytes, dataType)
}
