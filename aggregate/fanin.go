package aggregate

import (
	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/wrap"
)

// MeanColumn is the aggregate carried into the combined result of a scale.
const MeanColumn = "mean"

// ExtractMean projects a table's result to the scale's key columns plus its mean column, renamed
// to the table name.
func ExtractMean(scale db.Scale, table string, result db.ResultTable) (db.ResultTable, error) {
	projection, err := result.Project(scale.KeyColumns(), MeanColumn, table)
	if err != nil {
		return db.ResultTable{}, wrap.Errorf(err, "cannot extract '%s' column of table '%s'", MeanColumn, table)
	}
	return projection, nil
}

// MeanReducer combines per-table mean projections into one wide table by outer joins on the
// scale's key columns. Steps depend on each other, so Add must be called sequentially.
type MeanReducer struct {
	keys   []string
	joined db.ResultTable
	tables []string
}

func NewMeanReducer(scale db.Scale) *MeanReducer {
	return &MeanReducer{keys: scale.KeyColumns()}
}

func (reducer *MeanReducer) Add(table string, projection db.ResultTable) error {
	joined, err := reducer.joined.OuterJoin(projection, reducer.keys)
	if err != nil {
		return wrap.Errorf(err, "failed to join means of table '%s'", table)
	}
	reducer.joined = joined
	reducer.tables = append(reducer.tables, table)
	return nil
}

// Tables returns the tables joined so far, in join order.
func (reducer *MeanReducer) Tables() []string {
	return reducer.tables
}

func (reducer *MeanReducer) Result() db.ResultTable {
	return reducer.joined
}
