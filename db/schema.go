package db

import (
	"hermannm.dev/wrap"
)

// TableSchema is a data table as it is stored: its name plus the dimension layout it was created
// from. The column set is fixed at creation.
type TableSchema struct {
	TableName  string     `json:"tableName"`
	Dimensions Dimensions `json:"dimensions"`
}

func (schema TableSchema) Validate() error {
	if err := ValidateIdentifier(schema.TableName); err != nil {
		return wrap.Error(err, "invalid table name")
	}
	if err := ValidateIdentifiers(schema.nativeColumnNames()...); err != nil {
		return wrap.Errorf(err, "invalid column name in table '%s'", schema.TableName)
	}
	if err := schema.Dimensions.Validate(); err != nil {
		return wrap.Errorf(err, "invalid dimensions for table '%s'", schema.TableName)
	}
	return nil
}

func (schema TableSchema) nativeColumnNames() []string {
	columns := schema.Dimensions.NativeColumns()
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, column.Name)
	}
	return names
}

func (schema TableSchema) ColumnNames() []string {
	columns := schema.Dimensions.Columns()
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, column.Name)
	}
	return names
}

// BuildCreateTableSQL returns idempotent DDL for the table: running it against a store that already
// has the table is a no-op.
func BuildCreateTableSQL(schema TableSchema) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}

	statement := CreateTableStatement{
		Table:       schema.TableName,
		Columns:     schema.Dimensions.Columns(),
		IfNotExists: true,
	}
	return statement.SQL()
}

// BuildInsertSQL returns an INSERT ... SELECT that projects native source columns onto the table's
// canonical columns. The source may be another table (e.g. a staging table) or a file path.
func BuildInsertSQL(schema TableSchema, source Source) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}

	statement := InsertSelectStatement{
		Table:   schema.TableName,
		Columns: schema.ColumnNames(),
		Query: SelectStatement{
			Columns: schema.Dimensions.Projection(),
			From:    source,
		},
	}
	return statement.SQL()
}
