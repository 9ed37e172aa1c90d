package db

import (
	"fmt"

	"hermannm.dev/wrap"
)

// Expr is a node in the small expression tree used to build statements. Only the shapes needed by
// the schema and macro generators are supported.
type Expr interface {
	writeExpr(builder *QueryBuilder)
}

// Column reference, always written as a quoted identifier.
type Column string

// Macro parameter reference. Parameters are declared in the macro signature, so they are written
// bare and must be plain names.
type Param string

type StringLiteral string

type NumberLiteral float64

type BoolLiteral bool

type Call struct {
	Function string
	Args     []Expr
}

type BinaryExpr struct {
	Left     Expr
	Operator string
	Right    Expr
}

func Fn(function string, args ...Expr) Call {
	return Call{Function: function, Args: args}
}

func Mul(left Expr, right Expr) BinaryExpr {
	return BinaryExpr{Left: left, Operator: "*", Right: right}
}

func Div(left Expr, right Expr) BinaryExpr {
	return BinaryExpr{Left: left, Operator: "/", Right: right}
}

func (column Column) writeExpr(builder *QueryBuilder) {
	builder.WriteIdentifier(string(column))
}

func (param Param) writeExpr(builder *QueryBuilder) {
	builder.WriteBareName(string(param))
}

func (literal StringLiteral) writeExpr(builder *QueryBuilder) {
	builder.WriteStringLiteral(string(literal))
}

func (literal NumberLiteral) writeExpr(builder *QueryBuilder) {
	builder.WriteFloat(float64(literal))
}

func (literal BoolLiteral) writeExpr(builder *QueryBuilder) {
	if literal {
		builder.WriteString("true")
	} else {
		builder.WriteString("false")
	}
}

func (call Call) writeExpr(builder *QueryBuilder) {
	builder.WriteBareName(call.Function)
	builder.WriteByte('(')
	writeExprList(builder, call.Args)
	builder.WriteByte(')')
}

func (expr BinaryExpr) writeExpr(builder *QueryBuilder) {
	switch expr.Operator {
	case "*", "/", "+", "-":
	default:
		builder.setErr(fmt.Errorf("unsupported operator '%s'", expr.Operator))
		return
	}

	builder.WriteByte('(')
	expr.Left.writeExpr(builder)
	builder.WriteByte(' ')
	builder.WriteString(expr.Operator)
	builder.WriteByte(' ')
	expr.Right.writeExpr(builder)
	builder.WriteByte(')')
}

func writeExprList(builder *QueryBuilder, exprs []Expr) {
	for i, expr := range exprs {
		if i != 0 {
			builder.WriteString(", ")
		}
		expr.writeExpr(builder)
	}
}

// SelectColumn is one projected expression. An empty Alias writes the expression alone.
type SelectColumn struct {
	Expr  Expr
	Alias string
}

func As(expr Expr, alias string) SelectColumn {
	return SelectColumn{Expr: expr, Alias: alias}
}

// Source is what a SELECT reads from.
type Source interface {
	writeSource(builder *QueryBuilder)
}

type TableSource string

// FileSource reads a file path directly, letting DuckDB pick the reader from the file extension.
type FileSource string

// TableFunctionSource calls a table function or table macro by (quoted) name.
type TableFunctionSource struct {
	Name string
	Args []Expr
}

func (table TableSource) writeSource(builder *QueryBuilder) {
	builder.WriteIdentifier(string(table))
}

func (file FileSource) writeSource(builder *QueryBuilder) {
	builder.WriteStringLiteral(string(file))
}

func (function TableFunctionSource) writeSource(builder *QueryBuilder) {
	builder.WriteIdentifier(function.Name)
	builder.WriteByte('(')
	writeExprList(builder, function.Args)
	builder.WriteByte(')')
}

type CommonTableExpr struct {
	Name  string
	Query SelectStatement
}

type SelectStatement struct {
	With    []CommonTableExpr
	Columns []SelectColumn
	From    Source
	GroupBy []Expr
	OrderBy []Expr
}

func (statement SelectStatement) writeTo(builder *QueryBuilder) {
	if len(statement.With) > 0 {
		builder.WriteString("WITH ")
		for i, cte := range statement.With {
			if i != 0 {
				builder.WriteString(", ")
			}
			builder.WriteIdentifier(cte.Name)
			builder.WriteString(" AS (")
			cte.Query.writeTo(builder)
			builder.WriteByte(')')
		}
		builder.WriteByte(' ')
	}

	builder.WriteString("SELECT ")
	if len(statement.Columns) == 0 {
		builder.WriteByte('*')
	}
	for i, column := range statement.Columns {
		if i != 0 {
			builder.WriteString(", ")
		}
		column.Expr.writeExpr(builder)
		if column.Alias != "" {
			builder.WriteString(" AS ")
			builder.WriteIdentifier(column.Alias)
		}
	}

	if statement.From == nil {
		builder.setErr(fmt.Errorf("select statement has no source"))
		return
	}
	builder.WriteString(" FROM ")
	statement.From.writeSource(builder)

	if len(statement.GroupBy) > 0 {
		builder.WriteString(" GROUP BY ")
		writeExprList(builder, statement.GroupBy)
	}
	if len(statement.OrderBy) > 0 {
		builder.WriteString(" ORDER BY ")
		writeExprList(builder, statement.OrderBy)
	}
}

func (statement SelectStatement) SQL() (string, error) {
	var builder QueryBuilder
	statement.writeTo(&builder)
	return finish(&builder, "select")
}

type ColumnDefinition struct {
	Name     string
	DataType DataType
}

type CreateTableStatement struct {
	Table       string
	Columns     []ColumnDefinition
	IfNotExists bool
}

func (statement CreateTableStatement) SQL() (string, error) {
	var builder QueryBuilder
	builder.WriteString("CREATE TABLE ")
	if statement.IfNotExists {
		builder.WriteString("IF NOT EXISTS ")
	}
	builder.WriteIdentifier(statement.Table)
	builder.WriteString(" (")

	for i, column := range statement.Columns {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteIdentifier(column.Name)
		builder.WriteByte(' ')

		typeName, ok := duckDBTypeNames.GetName(column.DataType)
		if !ok {
			return "", fmt.Errorf(
				"invalid data type '%v' in column '%s'", column.DataType, column.Name,
			)
		}
		builder.WriteString(typeName)
	}
	builder.WriteString(");")

	return finish(&builder, "create table")
}

type InsertSelectStatement struct {
	Table   string
	Columns []string
	Query   SelectStatement
}

func (statement InsertSelectStatement) SQL() (string, error) {
	var builder QueryBuilder
	builder.WriteString("INSERT INTO ")
	builder.WriteIdentifier(statement.Table)

	if len(statement.Columns) > 0 {
		builder.WriteString(" (")
		for i, column := range statement.Columns {
			if i != 0 {
				builder.WriteString(", ")
			}
			builder.WriteIdentifier(column)
		}
		builder.WriteByte(')')
	}

	builder.WriteByte(' ')
	statement.Query.writeTo(&builder)
	builder.WriteByte(';')

	return finish(&builder, "insert")
}

type CreateMacroStatement struct {
	Name   string
	Params []string
	Body   SelectStatement
}

// Renders CREATE OR REPLACE MACRO ... AS TABLE, so registering a macro twice replaces it.
func (statement CreateMacroStatement) SQL() (string, error) {
	var builder QueryBuilder
	builder.WriteString("CREATE OR REPLACE MACRO ")
	builder.WriteIdentifier(statement.Name)
	builder.WriteByte('(')
	for i, param := range statement.Params {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteBareName(param)
	}
	builder.WriteString(") AS TABLE ")
	statement.Body.writeTo(&builder)
	builder.WriteByte(';')

	return finish(&builder, "create macro")
}

type DropTableStatement struct {
	Table string
}

func (statement DropTableStatement) SQL() (string, error) {
	var builder QueryBuilder
	builder.WriteString("DROP TABLE IF EXISTS ")
	builder.WriteIdentifier(statement.Table)
	builder.WriteByte(';')

	return finish(&builder, "drop table")
}

func finish(builder *QueryBuilder, kind string) (string, error) {
	if err := builder.Err(); err != nil {
		return "", wrap.Errorf(err, "failed to build %s statement", kind)
	}
	return builder.String(), nil
}
