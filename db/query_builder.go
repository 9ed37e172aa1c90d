package db

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// QueryBuilder renders statements for DuckDB. Identifier validation errors are recorded instead of
// returned from every write, so statement rendering can be done in one pass and checked with Err.
type QueryBuilder struct {
	strings.Builder
	err error
}

func (builder *QueryBuilder) WriteInt(i int) {
	builder.WriteString(strconv.Itoa(i))
}

func (builder *QueryBuilder) WriteFloat(f float64) {
	builder.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

// See https://duckdb.org/docs/sql/dialect/keywords_and_identifiers
func (builder *QueryBuilder) WriteIdentifier(identifier string) {
	if err := ValidateIdentifier(identifier); err != nil {
		builder.setErr(err)
		return
	}

	builder.WriteByte('"')
	builder.WriteString(identifier)
	builder.WriteByte('"')
}

// Writes a single-quoted string literal, escaping embedded quotes by doubling them.
func (builder *QueryBuilder) WriteStringLiteral(value string) {
	if strings.ContainsRune(value, 0) {
		builder.setErr(fmt.Errorf("string literal %q contains a NUL byte", value))
		return
	}

	builder.WriteByte('\'')
	builder.WriteString(strings.ReplaceAll(value, "'", "''"))
	builder.WriteByte('\'')
}

// Writes a keyword-like token (function or parameter name) without quoting.
func (builder *QueryBuilder) WriteBareName(name string) {
	if !bareNamePattern.MatchString(name) {
		builder.setErr(fmt.Errorf("'%s' is not a valid unquoted name", name))
		return
	}

	builder.WriteString(name)
}

func (builder *QueryBuilder) Err() error {
	return builder.err
}

func (builder *QueryBuilder) setErr(err error) {
	if builder.err == nil {
		builder.err = err
	}
}

var bareNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func ValidateIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier is blank")
	}
	if strings.ContainsAny(identifier, "\"\x00") {
		return fmt.Errorf("'%s' contains \" or NUL, which is incompatible with database", identifier)
	}

	return nil
}

func ValidateIdentifiers(identifiers ...string) error {
	for _, identifier := range identifiers {
		if err := ValidateIdentifier(identifier); err != nil {
			return err
		}
	}

	return nil
}
