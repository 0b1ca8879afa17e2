package postgres

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// Adapter is the PostgreSQL dialect adapter.
type Adapter struct{}

var _ sql.Adapter = (*Adapter)(nil)

// New returns a PostgreSQL adapter.
func New() *Adapter { return &Adapter{} }

// Dialect returns dialect.Postgres.
func (*Adapter) Dialect() string { return dialect.Postgres }

// QuoteModel quotes a table name with double quotes.
func (*Adapter) QuoteModel(name string) string { return pq.QuoteIdentifier(name) }

// QuoteField quotes a column name with double quotes.
func (*Adapter) QuoteField(name string) string { return pq.QuoteIdentifier(name) }

// QuoteString quotes s as a string literal. Strings holding backslashes
// use the E'' escape syntax.
func (*Adapter) QuoteString(s string) string {
	return strings.TrimLeft(pq.QuoteLiteral(s), " ")
}

// LikeOperator returns ILIKE: like matches case-insensitively.
func (*Adapter) LikeOperator() string { return "ILIKE" }

// NullsOrder places NULL below every value, as MySQL and SQLite do.
func (*Adapter) NullsOrder(descending bool) string {
	if descending {
		return " NULLS LAST"
	}
	return " NULLS FIRST"
}

// QuoteLiteral renders v as a PostgreSQL literal.
func (a *Adapter) QuoteLiteral(t *schema.DataType, v any) (string, error) {
	switch v := v.(type) {
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case []byte:
		return "decode('" + hex.EncodeToString(v) + "', 'hex')", nil
	}
	if s, ok := sql.Literal(t, v, a.QuoteString); ok {
		return s, nil
	}
	name := "unknown"
	if t != nil {
		name = t.String()
	}
	return "", strata.NewTypeError(name, v, "no PostgreSQL literal")
}

// Decode converts a scanned column value. lib/pq returns native times,
// booleans and numbers, and bytes for JSON columns.
func (*Adapter) Decode(t *schema.DataType, raw any) (any, error) {
	return sql.DecodeValue(t, raw)
}

// LimitOffset renders LIMIT and OFFSET.
func (*Adapter) LimitOffset(limit, offset int) string {
	var parts []string
	if limit >= 0 {
		parts = append(parts, "LIMIT "+strconv.Itoa(limit))
	}
	if offset > 0 {
		parts = append(parts, "OFFSET "+strconv.Itoa(offset))
	}
	return strings.Join(parts, " ")
}

// OrderedMutations reports false: UPDATE and DELETE take no ORDER BY or
// LIMIT.
func (*Adapter) OrderedMutations() bool { return false }

// Returning reports true: generated ids are read with RETURNING.
func (*Adapter) Returning() bool { return true }

// Insert renders INSERT. Replacing inserts are not supported.
func (a *Adapter) Insert(table string, columns, values []string, replace bool) (string, error) {
	if replace {
		return "", strata.NewUnsupportedOperationError("replace", dialect.Postgres)
	}
	if len(columns) == 0 {
		return "INSERT INTO " + a.QuoteModel(table) + " DEFAULT VALUES", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", a.QuoteModel(table),
		strings.Join(columns, ", "), strings.Join(values, ", ")), nil
}
