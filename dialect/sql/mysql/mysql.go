package mysql

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// maxRows is the LIMIT MySQL needs to express an offset without limit.
const maxRows = "18446744073709551615"

// Adapter is the MySQL dialect adapter.
type Adapter struct{}

var _ sql.Adapter = (*Adapter)(nil)

// New returns a MySQL adapter.
func New() *Adapter { return &Adapter{} }

// Dialect returns dialect.MySQL.
func (*Adapter) Dialect() string { return dialect.MySQL }

// QuoteModel quotes a table name with backticks.
func (*Adapter) QuoteModel(name string) string { return quoteIdent(name) }

// QuoteField quotes a column name with backticks.
func (*Adapter) QuoteField(name string) string { return quoteIdent(name) }

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	"'", `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

// QuoteString quotes s as a string literal, escaping with backslashes.
func (*Adapter) QuoteString(s string) string {
	return "'" + stringEscaper.Replace(s) + "'"
}

// QuoteLiteral renders v as a MySQL literal. Booleans are 1 and 0, dates
// and datetimes are UTC strings.
func (a *Adapter) QuoteLiteral(t *schema.DataType, v any) (string, error) {
	if b, ok := v.(bool); ok {
		if b {
			return "1", nil
		}
		return "0", nil
	}
	if s, ok := sql.Literal(t, v, a.QuoteString); ok {
		return s, nil
	}
	return "", strata.NewTypeError(typeName(t), v, "no MySQL literal")
}

func typeName(t *schema.DataType) string {
	if t == nil {
		return "unknown"
	}
	return t.String()
}

// Decode converts a scanned column value. Without parseTime the driver
// returns every column as bytes.
func (*Adapter) Decode(t *schema.DataType, raw any) (any, error) {
	return sql.DecodeValue(t, raw)
}

// LimitOffset renders LIMIT and OFFSET. MySQL has no OFFSET without LIMIT,
// so an offset alone uses the largest row count.
func (*Adapter) LimitOffset(limit, offset int) string {
	switch {
	case limit < 0 && offset <= 0:
		return ""
	case limit < 0:
		return "LIMIT " + maxRows + " OFFSET " + strconv.Itoa(offset)
	case offset <= 0:
		return "LIMIT " + strconv.Itoa(limit)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// OrderedMutations reports true: UPDATE and DELETE accept ORDER BY and LIMIT.
func (*Adapter) OrderedMutations() bool { return true }

// Returning reports false: ids are read from the driver result.
func (*Adapter) Returning() bool { return false }

// Insert renders INSERT, or REPLACE when replace is set.
func (a *Adapter) Insert(table string, columns, values []string, replace bool) (string, error) {
	verb := "INSERT"
	if replace {
		verb = "REPLACE"
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, a.QuoteModel(table),
		strings.Join(columns, ", "), strings.Join(values, ", ")), nil
}
