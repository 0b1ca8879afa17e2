package sqlite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// Adapter is the SQLite dialect adapter.
type Adapter struct{}

var _ sql.Adapter = (*Adapter)(nil)

// New returns a SQLite adapter.
func New() *Adapter { return &Adapter{} }

// Dialect returns dialect.SQLite.
func (*Adapter) Dialect() string { return dialect.SQLite }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteModel quotes a table name with double quotes.
func (*Adapter) QuoteModel(name string) string { return quoteIdent(name) }

// QuoteField quotes a column name with double quotes.
func (*Adapter) QuoteField(name string) string { return quoteIdent(name) }

// QuoteString quotes s as a string literal. Backslashes are not special.
func (*Adapter) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// LikeEscape makes backslash the escape character of LIKE patterns.
func (*Adapter) LikeEscape() string { return ` ESCAPE '\'` }

// QuoteLiteral renders v as a SQLite literal. Booleans are 0 or 1 and
// dates are epoch seconds.
func (a *Adapter) QuoteLiteral(t *schema.DataType, v any) (string, error) {
	switch v := v.(type) {
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return strconv.FormatInt(v.Unix(), 10), nil
	}
	if s, ok := sql.Literal(t, v, a.QuoteString); ok {
		return s, nil
	}
	name := "unknown"
	if t != nil {
		name = t.String()
	}
	return "", strata.NewTypeError(name, v, "no SQLite literal")
}

// Decode converts a scanned column value. Epoch integers decode to dates.
func (*Adapter) Decode(t *schema.DataType, raw any) (any, error) {
	return sql.DecodeValue(t, raw)
}

// LimitOffset renders LIMIT and OFFSET. An offset without a limit uses
// LIMIT -1.
func (*Adapter) LimitOffset(limit, offset int) string {
	switch {
	case limit < 0 && offset <= 0:
		return ""
	case offset <= 0:
		return "LIMIT " + strconv.Itoa(limit)
	}
	return "LIMIT " + strconv.Itoa(max(limit, -1)) + " OFFSET " + strconv.Itoa(offset)
}

// OrderedMutations reports false. SQLite only accepts ORDER BY and LIMIT
// on UPDATE and DELETE when built with SQLITE_ENABLE_UPDATE_DELETE_LIMIT.
func (*Adapter) OrderedMutations() bool { return false }

// Returning reports false: generated ids come from last_insert_rowid.
func (*Adapter) Returning() bool { return false }

// Insert renders INSERT or INSERT OR REPLACE.
func (a *Adapter) Insert(table string, columns, values []string, replace bool) (string, error) {
	verb := "INSERT INTO "
	if replace {
		verb = "INSERT OR REPLACE INTO "
	}
	if len(columns) == 0 {
		return verb + a.QuoteModel(table) + " DEFAULT VALUES", nil
	}
	return fmt.Sprintf("%s%s (%s) VALUES (%s)", verb, a.QuoteModel(table),
		strings.Join(columns, ", "), strings.Join(values, ", ")), nil
}
