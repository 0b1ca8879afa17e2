package sql

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
)

// Adapter translates data types, literals and schema operations to one
// SQL dialect. Table names passed to an Adapter are physical and unquoted.
// Schema operations return the statements to run in order; a Database runs
// sequences of more than one statement in a transaction.
type Adapter interface {
	expr.Quoter

	// Dialect returns the dialect name, also the database/sql driver name.
	Dialect() string
	// Decode converts a scanned column value to the native representation of t.
	Decode(t *schema.DataType, raw any) (any, error)
	// LimitOffset renders the LIMIT and OFFSET clause. A negative limit
	// means no limit. It returns "" when neither applies.
	LimitOffset(limit, offset int) string
	// OrderedMutations reports whether UPDATE and DELETE accept ORDER BY
	// and LIMIT.
	OrderedMutations() bool
	// Returning reports whether generated ids are read with RETURNING
	// instead of the driver's last insert id.
	Returning() bool
	// Insert renders an INSERT of the quoted columns and encoded values.
	Insert(table string, columns, values []string, replace bool) (string, error)

	CreateTable(table string, def *schema.Definition) ([]string, error)
	DropTable(table string) []string
	RenameTable(from, to string) []string
	AddColumn(table, field string, t *schema.DataType) ([]string, error)
	AlterColumn(table string, current *schema.Definition, field string, t *schema.DataType) ([]string, error)
	RenameColumn(table string, current *schema.Definition, from, to string) ([]string, error)
	DeleteColumn(table string, current *schema.Definition, field string) ([]string, error)
	CreateKey(table string, key schema.Key) ([]string, error)
	DeleteKey(table, name string) []string

	// Tables lists the tables of the database.
	Tables(ctx context.Context, db *Database) ([]string, error)
	// Definition introspects a table. It fails with a
	// *strata.InvalidTableError when the table does not exist and a
	// *strata.MigrationTypeError for column types it cannot map.
	Definition(ctx context.Context, db *Database, table string) (*schema.Definition, error)
}

// NullsOrderer is implemented by adapters whose database sorts NULL above
// other values. NullsOrder returns the suffix of an ORDER BY term that
// sorts NULL first ascending and last descending.
type NullsOrderer interface {
	NullsOrder(descending bool) string
}

// Encode converts v to the native representation of t, validates it and
// renders it as a literal.
func Encode(q expr.Quoter, t *schema.DataType, v any) (string, error) {
	if v == nil {
		if !t.IsNullable() {
			return "", strata.NewTypeError(t.String(), nil, "not nullable")
		}
		return "NULL", nil
	}
	cv := t.Convert(v, false)
	if cv == nil || !t.IsValid(cv) {
		return "", strata.NewTypeError(t.String(), v, "")
	}
	return q.QuoteLiteral(t, cv)
}

// DecodeValue converts a scanned value to the native representation of t.
// Text protocols return every column as bytes; those are read as strings
// unless t is binary.
func DecodeValue(t *schema.DataType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok && t.Kind() != schema.KindBinary {
		raw = string(b)
	}
	v := t.Convert(raw, false)
	if v == nil {
		return nil, strata.NewTypeError(t.String(), raw, "cannot decode column value")
	}
	return v, nil
}

// Literal renders the common literal forms shared by the dialects: NULL,
// numbers, strings through quote, JSON objects, hex blobs and times in the
// given date and datetime layouts. Booleans and kinds needing dialect
// specific syntax are left to the caller, signalled by ok == false.
func Literal(t *schema.DataType, v any, quote func(string) string) (s string, ok bool) {
	if v == nil {
		return "NULL", true
	}
	if t != nil && t.Kind() == schema.KindObject {
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return quote(string(b)), true
	}
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case string:
		return quote(v), true
	case time.Time:
		if t != nil && t.Kind() == schema.KindDate {
			return quote(v.UTC().Format(schema.DateLayout)), true
		}
		return quote(v.UTC().Format(schema.DateTimeLayout)), true
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'", true
	}
	if rv := reflect.ValueOf(v); rv.CanInt() || rv.CanUint() || rv.CanFloat() {
		return fmt.Sprint(v), true
	}
	return "", false
}

// FieldList quotes and comma joins column names.
func FieldList(q expr.Quoter, fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = q.QuoteField(f)
	}
	return strings.Join(quoted, ", ")
}

// AsString returns a scanned metadata value as a string.
func AsString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}

// AsInt returns a scanned metadata value as an integer, or 0.
func AsInt(v any) int64 {
	n, _ := toInt64(v)
	return n
}
