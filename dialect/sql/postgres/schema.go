package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// integerType maps an integer type to its storage type. Unsigned integers
// take the next larger size, except BIGINT which has none.
func integerType(t *schema.DataType) string {
	size, _ := t.Size()
	if signed, _ := t.IsSigned(); signed {
		return signedTypes[size]
	}
	return unsignedTypes[size]
}

var (
	signedTypes = map[schema.SizeClass]string{
		schema.SizeTiny:    "SMALLINT",
		schema.SizeSmall:   "SMALLINT",
		schema.SizeDefault: "INTEGER",
		schema.SizeBig:     "BIGINT",
	}
	unsignedTypes = map[schema.SizeClass]string{
		schema.SizeTiny:    "SMALLINT",
		schema.SizeSmall:   "INTEGER",
		schema.SizeDefault: "BIGINT",
		schema.SizeBig:     "BIGINT",
	}
)

var serials = map[string]string{
	"SMALLINT": "SMALLSERIAL",
	"INTEGER":  "SERIAL",
	"BIGINT":   "BIGSERIAL",
}

// columnType renders the storage type of t. Serial types are only used
// when serial is set, since they are not valid in ALTER COLUMN TYPE.
func (a *Adapter) columnType(t *schema.DataType, serial bool) (string, error) {
	switch t.Kind() {
	case schema.KindInteger:
		typ := integerType(t)
		if auto, _ := t.IsAutoIncrement(); auto && serial {
			typ = serials[typ]
		}
		return typ, nil
	case schema.KindString:
		n, _ := t.Length()
		return fmt.Sprintf("VARCHAR(%d)", n), nil
	case schema.KindText:
		return "TEXT", nil
	case schema.KindBoolean:
		return "BOOLEAN", nil
	case schema.KindFloat:
		return "DOUBLE PRECISION", nil
	case schema.KindDate:
		return "DATE", nil
	case schema.KindDateTime:
		return "TIMESTAMP", nil
	case schema.KindBinary:
		return "BYTEA", nil
	case schema.KindObject:
		return "JSONB", nil
	case schema.KindEnum:
		values, _ := t.EnumValues()
		n := 1
		for _, v := range values {
			n = max(n, len(v))
		}
		return fmt.Sprintf("VARCHAR(%d)", n), nil
	}
	return "", strata.NewTypeError(t.String(), nil, "no PostgreSQL column type")
}

func (a *Adapter) defaultValue(t *schema.DataType) (string, bool, error) {
	v, ok := t.Default()
	if !ok {
		return "", false, nil
	}
	lit, err := sql.Encode(a, t, v)
	if err != nil {
		return "", false, err
	}
	return lit, true, nil
}

func (a *Adapter) enumCheck(name string, t *schema.DataType) string {
	values, _ := t.EnumValues()
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = a.QuoteString(v)
	}
	return "CHECK (" + a.QuoteField(name) + " IN (" + strings.Join(quoted, ", ") + "))"
}

// column renders a column definition.
func (a *Adapter) column(name string, t *schema.DataType) (string, error) {
	typ, err := a.columnType(t, true)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(a.QuoteField(name) + " " + typ)
	if t.IsNullable() {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if auto, _ := t.IsAutoIncrement(); !auto {
		lit, ok, err := a.defaultValue(t)
		if err != nil {
			return "", err
		}
		if ok {
			b.WriteString(" DEFAULT " + lit)
		}
	}
	if t.Kind() == schema.KindEnum {
		b.WriteString(" " + a.enumCheck(name, t))
	}
	return b.String(), nil
}

func (a *Adapter) index(table string, k schema.Key) string {
	kind := "INDEX"
	if k.Unique {
		kind = "UNIQUE INDEX"
	}
	return "CREATE " + kind + " " + a.QuoteModel(k.Name) + " ON " + a.QuoteModel(table) + " (" + sql.FieldList(a, k.Columns) + ")"
}

// CreateTable renders CREATE TABLE followed by one CREATE INDEX per key.
func (a *Adapter) CreateTable(table string, def *schema.Definition) ([]string, error) {
	var parts []string
	for _, f := range def.Columns() {
		col, err := a.column(f.Name, f.Type)
		if err != nil {
			return nil, err
		}
		parts = append(parts, col)
	}
	if pk := def.PrimaryKey(); len(pk) > 0 {
		parts = append(parts, "PRIMARY KEY ("+sql.FieldList(a, pk)+")")
	}
	stmts := []string{"CREATE TABLE " + a.QuoteModel(table) + " (" + strings.Join(parts, ", ") + ")"}
	for _, k := range def.Keys() {
		stmts = append(stmts, a.index(table, k))
	}
	return stmts, nil
}

// DropTable renders DROP TABLE.
func (a *Adapter) DropTable(table string) []string {
	return []string{"DROP TABLE " + a.QuoteModel(table)}
}

// RenameTable renders ALTER TABLE RENAME TO.
func (a *Adapter) RenameTable(from, to string) []string {
	return []string{"ALTER TABLE " + a.QuoteModel(from) + " RENAME TO " + a.QuoteModel(to)}
}

// AddColumn renders ADD COLUMN.
func (a *Adapter) AddColumn(table, field string, t *schema.DataType) ([]string, error) {
	col, err := a.column(field, t)
	if err != nil {
		return nil, err
	}
	return []string{"ALTER TABLE " + a.QuoteModel(table) + " ADD COLUMN " + col}, nil
}

// AlterColumn changes the type, nullability and default of a column in a
// single ALTER TABLE. Existing values are cast to the new type.
func (a *Adapter) AlterColumn(table string, _ *schema.Definition, field string, t *schema.DataType) ([]string, error) {
	typ, err := a.columnType(t, false)
	if err != nil {
		return nil, err
	}
	col := "ALTER COLUMN " + a.QuoteField(field)
	clauses := []string{col + " TYPE " + typ + " USING " + a.QuoteField(field) + "::" + typ}
	if t.IsNullable() {
		clauses = append(clauses, col+" DROP NOT NULL")
	} else {
		clauses = append(clauses, col+" SET NOT NULL")
	}
	if auto, _ := t.IsAutoIncrement(); !auto {
		lit, ok, err := a.defaultValue(t)
		switch {
		case err != nil:
			return nil, err
		case ok:
			clauses = append(clauses, col+" SET DEFAULT "+lit)
		default:
			clauses = append(clauses, col+" DROP DEFAULT")
		}
	}
	return []string{"ALTER TABLE " + a.QuoteModel(table) + " " + strings.Join(clauses, ", ")}, nil
}

// RenameColumn renders RENAME COLUMN.
func (a *Adapter) RenameColumn(table string, _ *schema.Definition, from, to string) ([]string, error) {
	return []string{"ALTER TABLE " + a.QuoteModel(table) + " RENAME COLUMN " + a.QuoteField(from) + " TO " + a.QuoteField(to)}, nil
}

// DeleteColumn renders DROP COLUMN.
func (a *Adapter) DeleteColumn(table string, _ *schema.Definition, field string) ([]string, error) {
	return []string{"ALTER TABLE " + a.QuoteModel(table) + " DROP COLUMN " + a.QuoteField(field)}, nil
}

// CreateKey renders CREATE INDEX or CREATE UNIQUE INDEX.
func (a *Adapter) CreateKey(table string, key schema.Key) ([]string, error) {
	if len(key.Columns) == 0 {
		return nil, fmt.Errorf("strata: key %q has no columns", key.Name)
	}
	return []string{a.index(table, key)}, nil
}

// DeleteKey renders DROP INDEX.
func (a *Adapter) DeleteKey(_, name string) []string {
	return []string{"DROP INDEX " + a.QuoteModel(name)}
}

const (
	tablesQuery = "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name"
	columnsQuery = "SELECT column_name, data_type, is_nullable, column_default, character_maximum_length " +
		"FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 " +
		"ORDER BY ordinal_position"
	indexesQuery = "SELECT i.relname AS index_name, ix.indisunique AS is_unique, ix.indisprimary AS is_primary, a.attname AS column_name " +
		"FROM pg_index ix " +
		"JOIN pg_class t ON t.oid = ix.indrelid " +
		"JOIN pg_class i ON i.oid = ix.indexrelid " +
		"JOIN pg_namespace n ON n.oid = t.relnamespace " +
		"JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true " +
		"JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum " +
		"WHERE n.nspname = current_schema() AND t.relname = $1 " +
		"ORDER BY i.relname, k.ord"
)

// Tables lists the base tables of the current schema.
func (a *Adapter) Tables(ctx context.Context, db *sql.Database) ([]string, error) {
	rows, err := fetchAll(ctx, db, tablesQuery)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, sql.AsString(r["table_name"]))
	}
	return tables, nil
}

// Definition introspects table from information_schema and pg_index.
func (a *Adapter) Definition(ctx context.Context, db *sql.Database, table string) (*schema.Definition, error) {
	rows, err := fetchAll(ctx, db, columnsQuery, table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, strata.NewInvalidTableError(table)
	}
	b := schema.NewDefinition(table)
	for _, r := range rows {
		name := sql.AsString(r["column_name"])
		t, err := parseColumn(table, name, r)
		if err != nil {
			return nil, err
		}
		b.AddField(name, t)
	}
	indexes, err := fetchAll(ctx, db, indexesQuery, table)
	if err != nil {
		return nil, err
	}
	var (
		keys []schema.Key
		pos  = make(map[string]int)
	)
	for _, r := range indexes {
		name := sql.AsString(r["index_name"])
		i, ok := pos[name]
		if !ok {
			i = len(keys)
			pos[name] = i
			keys = append(keys, schema.Key{Name: name, Unique: isTrue(r["is_unique"])})
		}
		keys[i].Columns = append(keys[i].Columns, sql.AsString(r["column_name"]))
		if isTrue(r["is_primary"]) {
			keys[i].Name = ""
		}
	}
	for _, k := range keys {
		switch {
		case k.Name == "":
			b.SetPrimaryKey(k.Columns...)
		case k.Unique:
			b.AddUnique(k.Name, k.Columns...)
		default:
			b.AddKey(k.Name, k.Columns...)
		}
	}
	return b.Build()
}

func fetchAll(ctx context.Context, db *sql.Database, query string, args ...any) ([]map[string]any, error) {
	rs, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs.All()
}

func isTrue(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case nil:
		return false
	}
	s := strings.ToLower(sql.AsString(v))
	return s == "t" || s == "true" || s == "1"
}

// parseColumn maps an information_schema.columns row back to a data type.
// Serial columns come back as unsigned auto increment integers of the
// size they were widened from.
func parseColumn(table, name string, r map[string]any) (*schema.DataType, error) {
	typ := strings.ToLower(sql.AsString(r["data_type"]))
	var opts []schema.TypeOption
	if strings.EqualFold(sql.AsString(r["is_nullable"]), "YES") {
		opts = append(opts, schema.Nullable())
	}
	def, hasDefault := "", r["column_default"] != nil
	if hasDefault {
		def = sql.AsString(r["column_default"])
	}
	serial := hasDefault && strings.HasPrefix(def, "nextval(")
	if hasDefault && !serial {
		if v, ok := parseDefault(def); ok {
			opts = append(opts, schema.Default(v))
		}
	}
	switch typ {
	case "smallint", "integer", "bigint":
		if serial {
			flags := schema.Unsigned | schema.AutoIncrement
			switch typ {
			case "smallint":
				flags |= schema.Tiny
			case "integer":
				flags |= schema.Small
			}
			return schema.Integer(flags, opts...), nil
		}
		flags := map[string]schema.IntegerFlag{"smallint": schema.Small, "integer": 0, "bigint": schema.Big}[typ]
		return schema.Integer(flags, opts...), nil
	case "character varying", "character":
		n := sql.AsInt(r["character_maximum_length"])
		if n <= 0 {
			return schema.Text(opts...), nil
		}
		return schema.String(int(n), opts...), nil
	case "text":
		return schema.Text(opts...), nil
	case "boolean":
		return schema.Boolean(opts...), nil
	case "double precision", "real", "numeric":
		return schema.Float(opts...), nil
	case "date":
		return schema.Date(opts...), nil
	case "timestamp without time zone", "timestamp with time zone":
		return schema.DateTime(opts...), nil
	case "bytea":
		return schema.Binary(opts...), nil
	case "json", "jsonb":
		return schema.Object(opts...), nil
	}
	return nil, strata.NewMigrationTypeError(table, name, typ)
}

// parseDefault extracts a literal from a column default such as
// 'bar'::character varying. Only strings, numbers and booleans are
// literals; NULL and expressions like now() yield no default.
func parseDefault(d string) (string, bool) {
	if strings.HasPrefix(d, "'") {
		end := strings.LastIndex(d, "'")
		if end <= 0 {
			return "", false
		}
		return strings.ReplaceAll(d[1:end], "''", "'"), true
	}
	if i := strings.Index(d, "::"); i >= 0 {
		d = d[:i]
	}
	d = strings.Trim(d, "()")
	if literalDefault.MatchString(d) {
		return d, true
	}
	return "", false
}

var literalDefault = regexp.MustCompile(`^(?i:true|false|[+-]?\d+(\.\d+)?([eE][+-]?\d+)?)$`)
