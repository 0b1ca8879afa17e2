package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// columnType renders the declared type of a column. Declared types keep
// the integer size and signedness so introspection can recover them.
func (a *Adapter) columnType(t *schema.DataType) (string, error) {
	switch t.Kind() {
	case schema.KindInteger:
		size, _ := t.Size()
		signed, _ := t.IsSigned()
		typ := map[schema.SizeClass]string{
			schema.SizeTiny:    "TINYINT",
			schema.SizeSmall:   "SMALLINT",
			schema.SizeDefault: "INT",
			schema.SizeBig:     "BIGINT",
		}[size]
		if !signed {
			typ += " UNSIGNED"
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
		return "DOUBLE", nil
	case schema.KindDate:
		return "DATE", nil
	case schema.KindDateTime:
		return "DATETIME", nil
	case schema.KindBinary:
		return "BLOB", nil
	case schema.KindObject:
		return "JSON", nil
	case schema.KindEnum:
		values, _ := t.EnumValues()
		n := 1
		for _, v := range values {
			n = max(n, len(v))
		}
		return fmt.Sprintf("VARCHAR(%d)", n), nil
	}
	return "", strata.NewTypeError(t.String(), nil, "no SQLite column type")
}

// rowid reports whether field is the sole, auto incremented primary key,
// which SQLite stores as an alias of the rowid.
func rowid(def *schema.Definition, field string) bool {
	t, ok := def.Type(field)
	if !ok {
		return false
	}
	auto, _ := t.IsAutoIncrement()
	return auto && slices.Equal(def.PrimaryKey(), []string{field})
}

// column renders a column definition.
func (a *Adapter) column(name string, t *schema.DataType) (string, error) {
	typ, err := a.columnType(t)
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
	if v, ok := t.Default(); ok {
		lit, err := sql.Encode(a, t, v)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT " + lit)
	}
	if t.Kind() == schema.KindEnum {
		values, _ := t.EnumValues()
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = a.QuoteString(v)
		}
		b.WriteString(" CHECK (" + a.QuoteField(name) + " IN (" + strings.Join(quoted, ", ") + "))")
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

// createTable renders the CREATE TABLE statement of def without its
// indexes.
func (a *Adapter) createTable(table string, def *schema.Definition) (string, error) {
	var parts []string
	for _, f := range def.Columns() {
		if rowid(def, f.Name) {
			parts = append(parts, a.QuoteField(f.Name)+" INTEGER PRIMARY KEY AUTOINCREMENT")
			continue
		}
		col, err := a.column(f.Name, f.Type)
		if err != nil {
			return "", err
		}
		parts = append(parts, col)
	}
	if pk := def.PrimaryKey(); len(pk) > 0 && !rowid(def, pk[0]) {
		parts = append(parts, "PRIMARY KEY ("+sql.FieldList(a, pk)+")")
	}
	return "CREATE TABLE " + a.QuoteModel(table) + " (" + strings.Join(parts, ", ") + ")", nil
}

func (a *Adapter) indexes(table string, def *schema.Definition) []string {
	var stmts []string
	for _, k := range def.Keys() {
		stmts = append(stmts, a.index(table, k))
	}
	return stmts
}

// CreateTable renders CREATE TABLE followed by one CREATE INDEX per key.
func (a *Adapter) CreateTable(table string, def *schema.Definition) ([]string, error) {
	stmt, err := a.createTable(table, def)
	if err != nil {
		return nil, err
	}
	return append([]string{stmt}, a.indexes(table, def)...), nil
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

// rebuild renders the statements replacing table, currently shaped as
// current, by next. The rows are copied into a shadow table, the table is
// recreated and the rows are copied back, taking next's columns from the
// shadow columns named by source.
func (a *Adapter) rebuild(table string, current, next *schema.Definition, source func(string) string) ([]string, error) {
	shadow := table + "__shadow"
	old, err := a.createTable(shadow, current)
	if err != nil {
		return nil, err
	}
	created, err := a.createTable(table, next)
	if err != nil {
		return nil, err
	}
	oldCols := sql.FieldList(a, current.Fields())
	var from []string
	for _, f := range next.Fields() {
		from = append(from, a.QuoteField(source(f)))
	}
	stmts := []string{
		old,
		"INSERT INTO " + a.QuoteModel(shadow) + " (" + oldCols + ") SELECT " + oldCols + " FROM " + a.QuoteModel(table),
		"DROP TABLE " + a.QuoteModel(table),
		created,
		"INSERT INTO " + a.QuoteModel(table) + " (" + sql.FieldList(a, next.Fields()) + ") SELECT " + strings.Join(from, ", ") + " FROM " + a.QuoteModel(shadow),
		"DROP TABLE " + a.QuoteModel(shadow),
	}
	return append(stmts, a.indexes(table, next)...), nil
}

func same(f string) string { return f }

// AlterColumn rebuilds the table with the new column type.
func (a *Adapter) AlterColumn(table string, current *schema.Definition, field string, t *schema.DataType) ([]string, error) {
	if !current.HasField(field) {
		return nil, strata.NewInvalidColumnError(table, field)
	}
	b := schema.NewDefinition(current.Name())
	for _, f := range current.Columns() {
		if f.Name == field {
			f.Type = t
		}
		b.AddField(f.Name, f.Type)
	}
	b.SetPrimaryKey(current.PrimaryKey()...)
	for _, k := range current.Keys() {
		addKey(b, k)
	}
	next, err := b.Build()
	if err != nil {
		return nil, err
	}
	return a.rebuild(table, current, next, same)
}

// RenameColumn rebuilds the table with the column renamed. The renamed
// column moves to the end of the table.
func (a *Adapter) RenameColumn(table string, current *schema.Definition, from, to string) ([]string, error) {
	t, ok := current.Type(from)
	if !ok {
		return nil, strata.NewInvalidColumnError(table, from)
	}
	rename := func(c string) string {
		if c == from {
			return to
		}
		return c
	}
	b := schema.NewDefinition(current.Name())
	for _, f := range current.Columns() {
		if f.Name != from {
			b.AddField(f.Name, f.Type)
		}
	}
	b.AddField(to, t)
	var pk []string
	for _, c := range current.PrimaryKey() {
		pk = append(pk, rename(c))
	}
	b.SetPrimaryKey(pk...)
	for _, k := range current.Keys() {
		cols := make([]string, len(k.Columns))
		for i, c := range k.Columns {
			cols[i] = rename(c)
		}
		addKey(b, schema.Key{Name: k.Name, Columns: cols, Unique: k.Unique})
	}
	next, err := b.Build()
	if err != nil {
		return nil, err
	}
	return a.rebuild(table, current, next, func(c string) string {
		if c == to {
			return from
		}
		return c
	})
}

// DeleteColumn rebuilds the table without the column and the keys that
// reference it.
func (a *Adapter) DeleteColumn(table string, current *schema.Definition, field string) ([]string, error) {
	if !current.HasField(field) {
		return nil, strata.NewInvalidColumnError(table, field)
	}
	next, err := current.Builder().RemoveField(field).Build()
	if err != nil {
		return nil, err
	}
	return a.rebuild(table, current, next, same)
}

func addKey(b *schema.DefinitionBuilder, k schema.Key) {
	if k.Unique {
		b.AddUnique(k.Name, k.Columns...)
	} else {
		b.AddKey(k.Name, k.Columns...)
	}
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

const tablesQuery = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"

// Tables lists the user tables of the database.
func (a *Adapter) Tables(ctx context.Context, db *sql.Database) ([]string, error) {
	rows, err := fetchAll(ctx, db, tablesQuery)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, sql.AsString(r["name"]))
	}
	return tables, nil
}

// Definition introspects table from sqlite_master and the table_info,
// index_list and index_info pragmas.
func (a *Adapter) Definition(ctx context.Context, db *sql.Database, table string) (*schema.Definition, error) {
	master, err := fetchAll(ctx, db, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = "+a.QuoteString(table))
	if err != nil {
		return nil, err
	}
	if len(master) == 0 {
		return nil, strata.NewInvalidTableError(table)
	}
	autoinc := strings.Contains(strings.ToUpper(sql.AsString(master[0]["sql"])), "AUTOINCREMENT")
	cols, err := fetchAll(ctx, db, "PRAGMA table_info("+a.QuoteModel(table)+")")
	if err != nil {
		return nil, err
	}
	b := schema.NewDefinition(table)
	var pk []string
	slices.SortStableFunc(cols, func(x, y map[string]any) int {
		return int(sql.AsInt(x["cid"]) - sql.AsInt(y["cid"]))
	})
	pkpos := make(map[string]int64)
	for _, r := range cols {
		name := sql.AsString(r["name"])
		if n := sql.AsInt(r["pk"]); n > 0 {
			pk = append(pk, name)
			pkpos[name] = n
		}
	}
	slices.SortStableFunc(pk, func(x, y string) int { return int(pkpos[x] - pkpos[y]) })
	for _, r := range cols {
		name := sql.AsString(r["name"])
		auto := autoinc && len(pk) == 1 && pk[0] == name
		t, err := parseColumn(table, name, r, auto)
		if err != nil {
			return nil, err
		}
		b.AddField(name, t)
	}
	b.SetPrimaryKey(pk...)
	list, err := fetchAll(ctx, db, "PRAGMA index_list("+a.QuoteModel(table)+")")
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(list, func(x, y map[string]any) int {
		return int(sql.AsInt(x["seq"]) - sql.AsInt(y["seq"]))
	})
	slices.Reverse(list)
	for _, idx := range list {
		if sql.AsString(idx["origin"]) == "pk" {
			continue
		}
		name := sql.AsString(idx["name"])
		info, err := fetchAll(ctx, db, "PRAGMA index_info("+a.QuoteModel(name)+")")
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(info, func(x, y map[string]any) int {
			return int(sql.AsInt(x["seqno"]) - sql.AsInt(y["seqno"]))
		})
		var columns []string
		for _, c := range info {
			columns = append(columns, sql.AsString(c["name"]))
		}
		addKey(b, schema.Key{Name: name, Columns: columns, Unique: sql.AsInt(idx["unique"]) != 0})
	}
	return b.Build()
}

func fetchAll(ctx context.Context, db *sql.Database, query string) ([]map[string]any, error) {
	rs, err := db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return rs.All()
}

var columnTypeRe = regexp.MustCompile(`^(\w+)(?:\s*\(([^)]*)\))?((?:\s+\w+)*)$`)

// parseColumn maps a table_info row back to a data type.
func parseColumn(table, name string, r map[string]any, auto bool) (*schema.DataType, error) {
	raw := strings.TrimSpace(sql.AsString(r["type"]))
	m := columnTypeRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, strata.NewMigrationTypeError(table, name, raw)
	}
	base, args, mods := strings.ToUpper(m[1]), m[2], strings.Fields(strings.ToUpper(m[3]))
	var flags schema.IntegerFlag
	if slices.Contains(mods, "UNSIGNED") {
		flags |= schema.Unsigned
	}
	if auto {
		return schema.Integer(schema.Unsigned | schema.AutoIncrement), nil
	}
	var opts []schema.TypeOption
	if sql.AsInt(r["notnull"]) == 0 && sql.AsInt(r["pk"]) == 0 {
		opts = append(opts, schema.Nullable())
	}
	if d := r["dflt_value"]; d != nil {
		if v, ok := parseDefault(sql.AsString(d)); ok {
			opts = append(opts, schema.Default(v))
		}
	}
	switch base {
	case "TINYINT":
		return schema.Integer(flags|schema.Tiny, opts...), nil
	case "SMALLINT":
		return schema.Integer(flags|schema.Small, opts...), nil
	case "INT", "MEDIUMINT":
		return schema.Integer(flags, opts...), nil
	case "INTEGER", "BIGINT":
		return schema.Integer(flags|schema.Big, opts...), nil
	case "VARCHAR", "CHARACTER", "CHAR", "NVARCHAR":
		n, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			return schema.Text(opts...), nil
		}
		return schema.String(n, opts...), nil
	case "TEXT", "CLOB":
		return schema.Text(opts...), nil
	case "BOOLEAN", "BOOL":
		return schema.Boolean(opts...), nil
	case "DOUBLE", "REAL", "FLOAT", "NUMERIC", "DECIMAL":
		return schema.Float(opts...), nil
	case "DATE":
		return schema.Date(opts...), nil
	case "DATETIME", "TIMESTAMP":
		return schema.DateTime(opts...), nil
	case "BLOB":
		return schema.Binary(opts...), nil
	case "JSON":
		return schema.Object(opts...), nil
	}
	return nil, strata.NewMigrationTypeError(table, name, raw)
}

var numericDefault = regexp.MustCompile(`^[+-]?\d+(\.\d+)?([eE][+-]?\d+)?$`)

// parseDefault extracts a literal default. Expressions such as
// CURRENT_TIMESTAMP yield no default.
func parseDefault(d string) (string, bool) {
	switch {
	case len(d) >= 2 && d[0] == '\'' && d[len(d)-1] == '\'':
		return strings.ReplaceAll(d[1:len(d)-1], "''", "'"), true
	case numericDefault.MatchString(d):
		return d, true
	}
	return "", false
}
