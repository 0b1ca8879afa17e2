package mysql

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// columnType renders the type of a column without its modifiers.
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
		return "TINYINT(1)", nil
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
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = a.QuoteString(v)
		}
		return "ENUM(" + strings.Join(quoted, ", ") + ")", nil
	}
	return "", strata.NewTypeError(t.String(), nil, "no MySQL column type")
}

// column renders a column definition. Modifiers follow a fixed order:
// UNSIGNED, NULL or NOT NULL, DEFAULT, AUTO_INCREMENT.
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
		switch t.Kind() {
		case schema.KindText, schema.KindBinary, schema.KindObject:
			lit = "(" + lit + ")"
		}
		b.WriteString(" DEFAULT " + lit)
	}
	if auto, _ := t.IsAutoIncrement(); auto {
		b.WriteString(" AUTO_INCREMENT")
	}
	return b.String(), nil
}

func (a *Adapter) key(k schema.Key) string {
	kind := "KEY"
	if k.Unique {
		kind = "UNIQUE KEY"
	}
	return kind + " " + a.QuoteModel(k.Name) + " (" + sql.FieldList(a, k.Columns) + ")"
}

// CreateTable renders CREATE TABLE with the columns in definition order
// followed by the primary and secondary keys.
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
	for _, k := range def.Keys() {
		parts = append(parts, a.key(k))
	}
	return []string{
		"CREATE TABLE " + a.QuoteModel(table) + " (" + strings.Join(parts, ", ") + ") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	}, nil
}

// DropTable renders DROP TABLE.
func (a *Adapter) DropTable(table string) []string {
	return []string{"DROP TABLE " + a.QuoteModel(table)}
}

// RenameTable renders RENAME TABLE.
func (a *Adapter) RenameTable(from, to string) []string {
	return []string{"RENAME TABLE " + a.QuoteModel(from) + " TO " + a.QuoteModel(to)}
}

func (a *Adapter) alterTable(table, clause string) []string {
	return []string{"ALTER TABLE " + a.QuoteModel(table) + " " + clause}
}

// AddColumn renders ADD COLUMN.
func (a *Adapter) AddColumn(table, field string, t *schema.DataType) ([]string, error) {
	col, err := a.column(field, t)
	if err != nil {
		return nil, err
	}
	return a.alterTable(table, "ADD COLUMN "+col), nil
}

// AlterColumn renders MODIFY COLUMN.
func (a *Adapter) AlterColumn(table string, _ *schema.Definition, field string, t *schema.DataType) ([]string, error) {
	col, err := a.column(field, t)
	if err != nil {
		return nil, err
	}
	return a.alterTable(table, "MODIFY COLUMN "+col), nil
}

// RenameColumn renders CHANGE COLUMN keeping the current type.
func (a *Adapter) RenameColumn(table string, current *schema.Definition, from, to string) ([]string, error) {
	t, ok := current.Type(from)
	if !ok {
		return nil, strata.NewInvalidColumnError(table, from)
	}
	col, err := a.column(to, t)
	if err != nil {
		return nil, err
	}
	return a.alterTable(table, "CHANGE COLUMN "+a.QuoteField(from)+" "+col), nil
}

// DeleteColumn renders DROP COLUMN.
func (a *Adapter) DeleteColumn(table string, _ *schema.Definition, field string) ([]string, error) {
	return a.alterTable(table, "DROP COLUMN "+a.QuoteField(field)), nil
}

// CreateKey renders ADD KEY or ADD UNIQUE KEY.
func (a *Adapter) CreateKey(table string, key schema.Key) ([]string, error) {
	if len(key.Columns) == 0 {
		return nil, fmt.Errorf("strata: key %q has no columns", key.Name)
	}
	return a.alterTable(table, "ADD "+a.key(key)), nil
}

// DeleteKey renders DROP KEY.
func (a *Adapter) DeleteKey(table, name string) []string {
	return a.alterTable(table, "DROP KEY "+a.QuoteModel(name))
}

// Tables lists the tables of the current database.
func (a *Adapter) Tables(ctx context.Context, db *sql.Database) ([]string, error) {
	rs, err := db.Query(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var tables []string
	for {
		row, err := rs.FetchRow()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return tables, nil
		}
		tables = append(tables, sql.AsString(row[0]))
	}
}

// Definition introspects table with SHOW COLUMNS and SHOW INDEX.
func (a *Adapter) Definition(ctx context.Context, db *sql.Database, table string) (*schema.Definition, error) {
	rows, err := fetchAll(ctx, db, "SHOW COLUMNS FROM "+a.QuoteModel(table))
	if err != nil {
		if strings.Contains(err.Error(), "1146") {
			return nil, strata.NewInvalidTableError(table)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, strata.NewInvalidTableError(table)
	}
	b := schema.NewDefinition(table)
	for _, r := range rows {
		name := sql.AsString(r["Field"])
		t, err := parseColumn(table, name, r)
		if err != nil {
			return nil, err
		}
		b.AddField(name, t)
	}
	indexes, err := fetchAll(ctx, db, "SHOW INDEX FROM "+a.QuoteModel(table))
	if err != nil {
		return nil, err
	}
	for _, k := range groupKeys(indexes) {
		if k.Name == "PRIMARY" {
			b.SetPrimaryKey(k.Columns...)
			continue
		}
		if k.Unique {
			b.AddUnique(k.Name, k.Columns...)
		} else {
			b.AddKey(k.Name, k.Columns...)
		}
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

// groupKeys collects SHOW INDEX rows, one per key column in sequence
// order, into keys in order of first appearance.
func groupKeys(rows []map[string]any) []schema.Key {
	var keys []schema.Key
	pos := make(map[string]int)
	for _, r := range rows {
		name := sql.AsString(r["Key_name"])
		i, ok := pos[name]
		if !ok {
			i = len(keys)
			pos[name] = i
			keys = append(keys, schema.Key{Name: name, Unique: sql.AsInt(r["Non_unique"]) == 0})
		}
		keys[i].Columns = append(keys[i].Columns, sql.AsString(r["Column_name"]))
	}
	return keys
}

var columnTypeRe = regexp.MustCompile(`^(\w+)(?:\((.*)\))?((?:\s+\w+)*)$`)

// parseColumn maps a SHOW COLUMNS row back to a data type.
func parseColumn(table, name string, r map[string]any) (*schema.DataType, error) {
	raw := strings.TrimSpace(sql.AsString(r["Type"]))
	m := columnTypeRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, strata.NewMigrationTypeError(table, name, raw)
	}
	base, args, mods := strings.ToLower(m[1]), m[2], strings.Fields(strings.ToLower(m[3]))
	var opts []schema.TypeOption
	if strings.EqualFold(sql.AsString(r["Null"]), "YES") {
		opts = append(opts, schema.Nullable())
	}
	if d := r["Default"]; d != nil && !isDefaultExpression(sql.AsString(d)) {
		opts = append(opts, schema.Default(sql.AsString(d)))
	}
	var flags schema.IntegerFlag
	for _, mod := range mods {
		if mod == "unsigned" {
			flags |= schema.Unsigned
		}
	}
	if strings.Contains(strings.ToLower(sql.AsString(r["Extra"])), "auto_increment") {
		flags |= schema.AutoIncrement
	}
	switch base {
	case "tinyint":
		if args == "1" {
			return schema.Boolean(opts...), nil
		}
		return schema.Integer(flags|schema.Tiny, opts...), nil
	case "smallint":
		return schema.Integer(flags|schema.Small, opts...), nil
	case "mediumint", "int", "integer":
		return schema.Integer(flags, opts...), nil
	case "bigint":
		return schema.Integer(flags|schema.Big, opts...), nil
	case "bit", "bool", "boolean":
		return schema.Boolean(opts...), nil
	case "varchar", "char":
		n, err := strconv.Atoi(args)
		if err != nil {
			return nil, strata.NewMigrationTypeError(table, name, raw)
		}
		return schema.String(n, opts...), nil
	case "tinytext", "text", "mediumtext", "longtext":
		return schema.Text(opts...), nil
	case "float", "double", "real", "decimal":
		return schema.Float(opts...), nil
	case "date":
		return schema.Date(opts...), nil
	case "datetime", "timestamp":
		return schema.DateTime(opts...), nil
	case "tinyblob", "blob", "mediumblob", "longblob", "binary", "varbinary":
		return schema.Binary(opts...), nil
	case "json":
		return schema.Object(opts...), nil
	case "enum":
		return schema.Enum(table+"_"+name, parseEnumValues(args), opts...), nil
	}
	return nil, strata.NewMigrationTypeError(table, name, raw)
}

// isDefaultExpression reports whether a column default is computed, like
// CURRENT_TIMESTAMP, rather than a literal.
func isDefaultExpression(d string) bool {
	return strings.EqualFold(d, "CURRENT_TIMESTAMP") || strings.Contains(d, "(")
}

// parseEnumValues splits the quoted values of an ENUM type.
func parseEnumValues(s string) []string {
	var (
		values []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted && c == '\'' && i+1 < len(s) && s[i+1] == '\'':
			cur.WriteByte('\'')
			i++
		case c == '\'':
			quoted = !quoted
			if !quoted {
				values = append(values, cur.String())
				cur.Reset()
			}
		case quoted:
			cur.WriteByte(c)
		}
	}
	return values
}
