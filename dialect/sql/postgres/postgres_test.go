package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/postgres"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
)

func script(stmts []string) []byte {
	return []byte(strings.Join(stmts, ";\n") + ";\n")
}

func TestCreateTable(t *testing.T) {
	a := postgres.New()
	g := goldie.New(t)

	foo := schema.NewDefinition("foo").
		AddAutoIncrementID().
		AddField("foo", schema.String(255, schema.Default("bar"))).
		MustBuild()
	stmts, err := a.CreateTable("foo", foo)
	require.NoError(t, err)
	g.Assert(t, "create_table_foo", script(stmts))

	users := schema.NewDefinition("users").
		AddAutoIncrementID().
		AddField("name", schema.String(64)).
		AddField("bio", schema.Text(schema.Nullable())).
		AddField("active", schema.Boolean(schema.Default(true))).
		AddField("score", schema.Float(schema.Nullable())).
		AddField("born", schema.Date(schema.Nullable())).
		AddField("seen_at", schema.DateTime(schema.Default("2024-01-02 03:04:05"))).
		AddField("avatar", schema.Binary(schema.Nullable())).
		AddField("prefs", schema.Object(schema.Nullable())).
		AddField("role", schema.Enum("role", []string{"admin", "member"}, schema.Default("member"))).
		AddField("visits", schema.Integer(schema.Big|schema.Unsigned, schema.Default(0))).
		AddField("rank", schema.Integer(schema.Small, schema.Nullable())).
		AddUnique("users_name", "name").
		AddKey("users_role_rank", "role", "rank").
		MustBuild()
	stmts, err = a.CreateTable("users", users)
	require.NoError(t, err)
	g.Assert(t, "create_table_users", script(stmts))
}

func TestIntegerWidening(t *testing.T) {
	a := postgres.New()
	tests := []struct {
		typ  *schema.DataType
		want string
	}{
		{schema.Integer(schema.Tiny), "SMALLINT"},
		{schema.Integer(schema.Tiny | schema.Unsigned), "SMALLINT"},
		{schema.Integer(schema.Small | schema.Unsigned), "INTEGER"},
		{schema.Integer(schema.Unsigned), "BIGINT"},
		{schema.Integer(schema.Big | schema.Unsigned), "BIGINT"},
		{schema.Integer(schema.Small | schema.Unsigned | schema.AutoIncrement), "SERIAL"},
		{schema.Integer(schema.Tiny | schema.AutoIncrement), "SMALLSERIAL"},
	}
	for _, tt := range tests {
		stmts, err := a.AddColumn("t", "n", tt.typ)
		require.NoError(t, err)
		assert.Equal(t, []string{`ALTER TABLE "t" ADD COLUMN "n" ` + tt.want + " NOT NULL"}, stmts)
	}
}

func TestSchemaStatements(t *testing.T) {
	a := postgres.New()
	def := schema.NewDefinition("users").
		AddAutoIncrementID().
		AddField("name", schema.String(32)).
		MustBuild()

	stmts, err := a.AlterColumn("users", def, "name", schema.String(64, schema.Default("")))
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "users" ALTER COLUMN "name" TYPE VARCHAR(64) USING "name"::VARCHAR(64), ` +
		`ALTER COLUMN "name" SET NOT NULL, ALTER COLUMN "name" SET DEFAULT ''`}, stmts)

	stmts, err = a.AlterColumn("users", def, "id", schema.Integer(schema.Big|schema.AutoIncrement))
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "users" ALTER COLUMN "id" TYPE BIGINT USING "id"::BIGINT, ALTER COLUMN "id" SET NOT NULL`}, stmts)

	stmts, err = a.AlterColumn("users", def, "name", schema.Text(schema.Nullable()))
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "users" ALTER COLUMN "name" TYPE TEXT USING "name"::TEXT, ` +
		`ALTER COLUMN "name" DROP NOT NULL, ALTER COLUMN "name" DROP DEFAULT`}, stmts)

	stmts, err = a.RenameColumn("users", def, "name", "login")
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "users" RENAME COLUMN "name" TO "login"`}, stmts)

	stmts, err = a.DeleteColumn("users", def, "name")
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "users" DROP COLUMN "name"`}, stmts)

	stmts, err = a.CreateKey("users", schema.Key{Name: "users_name", Columns: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, []string{`CREATE INDEX "users_name" ON "users" ("name")`}, stmts)
	_, err = a.CreateKey("users", schema.Key{Name: "empty"})
	assert.Error(t, err)

	assert.Equal(t, []string{`DROP INDEX "users_name"`}, a.DeleteKey("users", "users_name"))
	assert.Equal(t, []string{`ALTER TABLE "users" RENAME TO "people"`}, a.RenameTable("users", "people"))
	assert.Equal(t, []string{`DROP TABLE "users"`}, a.DropTable("users"))
}

func TestQuoting(t *testing.T) {
	a := postgres.New()
	assert.Equal(t, `"we""ird"`, a.QuoteField(`we"ird`))
	assert.Equal(t, `'it''s'`, a.QuoteString("it's"))
	assert.Equal(t, `E'a\\b'`, a.QuoteString(`a\b`))

	tests := []struct {
		typ  *schema.DataType
		v    any
		want string
	}{
		{schema.Boolean(), true, "TRUE"},
		{schema.Boolean(), false, "FALSE"},
		{schema.Integer(0), int64(-7), "-7"},
		{schema.Float(), 1.5, "1.5"},
		{schema.Date(), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), "'2024-02-29'"},
		{schema.DateTime(), time.Date(2024, 2, 29, 13, 0, 0, 0, time.UTC), "'2024-02-29 13:00:00'"},
		{schema.Binary(), []byte{0xCA, 0xFE}, "decode('cafe', 'hex')"},
		{schema.Object(), []any{"a"}, `'["a"]'`},
	}
	for _, tt := range tests {
		got, err := a.QuoteLiteral(tt.typ, tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestConditionRender(t *testing.T) {
	a := postgres.New()
	tests := []struct {
		name   string
		format string
		vars   []any
		want   string
	}{
		{"like_ignores_case", `name like "A%"`, nil, `"name" ILIKE 'A%'`},
		{"escaped_wildcard", "name like ?", []any{`a\_b`}, `"name" ILIKE E'a\\_b'`},
		{"not_like", `not name like "a%"`, nil, `NOT "name" ILIKE 'a%'`},
		{"string_escape", `name = "a\nb"`, nil, `"name" = 'anb'`},
		{"escaped_backslash", `name = "a\\b"`, nil, `"name" = E'a\\b'`},
		{"raw_format", "[count] = [count] + ?", []any{1}, `"count" = "count" + 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expr.E(tt.format, tt.vars...).Render(a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimitOffset(t *testing.T) {
	a := postgres.New()
	assert.Equal(t, "", a.LimitOffset(-1, 0))
	assert.Equal(t, "LIMIT 10", a.LimitOffset(10, 0))
	assert.Equal(t, "OFFSET 5", a.LimitOffset(-1, 5))
	assert.Equal(t, "LIMIT 0 OFFSET 5", a.LimitOffset(0, 5))
}

func TestDecode(t *testing.T) {
	a := postgres.New()
	got, err := a.Decode(schema.Object(), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, got)

	got, err = a.Decode(schema.Binary(), []byte{0xCA, 0xFE})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE}, got)

	day := time.Date(2024, 2, 29, 0, 0, 0, 0, time.FixedZone("", 0))
	got, err = a.Decode(schema.Date(), day)
	require.NoError(t, err)
	assert.True(t, day.Equal(got.(time.Time)))

	got, err = a.Decode(schema.Boolean(), true)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func users() *schema.Definition {
	return schema.NewDefinition("users").
		AddAutoIncrementID().
		AddField("name", schema.String(32)).
		AddField("age", schema.Integer(schema.Small, schema.Nullable())).
		MustBuild()
}

func mockDB(t *testing.T) (*sql.Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return sql.NewDatabase(sql.OpenDB(dialect.Postgres, conn), postgres.New()), mock
}

func TestTable(t *testing.T) {
	ctx := context.Background()
	db, mock := mockDB(t)
	tbl := db.Define("users", users())

	mock.ExpectQuery(`SELECT "users".* FROM "users" WHERE "age" > 18 ORDER BY "age" DESC NULLS LAST LIMIT 10 OFFSET 5`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "bob", int64(31)))
	got, err := tbl.Select().Where("age > ?", 18).OrderByDescending("age").Limit(10).Offset(5).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []expr.Record{{"id": int64(1), "name": "bob", "age": int64(31)}}, got)

	mock.ExpectQuery(`SELECT "users".* FROM "users" ORDER BY "name" NULLS FIRST, "id" DESC NULLS LAST`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))
	_, err = tbl.Select().OrderBy("name").OrderByDescending("id").All(ctx)
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO "users" ("name", "age") VALUES ('bob', 31) RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	id, err := tbl.Insert(ctx, expr.Record{"name": "bob", "age": 31}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 9, id)

	_, err = tbl.Insert(ctx, expr.Record{"name": "bob"}, true)
	assert.True(t, strata.IsUnsupported(err))

	mock.ExpectQuery(`INSERT INTO "users" ("name") VALUES ('bob') RETURNING "id"`).
		WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "users_name"`})
	_, err = tbl.Insert(ctx, expr.Record{"name": "bob"}, false)
	assert.True(t, strata.IsConstraintError(err))

	mock.ExpectExec(`UPDATE "users" SET "age" = NULL WHERE "id" > 3`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := tbl.Select().Where("id > ?", 3).OrderBy("id").Set("age", nil).Update(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = tbl.Select().Limit(1).Set("age", nil).Update(ctx)
	assert.True(t, strata.IsUnsupported(err))
	_, err = tbl.Select().Limit(1).Delete(ctx)
	assert.True(t, strata.IsUnsupported(err))

	mock.ExpectExec(`DELETE FROM "users" WHERE "name" = 'it''s'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err = tbl.Select().Where("name = ?", "it's").Delete(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func columnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "character_maximum_length"})
}

func TestDefinition(t *testing.T) {
	ctx := context.Background()
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT column_name, data_type, is_nullable, column_default, character_maximum_length ` +
		`FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`).
		WithArgs("users").
		WillReturnRows(columnRows().
			AddRow("id", "bigint", "NO", "nextval('users_id_seq'::regclass)", nil).
			AddRow("name", "character varying", "NO", nil, int64(32)).
			AddRow("age", "smallint", "YES", nil, nil).
			AddRow("role", "character varying", "NO", "'member'::character varying", int64(6)).
			AddRow("active", "boolean", "NO", "true", nil).
			AddRow("seen_at", "timestamp without time zone", "NO", "CURRENT_TIMESTAMP", nil).
			AddRow("prefs", "jsonb", "YES", nil, nil))
	mock.ExpectQuery(`SELECT i.relname AS index_name, ix.indisunique AS is_unique, ix.indisprimary AS is_primary, a.attname AS column_name ` +
		`FROM pg_index ix ` +
		`JOIN pg_class t ON t.oid = ix.indrelid ` +
		`JOIN pg_class i ON i.oid = ix.indexrelid ` +
		`JOIN pg_namespace n ON n.oid = t.relnamespace ` +
		`JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true ` +
		`JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum ` +
		`WHERE n.nspname = current_schema() AND t.relname = $1 ` +
		`ORDER BY i.relname, k.ord`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "is_unique", "is_primary", "column_name"}).
			AddRow("users_name", true, false, "name").
			AddRow("users_pkey", true, true, "id").
			AddRow("users_role_age", false, false, "role").
			AddRow("users_role_age", false, false, "age"))
	def, err := db.Definition(ctx, "users")
	require.NoError(t, err)

	want := schema.NewDefinition("users").
		AddAutoIncrementID().
		AddField("name", schema.String(32)).
		AddField("age", schema.Integer(schema.Small, schema.Nullable())).
		AddField("role", schema.String(6, schema.Default("member"))).
		AddField("active", schema.Boolean(schema.Default(true))).
		AddField("seen_at", schema.DateTime()).
		AddField("prefs", schema.Object(schema.Nullable())).
		MustBuild()
	if diff := cmp.Diff(want.Columns(), def.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"id"}, def.PrimaryKey())
	assert.Equal(t, []schema.Key{
		{Name: "users_name", Columns: []string{"name"}, Unique: true},
		{Name: "users_role_age", Columns: []string{"role", "age"}},
	}, def.Keys())

	mock.ExpectQuery(`SELECT column_name, data_type, is_nullable, column_default, character_maximum_length ` +
		`FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`).
		WithArgs("ghosts").
		WillReturnRows(columnRows())
	_, err = db.Definition(ctx, "ghosts")
	assert.True(t, strata.IsInvalidTable(err))

	mock.ExpectQuery(`SELECT column_name, data_type, is_nullable, column_default, character_maximum_length ` +
		`FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`).
		WithArgs("odd").
		WillReturnRows(columnRows().AddRow("at", "tsvector", "NO", nil, nil))
	_, err = db.Definition(ctx, "odd")
	assert.True(t, strata.IsMigrationTypeError(err))

	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables ` +
		`WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("groups").AddRow("users"))
	tables, err := db.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"groups", "users"}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTableTransaction(t *testing.T) {
	ctx := context.Background()
	db, mock := mockDB(t)
	def := schema.NewDefinition("tags").
		AddField("name", schema.String(16)).
		AddUnique("tags_name", "name").
		MustBuild()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "tags" ("name" VARCHAR(16) NOT NULL)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX "tags_name" ON "tags" ("name")`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, db.CreateTable(ctx, "tags", def))
	require.NoError(t, mock.ExpectationsWereMet())
}
