package migrate_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/migrate"
	"github.com/syssam/strata/dialect/sql/sqlite"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
)

func peopleV1() *schema.Definition {
	return schema.NewDefinition("people").
		AddAutoIncrementID().
		AddField("name", schema.String(32)).
		AddField("age", schema.Integer(schema.Tiny|schema.Unsigned, schema.Nullable())).
		AddField("born", schema.Date(schema.Nullable())).
		AddField("prefs", schema.Object(schema.Nullable())).
		AddField("active", schema.Boolean(schema.Default(true))).
		AddUnique("people_name", "name").
		AddKey("people_age", "age").
		MustBuild()
}

func peopleV2() *schema.Definition {
	return schema.NewDefinition("people").
		AddAutoIncrementID().
		AddField("name", schema.String(64)).
		AddField("age", schema.Integer(schema.Tiny|schema.Unsigned, schema.Nullable())).
		AddField("born", schema.Date(schema.Nullable())).
		AddField("active", schema.Boolean(schema.Default(true))).
		AddField("bio", schema.Text(schema.Nullable())).
		AddUnique("people_name", "name").
		AddKey("people_born", "born").
		MustBuild()
}

func ops(changes []migrate.Change) []migrate.Op {
	var out []migrate.Op
	for _, c := range changes {
		out = append(out, c.Op)
	}
	return out
}

func TestDiff(t *testing.T) {
	changes := migrate.Diff(nil, peopleV1(), nil)
	require.Len(t, changes, 1)
	assert.Equal(t, migrate.OpCreateTable, changes[0].Op)
	assert.Equal(t, "create table people (id, name, age, born, prefs, active)", changes[0].String())

	assert.Empty(t, migrate.Diff(peopleV1(), peopleV1(), nil))

	changes = migrate.Diff(peopleV1(), peopleV2(), nil)
	assert.Equal(t, []migrate.Op{
		migrate.OpDropKey,
		migrate.OpAlterColumn,
		migrate.OpAddColumn,
		migrate.OpDropColumn,
		migrate.OpAddKey,
	}, ops(changes))
	assert.Equal(t, []string{
		"drop key people_age on people",
		"alter column people.name string(32) -> string(64)",
		"add column people.bio text null",
		"drop column people.prefs",
		"add key people_born on people (born)",
	}, func() []string {
		var out []string
		for _, c := range changes {
			out = append(out, c.String())
		}
		return out
	}())

	lenient := func(string, *schema.DataType, *schema.DataType) bool { return true }
	assert.Equal(t, []migrate.Op{
		migrate.OpDropKey,
		migrate.OpAddColumn,
		migrate.OpDropColumn,
		migrate.OpAddKey,
	}, ops(migrate.Diff(peopleV1(), peopleV2(), lenient)))

	unique := peopleV1().Builder().RemoveKey("people_age").AddUnique("people_age", "age").MustBuild()
	changes = migrate.Diff(peopleV1(), unique, nil)
	require.Len(t, changes, 1)
	assert.Equal(t, "alter unique key people_age on people (age)", changes[0].String())

	pair := peopleV1().Builder().SetPrimaryKey("id", "name").MustBuild()
	changes = migrate.Diff(peopleV1(), pair, nil)
	require.Len(t, changes, 1)
	assert.Equal(t, migrate.OpSetPrimaryKey, changes[0].Op)
}

func TestValidateChanges(t *testing.T) {
	current := peopleV1()
	changes := migrate.Diff(current, peopleV2(), nil)

	result := migrate.ValidateChanges(current, changes)
	assert.True(t, result.HasErrors())
	assert.True(t, result.HasBreakingChanges())
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "people: key \"people_age\" will be dropped", result.Errors[0].Error())
	assert.Equal(t, "people.prefs: column will be dropped", result.Errors[1].Error())

	result = migrate.ValidateChanges(current, changes, migrate.AllowDropColumn(), migrate.AllowDropKey())
	assert.False(t, result.HasErrors())
	assert.Len(t, result.Warnings, 2)
	assert.Contains(t, result.String(), "Warnings:\n  - people: key \"people_age\" will be dropped\n")
	assert.Contains(t, result.String(), "people.prefs: column will be dropped [BREAKING]")

	strict := current.Builder().
		RemoveField("age").
		AddField("age", schema.Integer(schema.Tiny|schema.Unsigned)).
		RemoveField("name").
		AddField("name", schema.String(16)).
		AddField("nick", schema.String(16)).
		AddUnique("people_name", "name").
		AddKey("people_age", "age").
		AddUnique("people_nick", "nick").
		MustBuild()
	result = migrate.ValidateChanges(current, migrate.Diff(current, strict, nil))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "people.age: column changing from NULL to NOT NULL may fail if column has NULL values", result.Errors[0].Error())
	var messages []string
	for _, w := range result.Warnings {
		messages = append(messages, w.Error())
	}
	assert.ElementsMatch(t, []string{
		"people.name: column length reducing from 32 to 16 may truncate data",
		"people.nick: new NOT NULL column without default value may fail if table has data",
		"people: adding unique key \"people_nick\" may fail if duplicate values exist",
	}, messages)

	result = migrate.ValidateChanges(current, migrate.Diff(current, strict, nil), migrate.AllowNullToNotNull())
	assert.False(t, result.HasErrors())

	pair := current.Builder().SetPrimaryKey("id", "name").MustBuild()
	result = migrate.ValidateChanges(current, migrate.Diff(current, pair, nil), migrate.AllowDropKey())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "people: primary key changing from (id) to (id, name) is not supported", result.Errors[0].Message)
}

func TestValidateSchema(t *testing.T) {
	tags := schema.NewDefinition("tags").AddField("name", schema.String(16)).MustBuild()
	result := migrate.ValidateSchema([]*schema.Definition{peopleV1(), tags, tags})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "tags: duplicate table name", result.Errors[0].Error())
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, "tags: table has no primary key", result.Warnings[0].Error())

	assert.Equal(t, "No issues found", migrate.ValidateDefinition(peopleV1()).String())

	loose := peopleV1().Builder().SetPrimaryKey("name").MustBuild()
	result = migrate.ValidateDefinition(loose)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "people.id: auto increment column must be the only primary key column", result.Errors[0].Error())
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := sql.OpenDatabase(sqlite.New(), filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var logs bytes.Buffer
	m := migrate.New(db, migrate.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, m.Migrate(ctx, peopleV1()))
	assert.Contains(t, logs.String(), "migrate: applied")

	plan, err := m.Plan(ctx, peopleV1())
	require.NoError(t, err)
	assert.Empty(t, plan.Changes, plan.String())
	assert.Equal(t, "No changes\n", plan.String())

	tbl := db.Table("people")
	for _, r := range []expr.Record{
		{"name": "Ann", "age": 31, "prefs": map[string]any{"theme": "dark"}},
		{"name": "bob", "born": "2001-02-03"},
	} {
		_, err := tbl.Insert(ctx, r, false)
		require.NoError(t, err)
	}

	err = m.Migrate(ctx, peopleV2())
	assert.True(t, errors.Is(err, migrate.ErrRefused))
	def, err := db.Definition(ctx, "people")
	require.NoError(t, err)
	assert.True(t, def.HasField("prefs"), "a refused plan changes nothing")

	m = migrate.New(db, migrate.AllowDropColumn(), migrate.AllowDropKey())
	require.NoError(t, m.Migrate(ctx, peopleV2()))

	def, err = db.Definition(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "age", "born", "active", "bio"}, def.Fields())
	assert.ElementsMatch(t, peopleV2().Keys(), def.Keys())

	plan, err = m.Plan(ctx, peopleV2())
	require.NoError(t, err)
	assert.Empty(t, plan.Changes, plan.String())

	rows, err := tbl.Select().Select("name", "age", "bio").OrderBy("id").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []expr.Record{
		{"name": "Ann", "age": int64(31), "bio": nil},
		{"name": "bob", "age": nil, "bio": nil},
	}, rows)
}
