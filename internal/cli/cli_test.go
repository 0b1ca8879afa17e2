package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/config"
	"github.com/syssam/strata/expr"
)

const peopleYAML = `table: people
fields:
  - name: id
    type: integer unsigned auto_increment
  - name: name
    type: string(32)
  - name: age
    type: integer unsigned tiny
    nullable: true
primary_key: [id]
keys:
  - name: people_name
    columns: [name]
    unique: true
`

const peopleWithoutAgeYAML = `table: people
fields:
  - name: id
    type: integer unsigned auto_increment
  - name: name
    type: string(32)
primary_key: [id]
keys:
  - name: people_name
    columns: [name]
    unique: true
`

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	data := "dialect: sqlite\ndsn: " + filepath.Join(dir, "app.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return &env{dir: dir, config: path}
}

func (e *env) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (e *env) run(args ...string) (string, error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"tables", "describe", "query", "count", "migrate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "strata.yaml", configFlag.DefValue)
}

func TestCommands(t *testing.T) {
	e := newEnv(t)
	defs := e.file(t, "people.yaml", peopleYAML)

	out, err := e.run("migrate", defs, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "create table people (id, name, age)")

	out, err = e.run("tables", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[]}`, out)

	out, err = e.run("migrate", defs)
	require.NoError(t, err)
	assert.Equal(t, "Applied 1 change(s)\n", out)

	out, err = e.run("tables")
	require.NoError(t, err)
	assert.Equal(t, "people\n", out)

	c, err := config.Load(e.config)
	require.NoError(t, err)
	db, err := c.Open(nil)
	require.NoError(t, err)
	for _, r := range []expr.Record{{"name": "Ann", "age": 31}, {"name": "bob", "age": 17}, {"name": "cy"}} {
		_, err := db.Table("people").Insert(context.Background(), r, false)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	out, err = e.run("count", "people", "--where", "age > 20")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = e.run("query", "people", "--select", "id,name", "--order-by", "name", "--desc", "--limit", "1", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[{"id":3,"name":"cy"}]}`, out)

	out, err = e.run("query", "people", "--select", "name,age", "--where", `name != "cy"`, "--order-by", "id")
	require.NoError(t, err)
	assert.Equal(t, "name  age\nAnn   31\nbob   17\n", out)

	out, err = e.run("query", "people", "--where", "age is null")
	require.NoError(t, err)
	assert.Equal(t, "id  name  age\n3   cy    NULL\n", out)

	out, err = e.run("describe", "people")
	require.NoError(t, err)
	assert.Contains(t, out, "table: people\n")
	assert.Contains(t, out, "type: string(32)")

	out, err = e.run("migrate", defs)
	require.NoError(t, err)
	assert.Equal(t, "Applied 0 change(s)\n", out)
}

func TestMigrateRefused(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("migrate", e.file(t, "people.yaml", peopleYAML))
	require.NoError(t, err)

	smaller := e.file(t, "smaller.yaml", peopleWithoutAgeYAML)
	out, err := e.run("migrate", smaller)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "people.age: column will be dropped [BREAKING]")

	out, err = e.run("migrate", smaller, "--allow-drop-column")
	require.NoError(t, err)
	assert.Equal(t, "Applied 1 change(s)\n", out)
}

func TestCommandErrors(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("tables", "--format", "xml")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	e.config = filepath.Join(e.dir, "missing.yaml")
	_, err = e.run("tables")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = e.run("migrate", e.file(t, "bad.yaml", "table: x\nfields:\n  - name: a\n    type: blob\n"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
