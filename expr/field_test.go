package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
)

func TestField(t *testing.T) {
	age := expr.Field[int]("age")
	assert.Equal(t, "age", age.Name())

	tests := []struct {
		name   string
		e      expr.Expression
		sql    string
		record expr.Record
		want   any
	}{
		{"eq", age.EQ(18), "AGE = 18", expr.Record{"age": 18}, true},
		{"neq", age.NEQ(18), "AGE <> 18", expr.Record{"age": 18}, false},
		{"gt", age.GT(18), "AGE > 18", expr.Record{"age": 19}, true},
		{"gte", age.GTE(18), "AGE >= 18", expr.Record{"age": 18}, true},
		{"lt", age.LT(18), "AGE < 18", expr.Record{"age": 18}, false},
		{"lte", age.LTE(18), "AGE <= 18", expr.Record{"age": 18}, true},
		{"in", age.In(1, 2), "AGE IN (1, 2)", expr.Record{"age": 2}, true},
		{"in_empty", age.In(), "AGE IN (NULL)", expr.Record{"age": 2}, nil},
		{"not_in", age.NotIn(1, 2), "NOT AGE IN (1, 2)", expr.Record{"age": 3}, true},
		{"is_null", age.IsNull(), "AGE IS NULL", expr.Record{"age": nil}, true},
		{"not_null", age.NotNull(), "AGE IS NOT NULL", expr.Record{"age": nil}, false},
		{"qualified", expr.Field[string]("u.name").EQ("x"), `U.NAME = "x"`, expr.Record{"u.name": "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sql, render(t, tt.e))
			assert.Equal(t, tt.want, eval(t, tt.e, tt.record))
		})
	}
}

func TestTextField(t *testing.T) {
	name := expr.Text("name")

	tests := []struct {
		name  string
		e     expr.Expression
		sql   string
		match string
		miss  string
	}{
		{"like", name.Like("B%"), `NAME LIKE "B%"`, "bob", "alice"},
		{"contains", name.Contains("50%"), `NAME LIKE "%50\%%"`, "50% off", "500 off"},
		{"prefix", name.HasPrefix("a_b"), `NAME LIKE "a\_b%"`, "a_bc", "axbc"},
		{"suffix", name.HasSuffix(".go"), `NAME LIKE "%.go"`, "main.go", "main_go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sql, render(t, tt.e))
			assert.Equal(t, true, eval(t, tt.e, expr.Record{"name": tt.match}))
			assert.Equal(t, false, eval(t, tt.e, expr.Record{"name": tt.miss}))
		})
	}
}

func TestFieldInvalidValue(t *testing.T) {
	e := expr.Field[chan int]("c").EQ(make(chan int))
	_, err := e.Render(upperQuoter{})
	assert.True(t, strata.IsTypeError(err))
}

func TestClause(t *testing.T) {
	assert.Nil(t, expr.Clause(nil))
	assert.Nil(t, expr.Clause(""))

	col := expr.Column("a")
	assert.Same(t, col, expr.Clause(col))

	b, ok := expr.Clause("a = ?", 1).(*expr.Builder)
	require.True(t, ok)
	assert.Equal(t, "a = ?", b.Format())

	_, err := expr.Clause(col, 1).Render(upperQuoter{})
	assert.True(t, strata.IsParseError(err))
}

func TestWhere(t *testing.T) {
	base := mustParse(t, "a = 1")
	assert.Same(t, base, expr.AndWhere(base, ""))
	assert.Same(t, base, expr.OrWhere(base, nil))
	assert.Nil(t, expr.AndWhere(nil, ""))

	first := expr.AndWhere(nil, "b = ?", 2)
	assert.Equal(t, "b = 2", render(t, first))

	and := expr.AndWhere(base, "b = ?", 2)
	assert.Equal(t, "A = 1 AND b = 2", render(t, and))
	assert.Equal(t, false, eval(t, and, expr.Record{"a": 1, "b": 3}))

	or := expr.OrWhere(base, expr.Column("c"))
	assert.Equal(t, "A = 1 OR C", render(t, or))
	assert.Equal(t, true, eval(t, or, expr.Record{"a": 2, "c": true}))

	assert.Nil(t, expr.And())
	assert.Same(t, base, expr.Or(nil, base, nil))
}
