package expr_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
)

// upperQuoter upper-cases identifiers and wraps strings in double quotes.
type upperQuoter struct{}

func (q upperQuoter) QuoteLiteral(t *schema.DataType, v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return q.QuoteString(v), nil
	case time.Time:
		if t.Kind() == schema.KindDate {
			return q.QuoteString(v.Format(schema.DateLayout)), nil
		}
		return q.QuoteString(v.Format(schema.DateTimeLayout)), nil
	case []byte:
		return fmt.Sprintf("X'%x'", v), nil
	}
	return fmt.Sprint(v), nil
}

func (upperQuoter) QuoteModel(name string) string { return strings.ToUpper(name) }
func (upperQuoter) QuoteField(name string) string { return strings.ToUpper(name) }
func (upperQuoter) QuoteString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

var typeComparer = cmp.Comparer(func(a, b *schema.DataType) bool { return a.Equal(b) })

func render(t *testing.T, e expr.Expression) string {
	t.Helper()
	s, err := e.Render(upperQuoter{})
	require.NoError(t, err)
	return s
}

func mustParse(t *testing.T, format string, vars ...any) expr.Expression {
	t.Helper()
	e, err := expr.Parse(format, vars...)
	require.NoError(t, err)
	return e
}

func TestParseScenario(t *testing.T) {
	e := mustParse(t, "age > ? and name = ?", 18, "Bob")
	want := &expr.Infix{
		Left: &expr.Infix{
			Left:     &expr.FieldAccess{Field: "age", QuoteField: true},
			Operator: ">",
			Right:    &expr.Literal{Type: schema.Integer(0), Value: int64(18)},
		},
		Operator: "and",
		Right: &expr.Infix{
			Left:     &expr.FieldAccess{Field: "name", QuoteField: true},
			Operator: "=",
			Right:    &expr.Literal{Type: schema.Text(), Value: "Bob"},
		},
	}
	if diff := cmp.Diff(want, e, typeComparer); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, `AGE > 18 AND NAME = "Bob"`, render(t, e))
}

func TestParseStructure(t *testing.T) {
	tests := []struct {
		name   string
		format string
		vars   []any
		want   expr.Expression
	}{
		{
			name:   "is_null",
			format: "deleted_at is null",
			want:   &expr.Infix{Left: &expr.FieldAccess{Field: "deleted_at", QuoteField: true}, Operator: expr.OpIsNull},
		},
		{
			name:   "not",
			format: "not active",
			want:   expr.Not(&expr.FieldAccess{Field: "active", QuoteField: true}),
		},
		{
			name:   "qualified_column",
			format: "{users}.[id] = 1",
			want: &expr.Infix{
				Left:     &expr.FieldAccess{Field: "id", QuoteField: true, Model: "users", QuoteModel: true},
				Operator: "=",
				Right:    &expr.Literal{Type: schema.Integer(0), Value: int64(1)},
			},
		},
		{
			name:   "tuple",
			format: "id in ?()",
			vars:   []any{[]int{1, 2}},
			want: &expr.Infix{
				Left:     &expr.FieldAccess{Field: "id", QuoteField: true},
				Operator: "in",
				Right:    &expr.ArrayLiteral{Type: schema.Integer(0, schema.Nullable()), Values: []any{int64(1), int64(2)}},
			},
		},
		{
			name:   "column_placeholder",
			format: "%c = true",
			vars:   []any{"p.active"},
			want: &expr.Infix{
				Left:     &expr.FieldAccess{Field: "active", QuoteField: true, Model: "p", QuoteModel: true},
				Operator: "=",
				Right:    &expr.Literal{Type: schema.Boolean(), Value: true},
			},
		},
		{
			name:   "left_associative",
			format: "a or b or c",
			want: &expr.Infix{
				Left: &expr.Infix{
					Left:     &expr.FieldAccess{Field: "a", QuoteField: true},
					Operator: "or",
					Right:    &expr.FieldAccess{Field: "b", QuoteField: true},
				},
				Operator: "or",
				Right:    &expr.FieldAccess{Field: "c", QuoteField: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.format, tt.vars...)
			if diff := cmp.Diff(tt.want, got, typeComparer); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.format, diff)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		format string
		vars   []any
		want   string
	}{
		{"a = 1 or b = 2 and c = 3", nil, "A = 1 OR B = 2 AND C = 3"},
		{"(a = 1 or b = 2) and c = 3", nil, "(A = 1 OR B = 2) AND C = 3"},
		{"a = 1 and (b = 2 or c = 3)", nil, "A = 1 AND (B = 2 OR C = 3)"},
		{"not (a = 1 or b = 2)", nil, "NOT (A = 1 OR B = 2)"},
		{"not a = 1", nil, "NOT A = 1"},
		{"a is null", nil, "A IS NULL"},
		{"a is not null and b IS NULL", nil, "A IS NOT NULL AND B IS NULL"},
		{"a in (1, 2, 3)", nil, "A IN (1, 2, 3)"},
		{"a in ?()", []any{[]string{"x", "y"}}, `A IN ("x", "y")`},
		{"a in ?()", []any{[]int{}}, "A IN (NULL)"},
		{`name like "B%"`, nil, `NAME LIKE "B%"`},
		{"u.age >= 3", nil, "U.AGE >= 3"},
		{"{u}.[age] !< 3", nil, "U.AGE >= 3"},
		{"a !> 3", nil, "A <= 3"},
		{"a <> ? and b != ?", []any{1.5, false}, "A <> 1.5 AND B != FALSE"},
		{"a = -4", nil, "A = -4"},
		{"a = %m.b", []any{"t"}, "A = T.B"},
		{"TRUE = active", nil, "TRUE = ACTIVE"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, mustParse(t, tt.format, tt.vars...)))
		})
	}
}

func TestRenderCombined(t *testing.T) {
	ab := mustParse(t, "a = 1 or b = 2")
	c := mustParse(t, "c = 3")

	assert.Equal(t, "(A = 1 OR B = 2) AND C = 3", render(t, expr.And(ab, c)))
	assert.Equal(t, "A = 1 OR B = 2 OR C = 3", render(t, expr.Or(ab, c)),
		"left operand of equal precedence needs no parentheses")
	assert.Equal(t, "C = 3 AND (A = 1 OR B = 2)", render(t, expr.And(c, ab)))
	assert.Equal(t, "C = 3 OR (A = 1 OR B = 2)", render(t, &expr.Infix{Left: c, Operator: expr.OpOr, Right: ab}),
		"right operand of equal precedence is parenthesized")
}

func TestBuilder(t *testing.T) {
	b := expr.E("[count] = [count] + ?", 1)
	s, err := b.Render(upperQuoter{})
	require.NoError(t, err)
	assert.Equal(t, "COUNT = COUNT + 1", s, "rendering does not require a parsable condition")

	_, err = b.AST()
	require.Error(t, err)
	_, err = b.Evaluate(expr.Record{"count": 1})
	require.Error(t, err)

	assert.Equal(t, "[count] = [count] + ?", b.Format())
	assert.Equal(t, []any{1}, b.Vars())

	// Rendering twice uses a fresh variable counter each time.
	again, err := b.Render(upperQuoter{})
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "NAME", render(t, expr.Column("name")))
	assert.Equal(t, "U.NAME", render(t, expr.Column("u.name")))
	assert.Equal(t, "u.name", expr.Column("u.name").Name())
	assert.Equal(t, "raw", render(t, &expr.FieldAccess{Field: "raw"}))
	assert.Equal(t, "T.*", render(t, &expr.FieldAccess{Field: "*", QuoteField: true, Model: "t", QuoteModel: true}))
	assert.True(t, expr.IsAtomic(expr.Column("x")))
	assert.False(t, expr.IsAtomic(mustParse(t, "x = 1")))
}
