package selection_test

import (
	"context"
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/selection"
)

// recorder is a DataSource that captures the selections it receives.
type recorder struct {
	records []expr.Record
	reads   []*selection.ReadSelection
	counted *selection.ReadSelection
	updated *selection.UpdateSelection
	deleted *selection.DeleteSelection
}

func (r *recorder) Name() string { return "things" }

func (r *recorder) ReadSelection(_ context.Context, s *selection.ReadSelection) iter.Seq2[expr.Record, error] {
	r.reads = append(r.reads, s)
	return func(yield func(expr.Record, error) bool) {
		for _, rec := range r.records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (r *recorder) CountSelection(_ context.Context, s *selection.ReadSelection) (int64, error) {
	r.counted = s
	return int64(len(r.records)), nil
}

func (r *recorder) UpdateSelection(_ context.Context, s *selection.UpdateSelection) (int64, error) {
	r.updated = s
	return 1, nil
}

func (r *recorder) DeleteSelection(_ context.Context, s *selection.DeleteSelection) (int64, error) {
	r.deleted = s
	return 2, nil
}

func (r *recorder) Insert(_ context.Context, rec expr.Record, _ bool) (int64, error) {
	r.records = append(r.records, rec)
	return int64(len(r.records)), nil
}

type plainQuoter struct{}

func (plainQuoter) QuoteLiteral(_ *schema.DataType, v any) (string, error) {
	if s, ok := v.(string); ok {
		return "'" + s + "'", nil
	}
	if v == nil {
		return "NULL", nil
	}
	return fmt.Sprint(v), nil
}
func (plainQuoter) QuoteModel(name string) string { return name }
func (plainQuoter) QuoteField(name string) string { return name }
func (plainQuoter) QuoteString(s string) string   { return "'" + s + "'" }

func sql(t *testing.T, e expr.Expression) string {
	t.Helper()
	if e == nil {
		return ""
	}
	s, err := e.Render(plainQuoter{})
	require.NoError(t, err)
	return s
}

func TestSelectionMutatorsReturnReceiver(t *testing.T) {
	s := selection.New(&recorder{})
	assert.Same(t, s, s.Where("a = 1"))
	assert.Same(t, s, s.OrWhere("b = 2"))
	assert.Same(t, s, s.AndWhere(""))
	assert.Same(t, s, s.OrderBy("a").OrderByDescending("b").ReverseOrder().Limit(3))
	assert.Equal(t, "a = 1 OR b = 2", sql(t, s.Predicate()))
	assert.Equal(t, []selection.Order{{Field: "a", Descending: true}, {Field: "b"}}, s.Ordering())
	n, ok := s.RowLimit()
	assert.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestSelectionSpecializationCopies(t *testing.T) {
	root := selection.New(&recorder{}).Where("a = ?", 1).OrderBy("a").Limit(5)

	read := root.Select("a", "b")
	read.Where("b = ?", 2).ReverseOrder().Limit(1)

	update := root.Set("c", 3)
	update.OrderByDescending("c")

	assert.Equal(t, "a = 1", sql(t, root.Predicate()), "root predicate must not change")
	assert.Equal(t, []selection.Order{{Field: "a"}}, root.Ordering())
	n, _ := root.RowLimit()
	assert.Equal(t, 5, n)

	assert.Equal(t, "a = 1 AND b = 2", sql(t, read.Predicate()))
	assert.Equal(t, []selection.Order{{Field: "a", Descending: true}}, read.Ordering())
	n, _ = read.RowLimit()
	assert.Equal(t, 1, n)

	assert.Equal(t, "a = 1", sql(t, update.Predicate()))
	assert.Equal(t, []selection.Order{{Field: "a"}, {Field: "c", Descending: true}}, update.Ordering())

	other := root.Read()
	assert.Equal(t, []selection.Order{{Field: "a"}}, other.Ordering(), "siblings do not see each other")
	assert.Empty(t, other.Projection())
}

func TestSelectionCombinators(t *testing.T) {
	s := selection.New(&recorder{}).
		And(expr.Field[int]("a").GT(1), expr.Field[int]("b").LT(2)).
		Or(expr.Field[int]("c").EQ(3))
	assert.Equal(t, "a > 1 AND b < 2 OR c = 3", sql(t, s.Predicate()))
}

func TestReadSelectionState(t *testing.T) {
	other := &recorder{}
	def := schema.NewDefinition("owners").AddAutoIncrementID().AddField("name", schema.String(64)).MustBuild()

	r := selection.New(&recorder{}).
		Alias("t").
		SelectAs("t.id", "").
		SelectAs(expr.Column("t.name"), "label").
		With("adult", "[age] >= ?", 18).
		WithRecord("o", def).
		InnerJoin(other, "o", "o.id = t.owner_id").
		LeftJoin(other, "p", nil).
		GroupBy("t.kind").
		Having("kind != ?", "x").
		Distinct().
		Offset(4)
	require.NoError(t, r.Err())

	assert.Equal(t, "t", r.SourceAlias())
	assert.True(t, r.IsDistinct())
	assert.Equal(t, 4, r.RowOffset())
	assert.Equal(t, []string{"t.kind"}, r.Grouping())
	assert.Equal(t, "kind != 'x'", sql(t, r.GroupPredicate()))

	proj := r.Projection()
	require.Len(t, proj, 2)
	assert.Equal(t, "id", proj[0].Key())
	assert.Equal(t, "label", proj[1].Key())

	add := r.AdditionalFields()
	require.Len(t, add, 3)
	assert.Equal(t, "adult", add[0].Alias)
	assert.Equal(t, "o.id", add[1].Alias)
	assert.Equal(t, "o", add[1].SourceModel)
	assert.Equal(t, "id", add[1].SourceField)
	assert.True(t, add[2].Type.Equal(schema.String(64)))

	joins := r.Joins()
	require.Len(t, joins, 2)
	assert.Equal(t, selection.InnerJoin, joins[0].Type)
	assert.Equal(t, "o.id = t.owner_id", sql(t, joins[0].Predicate))
	assert.Equal(t, selection.LeftJoin, joins[1].Type)
	assert.Nil(t, joins[1].Predicate)
}

func TestReadSelectionErrors(t *testing.T) {
	src := &recorder{records: []expr.Record{{"a": 1}}}
	tests := []struct {
		name string
		sel  *selection.ReadSelection
	}{
		{"negative_limit", selection.New(src).Limit(-1).Read()},
		{"negative_offset", selection.New(src).Offset(-1)},
		{"empty_column", selection.New(src).Select("")},
		{"bad_projection", selection.New(src).SelectAs(42, "x")},
		{"unaliased_expression", selection.New(src).SelectAs(expr.E("a = 1"), "")},
		{"empty_with", selection.New(src).With("", "a")},
		{"nil_join", selection.New(src).InnerJoin(nil, "x", "a = 1")},
		{"nil_definition", selection.New(src).WithRecord("x", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sel.All(context.Background())
			require.Error(t, err)
			_, err = tt.sel.Count(context.Background())
			require.Error(t, err)
		})
	}
	assert.Empty(t, src.reads, "invalid selections never reach the source")
	assert.Nil(t, src.counted)
}

func TestReadTerminals(t *testing.T) {
	ctx := context.Background()
	src := &recorder{records: []expr.Record{{"a": 1}, {"a": 2}, {"a": 3}}}

	all, err := selection.New(src).All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := selection.New(src).Where("a > 0").Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, "a > 0", sql(t, src.counted.Predicate()))

	first, err := selection.New(src).Limit(10).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, expr.Record{"a": 1}, first)
	limit, _ := src.reads[len(src.reads)-1].RowLimit()
	assert.Equal(t, 1, limit)

	last, err := selection.New(src).OrderBy("a").Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, expr.Record{"a": 1}, last, "the source returns records unsorted")
	got := src.reads[len(src.reads)-1]
	assert.Equal(t, []selection.Order{{Field: "a", Descending: true}}, got.Ordering())
	limit, _ = got.RowLimit()
	assert.Equal(t, 1, limit)

	last, err = selection.New(src).Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, expr.Record{"a": 3}, last, "unordered selections are scanned")

	var seen []any
	for rec, err := range selection.New(src).Iter(ctx) {
		require.NoError(t, err)
		seen = append(seen, rec["a"])
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []any{1, 2}, seen)
}

func TestFirstNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := selection.New(&recorder{}).First(ctx)
	assert.True(t, strata.IsNotFound(err))
	_, err = selection.New(&recorder{}).Last(ctx)
	assert.True(t, strata.IsNotFound(err))
	_, err = selection.New(&recorder{}).OrderBy("a").Last(ctx)
	assert.True(t, strata.IsNotFound(err))
}

func TestUpdateSelection(t *testing.T) {
	ctx := context.Background()
	src := &recorder{}

	n, err := selection.New(src).Where("id = ?", 7).
		Set("name", "x").
		Set("count", expr.Column("total")).
		Set("name", "y").
		Limit(1).
		Update(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NotNil(t, src.updated)
	assert.Equal(t, []selection.Assignment{
		{Field: "name", Value: "y"},
		{Field: "count", Value: expr.Column("total")},
	}, src.updated.Data())
	assert.Equal(t, "id = 7", sql(t, src.updated.Predicate()))

	u := selection.New(src).SetRecord(expr.Record{"b": 2, "a": 1})
	assert.Equal(t, []selection.Assignment{{Field: "a", Value: 1}, {Field: "b", Value: 2}}, u.Data())

	_, err = selection.New(src).SetRecord(expr.Record{}).Update(ctx)
	assert.ErrorIs(t, err, selection.ErrNoAssignments)

	_, err = selection.New(src).Set("", 1).Update(ctx)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	src := &recorder{}
	root := selection.New(src).Where("a = 1").OrderBy("a").Limit(2)
	n, err := root.Delete(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NotNil(t, src.deleted)
	assert.Equal(t, "a = 1", sql(t, src.deleted.Predicate()))
	assert.Equal(t, []selection.Order{{Field: "a"}}, src.deleted.Ordering())

	src.deleted = nil
	_, err = selection.New(src).Limit(-3).Delete(context.Background())
	require.Error(t, err)
	assert.Nil(t, src.deleted)
}
