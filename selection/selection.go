package selection

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
)

// DataSource executes selections. It either interprets them in memory or
// renders them to SQL.
type DataSource interface {
	// Name identifies the source in errors, usually the table name.
	Name() string
	// ReadSelection streams the records selected by s.
	ReadSelection(ctx context.Context, s *ReadSelection) iter.Seq2[expr.Record, error]
	// CountSelection returns the number of records selected by s, ignoring
	// its limit and offset.
	CountSelection(ctx context.Context, s *ReadSelection) (int64, error)
	// UpdateSelection applies s and returns the number of affected records.
	UpdateSelection(ctx context.Context, s *UpdateSelection) (int64, error)
	// DeleteSelection applies s and returns the number of affected records.
	DeleteSelection(ctx context.Context, s *DeleteSelection) (int64, error)
	// Insert adds a record, replacing one with the same unique key when
	// replace is set. It returns the generated id, or 0.
	Insert(ctx context.Context, r expr.Record, replace bool) (int64, error)
}

// Order is one ORDER BY term.
type Order struct {
	Field      string
	Descending bool
}

// Column returns the column reference the term orders by.
func (o Order) Column() *expr.FieldAccess { return expr.Column(o.Field) }

// ErrNoAssignments is returned when an update has nothing to set.
var ErrNoAssignments = errors.New("strata: update has no assignments")

// state is the part of a selection carried across specialization.
type state struct {
	source    DataSource
	predicate expr.Expression
	ordering  []Order
	limit     int
	hasLimit  bool
	errs      []error
}

// clone copies the state. The predicate tree is immutable and shared; the
// ordering is copied because ReverseOrder flips it in place.
func (s *state) clone() state {
	c := *s
	c.ordering = slices.Clone(s.ordering)
	c.errs = slices.Clone(s.errs)
	return c
}

func (s *state) addError(err error) {
	s.errs = append(s.errs, err)
}

// Source returns the data source the selection runs against.
func (s *state) Source() DataSource { return s.source }

// Predicate returns the filter, or nil when every record is selected.
func (s *state) Predicate() expr.Expression { return s.predicate }

// Ordering returns a copy of the ORDER BY terms.
func (s *state) Ordering() []Order { return slices.Clone(s.ordering) }

// RowLimit returns the limit and whether one is set.
func (s *state) RowLimit() (int, bool) { return s.limit, s.hasLimit }

// Err returns the errors collected while building the selection.
func (s *state) Err() error { return strata.NewAggregateError(s.errs...) }

// builder holds the mutators shared by every selection type. They modify
// the receiver and return it as its concrete type S.
type builder[S any] struct {
	state
	self S
}

// Where adds a condition, combined with the existing filter by and. The
// condition is a format string with vars or an expr.Expression.
func (b *builder[S]) Where(cond any, vars ...any) S {
	b.predicate = expr.AndWhere(b.predicate, cond, vars...)
	return b.self
}

// AndWhere is an alias of Where.
func (b *builder[S]) AndWhere(cond any, vars ...any) S {
	return b.Where(cond, vars...)
}

// OrWhere combines a condition with the existing filter by or.
func (b *builder[S]) OrWhere(cond any, vars ...any) S {
	b.predicate = expr.OrWhere(b.predicate, cond, vars...)
	return b.self
}

// And adds the given expressions to the filter with and.
func (b *builder[S]) And(exprs ...expr.Expression) S {
	b.predicate = expr.And(append([]expr.Expression{b.predicate}, exprs...)...)
	return b.self
}

// Or adds the given expressions to the filter with or.
func (b *builder[S]) Or(exprs ...expr.Expression) S {
	b.predicate = expr.Or(append([]expr.Expression{b.predicate}, exprs...)...)
	return b.self
}

// OrderBy appends ascending ORDER BY terms.
func (b *builder[S]) OrderBy(fields ...string) S {
	for _, f := range fields {
		b.ordering = append(b.ordering, Order{Field: f})
	}
	return b.self
}

// OrderByDescending appends descending ORDER BY terms.
func (b *builder[S]) OrderByDescending(fields ...string) S {
	for _, f := range fields {
		b.ordering = append(b.ordering, Order{Field: f, Descending: true})
	}
	return b.self
}

// ReverseOrder flips the direction of every ORDER BY term.
func (b *builder[S]) ReverseOrder() S {
	for i := range b.ordering {
		b.ordering[i].Descending = !b.ordering[i].Descending
	}
	return b.self
}

// Limit caps the number of records.
func (b *builder[S]) Limit(n int) S {
	if n < 0 {
		b.addError(fmt.Errorf("strata: negative limit %d", n))
		return b.self
	}
	b.limit, b.hasLimit = n, true
	return b.self
}

// Selection is a selection whose operation is not decided yet. Read,
// update and delete methods derive a typed selection from a copy of its
// filter, ordering and limit, leaving the Selection itself untouched, so one
// Selection may spawn several independent queries.
type Selection struct {
	builder[*Selection]
}

// New returns an empty selection over source.
func New(source DataSource) *Selection {
	s := &Selection{}
	s.source = source
	s.self = s
	return s
}

// Read returns a read selection with the state of s.
func (s *Selection) Read() *ReadSelection {
	return newRead(s.clone())
}

// Select sets the projection to the given columns.
func (s *Selection) Select(columns ...string) *ReadSelection {
	return s.Read().Select(columns...)
}

// SelectAs adds a projected expression under alias.
func (s *Selection) SelectAs(e any, alias string) *ReadSelection {
	return s.Read().SelectAs(e, alias)
}

// With adds a computed field to the default projection.
func (s *Selection) With(alias string, e any, vars ...any) *ReadSelection {
	return s.Read().With(alias, e, vars...)
}

// WithRecord adds every field of def, read under alias.
func (s *Selection) WithRecord(alias string, def *schema.Definition) *ReadSelection {
	return s.Read().WithRecord(alias, def)
}

// GroupBy groups the records by the given columns.
func (s *Selection) GroupBy(columns ...string) *ReadSelection {
	return s.Read().GroupBy(columns...)
}

// Having filters the groups.
func (s *Selection) Having(cond any, vars ...any) *ReadSelection {
	return s.Read().Having(cond, vars...)
}

// InnerJoin joins source under alias.
func (s *Selection) InnerJoin(source DataSource, alias string, on any, vars ...any) *ReadSelection {
	return s.Read().InnerJoin(source, alias, on, vars...)
}

// LeftJoin left joins source under alias.
func (s *Selection) LeftJoin(source DataSource, alias string, on any, vars ...any) *ReadSelection {
	return s.Read().LeftJoin(source, alias, on, vars...)
}

// RightJoin right joins source under alias.
func (s *Selection) RightJoin(source DataSource, alias string, on any, vars ...any) *ReadSelection {
	return s.Read().RightJoin(source, alias, on, vars...)
}

// Distinct removes duplicate records.
func (s *Selection) Distinct() *ReadSelection { return s.Read().Distinct() }

// Offset skips the first n records.
func (s *Selection) Offset(n int) *ReadSelection { return s.Read().Offset(n) }

// Alias names the source in the query.
func (s *Selection) Alias(name string) *ReadSelection { return s.Read().Alias(name) }

// Set returns an update selection assigning v to field.
func (s *Selection) Set(field string, v any) *UpdateSelection {
	return newUpdate(s.clone()).Set(field, v)
}

// SetRecord returns an update selection assigning every field of r.
func (s *Selection) SetRecord(r expr.Record) *UpdateSelection {
	return newUpdate(s.clone()).SetRecord(r)
}

// All returns the selected records.
func (s *Selection) All(ctx context.Context) ([]expr.Record, error) { return s.Read().All(ctx) }

// Iter streams the selected records.
func (s *Selection) Iter(ctx context.Context) iter.Seq2[expr.Record, error] {
	return s.Read().Iter(ctx)
}

// Count returns the number of selected records.
func (s *Selection) Count(ctx context.Context) (int64, error) { return s.Read().Count(ctx) }

// First returns the first selected record.
func (s *Selection) First(ctx context.Context) (expr.Record, error) { return s.Read().First(ctx) }

// Last returns the last selected record.
func (s *Selection) Last(ctx context.Context) (expr.Record, error) { return s.Read().Last(ctx) }

// Delete deletes the selected records and returns how many were removed.
func (s *Selection) Delete(ctx context.Context) (int64, error) {
	d := &DeleteSelection{}
	d.state = s.clone()
	d.self = d
	if err := d.Err(); err != nil {
		return 0, err
	}
	return d.source.DeleteSelection(ctx, d)
}

// DeleteSelection is a selection of records to delete.
type DeleteSelection struct {
	builder[*DeleteSelection]
}
