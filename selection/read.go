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

// JoinType is the kind of a join.
type JoinType string

// Join types.
const (
	InnerJoin JoinType = "INNER"
	LeftJoin  JoinType = "LEFT"
	RightJoin JoinType = "RIGHT"
)

// Join is a source joined into a read selection.
type Join struct {
	Source    DataSource
	Type      JoinType
	Alias     string
	Predicate expr.Expression
}

// Projection is one explicitly selected expression. Alias is empty for
// plain columns.
type Projection struct {
	Expr  expr.Expression
	Alias string
}

// Key returns the record key the projection is read into.
func (p Projection) Key() string {
	if p.Alias != "" {
		return p.Alias
	}
	if f, ok := p.Expr.(*expr.FieldAccess); ok {
		return f.Field
	}
	return ""
}

// AdditionalField is a computed or joined field appended to the default
// projection. Type, when set, decodes the value; SourceModel and
// SourceField are set for fields read from a joined record.
type AdditionalField struct {
	Alias       string
	Expr        expr.Expression
	Type        *schema.DataType
	SourceModel string
	SourceField string
}

// ReadSelection is a selection of records to read.
type ReadSelection struct {
	builder[*ReadSelection]
	distinct   bool
	alias      string
	grouping   []string
	having     expr.Expression
	offset     int
	joins      []Join
	projection []Projection
	additional []AdditionalField
}

func newRead(st state) *ReadSelection {
	r := &ReadSelection{}
	r.state = st
	r.self = r
	return r
}

// Clone returns an independent copy of the selection.
func (r *ReadSelection) Clone() *ReadSelection {
	c := newRead(r.clone())
	c.distinct = r.distinct
	c.alias = r.alias
	c.grouping = slices.Clone(r.grouping)
	c.having = r.having
	c.offset = r.offset
	c.joins = slices.Clone(r.joins)
	c.projection = slices.Clone(r.projection)
	c.additional = slices.Clone(r.additional)
	return c
}

// Select sets the projection to the given columns. Columns may be
// qualified as "model.field".
func (r *ReadSelection) Select(columns ...string) *ReadSelection {
	r.projection = r.projection[:0:0]
	for _, c := range columns {
		if c == "" {
			r.addError(strata.NewInvalidColumnError("", c))
			continue
		}
		r.projection = append(r.projection, Projection{Expr: expr.Column(c)})
	}
	return r
}

// SelectAs adds e to the projection under alias. e is a column name or an
// expr.Expression.
func (r *ReadSelection) SelectAs(e any, alias string) *ReadSelection {
	var x expr.Expression
	switch e := e.(type) {
	case string:
		x = expr.Column(e)
	case expr.Expression:
		x = e
	default:
		r.addError(strata.NewTypeError("projection", e, "expected a column name or an Expression"))
		return r
	}
	if alias == "" {
		if _, ok := x.(*expr.FieldAccess); !ok {
			r.addError(fmt.Errorf("strata: projected expression %v needs an alias", x))
			return r
		}
	}
	r.projection = append(r.projection, Projection{Expr: x, Alias: alias})
	return r
}

// With appends a computed field to the default projection. e is a
// condition format string with vars or an expr.Expression.
func (r *ReadSelection) With(alias string, e any, vars ...any) *ReadSelection {
	x := expr.Clause(e, vars...)
	if alias == "" || x == nil {
		r.addError(errors.New("strata: with requires an alias and an expression"))
		return r
	}
	r.additional = append(r.additional, AdditionalField{Alias: alias, Expr: x})
	return r
}

// WithRecord appends every field of def, read from the source aliased as
// alias, under the key "alias.field".
func (r *ReadSelection) WithRecord(alias string, def *schema.Definition) *ReadSelection {
	if alias == "" || def == nil {
		r.addError(errors.New("strata: with record requires an alias and a definition"))
		return r
	}
	for _, f := range def.Columns() {
		r.additional = append(r.additional, AdditionalField{
			Alias:       alias + "." + f.Name,
			Expr:        &expr.FieldAccess{Field: f.Name, QuoteField: true, Model: alias, QuoteModel: true},
			Type:        f.Type,
			SourceModel: alias,
			SourceField: f.Name,
		})
	}
	return r
}

// GroupBy groups the records by the given columns.
func (r *ReadSelection) GroupBy(columns ...string) *ReadSelection {
	r.grouping = append(r.grouping, columns...)
	return r
}

// Having adds a condition on the groups, combined by and.
func (r *ReadSelection) Having(cond any, vars ...any) *ReadSelection {
	r.having = expr.AndWhere(r.having, cond, vars...)
	return r
}

func (r *ReadSelection) join(t JoinType, source DataSource, alias string, on any, vars []any) *ReadSelection {
	if source == nil {
		r.addError(strata.NewInvalidTableError(alias))
		return r
	}
	r.joins = append(r.joins, Join{Source: source, Type: t, Alias: alias, Predicate: expr.Clause(on, vars...)})
	return r
}

// InnerJoin joins source under alias on the given condition.
func (r *ReadSelection) InnerJoin(source DataSource, alias string, on any, vars ...any) *ReadSelection {
	return r.join(InnerJoin, source, alias, on, vars)
}

// LeftJoin left joins source under alias on the given condition.
func (r *ReadSelection) LeftJoin(source DataSource, alias string, on any, vars ...any) *ReadSelection {
	return r.join(LeftJoin, source, alias, on, vars)
}

// RightJoin right joins source under alias on the given condition.
func (r *ReadSelection) RightJoin(source DataSource, alias string, on any, vars ...any) *ReadSelection {
	return r.join(RightJoin, source, alias, on, vars)
}

// Distinct removes duplicate records.
func (r *ReadSelection) Distinct() *ReadSelection {
	r.distinct = true
	return r
}

// Offset skips the first n records.
func (r *ReadSelection) Offset(n int) *ReadSelection {
	if n < 0 {
		r.addError(fmt.Errorf("strata: negative offset %d", n))
		return r
	}
	r.offset = n
	return r
}

// Alias names the source in the query.
func (r *ReadSelection) Alias(name string) *ReadSelection {
	r.alias = name
	return r
}

// IsDistinct reports whether duplicates are removed.
func (r *ReadSelection) IsDistinct() bool { return r.distinct }

// SourceAlias returns the alias of the source, or "".
func (r *ReadSelection) SourceAlias() string { return r.alias }

// Grouping returns the GROUP BY columns.
func (r *ReadSelection) Grouping() []string { return slices.Clone(r.grouping) }

// GroupPredicate returns the HAVING condition, or nil.
func (r *ReadSelection) GroupPredicate() expr.Expression { return r.having }

// RowOffset returns the number of records skipped.
func (r *ReadSelection) RowOffset() int { return r.offset }

// Joins returns the joins in insertion order.
func (r *ReadSelection) Joins() []Join { return slices.Clone(r.joins) }

// Projection returns the explicit projection, empty for the default one.
func (r *ReadSelection) Projection() []Projection { return slices.Clone(r.projection) }

// AdditionalFields returns the fields appended to the default projection.
func (r *ReadSelection) AdditionalFields() []AdditionalField { return slices.Clone(r.additional) }

// Iter streams the selected records.
func (r *ReadSelection) Iter(ctx context.Context) iter.Seq2[expr.Record, error] {
	if err := r.Err(); err != nil {
		return func(yield func(expr.Record, error) bool) { yield(nil, err) }
	}
	return r.source.ReadSelection(ctx, r)
}

// All returns the selected records.
func (r *ReadSelection) All(ctx context.Context) ([]expr.Record, error) {
	var out []expr.Record
	for rec, err := range r.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of selected records. Limit and offset are
// ignored.
func (r *ReadSelection) Count(ctx context.Context) (int64, error) {
	if err := r.Err(); err != nil {
		return 0, err
	}
	return r.source.CountSelection(ctx, r)
}

// First returns the first selected record, or a *strata.NotFoundError.
func (r *ReadSelection) First(ctx context.Context) (expr.Record, error) {
	c := r.Clone()
	if !c.hasLimit || c.limit > 1 {
		c.limit, c.hasLimit = 1, true
	}
	return c.first(ctx)
}

// Last returns the last selected record, or a *strata.NotFoundError. An
// ordered selection without limit is read in reverse; otherwise every
// record is scanned.
func (r *ReadSelection) Last(ctx context.Context) (expr.Record, error) {
	if len(r.ordering) > 0 && !r.hasLimit {
		c := r.Clone().ReverseOrder()
		c.limit, c.hasLimit = 1, true
		return c.first(ctx)
	}
	var last expr.Record
	for rec, err := range r.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		last = rec
	}
	if last == nil {
		return nil, strata.NewNotFoundError(r.source.Name())
	}
	return last, nil
}

func (r *ReadSelection) first(ctx context.Context) (expr.Record, error) {
	for rec, err := range r.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, strata.NewNotFoundError(r.source.Name())
}
