package memory

import (
	"context"
	"iter"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/selection"
)

// Source is a DataSource backed by a slice of records. Selections are
// evaluated directly against the records, with the same semantics the SQL
// data sources render. It is safe for concurrent use.
type Source struct {
	name   string
	def    *schema.Definition
	mu     sync.RWMutex
	rows   []expr.Record
	nextID int64
}

// Option configures a Source.
type Option func(*Source)

// WithDefinition makes the source validate and convert inserted and
// updated values against def, fill auto increment ids and enforce the
// primary and unique keys.
func WithDefinition(def *schema.Definition) Option {
	return func(s *Source) { s.def = def }
}

// WithRecords seeds the source with copies of records. Records are stored
// as given, without validation.
func WithRecords(records ...expr.Record) Option {
	return func(s *Source) {
		for _, r := range records {
			s.rows = append(s.rows, maps.Clone(r))
		}
	}
}

// New returns a source named name.
func New(name string, opts ...Option) *Source {
	s := &Source{name: name, nextID: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.def != nil {
		if f, ok := s.def.AutoIncrement(); ok {
			for _, r := range s.rows {
				if id, ok := r[f].(int64); ok && id >= s.nextID {
					s.nextID = id + 1
				}
			}
		}
	}
	return s
}

var _ selection.DataSource = (*Source)(nil)

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Definition returns the definition the source enforces, or nil.
func (s *Source) Definition() *schema.Definition { return s.def }

// Select returns a selection over the source.
func (s *Source) Select() *selection.Selection { return selection.New(s) }

// Records returns a copy of every stored record in insertion order.
func (s *Source) Records() []expr.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.rows)
}

// Len returns the number of stored records.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// ReadSelection runs the read pipeline: filter, group, having, order,
// project, distinct, offset and limit.
func (s *Source) ReadSelection(ctx context.Context, sel *selection.ReadSelection) iter.Seq2[expr.Record, error] {
	return func(yield func(expr.Record, error) bool) {
		rows, err := s.read(ctx, sel, true)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// CountSelection counts the records the selection reads, ignoring its
// limit and offset.
func (s *Source) CountSelection(ctx context.Context, sel *selection.ReadSelection) (int64, error) {
	rows, err := s.read(ctx, sel, false)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (s *Source) read(ctx context.Context, sel *selection.ReadSelection, paginate bool) ([]expr.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(sel.Joins()) > 0 {
		return nil, strata.NewUnsupportedOperationError("join", s.name)
	}
	s.mu.RLock()
	rows := cloneAll(s.rows)
	s.mu.RUnlock()

	rows, err := filter(rows, sel.Predicate(), "failed to evaluate predicate")
	if err != nil {
		return nil, err
	}
	if rows, err = extend(rows, sel.AdditionalFields()); err != nil {
		return nil, err
	}
	if grouping := sel.Grouping(); len(grouping) > 0 {
		if rows, err = group(rows, grouping); err != nil {
			return nil, err
		}
		if rows, err = filter(rows, sel.GroupPredicate(), "failed to evaluate group predicate"); err != nil {
			return nil, err
		}
	}
	if err := order(rows, sel.Ordering()); err != nil {
		return nil, err
	}
	if proj := sel.Projection(); len(proj) > 0 {
		if rows, err = project(rows, proj); err != nil {
			return nil, err
		}
	}
	if sel.IsDistinct() {
		rows = distinct(rows)
	}
	if !paginate {
		return rows, nil
	}
	limit, hasLimit := sel.RowLimit()
	return paginateRows(rows, sel.RowOffset(), limit, hasLimit), nil
}

// UpdateSelection assigns the selection data to the matching records.
// Expression values are evaluated against each record before it changes.
func (s *Source) UpdateSelection(ctx context.Context, sel *selection.UpdateSelection) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data := sel.Data()
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.match(sel.Predicate(), sel.Ordering(), sel)
	if err != nil {
		return 0, err
	}
	updated := make([]expr.Record, len(idx))
	for n, i := range idx {
		r := maps.Clone(s.rows[i])
		for _, a := range data {
			v := a.Value
			if e, ok := v.(expr.Expression); ok {
				if v, err = e.Evaluate(s.rows[i]); err != nil {
					return 0, errors.Wrapf(err, "failed to evaluate value of %s", a.Field)
				}
			}
			if v, err = s.convert(a.Field, v); err != nil {
				return 0, err
			}
			r[a.Field] = v
		}
		updated[n] = r
	}
	// Check every key before applying, so a violation leaves the source
	// unchanged.
	for n := range idx {
		if s.conflict(updated[n], idx) >= 0 || s.collides(updated[n], updated[n+1:]) {
			return 0, strata.NewConstraintError("duplicate key in "+s.name, nil)
		}
	}
	for n, i := range idx {
		s.rows[i] = updated[n]
	}
	return int64(len(idx)), nil
}

// DeleteSelection removes the matching records.
func (s *Source) DeleteSelection(ctx context.Context, sel *selection.DeleteSelection) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.match(sel.Predicate(), sel.Ordering(), sel)
	if err != nil {
		return 0, err
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := s.rows[:0]
	for i, r := range s.rows {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	clear(s.rows[len(kept):])
	s.rows = kept
	return int64(len(idx)), nil
}

type limiter interface {
	RowLimit() (int, bool)
}

// match returns the indices of the records a mutation applies to, in
// mutation order. The caller holds the lock.
func (s *Source) match(pred expr.Expression, ordering []selection.Order, l limiter) ([]int, error) {
	var idx []int
	for i, r := range s.rows {
		ok, err := holds(pred, r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to evaluate predicate")
		}
		if ok {
			idx = append(idx, i)
		}
	}
	if len(ordering) > 0 {
		var sortErr error
		slices.SortStableFunc(idx, func(a, b int) int {
			c, err := compareRecords(s.rows[a], s.rows[b], ordering)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return c
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if n, ok := l.RowLimit(); ok && n < len(idx) {
		idx = idx[:n]
	}
	return idx, nil
}

// Insert appends r. With a definition, missing fields take their default,
// the auto increment field is generated when absent, and a record
// colliding with an existing key is rejected, or replaces the existing one
// when replace is set. It returns the auto increment id, or 0.
func (s *Source) Insert(ctx context.Context, r expr.Record, replace bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, id, err := s.prepare(r)
	if err != nil {
		return 0, err
	}
	if j := s.conflict(rec, nil); j >= 0 {
		if !replace {
			return 0, strata.NewConstraintError("duplicate key in "+s.name, nil)
		}
		s.rows = slices.Delete(s.rows, j, j+1)
	}
	s.rows = append(s.rows, rec)
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return id, nil
}

// prepare validates an inserted record against the definition.
func (s *Source) prepare(r expr.Record) (expr.Record, int64, error) {
	rec := maps.Clone(r)
	if s.def == nil {
		return rec, 0, nil
	}
	for f := range rec {
		if !s.def.HasField(f) {
			return nil, 0, strata.NewInvalidColumnError(s.name, f)
		}
	}
	var id int64
	auto, hasAuto := s.def.AutoIncrement()
	for _, f := range s.def.Columns() {
		v, ok := rec[f.Name]
		switch {
		case hasAuto && f.Name == auto && v == nil:
			id = s.nextID
			rec[f.Name] = id
			continue
		case !ok:
			if d, ok := f.Type.Default(); ok {
				v = d
			}
		}
		cv, err := s.convert(f.Name, v)
		if err != nil {
			return nil, 0, err
		}
		rec[f.Name] = cv
		if hasAuto && f.Name == auto {
			id, _ = cv.(int64)
		}
	}
	return rec, id, nil
}

// convert coerces v to the type of field and validates it.
func (s *Source) convert(field string, v any) (any, error) {
	if s.def == nil {
		return v, nil
	}
	t, ok := s.def.Type(field)
	if !ok {
		return nil, strata.NewInvalidColumnError(s.name, field)
	}
	if v == nil {
		if !t.IsNullable() {
			return nil, strata.NewValidationError(field, errors.New("value is required"))
		}
		return nil, nil
	}
	cv := t.Convert(v, false)
	if cv == nil || !t.IsValid(cv) {
		return nil, strata.NewTypeError(t.String(), v, "field "+field)
	}
	return cv, nil
}

// uniqueKeys returns the column sets of the primary key and unique keys.
func (s *Source) uniqueKeys() [][]string {
	if s.def == nil {
		return nil
	}
	var keys [][]string
	if pk := s.def.PrimaryKey(); len(pk) > 0 {
		keys = append(keys, pk)
	}
	for _, k := range s.def.Keys() {
		if k.Unique {
			keys = append(keys, k.Columns)
		}
	}
	return keys
}

// conflict returns the index of a stored record, other than the records in
// skip, that shares the primary key or a unique key with r, or
// -1. The caller holds the lock.
func (s *Source) conflict(r expr.Record, skip []int) int {
	keys := s.uniqueKeys()
	if len(keys) == 0 {
		return -1
	}
	for i, other := range s.rows {
		if slices.Contains(skip, i) {
			continue
		}
		for _, cols := range keys {
			if sameKey(r, other, cols) {
				return i
			}
		}
	}
	return -1
}

// collides reports whether r shares a unique key with any of others.
func (s *Source) collides(r expr.Record, others []expr.Record) bool {
	keys := s.uniqueKeys()
	for _, o := range others {
		for _, cols := range keys {
			if sameKey(r, o, cols) {
				return true
			}
		}
	}
	return false
}

// sameKey reports whether a and b agree on every column. NULL never
// collides, as in SQL unique indexes.
func sameKey(a, b expr.Record, cols []string) bool {
	for _, c := range cols {
		av, bv := a[c], b[c]
		if av == nil || bv == nil {
			return false
		}
		if n, err := expr.Compare(av, bv); err != nil || n != 0 {
			return false
		}
	}
	return true
}

func holds(pred expr.Expression, r expr.Record) (bool, error) {
	if pred == nil {
		return true, nil
	}
	v, err := pred.Evaluate(r)
	if err != nil {
		return false, err
	}
	b, known := expr.Truth(v)
	return known && b, nil
}

func filter(rows []expr.Record, pred expr.Expression, msg string) ([]expr.Record, error) {
	if pred == nil {
		return rows, nil
	}
	out := rows[:0]
	for _, r := range rows {
		ok, err := holds(pred, r)
		if err != nil {
			return nil, errors.Wrap(err, msg)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// extend evaluates the additional fields into each record.
func extend(rows []expr.Record, fields []selection.AdditionalField) ([]expr.Record, error) {
	if len(fields) == 0 {
		return rows, nil
	}
	for _, r := range rows {
		values := make([]any, len(fields))
		for i, f := range fields {
			v, err := f.Expr.Evaluate(r)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to evaluate field %s", f.Alias)
			}
			if f.Type != nil && v != nil {
				v = f.Type.Convert(v, false)
			}
			values[i] = v
		}
		for i, f := range fields {
			r[f.Alias] = values[i]
		}
	}
	return rows, nil
}

// group keeps the first record of every group, in order of first
// appearance.
func group(rows []expr.Record, columns []string) ([]expr.Record, error) {
	var (
		keys [][]any
		out  []expr.Record
	)
	for _, r := range rows {
		key := make([]any, len(columns))
		for i, c := range columns {
			v, err := expr.Column(c).Evaluate(r)
			if err != nil {
				return nil, errors.Wrap(err, "failed to evaluate group key")
			}
			key[i] = v
		}
		if slices.ContainsFunc(keys, func(k []any) bool { return sameValues(k, key) }) {
			continue
		}
		keys = append(keys, key)
		out = append(out, r)
	}
	return out, nil
}

func sameValues(a, b []any) bool {
	for i := range a {
		if a[i] == nil || b[i] == nil {
			if a[i] != nil || b[i] != nil {
				return false
			}
			continue
		}
		if n, err := expr.Compare(a[i], b[i]); err != nil || n != 0 {
			return false
		}
	}
	return true
}

func compareRecords(a, b expr.Record, ordering []selection.Order) (int, error) {
	for _, o := range ordering {
		av, err := o.Column().Evaluate(a)
		if err != nil {
			return 0, errors.Wrap(err, "failed to evaluate order")
		}
		bv, err := o.Column().Evaluate(b)
		if err != nil {
			return 0, errors.Wrap(err, "failed to evaluate order")
		}
		c, err := expr.Compare(av, bv)
		if err != nil {
			return 0, errors.Wrap(err, "failed to compare order values")
		}
		if o.Descending {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

// order sorts rows in place. The sort is stable, so records equal on every
// term keep insertion order.
func order(rows []expr.Record, ordering []selection.Order) error {
	if len(ordering) == 0 {
		return nil
	}
	var sortErr error
	slices.SortStableFunc(rows, func(a, b expr.Record) int {
		c, err := compareRecords(a, b, ordering)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c
	})
	return sortErr
}

func project(rows []expr.Record, proj []selection.Projection) ([]expr.Record, error) {
	out := make([]expr.Record, len(rows))
	for i, r := range rows {
		p := make(expr.Record, len(proj))
		for _, c := range proj {
			v, err := c.Expr.Evaluate(r)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to evaluate projection %s", c.Key())
			}
			p[c.Key()] = v
		}
		out[i] = p
	}
	return out, nil
}

func distinct(rows []expr.Record) []expr.Record {
	var out []expr.Record
	for _, r := range rows {
		if !slices.ContainsFunc(out, func(o expr.Record) bool { return reflect.DeepEqual(o, r) }) {
			out = append(out, r)
		}
	}
	return out
}

func paginateRows(rows []expr.Record, offset, limit int, hasLimit bool) []expr.Record {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if hasLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func cloneAll(rows []expr.Record) []expr.Record {
	out := make([]expr.Record, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}
