package sql

import (
	"context"
	"iter"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/selection"
)

// Table is a DataSource rendering selections to SQL statements run on a
// Database.
type Table struct {
	db   *Database
	name string
}

var _ selection.DataSource = (*Table)(nil)

// Name returns the logical table name.
func (t *Table) Name() string { return t.name }

// Database returns the database the table belongs to.
func (t *Table) Database() *Database { return t.db }

// Definition returns the table definition.
func (t *Table) Definition(ctx context.Context) (*schema.Definition, error) {
	return t.db.Definition(ctx, t.name)
}

// Select returns a selection over the table.
func (t *Table) Select() *selection.Selection { return selection.New(t) }

func (t *Table) table() string { return t.db.TableName(t.name) }

// readQuery controls the clauses rendered for a read selection.
type readQuery struct {
	projection string // overrides the projection when set
	unordered  bool   // omits ORDER BY, LIMIT and OFFSET
}

// ReadQuery renders the SELECT statement of a read selection.
func (t *Table) ReadQuery(r *selection.ReadSelection) (string, error) {
	return t.buildRead(r, readQuery{})
}

// CountQuery renders the statement counting the records of a read
// selection.
func (t *Table) CountQuery(r *selection.ReadSelection) (string, error) {
	if len(r.Grouping()) == 0 && !r.IsDistinct() {
		return t.buildRead(r, readQuery{projection: "COUNT(*)", unordered: true})
	}
	inner := readQuery{unordered: true}
	if !r.IsDistinct() {
		inner.projection = "1"
	}
	query, err := t.buildRead(r, inner)
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) FROM (" + query + ") AS _x", nil
}

func (t *Table) buildRead(r *selection.ReadSelection, rq readQuery) (string, error) {
	q := t.db.adapter
	var b strings.Builder
	b.WriteString("SELECT ")
	if r.IsDistinct() && rq.projection != "COUNT(*)" {
		b.WriteString("DISTINCT ")
	}
	cols := rq.projection
	if cols == "" {
		var err error
		if cols, err = t.buildProjection(r, q); err != nil {
			return "", err
		}
	}
	b.WriteString(cols)
	b.WriteString(t.buildFrom(r, q))
	joins, err := t.buildJoins(r, q)
	if err != nil {
		return "", err
	}
	b.WriteString(joins)
	where, err := buildWhere(r.Predicate(), q)
	if err != nil {
		return "", err
	}
	b.WriteString(where)
	group, err := buildGroupBy(r, q)
	if err != nil {
		return "", err
	}
	b.WriteString(group)
	if rq.unordered {
		return b.String(), nil
	}
	order, err := buildOrderBy(r.Ordering(), q)
	if err != nil {
		return "", err
	}
	b.WriteString(order)
	limit, ok := r.RowLimit()
	if !ok {
		limit = -1
	}
	if lo := q.LimitOffset(limit, r.RowOffset()); lo != "" {
		b.WriteString(" " + lo)
	}
	return b.String(), nil
}

func (t *Table) buildProjection(r *selection.ReadSelection, q Adapter) (string, error) {
	if ps := r.Projection(); len(ps) > 0 {
		parts := make([]string, 0, len(ps))
		for _, p := range ps {
			s, err := p.Expr.Render(q)
			if err != nil {
				return "", err
			}
			if p.Alias != "" {
				s += " AS " + q.QuoteField(p.Alias)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), nil
	}
	base := r.SourceAlias()
	if base == "" {
		base = t.table()
	}
	parts := []string{q.QuoteModel(base) + ".*"}
	for _, f := range r.AdditionalFields() {
		s, err := f.Expr.Render(q)
		if err != nil {
			return "", err
		}
		parts = append(parts, s+" AS "+q.QuoteField(f.Alias))
	}
	return strings.Join(parts, ", "), nil
}

func (t *Table) buildFrom(r *selection.ReadSelection, q Adapter) string {
	from := " FROM " + q.QuoteModel(t.table())
	if alias := r.SourceAlias(); alias != "" {
		from += " AS " + q.QuoteModel(alias)
	}
	return from
}

// buildJoins renders the joins in insertion order. Only tables of a
// database with the same dialect can be joined.
func (t *Table) buildJoins(r *selection.ReadSelection, q Adapter) (string, error) {
	var b strings.Builder
	for _, j := range r.Joins() {
		src, ok := j.Source.(*Table)
		if !ok || src.db.Dialect() != t.db.Dialect() {
			return "", strata.NewUnsupportedOperationError("join with "+j.Source.Name(), t.db.Dialect())
		}
		b.WriteString(" " + string(j.Type) + " JOIN " + q.QuoteModel(src.table()))
		if j.Alias != "" {
			b.WriteString(" AS " + q.QuoteModel(j.Alias))
		}
		if j.Predicate != nil {
			on, err := j.Predicate.Render(q)
			if err != nil {
				return "", err
			}
			b.WriteString(" ON " + on)
		}
	}
	return b.String(), nil
}

func buildWhere(p expr.Expression, q Adapter) (string, error) {
	if p == nil {
		return "", nil
	}
	s, err := p.Render(q)
	if err != nil {
		return "", err
	}
	return " WHERE " + s, nil
}

func buildGroupBy(r *selection.ReadSelection, q Adapter) (string, error) {
	grouping := r.Grouping()
	if len(grouping) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(grouping))
	for _, g := range grouping {
		s, err := expr.Column(g).Render(q)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	group := " GROUP BY " + strings.Join(parts, ", ")
	if h := r.GroupPredicate(); h != nil {
		s, err := h.Render(q)
		if err != nil {
			return "", err
		}
		group += " HAVING " + s
	}
	return group, nil
}

func buildOrderBy(ordering []selection.Order, q Adapter) (string, error) {
	if len(ordering) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(ordering))
	for _, o := range ordering {
		s, err := o.Column().Render(q)
		if err != nil {
			return "", err
		}
		if o.Descending {
			s += " DESC"
		}
		if no, ok := q.(NullsOrderer); ok {
			s += no.NullsOrder(o.Descending)
		}
		parts = append(parts, s)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// buildMutationSuffix renders WHERE, ORDER BY and LIMIT of an update or
// delete. Dialects without ordered mutations drop the ordering and reject
// a limit.
func (t *Table) buildMutationSuffix(op string, pred expr.Expression, ordering []selection.Order, limit int, hasLimit bool) (string, error) {
	q := t.db.adapter
	where, err := buildWhere(pred, q)
	if err != nil {
		return "", err
	}
	if !q.OrderedMutations() {
		if hasLimit {
			return "", strata.NewUnsupportedOperationError(op+" limit", q.Dialect())
		}
		return where, nil
	}
	order, err := buildOrderBy(ordering, q)
	if err != nil {
		return "", err
	}
	suffix := where + order
	if hasLimit {
		suffix += " " + q.LimitOffset(limit, 0)
	}
	return suffix, nil
}

// UpdateQuery renders the UPDATE statement of an update selection.
func (t *Table) UpdateQuery(ctx context.Context, u *selection.UpdateSelection) (string, error) {
	def, err := t.Definition(ctx)
	if err != nil {
		return "", err
	}
	q := t.db.adapter
	data := u.Data()
	if len(data) == 0 {
		return "", selection.ErrNoAssignments
	}
	sets := make([]string, 0, len(data))
	for _, a := range data {
		val, err := t.encodeAssignment(def, a, q)
		if err != nil {
			return "", err
		}
		sets = append(sets, q.QuoteField(a.Field)+" = "+val)
	}
	limit, hasLimit := u.RowLimit()
	suffix, err := t.buildMutationSuffix("update", u.Predicate(), u.Ordering(), limit, hasLimit)
	if err != nil {
		return "", err
	}
	return "UPDATE " + q.QuoteModel(t.table()) + " SET " + strings.Join(sets, ", ") + suffix, nil
}

func (t *Table) encodeAssignment(def *schema.Definition, a selection.Assignment, q Adapter) (string, error) {
	typ, ok := def.Type(a.Field)
	if !ok {
		return "", strata.NewInvalidColumnError(t.name, a.Field)
	}
	if e, ok := a.Value.(expr.Expression); ok {
		return e.Render(q)
	}
	return Encode(q, typ, a.Value)
}

// DeleteQuery renders the DELETE statement of a delete selection.
func (t *Table) DeleteQuery(d *selection.DeleteSelection) (string, error) {
	limit, hasLimit := d.RowLimit()
	suffix, err := t.buildMutationSuffix("delete", d.Predicate(), d.Ordering(), limit, hasLimit)
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + t.db.adapter.QuoteModel(t.table()) + suffix, nil
}

// InsertQuery renders the INSERT statement of a record. Columns follow
// the definition order.
func (t *Table) InsertQuery(def *schema.Definition, r expr.Record, replace bool) (string, error) {
	q := t.db.adapter
	for f := range r {
		if !def.HasField(f) {
			return "", strata.NewInvalidColumnError(t.name, f)
		}
	}
	var cols, vals []string
	for _, f := range def.Columns() {
		v, ok := r[f.Name]
		if !ok {
			continue
		}
		s, err := Encode(q, f.Type, v)
		if err != nil {
			return "", err
		}
		cols = append(cols, q.QuoteField(f.Name))
		vals = append(vals, s)
	}
	return q.Insert(t.table(), cols, vals, replace)
}

// ReadSelection runs the SELECT of r and streams the decoded records.
func (t *Table) ReadSelection(ctx context.Context, r *selection.ReadSelection) iter.Seq2[expr.Record, error] {
	return func(yield func(expr.Record, error) bool) {
		def, err := t.Definition(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		query, err := t.ReadQuery(r)
		if err != nil {
			yield(nil, err)
			return
		}
		rs, err := t.db.Query(ctx, query)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rs.Close()
		cols, err := rs.Columns()
		if err != nil {
			yield(nil, queryError(query, err))
			return
		}
		types := t.columnTypes(def, r, cols)
		for {
			row, err := rs.FetchRow()
			if err != nil {
				yield(nil, queryError(query, err))
				return
			}
			if row == nil {
				return
			}
			rec, err := t.decodeRow(cols, types, row)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// columnTypes maps result columns to the types decoding them. Columns
// without a known type are nil.
func (t *Table) columnTypes(def *schema.Definition, r *selection.ReadSelection, cols []string) []*schema.DataType {
	additional := make(map[string]*schema.DataType)
	for _, f := range r.AdditionalFields() {
		if f.Type != nil {
			additional[f.Alias] = f.Type
		}
	}
	types := make([]*schema.DataType, len(cols))
	for i, c := range cols {
		if typ, ok := additional[c]; ok {
			types[i] = typ
		} else if typ, ok := def.Type(c); ok {
			types[i] = typ
		}
	}
	return types
}

func (t *Table) decodeRow(cols []string, types []*schema.DataType, row []any) (expr.Record, error) {
	rec := make(expr.Record, len(cols))
	for i, c := range cols {
		raw := row[i]
		if types[i] == nil {
			if b, ok := raw.([]byte); ok {
				raw = string(b)
			}
			rec[c] = raw
			continue
		}
		v, err := t.db.adapter.Decode(types[i], raw)
		if err != nil {
			return nil, err
		}
		rec[c] = v
	}
	return rec, nil
}

// CountSelection runs the count statement of r.
func (t *Table) CountSelection(ctx context.Context, r *selection.ReadSelection) (int64, error) {
	query, err := t.CountQuery(r)
	if err != nil {
		return 0, err
	}
	rs, err := t.db.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rs.Close()
	row, err := rs.FetchRow()
	if err != nil {
		return 0, queryError(query, err)
	}
	if len(row) == 0 {
		return 0, nil
	}
	return toInt64(row[0])
}

// UpdateSelection runs the UPDATE of u.
func (t *Table) UpdateSelection(ctx context.Context, u *selection.UpdateSelection) (int64, error) {
	query, err := t.UpdateQuery(ctx, u)
	if err != nil {
		return 0, err
	}
	return t.db.Execute(ctx, query)
}

// DeleteSelection runs the DELETE of d.
func (t *Table) DeleteSelection(ctx context.Context, d *selection.DeleteSelection) (int64, error) {
	query, err := t.DeleteQuery(d)
	if err != nil {
		return 0, err
	}
	return t.db.Execute(ctx, query)
}

// Insert inserts r and returns the generated auto increment id, or 0 when
// the table has none.
func (t *Table) Insert(ctx context.Context, r expr.Record, replace bool) (int64, error) {
	def, err := t.Definition(ctx)
	if err != nil {
		return 0, err
	}
	query, err := t.InsertQuery(def, r, replace)
	if err != nil {
		return 0, err
	}
	id, _ := def.AutoIncrement()
	return t.db.Insert(ctx, query, id)
}
