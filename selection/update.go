package selection

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/syssam/strata/expr"
)

// Assignment is one SET term of an update. Value is either a plain value
// or an expr.Expression evaluated against the record being updated.
type Assignment struct {
	Field string
	Value any
}

// UpdateSelection is a selection of records to update.
type UpdateSelection struct {
	builder[*UpdateSelection]
	data []Assignment
}

func newUpdate(st state) *UpdateSelection {
	u := &UpdateSelection{}
	u.state = st
	u.self = u
	return u
}

// Set assigns v to field. Assigning a field twice keeps its first
// position with the latest value.
func (u *UpdateSelection) Set(field string, v any) *UpdateSelection {
	if field == "" {
		u.addError(errors.New("strata: update of an empty field name"))
		return u
	}
	if i := slices.IndexFunc(u.data, func(a Assignment) bool { return a.Field == field }); i >= 0 {
		u.data[i].Value = v
		return u
	}
	u.data = append(u.data, Assignment{Field: field, Value: v})
	return u
}

// SetRecord assigns every field of r, in field name order.
func (u *UpdateSelection) SetRecord(r expr.Record) *UpdateSelection {
	for _, f := range slices.Sorted(maps.Keys(r)) {
		u.Set(f, r[f])
	}
	return u
}

// Data returns the assignments in insertion order.
func (u *UpdateSelection) Data() []Assignment { return slices.Clone(u.data) }

// Update applies the assignments to the selected records and returns how
// many were affected.
func (u *UpdateSelection) Update(ctx context.Context) (int64, error) {
	if err := u.Err(); err != nil {
		return 0, err
	}
	if len(u.data) == 0 {
		return 0, ErrNoAssignments
	}
	return u.source.UpdateSelection(ctx, u)
}
