package schema

import (
	"fmt"
	"slices"

	"github.com/syssam/strata"
)

// Field is a named data type, in definition order.
type Field struct {
	Name string
	Type *DataType
}

// Key is a secondary index over one or more columns.
type Key struct {
	Name    string
	Columns []string
	Unique  bool
}

// Equal reports whether two keys index the same columns the same way.
func (k Key) Equal(o Key) bool {
	return k.Name == o.Name && k.Unique == o.Unique && slices.Equal(k.Columns, o.Columns)
}

// Definition describes one table or model: its ordered fields, primary key
// and secondary keys. A Definition is immutable; use a DefinitionBuilder to
// create one.
type Definition struct {
	name    string
	fields  []Field
	index   map[string]int
	primary []string
	keys    []Key
}

// Name returns the logical name of the definition.
func (d *Definition) Name() string { return d.name }

// Fields returns the field names in definition order.
func (d *Definition) Fields() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the fields with their types in definition order.
func (d *Definition) Columns() []Field {
	return slices.Clone(d.fields)
}

// Type returns the data type of a field.
func (d *Definition) Type(field string) (*DataType, bool) {
	i, ok := d.index[field]
	if !ok {
		return nil, false
	}
	return d.fields[i].Type, true
}

// HasField reports whether the definition has the given field.
func (d *Definition) HasField(field string) bool {
	_, ok := d.index[field]
	return ok
}

// PrimaryKey returns the primary key columns.
func (d *Definition) PrimaryKey() []string { return slices.Clone(d.primary) }

// Keys returns the secondary keys in declaration order.
func (d *Definition) Keys() []Key { return slices.Clone(d.keys) }

// Key returns the secondary key with the given name.
func (d *Definition) Key(name string) (Key, bool) {
	for _, k := range d.keys {
		if k.Name == name {
			return k, true
		}
	}
	return Key{}, false
}

// AutoIncrement returns the auto incremented field, if any.
func (d *Definition) AutoIncrement() (string, bool) {
	for _, f := range d.fields {
		if f.Type.Kind() == KindInteger && f.Type.autoIncrement {
			return f.Name, true
		}
	}
	return "", false
}

// Builder returns a builder seeded with the definition, used to derive
// altered definitions.
func (d *Definition) Builder() *DefinitionBuilder {
	b := NewDefinition(d.name)
	for _, f := range d.fields {
		b.AddField(f.Name, f.Type)
	}
	b.primary = slices.Clone(d.primary)
	for _, k := range d.keys {
		b.keys = append(b.keys, Key{Name: k.Name, Columns: slices.Clone(k.Columns), Unique: k.Unique})
	}
	return b
}

// Mixin is a reusable set of fields and keys applied to a definition.
type Mixin interface {
	Fields() []Field
	Keys() []Key
}

// DefinitionBuilder accumulates fields and keys. Errors are collected and
// reported by Build.
type DefinitionBuilder struct {
	name    string
	fields  []Field
	primary []string
	keys    []Key
	errs    []error
}

// NewDefinition returns a builder for a definition with the given name.
func NewDefinition(name string) *DefinitionBuilder {
	return &DefinitionBuilder{name: name}
}

func (b *DefinitionBuilder) has(name string) bool {
	return slices.ContainsFunc(b.fields, func(f Field) bool { return f.Name == name })
}

// AddField appends a field.
func (b *DefinitionBuilder) AddField(name string, t *DataType) *DefinitionBuilder {
	switch {
	case name == "":
		b.errs = append(b.errs, fmt.Errorf("strata: definition %s: empty field name", b.name))
	case t == nil:
		b.errs = append(b.errs, fmt.Errorf("strata: definition %s: field %q has no type", b.name, name))
	case b.has(name):
		b.errs = append(b.errs, fmt.Errorf("strata: definition %s: duplicate field %q", b.name, name))
	default:
		b.fields = append(b.fields, Field{Name: name, Type: t})
	}
	return b
}

// AddAutoIncrementID prepends an unsigned auto incremented "id" field and
// makes it the primary key.
func (b *DefinitionBuilder) AddAutoIncrementID() *DefinitionBuilder {
	if b.has("id") {
		b.errs = append(b.errs, fmt.Errorf("strata: definition %s: duplicate field %q", b.name, "id"))
		return b
	}
	b.fields = slices.Insert(b.fields, 0, Field{Name: "id", Type: Integer(Unsigned | AutoIncrement)})
	b.primary = []string{"id"}
	return b
}

// AddTimestamps appends the created_at and updated_at fields.
func (b *DefinitionBuilder) AddTimestamps() *DefinitionBuilder {
	return b.
		AddField("created_at", DateTime()).
		AddField("updated_at", DateTime(Nullable()))
}

// AddUnique adds a unique key.
func (b *DefinitionBuilder) AddUnique(name string, columns ...string) *DefinitionBuilder {
	b.keys = append(b.keys, Key{Name: name, Columns: columns, Unique: true})
	return b
}

// AddKey adds a non unique key.
func (b *DefinitionBuilder) AddKey(name string, columns ...string) *DefinitionBuilder {
	b.keys = append(b.keys, Key{Name: name, Columns: columns})
	return b
}

// SetPrimaryKey replaces the primary key.
func (b *DefinitionBuilder) SetPrimaryKey(columns ...string) *DefinitionBuilder {
	b.primary = columns
	return b
}

// Mixin applies the fields and keys of the given mixins in order.
func (b *DefinitionBuilder) Mixin(mixins ...Mixin) *DefinitionBuilder {
	for _, m := range mixins {
		for _, f := range m.Fields() {
			b.AddField(f.Name, f.Type)
		}
		b.keys = append(b.keys, m.Keys()...)
	}
	return b
}

// RemoveField drops a field and every key referencing it.
func (b *DefinitionBuilder) RemoveField(name string) *DefinitionBuilder {
	b.fields = slices.DeleteFunc(b.fields, func(f Field) bool { return f.Name == name })
	b.keys = slices.DeleteFunc(b.keys, func(k Key) bool { return slices.Contains(k.Columns, name) })
	b.primary = slices.DeleteFunc(b.primary, func(c string) bool { return c == name })
	return b
}

// RemoveKey drops a secondary key.
func (b *DefinitionBuilder) RemoveKey(name string) *DefinitionBuilder {
	b.keys = slices.DeleteFunc(b.keys, func(k Key) bool { return k.Name == name })
	return b
}

// Build validates and returns the definition.
func (b *DefinitionBuilder) Build() (*Definition, error) {
	errs := slices.Clone(b.errs)
	if len(b.fields) == 0 {
		errs = append(errs, fmt.Errorf("strata: definition %s has no fields", b.name))
	}
	d := &Definition{
		name:    b.name,
		fields:  slices.Clone(b.fields),
		index:   make(map[string]int, len(b.fields)),
		primary: slices.Clone(b.primary),
	}
	for i, f := range d.fields {
		d.index[f.Name] = i
	}
	for _, c := range d.primary {
		if !d.HasField(c) {
			errs = append(errs, strata.NewInvalidColumnError(b.name, c))
		}
	}
	seen := make(map[string]bool, len(b.keys))
	for _, k := range b.keys {
		if k.Name == "" || seen[k.Name] {
			errs = append(errs, fmt.Errorf("strata: definition %s: invalid or duplicate key name %q", b.name, k.Name))
			continue
		}
		seen[k.Name] = true
		if len(k.Columns) == 0 {
			errs = append(errs, fmt.Errorf("strata: definition %s: key %q has no columns", b.name, k.Name))
			continue
		}
		for _, c := range k.Columns {
			if !d.HasField(c) {
				errs = append(errs, strata.NewInvalidColumnError(b.name, c))
			}
		}
		d.keys = append(d.keys, Key{Name: k.Name, Columns: slices.Clone(k.Columns), Unique: k.Unique})
	}
	if err := strata.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return d, nil
}

// MustBuild is like Build but panics on error.
func (b *DefinitionBuilder) MustBuild() *Definition {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
