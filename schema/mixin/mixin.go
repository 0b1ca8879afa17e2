package mixin

import (
	"github.com/google/uuid"

	"github.com/syssam/strata/schema"
)

// Schema is the default implementation of schema.Mixin.
// It should be embedded in all custom mixin definitions.
//
//	type Audit struct{ mixin.Schema }
//
//	func (Audit) Fields() []schema.Field {
//	    return []schema.Field{{Name: "created_by", Type: schema.String(64)}}
//	}
type Schema struct{}

// Fields of the mixin.
func (Schema) Fields() []schema.Field { return nil }

// Keys of the mixin.
func (Schema) Keys() []schema.Key { return nil }

var _ schema.Mixin = (*Schema)(nil)

// ID adds an unsigned auto incremented id field.
//
//	id INT UNSIGNED NOT NULL AUTO_INCREMENT
//
// The primary key is set separately with SetPrimaryKey("id"), or use
// DefinitionBuilder.AddAutoIncrementID.
type ID struct{ Schema }

// Fields of the ID mixin.
func (ID) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: schema.Integer(schema.Unsigned | schema.AutoIncrement)},
	}
}

// UUID adds a 36 character id field. Values are generated by the caller
// with NewID.
type UUID struct{ Schema }

// Fields of the UUID mixin.
func (UUID) Fields() []schema.Field {
	return []schema.Field{{Name: "id", Type: schema.String(36)}}
}

// NewID returns a fresh value for a UUID id field.
func NewID() string { return uuid.NewString() }

// CreateTime adds created_at.
type CreateTime struct{ Schema }

// Fields of the create time mixin.
func (CreateTime) Fields() []schema.Field {
	return []schema.Field{{Name: "created_at", Type: schema.DateTime()}}
}

// UpdateTime adds a nullable updated_at.
type UpdateTime struct{ Schema }

// Fields of the update time mixin.
func (UpdateTime) Fields() []schema.Field {
	return []schema.Field{{Name: "updated_at", Type: schema.DateTime(schema.Nullable())}}
}

// Time composes CreateTime and UpdateTime.
type Time struct{ Schema }

// Fields of the time mixin.
func (Time) Fields() []schema.Field {
	return append(CreateTime{}.Fields(), UpdateTime{}.Fields()...)
}

// SoftDelete adds a nullable deleted_at. Live records match
// "deleted_at is null".
type SoftDelete struct{ Schema }

// Fields of the SoftDelete mixin.
func (SoftDelete) Fields() []schema.Field {
	return []schema.Field{{Name: "deleted_at", Type: schema.DateTime(schema.Nullable())}}
}

// TenantID adds tenant_id with a key over it. Column overrides the field
// name, which defaults to "tenant_id".
type TenantID struct {
	Schema
	Column string
}

func (m TenantID) column() string {
	if m.Column != "" {
		return m.Column
	}
	return "tenant_id"
}

// Fields of the TenantID mixin.
func (m TenantID) Fields() []schema.Field {
	return []schema.Field{{Name: m.column(), Type: schema.String(64)}}
}

// Keys of the TenantID mixin.
func (m TenantID) Keys() []schema.Key {
	return []schema.Key{{Name: m.column(), Columns: []string{m.column()}}}
}

var (
	_ schema.Mixin = (*ID)(nil)
	_ schema.Mixin = (*UUID)(nil)
	_ schema.Mixin = (*Time)(nil)
	_ schema.Mixin = (*SoftDelete)(nil)
	_ schema.Mixin = (*TenantID)(nil)
)
