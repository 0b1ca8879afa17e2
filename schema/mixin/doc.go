// Package mixin provides reusable definition fragments.
//
// A mixin contributes fields and keys to a schema.DefinitionBuilder:
//
//	def, err := schema.NewDefinition("posts").
//	    Mixin(mixin.ID{}, mixin.Time{}, mixin.SoftDelete{}).
//	    AddField("title", schema.String(200)).
//	    Build()
//
// # Built-in Mixins
//
//	mixin.ID{}         // auto incremented unsigned id
//	mixin.UUID{}       // 36 character uuid id, values from mixin.NewID
//	mixin.Time{}       // created_at and updated_at
//	mixin.SoftDelete{} // nullable deleted_at
//	mixin.TenantID{}   // indexed tenant_id
//
// Custom mixins embed Schema and override what they need.
package mixin
