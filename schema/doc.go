// Package schema describes the shape of stored records.
//
// A DataType is an immutable tagged union over ten kinds (integer, string,
// text, boolean, float, date, datetime, binary, object and enum) that knows
// how to validate and convert values:
//
//	t := schema.Integer(schema.Unsigned | schema.Small)
//	t.IsValid(100)   // true
//	t.IsValid(70000) // false
//
// Placeholder names used in expressions map to data types through
// FromPlaceholder; enum names are resolved through an explicit EnumRegistry.
//
// A Definition lists the ordered fields of a table with its primary and
// secondary keys:
//
//	def, err := schema.NewDefinition("users").
//	    AddAutoIncrementID().
//	    AddField("email", schema.String(255)).
//	    AddField("age", schema.Integer(schema.Unsigned|schema.Tiny, schema.Nullable())).
//	    AddTimestamps().
//	    AddUnique("email", "email").
//	    Build()
//
// Reusable field sets are applied with DefinitionBuilder.Mixin; see the
// mixin sub-package.
package schema
