// Package memory provides an array backed selection.DataSource.
//
// Selections run against a Source evaluate their expressions directly
// against the stored records instead of rendering SQL:
//
//	src := memory.New("users", memory.WithRecords(
//		expr.Record{"name": "bob", "age": 31},
//		expr.Record{"name": "ann", "age": 17},
//	))
//	adults, err := src.Select().Where("age >= ?", 18).OrderBy("name").All(ctx)
//
// Joins are not supported and fail with an UnsupportedOperationError.
package memory
