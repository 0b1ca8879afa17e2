// Package selection builds queries against a DataSource.
//
// A Selection starts undecided: it only accumulates a filter, an ordering
// and a limit. Calling a read, update or delete method derives a typed
// selection from a copy of that state:
//
//	users := selection.New(src).Where("[age] >= ?", 18).OrderBy("name")
//	adults, err := users.All(ctx)
//	page, err := users.Select("id", "name").Offset(20).Limit(10).All(ctx)
//	_, err = users.Set("active", true).Update(ctx)
//
// Mutators of the derived selection, such as Offset and Limit above, do
// not affect users.
//
// Selections are not safe for concurrent use.
package selection
