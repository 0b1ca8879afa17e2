// Package sqlite adapts strata to SQLite through the pure Go
// modernc.org/sqlite driver.
//
// SQLite cannot alter, rename or drop a column in place. Those changes
// copy the table into a shadow table, recreate it with the new definition
// and copy the rows back, all inside one transaction.
//
//	db, err := sql.OpenDatabase(sqlite.New(), "file:app.db?_pragma=foreign_keys(1)")
package sqlite
