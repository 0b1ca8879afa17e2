// Package mysql adapts strata to MySQL.
//
// Identifiers are quoted with backticks and strings are escaped with
// backslashes. Dates and datetimes are stored as UTC strings in DATE and
// DATETIME columns. Importing the package registers the go-sql-driver
// database/sql driver:
//
//	db, err := sql.OpenDatabase(mysql.New(), "user:pass@tcp(localhost:3306)/app")
package mysql
