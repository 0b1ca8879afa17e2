// Package dialect defines the driver abstraction strata data sources run on.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface extends ExecQuerier with Commit and Rollback.
//
// # Usage
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db := sql.NewDatabase(drv, sqlite.New())
//	defer db.Close()
//
// # Sub-packages
//
//   - dialect/sql: driver wrapper, Database collaborator and table data source
//   - dialect/sql/mysql, dialect/sql/postgres, dialect/sql/sqlite: type adapters
//   - dialect/sql/migrate: definition diffing and migration
package dialect
