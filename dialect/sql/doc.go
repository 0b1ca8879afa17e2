// Package sql runs strata selections on SQL databases.
//
// It wraps database/sql in a dialect.Driver and layers the Database
// collaborator on top: statement execution, table name mapping, cached
// schema introspection, transactions and schema changes. Dialect specific
// behavior lives behind the Adapter interface, implemented by the mysql,
// postgres and sqlite sub-packages.
//
// # Tables
//
// A Table is a selection.DataSource. Read, count, update and delete
// selections are rendered clause by clause:
//
//	db := sql.NewDatabase(drv, mysql.New())
//	users := db.Table("users")
//	recs, err := users.Select().
//	    Where("age > ?", 18).
//	    OrderByDescending("age").
//	    Limit(10).
//	    All(ctx)
//	// SELECT `users`.* FROM `users` WHERE `age` > 18 ORDER BY `age` DESC LIMIT 10
//
// Counting a grouped or distinct selection wraps it in a subselect:
//
//	SELECT COUNT(*) FROM (SELECT 1 FROM `users` GROUP BY `team`) AS _x
//
// # Schema Changes
//
// Schema operations take logical table names. Operations an adapter
// renders as several statements, such as the table rebuilds SQLite needs
// to alter a column, run in a single transaction:
//
//	err := db.DeleteColumn(ctx, "users", "nickname")
//
// # Observability
//
// StatsDriver counts statements by kind along with the transactions that
// changed the schema, and logs slow statements. DebugDriver logs every
// statement:
//
//	drv = sql.NewDebugDriver(sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger)), logger)
package sql
