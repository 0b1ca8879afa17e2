package sql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/go-openapi/inflect"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/schema"
)

// Database runs statements rendered by an Adapter on a driver. It maps
// logical table names to physical ones, caches introspected definitions
// and exposes tables as data sources. A Database returned by Begin is
// bound to a transaction; it shares the definition cache with its parent.
type Database struct {
	drv     dialect.Driver
	conn    dialect.ExecQuerier
	tx      dialect.Tx
	adapter Adapter
	prefix  string
	plural  bool
	defs    *definitions
}

// Option configures a Database.
type Option func(*Database)

// WithTablePrefix prefixes every physical table name.
func WithTablePrefix(prefix string) Option {
	return func(db *Database) { db.prefix = prefix }
}

// WithPluralTables maps logical names to pluralized snake case table
// names, e.g. "UserGroup" to "user_groups".
func WithPluralTables() Option {
	return func(db *Database) { db.plural = true }
}

// NewDatabase returns a Database running the statements of a on drv.
func NewDatabase(drv dialect.Driver, a Adapter, opts ...Option) *Database {
	db := &Database{drv: drv, conn: drv, adapter: a, defs: newDefinitions()}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// OpenDatabase opens a connection pool with the database/sql driver named
// after the adapter's dialect.
func OpenDatabase(a Adapter, source string, opts ...Option) (*Database, error) {
	drv, err := Open(a.Dialect(), source)
	if err != nil {
		return nil, err
	}
	return NewDatabase(drv, a, opts...), nil
}

// Adapter returns the dialect adapter.
func (db *Database) Adapter() Adapter { return db.adapter }

// Driver returns the underlying driver.
func (db *Database) Driver() dialect.Driver { return db.drv }

// Dialect returns the dialect name.
func (db *Database) Dialect() string { return db.adapter.Dialect() }

// Close closes the driver.
func (db *Database) Close() error { return db.drv.Close() }

// Query runs a statement returning rows. The result set must be closed.
func (db *Database) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	if args == nil {
		args = []any{}
	}
	rows := &Rows{}
	if err := db.conn.Query(ctx, query, args, rows); err != nil {
		return nil, queryError(query, err)
	}
	return newResultSet(rows), nil
}

// Execute runs a statement and returns the number of affected rows.
func (db *Database) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if args == nil {
		args = []any{}
	}
	var res Result
	if err := db.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, queryError(query, err)
	}
	if res == nil {
		return 0, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(query, err)
	}
	return n, nil
}

// Insert runs an insert statement and returns the value generated for
// column. With an empty column the statement is only executed.
func (db *Database) Insert(ctx context.Context, query, column string) (int64, error) {
	if column == "" {
		_, err := db.Execute(ctx, query)
		return 0, err
	}
	if db.adapter.Returning() {
		query += " RETURNING " + db.adapter.QuoteField(column)
		rs, err := db.Query(ctx, query)
		if err != nil {
			return 0, err
		}
		defer rs.Close()
		row, err := rs.FetchRow()
		if err != nil {
			return 0, queryError(query, err)
		}
		if len(row) == 0 {
			return 0, nil
		}
		return toInt64(row[0])
	}
	var res Result
	if err := db.conn.Exec(ctx, query, []any{}, &res); err != nil {
		return 0, queryError(query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, queryError(query, err)
	}
	return id, nil
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	if n, ok := schema.Integer(schema.Big).Convert(v, true).(int64); ok {
		return n, nil
	}
	return 0, strata.NewTypeError("integer", v, "generated id")
}

// QuoteLiteral renders v as a literal of type t.
func (db *Database) QuoteLiteral(t *schema.DataType, v any) (string, error) {
	return db.adapter.QuoteLiteral(t, v)
}

// QuoteModel quotes a table name or alias.
func (db *Database) QuoteModel(name string) string { return db.adapter.QuoteModel(name) }

// QuoteField quotes a column name.
func (db *Database) QuoteField(name string) string { return db.adapter.QuoteField(name) }

// QuoteString quotes s as a string literal.
func (db *Database) QuoteString(s string) string { return db.adapter.QuoteString(s) }

// LimitOffset renders the LIMIT and OFFSET clause.
func (db *Database) LimitOffset(limit, offset int) string {
	return db.adapter.LimitOffset(limit, offset)
}

// TableName returns the physical table name of a logical one.
func (db *Database) TableName(name string) string {
	if db.plural {
		name = inflect.Pluralize(inflect.Underscore(name))
	}
	return db.prefix + name
}

// Begin starts a transaction and returns a Database bound to it.
func (db *Database) Begin(ctx context.Context) (*Database, error) {
	if db.tx != nil {
		return nil, errors.New("strata: transaction already started")
	}
	tx, err := db.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("strata: begin transaction: %w", err)
	}
	c := *db
	c.conn, c.tx = tx, tx
	return &c, nil
}

// InTransaction reports whether db is bound to a transaction.
func (db *Database) InTransaction() bool { return db.tx != nil }

// Commit commits the transaction db is bound to.
func (db *Database) Commit() error {
	if db.tx == nil {
		return errors.New("strata: commit outside a transaction")
	}
	return db.tx.Commit()
}

// Rollback rolls back the transaction db is bound to.
func (db *Database) Rollback() error {
	if db.tx == nil {
		return errors.New("strata: rollback outside a transaction")
	}
	return db.tx.Rollback()
}

// Transaction runs fn in a transaction. The transaction is committed when
// fn returns nil and rolled back otherwise, or when fn panics. On a
// Database already bound to a transaction fn runs in it directly.
func (db *Database) Transaction(ctx context.Context, fn func(*Database) error) (err error) {
	if db.tx != nil {
		return fn(db)
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, &strata.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("strata: commit transaction: %w", err)
	}
	return nil
}

// Table returns the data source of a logical table. Its definition is
// introspected on first use.
func (db *Database) Table(name string) *Table {
	return &Table{db: db, name: name}
}

// Define registers the definition of a logical table without
// introspecting the database and returns its data source.
func (db *Database) Define(name string, def *schema.Definition) *Table {
	db.defs.put(db.TableName(name), def)
	return db.Table(name)
}

// Definition returns the definition of a logical table, introspecting it
// once per schema change.
func (db *Database) Definition(ctx context.Context, name string) (*schema.Definition, error) {
	table := db.TableName(name)
	return db.defs.load(ctx, table, func(ctx context.Context) (*schema.Definition, error) {
		return db.adapter.Definition(ctx, db, table)
	})
}

// Tables lists the physical tables of the database.
func (db *Database) Tables(ctx context.Context) ([]string, error) {
	return db.adapter.Tables(ctx, db)
}

// TableExists reports whether a logical table exists.
func (db *Database) TableExists(ctx context.Context, name string) (bool, error) {
	tables, err := db.Tables(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(tables, db.TableName(name)), nil
}

// apply runs the statements of a schema change, in a transaction when
// there are several, and drops the cached definitions of tables.
func (db *Database) apply(ctx context.Context, tables []string, stmts []string) error {
	defer db.defs.invalidate(tables...)
	switch len(stmts) {
	case 0:
		return nil
	case 1:
		_, err := db.Execute(ctx, stmts[0])
		return err
	}
	return db.Transaction(ctx, func(tx *Database) error {
		for _, stmt := range stmts {
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateTable creates a logical table.
func (db *Database) CreateTable(ctx context.Context, name string, def *schema.Definition) error {
	table := db.TableName(name)
	stmts, err := db.adapter.CreateTable(table, def)
	if err != nil {
		return err
	}
	return db.apply(ctx, []string{table}, stmts)
}

// DropTable drops a logical table.
func (db *Database) DropTable(ctx context.Context, name string) error {
	table := db.TableName(name)
	return db.apply(ctx, []string{table}, db.adapter.DropTable(table))
}

// RenameTable renames a logical table.
func (db *Database) RenameTable(ctx context.Context, from, to string) error {
	src, dst := db.TableName(from), db.TableName(to)
	return db.apply(ctx, []string{src, dst}, db.adapter.RenameTable(src, dst))
}

// AddColumn adds a column to a logical table.
func (db *Database) AddColumn(ctx context.Context, name, field string, t *schema.DataType) error {
	table := db.TableName(name)
	stmts, err := db.adapter.AddColumn(table, field, t)
	if err != nil {
		return err
	}
	return db.apply(ctx, []string{table}, stmts)
}

// alter runs a column change that needs the current definition.
func (db *Database) alter(ctx context.Context, name string, fn func(table string, current *schema.Definition) ([]string, error)) error {
	current, err := db.Definition(ctx, name)
	if err != nil {
		return err
	}
	table := db.TableName(name)
	stmts, err := fn(table, current)
	if err != nil {
		return err
	}
	return db.apply(ctx, []string{table}, stmts)
}

// AlterColumn changes the type of an existing column.
func (db *Database) AlterColumn(ctx context.Context, name, field string, t *schema.DataType) error {
	return db.alter(ctx, name, func(table string, current *schema.Definition) ([]string, error) {
		if !current.HasField(field) {
			return nil, strata.NewInvalidColumnError(table, field)
		}
		return db.adapter.AlterColumn(table, current, field, t)
	})
}

// RenameColumn renames an existing column.
func (db *Database) RenameColumn(ctx context.Context, name, from, to string) error {
	return db.alter(ctx, name, func(table string, current *schema.Definition) ([]string, error) {
		if !current.HasField(from) {
			return nil, strata.NewInvalidColumnError(table, from)
		}
		return db.adapter.RenameColumn(table, current, from, to)
	})
}

// DeleteColumn drops an existing column.
func (db *Database) DeleteColumn(ctx context.Context, name, field string) error {
	return db.alter(ctx, name, func(table string, current *schema.Definition) ([]string, error) {
		if !current.HasField(field) {
			return nil, strata.NewInvalidColumnError(table, field)
		}
		return db.adapter.DeleteColumn(table, current, field)
	})
}

// CreateKey adds a secondary key to a logical table.
func (db *Database) CreateKey(ctx context.Context, name string, key schema.Key) error {
	table := db.TableName(name)
	stmts, err := db.adapter.CreateKey(table, key)
	if err != nil {
		return err
	}
	return db.apply(ctx, []string{table}, stmts)
}

// AlterKey replaces the secondary key named key.Name.
func (db *Database) AlterKey(ctx context.Context, name string, key schema.Key) error {
	table := db.TableName(name)
	create, err := db.adapter.CreateKey(table, key)
	if err != nil {
		return err
	}
	stmts := append(db.adapter.DeleteKey(table, key.Name), create...)
	return db.apply(ctx, []string{table}, stmts)
}

// DeleteKey drops a secondary key.
func (db *Database) DeleteKey(ctx context.Context, name, key string) error {
	table := db.TableName(name)
	return db.apply(ctx, []string{table}, db.adapter.DeleteKey(table, key))
}
