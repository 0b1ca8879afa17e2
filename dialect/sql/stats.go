package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/strata/dialect"
)

// StatementKind classifies a statement by its leading keyword.
type StatementKind int

// Statement kinds.
const (
	StatementOther StatementKind = iota
	StatementRead
	StatementInsert
	StatementUpdate
	StatementDelete
	StatementSchema
	numStatementKinds
)

var statementKindNames = [numStatementKinds]string{"other", "read", "insert", "update", "delete", "schema"}

func (k StatementKind) String() string {
	if k < 0 || k >= numStatementKinds {
		return "other"
	}
	return statementKindNames[k]
}

// Classify returns the kind of query. Introspection statements such as
// PRAGMA and SHOW count as reads.
func Classify(query string) StatementKind {
	query = strings.TrimLeft(query, " \t\r\n(")
	end := strings.IndexAny(query, " \t\r\n(")
	if end < 0 {
		end = len(query)
	}
	switch strings.ToUpper(query[:end]) {
	case "SELECT", "WITH", "PRAGMA", "SHOW", "EXPLAIN":
		return StatementRead
	case "INSERT", "REPLACE":
		return StatementInsert
	case "UPDATE":
		return StatementUpdate
	case "DELETE":
		return StatementDelete
	case "CREATE", "ALTER", "DROP", "RENAME", "TRUNCATE":
		return StatementSchema
	}
	return StatementOther
}

// Stats holds statement counters. The zero value is ready to use.
type Stats struct {
	statements [numStatementKinds]atomic.Int64
	errors     atomic.Int64
	slow       atomic.Int64
	duration   atomic.Int64 // nanoseconds
	commits    atomic.Int64
	rollbacks  atomic.Int64
	schemaTxs  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Statements map[StatementKind]int64
	Errors     int64
	Slow       int64
	Duration   time.Duration
	Commits    int64
	Rollbacks  int64
	// SchemaTransactions counts committed transactions that changed the
	// schema, such as the table rebuilds of SQLite column changes.
	SchemaTransactions int64
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Statements:         make(map[StatementKind]int64, numStatementKinds),
		Errors:             s.errors.Load(),
		Slow:               s.slow.Load(),
		Duration:           time.Duration(s.duration.Load()),
		Commits:            s.commits.Load(),
		Rollbacks:          s.rollbacks.Load(),
		SchemaTransactions: s.schemaTxs.Load(),
	}
	for k := range s.statements {
		if n := s.statements[k].Load(); n > 0 {
			snap.Statements[StatementKind(k)] = n
		}
	}
	return snap
}

// Total returns the number of statements of every kind.
func (s StatsSnapshot) Total() int64 {
	var n int64
	for _, c := range s.Statements {
		n += c
	}
	return n
}

func (s StatsSnapshot) String() string {
	var b strings.Builder
	for k := StatementKind(0); k < numStatementKinds; k++ {
		fmt.Fprintf(&b, "%s=%d ", k, s.Statements[k])
	}
	fmt.Fprintf(&b, "errors=%d slow=%d commits=%d rollbacks=%d schema_tx=%d duration=%s",
		s.Errors, s.Slow, s.Commits, s.Rollbacks, s.SchemaTransactions, s.Duration)
	return b.String()
}

// StatsDriver counts the statements run through a driver by kind, and
// logs the ones slower than a threshold.
type StatsDriver struct {
	dialect.Driver
	stats     *Stats
	threshold time.Duration
	logger    *slog.Logger
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the slow statement threshold. Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.threshold = d }
}

// WithSlowQueryLog logs slow statements as warnings through logger.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	return func(s *StatsDriver) { s.logger = logger }
}

// NewStatsDriver wraps drv with statement counting.
//
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	db := sql.NewDatabase(stats, sqlite.New())
//	...
//	fmt.Println(stats.Stats().Snapshot())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		stats:     &Stats{},
		threshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the live counters.
func (d *StatsDriver) Stats() *Stats { return d.stats }

// Query runs a query and counts it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, start, err)
	return err
}

// Exec runs a statement and counts it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, start, err)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, start time.Time, err error) StatementKind {
	took := time.Since(start)
	kind := Classify(query)
	d.stats.statements[kind].Add(1)
	d.stats.duration.Add(int64(took))
	if err != nil {
		d.stats.errors.Add(1)
	}
	if took > d.threshold {
		d.stats.slow.Add(1)
		if d.logger != nil {
			d.logger.WarnContext(ctx, "slow statement", "kind", kind.String(), "duration", took, "sql", query)
		}
	}
	return kind
}

// Tx starts a transaction whose statements are counted too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, driver: d}, nil
}

type statsTx struct {
	dialect.Tx
	driver *StatsDriver
	schema bool
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, start, err)
	return err
}

func (tx *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	if tx.driver.record(ctx, query, start, err) == StatementSchema && err == nil {
		tx.schema = true
	}
	return err
}

func (tx *statsTx) Commit() error {
	if err := tx.Tx.Commit(); err != nil {
		tx.driver.stats.errors.Add(1)
		return err
	}
	tx.driver.stats.commits.Add(1)
	if tx.schema {
		tx.driver.stats.schemaTxs.Add(1)
	}
	return nil
}

func (tx *statsTx) Rollback() error {
	tx.driver.stats.rollbacks.Add(1)
	return tx.Tx.Rollback()
}

// DebugDriver logs every statement and transaction boundary.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
}

// NewDebugDriver wraps drv with statement logging at info level. A nil
// logger uses slog.Default().
func NewDebugDriver(drv dialect.Driver, logger *slog.Logger) *DebugDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugDriver{Driver: drv, logger: logger}
}

// Query logs and runs a query.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, d.logger, query, args, false)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec logs and runs a statement.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, d.logger, query, args, false)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx logs and starts a transaction.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.logger.InfoContext(ctx, "transaction", "event", "begin")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &debugTx{Tx: tx, ctx: ctx, logger: d.logger}, nil
}

func logStatement(ctx context.Context, logger *slog.Logger, query string, args any, inTx bool) {
	logger.InfoContext(ctx, "statement",
		"kind", Classify(query).String(),
		"sql", query,
		"args", args,
		"tx", inTx,
	)
}

type debugTx struct {
	dialect.Tx
	ctx    context.Context
	logger *slog.Logger
}

func (tx *debugTx) Query(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, tx.logger, query, args, true)
	return tx.Tx.Query(ctx, query, args, v)
}

func (tx *debugTx) Exec(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, tx.logger, query, args, true)
	return tx.Tx.Exec(ctx, query, args, v)
}

func (tx *debugTx) Commit() error {
	tx.logger.InfoContext(tx.ctx, "transaction", "event", "commit")
	return tx.Tx.Commit()
}

func (tx *debugTx) Rollback() error {
	tx.logger.InfoContext(tx.ctx, "transaction", "event", "rollback")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*statsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*debugTx)(nil)
)
