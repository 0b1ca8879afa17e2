package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema"
)

// ErrRefused is returned by Migrate when the plan has validation errors.
var ErrRefused = errors.New("strata: migration refused")

type config struct {
	allowDropColumn    bool
	allowDropKey       bool
	allowNullToNotNull bool
	logger             *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger logs every applied change. The default logger is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Migrator plans and applies changes through a Database.
type Migrator struct {
	db   *sql.Database
	opts []Option
	cfg  *config
}

// New returns a Migrator for db.
func New(db *sql.Database, opts ...Option) *Migrator {
	cfg := newConfig(opts)
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Migrator{db: db, opts: opts, cfg: cfg}
}

// Plan is the validated list of changes of a migration.
type Plan struct {
	Changes []Change
	Result  *ValidationResult
}

func (p *Plan) String() string {
	var sb strings.Builder
	if len(p.Changes) == 0 {
		sb.WriteString("No changes\n")
	}
	for _, c := range p.Changes {
		sb.WriteString(c.String())
		sb.WriteString("\n")
	}
	if p.Result.HasErrors() || p.Result.HasWarnings() {
		sb.WriteString(p.Result.String())
	}
	return sb.String()
}

// Plan diffs every definition against the live table of the same name.
func (m *Migrator) Plan(ctx context.Context, defs ...*schema.Definition) (*Plan, error) {
	plan := &Plan{Result: ValidateSchema(defs)}
	for _, def := range defs {
		exists, err := m.db.TableExists(ctx, def.Name())
		if err != nil {
			return nil, err
		}
		var current *schema.Definition
		if exists {
			if current, err = m.db.Definition(ctx, def.Name()); err != nil {
				return nil, err
			}
		}
		changes := Diff(current, def, m.sameType(def.Name()))
		plan.Result.merge(ValidateChanges(current, changes, m.opts...))
		plan.Changes = append(plan.Changes, changes...)
	}
	return plan, nil
}

// sameType compares the column DDL the adapter renders for both types, so
// that types the dialect stores identically are not altered.
func (m *Migrator) sameType(table string) SameType {
	a := m.db.Adapter()
	table = m.db.TableName(table)
	return func(column string, current, desired *schema.DataType) bool {
		if current.Equal(desired) {
			return true
		}
		x, err1 := a.AddColumn(table, column, current)
		y, err2 := a.AddColumn(table, column, desired)
		return err1 == nil && err2 == nil && slices.Equal(x, y)
	}
}

// Migrate plans the changes of defs and applies them. Nothing runs when the
// plan has validation errors.
func (m *Migrator) Migrate(ctx context.Context, defs ...*schema.Definition) error {
	plan, err := m.Plan(ctx, defs...)
	if err != nil {
		return err
	}
	if plan.Result.HasErrors() {
		return fmt.Errorf("%w:\n%s", ErrRefused, strings.TrimSpace(plan.Result.String()))
	}
	for _, c := range plan.Changes {
		if err := m.apply(ctx, c); err != nil {
			return err
		}
		m.cfg.logger.InfoContext(ctx, "migrate: applied", "table", c.Table, "change", c.String())
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, c Change) error {
	switch c.Op {
	case OpCreateTable:
		return m.db.CreateTable(ctx, c.Table, c.Definition)
	case OpDropKey:
		return m.db.DeleteKey(ctx, c.Table, c.Key.Name)
	case OpAddColumn:
		return m.db.AddColumn(ctx, c.Table, c.Column, c.Type)
	case OpAlterColumn:
		return m.db.AlterColumn(ctx, c.Table, c.Column, c.Type)
	case OpDropColumn:
		return m.db.DeleteColumn(ctx, c.Table, c.Column)
	case OpAddKey:
		return m.db.CreateKey(ctx, c.Table, c.Key)
	case OpAlterKey:
		return m.db.AlterKey(ctx, c.Table, c.Key)
	}
	return strata.NewUnsupportedOperationError(c.Op.String(), m.db.Dialect())
}
