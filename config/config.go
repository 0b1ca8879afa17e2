// Package config loads the connection settings of a strata database from
// YAML and opens it.
//
//	dialect: mysql
//	dsn: app:${DB_PASSWORD}@tcp(localhost:3306)/app?parseTime=true
//	table_prefix: app_
//	plural_tables: true
//	slow_query_threshold: 200ms
//	debug: false
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	mysqladapter "github.com/syssam/strata/dialect/sql/mysql"
	"github.com/syssam/strata/dialect/sql/postgres"
	"github.com/syssam/strata/dialect/sql/sqlite"
)

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config holds the settings of one database.
type Config struct {
	Dialect            string   `yaml:"dialect"`
	DSN                string   `yaml:"dsn"`
	TablePrefix        string   `yaml:"table_prefix,omitempty"`
	PluralTables       bool     `yaml:"plural_tables,omitempty"`
	SlowQueryThreshold Duration `yaml:"slow_query_threshold,omitempty"`
	Debug              bool     `yaml:"debug,omitempty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration. Environment variables
// in the DSN are expanded.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.DSN = os.ExpandEnv(c.DSN)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the dialect and the DSN.
func (c *Config) Validate() error {
	if !dialect.Valid(c.Dialect) {
		return fmt.Errorf("config: unsupported dialect %q", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("config: dsn is required")
	}
	if c.SlowQueryThreshold < 0 {
		return fmt.Errorf("config: negative slow_query_threshold %s", time.Duration(c.SlowQueryThreshold))
	}
	switch c.Dialect {
	case dialect.MySQL:
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return fmt.Errorf("config: mysql dsn: %w", err)
		}
	case dialect.Postgres:
		if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
			if _, err := pq.ParseURL(c.DSN); err != nil {
				return fmt.Errorf("config: postgres dsn: %w", err)
			}
		}
	}
	return nil
}

// Adapter returns the adapter of the configured dialect.
func (c *Config) Adapter() (sql.Adapter, error) {
	switch c.Dialect {
	case dialect.MySQL:
		return mysqladapter.New(), nil
	case dialect.Postgres:
		return postgres.New(), nil
	case dialect.SQLite:
		return sqlite.New(), nil
	}
	return nil, fmt.Errorf("config: unsupported dialect %q", c.Dialect)
}

// Options returns the Database options of the configuration.
func (c *Config) Options() []sql.Option {
	var opts []sql.Option
	if c.TablePrefix != "" {
		opts = append(opts, sql.WithTablePrefix(c.TablePrefix))
	}
	if c.PluralTables {
		opts = append(opts, sql.WithPluralTables())
	}
	return opts
}

// Open opens the database. Statements are logged through logger when Debug
// is set, and statements slower than SlowQueryThreshold are logged as
// warnings. A nil logger uses slog.Default().
func (c *Config) Open(logger *slog.Logger) (*sql.Database, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	a, err := c.Adapter()
	if err != nil {
		return nil, err
	}
	drv, err := sql.Open(c.Dialect, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", c.Dialect, err)
	}
	return sql.NewDatabase(c.wrap(drv, logger), a, c.Options()...), nil
}

func (c *Config) wrap(drv dialect.Driver, logger *slog.Logger) dialect.Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Debug {
		drv = sql.NewDebugDriver(drv, logger)
	}
	if c.SlowQueryThreshold > 0 {
		drv = sql.NewStatsDriver(drv,
			sql.WithSlowThreshold(time.Duration(c.SlowQueryThreshold)),
			sql.WithSlowQueryLog(logger),
		)
	}
	return drv
}
