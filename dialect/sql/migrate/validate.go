package migrate

import (
	"fmt"
	"strings"

	"github.com/syssam/strata/schema"
)

// ValidationError is a problem found in a definition or a planned change.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking marks changes that lose data or may fail on existing rows.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the errors and warnings of a validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors reports whether there are any errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings reports whether there are any warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges reports whether an error or a warning is breaking.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

func (r *ValidationResult) merge(o *ValidationResult) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// report records err as an error, or as a warning when allowed.
func (r *ValidationResult) report(err *ValidationError, allowed bool) {
	if allowed {
		r.Warnings = append(r.Warnings, err)
	} else {
		r.Errors = append(r.Errors, err)
	}
}

func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title + ":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// Option configures validation and the Migrator.
type Option func(*config)

// AllowDropColumn allows dropping columns.
func AllowDropColumn() Option {
	return func(c *config) {
		c.allowDropColumn = true
	}
}

// AllowDropKey allows dropping secondary keys.
func AllowDropKey() Option {
	return func(c *config) {
		c.allowDropKey = true
	}
}

// AllowNullToNotNull allows nullable columns to become NOT NULL.
func AllowNullToNotNull() Option {
	return func(c *config) {
		c.allowNullToNotNull = true
	}
}

// ValidateChanges checks planned changes against the current definition of
// their table, which is nil for tables that do not exist yet.
func ValidateChanges(current *schema.Definition, changes []Change, opts ...Option) *ValidationResult {
	cfg := newConfig(opts)
	result := &ValidationResult{}
	for _, c := range changes {
		switch c.Op {
		case OpAddColumn:
			_, hasDefault := c.Type.Default()
			auto, _ := c.Type.IsAutoIncrement()
			if !c.Type.IsNullable() && !hasDefault && !auto {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:   c.Table,
					Column:  c.Column,
					Message: "new NOT NULL column without default value may fail if table has data",
				})
			}
		case OpAlterColumn:
			validateAlter(c, cfg, result)
		case OpDropColumn:
			result.report(&ValidationError{
				Table:    c.Table,
				Column:   c.Column,
				Message:  "column will be dropped",
				Breaking: true,
			}, cfg.allowDropColumn)
		case OpDropKey:
			result.report(&ValidationError{
				Table:   c.Table,
				Message: fmt.Sprintf("key %q will be dropped", c.Key.Name),
			}, cfg.allowDropKey)
		case OpAddKey, OpAlterKey:
			if c.Key.Unique && current != nil {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:   c.Table,
					Message: fmt.Sprintf("adding unique key %q may fail if duplicate values exist", c.Key.Name),
				})
			}
		case OpSetPrimaryKey:
			result.Errors = append(result.Errors, &ValidationError{
				Table:    c.Table,
				Message:  fmt.Sprintf("primary key changing from (%s) to (%s) is not supported", strings.Join(current.PrimaryKey(), ", "), strings.Join(c.Columns, ", ")),
				Breaking: true,
			})
		}
	}
	return result
}

func validateAlter(c Change, cfg *config, result *ValidationResult) {
	if c.From.Kind() != c.Type.Kind() {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   c.Table,
			Column:  c.Column,
			Message: fmt.Sprintf("column type changing from %s to %s", c.From.WithNullable(false), c.Type.WithNullable(false)),
		})
	}
	if c.From.IsNullable() && !c.Type.IsNullable() {
		result.report(&ValidationError{
			Table:    c.Table,
			Column:   c.Column,
			Message:  "column changing from NULL to NOT NULL may fail if column has NULL values",
			Breaking: true,
		}, cfg.allowNullToNotNull)
	}
	from, err1 := c.From.Length()
	to, err2 := c.Type.Length()
	if err1 == nil && err2 == nil && to < from {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   c.Table,
			Column:  c.Column,
			Message: fmt.Sprintf("column length reducing from %d to %d may truncate data", from, to),
		})
	}
	fromSize, err1 := c.From.Size()
	toSize, err2 := c.Type.Size()
	if err1 == nil && err2 == nil && sizeRank(toSize) < sizeRank(fromSize) {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   c.Table,
			Column:  c.Column,
			Message: fmt.Sprintf("integer size reducing from %s to %s may overflow", fromSize, toSize),
		})
	}
}

func sizeRank(s schema.SizeClass) int {
	switch s {
	case schema.SizeTiny:
		return 0
	case schema.SizeSmall:
		return 1
	case schema.SizeDefault:
		return 2
	}
	return 3
}

// ValidateDefinition validates a single definition.
func ValidateDefinition(def *schema.Definition) *ValidationResult {
	result := &ValidationResult{}
	pk := def.PrimaryKey()
	if len(pk) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   def.Name(),
			Message: "table has no primary key",
		})
	}
	if col, ok := def.AutoIncrement(); ok && (len(pk) != 1 || pk[0] != col) {
		result.Errors = append(result.Errors, &ValidationError{
			Table:   def.Name(),
			Column:  col,
			Message: "auto increment column must be the only primary key column",
		})
	}
	return result
}

// ValidateSchema validates a set of definitions.
func ValidateSchema(defs []*schema.Definition) *ValidationResult {
	result := &ValidationResult{}
	tables := make(map[string]bool)
	for _, def := range defs {
		if tables[def.Name()] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   def.Name(),
				Message: "duplicate table name",
			})
		}
		tables[def.Name()] = true
		result.merge(ValidateDefinition(def))
	}
	return result
}
