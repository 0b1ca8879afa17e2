package migrate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/strata/schema"
)

// Op is the kind of a Change.
type Op uint8

// Change operations, in the order a plan applies them within a table.
const (
	OpCreateTable Op = iota + 1
	OpDropKey
	OpAddColumn
	OpAlterColumn
	OpDropColumn
	OpAddKey
	OpAlterKey
	OpSetPrimaryKey
)

var opNames = map[Op]string{
	OpCreateTable:   "create table",
	OpDropKey:       "drop key",
	OpAddColumn:     "add column",
	OpAlterColumn:   "alter column",
	OpDropColumn:    "drop column",
	OpAddKey:        "add key",
	OpAlterKey:      "alter key",
	OpSetPrimaryKey: "set primary key",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Change is a single step of a migration.
type Change struct {
	Op    Op
	Table string
	// Column and Type are set for column changes. From is the current type
	// of an altered column.
	Column string
	Type   *schema.DataType
	From   *schema.DataType
	// Key is set for key changes.
	Key schema.Key
	// Columns is the new primary key.
	Columns []string
	// Definition is the table to create.
	Definition *schema.Definition
}

func (c Change) String() string {
	switch c.Op {
	case OpCreateTable:
		return fmt.Sprintf("create table %s (%s)", c.Table, strings.Join(c.Definition.Fields(), ", "))
	case OpAddColumn:
		return fmt.Sprintf("add column %s.%s %s", c.Table, c.Column, c.Type)
	case OpAlterColumn:
		return fmt.Sprintf("alter column %s.%s %s -> %s", c.Table, c.Column, c.From, c.Type)
	case OpDropColumn:
		return fmt.Sprintf("drop column %s.%s", c.Table, c.Column)
	case OpAddKey, OpAlterKey:
		kind := "key"
		if c.Key.Unique {
			kind = "unique key"
		}
		return fmt.Sprintf("%s %s %s on %s (%s)", strings.Fields(c.Op.String())[0], kind, c.Key.Name, c.Table, strings.Join(c.Key.Columns, ", "))
	case OpDropKey:
		return fmt.Sprintf("drop key %s on %s", c.Key.Name, c.Table)
	case OpSetPrimaryKey:
		return fmt.Sprintf("set primary key of %s to (%s)", c.Table, strings.Join(c.Columns, ", "))
	}
	return c.Op.String()
}

// SameType reports whether a column stored as current already satisfies
// desired.
type SameType func(column string, current, desired *schema.DataType) bool

// Diff lists the changes that turn the table current into desired. A nil
// current means the table does not exist. A nil same compares types with
// DataType.Equal.
func Diff(current, desired *schema.Definition, same SameType) []Change {
	table := desired.Name()
	if current == nil {
		return []Change{{Op: OpCreateTable, Table: table, Definition: desired}}
	}
	if same == nil {
		same = func(_ string, a, b *schema.DataType) bool { return a.Equal(b) }
	}
	var changes []Change
	for _, k := range current.Keys() {
		if _, ok := desired.Key(k.Name); !ok {
			changes = append(changes, Change{Op: OpDropKey, Table: table, Key: k})
		}
	}
	for _, f := range desired.Columns() {
		cur, ok := current.Type(f.Name)
		switch {
		case !ok:
			changes = append(changes, Change{Op: OpAddColumn, Table: table, Column: f.Name, Type: f.Type})
		case !same(f.Name, cur, f.Type):
			changes = append(changes, Change{Op: OpAlterColumn, Table: table, Column: f.Name, Type: f.Type, From: cur})
		}
	}
	for _, f := range current.Columns() {
		if !desired.HasField(f.Name) {
			changes = append(changes, Change{Op: OpDropColumn, Table: table, Column: f.Name, From: f.Type})
		}
	}
	for _, k := range desired.Keys() {
		cur, ok := current.Key(k.Name)
		switch {
		case !ok:
			changes = append(changes, Change{Op: OpAddKey, Table: table, Key: k})
		case !cur.Equal(k):
			changes = append(changes, Change{Op: OpAlterKey, Table: table, Key: k})
		}
	}
	if !slices.Equal(current.PrimaryKey(), desired.PrimaryKey()) {
		changes = append(changes, Change{Op: OpSetPrimaryKey, Table: table, Columns: desired.PrimaryKey()})
	}
	return changes
}
