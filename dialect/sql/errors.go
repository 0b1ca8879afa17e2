package sql

import (
	"errors"
	"slices"
	"strings"

	"github.com/syssam/strata"
)

// Driver error interfaces. lib/pq and pgx expose SQLSTATE codes, other
// drivers are matched on their messages.
type (
	errorCoder interface {
		Code() string
	}
	errorNumberer interface {
		Number() uint16
	}
	sqlStateError interface {
		SQLState() string
	}
)

// PostgreSQL SQLSTATE codes of class 23.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckViolation   = 3819
)

type violation struct {
	kind     string
	states   []string
	numbers  []uint16
	messages []string
}

var violations = []violation{
	{
		kind:     "unique",
		states:   []string{pgUniqueViolation},
		numbers:  []uint16{mysqlDuplicateEntry},
		messages: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:     "foreign key",
		states:   []string{pgForeignKeyViolation},
		numbers:  []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		messages: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:     "check",
		states:   []string{pgCheckViolation},
		numbers:  []uint16{mysqlCheckViolation},
		messages: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

func (v violation) match(err error) bool {
	if e, ok := asError[sqlStateError](err); ok && slices.Contains(v.states, e.SQLState()) {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && slices.Contains(v.states, e.Code()) {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok && slices.Contains(v.numbers, e.Number()) {
		return true
	}
	msg := err.Error()
	for _, m := range v.messages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// constraintKind returns the kind of constraint err violates, or "".
func constraintKind(err error) string {
	if err == nil {
		return ""
	}
	for _, v := range violations {
		if v.match(err) {
			return v.kind
		}
	}
	return ""
}

// IsUniqueConstraintError reports whether err is a uniqueness violation.
func IsUniqueConstraintError(err error) bool { return constraintKind(err) == "unique" }

// IsForeignKeyConstraintError reports whether err is a foreign key violation.
func IsForeignKeyConstraintError(err error) bool { return constraintKind(err) == "foreign key" }

// IsCheckConstraintError reports whether err is a check constraint violation.
func IsCheckConstraintError(err error) bool { return constraintKind(err) == "check" }

// queryError wraps a driver error for query. Constraint violations become
// a strata.ConstraintError wrapping the strata.QueryError.
func queryError(query string, err error) error {
	qerr := strata.NewQueryError(query, err)
	if kind := constraintKind(err); kind != "" {
		return strata.NewConstraintError(kind+" constraint violated", qerr)
	}
	return qerr
}

func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
