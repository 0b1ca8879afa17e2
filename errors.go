package strata

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a selection that expects a record finds none.
	ErrNotFound = errors.New("strata: record not found")

	// ErrInvalidDataType is returned when a placeholder or column type cannot
	// be mapped to a data type.
	ErrInvalidDataType = errors.New("strata: invalid data type")

	// ErrUnsupported is returned when a data source cannot perform an operation.
	ErrUnsupported = errors.New("strata: unsupported operation")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	source string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("strata: no record found in %s", e.source)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Source returns the name of the data source that was searched.
func (e *NotFoundError) Source() string {
	return e.source
}

// NewNotFoundError returns a new NotFoundError for the given data source.
func NewNotFoundError(source string) *NotFoundError {
	return &NotFoundError{source: source}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// TypeError is returned when a value cannot be validated or converted
// against a data type, or when a placeholder receives a value of the wrong type.
type TypeError struct {
	Type   string // Data type description (e.g. "integer unsigned small")
	Value  any    // Offending value
	Reason string
}

// Error returns the error string.
func (e *TypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("strata: invalid %s value %#v: %s", e.Type, e.Value, e.Reason)
	}
	return fmt.Sprintf("strata: invalid %s value %#v", e.Type, e.Value)
}

// NewTypeError returns a new TypeError.
func NewTypeError(typ string, value any, reason string) *TypeError {
	return &TypeError{Type: typ, Value: value, Reason: reason}
}

// IsTypeError returns true if the error is a TypeError.
func IsTypeError(err error) bool {
	if err == nil {
		return false
	}
	var e *TypeError
	return errors.As(err, &e)
}

// InvalidDataTypeError is returned when a placeholder or type name does not
// name a known data type or registered enum.
type InvalidDataTypeError struct {
	Name string
}

// Error returns the error string.
func (e *InvalidDataTypeError) Error() string {
	return fmt.Sprintf("strata: invalid data type %q", e.Name)
}

// Is reports whether the target error matches ErrInvalidDataType.
func (e *InvalidDataTypeError) Is(err error) bool {
	return err == ErrInvalidDataType
}

// NewInvalidDataTypeError returns a new InvalidDataTypeError.
func NewInvalidDataTypeError(name string) *InvalidDataTypeError {
	return &InvalidDataTypeError{Name: name}
}

// ParseError is returned for malformed expression syntax, unexpected tokens
// and placeholder/variable count mismatches.
type ParseError struct {
	Input  string // Format string being parsed
	Token  string // Offending token, empty at end of input
	Pos    int    // Byte offset of the token
	Reason string
}

// Error returns the error string.
func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("strata: parse %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("strata: parse %q: %s at %d near %q", e.Input, e.Reason, e.Pos, e.Token)
}

// NewParseError returns a new ParseError.
func NewParseError(input, token string, pos int, reason string) *ParseError {
	return &ParseError{Input: input, Token: token, Pos: pos, Reason: reason}
}

// IsParseError returns true if the error is a ParseError.
func IsParseError(err error) bool {
	if err == nil {
		return false
	}
	var e *ParseError
	return errors.As(err, &e)
}

// InvalidColumnError is returned when a field is not part of a definition
// or a record.
type InvalidColumnError struct {
	Table  string
	Column string
}

// Error returns the error string.
func (e *InvalidColumnError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("strata: undefined column %q", e.Column)
	}
	return fmt.Sprintf("strata: undefined column %q in %s", e.Column, e.Table)
}

// NewInvalidColumnError returns a new InvalidColumnError.
func NewInvalidColumnError(table, column string) *InvalidColumnError {
	return &InvalidColumnError{Table: table, Column: column}
}

// IsInvalidColumn returns true if the error is an InvalidColumnError.
func IsInvalidColumn(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidColumnError
	return errors.As(err, &e)
}

// InvalidTableError is returned for references to undefined tables.
type InvalidTableError struct {
	Table string
}

// Error returns the error string.
func (e *InvalidTableError) Error() string {
	return fmt.Sprintf("strata: undefined table %q", e.Table)
}

// NewInvalidTableError returns a new InvalidTableError.
func NewInvalidTableError(table string) *InvalidTableError {
	return &InvalidTableError{Table: table}
}

// IsInvalidTable returns true if the error is an InvalidTableError.
func IsInvalidTable(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidTableError
	return errors.As(err, &e)
}

// UnsupportedOperationError is returned when a data source cannot perform
// the requested operation (e.g. joins on an array-backed source).
type UnsupportedOperationError struct {
	Op     string // Operation (e.g. "join", "update limit")
	Source string // Data source or dialect name
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("strata: %s is not supported by %s", e.Op, e.Source)
}

// Is reports whether the target error matches ErrUnsupported.
func (e *UnsupportedOperationError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedOperationError returns a new UnsupportedOperationError.
func NewUnsupportedOperationError(op, source string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Op: op, Source: source}
}

// IsUnsupported returns true if the error is an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedOperationError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}

// QueryError wraps an error returned by the database for a generated statement.
type QueryError struct {
	Query string // Statement that was rejected
	Err   error  // Underlying driver error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("strata: query failed: %v (query: %s)", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(query string, err error) *QueryError {
	return &QueryError{Query: query, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("strata: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// MigrationTypeError is returned when schema introspection meets a column
// or index type that cannot be mapped back to a data type.
type MigrationTypeError struct {
	Table  string
	Column string
	Type   string // Database type as reported by the server
}

// Error returns the error string.
func (e *MigrationTypeError) Error() string {
	return fmt.Sprintf("strata: unsupported type %q for %s.%s", e.Type, e.Table, e.Column)
}

// NewMigrationTypeError returns a new MigrationTypeError.
func NewMigrationTypeError(table, column, typ string) *MigrationTypeError {
	return &MigrationTypeError{Table: table, Column: column, Type: typ}
}

// IsMigrationTypeError returns true if the error is a MigrationTypeError.
func IsMigrationTypeError(err error) bool {
	if err == nil {
		return false
	}
	var e *MigrationTypeError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for a field value.
type ValidationError struct {
	Name string // Field name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("strata: validation failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback itself
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("strata: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "strata: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("strata: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
