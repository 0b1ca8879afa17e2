package expr

import (
	"fmt"
	"strings"

	"github.com/syssam/strata/schema"
)

// Record is a single row keyed by field name. Fields of joined or aliased
// sources are keyed "alias.field".
type Record map[string]any

// Quoter renders identifiers and literals for one SQL dialect.
type Quoter interface {
	// QuoteLiteral renders v, already converted to the native
	// representation of t, as an SQL literal. A nil v renders NULL.
	QuoteLiteral(t *schema.DataType, v any) (string, error)
	// QuoteModel quotes a table or alias name.
	QuoteModel(name string) string
	// QuoteField quotes a column name.
	QuoteField(name string) string
	// QuoteString quotes a raw string as a string literal.
	QuoteString(s string) string
}

// Expression is a condition or value that can be evaluated against a
// record in memory or rendered to SQL. Both modes agree: a predicate that
// evaluates to true for a record renders to SQL selecting the same row.
type Expression interface {
	Evaluate(r Record) (any, error)
	Render(q Quoter) (string, error)
}

// Operator precedence, loosest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precAtom
)

// Operators.
const (
	OpEQ        = "="
	OpNEQ       = "!="
	OpNE        = "<>"
	OpGTE       = ">="
	OpLTE       = "<="
	OpNotLT     = "!<"
	OpNotGT     = "!>"
	OpLT        = "<"
	OpGT        = ">"
	OpLike      = "like"
	OpIn        = "in"
	OpAnd       = "and"
	OpOr        = "or"
	OpIsNull    = "is"
	OpIsNotNull = "is not"
	OpNot       = "not"
)

func precedence(e Expression) int {
	switch e := e.(type) {
	case *Infix:
		switch e.Operator {
		case OpOr:
			return precOr
		case OpAnd:
			return precAnd
		}
		return precCompare
	case *Prefix:
		return precNot
	case *Builder:
		if e.err != nil {
			return 0
		}
		return precedence(e.ast)
	case *Literal, *ArrayLiteral, *FieldAccess:
		return precAtom
	}
	return 0
}

// IsAtomic reports whether e renders as a single operand that never needs
// parentheses.
func IsAtomic(e Expression) bool {
	return precedence(e) == precAtom
}

func renderOperand(e Expression, q Quoter, wrap bool) (string, error) {
	s, err := e.Render(q)
	if err != nil {
		return "", err
	}
	if wrap {
		return "(" + s + ")", nil
	}
	return s, nil
}

// Literal is a constant of a known data type.
type Literal struct {
	Type  *schema.DataType
	Value any
}

// NewLiteral returns a literal typed by schema.DetectType.
func NewLiteral(v any) (*Literal, error) {
	t, err := schema.DetectType(v)
	if err != nil {
		return nil, err
	}
	return &Literal{Type: t, Value: t.Convert(v, false)}, nil
}

// Evaluate returns the constant.
func (l *Literal) Evaluate(Record) (any, error) { return l.Value, nil }

// Render quotes the constant.
func (l *Literal) Render(q Quoter) (string, error) { return q.QuoteLiteral(l.Type, l.Value) }

// ArrayLiteral is a tuple of constants of one type, the right operand of in.
type ArrayLiteral struct {
	Type   *schema.DataType
	Values []any
}

// Evaluate returns the values as a slice.
func (a *ArrayLiteral) Evaluate(Record) (any, error) { return a.Values, nil }

// Render renders a parenthesized, comma separated list.
func (a *ArrayLiteral) Render(q Quoter) (string, error) {
	if len(a.Values) == 0 {
		return "(NULL)", nil
	}
	parts := make([]string, len(a.Values))
	for i, v := range a.Values {
		s, err := q.QuoteLiteral(a.Type, v)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// FieldAccess references a column, optionally qualified by a model. When
// QuoteField or QuoteModel is false the name is rendered verbatim.
type FieldAccess struct {
	Field      string
	QuoteField bool
	Model      string
	QuoteModel bool
}

// Column returns a quoted reference to field, qualified when name has the
// form "model.field".
func Column(name string) *FieldAccess {
	if model, field, ok := strings.Cut(name, "."); ok {
		return &FieldAccess{Field: field, QuoteField: true, Model: model, QuoteModel: true}
	}
	return &FieldAccess{Field: name, QuoteField: true}
}

// Name returns the field name, qualified as "model.field" when a model is set.
func (f *FieldAccess) Name() string {
	if f.Model != "" {
		return f.Model + "." + f.Field
	}
	return f.Field
}

// Evaluate looks the field up in the record. Qualified names are looked up
// as "model.field" first, then as the bare field.
func (f *FieldAccess) Evaluate(r Record) (any, error) {
	if f.Model != "" {
		if v, ok := r[f.Model+"."+f.Field]; ok {
			return v, nil
		}
	}
	v, ok := r[f.Field]
	if !ok {
		return nil, newInvalidColumn(f.Model, f.Field)
	}
	return v, nil
}

// Render renders the optionally qualified column reference.
func (f *FieldAccess) Render(q Quoter) (string, error) {
	field := f.Field
	if f.QuoteField && field != "*" {
		field = q.QuoteField(field)
	}
	if f.Model == "" {
		return field, nil
	}
	model := f.Model
	if f.QuoteModel {
		model = q.QuoteModel(model)
	}
	return model + "." + field, nil
}

// Infix is a binary comparison or logical operation. The null tests
// OpIsNull and OpIsNotNull have no right operand.
type Infix struct {
	Left     Expression
	Operator string
	Right    Expression
}

// Render renders the operation, parenthesizing operands that bind looser
// than the operator (or equally on the right hand side).
func (i *Infix) Render(q Quoter) (string, error) {
	p := precedence(i)
	left, err := renderOperand(i.Left, q, precedence(i.Left) < p)
	if err != nil {
		return "", err
	}
	switch i.Operator {
	case OpIsNull:
		return left + " IS NULL", nil
	case OpIsNotNull:
		return left + " IS NOT NULL", nil
	}
	if i.Right == nil {
		return "", fmt.Errorf("strata: operator %q requires a right operand", i.Operator)
	}
	right, err := renderOperand(i.Right, q, precedence(i.Right) <= p)
	if err != nil {
		return "", err
	}
	op := sqlOperator(i.Operator)
	if lo, ok := q.(LikeOperator); ok && i.Operator == OpLike {
		op = lo.LikeOperator()
	}
	s := left + " " + op + " " + right
	if le, ok := q.(LikeEscaper); ok && i.Operator == OpLike {
		s += le.LikeEscape()
	}
	return s, nil
}

// LikeEscaper is implemented by quoters of dialects that need an explicit
// ESCAPE clause for backslash escapes in like patterns.
type LikeEscaper interface {
	LikeEscape() string
}

// LikeOperator is implemented by quoters of dialects whose LIKE is case
// sensitive. It returns the case-insensitive operator to render instead.
type LikeOperator interface {
	LikeOperator() string
}

func sqlOperator(op string) string {
	switch op {
	case OpNotLT:
		return OpGTE
	case OpNotGT:
		return OpLTE
	}
	return strings.ToUpper(op)
}

// Prefix is a logical negation.
type Prefix struct {
	Operator string
	Operand  Expression
}

// Not returns the negation of e.
func Not(e Expression) *Prefix {
	return &Prefix{Operator: OpNot, Operand: e}
}

// Render renders "NOT <operand>".
func (p *Prefix) Render(q Quoter) (string, error) {
	s, err := renderOperand(p.Operand, q, precedence(p.Operand) < precNot)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(p.Operator) + " " + s, nil
}

// invalid carries a construction error to the point of use.
type invalid struct{ err error }

func (e invalid) Evaluate(Record) (any, error)  { return nil, e.err }
func (e invalid) Render(Quoter) (string, error) { return "", e.err }

// Invalid returns an expression that fails with err when used.
func Invalid(err error) Expression { return invalid{err: err} }
