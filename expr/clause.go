package expr

import (
	"fmt"

	"github.com/syssam/strata"
)

// Clause converts a condition to an expression. A string is parsed with
// vars, an Expression is returned unchanged and an empty string or nil
// yields nil. Invalid input yields an expression reporting the error.
func Clause(cond any, vars ...any) Expression {
	switch cond := cond.(type) {
	case nil:
		return nil
	case string:
		if cond == "" {
			return nil
		}
		return E(cond, vars...)
	case Expression:
		if len(vars) > 0 {
			return Invalid(strata.NewParseError(fmt.Sprint(cond), "", 0, "variables given with an expression"))
		}
		return cond
	}
	return Invalid(strata.NewTypeError("condition", cond, "expected a string or an Expression"))
}

// AndWhere combines e and cond with and. An empty cond leaves e unchanged
// and a nil e yields cond.
func AndWhere(e Expression, cond any, vars ...any) Expression {
	return combine(e, OpAnd, Clause(cond, vars...))
}

// OrWhere combines e and cond with or. An empty cond leaves e unchanged
// and a nil e yields cond.
func OrWhere(e Expression, cond any, vars ...any) Expression {
	return combine(e, OpOr, Clause(cond, vars...))
}

// And combines expressions with and, skipping nil ones.
func And(exprs ...Expression) Expression {
	var out Expression
	for _, e := range exprs {
		out = combine(out, OpAnd, e)
	}
	return out
}

// Or combines expressions with or, skipping nil ones.
func Or(exprs ...Expression) Expression {
	var out Expression
	for _, e := range exprs {
		out = combine(out, OpOr, e)
	}
	return out
}

func combine(left Expression, op string, right Expression) Expression {
	switch {
	case right == nil:
		return left
	case left == nil:
		return right
	}
	return &Infix{Left: left, Operator: op, Right: right}
}
