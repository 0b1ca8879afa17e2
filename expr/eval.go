package expr

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/syssam/strata"
	"github.com/syssam/strata/schema"
)

func newInvalidColumn(model, field string) error {
	return strata.NewInvalidColumnError(model, field)
}

// Evaluate applies the operator with SQL semantics: comparisons involving
// NULL yield NULL (nil), and/or follow three-valued logic.
func (i *Infix) Evaluate(r Record) (any, error) {
	switch i.Operator {
	case OpAnd, OpOr:
		return i.evalLogical(r)
	}
	left, err := i.Left.Evaluate(r)
	if err != nil {
		return nil, err
	}
	switch i.Operator {
	case OpIsNull:
		return left == nil, nil
	case OpIsNotNull:
		return left != nil, nil
	}
	if i.Right == nil {
		return nil, fmt.Errorf("strata: operator %q requires a right operand", i.Operator)
	}
	right, err := i.Right.Evaluate(r)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return nil, nil
	}
	switch i.Operator {
	case OpIn:
		return evalIn(left, right)
	case OpLike:
		return evalLike(left, right)
	}
	c, err := compare(left, right)
	if err != nil {
		return nil, err
	}
	switch i.Operator {
	case OpEQ:
		return c == 0, nil
	case OpNEQ, OpNE:
		return c != 0, nil
	case OpLT:
		return c < 0, nil
	case OpGT:
		return c > 0, nil
	case OpLTE, OpNotGT:
		return c <= 0, nil
	case OpGTE, OpNotLT:
		return c >= 0, nil
	}
	return nil, fmt.Errorf("strata: unknown operator %q", i.Operator)
}

func (i *Infix) evalLogical(r Record) (any, error) {
	left, err := i.Left.Evaluate(r)
	if err != nil {
		return nil, err
	}
	lv, lknown := Truth(left)
	// Short circuit on the deciding value.
	if lknown && lv == (i.Operator == OpOr) {
		return lv, nil
	}
	if i.Right == nil {
		return nil, fmt.Errorf("strata: operator %q requires a right operand", i.Operator)
	}
	right, err := i.Right.Evaluate(r)
	if err != nil {
		return nil, err
	}
	rv, rknown := Truth(right)
	switch {
	case rknown && rv == (i.Operator == OpOr):
		return rv, nil
	case lknown && rknown:
		return rv, nil
	default:
		return nil, nil
	}
}

// Evaluate negates the operand; the negation of NULL is NULL.
func (p *Prefix) Evaluate(r Record) (any, error) {
	v, err := p.Operand.Evaluate(r)
	if err != nil {
		return nil, err
	}
	b, known := Truth(v)
	if !known {
		return nil, nil
	}
	return !b, nil
}

// Truth converts a value to a boolean. known is false for NULL.
func Truth(v any) (value, known bool) {
	if v == nil {
		return false, false
	}
	if b, ok := v.(bool); ok {
		return b, true
	}
	b, _ := schema.Boolean().Convert(v, false).(bool)
	return b, true
}

// Compare orders two values for sorting. NULL sorts before any other value.
func Compare(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	return compare(a, b)
}

// compare orders two non-NULL values. Numbers compare numerically, strings
// and byte strings lexically, times chronologically, and a string compared
// with a number is parsed as a number.
func compare(a, b any) (int, error) {
	if at, ok := a.(time.Time); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt), nil
		}
	}
	if bt, ok := b.(time.Time); ok {
		if at, ok := toTime(a); ok {
			return at.Compare(bt), nil
		}
	}
	if ai, ok := toInt(a); ok {
		if bi, ok := toInt(b); ok {
			return cmp.Compare(ai, bi), nil
		}
	}
	as, aString := toText(a)
	bs, bString := toText(b)
	if aString && bString {
		return strings.Compare(as, bs), nil
	}
	if ab, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Compare(ab, bb), nil
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return cmp.Compare(af, bf), nil
	}
	return 0, strata.NewTypeError(fmt.Sprintf("%T", b), b, fmt.Sprintf("cannot compare with %T", a))
}

func toInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return rv.Int(), true
	case rv.CanUint():
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), true
		}
	case rv.Kind() == reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case []byte:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanFloat():
		return rv.Float(), true
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.Kind() == reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toText(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		if _, ok := v.(time.Time); !ok {
			return v.String(), true
		}
	}
	return "", false
}

func toTime(v any) (time.Time, bool) {
	t, ok := schema.DateTime().Convert(v, true).(time.Time)
	return t, ok
}

func evalIn(left, right any) (any, error) {
	rv := reflect.ValueOf(right)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, strata.NewTypeError("array", right, "right operand of in must be a list")
	}
	// An empty list renders as (NULL), so it matches nothing either way.
	sawNull := rv.Len() == 0
	for i := range rv.Len() {
		v := rv.Index(i).Interface()
		if v == nil {
			sawNull = true
			continue
		}
		c, err := compare(left, v)
		if err != nil {
			return nil, err
		}
		if c == 0 {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return false, nil
}

func evalLike(left, right any) (any, error) {
	s, ok := toText(left)
	if !ok {
		s = fmt.Sprint(left)
	}
	pattern, ok := toText(right)
	if !ok {
		return nil, strata.NewTypeError("string", right, "like pattern must be a string")
	}
	// Casers are stateful, so each evaluation uses its own.
	fold := cases.Fold()
	re, err := likePattern(fold.String(pattern))
	if err != nil {
		return nil, err
	}
	return re.MatchString(fold.String(s)), nil
}

// likePattern compiles an SQL like pattern: % matches any sequence, _ any
// single character, and a backslash escapes the next character.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(`.*`)
		case r == '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(`\\`)
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

// EscapeLike escapes the like wildcards in s.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
