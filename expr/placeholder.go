package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/schema"
)

// varReader hands out positional variables in strict left to right order.
// A reader is scoped to a single interpolation or parse.
type varReader struct {
	input string
	vars  []any
	next  int
}

func (r *varReader) read(token string, pos int) (any, error) {
	if r.next >= len(r.vars) {
		return nil, strata.NewParseError(r.input, token, pos, "not enough variables")
	}
	v := r.vars[r.next]
	r.next++
	return v, nil
}

func (r *varReader) finish() error {
	if r.next < len(r.vars) {
		return strata.NewParseError(r.input, "", len(r.input), fmt.Sprintf("too many variables: %d given, %d used", len(r.vars), r.next))
	}
	return nil
}

// placeholder is a "?" or "%name" token, optionally followed by "()".
type placeholder struct {
	name  string // empty for ?
	array bool
	token string
	pos   int
}

type resolvedKind uint8

const (
	resolvedValue resolvedKind = iota
	resolvedArray
	resolvedExpr
	resolvedModel
	resolvedField
)

// resolved is the outcome of binding one placeholder to its variable(s).
type resolved struct {
	kind   resolvedKind
	typ    *schema.DataType
	value  any
	values []any
	expr   Expression
	name   string
}

// node returns the expression form of a value, array or spliced expression.
func (r resolved) node() Expression {
	switch r.kind {
	case resolvedArray:
		return &ArrayLiteral{Type: r.typ, Values: r.values}
	case resolvedExpr:
		return r.expr
	case resolvedField:
		return Column(r.name)
	}
	return &Literal{Type: r.typ, Value: r.value}
}

func (p *Parser) resolve(ph placeholder, vars *varReader) (resolved, error) {
	switch ph.name {
	case "e", "expr", "expression":
		v, err := vars.read(ph.token, ph.pos)
		if err != nil {
			return resolved{}, err
		}
		e, ok := v.(Expression)
		if !ok {
			return resolved{}, strata.NewTypeError("expression", v, "placeholder "+ph.token)
		}
		return resolved{kind: resolvedExpr, expr: e}, nil
	case "m", "model", "c", "column", "field":
		v, err := vars.read(ph.token, ph.pos)
		if err != nil {
			return resolved{}, err
		}
		name, ok := v.(string)
		if !ok || name == "" {
			return resolved{}, strata.NewTypeError("identifier", v, "placeholder "+ph.token)
		}
		if ph.name == "m" || ph.name == "model" {
			return resolved{kind: resolvedModel, name: name}, nil
		}
		return resolved{kind: resolvedField, name: name}, nil
	case "_":
		spec, err := vars.read(ph.token, ph.pos)
		if err != nil {
			return resolved{}, err
		}
		var t *schema.DataType
		switch spec := spec.(type) {
		case *schema.DataType:
			t = spec
		case string:
			if t, err = schema.FromPlaceholder(spec, p.enums); err != nil {
				return resolved{}, err
			}
		default:
			return resolved{}, strata.NewTypeError("data type", spec, "placeholder %_ expects a type name or *schema.DataType first")
		}
		return p.bind(ph, t, vars)
	case "":
		return p.bind(ph, nil, vars)
	}
	t, err := schema.FromPlaceholder(ph.name, p.enums)
	if err != nil {
		return resolved{}, err
	}
	return p.bind(ph, t, vars)
}

// bind reads the value of a typed (or, with a nil t, untyped) placeholder.
func (p *Parser) bind(ph placeholder, t *schema.DataType, vars *varReader) (resolved, error) {
	v, err := vars.read(ph.token, ph.pos)
	if err != nil {
		return resolved{}, err
	}
	if e, ok := v.(Expression); ok && !ph.array {
		return resolved{kind: resolvedExpr, expr: e}, nil
	}
	if ph.array {
		return bindArray(ph, t, v)
	}
	if t == nil {
		if t, err = schema.DetectType(v); err != nil {
			return resolved{}, err
		}
		return resolved{kind: resolvedValue, typ: t, value: t.Convert(v, false)}, nil
	}
	cv, err := convertStrict(ph, t, v)
	if err != nil {
		return resolved{}, err
	}
	return resolved{kind: resolvedValue, typ: t.WithNullable(true), value: cv}, nil
}

func bindArray(ph placeholder, t *schema.DataType, v any) (resolved, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return resolved{}, strata.NewTypeError("array", v, "placeholder "+ph.token+" expects a slice")
	}
	if _, ok := v.([]byte); ok {
		return resolved{}, strata.NewTypeError("array", v, "placeholder "+ph.token+" expects a slice")
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	if t == nil {
		t = schema.Text()
		for _, e := range values {
			if e == nil {
				continue
			}
			dt, err := schema.DetectType(e)
			if err != nil {
				return resolved{}, err
			}
			t = dt
			break
		}
	}
	for i, e := range values {
		cv, err := convertStrict(ph, t, e)
		if err != nil {
			return resolved{}, err
		}
		values[i] = cv
	}
	return resolved{kind: resolvedArray, typ: t.WithNullable(true), values: values}, nil
}

func convertStrict(ph placeholder, t *schema.DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	cv := t.Convert(v, true)
	if cv == nil {
		return nil, strata.NewTypeError(t.String(), v, fmt.Sprintf("placeholder %s at %d", ph.token, ph.pos))
	}
	return cv, nil
}

// quoteColumn renders a possibly qualified column name.
func quoteColumn(q Quoter, name string) string {
	if model, field, ok := strings.Cut(name, "."); ok {
		return q.QuoteModel(model) + "." + q.QuoteField(field)
	}
	return q.QuoteField(name)
}
