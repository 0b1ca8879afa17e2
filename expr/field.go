package expr

import (
	"github.com/syssam/strata/schema"
)

// Field is a typed column reference that builds predicates without format
// strings. The name may be qualified as "model.field".
//
//	var Age = expr.Field[int]("age")
//	users.Where(Age.GTE(18))
type Field[T any] string

// Name returns the field name.
func (f Field[T]) Name() string { return string(f) }

// Ref returns the column reference.
func (f Field[T]) Ref() *FieldAccess { return Column(string(f)) }

func (f Field[T]) compare(op string, v T) Expression {
	lit, err := NewLiteral(v)
	if err != nil {
		return Invalid(err)
	}
	return &Infix{Left: f.Ref(), Operator: op, Right: lit}
}

// EQ returns a predicate that checks if the field equals the given value.
func (f Field[T]) EQ(v T) Expression { return f.compare(OpEQ, v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f Field[T]) NEQ(v T) Expression { return f.compare(OpNE, v) }

// GT returns a predicate that checks if the field is greater than the given value.
func (f Field[T]) GT(v T) Expression { return f.compare(OpGT, v) }

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f Field[T]) GTE(v T) Expression { return f.compare(OpGTE, v) }

// LT returns a predicate that checks if the field is less than the given value.
func (f Field[T]) LT(v T) Expression { return f.compare(OpLT, v) }

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f Field[T]) LTE(v T) Expression { return f.compare(OpLTE, v) }

// In returns a predicate that checks if the field value is in the given list.
func (f Field[T]) In(vs ...T) Expression {
	arr := &ArrayLiteral{Type: schema.Text(schema.Nullable())}
	for i, v := range vs {
		lit, err := NewLiteral(v)
		if err != nil {
			return Invalid(err)
		}
		if i == 0 {
			arr.Type = lit.Type.WithNullable(true)
		}
		arr.Values = append(arr.Values, lit.Value)
	}
	return &Infix{Left: f.Ref(), Operator: OpIn, Right: arr}
}

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f Field[T]) NotIn(vs ...T) Expression { return Not(f.In(vs...)) }

// IsNull returns a predicate that checks if the field is NULL.
func (f Field[T]) IsNull() Expression {
	return &Infix{Left: f.Ref(), Operator: OpIsNull}
}

// NotNull returns a predicate that checks if the field is not NULL.
func (f Field[T]) NotNull() Expression {
	return &Infix{Left: f.Ref(), Operator: OpIsNotNull}
}

// TextField is a string column with pattern predicates.
type TextField struct{ Field[string] }

// Text returns a TextField for name.
func Text(name string) TextField { return TextField{Field[string](name)} }

func (f TextField) like(pattern string) Expression {
	return &Infix{Left: f.Ref(), Operator: OpLike, Right: &Literal{Type: schema.Text(), Value: pattern}}
}

// Like returns a predicate matching the raw like pattern.
func (f TextField) Like(pattern string) Expression { return f.like(pattern) }

// Contains returns a predicate that checks if the field contains the given substring.
func (f TextField) Contains(v string) Expression { return f.like("%" + EscapeLike(v) + "%") }

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f TextField) HasPrefix(v string) Expression { return f.like(EscapeLike(v) + "%") }

// HasSuffix returns a predicate that checks if the field has the given suffix.
func (f TextField) HasSuffix(v string) Expression { return f.like("%" + EscapeLike(v)) }
