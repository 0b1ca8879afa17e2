package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/syssam/strata"
)

// Kind is the tag of a DataType.
type Kind uint8

// Data type kinds.
const (
	KindInvalid Kind = iota
	KindInteger
	KindString
	KindText
	KindBoolean
	KindFloat
	KindDate
	KindDateTime
	KindBinary
	KindObject
	KindEnum
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindInteger:  "integer",
	KindString:   "string",
	KindText:     "text",
	KindBoolean:  "boolean",
	KindFloat:    "float",
	KindDate:     "date",
	KindDateTime: "datetime",
	KindBinary:   "binary",
	KindObject:   "object",
	KindEnum:     "enum",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindInvalid]
}

// IntegerFlag modifies an integer data type. Flags are combined with |.
type IntegerFlag uint8

// Integer flags.
const (
	Unsigned IntegerFlag = 1 << iota
	AutoIncrement
	Tiny
	Small
	Big
)

// SizeClass is the storage class of an integer.
type SizeClass uint8

// Integer size classes.
const (
	SizeDefault SizeClass = iota // 32 bits
	SizeTiny                     // 8 bits
	SizeSmall                    // 16 bits
	SizeBig                      // 64 bits
)

// String returns the size class name.
func (s SizeClass) String() string {
	switch s {
	case SizeTiny:
		return "tiny"
	case SizeSmall:
		return "small"
	case SizeBig:
		return "big"
	default:
		return "default"
	}
}

// DataType describes the type of a field value. It is immutable once
// constructed and may be shared between definitions.
type DataType struct {
	kind       Kind
	nullable   bool
	def        any
	hasDefault bool

	length int // string

	signed        bool // integer
	size          SizeClass
	autoIncrement bool

	enumName   string
	enumValues []string
}

// TypeOption configures a DataType at construction.
type TypeOption func(*DataType)

// Nullable allows the type to hold NULL.
func Nullable() TypeOption {
	return func(t *DataType) {
		t.nullable = true
	}
}

// Default sets the default value of the type. The value is converted to the
// native representation of the kind when possible.
func Default(v any) TypeOption {
	return func(t *DataType) {
		t.def = v
		t.hasDefault = true
	}
}

func newType(kind Kind, opts []TypeOption, init func(*DataType)) *DataType {
	t := &DataType{kind: kind, signed: true}
	if init != nil {
		init(t)
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.hasDefault && t.def != nil {
		if v := t.Convert(t.def, false); v != nil {
			t.def = v
		}
	}
	return t
}

// Integer returns an integer type. Size flags are exclusive; when more than
// one is given the largest wins.
func Integer(flags IntegerFlag, opts ...TypeOption) *DataType {
	return newType(KindInteger, opts, func(t *DataType) {
		t.signed = flags&Unsigned == 0
		t.autoIncrement = flags&AutoIncrement != 0
		switch {
		case flags&Big != 0:
			t.size = SizeBig
		case flags&Small != 0:
			t.size = SizeSmall
		case flags&Tiny != 0:
			t.size = SizeTiny
		}
	})
}

// String returns a bounded string type. Length is counted in characters.
func String(length int, opts ...TypeOption) *DataType {
	return newType(KindString, opts, func(t *DataType) {
		t.length = length
	})
}

// Text returns an unbounded string type.
func Text(opts ...TypeOption) *DataType { return newType(KindText, opts, nil) }

// Boolean returns a boolean type.
func Boolean(opts ...TypeOption) *DataType { return newType(KindBoolean, opts, nil) }

// Float returns a double precision type.
func Float(opts ...TypeOption) *DataType { return newType(KindFloat, opts, nil) }

// Date returns a calendar date type.
func Date(opts ...TypeOption) *DataType { return newType(KindDate, opts, nil) }

// DateTime returns a timestamp type with second precision.
func DateTime(opts ...TypeOption) *DataType { return newType(KindDateTime, opts, nil) }

// Binary returns a byte string type.
func Binary(opts ...TypeOption) *DataType { return newType(KindBinary, opts, nil) }

// Object returns a structured value type stored as JSON.
func Object(opts ...TypeOption) *DataType { return newType(KindObject, opts, nil) }

// Enum returns a type restricted to the given ordered values.
func Enum(name string, values []string, opts ...TypeOption) *DataType {
	return newType(KindEnum, opts, func(t *DataType) {
		t.enumName = name
		t.enumValues = slices.Clone(values)
	})
}

// Kind returns the tag of the type.
func (t *DataType) Kind() Kind { return t.kind }

// IsNullable reports whether the type accepts NULL.
func (t *DataType) IsNullable() bool { return t.nullable }

// Default returns the default value, if any.
func (t *DataType) Default() (any, bool) { return t.def, t.hasDefault }

// WithNullable returns a copy of the type with the given nullability.
func (t *DataType) WithNullable(nullable bool) *DataType {
	c := *t
	c.nullable = nullable
	return &c
}

func (t *DataType) kindError(accessor string, want Kind) error {
	return strata.NewTypeError(t.String(), accessor, fmt.Sprintf("%s is only defined for %s types", accessor, want))
}

// Length returns the maximum length of a string type.
func (t *DataType) Length() (int, error) {
	if t.kind != KindString {
		return 0, t.kindError("length", KindString)
	}
	return t.length, nil
}

// IsSigned reports whether an integer type is signed.
func (t *DataType) IsSigned() (bool, error) {
	if t.kind != KindInteger {
		return false, t.kindError("signed", KindInteger)
	}
	return t.signed, nil
}

// Size returns the size class of an integer type.
func (t *DataType) Size() (SizeClass, error) {
	if t.kind != KindInteger {
		return SizeDefault, t.kindError("size", KindInteger)
	}
	return t.size, nil
}

// IsAutoIncrement reports whether an integer type is auto incremented.
func (t *DataType) IsAutoIncrement() (bool, error) {
	if t.kind != KindInteger {
		return false, t.kindError("autoIncrement", KindInteger)
	}
	return t.autoIncrement, nil
}

// EnumName returns the registered name of an enum type.
func (t *DataType) EnumName() (string, error) {
	if t.kind != KindEnum {
		return "", t.kindError("enumName", KindEnum)
	}
	return t.enumName, nil
}

// EnumValues returns the ordered values of an enum type.
func (t *DataType) EnumValues() ([]string, error) {
	if t.kind != KindEnum {
		return nil, t.kindError("enumValues", KindEnum)
	}
	return slices.Clone(t.enumValues), nil
}

// String returns a short description such as "integer unsigned small".
func (t *DataType) String() string {
	var b strings.Builder
	b.WriteString(t.kind.String())
	switch t.kind {
	case KindInteger:
		if !t.signed {
			b.WriteString(" unsigned")
		}
		if t.size != SizeDefault {
			b.WriteString(" " + t.size.String())
		}
		if t.autoIncrement {
			b.WriteString(" auto_increment")
		}
	case KindString:
		fmt.Fprintf(&b, "(%d)", t.length)
	case KindEnum:
		fmt.Fprintf(&b, " %s(%s)", t.enumName, strings.Join(t.enumValues, ","))
	}
	if t.nullable {
		b.WriteString(" null")
	}
	return b.String()
}

// Equal reports whether two types describe the same storage.
func (t *DataType) Equal(o *DataType) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.kind == o.kind &&
		t.nullable == o.nullable &&
		t.hasDefault == o.hasDefault &&
		reflect.DeepEqual(t.def, o.def) &&
		t.length == o.length &&
		t.signed == o.signed &&
		t.size == o.size &&
		t.autoIncrement == o.autoIncrement &&
		slices.Equal(t.enumValues, o.enumValues)
}

// Integer ranges per size class.
var (
	unsignedMax = map[SizeClass]uint64{
		SizeTiny:    math.MaxUint8,
		SizeSmall:   math.MaxUint16,
		SizeDefault: math.MaxUint32,
	}
	signedRange = map[SizeClass][2]int64{
		SizeTiny:    {math.MinInt8, math.MaxInt8},
		SizeSmall:   {math.MinInt16, math.MaxInt16},
		SizeDefault: {math.MinInt32, math.MaxInt32},
	}
)

// IsValid reports whether v is a valid native value of the type.
// NULL is valid exactly when the type is nullable.
func (t *DataType) IsValid(v any) bool {
	if v == nil {
		return t.nullable
	}
	switch t.kind {
	case KindInteger:
		return t.validInteger(v)
	case KindString:
		s, ok := v.(string)
		return ok && utf8.RuneCountInString(s) <= t.length
	case KindText:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindFloat:
		switch v.(type) {
		case float64, float32:
			return true
		}
		return false
	case KindDate, KindDateTime:
		_, ok := v.(time.Time)
		return ok
	case KindBinary:
		_, ok := v.([]byte)
		return ok
	case KindObject:
		_, err := json.Marshal(v)
		return err == nil
	case KindEnum:
		s, ok := v.(string)
		return ok && slices.Contains(t.enumValues, s)
	}
	return false
}

func (t *DataType) validInteger(v any) bool {
	i, u, neg, ok := integerParts(v)
	if !ok {
		return false
	}
	if t.size == SizeBig {
		return t.signed || !neg
	}
	if !t.signed {
		return !neg && u <= unsignedMax[t.size]
	}
	r := signedRange[t.size]
	if !neg && u > math.MaxInt64 {
		return false
	}
	return i >= r[0] && i <= r[1]
}

// integerParts splits an integer value into its signed value, its magnitude
// for non-negative values, and its sign.
func integerParts(v any) (i int64, u uint64, neg bool, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i = rv.Int()
		if i < 0 {
			return i, 0, true, true
		}
		return i, uint64(i), false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u = rv.Uint()
		if u <= math.MaxInt64 {
			i = int64(u)
		}
		return i, u, false, true
	}
	return 0, 0, false, false
}

// DetectType infers a data type from a runtime value.
func DetectType(v any) (*DataType, error) {
	switch v := v.(type) {
	case nil:
		return Text(Nullable()), nil
	case bool:
		return Boolean(), nil
	case string:
		return Text(), nil
	case []byte:
		return Binary(), nil
	case time.Time:
		return DateTime(), nil
	case uuid.UUID:
		return String(36), nil
	case float32, float64:
		return Float(), nil
	case *DataType:
		return nil, strata.NewTypeError("value", v.String(), "a data type is not a value")
	}
	if i, u, neg, ok := integerParts(v); ok {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if u > math.MaxUint32 {
				return Integer(Unsigned | Big), nil
			}
			return Integer(Unsigned), nil
		}
		if neg && i < math.MinInt32 || !neg && u > math.MaxInt32 {
			return Integer(Big), nil
		}
		return Integer(0), nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return Object(), nil
	case reflect.Pointer:
		if reflect.ValueOf(v).Elem().Kind() == reflect.Struct {
			return Object(), nil
		}
	}
	return nil, strata.NewTypeError("value", v, fmt.Sprintf("cannot detect the data type of %T", v))
}

// EnumRegistry maps enum names to their ordered values. It is passed
// explicitly wherever placeholder names are resolved.
type EnumRegistry map[string][]string

// Lookup returns the values registered under name.
func (r EnumRegistry) Lookup(name string) ([]string, bool) {
	values, ok := r[name]
	return values, ok
}

// FromPlaceholder maps a placeholder name (without the leading %) to a data
// type. Names that are not built in are looked up in enums.
func FromPlaceholder(name string, enums EnumRegistry) (*DataType, error) {
	switch strings.ToLower(name) {
	case "i", "int", "integer":
		return Integer(0), nil
	case "s", "str", "string":
		return String(255), nil
	case "t", "text":
		return Text(), nil
	case "f", "float":
		return Float(), nil
	case "b", "bool", "boolean":
		return Boolean(), nil
	case "date":
		return Date(), nil
	case "d", "datetime":
		return DateTime(), nil
	case "n", "bin", "binary":
		return Binary(), nil
	case "o", "object":
		return Object(), nil
	}
	if values, ok := enums.Lookup(name); ok {
		return Enum(name, values), nil
	}
	return nil, strata.NewInvalidDataTypeError(name)
}
