package schema_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/schema"
)

func TestIntegerIsValid(t *testing.T) {
	tests := []struct {
		name  string
		flags schema.IntegerFlag
		valid []any
		bad   []any
	}{
		{
			name:  "unsigned_small",
			flags: schema.Unsigned | schema.Small,
			valid: []any{0, 100, 65535, uint16(65535)},
			bad:   []any{70000, -1, 65536, "100", 1.5},
		},
		{
			name:  "unsigned_tiny",
			flags: schema.Unsigned | schema.Tiny,
			valid: []any{0, 255},
			bad:   []any{256, -1},
		},
		{
			name:  "unsigned_default",
			flags: schema.Unsigned,
			valid: []any{0, int64(4294967295)},
			bad:   []any{int64(4294967296), -5},
		},
		{
			name:  "unsigned_big",
			flags: schema.Unsigned | schema.Big,
			valid: []any{0, uint64(math.MaxInt64) + 1, uint64(math.MaxUint64)},
			bad:   []any{-1, int64(math.MinInt64), "1"},
		},
		{
			name:  "signed_tiny",
			flags: schema.Tiny,
			valid: []any{-128, 127},
			bad:   []any{-129, 128},
		},
		{
			name:  "signed_small",
			flags: schema.Small,
			valid: []any{-32768, 32767},
			bad:   []any{-32769, 32768},
		},
		{
			name:  "signed_default",
			flags: 0,
			valid: []any{int64(math.MinInt32), int64(math.MaxInt32)},
			bad:   []any{int64(math.MinInt32) - 1, int64(math.MaxInt32) + 1, uint64(math.MaxUint64)},
		},
		{
			name:  "signed_big",
			flags: schema.Big,
			valid: []any{int64(math.MinInt64), int64(math.MaxInt64), uint64(math.MaxUint64)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := schema.Integer(tt.flags)
			for _, v := range tt.valid {
				assert.True(t, typ.IsValid(v), "%v should be valid", v)
			}
			for _, v := range tt.bad {
				assert.False(t, typ.IsValid(v), "%v should be invalid", v)
			}
		})
	}
}

func TestIsValidNull(t *testing.T) {
	assert.False(t, schema.Text().IsValid(nil))
	assert.True(t, schema.Text(schema.Nullable()).IsValid(nil))
	assert.True(t, schema.Integer(0, schema.Nullable()).IsValid(nil))
}

func TestIsValidKinds(t *testing.T) {
	now := time.Now().UTC()
	enum := schema.Enum("status", []string{"active", "banned"})

	assert.True(t, schema.String(3).IsValid("abc"))
	assert.True(t, schema.String(3).IsValid("äöü"), "length counts characters")
	assert.False(t, schema.String(3).IsValid("abcd"))
	assert.True(t, schema.Text().IsValid("anything"))
	assert.False(t, schema.Text().IsValid(1))
	assert.True(t, schema.Boolean().IsValid(true))
	assert.False(t, schema.Boolean().IsValid(1))
	assert.True(t, schema.Float().IsValid(1.5))
	assert.False(t, schema.Float().IsValid("1.5"))
	assert.True(t, schema.Date().IsValid(now))
	assert.True(t, schema.DateTime().IsValid(now))
	assert.False(t, schema.DateTime().IsValid("2024-01-01"))
	assert.True(t, schema.Binary().IsValid([]byte{1}))
	assert.True(t, schema.Object().IsValid(map[string]any{"a": 1}))
	assert.False(t, schema.Object().IsValid(func() {}))
	assert.True(t, enum.IsValid("active"))
	assert.False(t, enum.IsValid("deleted"))
}

func TestConvertThenValid(t *testing.T) {
	tests := []struct {
		name string
		typ  *schema.DataType
		in   any
		want any
	}{
		{"int_from_string", schema.Integer(0), "42", int64(42)},
		{"int_from_prefix", schema.Integer(0), "42abc", int64(42)},
		{"int_from_float", schema.Integer(0), 3.9, int64(3)},
		{"int_from_bool", schema.Integer(0), true, int64(1)},
		{"string_from_int", schema.String(10), 12, "12"},
		{"string_from_uuid", schema.String(36), uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"bool_from_string", schema.Boolean(), "yes", true},
		{"bool_from_zero", schema.Boolean(), "0", false},
		{"bool_from_int", schema.Boolean(), 5, true},
		{"float_from_string", schema.Float(), "1.25", 1.25},
		{"float_from_int", schema.Float(), 2, 2.0},
		{"date_from_string", schema.Date(), "2024-03-05 10:11:12", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"datetime_from_string", schema.DateTime(), "2024-03-05 10:11:12", time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)},
		{"datetime_from_epoch", schema.DateTime(), int64(0), time.Unix(0, 0).UTC()},
		{"binary_from_string", schema.Binary(), "ab", []byte("ab")},
		{"object_from_json", schema.Object(), `{"a":1}`, map[string]any{"a": 1.0}},
		{"enum", schema.Enum("status", []string{"active"}), "active", "active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.typ.Convert(tt.in, false)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.typ.IsValid(got))
		})
	}
}

func TestConvertStrict(t *testing.T) {
	assert.Equal(t, int64(42), schema.Integer(0).Convert("42", true))
	assert.Nil(t, schema.Integer(0).Convert("42abc", true))
	assert.Nil(t, schema.Integer(0).Convert(1.5, true))
	assert.Equal(t, int64(2), schema.Integer(0).Convert(2.0, true))
	assert.Nil(t, schema.Integer(0).Convert(true, true))
	assert.Nil(t, schema.Boolean().Convert("yes", true))
	assert.Equal(t, true, schema.Boolean().Convert("true", true))
	assert.Nil(t, schema.Boolean().Convert(2, true))
	assert.Nil(t, schema.Float().Convert("1.5x", true))
	assert.Nil(t, schema.Text().Convert(true, true))
	assert.Nil(t, schema.DateTime().Convert("yesterday", true))
	assert.Nil(t, schema.Enum("status", []string{"active"}).Convert("gone", true))
	assert.Nil(t, schema.Integer(0).Convert(nil, false))
}

func TestDefaultIsConverted(t *testing.T) {
	typ := schema.Integer(0, schema.Default("7"))
	v, ok := typ.Default()
	require.True(t, ok)
	assert.Equal(t, int64(7), v)

	_, ok = schema.Text().Default()
	assert.False(t, ok)
}

func TestAccessors(t *testing.T) {
	i := schema.Integer(schema.Unsigned | schema.Small | schema.AutoIncrement)
	signed, err := i.IsSigned()
	require.NoError(t, err)
	assert.False(t, signed)
	size, err := i.Size()
	require.NoError(t, err)
	assert.Equal(t, schema.SizeSmall, size)
	auto, err := i.IsAutoIncrement()
	require.NoError(t, err)
	assert.True(t, auto)

	_, err = i.Length()
	require.Error(t, err)
	assert.True(t, strata.IsTypeError(err))

	n, err := schema.String(20).Length()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	_, err = schema.String(20).Size()
	assert.Error(t, err)

	values, err := schema.Enum("s", []string{"a", "b"}).EnumValues()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, values)
	_, err = schema.Text().EnumValues()
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "integer unsigned small", schema.Integer(schema.Unsigned|schema.Small).String())
	assert.Equal(t, "string(255) null", schema.String(255, schema.Nullable()).String())
	assert.Equal(t, "enum status(a,b)", schema.Enum("status", []string{"a", "b"}).String())
}

func TestEqual(t *testing.T) {
	assert.True(t, schema.String(10).Equal(schema.String(10)))
	assert.False(t, schema.String(10).Equal(schema.String(11)))
	assert.False(t, schema.Text().Equal(schema.Text(schema.Nullable())))
	assert.True(t, schema.Text().WithNullable(true).Equal(schema.Text(schema.Nullable())))
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		in   any
		kind schema.Kind
	}{
		{nil, schema.KindText},
		{1, schema.KindInteger},
		{uint8(1), schema.KindInteger},
		{1.5, schema.KindFloat},
		{true, schema.KindBoolean},
		{"x", schema.KindText},
		{time.Now(), schema.KindDateTime},
		{[]byte("x"), schema.KindBinary},
		{uuid.New(), schema.KindString},
		{map[string]any{}, schema.KindObject},
		{[]int{1}, schema.KindObject},
	}
	for _, tt := range tests {
		typ, err := schema.DetectType(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.kind, typ.Kind(), "%#v", tt.in)
	}

	typ, err := schema.DetectType(nil)
	require.NoError(t, err)
	assert.True(t, typ.IsNullable())

	typ, err = schema.DetectType(int64(math.MaxInt32) + 1)
	require.NoError(t, err)
	size, _ := typ.Size()
	assert.Equal(t, schema.SizeBig, size)

	typ, err = schema.DetectType(uint(3))
	require.NoError(t, err)
	signed, _ := typ.IsSigned()
	assert.False(t, signed)

	_, err = schema.DetectType(make(chan int))
	assert.True(t, strata.IsTypeError(err))
}

func TestFromPlaceholder(t *testing.T) {
	enums := schema.EnumRegistry{"Status": {"on", "off"}}
	tests := map[string]schema.Kind{
		"i":        schema.KindInteger,
		"int":      schema.KindInteger,
		"s":        schema.KindString,
		"t":        schema.KindText,
		"f":        schema.KindFloat,
		"b":        schema.KindBoolean,
		"date":     schema.KindDate,
		"d":        schema.KindDateTime,
		"datetime": schema.KindDateTime,
		"n":        schema.KindBinary,
		"o":        schema.KindObject,
		"Status":   schema.KindEnum,
	}
	for name, kind := range tests {
		typ, err := schema.FromPlaceholder(name, enums)
		require.NoError(t, err, name)
		assert.Equal(t, kind, typ.Kind(), name)
	}

	_, err := schema.FromPlaceholder("xyz", enums)
	require.Error(t, err)
	assert.True(t, errors.Is(err, strata.ErrInvalidDataType))

	_, err = schema.FromPlaceholder("Status", nil)
	assert.Error(t, err)
}
