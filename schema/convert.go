package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Layouts accepted when converting strings to dates and datetimes.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

var (
	datetimeLayouts = []string{DateTimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05", DateLayout}
	numericPrefix   = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

// Convert coerces v to the native representation of the type:
//
//	integer   int64 (uint64 above math.MaxInt64)
//	string    string
//	boolean   bool
//	float     float64
//	date      time.Time at midnight UTC
//	datetime  time.Time in UTC, truncated to seconds
//	binary    []byte
//	object    a JSON compatible value
//	enum      string
//
// In strict mode only unambiguous inputs are converted, in loose mode numeric
// prefixes, truthy strings and similar are accepted. Convert returns nil when
// v cannot be converted; it never fails.
func (t *DataType) Convert(v any, strict bool) any {
	if v == nil {
		return nil
	}
	switch t.kind {
	case KindInteger:
		return convertInteger(v, strict)
	case KindString, KindText:
		return convertString(v, strict)
	case KindEnum:
		s, ok := convertString(v, strict).(string)
		if !ok || strict && !slices.Contains(t.enumValues, s) {
			return nil
		}
		return s
	case KindBoolean:
		return convertBoolean(v, strict)
	case KindFloat:
		return convertFloat(v, strict)
	case KindDate:
		tm, ok := convertTime(v, strict)
		if !ok {
			return nil
		}
		y, m, d := tm.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case KindDateTime:
		tm, ok := convertTime(v, strict)
		if !ok {
			return nil
		}
		return tm.Truncate(time.Second)
	case KindBinary:
		switch v := v.(type) {
		case []byte:
			return v
		case string:
			return []byte(v)
		}
		return nil
	case KindObject:
		if s, ok := v.(string); ok && !strict {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		if _, err := json.Marshal(v); err != nil {
			return nil
		}
		return v
	}
	return nil
}

func convertInteger(v any, strict bool) any {
	if i, u, neg, ok := integerParts(v); ok {
		if !neg && u > math.MaxInt64 {
			return u
		}
		return i
	}
	switch v := v.(type) {
	case float64:
		return floatToInteger(v, strict)
	case float32:
		return floatToInteger(float64(v), strict)
	case bool:
		if strict {
			return nil
		}
		if v {
			return int64(1)
		}
		return int64(0)
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
		if strict {
			return nil
		}
		f, ok := parseNumericPrefix(s)
		if !ok {
			return nil
		}
		return floatToInteger(f, false)
	}
	return nil
}

func floatToInteger(f float64, strict bool) any {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil
	}
	if strict && f != math.Trunc(f) {
		return nil
	}
	return int64(f)
}

func parseNumericPrefix(s string) (float64, bool) {
	m := numericPrefix.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	return f, err == nil
}

func convertString(v any, strict bool) any {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		if _, ok := v.(time.Time); !ok {
			return v.String()
		}
	}
	if i, u, neg, ok := integerParts(v); ok {
		if neg {
			return strconv.FormatInt(i, 10)
		}
		return strconv.FormatUint(u, 10)
	}
	switch v := v.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	if strict {
		return nil
	}
	switch v := v.(type) {
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(DateTimeLayout)
	}
	return nil
}

func convertBoolean(v any, strict bool) any {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true":
			return true
		case "0", "false":
			return false
		case "", "no", "off", "n", "f":
			if !strict {
				return false
			}
			return nil
		}
		if strict {
			return nil
		}
		return true
	case float64:
		if strict && v != 0 && v != 1 {
			return nil
		}
		return v != 0
	}
	if i, u, neg, ok := integerParts(v); ok {
		if strict && (neg || u > 1) {
			return nil
		}
		return i != 0 || u != 0
	}
	return nil
}

func convertFloat(v any, strict bool) any {
	switch v := v.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		if strict {
			return nil
		}
		if f, ok := parseNumericPrefix(s); ok {
			return f
		}
		return nil
	case bool:
		if strict {
			return nil
		}
		if v {
			return 1.0
		}
		return 0.0
	}
	if i, u, neg, ok := integerParts(v); ok {
		if neg {
			return float64(i)
		}
		return float64(u)
	}
	return nil
}

func convertTime(v any, strict bool) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range datetimeLayouts {
			if tm, err := time.Parse(layout, s); err == nil {
				return tm.UTC(), true
			}
		}
		if strict {
			return time.Time{}, false
		}
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), true
		}
		return time.Time{}, false
	}
	if rv := reflect.ValueOf(v); rv.CanInt() {
		return time.Unix(rv.Int(), 0).UTC(), true
	}
	return time.Time{}, false
}
