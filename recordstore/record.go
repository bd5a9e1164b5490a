package recordstore

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Record holds the attributes of one row, keyed by column name.
type Record map[string]any

// ID returns the row id, or 0 when the record has none.
func (r Record) ID() int64 {
	return r.Int("id")
}

// Int returns the attribute as an int64.
func (r Record) Int(key string) int64 {
	v, _ := ToInt(r[key]).(int64)
	return v
}

// Float returns the attribute as a float64.
func (r Record) Float(key string) float64 {
	v, _ := ToFloat(r[key]).(float64)
	return v
}

// String returns the attribute as a string.
func (r Record) String(key string) string {
	v, _ := ToString(r[key]).(string)
	return v
}

// Bool returns the attribute as a bool.
func (r Record) Bool(key string) bool {
	v, _ := ToBool(r[key]).(bool)
	return v
}

// Time returns the attribute as a time.Time.
func (r Record) Time(key string) time.Time {
	v, _ := ToTime(r[key]).(time.Time)
	return v
}

// Clone returns a shallow copy of r. Column values are scalars, so the copy
// shares nothing a caller can change.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Args carries named arguments for Delete.
type Args map[string]any

// Coercer converts a raw column value into its typed form.
type Coercer func(any) any

// Coercers maps column names to the coercer applied to them on read.
type Coercers map[string]Coercer

// Apply replaces every attribute of r that has a coercer with the coerced
// value. r is modified in place and returned.
func (c Coercers) Apply(r Record) Record {
	for key, value := range r {
		if fn, ok := c[key]; ok && fn != nil {
			r[key] = fn(value)
		}
	}
	return r
}

// ToInt coerces numbers, numeric strings and bools to int64. Strings that do
// not parse become 0. nil is kept.
func ToInt(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return int64(t)
	case float64:
		return int64(t)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return ToInt(string(t))
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return int64(0)
	}
	return v
}

// ToFloat coerces numbers, numeric strings and bools to float64. Strings that
// do not parse become 0. nil is kept.
func ToFloat(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return t
	case float32:
		return float64(t)
	case []byte:
		return ToFloat(string(t))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return float64(0)
		}
		return f
	}
	if n, ok := ToInt(v).(int64); ok {
		return float64(n)
	}
	return v
}

// ToBool coerces to bool: non-zero numbers are true, strings are parsed with
// strconv.ParseBool and otherwise true unless empty or "0". nil is kept.
func ToBool(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case []byte:
		return ToBool(string(t))
	case string:
		s := strings.TrimSpace(t)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s != "" && s != "0"
	}
	if f, ok := ToFloat(v).(float64); ok {
		return f != 0
	}
	return v
}

// ToString coerces any value to its string form. nil is kept.
func ToString(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToTime coerces strings in common SQL layouts and unix seconds to
// time.Time. Values that cannot be parsed are returned unchanged.
func ToTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return ToTime(string(t))
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
		return v
	case int64:
		return time.Unix(t, 0).UTC()
	case int:
		return time.Unix(int64(t), 0).UTC()
	}
	return v
}
