// README: Loosely-typed accessors over decoded JSON objects from the travel backend.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Raw is a decoded JSON object whose shape is not known in advance.
// All accessors are total: missing or mistyped fields read as zero values.
type Raw map[string]any

// Has reports whether key is present with a non-null value.
func (r Raw) Has(key string) bool {
	if r == nil {
		return false
	}
	v, ok := r[key]
	return ok && v != nil
}

// Str returns the first non-empty string found under keys.
// Numbers and booleans are formatted so ids sent as numbers still read.
func (r Raw) Str(keys ...string) string {
	for _, k := range keys {
		if s := scalarString(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// ID is Str converted to an ID.
func (r Raw) ID(keys ...string) ID {
	return ID(r.Str(keys...))
}

// Obj returns the nested object under key, or nil.
func (r Raw) Obj(key string) Raw {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case map[string]any:
		return Raw(v)
	case Raw:
		return v
	}
	return nil
}

// IsObj reports whether key holds a nested object.
func (r Raw) IsObj(key string) bool {
	return r.Obj(key) != nil
}

// List returns the array under key, or nil.
func (r Raw) List(key string) []any {
	if r == nil {
		return nil
	}
	if v, ok := r[key].([]any); ok {
		return v
	}
	return nil
}

// Int reads an integer from a JSON number or a numeric string.
func (r Raw) Int(keys ...string) int {
	for _, k := range keys {
		switch v := r[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

// Bool returns true if any of keys holds a truthy value.
func (r Raw) Bool(keys ...string) bool {
	for _, k := range keys {
		switch v := r[k].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		}
	}
	return false
}

// Time parses the first parseable timestamp under keys.
func (r Raw) Time(keys ...string) time.Time {
	for _, k := range keys {
		if t, ok := ParseTime(r.Str(k)); ok {
			return t
		}
	}
	return time.Time{}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseTime accepts the timestamp and date layouts the backend has been seen to emit.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
