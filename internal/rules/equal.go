package rules

import (
	"encoding/json"
	"reflect"
)

// Equal reports whether two condition values are equal. Scalars compare
// strictly by kind and value, so "1", 1 and true are all distinct. Numbers
// compare by numeric value whatever their Go type, because values arrive as
// float64 from JSON and as int from YAML or Go callers. Maps and slices
// compare structurally.
func Equal(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize converts every numeric type to float64 and recurses into
// maps and slices.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}

	// Typed slices and maps ([]string, map[string]int, ...) from Go callers.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

// Matches reports whether every condition key is present in ctx with an
// equal value. Keys of ctx that no condition names are ignored. Empty
// conditions match every context.
func Matches(conditions, ctx map[string]interface{}) bool {
	for key, expected := range conditions {
		actual, ok := ctx[key]
		if !ok {
			return false
		}
		if !Equal(actual, expected) {
			return false
		}
	}
	return true
}
