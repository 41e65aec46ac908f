package pane

import (
	"encoding/json"
	"math"
)

// Plot bodies are kept as decoded JSON (map[string]any, []any, float64,
// string, bool, nil). The helpers below operate on that shape only.

// CloneValue returns a deep copy of a decoded JSON value.
func CloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = CloneValue(item)
		}
		return out
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(typed, &decoded); err != nil {
			return nil
		}
		return decoded
	default:
		return typed
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return CloneValue(m).(map[string]any)
}

// isNullish reports whether v is JSON null or a NaN number.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

// allNullish reports whether every element of list is nullish. An empty
// list is not considered nullish.
func allNullish(list []any) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		if !isNullish(item) {
			return false
		}
	}
	return true
}

func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// objects converts a decoded list into its object elements, failing if any
// element is not an object.
func objects(v any) ([]map[string]any, bool) {
	list, ok := asList(v)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		obj, ok := asObject(item)
		if !ok {
			return nil, false
		}
		out = append(out, obj)
	}
	return out, true
}
