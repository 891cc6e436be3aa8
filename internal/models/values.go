package models

import (
	"encoding/json"
	"strconv"
)

// Document field values arrive as whatever the backend decoded them to
// (float64 from JSONB, int32/int64 from BSON, native types in memory).
// These helpers normalize them.

// Float converts a numeric field
func Float(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// String converts a string field, "" when absent
func String(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Bool converts a boolean field, false when absent
func Bool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// Strings converts an array-of-strings field
func Strings(v interface{}) []string {
	switch arr := v.(type) {
	case []string:
		out := make([]string, len(arr))
		copy(out, arr)
		return out
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
