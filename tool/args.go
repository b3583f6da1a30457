package tool

import (
	"fmt"
	"math"
	"time"
)

// StringArg returns args[key] as string, or "" when absent.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// NumberArg returns args[key] as float64, or 0 when absent.
func NumberArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// IntArg returns args[key] as int. Fractional numbers are rejected instead of
// being truncated.
func IntArg(args map[string]any, key string) (int, error) {
	f := NumberArg(args, key)
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be a whole number, got %v", key, f)
	}
	return int(f), nil
}

// TimeArg parses args[key] as RFC 3339 (or date only) time.
func TimeArg(args map[string]any, key string) (time.Time, error) {
	s := StringArg(args, key)
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unsupported time format %q", key, s)
}

// StringMapArg returns args[key] as map[string]string, dropping non string values.
func StringMapArg(args map[string]any, key string) map[string]string {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
