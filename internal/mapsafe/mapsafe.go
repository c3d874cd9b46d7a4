// Package mapsafe reads typed values out of loosely typed parameter maps,
// such as backend load parameters or decoded JSON.
package mapsafe

import "time"

// Get retrieves a typed value from a map[string]any.
// Numbers convert between int and float64 since decoded JSON only yields
// float64. If the key is missing or the value cannot be converted, it
// returns defaultValue.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		if n, ok := toFloat(val); ok {
			return any(int(n)).(T)
		}
	case float64:
		if n, ok := toFloat(val); ok {
			return any(n).(T)
		}
	case time.Duration:
		switch x := val.(type) {
		case time.Duration:
			return any(x).(T)
		case string:
			if d, err := time.ParseDuration(x); err == nil {
				return any(d).(T)
			}
		}
	default:
		if v, ok := val.(T); ok {
			return v
		}
	}
	return defaultValue
}

func toFloat(val any) (float64, bool) {
	switch x := val.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
