// Package attrs reads values out of slog-style key-value attribute lists.
package attrs

// ExtractString returns the string value stored under key in a
// [key1, value1, key2, value2, ...] slice. It returns "" when the key is
// missing or its value is not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}
