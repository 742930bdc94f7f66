package attrs

// ExtractString extracts a string value from a key-value attribute slice
// shaped like slog varargs: [key1, value1, key2, value2, ...]. Returns ""
// when the key is absent or its value is not a string.
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
