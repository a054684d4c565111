package rpc

// Helpers to pull typed fields out of loosely shaped payloads, used for inherents whose
// fields vary by inherent type.

// GetStringField retrieves the string value for the given key from a map. Returns an empty string if the key is absent or not a string.
func GetStringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetOptionalStringField retrieves a string value from a map by key, returning nil if not found or empty.
func GetOptionalStringField(m map[string]interface{}, key string) *string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

// GetOptionalUint64Field retrieves an optional uint64 value from a map if the key exists and the value is a numeric type.
func GetOptionalUint64Field(m map[string]interface{}, key string) *uint64 {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			u := uint64(val)
			return &u
		case int64:
			u := uint64(val)
			return &u
		case float64:
			u := uint64(val)
			return &u
		case uint64:
			return &val
		}
	}
	return nil
}
