package convert

// ToSlice normalizes slice-typed values to []interface{}.
// Returns (slice, true) on success, (nil, false) when v is not a slice of
// a supported element type.
//
// Query conditions with the "in" operator accept Go slices of any common
// element type; Bolt records return list values as []interface{} already.
// Normalizing both through this function keeps membership checks uniform.
func ToSlice(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case []string:
		result := make([]interface{}, len(val))
		for i, s := range val {
			result[i] = s
		}
		return result, true
	case []int:
		result := make([]interface{}, len(val))
		for i, n := range val {
			result[i] = int64(n)
		}
		return result, true
	case []int64:
		result := make([]interface{}, len(val))
		for i, n := range val {
			result[i] = n
		}
		return result, true
	case []float64:
		result := make([]interface{}, len(val))
		for i, f := range val {
			result[i] = f
		}
		return result, true
	case []bool:
		result := make([]interface{}, len(val))
		for i, b := range val {
			result[i] = b
		}
		return result, true
	}
	return nil, false
}

// ToStringSlice converts slice types to []string.
// Returns nil when v is not a string slice or contains a non-string.
//
// Example:
//
//	s := ToStringSlice([]interface{}{"a", "b"}) // ["a", "b"]
//	s := ToStringSlice([]interface{}{1, 2})     // nil
func ToStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			if s, ok := item.(string); ok {
				result[i] = s
			} else {
				return nil
			}
		}
		return result
	}
	return nil
}
