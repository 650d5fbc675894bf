// Package convert provides type coercion helpers shared by the query
// backends.
//
// Property values arrive as interface{} from three sources with different
// native types: Go literals passed to the query builder, values stored in
// the in-memory graph, and values decoded from Bolt records (which arrive
// as int64/float64/[]interface{} regardless of what was written). The
// helpers here normalize all three so that comparisons and projections
// behave identically on every backend.
//
// All conversion functions return a success boolean so callers can fall
// back to type-specific handling when coercion fails.
package convert

import (
	"strconv"
)

// ToFloat64 converts numeric types to float64.
// Returns (value, true) on success, (0, false) on failure.
//
// This is the standard numeric coercion used by condition evaluation:
// two values compare numerically when both coerce, so int64(3) stored in
// the graph matches a literal 3.0 in a query.
//
// Supported types:
//   - float64 (returned as-is)
//   - float32 (converted)
//   - int, int32, int64, uint, uint32, uint64
//   - string (parsed as decimal, supports scientific notation)
//
// Example:
//
//	f, ok := ToFloat64(int64(42)) // (42.0, true)
//	f, ok := ToFloat64("3.14")    // (3.14, true)
//	f, ok := ToFloat64("oops")    // (0, false)
func ToFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ToInt64 converts numeric types to int64.
// Returns (value, true) on success, (0, false) on failure.
// Floats are truncated toward zero.
//
// Example:
//
//	i, ok := ToInt64(3.7)   // (3, true)
//	i, ok := ToInt64("123") // (123, true)
func ToInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// ToBool converts boolean-ish values to bool.
// Returns (value, true) on success, (false, false) on failure.
//
// Only bool and the strings accepted by strconv.ParseBool coerce; numbers
// never do, so a stored 1 never silently equals true.
func ToBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b, true
		}
	}
	return false, false
}
