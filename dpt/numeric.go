package dpt

import "fmt"

// toUint coerces common integer input types to uint64 and range-checks
// against [lo, hi], for the plain unsigned integer families.
func toUint(value any, lo, hi uint64, dpt string) (uint64, error) {
	var v int64
	switch n := value.(type) {
	case int:
		v = int64(n)
	case int8:
		v = int64(n)
	case int16:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case uint:
		v = int64(n)
	case uint8:
		v = int64(n)
	case uint16:
		v = int64(n)
	case uint32:
		v = int64(n)
	case uint64:
		v = int64(n)
	default:
		return 0, &EncodeError{Value: value, DPT: dpt, Reason: "value is not an integer"}
	}
	if v < 0 || uint64(v) < lo || uint64(v) > hi {
		return 0, &EncodeError{Value: value, DPT: dpt, Reason: fmt.Sprintf("out of range [%d,%d]", lo, hi)}
	}
	return uint64(v), nil
}

// toInt coerces common integer input types to int64 and range-checks
// against [lo, hi], for the plain signed integer families.
func toInt(value any, lo, hi int64, dpt string) (int64, error) {
	var v int64
	switch n := value.(type) {
	case int:
		v = int64(n)
	case int8:
		v = int64(n)
	case int16:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case uint:
		v = int64(n)
	case uint8:
		v = int64(n)
	case uint16:
		v = int64(n)
	case uint32:
		v = int64(n)
	default:
		return 0, &EncodeError{Value: value, DPT: dpt, Reason: "value is not an integer"}
	}
	if v < lo || v > hi {
		return 0, &EncodeError{Value: value, DPT: dpt, Reason: fmt.Sprintf("out of range [%d,%d]", lo, hi)}
	}
	return v, nil
}
