package dpt

import "encoding/binary"

func init() {
	registerWildcard("29", i64Codec{})
}

// i64Codec implements the plain 64-bit signed family (29.*), used for
// signed energy counters.
type i64Codec struct{}

func (i64Codec) Encode(value any) ([]byte, error) {
	var v int64
	switch n := value.(type) {
	case int64:
		v = n
	case int:
		v = int64(n)
	case int32:
		v = int64(n)
	default:
		return nil, &EncodeError{Value: value, DPT: "29.*", Reason: "value is not an integer"}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf, nil
}

func (i64Codec) Decode(data []byte) (any, error) {
	if len(data) < 8 {
		return int64(0), nil
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}
