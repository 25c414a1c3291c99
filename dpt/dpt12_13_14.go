package dpt

import (
	"encoding/binary"
	"math"
)

func init() {
	registerWildcard("12", u32Codec{})
	registerWildcard("13", i32Codec{})
	registerWildcard("14", f32Codec{})
}

// u32Codec implements the plain 32-bit unsigned family (12.*).
type u32Codec struct{}

func (u32Codec) Encode(value any) ([]byte, error) {
	v, err := toUint(value, 0, 4294967295, "12.*")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf, nil
}

func (u32Codec) Decode(data []byte) (any, error) {
	if len(data) < 4 {
		return uint32(0), nil
	}
	return binary.BigEndian.Uint32(data), nil
}

// i32Codec implements the plain 32-bit signed family (13.*).
type i32Codec struct{}

func (i32Codec) Encode(value any) ([]byte, error) {
	v, err := toInt(value, -2147483648, 2147483647, "13.*")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(int32(v)))
	return buf, nil
}

func (i32Codec) Decode(data []byte) (any, error) {
	if len(data) < 4 {
		return int32(0), nil
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

// f32Codec implements the IEEE-754 single-precision family (14.*).
type f32Codec struct{}

func (f32Codec) Encode(value any) ([]byte, error) {
	f, ok := toFloat(value)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "14.*", Reason: "value is not a number"}
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
	return buf, nil
}

func (f32Codec) Decode(data []byte) (any, error) {
	if len(data) < 4 {
		return float32(0), nil
	}
	return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
}
