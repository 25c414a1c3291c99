package dpt

import "encoding/binary"

func init() {
	registerWildcard("7", u16Codec{})
	registerWildcard("8", i16Codec{})
}

// u16Codec implements the plain 16-bit unsigned family (7.*).
type u16Codec struct{}

func (u16Codec) Encode(value any) ([]byte, error) {
	v, err := toUint(value, 0, 65535, "7.*")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(v))
	return buf, nil
}

func (u16Codec) Decode(data []byte) (any, error) {
	if len(data) < 2 {
		return uint16(0), nil
	}
	return binary.BigEndian.Uint16(data), nil
}

// i16Codec implements the plain 16-bit signed family (8.*).
type i16Codec struct{}

func (i16Codec) Encode(value any) ([]byte, error) {
	v, err := toInt(value, -32768, 32767, "8.*")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(int16(v)))
	return buf, nil
}

func (i16Codec) Decode(data []byte) (any, error) {
	if len(data) < 2 {
		return int16(0), nil
	}
	return int16(binary.BigEndian.Uint16(data)), nil
}
