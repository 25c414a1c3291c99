package dpt

import "encoding/binary"

func init() {
	registerWildcard("20", u8Codec{})
	registerWildcard("21", bits8Codec{})
	registerWildcard("22", bits16Codec{})
	registerWildcard("23", twoBitCodec{})
}

// bits8Codec implements DPT 21.*: eight independent boolean flags packed
// MSB-first, exposed reversed so index 0 is bit 0 of the wire byte.
type bits8Codec struct{}

func (bits8Codec) Encode(value any) ([]byte, error) {
	v, ok := value.([8]bool)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "21.*", Reason: "value is not [8]bool"}
	}
	var b byte
	for i, bit := range v {
		if bit {
			b |= 1 << uint(i)
		}
	}
	return []byte{b}, nil
}

func (bits8Codec) Decode(data []byte) (any, error) {
	var out [8]bool
	if len(data) == 0 {
		return out, nil
	}
	b := data[0]
	for i := range out {
		out[i] = b&(1<<uint(i)) != 0
	}
	return out, nil
}

// bits16Codec implements DPT 22.*: sixteen independent boolean flags.
type bits16Codec struct{}

func (bits16Codec) Encode(value any) ([]byte, error) {
	v, ok := value.([16]bool)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "22.*", Reason: "value is not [16]bool"}
	}
	var w uint16
	for i, bit := range v {
		if bit {
			w |= 1 << uint(i)
		}
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, w)
	return buf, nil
}

func (bits16Codec) Decode(data []byte) (any, error) {
	var out [16]bool
	if len(data) < 2 {
		return out, nil
	}
	w := binary.BigEndian.Uint16(data)
	for i := range out {
		out[i] = w&(1<<uint(i)) != 0
	}
	return out, nil
}

// TwoBitValue is the decoded value of DPT 23.*: two independent booleans
// packed in the low 2 bits of a byte.
type TwoBitValue struct {
	A bool
	B bool
}

type twoBitCodec struct{}

func (twoBitCodec) Encode(value any) ([]byte, error) {
	v, ok := value.(TwoBitValue)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "23.*", Reason: "value is not TwoBitValue"}
	}
	var b byte
	if v.A {
		b |= 1
	}
	if v.B {
		b |= 2
	}
	return []byte{b}, nil
}

func (twoBitCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return TwoBitValue{}, nil
	}
	b := data[0] & 0x03
	return TwoBitValue{A: b&1 != 0, B: b&2 != 0}, nil
}
