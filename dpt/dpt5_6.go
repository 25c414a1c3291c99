package dpt

func init() {
	registerWildcard("5", u8Codec{})
	registerSpecific("6.020", mode3Codec{})
	registerWildcard("6", i8Codec{})
	registerSpecific("25.001", u8Codec{})
}

// u8Codec implements the plain 8-bit unsigned families (5.*, 25.001).
type u8Codec struct{}

func (u8Codec) Encode(value any) ([]byte, error) {
	v, err := toUint(value, 0, 255, "u8")
	if err != nil {
		return nil, err
	}
	return []byte{byte(v)}, nil
}

func (u8Codec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return uint8(0), nil
	}
	return data[0], nil
}

// i8Codec implements the plain 8-bit signed family (6.*).
type i8Codec struct{}

func (i8Codec) Encode(value any) ([]byte, error) {
	v, err := toInt(value, -128, 127, "i8")
	if err != nil {
		return nil, err
	}
	return []byte{byte(int8(v))}, nil
}

func (i8Codec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return int8(0), nil
	}
	return int8(data[0]), nil
}

// Mode3 is DPT 6.020 "Status_Mode3": five status bits and a 3-value mode
// selector packed as a,b,c,d,e (bits 7-3) and f (bits 2-0, one of 0,2,4).
type Mode3 struct {
	A, B, C, D, E bool
	F             uint8
}

type mode3Codec struct{}

func (mode3Codec) Encode(value any) ([]byte, error) {
	v, ok := value.(Mode3)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "6.020", Reason: "value is not Mode3"}
	}
	if v.F != 0 && v.F != 2 && v.F != 4 {
		return nil, &EncodeError{Value: value, DPT: "6.020", Reason: "f must be 0, 2 or 4"}
	}
	var b byte
	if v.A {
		b |= 1 << 7
	}
	if v.B {
		b |= 1 << 6
	}
	if v.C {
		b |= 1 << 5
	}
	if v.D {
		b |= 1 << 4
	}
	if v.E {
		b |= 1 << 3
	}
	b |= v.F & 0x07
	return []byte{b}, nil
}

func (mode3Codec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return Mode3{}, nil
	}
	b := data[0]
	return Mode3{
		A: b&(1<<7) != 0,
		B: b&(1<<6) != 0,
		C: b&(1<<5) != 0,
		D: b&(1<<4) != 0,
		E: b&(1<<3) != 0,
		F: b & 0x07,
	}, nil
}
