package dpt

func init() {
	registerWildcard("15", accessDataCodec{})
}

// AccessData is the decoded value of DPT 15.*: six BCD digits (e.g. an
// access-code or badge number), four flag bits, and a 4-bit index.
type AccessData struct {
	Digits [6]uint8 // each 0-9
	Flags  uint8    // low 4 bits meaningful
	Index  uint8    // low 4 bits meaningful
}

type accessDataCodec struct{}

func (accessDataCodec) Encode(value any) ([]byte, error) {
	v, ok := value.(AccessData)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "15.*", Reason: "value is not AccessData"}
	}
	for _, d := range v.Digits {
		if d > 9 {
			return nil, &EncodeError{Value: value, DPT: "15.*", Reason: "digit out of range [0,9]"}
		}
	}
	buf := make([]byte, 4)
	buf[0] = v.Digits[0]<<4 | v.Digits[1]
	buf[1] = v.Digits[2]<<4 | v.Digits[3]
	buf[2] = v.Digits[4]<<4 | v.Digits[5]
	buf[3] = (v.Flags&0x0F)<<4 | v.Index&0x0F
	return buf, nil
}

func (accessDataCodec) Decode(data []byte) (any, error) {
	if len(data) < 4 {
		return AccessData{}, nil
	}
	return AccessData{
		Digits: [6]uint8{
			data[0] >> 4, data[0] & 0x0F,
			data[1] >> 4, data[1] & 0x0F,
			data[2] >> 4, data[2] & 0x0F,
		},
		Flags: data[3] >> 4 & 0x0F,
		Index: data[3] & 0x0F,
	}, nil
}
