package dpt

import "strings"

func init() {
	registerSpecific("16.000", ascii14Codec{})
	registerSpecific("16.001", latin1_14Codec{})
}

// ascii14Codec implements DPT 16.000: 14-byte fixed ASCII string.
type ascii14Codec struct{}

func (ascii14Codec) Encode(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "16.000", Reason: "value is not a string"}
	}
	if len(s) > 14 {
		return nil, &EncodeError{Value: value, DPT: "16.000", Reason: "exceeds 14 characters"}
	}
	for _, r := range s {
		if r > 127 {
			return nil, &EncodeError{Value: value, DPT: "16.000", Reason: "not 7-bit ASCII"}
		}
	}
	buf := make([]byte, 14)
	copy(buf, s)
	return buf, nil
}

func (ascii14Codec) Decode(data []byte) (any, error) {
	if len(data) > 14 {
		data = data[:14]
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// latin1_14Codec implements DPT 16.001: 14-byte fixed Latin-1 string.
type latin1_14Codec struct{}

func (latin1_14Codec) Encode(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "16.001", Reason: "value is not a string"}
	}
	runes := []rune(s)
	if len(runes) > 14 {
		return nil, &EncodeError{Value: value, DPT: "16.001", Reason: "exceeds 14 characters"}
	}
	buf := make([]byte, 14)
	for i, r := range runes {
		if r > 255 {
			return nil, &EncodeError{Value: value, DPT: "16.001", Reason: "not representable in Latin-1"}
		}
		buf[i] = byte(r)
	}
	return buf, nil
}

func (latin1_14Codec) Decode(data []byte) (any, error) {
	if len(data) > 14 {
		data = data[:14]
	}
	runes := make([]rune, 0, len(data))
	for _, b := range data {
		if b == 0 {
			break
		}
		runes = append(runes, rune(b))
	}
	return string(runes), nil
}
