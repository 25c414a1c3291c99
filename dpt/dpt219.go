package dpt

func init() {
	registerSpecific("219.001", alarmInfoCodec{})
}

// AlarmInfo is the decoded value of DPT 219.001: a 48-bit alarm status
// record. LogNumber, Priority, AppArea and ErrorClass each occupy a full
// byte; Attributes and Status share the fifth byte (4 and 3 bits); the
// sixth byte is reserved to fill the 48-bit wire width.
type AlarmInfo struct {
	LogNumber  uint8
	Priority   uint8
	AppArea    uint8
	ErrorClass uint8
	Attributes uint8 // 0-15
	Status     uint8 // 0-7
}

type alarmInfoCodec struct{}

func (alarmInfoCodec) Encode(value any) ([]byte, error) {
	v, ok := value.(AlarmInfo)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "219.001", Reason: "value is not AlarmInfo"}
	}
	if v.Attributes > 15 {
		return nil, &EncodeError{Value: value, DPT: "219.001", Reason: "attributes out of range [0,15]"}
	}
	if v.Status > 7 {
		return nil, &EncodeError{Value: value, DPT: "219.001", Reason: "status out of range [0,7]"}
	}
	return []byte{
		v.LogNumber,
		v.Priority,
		v.AppArea,
		v.ErrorClass,
		v.Attributes<<4 | v.Status<<1,
		0,
	}, nil
}

func (alarmInfoCodec) Decode(data []byte) (any, error) {
	if len(data) < 6 {
		return AlarmInfo{}, nil
	}
	return AlarmInfo{
		LogNumber:  data[0],
		Priority:   data[1],
		AppArea:    data[2],
		ErrorClass: data[3],
		Attributes: data[4] >> 4 & 0x0F,
		Status:     data[4] >> 1 & 0x07,
	}, nil
}
