package dpt

func init() {
	registerSpecific("10.001", timeOfWeekCodec{})
	registerSpecific("11.001", calendarDateCodec{})
}

// TimeOfWeek is the decoded value of DPT 10.001: day:3 | hour:5 | min:6 |
// sec:6, with two 2-bit reserved gaps per the wire layout.
type TimeOfWeek struct {
	Day    uint8 // 0-7 (0 = no day)
	Hour   uint8 // 0-23
	Minute uint8 // 0-59
	Second uint8 // 0-59
}

type timeOfWeekCodec struct{}

func (timeOfWeekCodec) Encode(value any) ([]byte, error) {
	v, ok := value.(TimeOfWeek)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "10.001", Reason: "value is not TimeOfWeek"}
	}
	if v.Day > 7 || v.Hour > 23 || v.Minute > 59 || v.Second > 59 {
		return nil, &EncodeError{Value: value, DPT: "10.001", Reason: "component out of range"}
	}
	b0 := v.Day<<5 | v.Hour&0x1F
	b1 := v.Minute & 0x3F
	b2 := v.Second & 0x3F
	return []byte{b0, b1, b2}, nil
}

func (timeOfWeekCodec) Decode(data []byte) (any, error) {
	if len(data) < 3 {
		return TimeOfWeek{}, nil
	}
	return TimeOfWeek{
		Day:    data[0] >> 5 & 0x07,
		Hour:   data[0] & 0x1F,
		Minute: data[1] & 0x3F,
		Second: data[2] & 0x3F,
	}, nil
}

// CalendarDate is the decoded value of DPT 11.001: day:8 | month:8 |
// year:8, with the 2-digit year expanded per §4.4's rule.
type CalendarDate struct {
	Day   uint8 // 1-31
	Month uint8 // 1-12
	Year  int   // full 4-digit year
}

type calendarDateCodec struct{}

func (calendarDateCodec) Encode(value any) ([]byte, error) {
	v, ok := value.(CalendarDate)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "11.001", Reason: "value is not CalendarDate"}
	}
	if v.Day < 1 || v.Day > 31 || v.Month < 1 || v.Month > 12 {
		return nil, &EncodeError{Value: value, DPT: "11.001", Reason: "day/month out of range"}
	}
	if v.Year < 1990 || v.Year > 2089 {
		return nil, &EncodeError{Value: value, DPT: "11.001", Reason: "year out of representable range [1990,2089]"}
	}
	var yearByte int
	if v.Year >= 2000 {
		yearByte = v.Year - 2000
	} else {
		yearByte = v.Year - 1900
	}
	return []byte{v.Day, v.Month, byte(yearByte)}, nil
}

func (calendarDateCodec) Decode(data []byte) (any, error) {
	if len(data) < 3 {
		return CalendarDate{}, nil
	}
	yearByte := data[2]
	var year int
	if yearByte >= 90 {
		year = 1900 + int(yearByte)
	} else {
		year = 2000 + int(yearByte)
	}
	return CalendarDate{Day: data[0], Month: data[1], Year: year}, nil
}
