package dpt

func init() {
	registerSpecific("19.001", dateTimeCodec{})
}

// DateTime19 is the decoded value of DPT 19.001. Invalid reports the
// sentinel invalid_date_and_time: whenever any of NoYear, NoDate or NoTime
// is set on the wire, the decoded value MUST be InvalidDateAndTime
// (§4.4b) rather than a partially-populated date.
type DateTime19 struct {
	Invalid bool

	Year    int
	Month   uint8
	Day     uint8
	Weekday uint8
	Hour    uint8
	Minute  uint8
	Second  uint8

	Fault        bool
	WorkingDay   bool
	NoWorkingDay bool
	NoDayOfWeek  bool
	SUTI         bool // standard utime info
	CLQ          bool // clock quality
}

// InvalidDateAndTime is the DPT 19.001 sentinel value.
var InvalidDateAndTime = DateTime19{Invalid: true}

type dateTimeCodec struct{}

func (dateTimeCodec) Encode(value any) ([]byte, error) {
	v, ok := value.(DateTime19)
	if !ok {
		return nil, &EncodeError{Value: value, DPT: "19.001", Reason: "value is not DateTime19"}
	}
	buf := make([]byte, 8)

	if v.Invalid {
		buf[6] = 1<<4 | 1<<3 | 1<<1 // no_year | no_date | no_time
		return buf, nil
	}

	if v.Year < 1900 || v.Year > 2155 {
		return nil, &EncodeError{Value: value, DPT: "19.001", Reason: "year out of range [1900,2155]"}
	}
	buf[0] = byte(v.Year - 1900)
	buf[1] = v.Month & 0x0F
	buf[2] = v.Day & 0x1F
	buf[3] = v.Weekday<<5 | v.Hour&0x1F
	buf[4] = v.Minute & 0x3F
	buf[5] = v.Second & 0x3F

	var f6 byte
	if v.Fault {
		f6 |= 1 << 7
	}
	if v.WorkingDay {
		f6 |= 1 << 6
	}
	if v.NoWorkingDay {
		f6 |= 1 << 5
	}
	if v.NoDayOfWeek {
		f6 |= 1 << 2
	}
	if v.SUTI {
		f6 |= 1
	}
	buf[6] = f6
	if v.CLQ {
		buf[7] = 1 << 7
	}
	return buf, nil
}

func (dateTimeCodec) Decode(data []byte) (any, error) {
	if len(data) < 8 {
		return InvalidDateAndTime, nil
	}
	f6 := data[6]
	noYear := f6&(1<<4) != 0
	noDate := f6&(1<<3) != 0
	noTime := f6&(1<<1) != 0
	if noYear || noDate || noTime {
		return InvalidDateAndTime, nil
	}
	return DateTime19{
		Year:         1900 + int(data[0]),
		Month:        data[1] & 0x0F,
		Day:          data[2] & 0x1F,
		Weekday:      data[3] >> 5 & 0x07,
		Hour:         data[3] & 0x1F,
		Minute:       data[4] & 0x3F,
		Second:       data[5] & 0x3F,
		Fault:        f6&(1<<7) != 0,
		WorkingDay:   f6&(1<<6) != 0,
		NoWorkingDay: f6&(1<<5) != 0,
		NoDayOfWeek:  f6&(1<<2) != 0,
		SUTI:         f6&1 != 0,
		CLQ:          data[7]&(1<<7) != 0,
	}, nil
}
