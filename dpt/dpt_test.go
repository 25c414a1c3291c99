package dpt

import (
	"math"
	"testing"
)

func TestLookupExactBeatsWildcard(t *testing.T) {
	c, err := Lookup("6.020")
	if err != nil {
		t.Fatalf("Lookup(6.020): %v", err)
	}
	if _, ok := c.(mode3Codec); !ok {
		t.Errorf("Lookup(6.020) = %T, want mode3Codec (specific registration should beat the 6.* wildcard)", c)
	}

	c, err = Lookup("6.001")
	if err != nil {
		t.Fatalf("Lookup(6.001): %v", err)
	}
	if _, ok := c.(i8Codec); !ok {
		t.Errorf("Lookup(6.001) = %T, want i8Codec (falls through to 6.* wildcard)", c)
	}
}

func TestLookupWildcardQuery(t *testing.T) {
	c, err := Lookup("1.*")
	if err != nil {
		t.Fatalf("Lookup(1.*): %v", err)
	}
	if _, ok := c.(boolCodec); !ok {
		t.Errorf("Lookup(1.*) = %T, want boolCodec", c)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("999.999"); err == nil {
		t.Error("expected error for unregistered DPT")
	}
	if _, err := Lookup("malformed"); err == nil {
		t.Error("expected error for malformed DPT name")
	}
}

func TestIsShortForm(t *testing.T) {
	cases := map[string]bool{
		"1.001": true,
		"2.001": true,
		"3.007": true,
		"5.001": false,
		"9.001": false,
	}
	for name, want := range cases {
		if got := IsShortForm(name); got != want {
			t.Errorf("IsShortForm(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestEncodeDecodeBool(t *testing.T) {
	data, err := Encode("1.001", true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	value, err := Decode("1.001", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if value != true {
		t.Errorf("Decode() = %v, want true", value)
	}
}

func TestEncodeBoolRejectsNonBool(t *testing.T) {
	if _, err := Encode("1.001", "on"); err == nil {
		t.Error("expected EncodeError for non-bool value")
	}
}

func TestEncodeDecodeU8I8(t *testing.T) {
	data, err := Encode("5.001", 200)
	if err != nil {
		t.Fatalf("Encode(5.001): %v", err)
	}
	v, err := Decode("5.001", data)
	if err != nil {
		t.Fatalf("Decode(5.001): %v", err)
	}
	if v != uint8(200) {
		t.Errorf("Decode(5.001) = %v, want 200", v)
	}

	data, err = Encode("6.001", -42)
	if err != nil {
		t.Fatalf("Encode(6.001): %v", err)
	}
	v, err = Decode("6.001", data)
	if err != nil {
		t.Fatalf("Decode(6.001): %v", err)
	}
	if v != int8(-42) {
		t.Errorf("Decode(6.001) = %v, want -42", v)
	}
}

func TestMode3RoundTrip(t *testing.T) {
	want := Mode3{A: true, C: true, F: 2}
	data, err := Encode("6.020", want)
	if err != nil {
		t.Fatalf("Encode(6.020): %v", err)
	}
	got, err := Decode("6.020", data)
	if err != nil {
		t.Fatalf("Decode(6.020): %v", err)
	}
	if got != want {
		t.Errorf("Decode(6.020) = %+v, want %+v", got, want)
	}
}

func TestMode3RejectsInvalidF(t *testing.T) {
	if _, err := Encode("6.020", Mode3{F: 3}); err == nil {
		t.Error("expected EncodeError for f not in {0,2,4}")
	}
}

func TestFloat16RoundTrip(t *testing.T) {
	for _, want := range []float64{0, 21.5, -10, 670760.96, -671088.64, 1000.96} {
		data, err := Encode("9.001", want)
		if err != nil {
			t.Fatalf("Encode(9.001, %v): %v", want, err)
		}
		got, err := Decode("9.001", data)
		if err != nil {
			t.Fatalf("Decode(9.001): %v", err)
		}
		gotF := got.(float64)
		if math.Abs(gotF-want) > 0.02 {
			t.Errorf("round trip %v -> %v, want ~%v", want, gotF, want)
		}
	}
}

func TestFloat16OutOfRangeEncodesSentinel(t *testing.T) {
	data, err := Encode("9.001", MaxFloat16*2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode("9.001", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f, ok := got.(float64); !ok || !math.IsNaN(f) {
		t.Errorf("Decode(sentinel) = %v, want NaN", got)
	}
}

// roundTrip encodes want under name, decodes the result, and asserts the
// decoded value compares equal to want (via ==, so only for comparable
// types: scalars and plain structs of scalar fields).
func roundTrip(t *testing.T, name string, want any) {
	t.Helper()
	data, err := Encode(name, want)
	if err != nil {
		t.Fatalf("Encode(%q, %v): %v", name, want, err)
	}
	got, err := Decode(name, data)
	if err != nil {
		t.Fatalf("Decode(%q): %v", name, err)
	}
	if got != want {
		t.Errorf("round trip %q: Decode(Encode(%v)) = %v, want %v", name, want, got, want)
	}
}

func TestControlValueRoundTrip(t *testing.T) {
	for _, want := range []ControlValue{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		roundTrip(t, "2.001", want)
	}
}

func TestStepValueRoundTrip(t *testing.T) {
	for code := uint8(0); code <= 7; code++ {
		roundTrip(t, "3.007", StepValue{Control: 1, StepCode: code})
	}
}

func TestAscii7RoundTrip(t *testing.T) {
	for _, want := range []string{"A", "z", "0"} {
		roundTrip(t, "4.001", want)
	}
}

func TestAscii7RejectsNon7Bit(t *testing.T) {
	if _, err := Encode("4.001", "é"); err == nil {
		t.Error("expected EncodeError for a character above 127")
	}
}

func TestLatin1CharRoundTrip(t *testing.T) {
	roundTrip(t, "4.002", "é") // Latin-1 'é', out of 7-bit ASCII range but in [0,255]
}

func TestU16I16RoundTrip(t *testing.T) {
	roundTrip(t, "7.001", uint16(0))
	roundTrip(t, "7.001", uint16(65535))
	roundTrip(t, "8.001", int16(-32768))
	roundTrip(t, "8.001", int16(32767))
}

func TestTimeOfWeekRoundTrip(t *testing.T) {
	roundTrip(t, "10.001", TimeOfWeek{Day: 5, Hour: 23, Minute: 59, Second: 59})
	roundTrip(t, "10.001", TimeOfWeek{})
}

func TestCalendarDateRoundTrip(t *testing.T) {
	roundTrip(t, "11.001", CalendarDate{Day: 31, Month: 12, Year: 2089})
	roundTrip(t, "11.001", CalendarDate{Day: 1, Month: 1, Year: 1990})
}

// TestCalendarDateCenturyBoundary covers spec.md §8's explicit DPT 11
// boundary property: a year byte of 89 decodes to 2089, 90 decodes to 1990.
func TestCalendarDateCenturyBoundary(t *testing.T) {
	data, err := Encode("11.001", CalendarDate{Day: 31, Month: 12, Year: 2089})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode("11.001", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := CalendarDate{Day: 31, Month: 12, Year: 2089}
	if got != want {
		t.Errorf("year byte 89 decoded to %+v, want %+v", got, want)
	}

	data, err = Encode("11.001", CalendarDate{Day: 1, Month: 1, Year: 1990})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err = Decode("11.001", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want = CalendarDate{Day: 1, Month: 1, Year: 1990}
	if got != want {
		t.Errorf("year byte 90 decoded to %+v, want %+v", got, want)
	}
}

func TestU32I32RoundTrip(t *testing.T) {
	roundTrip(t, "12.001", uint32(0))
	roundTrip(t, "12.001", uint32(4294967295))
	roundTrip(t, "13.001", int32(-2147483648))
	roundTrip(t, "13.001", int32(2147483647))
}

func TestFloat32RoundTrip(t *testing.T) {
	for _, want := range []float32{0, -1, 3.5, 1234.25} {
		roundTrip(t, "14.001", want)
	}
}

func TestAccessDataRoundTrip(t *testing.T) {
	roundTrip(t, "15.*", AccessData{Digits: [6]uint8{1, 2, 3, 4, 5, 6}, Flags: 0x0F, Index: 0x0A})
	roundTrip(t, "15.*", AccessData{})
}

func TestAccessDataRejectsNonBCDDigit(t *testing.T) {
	if _, err := Encode("15.*", AccessData{Digits: [6]uint8{10}}); err == nil {
		t.Error("expected EncodeError for a digit above 9")
	}
}

func TestAscii14RoundTrip(t *testing.T) {
	roundTrip(t, "16.000", "hello, knx!")
	roundTrip(t, "16.000", "")
}

func TestLatin1_14RoundTrip(t *testing.T) {
	roundTrip(t, "16.001", "café")
}

func TestSceneNumberRoundTrip(t *testing.T) {
	roundTrip(t, "17.001", uint8(0))
	roundTrip(t, "17.001", uint8(63))
}

func TestSceneControlRoundTrip(t *testing.T) {
	roundTrip(t, "18.001", SceneControl{Control: 1, Scene: 63})
	roundTrip(t, "18.001", SceneControl{Control: 0, Scene: 0})
}

func TestDateTime19RoundTrip(t *testing.T) {
	want := DateTime19{
		Year: 2026, Month: 7, Day: 31, Weekday: 5, Hour: 12, Minute: 30, Second: 45,
		Fault: true, WorkingDay: true, SUTI: true, CLQ: true,
	}
	roundTrip(t, "19.001", want)
}

// TestDateTime19InvalidSentinelRoundTrip covers spec.md §8's explicit DPT 19
// property: encoding InvalidDateAndTime and decoding it again returns the
// same sentinel.
func TestDateTime19InvalidSentinelRoundTrip(t *testing.T) {
	roundTrip(t, "19.001", InvalidDateAndTime)
}

func TestDateTime19NoDayOfWeekFlag(t *testing.T) {
	want := DateTime19{Year: 2000, Month: 1, Day: 1, Weekday: 3, NoDayOfWeek: true}
	data, err := Encode("19.001", want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[6]&(1<<2) == 0 {
		t.Fatalf("no_day_of_week flag not set in encoded flags byte: %08b", data[6])
	}
	got, err := Decode("19.001", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotV, ok := got.(DateTime19)
	if !ok || !gotV.NoDayOfWeek {
		t.Errorf("Decode() = %+v, want NoDayOfWeek=true", got)
	}
}

func TestU8EnumRoundTrip(t *testing.T) {
	roundTrip(t, "20.001", uint8(0))
	roundTrip(t, "20.001", uint8(255))
}

func TestBits8RoundTrip(t *testing.T) {
	roundTrip(t, "21.001", [8]bool{true, false, true, false, true, false, true, false})
}

func TestBits16RoundTrip(t *testing.T) {
	var want [16]bool
	for i := range want {
		want[i] = i%2 == 0
	}
	roundTrip(t, "22.001", want)
}

func TestTwoBitValueRoundTrip(t *testing.T) {
	roundTrip(t, "23.001", TwoBitValue{A: true, B: false})
	roundTrip(t, "23.001", TwoBitValue{A: false, B: true})
}

func TestLatinStringRoundTrip(t *testing.T) {
	roundTrip(t, "24.001", "café")
}

func TestU8RoundTrip25(t *testing.T) {
	roundTrip(t, "25.001", uint8(200))
}

func TestSceneActiveRoundTrip(t *testing.T) {
	roundTrip(t, "26.001", SceneActive{Active: true, Scene: 63})
}

func TestChannelStatesRoundTrip(t *testing.T) {
	var want ChannelStates
	for i := 0; i < 16; i++ {
		want.Valid[i] = i%2 == 0
		want.State[i] = i%3 == 0
	}
	roundTrip(t, "27.001", want)
}

func TestUtf8StringRoundTrip(t *testing.T) {
	roundTrip(t, "28.001", "hello 世界")
}

func TestI64RoundTrip(t *testing.T) {
	roundTrip(t, "29.001", int64(-9223372036854775808))
	roundTrip(t, "29.001", int64(9223372036854775807))
}

func TestAlarmInfoRoundTrip(t *testing.T) {
	roundTrip(t, "219.001", AlarmInfo{LogNumber: 1, Priority: 2, AppArea: 3, ErrorClass: 4, Attributes: 15, Status: 7})
}

func TestAlarmInfoRejectsOutOfRangeStatus(t *testing.T) {
	if _, err := Encode("219.001", AlarmInfo{Status: 8}); err == nil {
		t.Error("expected EncodeError for status above 7")
	}
}
