package cemi

import "testing"

func TestControlFieldPredicates(t *testing.T) {
	// control1 = 0xBC (1011_1100): frame-type bit set -> standard frame.
	// control2 = 0xE0 (1110_0000): destination group set, hop count 6.
	c := ControlField(0xBCE0)

	if c.IsExtendedFrame() {
		t.Error("expected standard frame (bit set means standard)")
	}
	if !c.HasDoNotRepeat() {
		t.Error("expected do-not-repeat flag set")
	}
	if !c.IsBroadcast() {
		t.Error("expected broadcast flag set")
	}
	if !c.IsDestinationGroup() {
		t.Error("expected destination-group flag set")
	}
	if got, want := c.HopCount(), uint8(6); got != want {
		t.Errorf("HopCount() = %d, want %d", got, want)
	}
}

func TestControlFieldWithDestinationGroup(t *testing.T) {
	c := ControlField(0xBCE0)

	cleared := c.WithDestinationGroup(false)
	if cleared.IsDestinationGroup() {
		t.Error("expected destination-group flag cleared")
	}
	if cleared.HopCount() != c.HopCount() {
		t.Error("WithDestinationGroup must not disturb hop count")
	}

	set := cleared.WithDestinationGroup(true)
	if set != c {
		t.Errorf("round trip WithDestinationGroup = %#x, want %#x", uint16(set), uint16(c))
	}
}

func TestParseDataRecordGroupRead(t *testing.T) {
	// tpci=UnnumberedData(0), no value bytes: data_length 0.
	rec, err := ParseDataRecord(0, []byte{0x00})
	if err != nil {
		t.Fatalf("ParseDataRecord: %v", err)
	}
	if rec.TPCI.Kind != UnnumberedData {
		t.Errorf("TPCI.Kind = %v, want UnnumberedData", rec.TPCI.Kind)
	}
	if rec.Value != nil {
		t.Errorf("expected nil value for group_read, got %v", rec.Value)
	}
}

func TestEncodeParseDataRecordShortForm(t *testing.T) {
	rec := DataRecord{
		TPCI:      TPCI{Kind: UnnumberedData},
		APCI:      APCIGroupWrite,
		Value:     []byte{0x01},
		ValueBits: 6,
	}
	length, npdu := EncodeDataRecord(rec)
	if length != 1 {
		t.Fatalf("EncodeDataRecord length = %d, want 1", length)
	}

	parsed, err := ParseDataRecord(length, npdu)
	if err != nil {
		t.Fatalf("ParseDataRecord: %v", err)
	}
	if parsed.APCI != APCIGroupWrite {
		t.Errorf("APCI = %#x, want %#x", parsed.APCI, APCIGroupWrite)
	}
	if len(parsed.Value) != 1 || parsed.Value[0] != 0x01 {
		t.Errorf("Value = %v, want [0x01]", parsed.Value)
	}
}

func TestEncodeParseDataRecordLongForm(t *testing.T) {
	rec := DataRecord{
		TPCI:  TPCI{Kind: UnnumberedData},
		APCI:  APCIMemoryWrite,
		Value: []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	length, npdu := EncodeDataRecord(rec)

	parsed, err := ParseDataRecord(length, npdu)
	if err != nil {
		t.Fatalf("ParseDataRecord: %v", err)
	}
	if parsed.APCI != APCIMemoryWrite {
		t.Errorf("APCI = %#x, want %#x", parsed.APCI, APCIMemoryWrite)
	}
	if string(parsed.Value) != string(rec.Value) {
		t.Errorf("Value = %v, want %v", parsed.Value, rec.Value)
	}
}

func TestParseDataRecordTruncated(t *testing.T) {
	if _, err := ParseDataRecord(0, nil); err == nil {
		t.Error("expected error for empty npdu")
	}
	if _, err := ParseDataRecord(2, []byte{0x00}); err == nil {
		t.Error("expected error for truncated npdu")
	}
}
