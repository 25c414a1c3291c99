package knxnetip

import "testing"

func TestIndividualAddressRoundTrip(t *testing.T) {
	a, err := NewIndividualAddress(1, 2, 200)
	if err != nil {
		t.Fatalf("NewIndividualAddress: %v", err)
	}
	if got, want := a.String(), "1.2.200"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := IndividualAddressFromUint16(a.ToUint16()); got != a {
		t.Errorf("round trip via uint16 = %+v, want %+v", got, a)
	}

	parsed, err := ParseIndividualAddress("1.2.200")
	if err != nil {
		t.Fatalf("ParseIndividualAddress: %v", err)
	}
	if parsed != a {
		t.Errorf("ParseIndividualAddress = %+v, want %+v", parsed, a)
	}
}

func TestIndividualAddressOutOfRange(t *testing.T) {
	if _, err := NewIndividualAddress(16, 0, 0); err == nil {
		t.Error("expected error for area > 15")
	}
	if _, err := NewIndividualAddress(0, 16, 0); err == nil {
		t.Error("expected error for line > 15")
	}
	if _, err := ParseIndividualAddress("1.2"); err == nil {
		t.Error("expected error for malformed address")
	}
	if _, err := ParseIndividualAddress("1.2.300"); err == nil {
		t.Error("expected error for device out of range")
	}
}

func TestGroupAddressRoundTrip(t *testing.T) {
	g, err := NewGroupAddress(31, 7, 255)
	if err != nil {
		t.Fatalf("NewGroupAddress: %v", err)
	}
	if got, want := g.String(), "31/7/255"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := GroupAddressFromUint16(g.ToUint16()); got != g {
		t.Errorf("round trip via uint16 = %+v, want %+v", got, g)
	}

	parsed, err := ParseGroupAddress("31/7/255")
	if err != nil {
		t.Fatalf("ParseGroupAddress: %v", err)
	}
	if parsed != g {
		t.Errorf("ParseGroupAddress = %+v, want %+v", parsed, g)
	}
}

func TestGroupAddressOutOfRange(t *testing.T) {
	if _, err := NewGroupAddress(32, 0, 0); err == nil {
		t.Error("expected error for main > 31")
	}
	if _, err := NewGroupAddress(0, 8, 0); err == nil {
		t.Error("expected error for middle > 7")
	}
	if _, err := ParseGroupAddress("1/2/3/4"); err == nil {
		t.Error("expected error for malformed address")
	}
}
