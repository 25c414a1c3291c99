package knxnetip

import "testing"

func TestTelegramKindString(t *testing.T) {
	cases := map[TelegramKind]string{
		GroupRead:            "group_read",
		GroupResponse:        "group_response",
		GroupWrite:           "group_write",
		TelegramKind(0xFF):   "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("TelegramKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
