package protocol

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		body string
		want uint8
	}{
		{"0\tdrive\t1.0000\t-2.5000", 0xd6},
		{"0\tready\t1500\tdodo", 0xcc},
		{"0\ts\tdodobot", 0xa0},
		{"", 0x00},
	}
	for _, tt := range tests {
		if got := checksum(tt.body); got != tt.want {
			t.Errorf("checksum(%q) = %02x, want %02x", tt.body, got, tt.want)
		}
	}
}

func TestAppendChecksumZeroPads(t *testing.T) {
	got := string(appendChecksum(nil, 0x07))
	if got != "07" {
		t.Errorf("appendChecksum(0x07) = %q, want %q", got, "07")
	}
	got = string(appendChecksum(nil, 0xd6))
	if got != "d6" {
		t.Errorf("appendChecksum(0xd6) = %q, want %q", got, "d6")
	}
}

func TestParseChecksum(t *testing.T) {
	if v, err := parseChecksum("d6"); err != nil || v != 0xd6 {
		t.Errorf("parseChecksum(d6) = %02x, %v", v, err)
	}
	// The firmware writes lowercase but uppercase must parse too.
	if v, err := parseChecksum("D6"); err != nil || v != 0xd6 {
		t.Errorf("parseChecksum(D6) = %02x, %v", v, err)
	}
	if _, err := parseChecksum("zz"); err == nil {
		t.Error("parseChecksum(zz) should fail")
	}
}
