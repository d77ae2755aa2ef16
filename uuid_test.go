package gatt

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestUUID16(t *testing.T) {
	if want, got := (UUID{[]byte{0x00, 0x18}}), UUID16(0x1800); !got.Equal(want) {
		t.Errorf("UUID16: got %x, want %x", got, want)
	}
}

func TestParseUUID(t *testing.T) {
	cases := []struct {
		s    string
		want string
		len  int
	}{
		{s: "1800", want: "1800", len: 2},
		{s: "2A00", want: "2a00", len: 2},
		{s: "34DA3AD1-7110-41A1-B1EF-4430F509CDE7", want: "34da3ad1-7110-41a1-b1ef-4430f509cde7", len: 16},
		{s: "34da3ad1711041a1b1ef4430f509cde7", want: "34da3ad1-7110-41a1-b1ef-4430f509cde7", len: 16},
	}
	for _, tt := range cases {
		u, err := ParseUUID(tt.s)
		if err != nil {
			t.Errorf("ParseUUID(%q): %v", tt.s, err)
			continue
		}
		if u.String() != tt.want || u.Len() != tt.len {
			t.Errorf("ParseUUID(%q): got %s (len %d) want %s (len %d)", tt.s, u, u.Len(), tt.want, tt.len)
		}
	}

	if u := MustParseUUID("1800"); !bytes.Equal(u.Bytes(), []byte{0x00, 0x18}) {
		t.Errorf("1800 is not stored little-endian: %x", u.Bytes())
	}

	for _, s := range []string{"", "18", "zz00", "180000", "34da3ad1-7110-41a1-b1ef"} {
		if _, err := ParseUUID(s); errors.Cause(err) != ErrInvalidArgument {
			t.Errorf("ParseUUID(%q): got %v want ErrInvalidArgument", s, err)
		}
	}
}

func TestCheckUUID(t *testing.T) {
	for _, u := range []UUID{{}, {make([]byte, 4)}, {make([]byte, 17)}} {
		if errors.Cause(checkUUID(u)) != ErrInvalidArgument {
			t.Errorf("checkUUID(%x) should fail", u.b)
		}
	}
	for _, u := range []UUID{UUID16(0x2902), MustParseUUID("34DA3AD1-7110-41A1-B1EF-4430F509CDE7")} {
		if err := checkUUID(u); err != nil {
			t.Errorf("checkUUID(%s): %v", u, err)
		}
	}
}

func TestReverse(t *testing.T) {
	cases := []struct {
		fwd  []byte
		back []byte
	}{
		{fwd: []byte{0, 1}, back: []byte{1, 0}},
		{fwd: []byte{0, 1, 2}, back: []byte{2, 1, 0}},
		{fwd: []byte{0, 1, 2, 3}, back: []byte{3, 2, 1, 0}},
		{
			fwd:  []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			back: []byte{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
		},
	}

	for _, tt := range cases {
		got := reverse(tt.fwd)
		if !bytes.Equal(got, tt.back) {
			t.Errorf("reverse(%x): got %x want %x", tt.fwd, got, tt.back)
		}

		u := UUID{tt.fwd}
		got = reverse(u.b)
		if !bytes.Equal(got, tt.back) {
			t.Errorf("UUID.reverse(%x): got %x want %x", tt.fwd, got, tt.back)
		}
	}
}

func BenchmarkReverseBytes16(b *testing.B) {
	u := UUID{make([]byte, 2)}
	for i := 0; i < b.N; i++ {
		reverse(u.b)
	}
}

func BenchmarkReverseBytes128(b *testing.B) {
	u := UUID{make([]byte, 16)}
	for i := 0; i < b.N; i++ {
		reverse(u.b)
	}
}
