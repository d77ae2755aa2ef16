package gatt

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestCCCD(t *testing.T) {
	cases := []struct {
		c CCCD
		b []byte
	}{
		{c: CCCD{}, b: []byte{0x00, 0x00}},
		{c: CCCD{Notify: true}, b: []byte{0x01, 0x00}},
		{c: CCCD{Indicate: true}, b: []byte{0x02, 0x00}},
		{c: CCCD{Notify: true, Indicate: true}, b: []byte{0x03, 0x00}},
	}
	for _, tt := range cases {
		if got := tt.c.Bytes(); !bytes.Equal(got, tt.b) {
			t.Errorf("%+v.Bytes(): got %x want %x", tt.c, got, tt.b)
		}
		if got, err := ParseCCCD(tt.b); err != nil || got != tt.c {
			t.Errorf("ParseCCCD(%x): got %+v, %v want %+v", tt.b, got, err, tt.c)
		}
	}

	if got, _ := ParseCCCD([]byte{0x05, 0x80}); got != (CCCD{Notify: true}) {
		t.Errorf("reserved bits: got %+v", got)
	}
	for _, b := range [][]byte{nil, {0x01}, {0x01, 0x00, 0x00}} {
		if _, err := ParseCCCD(b); errors.Cause(err) != ErrLength {
			t.Errorf("ParseCCCD(%x): got %v want ErrLength", b, err)
		}
	}
}
