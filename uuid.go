package gatt

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// A UUID is a BLE UUID. It is stored little-endian, as sent on the air.
// The zero UUID is not a valid attribute type; remote characteristics
// whose full UUID is unknown carry it.
type UUID struct {
	// Hide the bytes, so that we can enforce that they have length 2 or 16,
	// and that they are immutable. This simplifies the code and API.
	b []byte
}

// UUID16 converts a uint16 (such as 0x1800) to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID{b}
}

// ParseUUID parses a standard-format UUID string, such
// as "1800" or "34DA3AD1-7110-41A1-B1EF-4430F509CDE7".
func ParseUUID(s string) (UUID, error) {
	if len(s) == 4 {
		b, err := hex.DecodeString(s)
		if err != nil {
			return UUID{}, errors.Wrapf(ErrInvalidArgument, "uuid %q: %v", s, err)
		}
		return UUID{reverse(b)}, nil
	}
	if len(s) == 32 && !strings.Contains(s, "-") {
		s = s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
	}
	u, err := uuid.FromString(s)
	if err != nil {
		return UUID{}, errors.Wrapf(ErrInvalidArgument, "uuid %q: %v", s, err)
	}
	return UUID{reverse(u.Bytes())}, nil
}

// MustParseUUID parses a standard-format UUID string,
// like ParseUUID, but panics in case of error.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// checkUUID returns an error wrapping ErrInvalidArgument if u is not a
// 16-bit or 128-bit UUID.
func checkUUID(u UUID) error {
	switch len(u.b) {
	case 2, 16:
		return nil
	}
	return errors.Wrapf(ErrInvalidArgument, "UUIDs must have length 2 or 16, got %d", len(u.b))
}

// Len returns the length of the UUID, in bytes.
// BLE UUIDs are either 2 or 16 bytes; the zero UUID has length 0.
func (u UUID) Len() int {
	return len(u.b)
}

// Bytes returns a copy of the UUID, little-endian.
func (u UUID) Bytes() []byte {
	return append([]byte{}, u.b...)
}

// String hex-encodes a UUID. 128-bit UUIDs use the dashed form.
func (u UUID) String() string {
	s := fmt.Sprintf("%x", reverse(u.b))
	if len(s) == 32 {
		s = s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
	}
	return s
}

// Equal returns a boolean reporting whether v represent the same UUID as u.
func (u UUID) Equal(v UUID) bool {
	return bytes.Equal(u.b, v.b)
}

// reverse returns a reversed copy of u.
func reverse(u []byte) []byte {
	// Special-case 16 bit UUIDS for speed.
	l := len(u)
	switch l {
	case 0:
		return nil
	case 2:
		return []byte{u[1], u[0]}
	}
	b := make([]byte, l)
	for i := 0; i < l/2+1; i++ {
		b[i], b[l-i-1] = u[l-i-1], u[i]
	}
	return b
}
