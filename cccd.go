package gatt

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// CCCD is the state of a Client Characteristic Configuration Descriptor:
// whether the server should send notifications and indications.
type CCCD struct {
	Notify   bool
	Indicate bool
}

// Subscribed reports whether either delivery method is enabled.
func (c CCCD) Subscribed() bool { return c.Notify || c.Indicate }

// Bytes returns the descriptor value, little-endian.
func (c CCCD) Bytes() []byte {
	var v uint16
	if c.Notify {
		v |= gattCCCNotifyFlag
	}
	if c.Indicate {
		v |= gattCCCIndicateFlag
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// ParseCCCD decodes a descriptor value written by a client.
// Reserved bits are ignored.
func ParseCCCD(b []byte) (CCCD, error) {
	if len(b) != 2 {
		return CCCD{}, errors.Wrapf(ErrLength, "CCCD value must be 2 bytes, got %d", len(b))
	}
	v := binary.LittleEndian.Uint16(b)
	return CCCD{
		Notify:   v&gattCCCNotifyFlag != 0,
		Indicate: v&gattCCCIndicateFlag != 0,
	}, nil
}
