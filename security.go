package gatt

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// A SecurityMode is the security a peer must have established before it
// may read or write an attribute. The values follow the SoftDevice
// security mode/level encoding: the high nibble is the level, the low
// nibble the mode.
type SecurityMode uint8

// Security modes.
const (
	NoAccess            SecurityMode = 0x00 // the attribute cannot be accessed by a peer
	Open                SecurityMode = 0x11 // no security required
	EncryptNoMITM       SecurityMode = 0x21 // encrypted link, unauthenticated pairing
	EncryptWithMITM     SecurityMode = 0x31 // encrypted link, MITM-protected pairing
	LESCEncryptWithMITM SecurityMode = 0x41 // LE Secure Connections with MITM protection
	SignedNoMITM        SecurityMode = 0x12 // signed data, unauthenticated pairing
	SignedWithMITM      SecurityMode = 0x22 // signed data, MITM-protected pairing
)

var securityModeNames = map[SecurityMode]string{
	NoAccess:            "no_access",
	Open:                "open",
	EncryptNoMITM:       "encrypt_no_mitm",
	EncryptWithMITM:     "encrypt_with_mitm",
	LESCEncryptWithMITM: "lesc_encrypt_with_mitm",
	SignedNoMITM:        "signed_no_mitm",
	SignedWithMITM:      "signed_with_mitm",
}

// IsValid reports whether m is one of the defined security modes.
func (m SecurityMode) IsValid() bool {
	_, ok := securityModeNames[m]
	return ok
}

func (m SecurityMode) String() string {
	if s, ok := securityModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("SecurityMode(0x%02x)", uint8(m))
}

// ParseSecurityMode returns the security mode named s, as printed by String.
// Dashes and case are ignored.
func ParseSecurityMode(s string) (SecurityMode, error) {
	name := strings.ToLower(strings.Replace(s, "-", "_", -1))
	for m, n := range securityModeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown security mode %q", s)
}

// CheckSecurityMode returns an error wrapping ErrInvalidArgument
// if m is not a defined security mode.
func CheckSecurityMode(m SecurityMode) error {
	if !m.IsValid() {
		return errors.Wrapf(ErrInvalidArgument, "invalid security mode 0x%02x", uint8(m))
	}
	return nil
}

// A ModeValidator reports whether the underlying stack supports a security mode.
// Radio stacks that lack some tiers (for example LESC) implement it so that
// attributes requiring them are rejected at construction time.
type ModeValidator interface {
	ValidSecurityMode(m SecurityMode) bool
}

// LinkSecurity describes the security established on a connection.
type LinkSecurity struct {
	Encrypted     bool // the link is encrypted
	Authenticated bool // the keys came from MITM-protected pairing
	LESC          bool // the keys came from LE Secure Connections pairing
	Signed        bool // a signing key (CSRK) is available
}

// permits reports whether a peer with link security l may access an
// attribute protected by m. It returns ErrSuccess or the ATT error
// the server should answer with; denied is the code used for NoAccess.
func (m SecurityMode) permits(l LinkSecurity, denied AttError) AttError {
	switch m {
	case Open:
		return ErrSuccess
	case EncryptNoMITM:
		if !l.Encrypted {
			return ErrInsuffEnc
		}
	case EncryptWithMITM:
		if !l.Encrypted {
			return ErrInsuffEnc
		}
		if !l.Authenticated {
			return ErrAuthentication
		}
	case LESCEncryptWithMITM:
		if !l.Encrypted {
			return ErrInsuffEnc
		}
		if !l.Authenticated || !l.LESC {
			return ErrAuthentication
		}
	case SignedNoMITM:
		if !l.Signed && !l.Encrypted {
			return ErrAuthentication
		}
	case SignedWithMITM:
		if (!l.Signed && !l.Encrypted) || !l.Authenticated {
			return ErrAuthentication
		}
	default:
		return denied
	}
	return ErrSuccess
}

// PermitsRead returns ErrSuccess if a peer with link security l may read an
// attribute whose read permission is m, or the ATT error to respond with.
func (m SecurityMode) PermitsRead(l LinkSecurity) AttError {
	return m.permits(l, ErrReadNotPerm)
}

// PermitsWrite is like PermitsRead, for writes.
func (m SecurityMode) PermitsWrite(l LinkSecurity) AttError {
	return m.permits(l, ErrWriteNotPerm)
}
