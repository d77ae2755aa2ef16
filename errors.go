package gatt

import "github.com/pkg/errors"

// Errors returned by attribute construction and value access.
// Returned errors wrap one of these; compare with errors.Cause.
var (
	// ErrInvalidArgument is returned for malformed UUIDs, unknown security
	// modes and out of range lengths.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLength is returned when a value does not fit the attribute's
	// maximum length or fixed length.
	ErrLength = errors.New("invalid value length")

	// ErrRole is returned when an operation is not allowed for the
	// characteristic's role or properties.
	ErrRole = errors.New("operation not permitted for characteristic")

	// ErrDisconnected is returned for operations on attributes of a peer
	// that has been disconnected.
	ErrDisconnected = errors.New("peer disconnected")
)

// attErrorFor maps an attribute error onto the ATT error code a
// server sends back to the central.
func attErrorFor(err error) AttError {
	if err == nil {
		return ErrSuccess
	}
	if e, ok := errors.Cause(err).(AttError); ok {
		return e
	}
	switch errors.Cause(err) {
	case ErrLength:
		return ErrInvalAttrValueLen
	case ErrRole:
		return ErrWriteNotPerm
	case ErrInvalidArgument:
		return ErrInvalidPDU
	}
	return ErrUnlikely
}
