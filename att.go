package gatt

// AttError is an ATT error code [Vol 3, Part F, 3.4.1.1]. The attribute
// server returns AttErrors so the transport can frame an Error Response.
type AttError byte

// ATT error codes.
const (
	ErrSuccess           AttError = 0x00
	ErrInvalidHandle     AttError = 0x01
	ErrReadNotPerm       AttError = 0x02
	ErrWriteNotPerm      AttError = 0x03
	ErrInvalidPDU        AttError = 0x04
	ErrAuthentication    AttError = 0x05
	ErrReqNotSupp        AttError = 0x06
	ErrInvalidOffset     AttError = 0x07
	ErrAuthorization     AttError = 0x08
	ErrPrepQueueFull     AttError = 0x09
	ErrAttrNotFound      AttError = 0x0a
	ErrAttrNotLong       AttError = 0x0b
	ErrInsuffEncrKeySize AttError = 0x0c
	ErrInvalAttrValueLen AttError = 0x0d
	ErrUnlikely          AttError = 0x0e
	ErrInsuffEnc         AttError = 0x0f
	ErrUnsuppGrpType     AttError = 0x10
	ErrInsuffResources   AttError = 0x11

	// ErrCCCDImproper is the common profile error for a CCCD write the
	// characteristic's properties do not allow [CSS Part B, 1.2].
	ErrCCCDImproper AttError = 0xfd
)

var attErrName = map[AttError]string{
	ErrSuccess:           "success",
	ErrInvalidHandle:     "invalid handle",
	ErrReadNotPerm:       "read not permitted",
	ErrWriteNotPerm:      "write not permitted",
	ErrInvalidPDU:        "invalid PDU",
	ErrAuthentication:    "insufficient authentication",
	ErrReqNotSupp:        "request not supported",
	ErrInvalidOffset:     "invalid offset",
	ErrAuthorization:     "insufficient authorization",
	ErrPrepQueueFull:     "prepare queue full",
	ErrAttrNotFound:      "attribute not found",
	ErrAttrNotLong:       "attribute not long",
	ErrInsuffEncrKeySize: "insufficient encryption key size",
	ErrInvalAttrValueLen: "invalid attribute value length",
	ErrUnlikely:          "unlikely error",
	ErrInsuffEnc:         "insufficient encryption",
	ErrUnsuppGrpType:     "unsupported group type",
	ErrInsuffResources:   "insufficient resources",
	ErrCCCDImproper:      "client characteristic configuration descriptor improperly configured",
}

func (e AttError) Error() string {
	if s, ok := attErrName[e]; ok {
		return s
	}
	switch {
	case e >= 0xe0:
		return "profile or service error"
	case e >= 0x80 && e <= 0x9f:
		return "application error"
	}
	return "reserved error code"
}
