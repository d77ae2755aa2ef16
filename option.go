package gatt

// attrConfig holds the settings shared by characteristics and descriptors.
type attrConfig struct {
	readPerm  SecurityMode
	writePerm SecurityMode
	maxLen    int
	fixed     bool
	initial   []byte
}

func newAttrConfig(opts []AttrOption) attrConfig {
	cfg := attrConfig{
		readPerm:  Open,
		writePerm: Open,
		maxLen:    DefaultMaxLen,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// An AttrOption configures a characteristic or descriptor at construction.
// Unset options default to Open read and write permissions, a variable
// length value of at most DefaultMaxLen bytes, and an empty initial value.
type AttrOption func(*attrConfig)

// ReadPerm sets the security required for a peer to read the attribute.
func ReadPerm(m SecurityMode) AttrOption {
	return func(c *attrConfig) { c.readPerm = m }
}

// WritePerm sets the security required for a peer to write the attribute.
func WritePerm(m SecurityMode) AttrOption {
	return func(c *attrConfig) { c.writePerm = m }
}

// MaxLength sets the maximum value length, in bytes. It must be in
// [1, MaxAttrLen]; variable length values should stay within MaxVarAttrLen.
func MaxLength(n int) AttrOption {
	return func(c *attrConfig) { c.maxLen = n }
}

// FixedLength makes every value of the attribute exactly MaxLength bytes.
// With no initial value, a fixed length attribute starts zero-filled.
func FixedLength(fixed bool) AttrOption {
	return func(c *attrConfig) { c.fixed = fixed }
}

// InitialValue sets the attribute's initial value.
func InitialValue(b []byte) AttrOption {
	return func(c *attrConfig) { c.initial = b }
}
