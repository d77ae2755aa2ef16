package gatt

import "fmt"

// A Descriptor is an attribute attached to a characteristic.
// Descriptors are created with Characteristic.AddDescriptor and live
// as long as their characteristic.
type Descriptor struct {
	uuid      UUID
	readPerm  SecurityMode
	writePerm SecurityMode
	value     *value
	handle    uint16 // guarded by char.mu; set when the server lays out its attributes

	char *Characteristic
}

// UUID returns the descriptor's UUID.
func (d *Descriptor) UUID() UUID {
	return d.uuid
}

// ReadPerm returns the security a peer needs to read the descriptor.
func (d *Descriptor) ReadPerm() SecurityMode {
	return d.readPerm
}

// WritePerm returns the security a peer needs to write the descriptor.
func (d *Descriptor) WritePerm() SecurityMode {
	return d.writePerm
}

// Characteristic returns the characteristic the descriptor belongs to.
func (d *Descriptor) Characteristic() *Characteristic {
	return d.char
}

// MaxLength returns the maximum length of the descriptor's value.
func (d *Descriptor) MaxLength() int {
	return d.value.max
}

// FixedLength reports whether the descriptor's value has a fixed length.
func (d *Descriptor) FixedLength() bool {
	return d.value.fixed
}

// Handle returns the descriptor's attribute handle, or 0 if it has none yet.
func (d *Descriptor) Handle() uint16 {
	d.char.mu.RLock()
	defer d.char.mu.RUnlock()
	return d.handle
}

// Value returns a copy of the descriptor's value.
func (d *Descriptor) Value() []byte {
	return d.value.get()
}

// SetValue replaces the descriptor's value. The value is left unchanged
// if b does not fit the descriptor's length constraints.
//
// Values of descriptors discovered on a peer are a local cache; SetValue
// does not write them to the peer.
func (d *Descriptor) SetValue(b []byte) error {
	if err := d.char.checkConnected(); err != nil {
		return err
	}
	_, err := d.value.set(b)
	return err
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("Descriptor(%s)", d.uuid)
}
