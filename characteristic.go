package gatt

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Role tells whether this process hosts an attribute or caches a peer's.
type Role int

// Attribute roles.
const (
	Local  Role = iota // hosted by the local GATT server; the local value is authoritative
	Remote             // discovered on a peer; the local value is a cache
)

func (r Role) String() string {
	switch r {
	case Local:
		return "local"
	case Remote:
		return "remote"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// A Request is the context for a request from a connected device.
type Request struct {
	Conn           Conn
	Service        *Service
	Characteristic *Characteristic
}

// A WriteHandler vets writes from connected centrals to a local
// characteristic. Write and WriteNR requests are presented identically.
// A status other than ErrSuccess rejects the write and is sent back to the
// central; otherwise the value is stored.
type WriteHandler interface {
	ServeWrite(r Request, data []byte) (status AttError)
}

// WriteHandlerFunc is an adapter to allow the use of
// ordinary functions as WriteHandlers. If f is a function
// with the appropriate signature, WriteHandlerFunc(f) is a
// WriteHandler that calls f.
type WriteHandlerFunc func(r Request, data []byte) AttError

// ServeWrite returns f(r, data).
func (f WriteHandlerFunc) ServeWrite(r Request, data []byte) AttError {
	return f(r, data)
}

// A Characteristic is a BLE characteristic: a typed, permissioned value
// with optional descriptors. Its UUID, properties and permissions never
// change after construction; only its value and, for remote
// characteristics, its CCCD state do.
type Characteristic struct {
	uuid      UUID
	props     Property
	readPerm  SecurityMode
	writePerm SecurityMode
	value     *value
	role      Role

	mu         sync.RWMutex // guards the fields below
	descs      []*Descriptor
	cccd       CCCD
	cccdGen    uint64
	acked      []byte // last value known to match the peer's; remote only
	ackedPrev  []byte // acked before the last confirmed write
	ackedGen   uint64 // value generation at which acked was confirmed
	ackedC     CCCD
	ackedCPrev CCCD
	ackedCGen  uint64
	whandler   WriteHandler
	valuen     uint16 // set when the server lays out its attributes

	// storage used by other types
	service *Service
}

func newCharacteristic(s *Service, u UUID, props Property, role Role, cfg attrConfig) (*Characteristic, error) {
	if props&^allProperties != 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown property bits 0x%02x", uint8(props&^allProperties))
	}
	if err := s.checkModes(cfg.readPerm, cfg.writePerm); err != nil {
		return nil, err
	}
	v, err := newValue(cfg.maxLen, cfg.fixed, cfg.initial)
	if err != nil {
		return nil, err
	}
	c := &Characteristic{
		uuid:      u,
		props:     props,
		readPerm:  cfg.readPerm,
		writePerm: cfg.writePerm,
		value:     v,
		role:      role,
		service:   s,
	}
	if role == Remote {
		c.acked, c.ackedGen = v.get(), v.generation()
	}
	return c, nil
}

// UUID returns the characteristic's UUID. ok is false if the UUID is not
// known, which happens for remote characteristics whose 128-bit UUID
// could not be resolved.
func (c *Characteristic) UUID() (u UUID, ok bool) {
	return c.uuid, c.uuid.Len() != 0
}

// Properties returns the characteristic's property flags.
func (c *Characteristic) Properties() Property {
	return c.props
}

// ReadPerm returns the security a peer needs to read the value.
func (c *Characteristic) ReadPerm() SecurityMode {
	return c.readPerm
}

// WritePerm returns the security a peer needs to write the value.
func (c *Characteristic) WritePerm() SecurityMode {
	return c.writePerm
}

// Role returns whether the characteristic is local or remote.
func (c *Characteristic) Role() Role {
	return c.role
}

// Service returns the service the characteristic is part of.
func (c *Characteristic) Service() *Service {
	return c.service
}

// MaxLength returns the maximum length of the characteristic's value.
func (c *Characteristic) MaxLength() int {
	return c.value.max
}

// FixedLength reports whether the characteristic's value has a fixed length.
func (c *Characteristic) FixedLength() bool {
	return c.value.fixed
}

// ValueHandle returns the handle of the characteristic's value attribute,
// or 0 if it has none yet.
func (c *Characteristic) ValueHandle() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valuen
}

// Descriptors returns the characteristic's descriptors in the order
// they were added.
func (c *Characteristic) Descriptors() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Descriptor{}, c.descs...)
}

// Value returns a copy of the characteristic's value.
// For remote characteristics this is the cached value.
func (c *Characteristic) Value() []byte {
	return c.value.get()
}

// SetValue replaces the characteristic's value.
//
// For local characteristics, centrals that subscribed to the
// characteristic are notified or indicated with the new value.
//
// For remote characteristics, the characteristic must allow writes.
// The cached value is updated and a write to the peer is queued;
// SetValue does not wait for the peer. If the peer later rejects the
// write, the cached value is reverted and the failure is reported
// through the peer's WriteFailed callback.
//
// SetValue returns an error wrapping ErrLength, and leaves the value
// unchanged, if b does not fit the characteristic.
func (c *Characteristic) SetValue(b []byte) error {
	if c.role == Remote {
		return c.service.peer.writeValue(c, b)
	}
	if _, err := c.value.set(b); err != nil {
		return errors.Wrapf(err, "%s", c)
	}
	if srv := c.service.server; srv != nil {
		srv.valueChanged(c)
	}
	return nil
}

// CCCD returns the subscription state of a remote characteristic.
// ok is false for local characteristics.
func (c *Characteristic) CCCD() (cccd CCCD, ok bool) {
	if c.role != Remote {
		return CCCD{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cccd, true
}

// SetCCCD asks the peer to enable or disable notifications and indications
// for a remote characteristic. The new state replaces the previous one.
// The write to the peer is queued; if the peer rejects it the state is
// reverted and the failure is reported through the peer's WriteFailed
// callback.
//
// SetCCCD returns an error wrapping ErrRole for local characteristics.
func (c *Characteristic) SetCCCD(notify, indicate bool) error {
	if c.role != Remote {
		return errors.Wrapf(ErrRole, "%s: CCCD can only be set on a remote characteristic", c)
	}
	return c.service.peer.setCCCD(c, CCCD{Notify: notify, Indicate: indicate})
}

// AddDescriptor creates a descriptor and appends it to the characteristic's
// descriptors. Descriptors cannot be removed.
//
// It returns an error wrapping ErrInvalidArgument for a malformed UUID or
// invalid security mode, and ErrLength for an initial value that does not
// fit. When FixedLength is set and no initial value is given, the value
// starts zero-filled.
func (c *Characteristic) AddDescriptor(u UUID, opts ...AttrOption) (*Descriptor, error) {
	if err := checkUUID(u); err != nil {
		return nil, err
	}
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	cfg := newAttrConfig(opts)
	if err := c.service.checkModes(cfg.readPerm, cfg.writePerm); err != nil {
		return nil, err
	}
	if c.role == Local {
		if err := c.service.checkMutable(); err != nil {
			return nil, err
		}
	}
	v, err := newValue(cfg.maxLen, cfg.fixed, cfg.initial)
	if err != nil {
		return nil, errors.Wrapf(err, "descriptor %s", u)
	}
	d := &Descriptor{
		uuid:      u,
		readPerm:  cfg.readPerm,
		writePerm: cfg.writePerm,
		value:     v,
		char:      c,
	}
	c.mu.Lock()
	c.descs = append(c.descs, d)
	c.mu.Unlock()
	return d, nil
}

// HandleWrite routes writes from centrals to a local characteristic
// through h before they are stored.
func (c *Characteristic) HandleWrite(h WriteHandler) {
	c.mu.Lock()
	c.whandler = h
	c.mu.Unlock()
}

// HandleWriteFunc calls HandleWrite(WriteHandlerFunc(f)).
func (c *Characteristic) HandleWriteFunc(f func(r Request, data []byte) AttError) {
	c.HandleWrite(WriteHandlerFunc(f))
}

// Refresh reads a remote characteristic's value from the peer and updates
// the cached value. It blocks until the read completes or ctx is done.
func (c *Characteristic) Refresh(ctx context.Context) ([]byte, error) {
	if c.role != Remote {
		return nil, errors.Wrapf(ErrRole, "%s: only remote characteristics can be refreshed", c)
	}
	return c.service.peer.readValue(ctx, c)
}

// Valid reports whether the characteristic can still be used. Remote
// characteristics become invalid when their peer disconnects.
func (c *Characteristic) Valid() bool {
	return c.checkConnected() == nil
}

func (c *Characteristic) checkConnected() error {
	if c.role == Remote && c.service.peer.isClosed() {
		return errors.Wrapf(ErrDisconnected, "%s", c)
	}
	return nil
}

func (c *Characteristic) writeHandler() WriteHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.whandler
}

func (c *Characteristic) String() string {
	if c.uuid.Len() == 0 {
		return "<Characteristic with Unregistered UUID>"
	}
	return fmt.Sprintf("Characteristic(%s)", c.uuid)
}
