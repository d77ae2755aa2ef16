// Package bluez connects a gatt.Peer to a remote GATT server through the
// BlueZ D-Bus API. It discovers the peer's attributes, carries out reads,
// writes and subscriptions, and forwards notifications.
package bluez

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	gatt "github.com/XC-/blegatt"
)

const (
	bluezBus      = "org.bluez"
	gattService1  = "org.bluez.GattService1"
	gattChar1     = "org.bluez.GattCharacteristic1"
	gattDesc1     = "org.bluez.GattDescriptor1"
	objectManager = "org.freedesktop.DBus.ObjectManager"
	properties    = "org.freedesktop.DBus.Properties"
)

// A Driver is a gatt.Driver that talks to BlueZ over D-Bus.
// Characteristics must be bound to their BlueZ object paths, which
// Discover does.
type Driver struct {
	conn   *dbus.Conn
	logger logrus.FieldLogger

	mu    sync.RWMutex
	paths map[*gatt.Characteristic]dbus.ObjectPath
	chars map[dbus.ObjectPath]*gatt.Characteristic
}

// New returns a Driver using conn, usually the system bus.
func New(conn *dbus.Conn, l logrus.FieldLogger) *Driver {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Driver{
		conn:   conn,
		logger: l,
		paths:  make(map[*gatt.Characteristic]dbus.ObjectPath),
		chars:  make(map[dbus.ObjectPath]*gatt.Characteristic),
	}
}

// Bind associates c with the BlueZ characteristic object at path.
func (d *Driver) Bind(c *gatt.Characteristic, path dbus.ObjectPath) {
	d.mu.Lock()
	d.paths[c] = path
	d.chars[path] = c
	d.mu.Unlock()
}

func (d *Driver) object(c *gatt.Characteristic) (dbus.BusObject, error) {
	d.mu.RLock()
	path, ok := d.paths[c]
	d.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(gatt.ErrInvalidArgument, "%s is not bound to a BlueZ object", c)
	}
	return d.conn.Object(bluezBus, path), nil
}

func (d *Driver) characteristic(path dbus.ObjectPath) *gatt.Characteristic {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chars[path]
}

// ReadValue implements gatt.Driver.
func (d *Driver) ReadValue(ctx context.Context, c *gatt.Characteristic) ([]byte, error) {
	obj, err := d.object(c)
	if err != nil {
		return nil, err
	}
	var b []byte
	err = obj.CallWithContext(ctx, gattChar1+".ReadValue", 0, map[string]dbus.Variant{}).Store(&b)
	if err != nil {
		return nil, errors.Wrapf(attError(err), "%s: read", c)
	}
	return b, nil
}

// WriteValue implements gatt.Driver.
func (d *Driver) WriteValue(ctx context.Context, c *gatt.Characteristic, b []byte, noResponse bool) error {
	obj, err := d.object(c)
	if err != nil {
		return err
	}
	typ := "request"
	if noResponse {
		typ = "command"
	}
	call := obj.CallWithContext(ctx, gattChar1+".WriteValue", 0, b, map[string]dbus.Variant{
		"type": dbus.MakeVariant(typ),
	})
	if call.Err != nil {
		return errors.Wrapf(attError(call.Err), "%s: write", c)
	}
	return nil
}

// WriteCCCD implements gatt.Driver. BlueZ picks notifications or
// indications from the characteristic's properties; either flag starts
// the subscription.
func (d *Driver) WriteCCCD(ctx context.Context, c *gatt.Characteristic, notify, indicate bool) error {
	obj, err := d.object(c)
	if err != nil {
		return err
	}
	method := "StopNotify"
	if notify || indicate {
		method = "StartNotify"
	}
	if call := obj.CallWithContext(ctx, gattChar1+"."+method, 0); call.Err != nil {
		return errors.Wrapf(attError(call.Err), "%s: %s", c, method)
	}
	return nil
}

// bluezErrors maps BlueZ D-Bus error names onto ATT error codes.
var bluezErrors = map[string]gatt.AttError{
	"org.bluez.Error.NotPermitted":       gatt.ErrWriteNotPerm,
	"org.bluez.Error.NotAuthorized":      gatt.ErrAuthorization,
	"org.bluez.Error.NotSupported":       gatt.ErrReqNotSupp,
	"org.bluez.Error.InvalidOffset":      gatt.ErrInvalidOffset,
	"org.bluez.Error.InvalidValueLength": gatt.ErrInvalAttrValueLen,
	"org.bluez.Error.Failed":             gatt.ErrUnlikely,
}

// attError returns the ATT error for a BlueZ error, or err itself.
func attError(err error) error {
	var e dbus.Error
	switch v := err.(type) {
	case dbus.Error:
		e = v
	case *dbus.Error:
		e = *v
	default:
		return err
	}
	if code, ok := bluezErrors[e.Name]; ok {
		return code
	}
	return err
}
