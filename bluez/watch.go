package bluez

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	gatt "github.com/XC-/blegatt"
)

// Watch forwards value changes of the characteristics bound to d to p as
// notifications, until ctx is done or the peer disconnects. It returns
// once the signal subscription has ended.
func (d *Driver) Watch(ctx context.Context, p *gatt.Peer) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchInterface(properties),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := d.conn.AddMatchSignal(opts...); err != nil {
		return errors.Wrap(err, "AddMatch PropertiesChanged")
	}
	defer d.conn.RemoveMatchSignal(opts...)

	ch := make(chan *dbus.Signal, 64)
	d.conn.Signal(ch)
	defer d.conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return errors.New("dbus connection closed")
			}
			d.dispatch(p, sig)
		}
	}
}

// dispatch applies a PropertiesChanged signal carrying a new characteristic value.
func (d *Driver) dispatch(p *gatt.Peer, sig *dbus.Signal) {
	if sig.Name != properties+".PropertiesChanged" || len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != gattChar1 {
		return
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	b, ok := changed["Value"].Value().([]byte)
	if !ok {
		return
	}
	c := d.characteristic(sig.Path)
	if c == nil {
		return
	}
	if err := p.HandleNotification(c, b); err != nil {
		d.logger.WithError(err).WithField("path", sig.Path).Warn("notification not applied")
	}
}
