package bluez

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	gatt "github.com/XC-/blegatt"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

type serviceInfo struct {
	path       dbus.ObjectPath
	uuid       gatt.UUID
	start, end uint16
	chars      []charInfo
}

type charInfo struct {
	path   dbus.ObjectPath
	uuid   gatt.UUID
	props  gatt.Property
	handle uint16 // value handle
	value  []byte
	descs  []descInfo
}

type descInfo struct {
	path  dbus.ObjectPath
	uuid  gatt.UUID
	value []byte
}

// Discover reads the GATT database BlueZ resolved for the device object at
// device and records it in p: services, characteristics with their cached
// values, and descriptors other than the CCCD. The characteristics are
// bound to d.
func Discover(ctx context.Context, d *Driver, p *gatt.Peer, device dbus.ObjectPath) error {
	var objects managedObjects
	err := d.conn.Object(bluezBus, "/").CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return errors.Wrap(err, "GetManagedObjects")
	}
	svcs := layout(objects, device, d.logger)
	if len(svcs) == 0 {
		return errors.Errorf("no services resolved for %s", device)
	}
	for _, si := range svcs {
		svc, err := p.AddService(si.uuid, si.start, si.end)
		if err != nil {
			return errors.Wrapf(err, "service %s", si.path)
		}
		for _, ci := range si.chars {
			c, err := svc.AddDiscoveredCharacteristic(ci.uuid, ci.props, ci.handle)
			if err != nil {
				return errors.Wrapf(err, "characteristic %s", ci.path)
			}
			if ci.value != nil {
				if err := p.HandleValue(c, ci.value); err != nil {
					d.logger.WithError(err).WithField("path", ci.path).Warn("cached value ignored")
				}
			}
			for _, di := range ci.descs {
				opts := []gatt.AttrOption{gatt.MaxLength(gatt.MaxAttrLen)}
				if len(di.value) <= gatt.MaxAttrLen {
					opts = append(opts, gatt.InitialValue(di.value))
				}
				if _, err := c.AddDescriptor(di.uuid, opts...); err != nil {
					return errors.Wrapf(err, "descriptor %s", di.path)
				}
			}
			d.Bind(c, ci.path)
		}
	}
	d.logger.WithFields(logrus.Fields{"device": device, "services": len(svcs)}).Info("gatt database discovered")
	return nil
}

// layout arranges the GATT objects below device in handle order.
func layout(objects managedObjects, device dbus.ObjectPath, l logrus.FieldLogger) []serviceInfo {
	prefix := string(device) + "/"
	svcIdx := make(map[dbus.ObjectPath]int)
	var svcs []serviceInfo

	var paths []string
	for p := range objects {
		if strings.HasPrefix(string(p), prefix) {
			paths = append(paths, string(p))
		}
	}
	// BlueZ names objects after their handles, so path order is handle order
	// and services come before their characteristics.
	sort.Strings(paths)

	charIdx := make(map[dbus.ObjectPath][2]int)
	for _, ps := range paths {
		p := dbus.ObjectPath(ps)
		ifaces := objects[p]
		log := l.WithField("path", ps)
		switch {
		case ifaces[gattService1] != nil:
			props := ifaces[gattService1]
			start, _ := parseHandle(p)
			svcIdx[p] = len(svcs)
			svcs = append(svcs, serviceInfo{path: p, uuid: resolveUUID(stringProp(props, "UUID")), start: start})
		case ifaces[gattChar1] != nil:
			props := ifaces[gattChar1]
			si, ok := svcIdx[objectProp(props, "Service")]
			if !ok {
				log.Debug("characteristic without service skipped")
				continue
			}
			decl, _ := parseHandle(p)
			value, _ := props["Value"].Value().([]byte)
			charIdx[p] = [2]int{si, len(svcs[si].chars)}
			svcs[si].chars = append(svcs[si].chars, charInfo{
				path:   p,
				uuid:   resolveUUID(stringProp(props, "UUID")),
				props:  parseFlags(stringsProp(props, "Flags")),
				handle: decl + 1,
				value:  value,
			})
		case ifaces[gattDesc1] != nil:
			props := ifaces[gattDesc1]
			idx, ok := charIdx[objectProp(props, "Characteristic")]
			if !ok {
				log.Debug("descriptor without characteristic skipped")
				continue
			}
			u := resolveUUID(stringProp(props, "UUID"))
			if u.Len() == 0 || u.Equal(gatt.CCCDUUID) {
				continue
			}
			value, _ := props["Value"].Value().([]byte)
			c := &svcs[idx[0]].chars[idx[1]]
			c.descs = append(c.descs, descInfo{path: p, uuid: u, value: value})
		}
	}

	for i := range svcs {
		end := uint16(0xffff)
		if i+1 < len(svcs) && svcs[i+1].start > 0 {
			end = svcs[i+1].start - 1
		}
		svcs[i].end = end
	}
	return svcs
}

// parseHandle returns the handle encoded in a BlueZ object name such as
// ".../service000a" or ".../char000b": the last four hex digits.
func parseHandle(p dbus.ObjectPath) (uint16, error) {
	name := path.Base(string(p))
	if len(name) < 4 {
		return 0, errors.Errorf("no handle in %s", p)
	}
	n, err := strconv.ParseUint(name[len(name)-4:], 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "handle of %s", p)
	}
	return uint16(n), nil
}

const bluetoothBaseUUID = "-0000-1000-8000-00805f9b34fb"

// resolveUUID parses a UUID reported by BlueZ, shortening UUIDs built on
// the Bluetooth base UUID to 16 bits. It returns the zero UUID if s cannot
// be parsed.
func resolveUUID(s string) gatt.UUID {
	s = strings.ToLower(s)
	if len(s) == 36 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, bluetoothBaseUUID) {
		s = s[4:8]
	}
	u, err := gatt.ParseUUID(s)
	if err != nil {
		return gatt.UUID{}
	}
	return u
}

var flagProps = map[string]gatt.Property{
	"broadcast":              gatt.CharBroadcast,
	"read":                   gatt.CharRead,
	"write-without-response": gatt.CharWriteNR,
	"write":                  gatt.CharWrite,
	"notify":                 gatt.CharNotify,
	"indicate":               gatt.CharIndicate,
}

// parseFlags maps BlueZ characteristic flags onto properties. Flags with
// no property bit, such as "encrypt-read", are ignored.
func parseFlags(flags []string) gatt.Property {
	var p gatt.Property
	for _, f := range flags {
		p = p.Union(flagProps[f])
	}
	return p
}

func stringProp(props map[string]dbus.Variant, name string) string {
	s, _ := props[name].Value().(string)
	return s
}

func stringsProp(props map[string]dbus.Variant, name string) []string {
	ss, _ := props[name].Value().([]string)
	return ss
}

func objectProp(props map[string]dbus.Variant, name string) dbus.ObjectPath {
	p, _ := props[name].Value().(dbus.ObjectPath)
	return p
}
