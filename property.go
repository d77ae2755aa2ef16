package gatt

import (
	"strings"

	"github.com/pkg/errors"
)

// Property is a bitmask of the operations a characteristic supports.
// Properties describe a characteristic; they do not enforce anything
// by themselves.
type Property uint8

// Do not re-order the bit flags below;
// they are organized as in Bluetooth Core Vol 3, Part G, 3.3.1.1.

// Characteristic property flags.
const (
	CharBroadcast Property = 1 << iota // allowed in advertising packets
	CharRead                           // the characteristic may be read
	CharWriteNR                        // the characteristic may be written to, with no reply
	CharWrite                          // the characteristic may be written to, with a reply
	CharNotify                         // the server notifies the client when the value is set
	CharIndicate                       // the server indicates to the client and waits for a confirmation
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{CharBroadcast, "broadcast"},
	{CharRead, "read"},
	{CharWriteNR, "write_no_response"},
	{CharWrite, "write"},
	{CharNotify, "notify"},
	{CharIndicate, "indicate"},
}

const allProperties = CharBroadcast | CharRead | CharWriteNR | CharWrite | CharNotify | CharIndicate

// Union returns the properties set in p or q.
func (p Property) Union(q Property) Property { return p | q }

// Intersect returns the properties set in both p and q.
func (p Property) Intersect(q Property) Property { return p & q }

// Has reports whether all of the properties in q are set in p.
func (p Property) Has(q Property) bool { return p&q == q }

// Writable reports whether p allows either kind of write.
func (p Property) Writable() bool { return p&(CharWrite|CharWriteNR) != 0 }

// Subscribable reports whether p allows notifications or indications.
func (p Property) Subscribable() bool { return p&(CharNotify|CharIndicate) != 0 }

func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.p != 0 {
			names = append(names, pn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseProperty returns the property flag named s, as used by String.
func ParseProperty(s string) (Property, error) {
	name := strings.ToLower(strings.Replace(s, "-", "_", -1))
	for _, pn := range propertyNames {
		if pn.name == name {
			return pn.p, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown property %q", s)
}
