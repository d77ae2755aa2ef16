// Package profile loads descriptions of a local GATT database from YAML
// and builds them on a gatt.Server.
//
// A profile looks like this:
//
//	name: gopher
//	services:
//	  - uuid: 180f
//	    characteristics:
//	      - uuid: 2a19
//	        properties: [read, notify]
//	        write: no_access
//	        max_length: 1
//	        fixed_length: true
//	        value: {hex: "64"}
//	        descriptors:
//	          - uuid: 2901
//	            value: {string: Battery level}
//
// Security modes and properties use the names printed by
// gatt.SecurityMode and gatt.Property; omitted modes are open.
package profile

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	gatt "github.com/XC-/blegatt"
)

// A Profile describes the services of a local GATT server.
type Profile struct {
	Name     string    `yaml:"name,omitempty"`
	Services []Service `yaml:"services"`
}

// A Service describes a primary service.
type Service struct {
	UUID            string           `yaml:"uuid"`
	Characteristics []Characteristic `yaml:"characteristics,omitempty"`
}

// An Attribute holds the settings characteristics and descriptors share.
// A nil MaxLength means the default of gatt.DefaultMaxLen.
type Attribute struct {
	UUID        string `yaml:"uuid"`
	Read        string `yaml:"read,omitempty"`
	Write       string `yaml:"write,omitempty"`
	MaxLength   *int   `yaml:"max_length,omitempty"`
	FixedLength bool   `yaml:"fixed_length,omitempty"`
	Value       *Value `yaml:"value,omitempty"`
}

// A Characteristic describes a characteristic and its descriptors.
type Characteristic struct {
	Attribute   `yaml:",inline"`
	Properties  []string    `yaml:"properties"`
	Descriptors []Attribute `yaml:"descriptors,omitempty"`
}

// A Value is an initial attribute value, given as hex or as a string.
type Value struct {
	Hex    string `yaml:"hex,omitempty"`
	String string `yaml:"string,omitempty"`
}

// Bytes returns the value's bytes.
func (v *Value) Bytes() ([]byte, error) {
	if v.Hex != "" && v.String != "" {
		return nil, errors.Wrap(gatt.ErrInvalidArgument, "value has both hex and string")
	}
	if v.Hex != "" {
		b, err := hex.DecodeString(v.Hex)
		if err != nil {
			return nil, errors.Wrapf(gatt.ErrInvalidArgument, "hex value: %v", err)
		}
		return b, nil
	}
	return []byte(v.String), nil
}

// Load decodes a profile. Unknown keys are errors.
func Load(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)
	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decode profile")
	}
	return &p, nil
}

// LoadFile decodes the profile in the named file.
func LoadFile(name string) (*Profile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Load(f)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return p, nil
}

// Build adds the profile's services to srv, which must not be started.
// Errors name the offending entry, e.g. "services[0].characteristics[2]".
func (p *Profile) Build(srv *gatt.Server) error {
	if p.Name != "" {
		srv.Option(gatt.Name(p.Name))
	}
	for i, s := range p.Services {
		at := fmt.Sprintf("services[%d]", i)
		u, err := gatt.ParseUUID(s.UUID)
		if err != nil {
			return errors.Wrap(err, at)
		}
		svc, err := srv.AddService(u)
		if err != nil {
			return errors.Wrap(err, at)
		}
		for j, c := range s.Characteristics {
			if err := c.build(svc); err != nil {
				return errors.Wrapf(err, "%s.characteristics[%d]", at, j)
			}
		}
	}
	return nil
}

func (c *Characteristic) build(svc *gatt.Service) error {
	u, opts, err := c.Attribute.options()
	if err != nil {
		return err
	}
	var props gatt.Property
	for _, name := range c.Properties {
		prop, err := gatt.ParseProperty(name)
		if err != nil {
			return err
		}
		props = props.Union(prop)
	}
	char, err := svc.AddCharacteristic(u, props, opts...)
	if err != nil {
		return err
	}
	for k, d := range c.Descriptors {
		u, opts, err := d.options()
		if err == nil {
			_, err = char.AddDescriptor(u, opts...)
		}
		if err != nil {
			return errors.Wrapf(err, "descriptors[%d]", k)
		}
	}
	return nil
}

func (a *Attribute) options() (gatt.UUID, []gatt.AttrOption, error) {
	u, err := gatt.ParseUUID(a.UUID)
	if err != nil {
		return gatt.UUID{}, nil, err
	}
	var opts []gatt.AttrOption
	if a.Read != "" {
		m, err := gatt.ParseSecurityMode(a.Read)
		if err != nil {
			return gatt.UUID{}, nil, errors.Wrap(err, "read")
		}
		opts = append(opts, gatt.ReadPerm(m))
	}
	if a.Write != "" {
		m, err := gatt.ParseSecurityMode(a.Write)
		if err != nil {
			return gatt.UUID{}, nil, errors.Wrap(err, "write")
		}
		opts = append(opts, gatt.WritePerm(m))
	}
	if a.MaxLength != nil {
		opts = append(opts, gatt.MaxLength(*a.MaxLength))
	}
	if a.FixedLength {
		opts = append(opts, gatt.FixedLength(true))
	}
	if a.Value != nil {
		b, err := a.Value.Bytes()
		if err != nil {
			return gatt.UUID{}, nil, err
		}
		opts = append(opts, gatt.InitialValue(b))
	}
	return u, opts, nil
}
