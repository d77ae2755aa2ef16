package gatt

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// A Service is a BLE service. A local service is created with
// Server.AddService and owned by the server; a remote service is created
// during discovery with Peer.AddService and owned by the peer.
// A service owns its characteristics.
type Service struct {
	uuid UUID
	role Role

	mu    sync.RWMutex
	chars []*Characteristic

	startn uint16 // handle range
	endn   uint16

	// back-references; exactly one is set
	server *Server
	peer   *Peer
}

// AddCharacteristic adds a local characteristic to a local service.
// Characteristics must be added before the server is started.
//
// It returns an error wrapping ErrInvalidArgument for a malformed UUID,
// unknown property bits or an invalid security mode, ErrLength for an
// initial value that does not fit, and ErrRole if s is a remote service.
func (s *Service) AddCharacteristic(u UUID, props Property, opts ...AttrOption) (*Characteristic, error) {
	if s.role != Local {
		return nil, errors.Wrapf(ErrRole, "service %s: characteristics of a remote service are discovered, not added", s.uuid)
	}
	if err := checkUUID(u); err != nil {
		return nil, err
	}
	if err := s.checkMutable(); err != nil {
		return nil, err
	}
	c, err := newCharacteristic(s, u, props, Local, newAttrConfig(opts))
	if err != nil {
		return nil, errors.Wrapf(err, "characteristic %s", u)
	}
	s.mu.Lock()
	s.chars = append(s.chars, c)
	s.mu.Unlock()
	return c, nil
}

// AddDiscoveredCharacteristic records a characteristic discovered on the
// peer in a remote service. u may be the zero UUID if the characteristic's
// UUID could not be resolved. The cached value is variable length, up to
// MaxAttrLen bytes, and starts empty; the CCCD state starts disabled.
func (s *Service) AddDiscoveredCharacteristic(u UUID, props Property, valueHandle uint16) (*Characteristic, error) {
	if s.role != Remote {
		return nil, errors.Wrapf(ErrRole, "service %s: discovered characteristics belong to remote services", s.uuid)
	}
	if u.Len() != 0 {
		if err := checkUUID(u); err != nil {
			return nil, err
		}
	}
	if s.peer.isClosed() {
		return nil, errors.Wrapf(ErrDisconnected, "service %s", s.uuid)
	}
	c, err := newCharacteristic(s, u, props, Remote, newAttrConfig([]AttrOption{MaxLength(MaxAttrLen)}))
	if err != nil {
		return nil, err
	}
	c.valuen = valueHandle
	s.mu.Lock()
	s.chars = append(s.chars, c)
	s.mu.Unlock()
	return c, nil
}

// UUID returns the service's UUID.
func (s *Service) UUID() UUID {
	return s.uuid
}

// Role returns whether the service is local or remote.
func (s *Service) Role() Role {
	return s.role
}

// Characteristics returns the service's characteristics in the order they
// were added.
func (s *Service) Characteristics() []*Characteristic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Characteristic{}, s.chars...)
}

// Handles returns the service's handle range, or zeros if it has none yet.
func (s *Service) Handles() (start, end uint16) {
	return s.startn, s.endn
}

func (s *Service) String() string {
	return fmt.Sprintf("Service(%s)", s.uuid)
}

// checkModes validates the security modes of a new attribute of s.
func (s *Service) checkModes(modes ...SecurityMode) error {
	var v ModeValidator
	if s.server != nil {
		v = s.server.validator
	}
	for _, m := range modes {
		if err := CheckSecurityMode(m); err != nil {
			return err
		}
		if v != nil && !v.ValidSecurityMode(m) {
			return errors.Wrapf(ErrInvalidArgument, "security mode %s is not supported", m)
		}
	}
	return nil
}

// checkMutable returns an error if the attribute layout of s is frozen.
func (s *Service) checkMutable() error {
	if s.server != nil && s.server.isServing() {
		return errServing
	}
	return nil
}

func (s *Service) generateHandles(n uint16) (uint16, []handle) {
	h := handle{
		typ:    typService,
		n:      n,
		uuid:   gattAttrPrimaryServiceUUID,
		attr:   s,
		startn: n,
		value:  s.uuid.Bytes(),
		// endn set later
	}
	handles := []handle{h}

	for _, char := range s.Characteristics() {
		n++
		var hh []handle
		n, hh = char.generateHandles(n)
		handles = append(handles, hh...)
	}

	s.startn, s.endn = handles[0].startn, n
	handles[0].endn = n
	n++
	return n, handles
}
