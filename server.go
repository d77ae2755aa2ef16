package gatt

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errServing = errors.New("cannot change attributes while serving")

// A Server is the local GATT attribute server. It owns the local services,
// lays them out in an attribute table when started, and answers the reads
// and writes that the radio driver receives from connected centrals.
// Services and their attributes must be added before Start.
type Server struct {
	name       string
	logger     logrus.FieldLogger
	validator  ModeValidator
	connect    func(c Conn)
	disconnect func(c Conn)

	mu       sync.RWMutex
	services []*Service
	handles  *handleRange
	serving  bool
	conns    map[Conn]*connState
}

// connState holds what the server remembers about a connected central:
// its subscriptions, one per subscribable characteristic.
type connState struct {
	mu      sync.Mutex
	subs    map[*Characteristic]*notifier
	stopped bool
}

// NewServer creates a Server with the specified options.
// See also Server.Option.
// See http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis for more discussion.
func NewServer(opts ...option) *Server {
	s := &Server{
		logger: logrus.StandardLogger(),
		conns:  make(map[Conn]*connState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddService registers a new Service with the server.
// All services must be added before starting the server.
func (s *Server) AddService(u UUID) (*Service, error) {
	if err := checkUUID(u); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving {
		return nil, errServing
	}
	svc := &Service{uuid: u, role: Local, server: s}
	s.services = append(s.services, svc)
	return svc, nil
}

// Services returns the services added to the server, without the
// default GAP and GATT services.
func (s *Server) Services() []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Service{}, s.services...)
}

// Start lays out the attribute table. The GAP and GATT services come first,
// then the added services in order; handles start at 1.
// After Start no services, characteristics or descriptors can be added.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving {
		return errors.New("a server is already running")
	}
	svcs, err := s.defaultServices()
	if err != nil {
		return err
	}
	s.handles = generateHandles(append(svcs, s.services...), uint16(1)) // ble handles start at 1
	s.serving = true
	s.logger.WithField("attributes", len(s.handles.hh)).Info("gatt server started")
	return nil
}

// Close stops the server and all pending value updates.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.serving {
		return errors.New("not serving")
	}
	for c, st := range s.conns {
		st.stop()
		delete(s.conns, c)
	}
	s.serving = false
	return nil
}

func (s *Server) defaultServices() ([]*Service, error) {
	gap := &Service{uuid: gattAttrGAPUUID, role: Local, server: s}
	name, err := newCharacteristic(gap, gattAttrDeviceNameUUID, CharRead, Local, newAttrConfig([]AttrOption{
		WritePerm(NoAccess), MaxLength(MaxVarAttrLen), InitialValue([]byte(s.name)),
	}))
	if err != nil {
		return nil, errors.Wrap(err, "device name")
	}
	appearance, err := newCharacteristic(gap, gattAttrAppearanceUUID, CharRead, Local, newAttrConfig([]AttrOption{
		WritePerm(NoAccess), MaxLength(2), FixedLength(true), InitialValue(gapCharAppearanceGenericComputer),
	}))
	if err != nil {
		return nil, errors.Wrap(err, "appearance")
	}
	gap.chars = []*Characteristic{name, appearance}

	gatt := &Service{uuid: gattAttrGATTUUID, role: Local, server: s}
	return []*Service{gap, gatt}, nil
}

func (s *Server) isServing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving
}

func (s *Server) handle(n uint16) (handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.serving {
		return handle{}, false
	}
	return s.handles.At(n)
}

// An Attribute describes one entry of the server's attribute table.
type Attribute struct {
	Handle uint16
	Type   UUID   // attribute type, e.g. 0x2800 for a primary service
	Kind   string // service, characteristic, value, cccd or descriptor
	Owner  string // the service, characteristic or descriptor it belongs to
	Value  []byte // current value; nil for CCCDs, whose value is per connection
}

// Attributes returns the attribute table. It is empty until Start.
func (s *Server) Attributes() []Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.serving {
		return nil
	}
	hh := s.handles.Subrange(1, 0xFFFF)
	aa := make([]Attribute, 0, len(hh))
	for _, h := range hh {
		a := Attribute{Handle: h.n, Type: h.uuid, Kind: h.typ.String()}
		switch at := h.attr.(type) {
		case *Service:
			a.Owner, a.Value = at.String(), h.value
		case *Characteristic:
			a.Owner = at.String()
			switch h.typ {
			case typCharacteristic:
				a.Value = h.value
			case typCharacteristicValue:
				a.Value = at.Value()
			}
		case *Descriptor:
			a.Owner, a.Value = at.String(), at.Value()
		}
		aa = append(aa, a)
	}
	return aa
}

// Connected tells the server that central c connected. It must be called
// before the server sees reads or writes from c; CCCD writes from unknown
// connections are rejected.
func (s *Server) Connected(c Conn) {
	s.mu.Lock()
	if _, ok := s.conns[c]; !ok {
		s.conns[c] = &connState{subs: make(map[*Characteristic]*notifier)}
	}
	s.mu.Unlock()
	s.logger.WithField("addr", c.RemoteAddr().String()).Debug("central connected")
	if s.connect != nil {
		s.connect(c)
	}
}

// Disconnected tells the server that central c disconnected.
// Its subscriptions end.
func (s *Server) Disconnected(c Conn) {
	s.mu.Lock()
	st, ok := s.conns[c]
	delete(s.conns, c)
	s.mu.Unlock()
	if ok {
		st.stop()
	}
	s.logger.WithField("addr", c.RemoteAddr().String()).Debug("central disconnected")
	if s.disconnect != nil {
		s.disconnect(c)
	}
}

// state returns the state of connection c, or nil if c is unknown.
func (s *Server) state(c Conn) *connState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[c]
}

// Read answers a read of handle h at offset from central c. It returns at
// most ATT_MTU-1 bytes. Errors are AttErrors, ready to be sent back.
func (s *Server) Read(c Conn, h uint16, offset int) ([]byte, error) {
	hd, ok := s.handle(h)
	if !ok {
		return nil, ErrInvalidHandle
	}
	var v []byte
	switch hd.typ {
	case typService, typCharacteristic:
		v = hd.value
	case typCharacteristicValue:
		char := hd.attr.(*Characteristic)
		if !char.props.Has(CharRead) {
			return nil, ErrReadNotPerm
		}
		if e := char.readPerm.PermitsRead(c.Security()); e != ErrSuccess {
			return nil, e
		}
		v = char.Value()
	case typCCCD:
		var cccd CCCD
		if st := s.state(c); st != nil {
			cccd = st.cccd(hd.attr.(*Characteristic))
		}
		v = cccd.Bytes()
	case typDescriptor:
		d := hd.attr.(*Descriptor)
		if e := d.readPerm.PermitsRead(c.Security()); e != ErrSuccess {
			return nil, e
		}
		v = d.Value()
	}
	if offset < 0 || offset > len(v) {
		return nil, ErrInvalidOffset
	}
	v = v[offset:]
	if max := c.MTU() - 1; max >= 0 && len(v) > max {
		v = v[:max]
	}
	return v, nil
}

// Write applies a write of data to handle h from central c. noResponse
// tells a Write Command from a Write Request. Errors are AttErrors, ready
// to be sent back; the attribute is unchanged on error.
func (s *Server) Write(c Conn, h uint16, data []byte, noResponse bool) error {
	hd, ok := s.handle(h)
	if !ok {
		return ErrInvalidHandle
	}
	log := s.logger.WithField("handle", h)
	switch hd.typ {
	case typCharacteristicValue:
		char := hd.attr.(*Characteristic)
		need := CharWrite
		if noResponse {
			need = CharWriteNR
		}
		if !char.props.Has(need) {
			return ErrWriteNotPerm
		}
		if e := char.writePerm.PermitsWrite(c.Security()); e != ErrSuccess {
			return e
		}
		if err := char.value.check(data); err != nil {
			return attErrorFor(err)
		}
		if wh := char.writeHandler(); wh != nil {
			if st := wh.ServeWrite(Request{Conn: c, Service: char.service, Characteristic: char}, data); st != ErrSuccess {
				return st
			}
		}
		if err := char.SetValue(data); err != nil {
			log.WithError(err).Debug("write rejected")
			return attErrorFor(err)
		}
		return nil
	case typCCCD:
		char := hd.attr.(*Characteristic)
		cccd, err := ParseCCCD(data)
		if err != nil {
			return attErrorFor(err)
		}
		if (cccd.Notify && !char.props.Has(CharNotify)) || (cccd.Indicate && !char.props.Has(CharIndicate)) {
			return ErrCCCDImproper
		}
		st := s.state(c)
		if st == nil {
			log.Warn("CCCD write from unknown connection")
			return ErrUnlikely
		}
		st.subscribe(c, char, cccd, s.logger)
		log.WithField("cccd", cccd).Debug("subscription changed")
		return nil
	case typDescriptor:
		d := hd.attr.(*Descriptor)
		if e := d.writePerm.PermitsWrite(c.Security()); e != ErrSuccess {
			return e
		}
		if err := d.SetValue(data); err != nil {
			log.WithError(err).Debug("write rejected")
			return attErrorFor(err)
		}
		return nil
	}
	return ErrWriteNotPerm
}

// valueChanged sends the value of char to every central subscribed to it.
func (s *Server) valueChanged(char *Characteristic) {
	if !char.props.Subscribable() {
		return
	}
	s.mu.RLock()
	states := make([]*connState, 0, len(s.conns))
	for _, st := range s.conns {
		states = append(states, st)
	}
	s.mu.RUnlock()
	b := char.Value()
	for _, st := range states {
		st.mu.Lock()
		n := st.subs[char]
		st.mu.Unlock()
		if n != nil {
			n.send(b)
		}
	}
}

func (st *connState) cccd(char *Characteristic) CCCD {
	st.mu.Lock()
	defer st.mu.Unlock()
	if n := st.subs[char]; n != nil {
		return n.state()
	}
	return CCCD{}
}

func (st *connState) subscribe(c Conn, char *Characteristic, cccd CCCD, l logrus.FieldLogger) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stopped {
		return
	}
	n := st.subs[char]
	switch {
	case !cccd.Subscribed() && n != nil:
		n.stop()
		delete(st.subs, char)
	case cccd.Subscribed() && n != nil:
		n.setCCCD(cccd)
	case cccd.Subscribed():
		st.subs[char] = newNotifier(c, char, cccd, l)
	}
}

func (st *connState) stop() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stopped = true
	for char, n := range st.subs {
		n.stop()
		delete(st.subs, char)
	}
}

type option func(*Server) option

// Option sets the options specified.
// It returns an option to restore the last arg's previous value.
// See http://commandcenter.blogspot.com.au/2014/01/self-referential-functions-and-design.html for more discussion.
func (s *Server) Option(opts ...option) (prev option) {
	for _, opt := range opts {
		prev = opt(s)
	}
	return prev
}

// Name sets the device name, exposed via the Generic Access Service (0x1800).
// Name has no effect once the server is started.
func Name(n string) option {
	return func(s *Server) option {
		prev := s.name
		s.name = n
		return Name(prev)
	}
}

// Logger sets the logger the server and its notifiers log to.
func Logger(l logrus.FieldLogger) option {
	return func(s *Server) option {
		prev := s.logger
		s.logger = l
		return Logger(prev)
	}
}

// Validator restricts the security modes of local attributes to those
// v accepts, for radio stacks that do not support every mode.
func Validator(v ModeValidator) option {
	return func(s *Server) option {
		prev := s.validator
		s.validator = v
		return Validator(prev)
	}
}

// Connect sets a function to be called when a central connects to the server.
func Connect(f func(c Conn)) option {
	return func(s *Server) option {
		prev := s.connect
		s.connect = f
		return Connect(prev)
	}
}

// Disconnect sets a function to be called when a central disconnects from the server.
func Disconnect(f func(c Conn)) option {
	return func(s *Server) option {
		prev := s.disconnect
		s.disconnect = f
		return Disconnect(prev)
	}
}
