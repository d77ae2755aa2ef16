package gatt

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Driver carries out GATT client operations on a connected peer.
// Calls are made from a single goroutine, one at a time, in the order the
// operations were requested. ctx is cancelled when the peer disconnects.
type Driver interface {
	// ReadValue reads the value of a remote characteristic.
	ReadValue(ctx context.Context, c *Characteristic) ([]byte, error)

	// WriteValue writes the value of a remote characteristic, as a
	// Write Command if noResponse is set and a Write Request otherwise.
	WriteValue(ctx context.Context, c *Characteristic, b []byte, noResponse bool) error

	// WriteCCCD writes the client characteristic configuration of a
	// remote characteristic.
	WriteCCCD(ctx context.Context, c *Characteristic, notify, indicate bool) error
}

// An Op is a kind of operation on a remote characteristic.
type Op int

// Operations reported in a PeerFailure.
const (
	OpWrite Op = iota // value write
	OpCCCD            // CCCD write
	OpRead            // value read
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpCCCD:
		return "cccd"
	case OpRead:
		return "read"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// A PeerFailure reports an operation that the peer did not carry out.
// Err is ErrDisconnected (as cause) if the peer disconnected first.
type PeerFailure struct {
	Characteristic *Characteristic
	Op             Op
	Err            error
}

func (f PeerFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Characteristic, f.Op, f.Err)
}

// An op is a queued outbound operation. An op without a characteristic
// is a flush barrier.
type op struct {
	kind   Op
	char   *Characteristic
	data   []byte
	noResp bool
	cccd   CCCD
	gen    uint64 // value or CCCD generation the op was queued at
	reply  chan result
}

type result struct {
	b   []byte
	err error
}

// A Peer is a connection to a remote GATT server. It owns the services
// discovered on the peer and forwards changes of their cached values to
// the Driver from a single worker goroutine.
type Peer struct {
	driver      Driver
	logger      logrus.FieldLogger
	writeFailed func(PeerFailure)
	notified    func(c *Characteristic, b []byte)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	services []*Service
	queue    []*op
	closed   bool

	kick chan struct{}
	done chan struct{}
}

// A PeerOption configures a Peer.
type PeerOption func(*Peer)

// PeerLogger sets the logger the peer logs to.
func PeerLogger(l logrus.FieldLogger) PeerOption {
	return func(p *Peer) { p.logger = l }
}

// WriteFailed sets a function to be called, from the peer's worker, when
// the peer fails to carry out a queued write or CCCD change. Without it,
// failures are logged.
func WriteFailed(f func(PeerFailure)) PeerOption {
	return func(p *Peer) { p.writeFailed = f }
}

// Notified sets a function to be called when a notification or indication
// from the peer has updated a characteristic's cached value.
func Notified(f func(c *Characteristic, b []byte)) PeerOption {
	return func(p *Peer) { p.notified = f }
}

// NewPeer creates a Peer that carries out operations through d.
func NewPeer(d Driver, opts ...PeerOption) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		driver: d,
		logger: logrus.StandardLogger(),
		ctx:    ctx,
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.loop()
	return p
}

// AddService records a service discovered on the peer, spanning handles
// start to end. u may be the zero UUID if it could not be resolved.
func (p *Peer) AddService(u UUID, start, end uint16) (*Service, error) {
	if u.Len() != 0 {
		if err := checkUUID(u); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.Wrap(ErrDisconnected, "add service")
	}
	s := &Service{uuid: u, role: Remote, peer: p, startn: start, endn: end}
	p.services = append(p.services, s)
	return s, nil
}

// Services returns the services discovered on the peer.
func (p *Peer) Services() []*Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Service{}, p.services...)
}

// CharacteristicByHandle returns the characteristic whose value attribute
// is at handle h, or nil.
func (p *Peer) CharacteristicByHandle(h uint16) *Characteristic {
	for _, s := range p.Services() {
		for _, c := range s.Characteristics() {
			if c.ValueHandle() == h {
				return c
			}
		}
	}
	return nil
}

// HandleNotification applies a notification or indication of c's value
// received from the peer. It is ignored unless c is subscribed.
func (p *Peer) HandleNotification(c *Characteristic, b []byte) error {
	if err := p.owns(c); err != nil {
		return err
	}
	if cccd, _ := c.CCCD(); !cccd.Subscribed() {
		p.logger.WithField("uuid", c.uuid.String()).Debug("unexpected notification dropped")
		return nil
	}
	if err := p.HandleValue(c, b); err != nil {
		return err
	}
	if p.notified != nil {
		p.notified(c, b)
	}
	return nil
}

// HandleValue stores b as the value of c known to the peer, such as a
// value the radio stack read or cached on its own.
func (p *Peer) HandleValue(c *Characteristic, b []byte) error {
	if err := p.owns(c); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	gen, err := c.value.set(b)
	if err != nil {
		return errors.Wrapf(err, "%s", c)
	}
	c.ackedPrev, c.acked, c.ackedGen = c.acked, append([]byte{}, b...), gen
	return nil
}

// ReportFailure tells the peer that the last write or CCCD change of c
// that the driver reported done did not take effect after all, as happens
// with Write Commands. The cached value or CCCD state is reverted to what
// the peer had confirmed before, unless a newer write has been made
// since, and the failure is reported like any other.
//
// It returns an error wrapping ErrRole if c is not one of the peer's
// characteristics, and ErrDisconnected once the peer has disconnected.
func (p *Peer) ReportFailure(c *Characteristic, o Op, err error) error {
	if err := p.owns(c); err != nil {
		return err
	}
	c.mu.Lock()
	switch o {
	case OpWrite:
		c.acked = c.ackedPrev
		if gen, ok, _ := c.value.setAt(c.ackedGen, c.acked); ok {
			c.ackedGen = gen
		}
	case OpCCCD:
		c.ackedC = c.ackedCPrev
		if c.cccdGen == c.ackedCGen {
			c.cccd = c.ackedC
			c.cccdGen++
			c.ackedCGen = c.cccdGen
		}
	}
	c.mu.Unlock()
	p.report(PeerFailure{Characteristic: c, Op: o, Err: err})
	return nil
}

// owns returns an error unless c is a characteristic of the connected peer.
func (p *Peer) owns(c *Characteristic) error {
	if c.role != Remote || c.service.peer != p {
		return errors.Wrapf(ErrRole, "%s does not belong to this peer", c)
	}
	if p.isClosed() {
		return errors.Wrapf(ErrDisconnected, "%s", c)
	}
	return nil
}

// Flush waits until every operation queued so far is done.
func (p *Peer) Flush(ctx context.Context) error {
	_, err := p.call(ctx, &op{})
	return err
}

// Disconnect ends the connection. Queued and in-flight operations fail
// with ErrDisconnected, and the peer's characteristics become invalid.
// Disconnect does not wait; use Done for that.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.signal()
}

// Done returns a channel that is closed once the peer has disconnected
// and every queued operation is resolved.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) writeValue(c *Characteristic, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.Wrapf(ErrDisconnected, "%s", c)
	}
	if !c.props.Writable() {
		return errors.Wrapf(ErrRole, "%s: properties %s do not allow writes", c, c.props)
	}
	gen, err := c.value.set(b)
	if err != nil {
		return errors.Wrapf(err, "%s", c)
	}
	p.enqueue(&op{
		kind:   OpWrite,
		char:   c,
		data:   append([]byte{}, b...),
		noResp: !c.props.Has(CharWrite),
		gen:    gen,
	})
	return nil
}

func (p *Peer) setCCCD(c *Characteristic, cccd CCCD) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.Wrapf(ErrDisconnected, "%s", c)
	}
	c.mu.Lock()
	c.cccd = cccd
	c.cccdGen++
	gen := c.cccdGen
	c.mu.Unlock()
	p.enqueue(&op{kind: OpCCCD, char: c, cccd: cccd, gen: gen})
	return nil
}

func (p *Peer) readValue(ctx context.Context, c *Characteristic) ([]byte, error) {
	return p.call(ctx, &op{kind: OpRead, char: c, gen: c.value.generation()})
}

// call queues o and waits for its result.
func (p *Peer) call(ctx context.Context, o *op) ([]byte, error) {
	o.reply = make(chan result, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.Wrap(ErrDisconnected, "peer")
	}
	p.enqueue(o)
	p.mu.Unlock()
	select {
	case r := <-o.reply:
		return r.b, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue must be called with p.mu held.
func (p *Peer) enqueue(o *op) {
	p.queue = append(p.queue, o)
	p.signal()
}

func (p *Peer) signal() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// next returns the next queued op. It returns false once the peer is
// closed and the queue is drained.
func (p *Peer) next() (*op, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		if p.closed {
			return nil, false
		}
		p.mu.Unlock()
		<-p.kick
		p.mu.Lock()
	}
	o := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return o, true
}

func (p *Peer) loop() {
	defer close(p.done)
	for {
		o, ok := p.next()
		if !ok {
			return
		}
		p.run(o)
	}
}

func (p *Peer) run(o *op) {
	if o.char == nil {
		var err error
		if p.ctx.Err() != nil {
			err = errors.Wrap(ErrDisconnected, "flush")
		}
		o.reply <- result{err: err}
		return
	}
	c := o.char
	var b []byte
	var err error
	if p.ctx.Err() != nil {
		err = errors.Wrapf(ErrDisconnected, "%s", c)
	} else {
		switch o.kind {
		case OpWrite:
			err = p.driver.WriteValue(p.ctx, c, o.data, o.noResp)
		case OpCCCD:
			err = p.driver.WriteCCCD(p.ctx, c, o.cccd.Notify, o.cccd.Indicate)
		case OpRead:
			b, err = p.driver.ReadValue(p.ctx, c)
		}
		if err != nil && p.ctx.Err() != nil {
			err = errors.Wrapf(ErrDisconnected, "%s: %v", c, err)
		}
	}

	switch o.kind {
	case OpRead:
		if err == nil {
			err = p.refreshed(o, b)
		}
		o.reply <- result{b: b, err: err}
	case OpWrite:
		c.mu.Lock()
		if err == nil {
			c.ackedPrev, c.acked, c.ackedGen = c.acked, o.data, o.gen
		} else if gen, ok, _ := c.value.setAt(o.gen, c.acked); ok {
			// Fall back to what the peer last confirmed, unless a newer
			// write is already on its way.
			c.ackedGen = gen
		}
		c.mu.Unlock()
	case OpCCCD:
		c.mu.Lock()
		if err == nil {
			c.ackedCPrev, c.ackedC, c.ackedCGen = c.ackedC, o.cccd, o.gen
		} else if c.cccdGen == o.gen {
			c.cccd = c.ackedC
			c.cccdGen++
			c.ackedCGen = c.cccdGen
		}
		c.mu.Unlock()
	}
	if err != nil && o.kind != OpRead {
		p.report(PeerFailure{Characteristic: c, Op: o.kind, Err: err})
	}
}

// refreshed stores a value read from the peer, unless a write queued
// after the read has already changed the cache.
func (p *Peer) refreshed(o *op, b []byte) error {
	c := o.char
	if err := c.value.check(b); err != nil {
		return errors.Wrapf(err, "%s: peer returned", c)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen, ok, _ := c.value.setAt(o.gen, b); ok {
		c.ackedPrev, c.acked, c.ackedGen = c.acked, append([]byte{}, b...), gen
	}
	return nil
}

func (p *Peer) report(f PeerFailure) {
	if p.writeFailed != nil {
		p.writeFailed(f)
		return
	}
	p.logger.WithFields(logrus.Fields{
		"uuid": f.Characteristic.uuid.String(),
		"op":   f.Op.String(),
	}).WithError(f.Err).Warn("peer operation failed")
}
