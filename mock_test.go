package gatt

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDriver struct{ mock.Mock }

func (m *mockDriver) ReadValue(ctx context.Context, c *Characteristic) ([]byte, error) {
	args := m.Called(ctx, c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockDriver) WriteValue(ctx context.Context, c *Characteristic, b []byte, noResponse bool) error {
	return m.Called(ctx, c, b, noResponse).Error(0)
}

func (m *mockDriver) WriteCCCD(ctx context.Context, c *Characteristic, notify, indicate bool) error {
	return m.Called(ctx, c, notify, indicate).Error(0)
}

// An update is a notification or indication sent on a fakeConn.
type update struct {
	h        uint16
	data     []byte
	indicate bool
}

type fakeConn struct {
	mtu int
	sec LinkSecurity

	updates chan update
	mu      sync.Mutex
	closed  bool
}

func newFakeConn(mtu int, sec LinkSecurity) *fakeConn {
	return &fakeConn{mtu: mtu, sec: sec, updates: make(chan update, 16)}
}

func (c *fakeConn) LocalAddr() BDAddr {
	return BDAddr{net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}}
}

func (c *fakeConn) RemoteAddr() BDAddr {
	return BDAddr{net.HardwareAddr{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) MTU() int               { return c.mtu }
func (c *fakeConn) Security() LinkSecurity { return c.sec }

func (c *fakeConn) Notify(h uint16, data []byte) error {
	c.updates <- update{h: h, data: append([]byte{}, data...)}
	return nil
}

func (c *fakeConn) Indicate(h uint16, data []byte) error {
	c.updates <- update{h: h, data: append([]byte{}, data...), indicate: true}
	return nil
}

// newTestLogger returns a logger that records entries instead of printing them.
func newTestLogger() (*logrus.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

// newRemote returns a peer driven by a mock driver, and one remote service.
func newRemote(t *testing.T, opts ...PeerOption) (*Peer, *Service, *mockDriver) {
	d := &mockDriver{}
	l, _ := newTestLogger()
	p := NewPeer(d, append([]PeerOption{PeerLogger(l)}, opts...)...)
	svc, err := p.AddService(MustParseUUID("09fc95c0-c111-11e3-9904-0002a5d5c51b"), 1, 20)
	require.NoError(t, err)
	return p, svc, d
}
