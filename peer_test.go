package gatt

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("att: write not permitted")

func failures() (chan PeerFailure, PeerOption) {
	ch := make(chan PeerFailure, 16)
	return ch, WriteFailed(func(f PeerFailure) { ch <- f })
}

func TestPeerWrite(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharRead|CharWrite, 3)
	require.NoError(t, err)
	d.On("WriteValue", mock.Anything, c, []byte("hi"), false).Return(nil).Once()

	require.NoError(t, c.SetValue([]byte("hi")))
	assert.Equal(t, []byte("hi"), c.Value())
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []byte("hi"), c.Value())
	d.AssertExpectations(t)
}

func TestPeerWriteNoResponse(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWriteNR, 3)
	require.NoError(t, err)
	d.On("WriteValue", mock.Anything, c, []byte{1}, true).Return(nil).Once()

	require.NoError(t, c.SetValue([]byte{1}))
	require.NoError(t, p.Flush(context.Background()))
	d.AssertExpectations(t)
}

func TestPeerWriteTooLong(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 3)
	require.NoError(t, err)

	err = c.SetValue(make([]byte, MaxAttrLen+1))
	assert.Equal(t, ErrLength, errors.Cause(err))
	require.NoError(t, p.Flush(context.Background()))
	d.AssertNotCalled(t, "WriteValue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPeerWriteFailureReverts(t *testing.T) {
	ch, opt := failures()
	p, svc, d := newRemote(t, opt)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 3)
	require.NoError(t, err)
	d.On("WriteValue", mock.Anything, c, []byte("ok"), false).Return(nil).Once()
	d.On("WriteValue", mock.Anything, c, []byte("bad"), false).Return(errRejected).Once()

	require.NoError(t, c.SetValue([]byte("ok")))
	require.NoError(t, c.SetValue([]byte("bad")))
	assert.Equal(t, []byte("bad"), c.Value())
	require.NoError(t, p.Flush(context.Background()))

	assert.Equal(t, []byte("ok"), c.Value())
	require.Len(t, ch, 1)
	f := <-ch
	assert.Equal(t, c, f.Characteristic)
	assert.Equal(t, OpWrite, f.Op)
	assert.Equal(t, errRejected, f.Err)
	assert.Contains(t, f.Error(), "write")
}

func TestPeerFailureKeepsNewerWrite(t *testing.T) {
	ch, opt := failures()
	p, svc, d := newRemote(t, opt)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 3)
	require.NoError(t, err)
	d.On("WriteValue", mock.Anything, c, []byte("a"), false).Return(errRejected).Once()
	d.On("WriteValue", mock.Anything, c, []byte("b"), false).Return(nil).Once()

	require.NoError(t, c.SetValue([]byte("a")))
	require.NoError(t, c.SetValue([]byte("b")))
	require.NoError(t, p.Flush(context.Background()))

	assert.Equal(t, []byte("b"), c.Value())
	require.Len(t, ch, 1)
	assert.Equal(t, OpWrite, (<-ch).Op)
}

func TestPeerFailureLogged(t *testing.T) {
	d := &mockDriver{}
	l, hook := newTestLogger()
	p := NewPeer(d, PeerLogger(l))
	svc, err := p.AddService(testSvcUUID, 1, 10)
	require.NoError(t, err)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharNotify, 3)
	require.NoError(t, err)
	d.On("WriteCCCD", mock.Anything, c, true, false).Return(errRejected).Once()

	require.NoError(t, c.SetCCCD(true, false))
	require.NoError(t, p.Flush(context.Background()))

	cccd, _ := c.CCCD()
	assert.Equal(t, CCCD{}, cccd)
	e := hook.LastEntry()
	require.NotNil(t, e)
	assert.Equal(t, logrus.WarnLevel, e.Level)
	assert.Equal(t, "cccd", e.Data["op"])
	assert.Equal(t, errRejected, e.Data[logrus.ErrorKey])
}

func TestPeerReportFailure(t *testing.T) {
	ch, opt := failures()
	p, svc, d := newRemote(t, opt)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWriteNR, 3)
	require.NoError(t, err)
	d.On("WriteValue", mock.Anything, c, mock.Anything, true).Return(nil)

	require.NoError(t, c.SetValue([]byte("a")))
	require.NoError(t, c.SetValue([]byte("b")))
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []byte("b"), c.Value())

	require.NoError(t, p.ReportFailure(c, OpWrite, errRejected))
	assert.Equal(t, []byte("a"), c.Value())
	require.Len(t, ch, 1)
	assert.Equal(t, errRejected, (<-ch).Err)
}

func TestPeerReportFailureKeepsPendingWrite(t *testing.T) {
	ch, opt := failures()
	p, svc, d := newRemote(t, opt)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 3)
	require.NoError(t, err)
	started, release := make(chan struct{}), make(chan struct{})
	d.On("WriteValue", mock.Anything, c, []byte("w1"), false).Return(nil).Once()
	d.On("WriteValue", mock.Anything, c, []byte("w2"), false).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(nil).Once()

	require.NoError(t, c.SetValue([]byte("w1")))
	require.NoError(t, p.Flush(context.Background()))
	require.NoError(t, c.SetValue([]byte("w2")))
	<-started

	// The failed write is older than the one in flight.
	require.NoError(t, p.ReportFailure(c, OpWrite, errRejected))
	assert.Equal(t, []byte("w2"), c.Value())

	close(release)
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []byte("w2"), c.Value())
	require.Len(t, ch, 1)
	assert.Equal(t, OpWrite, (<-ch).Op)
}

func TestPeerReportFailureKeepsPendingCCCD(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharNotify|CharIndicate, 3)
	require.NoError(t, err)
	started, release := make(chan struct{}), make(chan struct{})
	d.On("WriteCCCD", mock.Anything, c, true, false).Return(nil).Once()
	d.On("WriteCCCD", mock.Anything, c, false, true).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(nil).Once()

	require.NoError(t, c.SetCCCD(true, false))
	require.NoError(t, p.Flush(context.Background()))
	require.NoError(t, c.SetCCCD(false, true))
	<-started

	require.NoError(t, p.ReportFailure(c, OpCCCD, errRejected))
	cccd, _ := c.CCCD()
	assert.Equal(t, CCCD{Indicate: true}, cccd)

	close(release)
	require.NoError(t, p.Flush(context.Background()))
	cccd, _ = c.CCCD()
	assert.Equal(t, CCCD{Indicate: true}, cccd)

	// With nothing pending the state falls back to what the peer had
	// before the last confirmed change; the first one was reported failed.
	require.NoError(t, p.ReportFailure(c, OpCCCD, errRejected))
	cccd, _ = c.CCCD()
	assert.Equal(t, CCCD{}, cccd)
}

func TestPeerReportFailureOwnership(t *testing.T) {
	ch, opt := failures()
	p, _, _ := newRemote(t, opt)

	_, svc := newLocalService(t)
	local, err := svc.AddCharacteristic(testCharUUID, CharRead|CharWrite, InitialValue([]byte("keep")))
	require.NoError(t, err)
	assert.Equal(t, ErrRole, errors.Cause(p.ReportFailure(local, OpWrite, errRejected)))
	assert.Equal(t, []byte("keep"), local.Value())

	_, otherSvc, _ := newRemote(t)
	other, err := otherSvc.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 3)
	require.NoError(t, err)
	assert.Equal(t, ErrRole, errors.Cause(p.ReportFailure(other, OpWrite, errRejected)))
	assert.Equal(t, ErrRole, errors.Cause(p.HandleValue(other, []byte{1})))
	assert.Len(t, ch, 0)

	svc2, err := p.AddService(testSvcUUID, 30, 40)
	require.NoError(t, err)
	c, err := svc2.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 32)
	require.NoError(t, err)
	p.Disconnect()
	<-p.Done()
	assert.Equal(t, ErrDisconnected, errors.Cause(p.ReportFailure(c, OpWrite, errRejected)))
	assert.Len(t, ch, 0)
}

func TestPeerNotificationRacesWrites(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWrite|CharNotify, 3)
	require.NoError(t, err)
	d.On("WriteCCCD", mock.Anything, c, true, false).Return(nil).Once()
	d.On("WriteValue", mock.Anything, c, mock.Anything, false).Return(nil)
	require.NoError(t, c.SetCCCD(true, false))
	require.NoError(t, p.Flush(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		fill := bytes.Repeat([]byte{byte(i + 1)}, 64)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					assert.NoError(t, c.SetValue(fill))
				} else {
					assert.NoError(t, p.HandleNotification(c, fill))
				}
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		b := c.Value()
		if len(b) != 0 && !bytes.Equal(b, bytes.Repeat(b[:1], len(b))) {
			t.Fatalf("torn value %x", b)
		}
		select {
		case <-done:
			require.NoError(t, p.Flush(context.Background()))
			assert.Len(t, c.Value(), 64)
			return
		default:
		}
	}
}

func TestPeerRefresh(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharRead, 3)
	require.NoError(t, err)
	d.On("ReadValue", mock.Anything, c).Return([]byte("abc"), nil).Once()

	b, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
	assert.Equal(t, []byte("abc"), c.Value())

	d.On("ReadValue", mock.Anything, c).Return(nil, errRejected).Once()
	_, err = c.Refresh(context.Background())
	assert.Equal(t, errRejected, err)
	assert.Equal(t, []byte("abc"), c.Value())

	d.On("ReadValue", mock.Anything, c).Return(make([]byte, MaxAttrLen+1), nil).Once()
	_, err = c.Refresh(context.Background())
	assert.Equal(t, ErrLength, errors.Cause(err))
	require.NoError(t, p.Flush(context.Background()))
}

func TestPeerNotification(t *testing.T) {
	got := make(chan []byte, 1)
	p, svc, d := newRemote(t, Notified(func(c *Characteristic, b []byte) { got <- b }))
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharNotify, 7)
	require.NoError(t, err)
	require.Equal(t, c, p.CharacteristicByHandle(7))
	require.Nil(t, p.CharacteristicByHandle(8))

	// Not subscribed yet.
	require.NoError(t, p.HandleNotification(c, []byte{1}))
	assert.Empty(t, c.Value())
	assert.Len(t, got, 0)

	d.On("WriteCCCD", mock.Anything, c, true, false).Return(nil).Once()
	require.NoError(t, c.SetCCCD(true, false))
	require.NoError(t, p.Flush(context.Background()))

	require.NoError(t, p.HandleNotification(c, []byte{2}))
	assert.Equal(t, []byte{2}, c.Value())
	assert.Equal(t, []byte{2}, <-got)
}

func TestPeerDisconnect(t *testing.T) {
	ch, opt := failures()
	p, svc, d := newRemote(t, opt)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharRead|CharWrite|CharNotify, 3)
	require.NoError(t, err)
	desc, err := c.AddDescriptor(UserDescriptionUUID, MaxLength(MaxAttrLen))
	require.NoError(t, err)

	started := make(chan struct{})
	d.On("WriteValue", mock.Anything, c, []byte("first"), false).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(errors.New("link lost")).Once()

	require.NoError(t, c.SetValue([]byte("first")))
	<-started
	require.NoError(t, c.SetValue([]byte("second")))

	p.Disconnect()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not finish after disconnect")
	}

	require.Len(t, ch, 2)
	for i := 0; i < 2; i++ {
		f := <-ch
		assert.Equal(t, ErrDisconnected, errors.Cause(f.Err))
	}
	d.AssertNumberOfCalls(t, "WriteValue", 1)

	assert.False(t, c.Valid())
	assert.Equal(t, ErrDisconnected, errors.Cause(c.SetValue([]byte("third"))))
	assert.Equal(t, ErrDisconnected, errors.Cause(c.SetCCCD(true, false)))
	_, err = c.Refresh(context.Background())
	assert.Equal(t, ErrDisconnected, errors.Cause(err))
	assert.Equal(t, ErrDisconnected, errors.Cause(desc.SetValue([]byte("x"))))
	_, err = c.AddDescriptor(testDescUUID)
	assert.Equal(t, ErrDisconnected, errors.Cause(err))
	_, err = svc.AddDiscoveredCharacteristic(testCharUUID, CharRead, 5)
	assert.Equal(t, ErrDisconnected, errors.Cause(err))
	_, err = p.AddService(testSvcUUID, 30, 40)
	assert.Equal(t, ErrDisconnected, errors.Cause(err))
	assert.Equal(t, ErrDisconnected, errors.Cause(p.Flush(context.Background())))
	assert.Equal(t, ErrDisconnected, errors.Cause(p.HandleNotification(c, []byte{1})))

	// Disconnect is idempotent.
	p.Disconnect()
}

func TestPeerFlushContext(t *testing.T) {
	p, svc, d := newRemote(t)
	c, err := svc.AddDiscoveredCharacteristic(testCharUUID, CharWrite, 3)
	require.NoError(t, err)
	release := make(chan struct{})
	d.On("WriteValue", mock.Anything, c, mock.Anything, false).Run(func(mock.Arguments) {
		<-release
	}).Return(nil)

	require.NoError(t, c.SetValue([]byte{1}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, p.Flush(ctx))

	close(release)
	require.NoError(t, p.Flush(context.Background()))
}

func TestOpString(t *testing.T) {
	for o, want := range map[Op]string{OpWrite: "write", OpCCCD: "cccd", OpRead: "read", Op(9): "Op(9)"} {
		if got := o.String(); got != want {
			t.Errorf("Op(%d).String(): got %q want %q", int(o), got, want)
		}
	}
}
