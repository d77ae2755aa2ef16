package gatt

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// A notifier pushes value updates of one local characteristic to one
// subscribed central. Updates are coalesced: if the central is slow, only
// the latest value is sent.
type notifier struct {
	conn   Conn
	char   *Characteristic
	logger logrus.FieldLogger

	mu      sync.Mutex
	cccd    CCCD
	pending []byte
	queued  bool
	done    bool

	kick chan struct{}
	quit chan struct{}
}

func newNotifier(c Conn, cc *Characteristic, cccd CCCD, l logrus.FieldLogger) *notifier {
	n := &notifier{
		conn:   c,
		char:   cc,
		cccd:   cccd,
		logger: l.WithField("uuid", cc.uuid.String()),
		kick:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go n.loop()
	return n
}

// send queues b for delivery, replacing any update not yet sent.
func (n *notifier) send(b []byte) {
	n.mu.Lock()
	if n.done {
		n.mu.Unlock()
		return
	}
	n.pending, n.queued = b, true
	n.mu.Unlock()
	select {
	case n.kick <- struct{}{}:
	default:
	}
}

func (n *notifier) setCCCD(cccd CCCD) {
	n.mu.Lock()
	n.cccd = cccd
	n.mu.Unlock()
}

func (n *notifier) state() CCCD {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cccd
}

func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return
	}
	n.done = true
	close(n.quit)
}

func (n *notifier) loop() {
	for {
		select {
		case <-n.quit:
			return
		case <-n.kick:
		}
		n.mu.Lock()
		b, ok, cccd := n.pending, n.queued, n.cccd
		n.pending, n.queued = nil, false
		n.mu.Unlock()
		if !ok {
			continue
		}
		// A notification carries at most ATT_MTU-3 bytes of value.
		if max := n.conn.MTU() - 3; max >= 0 && len(b) > max {
			b = b[:max]
		}
		h := n.char.ValueHandle()
		var err error
		if cccd.Indicate && n.char.props.Has(CharIndicate) {
			err = n.conn.Indicate(h, b)
		} else {
			err = n.conn.Notify(h, b)
		}
		if err != nil {
			n.logger.WithError(err).WithField("handle", h).Warn("value update not delivered")
		}
	}
}
