package gatt

import (
	"sync"

	"github.com/pkg/errors"
)

const (
	// MaxAttrLen is the largest attribute value allowed by ATT.
	MaxAttrLen = 512

	// MaxVarAttrLen is the recommended maximum for variable length values;
	// two bytes of the largest value are taken by the length encoding on
	// some stacks. It is advisory and not enforced.
	MaxVarAttrLen = 510

	// DefaultMaxLen is the default maximum value length; it is the number of
	// data bytes that fit in a single BLE 4.x ATT packet.
	DefaultMaxLen = 20
)

// value is the storage for an attribute value. It has a maximum length
// and is either fixed or variable length. All access is guarded by the
// store's own lock; stores never share a lock.
type value struct {
	mu    sync.RWMutex
	max   int
	fixed bool
	b     []byte
	gen   uint64 // bumped on each successful set
}

func newValue(max int, fixed bool, initial []byte) (*value, error) {
	if max < 1 || max > MaxAttrLen {
		return nil, errors.Wrapf(ErrInvalidArgument, "max length %d not in [1, %d]", max, MaxAttrLen)
	}
	if len(initial) > max {
		return nil, errors.Wrapf(ErrLength, "initial value is %d bytes, max is %d", len(initial), max)
	}
	v := &value{max: max, fixed: fixed}
	switch {
	case fixed && len(initial) == 0:
		v.b = make([]byte, max)
	case fixed && len(initial) != max:
		return nil, errors.Wrapf(ErrLength, "fixed length value must be %d bytes, got %d", max, len(initial))
	default:
		v.b = append([]byte{}, initial...)
	}
	return v, nil
}

func (v *value) check(b []byte) error {
	if len(b) > v.max {
		return errors.Wrapf(ErrLength, "value is %d bytes, max is %d", len(b), v.max)
	}
	if v.fixed && len(b) != v.max {
		return errors.Wrapf(ErrLength, "fixed length value must be %d bytes, got %d", v.max, len(b))
	}
	return nil
}

// get returns a copy of the stored bytes.
func (v *value) get() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]byte{}, v.b...)
}

// generation returns the generation of the stored bytes.
func (v *value) generation() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.gen
}

// set replaces the stored bytes and returns the generation of the new
// value. The store is left unchanged on error.
func (v *value) set(b []byte) (gen uint64, err error) {
	if err := v.check(b); err != nil {
		return 0, err
	}
	nb := append([]byte{}, b...)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.b = nb
	v.gen++
	return v.gen, nil
}

// setAt replaces the stored bytes only if the store is still at
// generation gen. It reports whether b was stored and returns the
// generation the store is at afterwards.
func (v *value) setAt(gen uint64, b []byte) (next uint64, ok bool, err error) {
	if err := v.check(b); err != nil {
		return 0, false, err
	}
	nb := append([]byte{}, b...)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return v.gen, false, nil
	}
	v.b = nb
	v.gen++
	return v.gen, true, nil
}
