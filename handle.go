package gatt

type handleType int

const (
	typService handleType = iota
	typCharacteristic
	typCharacteristicValue
	typCCCD
	typDescriptor
)

func (t handleType) String() string {
	switch t {
	case typService:
		return "service"
	case typCharacteristic:
		return "characteristic"
	case typCharacteristicValue:
		return "value"
	case typCCCD:
		return "cccd"
	case typDescriptor:
		return "descriptor"
	}
	return "unknown"
}

// handle is an entry of the server's attribute table. Declarations carry
// their static value; value, CCCD and descriptor handles point at the
// attribute that holds the live value.
type handle struct {
	n      uint16 // gatt handle number
	startn uint16 // service group range
	endn   uint16
	typ    handleType
	uuid   UUID        // attribute type
	attr   interface{} // *Service, *Characteristic or *Descriptor
	value  []byte      // static value of declarations
}

func (c *Characteristic) generateHandles(n uint16) (uint16, []handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	valuen := n + 1
	decl := append([]byte{byte(c.props), byte(valuen), byte(valuen >> 8)}, c.uuid.Bytes()...)
	handles := []handle{
		{n: n, typ: typCharacteristic, uuid: gattAttrCharacteristicUUID, attr: c, value: decl},
		{n: valuen, typ: typCharacteristicValue, uuid: c.uuid, attr: c},
	}
	c.valuen = valuen
	n = valuen

	if c.props.Subscribable() {
		n++
		handles = append(handles, handle{n: n, typ: typCCCD, uuid: CCCDUUID, attr: c})
	}

	for _, d := range c.descs {
		n++
		d.handle = n
		handles = append(handles, handle{n: n, typ: typDescriptor, uuid: d.uuid, attr: d})
	}
	return n, handles
}

func generateHandles(svcs []*Service, base uint16) *handleRange {
	var handles []handle
	n := base
	for _, svc := range svcs {
		var hh []handle
		n, hh = svc.generateHandles(n)
		handles = append(handles, hh...)
	}
	return &handleRange{hh: handles, base: base}
}

// A handleRange is a contiguous range of handles.
type handleRange struct {
	hh   []handle
	base uint16 // handle number for first handle in hh
}

const (
	tooSmall = -1
	tooLarge = -2
)

// idx returns the index into hh corresponding to handle n.
// If n is too small, idx returns tooSmall (-1).
// If n is too large, idx returns tooLarge (-2).
func (r *handleRange) idx(n int) int {
	if n < int(r.base) {
		return tooSmall
	}
	if int(n) >= int(r.base)+len(r.hh) {
		return tooLarge
	}
	return n - int(r.base)
}

// At returns handle n.
func (r *handleRange) At(n uint16) (h handle, ok bool) {
	i := r.idx(int(n))
	if i < 0 {
		return handle{}, false
	}
	return r.hh[i], true
}

// Subrange returns handles in range [start, end]; it may
// return an empty slice. Subrange does not panic for
// out-of-range start or end.
func (r *handleRange) Subrange(start, end uint16) []handle {
	startidx := r.idx(int(start))
	switch startidx {
	case tooSmall:
		startidx = 0
	case tooLarge:
		return []handle{}
	}

	endidx := r.idx(int(end) + 1) // [start, end] includes its upper bound!
	switch endidx {
	case tooSmall:
		return []handle{}
	case tooLarge:
		endidx = len(r.hh)
	}
	if endidx < startidx {
		return []handle{}
	}
	return r.hh[startidx:endidx]
}
