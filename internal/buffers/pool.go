// Package buffers implements the frame buffer arena shared by the capture
// device, the display sink and client callbacks.
//
// Buffers are addressed by ID, an index into the current buffer set tagged
// with the set's generation. Every buffer has exactly one owner at a time
// and ownership only changes through Transfer, which is a compare-and-swap
// on the slot. IDs from a replaced set are rejected with ErrStaleBuffer, so a
// late release can never touch a buffer of the new configuration.
package buffers

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Owner identifies who currently holds a buffer.
type Owner int32

const (
	Free Owner = iota
	HeldByDevice
	HeldBySink
	HeldByClient

	// retired marks a slot whose backing store was released by Free.
	retired
)

func (o Owner) String() string {
	switch o {
	case Free:
		return "free"
	case HeldByDevice:
		return "device"
	case HeldBySink:
		return "sink"
	case HeldByClient:
		return "client"
	case retired:
		return "retired"
	default:
		return fmt.Sprintf("owner(%d)", int32(o))
	}
}

// ID is a generation-tagged buffer index. The zero ID never names a buffer.
type ID uint64

func makeID(gen uint32, index int) ID {
	return ID(uint64(gen)<<32 | uint64(uint32(index)))
}

// Index returns the slot index within its set.
func (id ID) Index() int { return int(uint32(id)) }

// Generation returns the generation of the set the buffer belongs to.
func (id ID) Generation() uint32 { return uint32(id >> 32) }

func (id ID) String() string {
	return fmt.Sprintf("buf#%d.%d", id.Generation(), id.Index())
}

// Counts is a snapshot of buffer ownership across the current set.
type Counts struct {
	Free   int `json:"free"`
	Device int `json:"device"`
	Sink   int `json:"sink"`
	Client int `json:"client"`
}

// Total returns the number of live buffers covered by the snapshot.
func (c Counts) Total() int {
	return c.Free + c.Device + c.Sink + c.Client
}

type slot struct {
	owner atomic.Int32
	data  []byte
}

type bufferSet struct {
	gen    uint32
	format Format
	slots  []slot
}

// Pool owns at most one live buffer set at a time.
type Pool struct {
	name     string
	maxBytes int

	allocMu sync.Mutex
	lastGen uint32
	current atomic.Pointer[bufferSet]
}

// NewPool creates an empty pool. maxBytes bounds the size of a single set;
// zero means unbounded.
func NewPool(name string, maxBytes int) *Pool {
	return &Pool{name: name, maxBytes: maxBytes}
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string { return p.name }

// Allocate replaces the current set with count fresh buffers of the given
// format, all owned by Free. Every buffer of the previous set must be Free
// at this point; a buffer still held by a port or a client is a fatal
// invariant breach and panics with an *OwnershipError.
func (p *Pool) Allocate(count int, format Format) ([]ID, error) {
	if count <= 0 || !format.Valid() {
		return nil, fmt.Errorf("%w: %d buffers of %s", ErrInvalidFormat, count, format)
	}

	size := format.FrameSize()
	if p.maxBytes > 0 && count*size > p.maxBytes {
		return nil, fmt.Errorf("%w: %d x %d bytes exceeds budget of %d", ErrOutOfMemory, count, size, p.maxBytes)
	}

	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	if old := p.current.Load(); old != nil {
		mustBeReleasable(old, "allocate")
	}

	p.lastGen++
	set := &bufferSet{
		gen:    p.lastGen,
		format: format,
		slots:  make([]slot, count),
	}
	ids := make([]ID, count)
	for i := range set.slots {
		set.slots[i].data = make([]byte, size)
		ids[i] = makeID(set.gen, i)
	}
	p.current.Store(set)
	return ids, nil
}

// Free releases the backing store of a single Free buffer. Freeing a buffer
// that is held by anyone panics.
func (p *Pool) Free(id ID) error {
	sl, err := p.lookup(id)
	if err != nil {
		return err
	}
	if sl.owner.CompareAndSwap(int32(Free), int32(retired)) {
		return nil
	}
	got := Owner(sl.owner.Load())
	if got == retired {
		return ErrStaleBuffer
	}
	panic(&OwnershipError{Op: "free", ID: id, Want: Free, Got: got})
}

// FreeAll drops the current set. Every buffer must be Free.
func (p *Pool) FreeAll() {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	if set := p.current.Load(); set != nil {
		mustBeReleasable(set, "free all")
		p.current.Store(nil)
	}
}

// Transfer moves a buffer from one owner to another. It fails with an
// *OwnershipError when the buffer is not owned by from.
func (p *Pool) Transfer(id ID, from, to Owner) error {
	sl, err := p.lookup(id)
	if err != nil {
		return err
	}
	if sl.owner.CompareAndSwap(int32(from), int32(to)) {
		return nil
	}
	got := Owner(sl.owner.Load())
	if got == retired {
		return ErrStaleBuffer
	}
	return &OwnershipError{Op: "transfer", ID: id, Want: from, Got: got}
}

// Owner returns the current owner of a buffer.
func (p *Pool) Owner(id ID) (Owner, error) {
	sl, err := p.lookup(id)
	if err != nil {
		return 0, err
	}
	o := Owner(sl.owner.Load())
	if o == retired {
		return 0, ErrStaleBuffer
	}
	return o, nil
}

// Bytes returns the backing memory of a buffer.
func (p *Pool) Bytes(id ID) ([]byte, error) {
	sl, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	if Owner(sl.owner.Load()) == retired {
		return nil, ErrStaleBuffer
	}
	return sl.data, nil
}

// Format returns the format of the current set.
func (p *Pool) Format() Format {
	if set := p.current.Load(); set != nil {
		return set.format
	}
	return Format{}
}

// Size returns the number of live buffers in the current set.
func (p *Pool) Size() int {
	return p.Counts().Total()
}

// Counts returns an ownership snapshot of the current set.
func (p *Pool) Counts() Counts {
	var c Counts
	set := p.current.Load()
	if set == nil {
		return c
	}
	for i := range set.slots {
		switch Owner(set.slots[i].owner.Load()) {
		case Free:
			c.Free++
		case HeldByDevice:
			c.Device++
		case HeldBySink:
			c.Sink++
		case HeldByClient:
			c.Client++
		}
	}
	return c
}

// Owned returns the IDs of the current set held by owner, in index order.
func (p *Pool) Owned(owner Owner) []ID {
	set := p.current.Load()
	if set == nil {
		return nil
	}
	var ids []ID
	for i := range set.slots {
		if Owner(set.slots[i].owner.Load()) == owner {
			ids = append(ids, makeID(set.gen, i))
		}
	}
	return ids
}

func (p *Pool) lookup(id ID) (*slot, error) {
	set := p.current.Load()
	if set == nil || id.Generation() != set.gen || id.Index() >= len(set.slots) {
		return nil, ErrStaleBuffer
	}
	return &set.slots[id.Index()], nil
}

func mustBeReleasable(set *bufferSet, op string) {
	for i := range set.slots {
		o := Owner(set.slots[i].owner.Load())
		if o != Free && o != retired {
			panic(&OwnershipError{Op: op, ID: makeID(set.gen, i), Want: Free, Got: o})
		}
	}
}
