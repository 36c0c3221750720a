// Package buffer implements the reference-counted buffer pool that
// back-pressured streams pump data through. A Pool owns a fixed
// caller-sized array of slots; issuing a buffer scans linearly for
// the first free slot with enough capacity, grounded on the
// teacher's size-bucketed sync.Pool allocator generalized from
// fixed buckets to a linear-scan slot table (the pool here needs
// stable integer IDs streams can hold across callback boundaries,
// which sync.Pool cannot offer).
package buffer

import (
	"errors"
	"fmt"
)

// Kind is the BufferView variant tag.
type Kind int32

const (
	KindEmpty Kind = iota
	KindWritable
	KindReadOnly
	KindGrowable
	KindChildView
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindWritable:
		return "Writable"
	case KindReadOnly:
		return "ReadOnly"
	case KindGrowable:
		return "Growable"
	case KindChildView:
		return "ChildView"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

var (
	// ErrNoFreeSlot is returned when no slot has enough free capacity.
	ErrNoFreeSlot = errors.New("buffer: no free slot of sufficient size")
	// ErrUnderflow marks a refcount dropping below zero: a programmer error.
	ErrUnderflow = errors.New("buffer: refcount underflow")
	// ErrInvalidID is returned for an ID outside the pool's slot table.
	ErrInvalidID = errors.New("buffer: invalid id")
)

// Resizer is the erased handle a growable view resizes through: it
// must return a buffer of at least newSize, copying existing data,
// without issuing a syscall.
type Resizer func(current []byte, newSize int) ([]byte, error)

// View is one slot: a region of a caller-provided byte array plus
// the bookkeeping needed to reclaim and re-share it.
type View struct {
	id   int
	kind Kind

	data     []byte
	original []byte // stashed to restore capacity once refcount hits zero

	refcount int
	reusable bool

	parent       int // index into Pool.slots, or -1
	childOffset  int
	childLength  int
	resize       Resizer
}

// ID returns the slot index identifying this view within its pool.
func (v *View) ID() int { return v.id }

// Kind returns the view's variant tag.
func (v *View) Kind() Kind { return v.kind }

// Pool owns a fixed array of buffer slots. It performs no allocation
// of its own after construction; every slot's storage is supplied by
// New or by a growable view's Resizer.
type Pool struct {
	slots []View
}

// New builds a pool over capacity pre-sized slots, each backed by a
// make([]byte, slotSize) region the pool owns exclusively.
func New(capacity, slotSize int) *Pool {
	p := &Pool{slots: make([]View, capacity)}
	for i := range p.slots {
		buf := make([]byte, slotSize)
		p.slots[i] = View{id: i, kind: KindEmpty, data: buf[:0], original: buf, parent: -1, reusable: true}
	}
	return p
}

// RequestNewBuffer scans linearly for the first free slot (refcount
// == 0) whose original capacity is at least minBytes, marks it
// Writable with refcount 1, and returns its ID and data span.
func (p *Pool) RequestNewBuffer(minBytes int) (int, []byte, error) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.refcount == 0 && cap(s.original) >= minBytes {
			s.kind = KindWritable
			s.refcount = 1
			s.data = s.original[:minBytes]
			s.parent = -1
			return s.id, s.data, nil
		}
	}
	return 0, nil, ErrNoFreeSlot
}

// PushBuffer adopts a caller-constructed view (e.g. one returned from
// a growable Resizer elsewhere) into the first free slot, taking
// ownership of its backing array rather than the pool's own.
func (p *Pool) PushBuffer(data []byte, kind Kind) (int, error) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.refcount == 0 {
			s.kind = kind
			s.refcount = 1
			s.data = data
			s.original = data
			s.parent = -1
			s.reusable = true
			return s.id, nil
		}
	}
	return 0, ErrNoFreeSlot
}

func (p *Pool) slot(id int) (*View, error) {
	if id < 0 || id >= len(p.slots) {
		return nil, ErrInvalidID
	}
	return &p.slots[id], nil
}

// RefBuffer increments id's refcount. A child view's parent is not
// touched: the child holds a single reference on its parent, taken by
// CreateChildView.
func (p *Pool) RefBuffer(id int) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	s.refcount++
	return nil
}

// UnrefBuffer decrements id's refcount. At zero, a reusable slot is
// reset to KindEmpty and its capacity restored for reuse; a
// non-reusable slot is simply invalidated. A child view that reaches
// zero releases its one reference on its parent.
func (p *Pool) UnrefBuffer(id int) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	if s.refcount <= 0 {
		return fmt.Errorf("%w: slot %d", ErrUnderflow, id)
	}
	s.refcount--
	if s.refcount == 0 {
		parent := s.parent
		reusable := s.reusable
		*s = View{id: id, kind: KindEmpty, original: s.original, parent: -1, reusable: reusable}
		if !reusable {
			s.data = nil
		} else {
			s.data = s.original[:0]
		}
		if parent != -1 {
			return p.UnrefBuffer(parent)
		}
	}
	return nil
}

// GetReadableData returns id's current data span for reading,
// resolving child views through their parent's storage.
func (p *Pool) GetReadableData(id int) ([]byte, error) {
	s, err := p.slot(id)
	if err != nil {
		return nil, err
	}
	if s.kind == KindChildView {
		parent, err := p.slot(s.parent)
		if err != nil {
			return nil, err
		}
		end := s.childOffset + s.childLength
		if end > len(parent.data) {
			end = len(parent.data)
		}
		if s.childOffset > end {
			return nil, nil
		}
		return parent.data[s.childOffset:end], nil
	}
	return s.data, nil
}

// GetWritableData is the mutable counterpart of GetReadableData.
func (p *Pool) GetWritableData(id int) ([]byte, error) {
	return p.GetReadableData(id)
}

// SetNewBufferSize resizes a non-child, non-growable view in place
// (bounded by its original capacity), or delegates to a growable
// view's Resizer. Resizing a child view downward is accepted;
// resizing it upward beyond its original span is silently ignored.
func (p *Pool) SetNewBufferSize(id int, newSize int) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	switch s.kind {
	case KindChildView:
		if newSize <= s.childLength {
			s.childLength = newSize
		}
		return nil
	case KindGrowable:
		if s.resize == nil {
			return fmt.Errorf("buffer: growable slot %d has no resizer", id)
		}
		resized, err := s.resize(s.data, newSize)
		if err != nil {
			return err
		}
		s.data = resized
		return nil
	default:
		if newSize > cap(s.original) {
			return fmt.Errorf("buffer: slot %d cannot grow past original capacity %d", id, cap(s.original))
		}
		s.data = s.original[:newSize]
		return nil
	}
}

// CreateChildView carves out a sub-slice of parentID's storage,
// incrementing the parent's refcount. The returned ID behaves like
// any other view for reads/writes/unref.
func (p *Pool) CreateChildView(parentID, offset, length int) (int, error) {
	parent, err := p.slot(parentID)
	if err != nil {
		return 0, err
	}
	if parent.kind == KindChildView {
		return 0, fmt.Errorf("buffer: cannot nest a child view under another child view")
	}
	for i := range p.slots {
		s := &p.slots[i]
		if s.id == parentID {
			continue
		}
		if s.refcount == 0 {
			s.kind = KindChildView
			s.refcount = 1
			s.parent = parentID
			s.childOffset = offset
			s.childLength = length
			if err := p.RefBuffer(parentID); err != nil {
				return 0, err
			}
			return s.id, nil
		}
	}
	return 0, ErrNoFreeSlot
}

// MakeGrowable converts a freshly issued writable view into a
// growable one backed by resize, used by streams that don't know
// their eventual payload size up front.
func (p *Pool) MakeGrowable(id int, resize Resizer) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	s.kind = KindGrowable
	s.resize = resize
	return nil
}

// Len reports the number of slots the pool manages.
func (p *Pool) Len() int { return len(p.slots) }
