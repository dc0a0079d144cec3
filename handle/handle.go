// Package handle provides opaque generational handles and the slot tables
// that issue them.
//
// A Handle carries no ownership. Removing a slot bumps its generation, so a
// handle kept past removal no longer resolves even if the slot is reused.
package handle

import "fmt"

// Handle is an opaque reference into a SlotTable.
// The zero Handle is never issued and is always invalid.
type Handle struct {
	index      uint32
	generation uint32
}

// Invalid is the zero handle.
var Invalid Handle

// IsValid reports whether h could have been issued by a table.
func (h Handle) IsValid() bool { return h.generation != 0 }

// Index returns the slot index.
func (h Handle) Index() uint32 { return h.index }

func (h Handle) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d#%d)", h.index, h.generation)
}

type slot[T any] struct {
	value      T
	generation uint32 // odd while occupied
}

// SlotTable stores values addressed by generational handles.
// SlotTable is not safe for concurrent use.
type SlotTable[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// NewSlotTable creates an empty table.
func NewSlotTable[T any]() *SlotTable[T] {
	return &SlotTable[T]{}
}

// Insert stores v and returns its handle.
func (t *SlotTable[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}
	s := &t.slots[idx]
	s.generation++
	s.value = v
	t.count++
	return Handle{index: idx, generation: s.generation}
}

// Get returns the value for h. It reports false for removed or foreign
// handles.
func (t *SlotTable[T]) Get(h Handle) (T, bool) {
	if !t.live(h) {
		var zero T
		return zero, false
	}
	return t.slots[h.index].value, true
}

// Ptr returns a pointer to the stored value, or nil for a stale handle.
// The pointer is invalidated by the next Insert.
func (t *SlotTable[T]) Ptr(h Handle) *T {
	if !t.live(h) {
		return nil
	}
	return &t.slots[h.index].value
}

// Remove deletes the value for h and reports whether it was present.
func (t *SlotTable[T]) Remove(h Handle) bool {
	if !t.live(h) {
		return false
	}
	s := &t.slots[h.index]
	var zero T
	s.value = zero
	s.generation++
	t.free = append(t.free, h.index)
	t.count--
	return true
}

// Len returns the number of live values.
func (t *SlotTable[T]) Len() int { return t.count }

// Each calls fn for every live value in slot order.
func (t *SlotTable[T]) Each(fn func(Handle, T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.generation%2 == 1 {
			fn(Handle{index: uint32(i), generation: s.generation}, s.value)
		}
	}
}

func (t *SlotTable[T]) live(h Handle) bool {
	if !h.IsValid() || int(h.index) >= len(t.slots) {
		return false
	}
	return t.slots[h.index].generation == h.generation
}
