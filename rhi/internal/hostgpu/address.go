package hostgpu

import (
	"slices"
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
)

// addressBase keeps zero out of the space so a zero address stays invalid.
const addressBase = 0x10000

// addressAlign is the alignment of every reserved range.
const addressAlign = 256

type mapping struct {
	base  uint64
	size  uint64
	owner any
}

// AddressSpace hands out fake device addresses for buffers, acceleration
// structures and descriptor heaps, and maps addresses back to their owner.
type AddressSpace struct {
	mu   sync.RWMutex
	next uint64
	maps []mapping // sorted by base
}

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{next: addressBase}
}

// Reserve maps a new range of size bytes to owner and returns its base.
func (a *AddressSpace) Reserve(size uint64, owner any) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	base := a.next
	a.next = interval.AlignUp(base+max(size, 1), addressAlign)
	a.maps = append(a.maps, mapping{base: base, size: size, owner: owner})
	return base
}

// Release unmaps the range starting at base. Addresses are never reused.
func (a *AddressSpace) Release(base uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := slices.BinarySearchFunc(a.maps, base, func(m mapping, b uint64) int {
		switch {
		case m.base < b:
			return -1
		case m.base > b:
			return 1
		}
		return 0
	})
	if ok {
		a.maps = slices.Delete(a.maps, i, i+1)
	}
}

// Lookup returns the owner of addr and the offset of addr inside it.
func (a *AddressSpace) Lookup(addr uint64) (owner any, offset uint64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i, _ := slices.BinarySearchFunc(a.maps, addr, func(m mapping, b uint64) int {
		if m.base > b {
			return 1
		}
		return -1
	})
	if i == 0 {
		return nil, 0, false
	}
	m := a.maps[i-1]
	if addr-m.base >= max(m.size, 1) {
		return nil, 0, false
	}
	return m.owner, addr - m.base, true
}
