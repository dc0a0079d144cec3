// Package interval implements an ordered set of free [begin, end) ranges.
//
// It backs both the CPU descriptor allocator and the buffer suballocator.
// Allocation is first-fit in address order, so the lowest suitable address
// always wins. Freeing merges the released range with both neighbors, so
// after every allocation has been returned the set collapses back into a
// single range covering the whole space.
package interval

import (
	"fmt"
	"slices"
)

// Range is a half-open range [Begin, End).
type Range struct {
	Begin uint64
	End   uint64
}

// Len returns the number of units in the range.
func (r Range) Len() uint64 { return r.End - r.Begin }

// Set tracks the free ranges of a space of fixed size.
// Set is not safe for concurrent use; owners serialize access.
type Set struct {
	size uint64
	free []Range // sorted by Begin, disjoint, never adjacent
}

// New creates a set over [0, size) with everything free.
func New(size uint64) *Set {
	s := &Set{size: size}
	if size > 0 {
		s.free = []Range{{0, size}}
	}
	return s
}

// Size returns the size of the managed space.
func (s *Set) Size() uint64 { return s.size }

// Allocate finds the lowest offset aligned to alignment with size free
// units after it. Alignment of zero or one means no alignment.
func (s *Set) Allocate(size, alignment uint64) (uint64, bool) {
	if size == 0 {
		return 0, false
	}
	for i, r := range s.free {
		start := AlignUp(r.Begin, alignment)
		if start < r.Begin || start+size > r.End {
			continue
		}
		var repl []Range
		if start > r.Begin {
			repl = append(repl, Range{r.Begin, start})
		}
		if start+size < r.End {
			repl = append(repl, Range{start + size, r.End})
		}
		s.free = slices.Replace(s.free, i, i+1, repl...)
		return start, true
	}
	return 0, false
}

// Free returns [offset, offset+size) to the set and merges it with
// adjacent free ranges. Freeing a range that overlaps a free range panics.
func (s *Set) Free(offset, size uint64) {
	if size == 0 {
		return
	}
	r := Range{offset, offset + size}
	if r.End > s.size {
		panic(fmt.Sprintf("interval: free [%d, %d) outside space of size %d", r.Begin, r.End, s.size))
	}
	i, _ := slices.BinarySearchFunc(s.free, r.Begin, func(e Range, t uint64) int {
		switch {
		case e.Begin < t:
			return -1
		case e.Begin > t:
			return 1
		}
		return 0
	})
	if i > 0 && s.free[i-1].End > r.Begin || i < len(s.free) && s.free[i].Begin < r.End {
		panic(fmt.Sprintf("interval: double free of [%d, %d)", r.Begin, r.End))
	}

	mergeLeft := i > 0 && s.free[i-1].End == r.Begin
	mergeRight := i < len(s.free) && s.free[i].Begin == r.End
	switch {
	case mergeLeft && mergeRight:
		s.free[i-1].End = s.free[i].End
		s.free = slices.Delete(s.free, i, i+1)
	case mergeLeft:
		s.free[i-1].End = r.End
	case mergeRight:
		s.free[i].Begin = r.Begin
	default:
		s.free = slices.Insert(s.free, i, r)
	}
}

// Ranges returns a copy of the free ranges in address order.
func (s *Set) Ranges() []Range {
	return slices.Clone(s.free)
}

// FreeUnits returns the total number of free units.
func (s *Set) FreeUnits() uint64 {
	var n uint64
	for _, r := range s.free {
		n += r.Len()
	}
	return n
}

// AllFree reports whether the whole space is one free range.
func (s *Set) AllFree() bool {
	return len(s.free) == 1 && s.free[0] == Range{0, s.size}
}

// AlignUp rounds v up to a multiple of alignment.
func AlignUp(v, alignment uint64) uint64 {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}
