package descalloc

import "errors"

var (
	// ErrExhausted is returned when the GPU allocator has used its whole
	// chunk budget.
	ErrExhausted = errors.New("descalloc: descriptor chunks exhausted")

	// ErrTooLarge is returned for a request that cannot fit in one chunk.
	ErrTooLarge = errors.New("descalloc: allocation larger than a chunk")

	// ErrHeapType is returned when a layout has descriptors of the wrong
	// heap type for the allocator.
	ErrHeapType = errors.New("descalloc: descriptor type does not match heap")
)
