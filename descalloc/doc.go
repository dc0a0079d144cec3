// Package descalloc suballocates descriptors from RHI descriptor heaps.
//
// CpuDescriptorAllocator hands out long-lived, non shader visible
// descriptors. It keeps a free-interval set per heap chunk, allocates
// first-fit in chunk creation order and grows by adding chunks.
//
// GpuDescriptorAllocator hands out shader visible descriptor ranges that
// live for one frame. It bump-allocates from fixed-size chunks of a single
// heap, partitioned by frame and recording thread. Reset(frame) recycles
// every chunk of that frame; the caller must only reset a frame after the
// GPU has retired its work.
package descalloc
