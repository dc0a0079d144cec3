package devcore

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// ObjectCache returns the same pipeline object for structurally identical
// descriptions within one device.
//
// It is safe for concurrent use: lookups take a read lock and creation
// re-checks the map under the write lock.
type ObjectCache[T any] struct {
	mu      sync.RWMutex
	objects map[string]T

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewObjectCache returns an empty cache.
func NewObjectCache[T any]() *ObjectCache[T] {
	return &ObjectCache[T]{objects: make(map[string]T)}
}

// GetOrCreate returns the object cached under key or stores the result of
// create. Failed creations are not cached.
func (c *ObjectCache[T]) GetOrCreate(key rhi.PipelineCacheKey, create func() (T, error)) (T, error) {
	k := key.String()

	c.mu.RLock()
	if obj, ok := c.objects[k]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return obj, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.objects[k]; ok {
		c.hits.Add(1)
		return obj, nil
	}
	obj, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	c.objects[k] = obj
	c.misses.Add(1)
	return obj, nil
}

// Len returns the number of cached objects.
func (c *ObjectCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// Stats returns hit and miss counts.
func (c *ObjectCache[T]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// PipelineBase holds what every pipeline object exposes. Backends embed it.
type PipelineBase[D any] struct {
	desc *D
	key  rhi.PipelineCacheKey
	// Blob is the compiled native pipeline, as stored in the pipeline cache.
	Blob []byte
}

// NewPipelineBase returns a base for desc.
func NewPipelineBase[D any](desc *D, key rhi.PipelineCacheKey, blob []byte) PipelineBase[D] {
	return PipelineBase[D]{desc: desc, key: key, Blob: blob}
}

// Desc returns the creation description.
func (p *PipelineBase[D]) Desc() *D { return p.desc }

// CacheKey returns the persistent cache key.
func (p *PipelineBase[D]) CacheKey() rhi.PipelineCacheKey { return p.key }

// Destroy is a no-op; pipelines live as long as their device cache.
func (p *PipelineBase[D]) Destroy() {}

// PipelineBlob builds the native blob of a pipeline: a backend magic, the
// cache key and the binary of every stage. It is what both backends store
// in the persistent cache.
func PipelineBlob(magic string, key rhi.PipelineCacheKey, stages []*rhi.ShaderModule) []byte {
	ks := key.String()
	n := len(magic) + 4 + len(ks)
	for _, m := range stages {
		n += 4 + len(m.Binary)
	}
	blob := make([]byte, 0, n)
	blob = append(blob, magic...)
	blob = binary.LittleEndian.AppendUint32(blob, uint32(len(ks)))
	blob = append(blob, ks...)
	for _, m := range stages {
		blob = binary.LittleEndian.AppendUint32(blob, uint32(len(m.Binary)))
		blob = append(blob, m.Binary...)
	}
	return blob
}

// CheckStages verifies that every stage is present and has a binary
// accepted by valid.
func CheckStages(stages []*rhi.ShaderModule, valid func([]byte) bool, format string) error {
	for _, m := range stages {
		if m == nil {
			return fmt.Errorf("%w: missing shader stage", rhi.ErrInvalidDesc)
		}
		if !valid(m.Binary) {
			return fmt.Errorf("%w: %v is not %s", rhi.ErrInvalidDesc, m, format)
		}
	}
	return nil
}
