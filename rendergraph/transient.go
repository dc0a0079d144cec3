package rendergraph

import (
	"log/slog"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/cache"
	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// poolKey identifies an idle transient. Ordinal distinguishes several
// resources with the same description requested in one execution, so the
// n-th request of a frame maps to the same resource every frame.
type poolKey struct {
	kind    resourceKind
	buffer  resource.BufferDesc
	texture rhi.TextureDesc
	ordinal int
}

type pooled struct {
	buf *resource.Buffer
	tex *resource.Texture
}

func (p pooled) destroy() {
	if p.buf != nil {
		p.buf.Destroy()
	}
	if p.tex != nil {
		p.tex.Destroy()
	}
}

type retired struct {
	res       pooled
	execution uint64
}

// TransientStats reports transient pool activity.
type TransientStats struct {
	Created uint64
	Reused  uint64
	Idle    int
	// Retired counts evicted resources waiting for their frame to leave
	// flight before being destroyed.
	Retired int
}

// transientPool recycles graph-owned resources across executions. Idle
// resources live in an LRU cache; evicted ones are destroyed only after
// framesInFlight further executions, since the GPU may still read them.
type transientPool struct {
	device         rhi.Device
	alloc          resource.DescriptorAllocator
	log            *slog.Logger
	framesInFlight uint64

	idle      *cache.Cache[poolKey, pooled]
	ordinals  map[poolKey]int
	graveyard []retired
	execution uint64

	created, reused uint64
}

func newTransientPool(device rhi.Device, alloc resource.DescriptorAllocator, limit int, framesInFlight int, log *slog.Logger) *transientPool {
	p := &transientPool{
		device:         device,
		alloc:          alloc,
		log:            log,
		framesInFlight: uint64(max(framesInFlight, 1)),
		idle:           cache.New[poolKey, pooled](limit),
		ordinals:       make(map[poolKey]int),
	}
	p.idle.OnEvict(func(_ poolKey, v pooled) {
		p.graveyard = append(p.graveyard, retired{res: v, execution: p.execution})
	})
	return p
}

// begin starts an execution and destroys retired resources whose frame is
// no longer in flight.
func (p *transientPool) begin() {
	p.execution++
	clear(p.ordinals)
	kept := p.graveyard[:0]
	for _, r := range p.graveyard {
		if r.execution+p.framesInFlight <= p.execution {
			r.res.destroy()
			continue
		}
		kept = append(kept, r)
	}
	clear(p.graveyard[len(kept):])
	p.graveyard = kept
}

func (p *transientPool) nextKey(k poolKey) poolKey {
	base := k
	k.ordinal = p.ordinals[base]
	p.ordinals[base]++
	return k
}

func (p *transientPool) buffer(desc resource.BufferDesc) (*resource.Buffer, poolKey, error) {
	label := desc.Label
	desc.Label = ""
	key := p.nextKey(poolKey{kind: kindBuffer, buffer: desc})
	if v, ok := p.idle.Take(key); ok {
		p.reused++
		return v.buf, key, nil
	}
	desc.Label = label
	buf, err := resource.NewBuffer(p.device, p.alloc, desc)
	if err != nil {
		return nil, key, err
	}
	p.created++
	p.log.Debug("rendergraph: transient buffer created", "name", label, "size", desc.Size)
	return buf, key, nil
}

func (p *transientPool) texture(desc rhi.TextureDesc) (*resource.Texture, poolKey, error) {
	label := desc.Label
	desc.Label = ""
	key := p.nextKey(poolKey{kind: kindTexture, texture: desc.Normalized()})
	if v, ok := p.idle.Take(key); ok {
		p.reused++
		return v.tex, key, nil
	}
	desc.Label = label
	tex, err := resource.NewTexture(p.device, p.alloc, desc)
	if err != nil {
		return nil, key, err
	}
	p.created++
	p.log.Debug("rendergraph: transient texture created", "name", label,
		"width", desc.Extent.Width, "height", desc.Extent.Height, "format", desc.Format)
	return tex, key, nil
}

// release makes a resource idle again.
func (p *transientPool) release(key poolKey, v pooled) {
	p.idle.Set(key, v)
}

func (p *transientPool) stats() TransientStats {
	return TransientStats{Created: p.created, Reused: p.reused, Idle: p.idle.Len(), Retired: len(p.graveyard)}
}

// destroy destroys every pooled resource. The caller must have waited for
// the device to go idle.
func (p *transientPool) destroy() {
	p.idle.Clear()
	for _, r := range p.graveyard {
		r.res.destroy()
	}
	p.graveyard = nil
}
