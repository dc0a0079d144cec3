package rendergraph

import (
	"fmt"

	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// BufferHandle names a buffer within one graph execution. The zero value
// is invalid.
type BufferHandle uint32

// TextureHandle names a texture within one graph execution. The zero value
// is invalid.
type TextureHandle uint32

// AccelerationStructureHandle names an acceleration structure within one
// graph execution. The zero value is invalid.
type AccelerationStructureHandle uint32

// IsValid reports whether h was returned by a graph.
func (h BufferHandle) IsValid() bool { return h != 0 }

// IsValid reports whether h was returned by a graph.
func (h TextureHandle) IsValid() bool { return h != 0 }

// IsValid reports whether h was returned by a graph.
func (h AccelerationStructureHandle) IsValid() bool { return h != 0 }

func (h BufferHandle) String() string                { return fmt.Sprintf("buffer#%d", uint32(h)) }
func (h TextureHandle) String() string               { return fmt.Sprintf("texture#%d", uint32(h)) }
func (h AccelerationStructureHandle) String() string { return fmt.Sprintf("accel#%d", uint32(h)) }

type bufferNode struct {
	name     string
	desc     resource.BufferDesc
	imported bool
	buf      *resource.Buffer
	access   rhi.ResourceAccessType
	usage    rhi.BufferUsage
}

type textureNode struct {
	name       string
	desc       rhi.TextureDesc
	imported   bool
	backBuffer bool
	tex        *resource.Texture
	access     rhi.ResourceAccessType
	usage      rhi.TextureUsage
}

type accelNode struct {
	name string
	as   rhi.AccelerationStructure
}

// resourceKind tags the resource an access refers to.
type resourceKind uint8

const (
	kindBuffer resourceKind = iota
	kindTexture
	kindAccel
)

// access is one declared use of a resource by a pass.
type access struct {
	kind   resourceKind
	index  int
	access rhi.ResourceAccessType
}
