package hostgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// Image is the backing store of a texture: one tightly packed byte slice
// per (layer, level) subresource.
type Image struct {
	Format rhi.Format
	Info   rhi.FormatInfo
	Desc   rhi.TextureDesc
	Levels uint32
	Layers uint32

	subs [][]byte
}

// NewImage allocates zeroed storage for desc.
func NewImage(desc rhi.TextureDesc) (*Image, error) {
	desc = desc.Normalized()
	info, ok := rhi.LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", rhi.ErrUnsupportedFormat, desc.Format)
	}
	im := &Image{
		Format: desc.Format,
		Info:   info,
		Desc:   desc,
		Levels: desc.Levels,
		Layers: desc.Layers(),
	}
	im.subs = make([][]byte, im.Levels*im.Layers)
	for layer := range im.Layers {
		for level := range im.Levels {
			e := desc.LevelExtent(level)
			im.subs[layer*im.Levels+level] = make([]byte, uint64(e.Width)*uint64(e.Height)*
				uint64(e.DepthOrArrayLayers)*uint64(info.BytesPerTexel))
		}
	}
	return im, nil
}

// Extent returns the size of a mip level.
func (im *Image) Extent(level uint32) gputypes.Extent3D {
	return im.Desc.LevelExtent(level)
}

// Sub returns the bytes of one subresource.
func (im *Image) Sub(level, layer uint32) []byte {
	if level >= im.Levels || layer >= im.Layers {
		panic(fmt.Sprintf("hostgpu: subresource (level %d, layer %d) out of range (%d, %d)",
			level, layer, im.Levels, im.Layers))
	}
	return im.subs[layer*im.Levels+level]
}

// RowPitch returns the byte size of one row of a level.
func (im *Image) RowPitch(level uint32) uint64 {
	return uint64(im.Extent(level).Width) * uint64(im.Info.BytesPerTexel)
}

// texelOffset returns the byte offset of (x, y, z) in a level.
func (im *Image) texelOffset(level, x, y, z uint32) uint64 {
	e := im.Extent(level)
	bpt := uint64(im.Info.BytesPerTexel)
	return ((uint64(z)*uint64(e.Height)+uint64(y))*uint64(e.Width) + uint64(x)) * bpt
}

// Texel returns the slice holding one texel.
func (im *Image) Texel(level, layer, x, y, z uint32) []byte {
	off := im.texelOffset(level, x, y, z)
	return im.Sub(level, layer)[off : off+uint64(im.Info.BytesPerTexel)]
}

// Load decodes one texel.
func (im *Image) Load(level, layer, x, y, z uint32) [4]float32 {
	return DecodeTexel(im.Format, im.Texel(level, layer, x, y, z))
}

// Store encodes one texel.
func (im *Image) Store(level, layer, x, y, z uint32, v [4]float32) {
	EncodeTexel(im.Format, v, im.Texel(level, layer, x, y, z))
}
