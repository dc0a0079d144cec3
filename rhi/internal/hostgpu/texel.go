package hostgpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/x448/float16"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// DecodeTexel converts one texel of format f to RGBA floats. Depth formats
// decode depth into channel 0 and stencil into channel 1. Integer formats
// decode to their integer values.
func DecodeTexel(f rhi.Format, b []byte) [4]float32 {
	var v [4]float32
	switch f {
	case gputypes.TextureFormatR8Unorm:
		v[0] = unorm8(b[0])
	case gputypes.TextureFormatR8Uint:
		v[0] = float32(b[0])
	case gputypes.TextureFormatStencil8:
		v[1] = float32(b[0])
	case gputypes.TextureFormatRG8Unorm:
		v[0], v[1] = unorm8(b[0]), unorm8(b[1])
	case gputypes.TextureFormatR16Float:
		v[0] = half(b[0:])
	case gputypes.TextureFormatR16Uint:
		v[0] = float32(binary.LittleEndian.Uint16(b))
	case gputypes.TextureFormatRG16Float:
		v[0], v[1] = half(b[0:]), half(b[2:])
	case gputypes.TextureFormatR32Float:
		v[0] = f32(b[0:])
	case gputypes.TextureFormatR32Uint:
		v[0] = float32(binary.LittleEndian.Uint32(b))
	case gputypes.TextureFormatR32Sint:
		v[0] = float32(int32(binary.LittleEndian.Uint32(b)))
	case gputypes.TextureFormatRGBA8Unorm:
		v = [4]float32{unorm8(b[0]), unorm8(b[1]), unorm8(b[2]), unorm8(b[3])}
	case gputypes.TextureFormatRGBA8UnormSrgb:
		v = [4]float32{srgbToLinear(unorm8(b[0])), srgbToLinear(unorm8(b[1])), srgbToLinear(unorm8(b[2])), unorm8(b[3])}
	case gputypes.TextureFormatBGRA8Unorm:
		v = [4]float32{unorm8(b[2]), unorm8(b[1]), unorm8(b[0]), unorm8(b[3])}
	case gputypes.TextureFormatBGRA8UnormSrgb:
		v = [4]float32{srgbToLinear(unorm8(b[2])), srgbToLinear(unorm8(b[1])), srgbToLinear(unorm8(b[0])), unorm8(b[3])}
	case gputypes.TextureFormatRGB10A2Unorm:
		p := binary.LittleEndian.Uint32(b)
		v = [4]float32{
			float32(p&0x3FF) / 1023, float32(p>>10&0x3FF) / 1023,
			float32(p>>20&0x3FF) / 1023, float32(p>>30) / 3,
		}
	case gputypes.TextureFormatRG32Float:
		v[0], v[1] = f32(b[0:]), f32(b[4:])
	case gputypes.TextureFormatRGBA16Float:
		v = [4]float32{half(b[0:]), half(b[2:]), half(b[4:]), half(b[6:])}
	case gputypes.TextureFormatRGBA32Float:
		v = [4]float32{f32(b[0:]), f32(b[4:]), f32(b[8:]), f32(b[12:])}
	case gputypes.TextureFormatRGBA32Uint:
		for i := range 4 {
			v[i] = float32(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case gputypes.TextureFormatDepth16Unorm:
		v[0] = float32(binary.LittleEndian.Uint16(b)) / 0xFFFF
	case gputypes.TextureFormatDepth24Plus:
		v[0] = float32(binary.LittleEndian.Uint32(b)&0xFFFFFF) / 0xFFFFFF
	case gputypes.TextureFormatDepth24PlusStencil8:
		p := binary.LittleEndian.Uint32(b)
		v[0], v[1] = float32(p&0xFFFFFF)/0xFFFFFF, float32(p>>24)
	case gputypes.TextureFormatDepth32Float:
		v[0] = f32(b)
	case gputypes.TextureFormatDepth32FloatStencil8:
		v[0], v[1] = f32(b), float32(b[4])
	}
	return v
}

// EncodeTexel writes v into b in format f. Values are clamped to the range
// of the format.
func EncodeTexel(f rhi.Format, v [4]float32, b []byte) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		b[0] = toUnorm8(v[0])
	case gputypes.TextureFormatR8Uint:
		b[0] = uint8(clamp(v[0], 0, 0xFF))
	case gputypes.TextureFormatStencil8:
		b[0] = uint8(clamp(v[1], 0, 0xFF))
	case gputypes.TextureFormatRG8Unorm:
		b[0], b[1] = toUnorm8(v[0]), toUnorm8(v[1])
	case gputypes.TextureFormatR16Float:
		putHalf(b[0:], v[0])
	case gputypes.TextureFormatR16Uint:
		binary.LittleEndian.PutUint16(b, uint16(clamp(v[0], 0, 0xFFFF)))
	case gputypes.TextureFormatRG16Float:
		putHalf(b[0:], v[0])
		putHalf(b[2:], v[1])
	case gputypes.TextureFormatR32Float:
		putF32(b[0:], v[0])
	case gputypes.TextureFormatR32Uint:
		binary.LittleEndian.PutUint32(b, uint32(clamp(v[0], 0, math.MaxUint32)))
	case gputypes.TextureFormatR32Sint:
		binary.LittleEndian.PutUint32(b, uint32(int32(clamp(v[0], math.MinInt32, math.MaxInt32))))
	case gputypes.TextureFormatRGBA8Unorm:
		b[0], b[1], b[2], b[3] = toUnorm8(v[0]), toUnorm8(v[1]), toUnorm8(v[2]), toUnorm8(v[3])
	case gputypes.TextureFormatRGBA8UnormSrgb:
		b[0], b[1], b[2], b[3] = toUnorm8(linearToSrgb(v[0])), toUnorm8(linearToSrgb(v[1])),
			toUnorm8(linearToSrgb(v[2])), toUnorm8(v[3])
	case gputypes.TextureFormatBGRA8Unorm:
		b[0], b[1], b[2], b[3] = toUnorm8(v[2]), toUnorm8(v[1]), toUnorm8(v[0]), toUnorm8(v[3])
	case gputypes.TextureFormatBGRA8UnormSrgb:
		b[0], b[1], b[2], b[3] = toUnorm8(linearToSrgb(v[2])), toUnorm8(linearToSrgb(v[1])),
			toUnorm8(linearToSrgb(v[0])), toUnorm8(v[3])
	case gputypes.TextureFormatRGB10A2Unorm:
		p := uint32(clamp(v[0], 0, 1)*1023+0.5) |
			uint32(clamp(v[1], 0, 1)*1023+0.5)<<10 |
			uint32(clamp(v[2], 0, 1)*1023+0.5)<<20 |
			uint32(clamp(v[3], 0, 1)*3+0.5)<<30
		binary.LittleEndian.PutUint32(b, p)
	case gputypes.TextureFormatRG32Float:
		putF32(b[0:], v[0])
		putF32(b[4:], v[1])
	case gputypes.TextureFormatRGBA16Float:
		for i := range 4 {
			putHalf(b[i*2:], v[i])
		}
	case gputypes.TextureFormatRGBA32Float:
		for i := range 4 {
			putF32(b[i*4:], v[i])
		}
	case gputypes.TextureFormatRGBA32Uint:
		for i := range 4 {
			binary.LittleEndian.PutUint32(b[i*4:], uint32(clamp(v[i], 0, math.MaxUint32)))
		}
	case gputypes.TextureFormatDepth16Unorm:
		binary.LittleEndian.PutUint16(b, uint16(clamp(v[0], 0, 1)*0xFFFF+0.5))
	case gputypes.TextureFormatDepth24Plus:
		binary.LittleEndian.PutUint32(b, uint32(clamp(v[0], 0, 1)*0xFFFFFF+0.5))
	case gputypes.TextureFormatDepth24PlusStencil8:
		p := uint32(clamp(v[0], 0, 1)*0xFFFFFF+0.5) | uint32(clamp(v[1], 0, 0xFF))<<24
		binary.LittleEndian.PutUint32(b, p)
	case gputypes.TextureFormatDepth32Float:
		putF32(b, v[0])
	case gputypes.TextureFormatDepth32FloatStencil8:
		putF32(b, v[0])
		b[4] = uint8(clamp(v[1], 0, 0xFF))
	}
}

func unorm8(b byte) float32 { return float32(b) / 255 }

func toUnorm8(v float32) byte { return byte(clamp(v, 0, 1)*255 + 0.5) }

func clamp(v, lo, hi float32) float32 {
	if v != v { // NaN
		return lo
	}
	return min(max(v, lo), hi)
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func putHalf(b []byte, v float32) {
	binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
}

func f32(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

func putF32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }

func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(math.Pow((float64(c)+0.055)/1.055, 2.4))
}

func linearToSrgb(c float32) float32 {
	if c <= 0.0031308 {
		return c * 12.92
	}
	return float32(1.055*math.Pow(float64(c), 1/2.4) - 0.055)
}
