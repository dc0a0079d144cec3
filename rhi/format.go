package rhi

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// FormatInfo describes the memory layout of an uncompressed format.
type FormatInfo struct {
	BytesPerTexel uint32
	Channels      uint32
	Depth         bool
	Stencil       bool
}

var formatInfos = map[Format]FormatInfo{
	gputypes.TextureFormatR8Unorm:              {1, 1, false, false},
	gputypes.TextureFormatR8Uint:               {1, 1, false, false},
	gputypes.TextureFormatRG8Unorm:             {2, 2, false, false},
	gputypes.TextureFormatR16Float:             {2, 1, false, false},
	gputypes.TextureFormatR16Uint:              {2, 1, false, false},
	gputypes.TextureFormatRG16Float:            {4, 2, false, false},
	gputypes.TextureFormatR32Float:             {4, 1, false, false},
	gputypes.TextureFormatR32Uint:              {4, 1, false, false},
	gputypes.TextureFormatR32Sint:              {4, 1, false, false},
	gputypes.TextureFormatRGBA8Unorm:           {4, 4, false, false},
	gputypes.TextureFormatRGBA8UnormSrgb:       {4, 4, false, false},
	gputypes.TextureFormatBGRA8Unorm:           {4, 4, false, false},
	gputypes.TextureFormatBGRA8UnormSrgb:       {4, 4, false, false},
	gputypes.TextureFormatRGB10A2Unorm:         {4, 4, false, false},
	gputypes.TextureFormatRG32Float:            {8, 2, false, false},
	gputypes.TextureFormatRGBA16Float:          {8, 4, false, false},
	gputypes.TextureFormatRGBA32Float:          {16, 4, false, false},
	gputypes.TextureFormatRGBA32Uint:           {16, 4, false, false},
	gputypes.TextureFormatStencil8:             {1, 1, false, true},
	gputypes.TextureFormatDepth16Unorm:         {2, 1, true, false},
	gputypes.TextureFormatDepth24Plus:          {4, 1, true, false},
	gputypes.TextureFormatDepth24PlusStencil8:  {4, 2, true, true},
	gputypes.TextureFormatDepth32Float:         {4, 1, true, false},
	gputypes.TextureFormatDepth32FloatStencil8: {8, 2, true, true},
}

// LookupFormat returns layout information for f. It reports false for
// compressed and unknown formats.
func LookupFormat(f Format) (FormatInfo, bool) {
	info, ok := formatInfos[f]
	return info, ok
}

// BytesPerTexel returns the texel size of f, or zero if unknown.
func BytesPerTexel(f Format) uint32 {
	return formatInfos[f].BytesPerTexel
}

// IsDepthStencilFormat reports whether f has a depth or stencil aspect.
func IsDepthStencilFormat(f Format) bool {
	info := formatInfos[f]
	return info.Depth || info.Stencil
}

// ParseFormat looks up an uncompressed format by its gputypes name,
// ignoring case ("rgba8unorm", "BGRA8Unorm").
func ParseFormat(s string) (Format, error) {
	for f := range formatInfos {
		if strings.EqualFold(f.String(), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}
