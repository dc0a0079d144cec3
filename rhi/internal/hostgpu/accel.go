package hostgpu

import (
	"encoding/binary"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
)

// Acceleration structure storage is modeled as a fixed header plus a
// fixed node size per primitive.
const (
	accelHeaderSize   = 256
	accelTriangleSize = 64
	accelInstanceSize = 64
	accelAlign        = 256
)

// AccelerationStructureSizes returns the result size and scratch size of a
// build over the given number of triangles or instances.
func AccelerationStructureSizes(primitives uint64, topLevel bool) (size, scratch uint64) {
	node := uint64(accelTriangleSize)
	if topLevel {
		node = accelInstanceSize
	}
	size = interval.AlignUp(accelHeaderSize+node*primitives, accelAlign)
	scratch = interval.AlignUp(size/2+accelHeaderSize, accelAlign)
	return size, scratch
}

// CompactedSize returns the size a built structure compacts to.
func CompactedSize(size uint64) uint64 {
	return max(interval.AlignUp(size/2, accelAlign), accelAlign)
}

// WriteUint64 stores v little-endian at dst[offset:].
func WriteUint64(dst []byte, offset, v uint64) {
	binary.LittleEndian.PutUint64(dst[offset:offset+8], v)
}
