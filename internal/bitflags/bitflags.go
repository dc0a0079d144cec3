// Package bitflags provides helpers for typed bitmask enums.
//
// Every flag type in the engine is a named unsigned integer whose
// constants are single bits. The helpers here work on any such type so
// that each flag type only declares its bits and String method.
package bitflags

import (
	"math/bits"
	"strconv"
	"strings"
)

// Bits is the set of underlying types a flag type may use.
type Bits interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Has reports whether all bits of want are set in f.
func Has[T Bits](f, want T) bool {
	return f&want == want
}

// Any reports whether at least one bit of want is set in f.
func Any[T Bits](f, want T) bool {
	return f&want != 0
}

// Count returns the number of set bits.
func Count[T Bits](f T) int {
	return bits.OnesCount64(uint64(f))
}

// Each calls fn for every set bit of f, lowest bit first.
func Each[T Bits](f T, fn func(bit T)) {
	v := uint64(f)
	for v != 0 {
		low := v & -v
		fn(T(low))
		v &^= low
	}
}

// Format renders f as "a|b|c" using names for known bits. Unknown bits are
// printed in hex. A zero value renders as zero.
func Format[T Bits](f T, names map[T]string, zero string) string {
	if f == 0 {
		return zero
	}
	var sb strings.Builder
	Each(f, func(bit T) {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		if n, ok := names[bit]; ok {
			sb.WriteString(n)
			return
		}
		sb.WriteString("0x")
		sb.WriteString(strconv.FormatUint(uint64(bit), 16))
	})
	return sb.String()
}
