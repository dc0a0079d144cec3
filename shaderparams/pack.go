package shaderparams

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
)

// Pack writes the uniform fields of v into a new std140 block. v must be a
// struct or a pointer to one.
func Pack(v any) ([]byte, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: %T", ErrNotStruct, v)
	}
	l, err := Of(rv.Type())
	if err != nil {
		return nil, err
	}
	dst := make([]byte, l.UniformSize)
	if err := l.PackInto(dst, rv); err != nil {
		return nil, err
	}
	return dst, nil
}

// PackInto writes the uniform fields of struct value rv into dst, which
// must hold at least UniformSize bytes. Padding bytes are left untouched.
func (l *Layout) PackInto(dst []byte, rv reflect.Value) error {
	rv = reflect.Indirect(rv)
	if rv.Type() != l.Type {
		return fmt.Errorf("shaderparams: value of type %v packed with layout of %v", rv.Type(), l.Type)
	}
	if uint64(len(dst)) < l.UniformSize {
		return fmt.Errorf("shaderparams: destination holds %d bytes, need %d", len(dst), l.UniformSize)
	}
	for _, f := range l.Fields {
		if f.Kind == KindUniform {
			writeValue(dst[f.Offset:], rv.FieldByIndex(f.index))
		}
	}
	return nil
}

// ResourceValues returns the values of the resource fields of v in
// binding order.
func (l *Layout) ResourceValues(v any) []any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	var out []any
	for _, f := range l.Fields {
		if f.Kind != KindUniform {
			out = append(out, rv.FieldByIndex(f.index).Interface())
		}
	}
	return out
}

// writeValue mirrors the offsets computed by std140.
func writeValue(dst []byte, v reflect.Value) {
	switch v.Kind() {
	case reflect.Float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v.Float())))
	case reflect.Int32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v.Int())))
	case reflect.Uint32:
		binary.LittleEndian.PutUint32(dst, uint32(v.Uint()))
	case reflect.Array:
		n := v.Len()
		if isScalar(v.Type().Elem()) && n >= 2 && n <= 4 {
			for i := range n {
				writeValue(dst[4*i:], v.Index(i))
			}
			return
		}
		esize, ealign, _ := std140(v.Type().Elem())
		stride := interval.AlignUp(esize, max(ealign, 16))
		for i := range n {
			writeValue(dst[uint64(i)*stride:], v.Index(i))
		}
	case reflect.Struct:
		var cursor uint64
		for i := range v.NumField() {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			fsize, falign, _ := std140(v.Field(i).Type())
			cursor = interval.AlignUp(cursor, falign)
			writeValue(dst[cursor:], v.Field(i))
			cursor += fsize
		}
	}
}
