package shaderparams

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/cache"
	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

var (
	// ErrNotStruct is returned when a parameter type is not a struct.
	ErrNotStruct = errors.New("shaderparams: not a struct")
	// ErrUnsupportedType is returned for uniform fields with no std140
	// representation.
	ErrUnsupportedType = errors.New("shaderparams: unsupported field type")
	// ErrBadTag is returned for malformed shader tags.
	ErrBadTag = errors.New("shaderparams: bad tag")
)

// Kind is the binding kind of a field.
type Kind uint8

const (
	KindUniform Kind = iota
	KindUniformBuffer
	KindStorageBuffer
	KindRWStorageBuffer
	KindSampledTexture
	KindStorageTexture
	KindRWStorageTexture
	KindSampler
	KindAccelerationStructure
)

var kindNames = [...]string{
	KindUniform:               "uniform",
	KindUniformBuffer:         "uniform_buffer",
	KindStorageBuffer:         "storage_buffer",
	KindRWStorageBuffer:       "rw_storage_buffer",
	KindSampledTexture:        "sampled_texture",
	KindStorageTexture:        "storage_texture",
	KindRWStorageTexture:      "rw_storage_texture",
	KindSampler:               "sampler",
	KindAccelerationStructure: "acceleration_structure",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func parseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// DescriptorType returns the descriptor type of a resource kind, or
// rhi.DescriptorNone for uniform data.
func (k Kind) DescriptorType() rhi.DescriptorType {
	switch k {
	case KindUniformBuffer:
		return rhi.DescriptorUniformBuffer
	case KindStorageBuffer:
		return rhi.DescriptorReadOnlyStorageBuffer
	case KindRWStorageBuffer:
		return rhi.DescriptorReadWriteStorageBuffer
	case KindSampledTexture:
		return rhi.DescriptorSampledTexture
	case KindStorageTexture:
		return rhi.DescriptorReadOnlyStorageTexture
	case KindRWStorageTexture:
		return rhi.DescriptorReadWriteStorageTexture
	case KindSampler:
		return rhi.DescriptorSampler
	case KindAccelerationStructure:
		return rhi.DescriptorAccelerationStructure
	default:
		return rhi.DescriptorNone
	}
}

// Field is one parameter of a shader parameter struct.
type Field struct {
	Name string
	Kind Kind
	// Offset, Size and Align place uniform fields inside the uniform
	// block. They are zero for resources.
	Offset uint64
	Size   uint64
	Align  uint64
	// Count is the descriptor array length of a resource field.
	Count uint32

	index []int
}

// Layout is the field list of one parameter struct.
type Layout struct {
	Type   reflect.Type
	Fields []Field
	// UniformSize is the size of the uniform block, a multiple of 16, or
	// zero when the struct has no uniform fields.
	UniformSize uint64
}

var layouts = cache.New[reflect.Type, *Layout](0)

// LayoutOf returns the layout of T.
func LayoutOf[T any]() (*Layout, error) {
	return Of(reflect.TypeFor[T]())
}

// Of returns the layout of struct type t. Layouts are computed once per
// type.
func Of(t reflect.Type) (*Layout, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNotStruct, t)
	}
	l, err := layouts.GetOrCreate(t, func() (*Layout, error) { return build(t) })
	if err != nil {
		return nil, err
	}
	return l, nil
}

func build(t reflect.Type) (*Layout, error) {
	l := &Layout{Type: t}
	var cursor, blockAlign uint64
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, ok := sf.Tag.Lookup("shader")
		if tag == "-" {
			continue
		}
		f := Field{Name: sf.Name, index: sf.Index}
		if ok {
			name, kind, _ := strings.Cut(tag, ",")
			if name != "" {
				f.Name = name
			}
			if kind != "" {
				k, ok := parseKind(kind)
				if !ok {
					return nil, fmt.Errorf("%w: %s.%s: unknown kind %q", ErrBadTag, t.Name(), sf.Name, kind)
				}
				f.Kind = k
			}
		}

		if f.Kind == KindUniform {
			size, align, err := std140(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
			}
			cursor = interval.AlignUp(cursor, align)
			f.Offset, f.Size, f.Align = cursor, size, align
			cursor += size
			blockAlign = max(blockAlign, align)
		} else {
			f.Count = 1
			if sf.Type.Kind() == reflect.Array {
				if sf.Type.Len() == 0 {
					return nil, fmt.Errorf("%w: %s.%s: empty descriptor array", ErrUnsupportedType, t.Name(), sf.Name)
				}
				f.Count = uint32(sf.Type.Len())
			}
		}
		l.Fields = append(l.Fields, f)
	}
	if cursor > 0 {
		l.UniformSize = interval.AlignUp(cursor, max(blockAlign, 16))
	}
	return l, nil
}

// std140 returns the size and alignment of t in a std140 block.
// Scalars are 4 bytes. Arrays of two to four scalars are vectors; any
// other array has a 16-byte element stride, which makes [4][4]float32 a
// column-major mat4.
func std140(t reflect.Type) (size, align uint64, err error) {
	switch t.Kind() {
	case reflect.Float32, reflect.Int32, reflect.Uint32:
		return 4, 4, nil
	case reflect.Array:
		n := uint64(t.Len())
		if n == 0 {
			return 0, 0, fmt.Errorf("%w: zero-length array", ErrUnsupportedType)
		}
		if isScalar(t.Elem()) && n >= 2 && n <= 4 {
			if n == 2 {
				return 8, 8, nil
			}
			return 4 * n, 16, nil
		}
		esize, ealign, err := std140(t.Elem())
		if err != nil {
			return 0, 0, err
		}
		align = max(ealign, 16)
		return interval.AlignUp(esize, align) * n, align, nil
	case reflect.Struct:
		var cursor uint64
		align = 16
		for i := range t.NumField() {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			fsize, falign, err := std140(sf.Type)
			if err != nil {
				return 0, 0, err
			}
			cursor = interval.AlignUp(cursor, falign) + fsize
			align = max(align, falign)
		}
		return interval.AlignUp(cursor, align), align, nil
	default:
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedType, t)
	}
}

func isScalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Float32, reflect.Int32, reflect.Uint32:
		return true
	}
	return false
}

// BindGroupLayout returns the bind group for the struct. The uniform block,
// if any, is binding 0; resources follow in field order.
func (l *Layout) BindGroupLayout(visibility rhi.ShaderStage, space uint32) rhi.BindGroupLayout {
	var out rhi.BindGroupLayout
	var binding uint32
	if l.UniformSize > 0 {
		out = append(out, rhi.BindGroupLayoutEntry{
			Type:       rhi.DescriptorUniformBuffer,
			Visibility: visibility,
			Binding:    binding,
			Space:      space,
		})
		binding++
	}
	for _, f := range l.Fields {
		if f.Kind == KindUniform {
			continue
		}
		out = append(out, rhi.BindGroupLayoutEntry{
			Type:       f.Kind.DescriptorType(),
			Count:      f.Count,
			Visibility: visibility,
			Binding:    binding,
			Space:      space,
		})
		binding++
	}
	return out
}

// Uniforms returns the uniform fields in block order.
func (l *Layout) Uniforms() []Field {
	var out []Field
	for _, f := range l.Fields {
		if f.Kind == KindUniform {
			out = append(out, f)
		}
	}
	return out
}

// Resources returns the resource fields in binding order.
func (l *Layout) Resources() []Field {
	var out []Field
	for _, f := range l.Fields {
		if f.Kind != KindUniform {
			out = append(out, f)
		}
	}
	return out
}

// Field returns the field called name.
func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
