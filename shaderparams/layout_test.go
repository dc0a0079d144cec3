package shaderparams

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

type materialParams struct {
	BaseColor [4]float32 `shader:"base_color"`
	Roughness float32    `shader:"roughness"`
	Tint      [3]float32
	Flags     uint32  `shader:"flags"`
	Albedo    any     `shader:"albedo,sampled_texture"`
	Shadows   [2]any  `shader:"shadow_maps,sampled_texture"`
	Linear    any     `shader:"linear_sampler,sampler"`
	Hidden    float32 `shader:"-"`
	internal  int
}

type light struct {
	Dir       [3]float32
	Intensity float32
}

type sceneParams struct {
	Model   [4][4]float32 `shader:"model"`
	Scale   [2]float32    `shader:"scale"`
	Lights  [2]light      `shader:"lights"`
	Weights [5]float32    `shader:"weights"`
}

type resourcesOnly struct {
	Out  any `shader:"out,rw_storage_texture"`
	TLAS any `shader:"scene,acceleration_structure"`
}

// =============================================================================
// Layout
// =============================================================================

func TestUniformOffsets(t *testing.T) {
	l, err := LayoutOf[materialParams]()
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		name                string
		offset, size, align uint64
	}{
		{"base_color", 0, 16, 16},
		{"roughness", 16, 4, 4},
		{"Tint", 32, 12, 16},
		{"flags", 44, 4, 4},
	}
	got := l.Uniforms()
	if len(got) != len(want) {
		t.Fatalf("uniforms = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		g := got[i]
		if g.Name != w.name || g.Offset != w.offset || g.Size != w.size || g.Align != w.align {
			t.Errorf("field %d = %s@%d size %d align %d, want %s@%d size %d align %d",
				i, g.Name, g.Offset, g.Size, g.Align, w.name, w.offset, w.size, w.align)
		}
	}
	if l.UniformSize != 48 {
		t.Errorf("UniformSize = %d, want 48", l.UniformSize)
	}
	if _, ok := l.Field("Hidden"); ok {
		t.Error("skipped field present")
	}
}

func TestNestedStd140(t *testing.T) {
	l, err := LayoutOf[sceneParams]()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name         string
		offset, size uint64
	}{
		{"model", 0, 64},
		{"scale", 64, 8},
		{"lights", 80, 32},
		{"weights", 112, 80},
	}
	for _, tt := range tests {
		f, ok := l.Field(tt.name)
		if !ok {
			t.Fatalf("missing %s", tt.name)
		}
		if f.Offset != tt.offset || f.Size != tt.size {
			t.Errorf("%s: offset %d size %d, want %d %d", tt.name, f.Offset, f.Size, tt.offset, tt.size)
		}
	}
	if l.UniformSize != 192 {
		t.Errorf("UniformSize = %d, want 192", l.UniformSize)
	}
}

func TestLayoutIsCached(t *testing.T) {
	a, err := LayoutOf[materialParams]()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Of(reflect.TypeOf(&materialParams{}))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("layout rebuilt for the same type")
	}
}

func TestBindGroupLayout(t *testing.T) {
	l, err := LayoutOf[materialParams]()
	if err != nil {
		t.Fatal(err)
	}
	got := l.BindGroupLayout(rhi.ShaderStageFragment, 1)
	want := rhi.BindGroupLayout{
		{Type: rhi.DescriptorUniformBuffer, Visibility: rhi.ShaderStageFragment, Binding: 0, Space: 1},
		{Type: rhi.DescriptorSampledTexture, Count: 1, Visibility: rhi.ShaderStageFragment, Binding: 1, Space: 1},
		{Type: rhi.DescriptorSampledTexture, Count: 2, Visibility: rhi.ShaderStageFragment, Binding: 2, Space: 1},
		{Type: rhi.DescriptorSampler, Count: 1, Visibility: rhi.ShaderStageFragment, Binding: 3, Space: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("layout =\n%+v\nwant\n%+v", got, want)
	}
}

func TestResourceOnlyLayout(t *testing.T) {
	l, err := LayoutOf[resourcesOnly]()
	if err != nil {
		t.Fatal(err)
	}
	if l.UniformSize != 0 {
		t.Errorf("UniformSize = %d", l.UniformSize)
	}
	got := l.BindGroupLayout(rhi.ShaderStageCompute, 0)
	if len(got) != 2 || got[0].Type != rhi.DescriptorReadWriteStorageTexture ||
		got[1].Type != rhi.DescriptorAccelerationStructure || got[0].Binding != 0 {
		t.Errorf("layout = %+v", got)
	}
}

func TestLayoutErrors(t *testing.T) {
	type badKind struct {
		X any `shader:"x,texture"`
	}
	type badType struct {
		X float64
	}
	type badString struct {
		Name string
	}
	tests := []struct {
		name string
		typ  reflect.Type
		want error
	}{
		{"not struct", reflect.TypeFor[int](), ErrNotStruct},
		{"unknown kind", reflect.TypeFor[badKind](), ErrBadTag},
		{"float64", reflect.TypeFor[badType](), ErrUnsupportedType},
		{"string", reflect.TypeFor[badString](), ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Of(tt.typ); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// =============================================================================
// Packing
// =============================================================================

func TestPack(t *testing.T) {
	p := materialParams{
		BaseColor: [4]float32{1, 2, 3, 4},
		Roughness: 0.5,
		Tint:      [3]float32{5, 6, 7},
		Flags:     9,
	}
	data, err := Pack(&p)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 48 {
		t.Fatalf("len = %d", len(data))
	}
	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])) }
	for i, want := range []float32{1, 2, 3, 4} {
		if got := f32(4 * i); got != want {
			t.Errorf("base_color[%d] = %v", i, got)
		}
	}
	if f32(16) != 0.5 {
		t.Errorf("roughness = %v", f32(16))
	}
	if f32(32) != 5 || f32(36) != 6 || f32(40) != 7 {
		t.Errorf("tint = %v %v %v", f32(32), f32(36), f32(40))
	}
	if binary.LittleEndian.Uint32(data[44:]) != 9 {
		t.Error("flags not packed")
	}
}

func TestPackArrayStride(t *testing.T) {
	var p sceneParams
	p.Model[1][2] = 3
	p.Lights[1] = light{Dir: [3]float32{0, 1, 0}, Intensity: 2}
	p.Weights[4] = 8
	data, err := Pack(p)
	if err != nil {
		t.Fatal(err)
	}
	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])) }
	if f32(16+8) != 3 {
		t.Errorf("model[1][2] = %v", f32(24))
	}
	if f32(80+16+4) != 1 || f32(80+16+12) != 2 {
		t.Error("lights[1] misplaced")
	}
	if f32(112+4*16) != 8 {
		t.Error("weights[4] misplaced")
	}
}

func TestResourceValues(t *testing.T) {
	l, err := LayoutOf[materialParams]()
	if err != nil {
		t.Fatal(err)
	}
	p := materialParams{Albedo: "albedo", Linear: "linear"}
	got := l.ResourceValues(p)
	if len(got) != 3 || got[0] != "albedo" || got[2] != "linear" {
		t.Errorf("values = %v", got)
	}
}
