package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/hack-pad/hackpadfs/mem"
)

func TestAccessTypeString(t *testing.T) {
	tests := []struct {
		access ResourceAccessType
		want   string
	}{
		{AccessNone, "none"},
		{AccessTransferWrite, "transfer_write"},
		{AccessSampledTextureRead | AccessUniformBufferRead, "uniform_buffer_read|sampled_texture_read"},
	}
	for _, tt := range tests {
		if got := tt.access.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNeedsBarrier(t *testing.T) {
	tests := []struct {
		name       string
		prev, next ResourceAccessType
		want       bool
	}{
		{"same read", AccessSampledTextureRead, AccessSampledTextureRead, false},
		{"read to write", AccessSampledTextureRead, AccessColorAttachmentWrite, true},
		{"write to write", AccessStorageWrite, AccessStorageWrite, true},
		{"read to other read", AccessSampledTextureRead, AccessTransferRead, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsBarrier(tt.prev, tt.next); got != tt.want {
				t.Errorf("NeedsBarrier(%v, %v) = %v, want %v", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]Backend{"vulkan": BackendVulkan, "VK": BackendVulkan, "d3d12": BackendD3D12, "dx12": BackendD3D12, "": BackendAuto} {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Errorf("ParseBackend(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseBackend("metal"); err == nil {
		t.Error("ParseBackend(metal) succeeded")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"rgba8unorm":    gputypes.TextureFormatRGBA8Unorm,
		"BGRA8Unorm":    gputypes.TextureFormatBGRA8Unorm,
		" depth32float": gputypes.TextureFormatDepth32Float,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("bc7unorm"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ParseFormat(bc7unorm) error = %v", err)
	}
}

func TestRecordIndex(t *testing.T) {
	rg := NewShaderModule(ShaderStageRaygen, "main", []byte{1})
	ms := NewShaderModule(ShaderStageMiss, "miss", []byte{2})
	ch := NewShaderModule(ShaderStageClosestHit, "hit", []byte{3})
	desc := &RaytracingPipelineDesc{
		Raygen:    rg,
		Miss:      []*ShaderModule{ms, ms},
		HitGroups: []HitGroup{{ClosestHit: ch}},
		Callable:  []*ShaderModule{ms},
	}
	tests := []struct {
		table ShaderBindingTableType
		index uint32
		want  uint32
	}{
		{SBTRaygen, 0, 0},
		{SBTMiss, 1, 2},
		{SBTHitGroup, 0, 3},
		{SBTCallable, 0, 4},
	}
	for _, tt := range tests {
		got, err := desc.RecordIndex(tt.table, tt.index)
		if err != nil || got != tt.want {
			t.Errorf("RecordIndex(%v, %d) = %d, %v; want %d", tt.table, tt.index, got, err, tt.want)
		}
	}
	if _, err := desc.RecordIndex(SBTHitGroup, 1); !errors.Is(err, ErrInvalidDesc) {
		t.Errorf("out of range hit group: err = %v", err)
	}
	if n := desc.NumRecords(); n != 5 {
		t.Errorf("NumRecords() = %d, want 5", n)
	}
}

func TestGraphicsPipelineCacheKey(t *testing.T) {
	vs := NewShaderModule(ShaderStageVertex, "vs_main", []byte("vertex"))
	fs := NewShaderModule(ShaderStageFragment, "fs_main", []byte("fragment"))
	newDesc := func() *GraphicsPipelineDesc {
		return &GraphicsPipelineDesc{
			Layout: PipelineLayoutDesc{BindGroups: []BindGroupLayout{{
				{Type: DescriptorUniformBuffer, Visibility: ShaderStageAllGraphics},
			}}},
			Vertex:       vs,
			Fragment:     fs,
			ColorTargets: []gputypes.ColorTargetState{{Format: gputypes.TextureFormatRGBA8Unorm, WriteMask: gputypes.ColorWriteMaskAll}},
		}
	}
	a, b := GraphicsPipelineCacheKey(newDesc()), GraphicsPipelineCacheKey(newDesc())
	if a.String() != b.String() {
		t.Fatalf("equal descs hash differently: %s vs %s", a, b)
	}
	if len(a.Stages) != 2 || a.Stages[0] != vs.Digest() {
		t.Errorf("stage digests not carried in key")
	}

	c := newDesc()
	c.ColorTargets[0].Format = gputypes.TextureFormatBGRA8Unorm
	if GraphicsPipelineCacheKey(c).State == a.State {
		t.Error("changing the color format did not change the key")
	}
}

func TestPackDescriptors(t *testing.T) {
	sizeOf := func(t DescriptorType) uint64 {
		if t.IsTexture() {
			return 32
		}
		return 16
	}
	layout := BindGroupLayout{
		{Type: DescriptorUniformBuffer},
		{Type: DescriptorSampledTexture, Count: 2},
		{Type: DescriptorSampler},
	}
	offsets, total := layout.Offsets(sizeOf)
	want := []uint64{0, 32, 64, 96}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", offsets, want)
		}
	}
	if total != 112 {
		t.Errorf("total = %d, want 112", total)
	}
}

func TestTextureDescLevels(t *testing.T) {
	desc := TextureDesc{
		Extent: gputypes.Extent3D{Width: 1024, Height: 512, DepthOrArrayLayers: 1},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}
	if n := MaxMipLevels(desc.Extent); n != 11 {
		t.Errorf("MaxMipLevels = %d, want 11", n)
	}
	if e := desc.LevelExtent(10); e.Width != 1 || e.Height != 1 {
		t.Errorf("LevelExtent(10) = %+v", e)
	}
}

func TestRegionResolve(t *testing.T) {
	r := Region{Offset: gputypes.Origin3D{X: 2, Y: 1}}.Resolve(gputypes.Extent3D{Width: 8, Height: 4, DepthOrArrayLayers: 1})
	if r.Extent.Width != 6 || r.Extent.Height != 3 || r.Extent.DepthOrArrayLayers != 1 {
		t.Errorf("Resolve = %+v", r.Extent)
	}
}

func TestHackpadFileSystem(t *testing.T) {
	memFS, err := mem.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	fsys := NewHackpadFileSystem(memFS)

	if _, err := fsys.ReadFile("cache/pipelines.bin"); !IsNotExist(err) {
		t.Fatalf("ReadFile on empty fs: err = %v, want not-exist", err)
	}
	if err := fsys.WriteFile("/cache/pipelines.bin", []byte("blob")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fsys.WriteFile("cache/pipelines.bin", []byte("new")); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}
	got, err := fsys.ReadFile("cache/pipelines.bin")
	if err != nil || string(got) != "new" {
		t.Errorf("ReadFile = %q, %v; want %q", got, err, "new")
	}
}

func TestDirFileSystem(t *testing.T) {
	fsys := DirFileSystem(t.TempDir())
	if err := fsys.WriteFile("a/b.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	got, err := fsys.ReadFile("a/b.txt")
	if err != nil || string(got) != "x" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
}
