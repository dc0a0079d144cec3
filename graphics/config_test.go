package graphics

import (
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

const sampleConfig = `
backend = "d3d12"
num_frames_in_flight = 3
pipeline_cache_path = "cache/pipelines.bin"

[swapchain]
width = 1280
height = 720
format = "rgba8unorm"

[descriptors]
gpu_chunk_size = 128
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "d3d12", cfg.Backend)
	assert.Equal(t, 3, cfg.NumFramesInFlight)
	assert.Equal(t, "cache/pipelines.bin", cfg.PipelineCachePath)
	assert.Equal(t, SwapchainConfig{Width: 1280, Height: 720, Format: "rgba8unorm", NumImages: 3}, cfg.Swapchain)
	assert.Equal(t, uint32(128), cfg.Descriptors.GpuChunkSize)

	d := DefaultConfig()
	assert.Equal(t, d.Descriptors.GpuNumChunks, cfg.Descriptors.GpuNumChunks, "unset fields take defaults")
	assert.Equal(t, d.MaxTransients, cfg.MaxTransients)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "frames = 2\n"},
		{"bad backend", "backend = \"metal\"\n"},
		{"bad format", "[swapchain]\nformat = \"bc1\"\n"},
		{"not toml", "backend = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	files := rhi.NewHackpadFileSystem(fsys)
	require.NoError(t, files.WriteFile("conf/graphics.toml", []byte(sampleConfig)))

	cfg, err := LoadConfig(files, "conf/graphics.toml")
	require.NoError(t, err)
	assert.Equal(t, uint32(1280), cfg.Swapchain.Width)

	_, err = LoadConfig(files, "missing.toml")
	assert.Error(t, err)
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "vulkan"
	cfg.Swapchain.Width = 640
	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.withDefaults(), back)
}
