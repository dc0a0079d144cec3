package graphics

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/PepcyCh/bisemutum-engine-sub001/rendergraph"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// ErrConfig is returned for configuration files that cannot be used.
var ErrConfig = errors.New("graphics: invalid config")

// Config configures a Manager. Zero fields take the values of
// DefaultConfig.
type Config struct {
	// Backend is "vulkan", "d3d12" or empty for the preferred backend.
	Backend           string `toml:"backend"`
	NumFramesInFlight int    `toml:"num_frames_in_flight"`

	Swapchain   SwapchainConfig   `toml:"swapchain"`
	Descriptors DescriptorsConfig `toml:"descriptors"`
	Adapter     AdapterConfig     `toml:"adapter"`

	// PipelineCachePath is loaded at start and written on Close. Empty
	// disables the on-disk pipeline cache.
	PipelineCachePath   string `toml:"pipeline_cache_path"`
	UseDescriptorBuffer bool   `toml:"use_descriptor_buffer"`
	// MaxTransients bounds the idle render graph transients kept for reuse.
	MaxTransients int `toml:"max_transients"`
	// UniformBlockSize is the block size of the per-frame uniform
	// suballocator.
	UniformBlockSize uint64 `toml:"uniform_block_size"`
}

// SwapchainConfig describes the presentation surface. A zero Width runs
// the manager without a swapchain.
type SwapchainConfig struct {
	Width     uint32 `toml:"width"`
	Height    uint32 `toml:"height"`
	Format    string `toml:"format"`
	NumImages uint32 `toml:"num_images"`
}

// DescriptorsConfig sizes the descriptor allocators.
type DescriptorsConfig struct {
	CpuChunkSize uint32 `toml:"cpu_chunk_size"`
	GpuChunkSize uint32 `toml:"gpu_chunk_size"`
	GpuNumChunks uint32 `toml:"gpu_num_chunks"`
	NumThreads   int    `toml:"num_threads"`
}

// AdapterConfig overrides the GPU identity reported by the device, which
// also keys the pipeline cache.
type AdapterConfig struct {
	Name     string `toml:"name"`
	VendorID uint32 `toml:"vendor_id"`
	DeviceID uint32 `toml:"device_id"`
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		NumFramesInFlight: 2,
		Swapchain: SwapchainConfig{
			Format:    "BGRA8Unorm",
			NumImages: 3,
		},
		Descriptors: DescriptorsConfig{
			CpuChunkSize: 1024,
			GpuChunkSize: 256,
			GpuNumChunks: 256,
			NumThreads:   1,
		},
		MaxTransients:    rendergraph.DefaultMaxTransients,
		UniformBlockSize: 1 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NumFramesInFlight <= 0 {
		c.NumFramesInFlight = d.NumFramesInFlight
	}
	if c.Swapchain.Format == "" {
		c.Swapchain.Format = d.Swapchain.Format
	}
	if c.Swapchain.NumImages == 0 {
		c.Swapchain.NumImages = d.Swapchain.NumImages
	}
	if c.Swapchain.Height == 0 {
		c.Swapchain.Height = c.Swapchain.Width
	}
	if c.Descriptors.CpuChunkSize == 0 {
		c.Descriptors.CpuChunkSize = d.Descriptors.CpuChunkSize
	}
	if c.Descriptors.GpuChunkSize == 0 {
		c.Descriptors.GpuChunkSize = d.Descriptors.GpuChunkSize
	}
	if c.Descriptors.GpuNumChunks == 0 {
		c.Descriptors.GpuNumChunks = d.Descriptors.GpuNumChunks
	}
	if c.Descriptors.NumThreads <= 0 {
		c.Descriptors.NumThreads = d.Descriptors.NumThreads
	}
	if c.MaxTransients == 0 {
		c.MaxTransients = d.MaxTransients
	}
	if c.UniformBlockSize == 0 {
		c.UniformBlockSize = d.UniformBlockSize
	}
	return c
}

// Validate reports fields that cannot be resolved.
func (c Config) Validate() error {
	if _, err := rhi.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if c.Swapchain.Format != "" {
		if _, err := rhi.ParseFormat(c.Swapchain.Format); err != nil {
			return fmt.Errorf("%w: swapchain format: %w", ErrConfig, err)
		}
	}
	if c.NumFramesInFlight < 0 {
		return fmt.Errorf("%w: num_frames_in_flight is negative", ErrConfig)
	}
	return nil
}

func (c Config) adapter() rhi.AdapterIdentity {
	return rhi.AdapterIdentity{Name: c.Adapter.Name, VendorID: c.Adapter.VendorID, DeviceID: c.Adapter.DeviceID}
}

// ParseConfig decodes a TOML document. Unknown keys are an error so that
// typos do not silently fall back to defaults.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c.withDefaults(), nil
}

// LoadConfig reads and decodes a TOML file from fsys.
func LoadConfig(fsys rhi.FileSystem, name string) (Config, error) {
	data, err := fsys.ReadFile(name)
	if err != nil {
		return Config{}, fmt.Errorf("graphics: read config: %w", err)
	}
	return ParseConfig(data)
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
