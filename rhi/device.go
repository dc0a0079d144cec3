package rhi

import (
	"log/slog"
	"time"
)

// AdapterIdentity is the GPU fingerprint stored in pipeline cache headers.
type AdapterIdentity struct {
	Name        string
	VendorID    uint32
	DeviceID    uint32
	SubsystemID uint32
	Revision    uint32
}

// IsZero reports whether no field is set.
func (a AdapterIdentity) IsZero() bool { return a == AdapterIdentity{} }

// DeviceDesc configures device creation.
type DeviceDesc struct {
	// Backend selects the implementation. BackendAuto picks the best one.
	Backend Backend
	// Adapter overrides the reported GPU identity. Zero uses the backend's.
	Adapter AdapterIdentity
	// UseDescriptorBuffer selects descriptor-buffer heaps on backends that
	// support both strategies.
	UseDescriptorBuffer bool
	// FileSystem persists the pipeline cache. Nil disables persistence.
	FileSystem FileSystem
	// Logger receives device diagnostics. Nil uses the backend logger.
	Logger *slog.Logger
}

// DeviceProperties reports backend limits and identity.
type DeviceProperties struct {
	Backend                    Backend
	Adapter                    AdapterIdentity
	ConstantBufferAlignment    uint64
	StorageBufferAlignment     uint64
	ShaderGroupHandleSize      uint32
	ShaderGroupHandleAlignment uint32
	ShaderGroupBaseAlignment   uint32
	DescriptorHeapStrategy     DescriptorHeapStrategy
	MaxTextureDimension2D      uint32
}

// PipelineCacheStats reports persistent pipeline cache activity.
type PipelineCacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// Device creates every other RHI object. Only the backends of this module
// implement it; see Register.
type Device interface {
	Backend() Backend
	Properties() DeviceProperties
	Queue(t QueueType) Queue

	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateTexture(desc TextureDesc) (Texture, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateAccelerationStructure(desc AccelerationStructureDesc) (AccelerationStructure, error)
	AccelerationStructureBuildSizes(geometries []AccelerationStructureGeometry, numInstances uint32) AccelerationStructureBuildSizes

	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)
	CreateBufferDescriptor(buf Buffer, desc BufferDescriptorDesc, dst DescriptorHandle) error
	CreateTextureDescriptor(tex Texture, desc TextureDescriptorDesc, dst DescriptorHandle) error
	CreateSamplerDescriptor(s Sampler, dst DescriptorHandle) error
	CreateAccelerationStructureDescriptor(as AccelerationStructure, dst DescriptorHandle) error
	// CopyDescriptors copies descriptors into a contiguous range at dst,
	// packing them with PackDescriptors.
	CopyDescriptors(dst DescriptorHandle, src []DescriptorHandle, types []DescriptorType) error

	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (GraphicsPipeline, error)
	CreateComputePipeline(desc ComputePipelineDesc) (ComputePipeline, error)
	CreateRaytracingPipeline(desc RaytracingPipelineDesc) (RaytracingPipeline, error)
	// InitializePipelineCacheFrom loads a cache file written by an earlier
	// session. A missing file or a cache from another GPU leaves the cache
	// empty; neither is an error.
	InitializePipelineCacheFrom(path string) error
	PipelineCacheStats() PipelineCacheStats

	CreateCommandEncoder(queue QueueType) CommandEncoder
	CreateFence() Fence
	CreateSemaphore() Semaphore
	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)

	WaitIdle() error
	// Destroy waits for the device, writes the pipeline cache back to the
	// path it was initialized from and releases the device.
	Destroy() error

	sealedDevice()
}

// Queue executes command buffers in submission order.
type Queue interface {
	Type() QueueType
	// Submit queues command buffers. The batch starts after every wait
	// semaphore is signaled; signal semaphores and fence are signaled when
	// it completes. Fence may be nil.
	Submit(cmds []CommandBuffer, waits, signals []Semaphore, fence Fence) error
	// WaitIdle blocks until all submitted work has finished.
	WaitIdle() error
}

// Fence is signaled by the GPU when a submission completes.
type Fence interface {
	// Wait blocks until the fence is signaled or timeout elapses and
	// reports whether it was signaled. A negative timeout waits forever.
	Wait(timeout time.Duration) bool
	Signaled() bool
	Reset()
	Destroy()
}

// Semaphore orders work between queues.
type Semaphore interface {
	Destroy()
}

// SwapchainDesc describes a presentable image chain.
type SwapchainDesc struct {
	Width     uint32
	Height    uint32
	Format    Format
	NumImages uint32
}

// Swapchain is a ring of presentable textures.
type Swapchain interface {
	Desc() SwapchainDesc
	// AcquireNextTexture returns the next image; signal is signaled when
	// it is ready for rendering.
	AcquireNextTexture(signal Semaphore) (Texture, error)
	CurrentTexture() Texture
	// Present queues the current image after every wait is signaled.
	Present(waits []Semaphore) error
	// LastPresented returns the most recently presented image.
	LastPresented() Texture
	Resize(width, height uint32) error
	Destroy()
}
