package graphics

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PepcyCh/bisemutum-engine-sub001/descalloc"
	"github.com/PepcyCh/bisemutum-engine-sub001/handle"
	"github.com/PepcyCh/bisemutum-engine-sub001/rendergraph"
	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/shadercompiler"
)

var (
	// ErrFrameOrder is returned when BeginFrame, RenderFrame and EndFrame
	// are called out of order.
	ErrFrameOrder = errors.New("graphics: frame calls out of order")

	// ErrNoSwapchain is returned by swapchain operations on a manager
	// created without one.
	ErrNoSwapchain = errors.New("graphics: no swapchain")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("graphics: manager closed")
)

type frameState uint8

const (
	frameIdle frameState = iota
	frameBegun
	frameRendered
)

// frame holds the synchronization objects of one frame in flight.
type frame struct {
	fence     rhi.Fence
	acquired  rhi.Semaphore
	rendered  rhi.Semaphore
	submitted bool
	uploads   []resource.BufferAllocation
}

// Manager owns the device and everything shared by the frames rendered on
// it. It is not safe for concurrent use.
type Manager struct {
	cfg    Config
	log    *slog.Logger
	device rhi.Device

	swapchain  rhi.Swapchain
	backBuffer rhi.Texture

	shaders      *shadercompiler.Compiler
	cpuResources *descalloc.CpuDescriptorAllocator
	cpuSamplers  *descalloc.CpuDescriptorAllocator
	gpuResources *descalloc.GpuDescriptorAllocator
	uniforms     *resource.BufferSuballocator
	graph        *rendergraph.RenderGraph

	frames      []frame
	frameIndex  int
	frameNumber uint64
	state       frameState
	thisFrame   []func(rhi.CommandEncoder) error

	cameras   *handle.SlotTable[*Camera]
	drawables *handle.SlotTable[*Drawable]

	closed bool
}

// NewManager creates the device and the per-frame state described by cfg.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	log := o.logger
	if log == nil {
		log = slogger()
	}
	backend, _ := rhi.ParseBackend(cfg.Backend)
	if o.backend != nil {
		backend = *o.backend
	}

	device, err := rhi.CreateDevice(rhi.DeviceDesc{
		Backend:             backend,
		Adapter:             cfg.adapter(),
		UseDescriptorBuffer: cfg.UseDescriptorBuffer,
		FileSystem:          o.fileSystem,
		Logger:              log,
	})
	if err != nil {
		return nil, fmt.Errorf("graphics: create device: %w", err)
	}
	m := &Manager{
		cfg:       cfg,
		log:       log,
		device:    device,
		cameras:   handle.NewSlotTable[*Camera](),
		drawables: handle.NewSlotTable[*Drawable](),
	}
	if err := m.init(o); err != nil {
		m.release()
		_ = device.Destroy()
		return nil, err
	}
	log.Info("graphics: manager created",
		"backend", device.Backend(),
		"frames_in_flight", cfg.NumFramesInFlight,
		"swapchain", m.swapchain != nil)
	return m, nil
}

func (m *Manager) init(o options) error {
	cfg := m.cfg
	if o.fileSystem != nil && cfg.PipelineCachePath != "" {
		if err := m.device.InitializePipelineCacheFrom(cfg.PipelineCachePath); err != nil {
			return fmt.Errorf("graphics: load pipeline cache: %w", err)
		}
	}

	m.shaders = shadercompiler.New(shadercompiler.Config{Logger: m.log})
	m.cpuResources = descalloc.NewCpuDescriptorAllocator(m.device, descalloc.CpuAllocatorDesc{
		Type: rhi.DescriptorHeapResource, ChunkSize: cfg.Descriptors.CpuChunkSize, Logger: m.log,
	})
	m.cpuSamplers = descalloc.NewCpuDescriptorAllocator(m.device, descalloc.CpuAllocatorDesc{
		Type: rhi.DescriptorHeapSampler, ChunkSize: cfg.Descriptors.CpuChunkSize, Logger: m.log,
	})
	gpu, err := descalloc.NewGpuDescriptorAllocator(m.device, descalloc.GpuAllocatorDesc{
		Type:       rhi.DescriptorHeapResource,
		ChunkSize:  cfg.Descriptors.GpuChunkSize,
		NumChunks:  cfg.Descriptors.GpuNumChunks,
		NumFrames:  cfg.NumFramesInFlight,
		NumThreads: cfg.Descriptors.NumThreads,
		Logger:     m.log,
	})
	if err != nil {
		return err
	}
	m.gpuResources = gpu

	m.uniforms, err = resource.NewBufferSuballocator(m.device, resource.BufferSuballocatorDesc{
		Label:          "frame uniforms",
		BlockSize:      cfg.UniformBlockSize,
		Usage:          rhi.BufferUsageUniform,
		MemoryProperty: rhi.MemoryCpuToGpu,
	})
	if err != nil {
		return err
	}

	m.graph = rendergraph.New(rendergraph.Config{
		Device:            m.device,
		Descriptors:       m.cpuResources,
		GpuDescriptors:    m.gpuResources,
		NumFramesInFlight: cfg.NumFramesInFlight,
		MaxTransients:     cfg.MaxTransients,
		Logger:            m.log,
	})

	if cfg.Swapchain.Width > 0 {
		format, _ := rhi.ParseFormat(cfg.Swapchain.Format)
		m.swapchain, err = m.device.CreateSwapchain(rhi.SwapchainDesc{
			Width:     cfg.Swapchain.Width,
			Height:    cfg.Swapchain.Height,
			Format:    format,
			NumImages: cfg.Swapchain.NumImages,
		})
		if err != nil {
			return fmt.Errorf("graphics: create swapchain: %w", err)
		}
	}

	m.frames = make([]frame, cfg.NumFramesInFlight)
	for i := range m.frames {
		f := &m.frames[i]
		f.fence = m.device.CreateFence()
		if m.swapchain != nil {
			f.acquired = m.device.CreateSemaphore()
			f.rendered = m.device.CreateSemaphore()
		}
	}
	return nil
}

// Device returns the device.
func (m *Manager) Device() rhi.Device { return m.device }

// Config returns the configuration with defaults applied.
func (m *Manager) Config() Config { return m.cfg }

// Graph returns the render graph. Passes added between BeginFrame and
// RenderFrame run in that frame.
func (m *Manager) Graph() *rendergraph.RenderGraph { return m.graph }

// Shaders returns the shader compiler.
func (m *Manager) Shaders() *shadercompiler.Compiler { return m.shaders }

// CompileShader compiles src for the device's backend.
func (m *Manager) CompileShader(src shadercompiler.Source) (*rhi.ShaderModule, error) {
	return m.shaders.CompileFor(m.device.Backend(), src)
}

// FrameIndex returns the frame-in-flight slot of the current frame.
func (m *Manager) FrameIndex() int { return m.frameIndex }

// FrameNumber returns the number of frames ended so far.
func (m *Manager) FrameNumber() uint64 { return m.frameNumber }

// Swapchain returns the swapchain, or nil for a headless manager.
func (m *Manager) Swapchain() rhi.Swapchain { return m.swapchain }

// BackBuffer returns the swapchain image acquired by BeginFrame.
func (m *Manager) BackBuffer() rhi.Texture { return m.backBuffer }

// =============================================================================
// Persistent resources
// =============================================================================

// CreateBuffer creates a buffer whose views come from the manager's CPU
// descriptor allocator.
func (m *Manager) CreateBuffer(desc resource.BufferDesc) (*resource.Buffer, error) {
	return resource.NewBuffer(m.device, m.cpuResources, desc)
}

// CreateTexture creates a texture whose views come from the manager's CPU
// descriptor allocator.
func (m *Manager) CreateTexture(desc rhi.TextureDesc) (*resource.Texture, error) {
	return resource.NewTexture(m.device, m.cpuResources, desc)
}

// CreateSampler creates a sampler with a CPU descriptor.
func (m *Manager) CreateSampler(desc rhi.SamplerDesc) (*resource.Sampler, error) {
	return resource.NewSampler(m.device, m.cpuSamplers, desc)
}

// =============================================================================
// Frame loop
// =============================================================================

// BeginFrame waits until the current slot's previous frame has finished on
// the GPU, recycles its descriptors and uploads, and acquires the next
// swapchain image.
func (m *Manager) BeginFrame() error {
	if m.closed {
		return ErrClosed
	}
	if m.state != frameIdle {
		return fmt.Errorf("%w: BeginFrame during a frame", ErrFrameOrder)
	}
	f := &m.frames[m.frameIndex]
	if f.submitted {
		f.fence.Wait(-1)
		f.submitted = false
	}
	f.fence.Reset()
	m.gpuResources.Reset(m.frameIndex)
	for _, a := range f.uploads {
		if err := m.uniforms.Free(a); err != nil {
			m.log.Warn("graphics: free frame upload", "err", err)
		}
	}
	f.uploads = f.uploads[:0]

	if m.swapchain != nil {
		tex, err := m.swapchain.AcquireNextTexture(f.acquired)
		if err != nil {
			return fmt.Errorf("graphics: acquire back buffer: %w", err)
		}
		m.backBuffer = tex
	}
	m.state = frameBegun
	return nil
}

// RenderFrame records the work queued with ExecuteInThisFrame followed by
// the render graph, and submits it.
//
// When a queued callback fails nothing is submitted and the graph's passes
// are discarded. The failing callback is dropped; those queued after it
// stay queued. The frame stays begun, so RenderFrame may be called again,
// and its submission still waits on the acquired back buffer.
func (m *Manager) RenderFrame() error {
	if m.state != frameBegun {
		return fmt.Errorf("%w: RenderFrame outside BeginFrame", ErrFrameOrder)
	}
	f := &m.frames[m.frameIndex]
	enc := m.device.CreateCommandEncoder(rhi.QueueGraphics)

	queued := m.thisFrame
	m.thisFrame = nil
	for i, fn := range queued {
		if err := fn(enc); err != nil {
			enc.Finish()
			m.thisFrame = append(queued[i+1:len(queued):len(queued)], m.thisFrame...)
			m.graph.Reset()
			return fmt.Errorf("graphics: frame callback: %w", err)
		}
	}
	if err := m.graph.Execute(enc, m.frameIndex); err != nil {
		enc.Finish()
		return err
	}

	var waits, signals []rhi.Semaphore
	if m.swapchain != nil {
		waits = []rhi.Semaphore{f.acquired}
		signals = []rhi.Semaphore{f.rendered}
	}
	if err := m.device.Queue(rhi.QueueGraphics).Submit([]rhi.CommandBuffer{enc.Finish()}, waits, signals, f.fence); err != nil {
		return fmt.Errorf("graphics: submit frame: %w", err)
	}
	f.submitted = true
	m.state = frameRendered
	return nil
}

// EndFrame presents the back buffer and advances to the next frame slot.
func (m *Manager) EndFrame() error {
	if m.state != frameRendered {
		return fmt.Errorf("%w: EndFrame before RenderFrame", ErrFrameOrder)
	}
	if m.swapchain != nil {
		if err := m.swapchain.Present([]rhi.Semaphore{m.frames[m.frameIndex].rendered}); err != nil {
			return fmt.Errorf("graphics: present: %w", err)
		}
	}
	m.state = frameIdle
	m.frameNumber++
	m.frameIndex = int(m.frameNumber % uint64(len(m.frames)))
	return nil
}

// ExecuteInThisFrame queues fn to record into the frame's command encoder
// before the render graph runs. Calls made outside a frame apply to the
// next one.
func (m *Manager) ExecuteInThisFrame(fn func(enc rhi.CommandEncoder) error) {
	m.thisFrame = append(m.thisFrame, fn)
}

// ExecuteImmediately records fn into its own command buffer, submits it
// and waits for it to finish.
func (m *Manager) ExecuteImmediately(fn func(enc rhi.CommandEncoder) error) error {
	if m.closed {
		return ErrClosed
	}
	enc := m.device.CreateCommandEncoder(rhi.QueueGraphics)
	if err := fn(enc); err != nil {
		enc.Finish()
		return err
	}
	fence := m.device.CreateFence()
	defer fence.Destroy()
	if err := m.device.Queue(rhi.QueueGraphics).Submit([]rhi.CommandBuffer{enc.Finish()}, nil, nil, fence); err != nil {
		return fmt.Errorf("graphics: submit: %w", err)
	}
	fence.Wait(-1)
	return nil
}

// UploadParams packs a shader parameter struct into a uniform range that
// stays valid until this frame slot comes around again.
func (m *Manager) UploadParams(params any) (resource.BufferAllocation, error) {
	data, err := packParams(params)
	if err != nil {
		return resource.BufferAllocation{}, err
	}
	a, err := m.uniforms.Allocate(uint64(len(data)), m.device.Properties().ConstantBufferAlignment)
	if err != nil {
		return resource.BufferAllocation{}, err
	}
	dst := a.Buffer.Map()
	copy(dst[a.Offset:a.Offset+a.Size], data)
	a.Buffer.Unmap()
	f := &m.frames[m.frameIndex]
	f.uploads = append(f.uploads, a)
	return a, nil
}

// Resize recreates the swapchain images.
func (m *Manager) Resize(width, height uint32) error {
	if m.swapchain == nil {
		return ErrNoSwapchain
	}
	if m.state != frameIdle {
		return fmt.Errorf("%w: Resize during a frame", ErrFrameOrder)
	}
	if err := m.device.WaitIdle(); err != nil {
		return err
	}
	m.graph.ReleaseBackBuffers()
	m.backBuffer = nil
	if err := m.swapchain.Resize(width, height); err != nil {
		return fmt.Errorf("graphics: resize swapchain: %w", err)
	}
	m.cfg.Swapchain.Width, m.cfg.Swapchain.Height = width, height
	return nil
}

// WaitIdle waits for every submitted frame.
func (m *Manager) WaitIdle(timeout time.Duration) bool {
	for i := range m.frames {
		f := &m.frames[i]
		if f.submitted && !f.fence.Wait(timeout) {
			return false
		}
	}
	return true
}

// Close waits for the device, destroys everything the manager created and
// writes the pipeline cache.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.device.WaitIdle(); err != nil {
		m.log.Warn("graphics: wait idle on close", "err", err)
	}
	m.release()
	err := m.device.Destroy()
	m.log.Info("graphics: manager closed", "frames", m.frameNumber)
	return err
}

func (m *Manager) release() {
	if m.graph != nil {
		m.graph.Close()
	}
	for i := range m.frames {
		f := &m.frames[i]
		f.fence.Destroy()
		if f.acquired != nil {
			f.acquired.Destroy()
			f.rendered.Destroy()
		}
	}
	if m.swapchain != nil {
		m.swapchain.Destroy()
	}
	if m.uniforms != nil {
		m.uniforms.Destroy()
	}
	if m.gpuResources != nil {
		m.gpuResources.Destroy()
	}
	if m.cpuSamplers != nil {
		m.cpuSamplers.Destroy()
	}
	if m.cpuResources != nil {
		m.cpuResources.Destroy()
	}
}
