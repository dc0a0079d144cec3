package d3d12

import (
	"sync/atomic"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

const (
	// constantBufferAlignment is D3D12_CONSTANT_BUFFER_DATA_PLACEMENT_ALIGNMENT.
	constantBufferAlignment = 256
	// storageBufferAlignment is the raw buffer view offset alignment.
	storageBufferAlignment = 16
	// defaultResourcePlacementAlignment is
	// D3D12_DEFAULT_RESOURCE_PLACEMENT_ALIGNMENT.
	defaultResourcePlacementAlignment = 65536
	maxTextureDimension2D             = 16384
)

// defaultAdapter is the identity reported when DeviceDesc.Adapter is zero.
var defaultAdapter = rhi.AdapterIdentity{
	Name:     "Bisemutum D3D12 Device",
	VendorID: 0x1414, // Microsoft (WARP)
	DeviceID: 0x8c,
}

func init() {
	rhi.Register(rhi.BackendD3D12, func(desc rhi.DeviceDesc) (rhi.Device, error) {
		return New(desc)
	})
}

// Device is an ID3D12Device5.
type Device struct {
	rhi.DeviceBase
	*devcore.Core

	graphicsPipelines   *devcore.ObjectCache[*GraphicsPipeline]
	computePipelines    *devcore.ObjectCache[*ComputePipeline]
	raytracingPipelines *devcore.ObjectCache[*RaytracingPipeline]
	nextPipeline        atomic.Uint64
}

// New creates a device. Descriptor heaps are always addressed by offset,
// so DeviceDesc.UseDescriptorBuffer has no effect.
func New(desc rhi.DeviceDesc) (*Device, error) {
	log := desc.Logger
	if log == nil {
		log = slogger()
	}
	adapter := desc.Adapter
	if adapter.IsZero() {
		adapter = defaultAdapter
	}
	props := rhi.DeviceProperties{
		Backend:                    rhi.BackendD3D12,
		Adapter:                    adapter,
		ConstantBufferAlignment:    constantBufferAlignment,
		StorageBufferAlignment:     storageBufferAlignment,
		ShaderGroupHandleSize:      shaderIdentifierSize,
		ShaderGroupHandleAlignment: shaderRecordAlignment,
		ShaderGroupBaseAlignment:   shaderTableAlignment,
		DescriptorHeapStrategy:     rhi.StrategyDescriptorBuffer,
		MaxTextureDimension2D:      maxTextureDimension2D,
	}
	d := &Device{
		Core:                devcore.NewCore(props, desc, log.With("backend", "d3d12")),
		graphicsPipelines:   devcore.NewObjectCache[*GraphicsPipeline](),
		computePipelines:    devcore.NewObjectCache[*ComputePipeline](),
		raytracingPipelines: devcore.NewObjectCache[*RaytracingPipeline](),
	}
	d.Log.Info("d3d12: device created", "adapter", adapter.Name)
	return d, nil
}

// Backend returns rhi.BackendD3D12.
func (d *Device) Backend() rhi.Backend { return rhi.BackendD3D12 }

// Properties returns the device limits.
func (d *Device) Properties() rhi.DeviceProperties { return d.Props }

// Queue returns the command queue of type t.
func (d *Device) Queue(t rhi.QueueType) rhi.Queue { return d.HostQueue(t) }

// CreateSwapchain creates a flip-model swapchain whose buffers are device
// textures.
func (d *Device) CreateSwapchain(desc rhi.SwapchainDesc) (rhi.Swapchain, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	sc, err := d.NewSwapchain(desc, d.CreateTexture)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// Destroy waits for all queues, persists the pipeline library and releases
// the device.
func (d *Device) Destroy() error {
	return d.Close()
}
