//go:build !(js && wasm)

package vulkan

import (
	"sync/atomic"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

const (
	// constantBufferAlignment is minUniformBufferOffsetAlignment.
	constantBufferAlignment = 64
	storageBufferAlignment  = 16
	maxTextureDimension2D   = 16384
)

// defaultAdapter is the identity reported when DeviceDesc.Adapter is zero.
var defaultAdapter = rhi.AdapterIdentity{
	Name:     "Bisemutum Vulkan Device",
	VendorID: 0x10005, // VK_VENDOR_ID_MESA
	DeviceID: 0x1,
}

func init() {
	rhi.Register(rhi.BackendVulkan, func(desc rhi.DeviceDesc) (rhi.Device, error) {
		return New(desc)
	})
}

// Device is a Vulkan logical device.
type Device struct {
	rhi.DeviceBase
	*devcore.Core

	strategy rhi.DescriptorHeapStrategy

	graphicsPipelines   *devcore.ObjectCache[*GraphicsPipeline]
	computePipelines    *devcore.ObjectCache[*ComputePipeline]
	raytracingPipelines *devcore.ObjectCache[*RaytracingPipeline]
	nextPipeline        atomic.Uint64
}

// New creates a device. Descriptor sets come from pools unless
// desc.UseDescriptorBuffer selects VK_EXT_descriptor_buffer.
func New(desc rhi.DeviceDesc) (*Device, error) {
	log := desc.Logger
	if log == nil {
		log = slogger()
	}
	adapter := desc.Adapter
	if adapter.IsZero() {
		adapter = defaultAdapter
	}
	strategy := rhi.StrategyDescriptorTable
	if desc.UseDescriptorBuffer {
		strategy = rhi.StrategyDescriptorBuffer
	}
	props := rhi.DeviceProperties{
		Backend:                    rhi.BackendVulkan,
		Adapter:                    adapter,
		ConstantBufferAlignment:    constantBufferAlignment,
		StorageBufferAlignment:     storageBufferAlignment,
		ShaderGroupHandleSize:      shaderGroupHandleSize,
		ShaderGroupHandleAlignment: shaderGroupHandleAlignment,
		ShaderGroupBaseAlignment:   shaderGroupBaseAlignment,
		DescriptorHeapStrategy:     strategy,
		MaxTextureDimension2D:      maxTextureDimension2D,
	}
	d := &Device{
		Core:                devcore.NewCore(props, desc, log.With("backend", "vulkan")),
		strategy:            strategy,
		graphicsPipelines:   devcore.NewObjectCache[*GraphicsPipeline](),
		computePipelines:    devcore.NewObjectCache[*ComputePipeline](),
		raytracingPipelines: devcore.NewObjectCache[*RaytracingPipeline](),
	}
	d.Log.Info("vulkan: device created", "adapter", adapter.Name, "descriptor_strategy", strategy)
	return d, nil
}

// Backend returns rhi.BackendVulkan.
func (d *Device) Backend() rhi.Backend { return rhi.BackendVulkan }

// Properties returns the device limits.
func (d *Device) Properties() rhi.DeviceProperties { return d.Props }

// Queue returns the queue of type t. Queue family indices follow the
// queue type.
func (d *Device) Queue(t rhi.QueueType) rhi.Queue { return d.HostQueue(t) }

// CreateSwapchain creates a swapchain whose images are device textures.
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

// Destroy waits for all queues, persists the pipeline cache and releases
// the device.
func (d *Device) Destroy() error {
	return d.Close()
}
