package rhi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gpucontext"
)

// Backend identifies one of the two native API implementations.
type Backend uint8

const (
	// BackendAuto selects the highest priority registered backend.
	BackendAuto Backend = iota
	// BackendVulkan is the Vulkan-style backend.
	BackendVulkan
	// BackendD3D12 is the Direct3D 12-style backend.
	BackendD3D12
)

// String returns the registry name of the backend.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendVulkan:
		return "vulkan"
	case BackendD3D12:
		return "d3d12"
	default:
		return fmt.Sprintf("Backend(%d)", uint8(b))
	}
}

// ParseBackend parses a backend name as used in configuration files.
// The empty string parses as BackendAuto.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "vulkan", "vk":
		return BackendVulkan, nil
	case "d3d12", "dx12":
		return BackendD3D12, nil
	}
	return BackendAuto, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, s)
}

// DeviceFactory creates a device for one backend.
type DeviceFactory func(desc DeviceDesc) (Device, error)

// backends holds the registered factories. Vulkan wins when both are
// linked in and no backend is requested.
var backends = gpucontext.NewRegistry[DeviceFactory](
	gpucontext.WithPriority(BackendVulkan.String(), BackendD3D12.String()),
)

// Register makes a backend available to CreateDevice. Backend packages
// call it from init. Only BackendVulkan and BackendD3D12 are accepted.
func Register(b Backend, f DeviceFactory) {
	if b != BackendVulkan && b != BackendD3D12 {
		panic(fmt.Sprintf("rhi: cannot register backend %v", b))
	}
	backends.Register(b.String(), func() DeviceFactory { return f })
	Logger().Debug("rhi: backend registered", "backend", b)
}

// Available returns the registered backends in priority order.
func Available() []Backend {
	var out []Backend
	for _, b := range []Backend{BackendVulkan, BackendD3D12} {
		if backends.Has(b.String()) {
			out = append(out, b)
		}
	}
	return out
}

// CreateDevice creates a device on the requested backend, or on the best
// registered one for BackendAuto.
func CreateDevice(desc DeviceDesc) (Device, error) {
	name := desc.Backend.String()
	if desc.Backend == BackendAuto {
		name = backends.BestName()
		if name == "" {
			return nil, fmt.Errorf("%w: no backend registered", ErrBackendUnavailable)
		}
	}
	if !backends.Has(name) {
		return nil, fmt.Errorf("%w: %s (registered: %s)", ErrBackendUnavailable, name,
			strings.Join(sortedNames(), ", "))
	}
	factory := backends.Get(name)
	dev, err := factory(desc)
	if err != nil {
		return nil, fmt.Errorf("rhi: create %s device: %w", name, err)
	}
	return dev, nil
}

func sortedNames() []string {
	names := backends.Available()
	slices.Sort(names)
	return names
}

// DeviceBase is embedded by backend devices. Its unexported method seals
// the Device interface to the backends of this module.
type DeviceBase struct{}

func (DeviceBase) sealedDevice() {}
