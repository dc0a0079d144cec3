package rhi

import "errors"

var (
	// ErrBackendUnavailable is returned when no registered backend matches
	// the requested one.
	ErrBackendUnavailable = errors.New("rhi: backend not available")

	// ErrInvalidDesc is returned for malformed creation descriptions.
	ErrInvalidDesc = errors.New("rhi: invalid description")

	// ErrOutOfDeviceMemory is returned when a native allocation fails.
	ErrOutOfDeviceMemory = errors.New("rhi: out of device memory")

	// ErrUnsupportedFormat is returned for formats the backend cannot
	// allocate or convert.
	ErrUnsupportedFormat = errors.New("rhi: unsupported format")

	// ErrInvalidDescriptor is returned when a descriptor handle does not
	// point into a live heap of the right type.
	ErrInvalidDescriptor = errors.New("rhi: invalid descriptor handle")

	// ErrHeapExhausted is returned when a descriptor heap or its set pool
	// has no room left.
	ErrHeapExhausted = errors.New("rhi: descriptor heap exhausted")

	// ErrPipelineLayout is returned when a pipeline layout cannot be built.
	ErrPipelineLayout = errors.New("rhi: pipeline layout creation failed")

	// ErrDeviceDestroyed is returned by operations on a destroyed device.
	ErrDeviceDestroyed = errors.New("rhi: device destroyed")

	// ErrQueueMismatch is returned when a command buffer is submitted to a
	// queue of a different type than it was recorded for.
	ErrQueueMismatch = errors.New("rhi: command buffer recorded for another queue")
)
