// Package rhi is the render hardware interface of the engine.
//
// It defines a backend-agnostic contract over command encoding, resource
// barriers, descriptor heaps and pipeline objects. Exactly two backends
// implement it, selected at device creation time:
//
//	  ┌──────────────────────────────┐
//	  │         rhi (contract)       │
//	  │ Device Buffer Texture Heap   │
//	  │ CommandEncoder Pipeline ...  │
//	  └──────────────┬───────────────┘
//	       ┌─────────┴─────────┐
//	┌──────▼──────┐     ┌──────▼──────┐
//	│ rhi/vulkan  │     │ rhi/d3d12   │
//	│ layouts,    │     │ resource    │
//	│ access/stage│     │ states,     │
//	│ masks, sets │     │ root sigs   │
//	└──────┬──────┘     └──────┬──────┘
//	       └─────────┬─────────┘
//	    ┌────────────▼────────────┐
//	    │ host GPU timeline       │
//	    │ (queues, memory, copies)│
//	    └─────────────────────────┘
//
// Backends register themselves from init. Import the ones you need for
// side effects and call [CreateDevice]:
//
//	import (
//	    "github.com/PepcyCh/bisemutum-engine-sub001/rhi"
//	    _ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/d3d12"
//	    _ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/vulkan"
//	)
//
//	dev, err := rhi.CreateDevice(rhi.DeviceDesc{Backend: rhi.BackendVulkan})
//
// # Synchronization
//
// [CommandEncoder.ResourceBarriers] is the only synchronization primitive
// inside a command buffer. Barriers are expressed with [ResourceAccessType]
// bitmasks; each backend derives its native layouts, access masks and
// resource states from them. When a barrier's source access is
// [AccessNone], the backend uses the state it tracked for the resource.
//
// # Encoders
//
// Beginning a render, compute or ray tracing pass returns a sub-encoder.
// The parent encoder is invalid until the sub-encoder's End is called.
// Recording on an invalid encoder panics.
package rhi
