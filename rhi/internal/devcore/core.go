package devcore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/hostgpu"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/pipecache"
)

// Core is the backend independent half of a device.
type Core struct {
	Backend     rhi.Backend
	Identity    rhi.AdapterIdentity
	Log         *slog.Logger
	Addr        *hostgpu.AddressSpace
	Cache       *pipecache.Cache
	Descriptors *DescriptorTable
	// Props are the limits the backend reports. Shared validation reads
	// its alignments.
	Props rhi.DeviceProperties

	queues    [rhi.NumQueueTypes]*Queue
	destroyed atomic.Bool
}

// NewCore starts one worker per queue type. The logger must not be nil.
func NewCore(props rhi.DeviceProperties, desc rhi.DeviceDesc, log *slog.Logger) *Core {
	backend, identity := props.Backend, props.Adapter
	c := &Core{
		Backend:     backend,
		Identity:    identity,
		Props:       props,
		Log:         log,
		Addr:        hostgpu.NewAddressSpace(),
		Descriptors: NewDescriptorTable(),
	}
	c.Cache = pipecache.New(pipecache.HeaderFor(backend, identity), desc.FileSystem,
		log.With("component", "pipecache"))
	for t := range rhi.NumQueueTypes {
		c.queues[t] = &Queue{typ: rhi.QueueType(t), core: c, q: hostgpu.NewQueue()}
	}
	return c
}

// HostQueue returns the queue of type t.
func (c *Core) HostQueue(t rhi.QueueType) *Queue {
	return c.queues[t]
}

// Alive returns ErrDeviceDestroyed once Close has run.
func (c *Core) Alive() error {
	if c.destroyed.Load() {
		return rhi.ErrDeviceDestroyed
	}
	return nil
}

// WaitIdle blocks until every queue has drained.
func (c *Core) WaitIdle() error {
	if err := c.Alive(); err != nil {
		return err
	}
	for _, q := range c.queues {
		q.q.WaitIdle()
	}
	return nil
}

// InitializePipelineCacheFrom loads the persistent pipeline cache.
func (c *Core) InitializePipelineCacheFrom(path string) error {
	return c.Cache.Load(path)
}

// PipelineCacheStats reports pipeline cache activity.
func (c *Core) PipelineCacheStats() rhi.PipelineCacheStats {
	return c.Cache.Stats()
}

// Close drains the queues, saves the pipeline cache and stops the queue
// workers. Closing twice returns ErrDeviceDestroyed.
func (c *Core) Close() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return rhi.ErrDeviceDestroyed
	}
	for _, q := range c.queues {
		q.q.WaitIdle()
		q.q.Close()
	}
	var errs []error
	if err := c.Cache.Save(); err != nil {
		c.Log.Warn("devcore: pipeline cache not saved", "err", err)
		errs = append(errs, err)
	}
	c.Log.Info("devcore: device destroyed", "backend", c.Backend)
	return errors.Join(errs...)
}

// CreateFence returns a fence bound to this device.
func (c *Core) CreateFence() rhi.Fence {
	return &Fence{f: hostgpu.NewFence(false)}
}

// CreateSemaphore returns a semaphore bound to this device.
func (c *Core) CreateSemaphore() rhi.Semaphore {
	return &Semaphore{s: hostgpu.NewSemaphore()}
}

// ErrForeignObject reports an RHI object created by another device or
// backend.
var ErrForeignObject = errors.New("devcore: object belongs to another device")

func foreign(what string, v any) error {
	return fmt.Errorf("%w: %s %T", ErrForeignObject, what, v)
}
