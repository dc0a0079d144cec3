package devcore

import (
	"fmt"
	"time"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/hostgpu"
)

// Fence wraps a host fence.
type Fence struct{ f *hostgpu.Fence }

func (f *Fence) Wait(timeout time.Duration) bool { return f.f.Wait(timeout) }
func (f *Fence) Signaled() bool                  { return f.f.Signaled() }
func (f *Fence) Reset()                          { f.f.Reset() }
func (f *Fence) Destroy()                        {}

// Semaphore wraps a host semaphore.
type Semaphore struct{ s *hostgpu.Semaphore }

func (s *Semaphore) Destroy() {}

// CommandBuffer is a finished list of native commands.
type CommandBuffer struct {
	queue rhi.QueueType
	trace []string
	ops   []func()
}

// QueueType returns the queue the buffer was recorded for.
func (cb *CommandBuffer) QueueType() rhi.QueueType { return cb.queue }

// Trace returns the native command names in recording order.
func (cb *CommandBuffer) Trace() []string {
	out := make([]string, len(cb.trace))
	copy(out, cb.trace)
	return out
}

// Queue submits command buffers to a host queue worker.
type Queue struct {
	typ  rhi.QueueType
	core *Core
	q    *hostgpu.Queue
}

// Type returns the queue type.
func (q *Queue) Type() rhi.QueueType { return q.typ }

// Submit queues cmds behind waits; signals and fence fire when they finish.
func (q *Queue) Submit(cmds []rhi.CommandBuffer, waits, signals []rhi.Semaphore, fence rhi.Fence) error {
	if err := q.core.Alive(); err != nil {
		return err
	}
	var b hostgpu.Batch
	for _, c := range cmds {
		cb, ok := c.(*CommandBuffer)
		if !ok {
			return foreign("command buffer", c)
		}
		if cb.queue != q.typ {
			return fmt.Errorf("%w: %v command buffer on %v queue", rhi.ErrQueueMismatch, cb.queue, q.typ)
		}
		b.Ops = append(b.Ops, cb.ops...)
	}
	for _, s := range waits {
		hs, err := hostSemaphore(s)
		if err != nil {
			return err
		}
		b.Waits = append(b.Waits, hs)
	}
	for _, s := range signals {
		hs, err := hostSemaphore(s)
		if err != nil {
			return err
		}
		b.Signals = append(b.Signals, hs)
	}
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return foreign("fence", fence)
		}
		b.Fence = f.f
	}
	if !q.q.Submit(b) {
		return rhi.ErrDeviceDestroyed
	}
	return nil
}

// WaitIdle blocks until every submitted batch has finished.
func (q *Queue) WaitIdle() error {
	if err := q.core.Alive(); err != nil {
		return err
	}
	q.q.WaitIdle()
	return nil
}

// run submits a single op outside any command buffer.
func (q *Queue) run(waits []*hostgpu.Semaphore, op func()) bool {
	return q.q.Submit(hostgpu.Batch{Waits: waits, Ops: []func(){op}})
}

func hostSemaphore(s rhi.Semaphore) (*hostgpu.Semaphore, error) {
	hs, ok := s.(*Semaphore)
	if !ok {
		return nil, foreign("semaphore", s)
	}
	return hs.s, nil
}
