package hostgpu

import (
	"sync"
	"time"
)

// Fence is signaled by a queue once a batch completes.
type Fence struct {
	mu   sync.Mutex
	done chan struct{}
	set  bool
}

// NewFence returns a fence, optionally already signaled.
func NewFence(signaled bool) *Fence {
	f := &Fence{done: make(chan struct{})}
	if signaled {
		f.Signal()
	}
	return f
}

// Signal marks the fence complete. Signaling twice is a no-op.
func (f *Fence) Signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		f.set = true
		close(f.done)
	}
}

// Signaled reports whether the fence has been signaled.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Reset returns the fence to the unsignaled state.
func (f *Fence) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		f.set = false
		f.done = make(chan struct{})
	}
}

// Wait blocks until the fence is signaled or timeout elapses.
// A negative timeout waits forever.
func (f *Fence) Wait(timeout time.Duration) bool {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	select {
	case <-done:
		return true
	default:
	}
	if timeout < 0 {
		<-done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Semaphore orders batches across queues. Each Signal releases one Wait.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count uint64
}

// NewSemaphore returns an unsignaled semaphore.
func NewSemaphore() *Semaphore {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Signal increments the semaphore.
func (s *Semaphore) Signal() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks until the semaphore is positive and decrements it.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
}

// Batch is one submission: ops run in order after every wait semaphore is
// signaled, then signals and fence fire.
type Batch struct {
	Waits   []*Semaphore
	Ops     []func()
	Signals []*Semaphore
	Fence   *Fence
}

// Queue executes batches in submission order on its own goroutine.
type Queue struct {
	batches chan Batch
	sendMu  sync.RWMutex

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
	wg      sync.WaitGroup
}

// NewQueue starts a queue worker.
func NewQueue() *Queue {
	q := &Queue{batches: make(chan Batch, 64)}
	q.idle = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for b := range q.batches {
		for _, s := range b.Waits {
			s.Wait()
		}
		for _, op := range b.Ops {
			op()
		}
		for _, s := range b.Signals {
			s.Signal()
		}
		if b.Fence != nil {
			b.Fence.Signal()
		}
		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()
	}
}

// Submit enqueues a batch. It reports false once the queue is closed.
func (q *Queue) Submit(b Batch) bool {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending++
	q.mu.Unlock()
	q.batches <- b
	return true
}

// WaitIdle blocks until every submitted batch has completed.
func (q *Queue) WaitIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

// Close drains the queue and stops its worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.sendMu.Lock()
	close(q.batches)
	q.sendMu.Unlock()
	q.wg.Wait()
}
