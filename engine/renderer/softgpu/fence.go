package softgpu

import (
	"sync"
	"time"
)

// Fence is a host fence. New fences start signalled, as the first frame has nothing to wait for.
type Fence struct {
	mu       sync.Mutex
	cond     *sync.Cond
	signaled bool
	// hold keeps the fence unsignalled after submission, simulating a hung queue.
	hold bool
}

func newFence() *Fence {
	f := &Fence{signaled: true}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Wait blocks until the fence signals or timeout elapses.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.signaled {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		t := time.AfterFunc(remaining, func() {
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		})
		f.cond.Wait()
		t.Stop()
	}
	return true, nil
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	f.signaled = false
	f.mu.Unlock()
	return nil
}

func (f *Fence) signal() {
	f.mu.Lock()
	if !f.hold {
		f.signaled = true
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

// Signaled reports the current state without blocking.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}
