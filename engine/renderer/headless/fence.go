package headless

import (
	"fmt"
	"sync"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

// Fence is a 64-bit counter advanced by the queue worker.
type Fence struct {
	device *Device

	mu       sync.Mutex
	cond     *sync.Cond
	value    uint64
	released bool
}

func newFence(d *Device, initial uint64) *Fence {
	f := &Fence{device: d, value: initial}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fence) lostErr() error {
	return fmt.Errorf("headless fence: %w", core.ErrDeviceLost)
}

func (f *Fence) CompletedValue() (uint64, error) {
	if f.device.IsLost() {
		return 0, f.lostErr()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value && !f.device.IsLost() {
		f.cond.Wait()
	}
	if f.device.IsLost() {
		return f.lostErr()
	}
	return nil
}

// Signal sets the fence from the CPU side. Values never go backwards.
func (f *Fence) Signal(value uint64) {
	f.mu.Lock()
	if value > f.value {
		f.value = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fence) wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	f.device.live.Add(-1)
}
