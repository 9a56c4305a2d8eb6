package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

type pendingSignal struct {
	value  uint64
	handle vk.Fence
}

// Fence emulates a 64-bit counter on top of binary VkFences. Each Signal
// submits an empty batch that trips one VkFence; completed fences are reset
// and reused.
type Fence struct {
	device *Device

	mu        sync.Mutex
	completed uint64
	pending   []pendingSignal
	free      []vk.Fence
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	d.live.Add(1)
	return &Fence{device: d, completed: initial}, nil
}

func (f *Fence) acquire() (vk.Fence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.free); n > 0 {
		h := f.free[n-1]
		f.free = f.free[:n-1]
		return h, nil
	}

	var handle vk.Fence
	err := f.device.context.locks.SafeCall(SynchronizationManagement, func() error {
		return f.device.check("vkCreateFence", vk.CreateFence(f.device.handle(), &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
		}, f.device.context.Allocator, &handle))
	})
	return handle, err
}

// commit tracks handle as the signal for value once its submit succeeded.
// A failed submit never trips the fence, so it goes straight back to free.
func (f *Fence) commit(value uint64, handle vk.Fence, submitErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if submitErr != nil {
		f.free = append(f.free, handle)
		return submitErr
	}
	f.pending = append(f.pending, pendingSignal{value: value, handle: handle})
	return nil
}

// retire records the front signal as reached. Callers hold f.mu.
func (f *Fence) retire() error {
	front := f.pending[0]
	if res := vk.ResetFences(f.device.handle(), 1, []vk.Fence{front.handle}); res != vk.Success {
		return f.device.check("vkResetFences", res)
	}
	if front.value > f.completed {
		f.completed = front.value
	}
	f.free = append(f.free, front.handle)
	f.pending = f.pending[1:]
	return nil
}

// poll retires every signal the device has already reached. Callers hold f.mu.
func (f *Fence) poll() error {
	for len(f.pending) > 0 {
		switch res := vk.GetFenceStatus(f.device.handle(), f.pending[0].handle); res {
		case vk.Success:
			if err := f.retire(); err != nil {
				return err
			}
		case vk.NotReady:
			return nil
		default:
			return f.device.check("vkGetFenceStatus", res)
		}
	}
	return nil
}

func (f *Fence) CompletedValue() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.device.checkLost(); err != nil {
		return f.completed, err
	}
	err := f.poll()
	return f.completed, err
}

func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.completed < value {
		if err := f.device.checkLost(); err != nil {
			return err
		}
		if len(f.pending) == 0 {
			return fmt.Errorf("vulkan: waiting for fence value %d that was never signaled, completed %d", value, f.completed)
		}
		res := vk.WaitForFences(f.device.handle(), 1, []vk.Fence{f.pending[0].handle}, vk.True, vk.MaxUint64)
		switch res {
		case vk.Success:
			if err := f.retire(); err != nil {
				return err
			}
		default:
			return f.device.check("vkWaitForFences", res)
		}
	}
	return nil
}

func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.device == nil {
		return
	}
	dev := f.device.handle()
	for _, p := range f.pending {
		vk.WaitForFences(dev, 1, []vk.Fence{p.handle}, vk.True, vk.MaxUint64)
		vk.DestroyFence(dev, p.handle, f.device.context.Allocator)
	}
	for _, h := range f.free {
		vk.DestroyFence(dev, h, f.device.context.Allocator)
	}
	f.pending, f.free = nil, nil
	f.device.live.Add(-1)
	f.device = nil
}
