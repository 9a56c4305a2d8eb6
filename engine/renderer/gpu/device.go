package gpu

// The interfaces below are implemented by a graphics backend. The core only
// ever talks to the hardware through them.

// NativeResource is an exclusively owned buffer or texture.
type NativeResource interface {
	// Mapped returns the persistently mapped bytes of a host-visible
	// resource, nil otherwise.
	Mapped() []byte
	Release()
}

// NativeDescriptorHeap is the backing storage of one DescriptorHeap. Handles
// are plain addresses: base + index*stride.
type NativeDescriptorHeap interface {
	CPUBase() uint64
	// GPUBase is only meaningful for shader-visible kinds.
	GPUBase() uint64
	Stride() uint64
	Release()
}

type BarrierRecorder interface {
	ResourceBarrier(barriers ...Barrier)
}

type CommandList interface {
	BarrierRecorder
	CopyBufferRegion(dst *Resource, dstOffset uint64, src *Resource, srcOffset uint64, size uint64)
	CopyBufferToTexture(dst *Resource, src *Resource, footprint TextureFootprint)
	// Reset prepares the list for a new recording. The caller guarantees the
	// GPU is done with everything recorded before.
	Reset() error
	Close() error
	Release()
}

// Fence is a monotonically increasing 64-bit counter advanced by the queue.
type Fence interface {
	CompletedValue() (uint64, error)
	// Wait blocks until CompletedValue >= value. A device that can no longer
	// make progress reports an error wrapping core.ErrDeviceLost.
	Wait(value uint64) error
	Release()
}

// Queue executes command lists in submission order.
type Queue interface {
	Submit(lists ...CommandList) error
	// Signal enqueues a fence update after all previously submitted work.
	Signal(fence Fence, value uint64) error
}

// Presenter hands the back buffer to the display. Optional.
type Presenter interface {
	Present() error
}

type Device interface {
	CreateDescriptorHeap(kind DescriptorKind, capacity uint32) (NativeDescriptorHeap, error)
	CreateBuffer(desc BufferDesc) (NativeResource, error)
	CreateTexture(desc TextureDesc) (NativeResource, error)
	CreateCommandList() (CommandList, error)
	CreateFence(initial uint64) (Fence, error)
	Queue() Queue
	Release()
}
