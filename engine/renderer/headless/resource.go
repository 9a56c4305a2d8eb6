package headless

import (
	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

type DescriptorHeap struct {
	device   *Device
	name     string
	kind     gpu.DescriptorKind
	capacity uint32
	cpuBase  uint64
	gpuBase  uint64
	released bool
}

func (h *DescriptorHeap) CPUBase() uint64 { return h.cpuBase }
func (h *DescriptorHeap) GPUBase() uint64 { return h.gpuBase }
func (h *DescriptorHeap) Stride() uint64  { return descriptorStride }
func (h *DescriptorHeap) Name() string    { return h.name }

func (h *DescriptorHeap) Release() {
	if h.released {
		return
	}
	h.released = true
	h.device.live.Add(-1)
}

// Buffer is a linear allocation. Upload and readback buffers are mapped,
// default-heap buffers are only reachable through the queue.
type Buffer struct {
	device   *Device
	name     string
	heap     gpu.HeapType
	data     []byte
	released bool

	// Owned by the queue worker.
	state gpu.ResourceState
}

func (b *Buffer) Mapped() []byte {
	if b.heap == gpu.HeapTypeDefault {
		return nil
	}
	return b.data
}

// Contents returns device memory for inspection. Only meaningful once the
// queue is idle.
func (b *Buffer) Contents() []byte {
	return b.data
}

func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.device.live.Add(-1)
}

// Texture stores its texels tightly packed, row after row.
type Texture struct {
	device   *Device
	name     string
	width    uint32
	height   uint32
	format   gpu.Format
	texels   []byte
	released bool

	// Owned by the queue worker.
	state gpu.ResourceState
}

func (t *Texture) Mapped() []byte { return nil }

// Texels returns the tightly packed texture contents. Only meaningful once the
// queue is idle.
func (t *Texture) Texels() []byte {
	return t.texels
}

func (t *Texture) Release() {
	if t.released {
		return
	}
	t.released = true
	t.device.live.Add(-1)
}

func bufferOf(r *gpu.Resource) *Buffer {
	core.Assert(r.IsLive(), core.ErrInvalidResource, "headless: %q is released", r.Name())
	b, ok := r.Native().(*Buffer)
	core.Assert(ok, core.ErrInvalidResource, "headless: %q is not a headless buffer", r.Name())
	return b
}

func textureOf(r *gpu.Resource) *Texture {
	core.Assert(r.IsLive(), core.ErrInvalidResource, "headless: %q is released", r.Name())
	t, ok := r.Native().(*Texture)
	core.Assert(ok, core.ErrInvalidResource, "headless: %q is not a headless texture", r.Name())
	return t
}
