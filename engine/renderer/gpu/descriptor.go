package gpu

import (
	"fmt"
	"sync"

	"github.com/navkagleb/benzin-sub002/engine/containers"
	"github.com/navkagleb/benzin-sub002/engine/core"
)

// DescriptorSlot identifies one entry in a descriptor heap.
type DescriptorSlot struct {
	HeapIndex uint32
	CPUHandle uint64
	// Set only for shader-visible kinds, see HasGPUHandle.
	GPUHandle    uint64
	HasGPUHandle bool
}

// DescriptorHeap is a fixed-capacity table of descriptors of one kind.
// Indices below marker have been handed out at least once; released
// indices wait in the free list and are reused oldest first.
type DescriptorHeap struct {
	kind     DescriptorKind
	capacity uint32
	marker   uint32
	freeList *containers.RingQueue[uint32]
	// Mirrors freeList membership for double-free detection.
	freed *containers.BitSet

	cpuBase uint64
	gpuBase uint64
	stride  uint64
	native  NativeDescriptorHeap
}

func newDescriptorHeap(kind DescriptorKind, capacity uint32, native NativeDescriptorHeap) *DescriptorHeap {
	h := &DescriptorHeap{
		kind:     kind,
		capacity: capacity,
		freeList: containers.NewRingQueue[uint32](int(capacity)),
		freed:    containers.NewBitSet(capacity),
		native:   native,
	}
	if native != nil {
		h.cpuBase = native.CPUBase()
		h.stride = native.Stride()
		if kind.ShaderVisible() {
			h.gpuBase = native.GPUBase()
		}
	}
	return h
}

func (h *DescriptorHeap) Kind() DescriptorKind { return h.kind }
func (h *DescriptorHeap) Capacity() uint32     { return h.capacity }

// AllocatedCount is the number of live slots.
func (h *DescriptorHeap) AllocatedCount() uint32 {
	return h.marker - uint32(h.freeList.Len())
}

// IsAllocated reports whether index is currently owned by a live slot.
func (h *DescriptorHeap) IsAllocated(index uint32) bool {
	return index < h.marker && !h.freed.Has(index)
}

// Slot resolves the handles of index. Handle resolution is pure arithmetic.
func (h *DescriptorHeap) Slot(index uint32) DescriptorSlot {
	s := DescriptorSlot{
		HeapIndex: index,
		CPUHandle: h.cpuBase + uint64(index)*h.stride,
	}
	if h.kind.ShaderVisible() {
		s.GPUHandle = h.gpuBase + uint64(index)*h.stride
		s.HasGPUHandle = true
	}
	return s
}

func (h *DescriptorHeap) Allocate() DescriptorSlot {
	if !h.freeList.IsEmpty() {
		index, _ := h.freeList.Dequeue()
		h.freed.Unset(index)
		return h.Slot(index)
	}
	if h.marker == h.capacity {
		core.Fatal(core.ErrDescriptorHeapFull, "%s heap exhausted at capacity %d", h.kind, h.capacity)
	}
	index := h.marker
	h.marker++
	return h.Slot(index)
}

// Deallocate returns slot to the free list. The caller guarantees that no
// submitted GPU work still reads through it.
func (h *DescriptorHeap) Deallocate(slot DescriptorSlot) {
	index := slot.HeapIndex
	if index >= h.marker || h.Slot(index).CPUHandle != slot.CPUHandle {
		core.Fatal(core.ErrDescriptorOutOfRange, "%s slot %d (cpu handle %#x) was not allocated from this heap",
			h.kind, index, slot.CPUHandle)
	}
	if !h.freed.Set(index) {
		core.Fatal(core.ErrDescriptorDoubleFree, "%s slot %d is already free", h.kind, index)
	}
	// Cannot overflow: the free list is as large as the heap.
	_ = h.freeList.Enqueue(index)
}

func (h *DescriptorHeap) release() {
	if h.native != nil {
		h.native.Release()
		h.native = nil
	}
}

type DescriptorCapacities [DescriptorKindCount]uint32

type descriptorAllocatorOptions struct {
	locked bool
	name   string
}

type DescriptorAllocatorOption func(*descriptorAllocatorOptions)

// WithLocking guards every heap with a mutex, for engines that record
// command lists from several goroutines.
func WithLocking() DescriptorAllocatorOption {
	return func(o *descriptorAllocatorOptions) {
		o.locked = true
	}
}

func WithAllocatorName(name string) DescriptorAllocatorOption {
	return func(o *descriptorAllocatorOptions) {
		o.name = name
	}
}

// DescriptorAllocator owns one heap per descriptor kind.
type DescriptorAllocator struct {
	name  string
	heaps [DescriptorKindCount]*DescriptorHeap
	mu    *sync.Mutex
}

// NewDescriptorAllocator creates every heap with a non-zero capacity. Kinds
// with a zero capacity get an empty heap that fails on first use.
func NewDescriptorAllocator(device Device, capacities DescriptorCapacities, opts ...DescriptorAllocatorOption) (*DescriptorAllocator, error) {
	o := &descriptorAllocatorOptions{name: "DescriptorAllocator"}
	for _, opt := range opts {
		opt(o)
	}

	da := &DescriptorAllocator{name: o.name}
	if o.locked {
		da.mu = &sync.Mutex{}
	}
	for k := DescriptorKind(0); k < DescriptorKindCount; k++ {
		var native NativeDescriptorHeap
		if capacities[k] > 0 {
			n, err := device.CreateDescriptorHeap(k, capacities[k])
			if err != nil {
				da.releaseHeaps()
				return nil, fmt.Errorf("failed to create %s descriptor heap: %w", k, err)
			}
			native = n
		}
		da.heaps[k] = newDescriptorHeap(k, capacities[k], native)
		core.LogDebug("%s: %s heap created with %d slots", da.name, k, capacities[k])
	}
	return da, nil
}

func (da *DescriptorAllocator) lock() func() {
	if da.mu == nil {
		return func() {}
	}
	da.mu.Lock()
	return da.mu.Unlock
}

func (da *DescriptorAllocator) heap(kind DescriptorKind) *DescriptorHeap {
	if kind >= DescriptorKindCount {
		core.Fatal(core.ErrDescriptorOutOfRange, "unknown descriptor kind %d", kind)
	}
	return da.heaps[kind]
}

// Heap exposes the heap of kind, mainly for binding it on a command list.
func (da *DescriptorAllocator) Heap(kind DescriptorKind) *DescriptorHeap {
	return da.heap(kind)
}

func (da *DescriptorAllocator) Allocate(kind DescriptorKind) DescriptorSlot {
	defer da.lock()()
	return da.heap(kind).Allocate()
}

func (da *DescriptorAllocator) Deallocate(kind DescriptorKind, slot DescriptorSlot) {
	defer da.lock()()
	da.heap(kind).Deallocate(slot)
}

func (da *DescriptorAllocator) AllocatedCount(kind DescriptorKind) uint32 {
	defer da.lock()()
	return da.heap(kind).AllocatedCount()
}

func (da *DescriptorAllocator) Capacity(kind DescriptorKind) uint32 {
	return da.heap(kind).Capacity()
}

// Destroy releases every heap. Any slot still allocated is a leak.
func (da *DescriptorAllocator) Destroy() {
	defer da.lock()()
	for _, h := range da.heaps {
		if h == nil {
			continue
		}
		if n := h.AllocatedCount(); n != 0 {
			core.Fatal(core.ErrDescriptorLeak, "%s: %d %s slots still allocated", da.name, n, h.kind)
		}
	}
	da.releaseHeaps()
	core.LogDebug("%s destroyed", da.name)
}

func (da *DescriptorAllocator) releaseHeaps() {
	for _, h := range da.heaps {
		if h != nil {
			h.release()
		}
	}
}
