package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// Handles in a Vulkan descriptor heap are indices offset into a per-kind
// address range. Shader-visible kinds reserve room in a VkDescriptorPool so
// that sets can later be carved out of it.
const heapKindShift = 32

type DescriptorHeap struct {
	device *Device
	kind   gpu.DescriptorKind
	base   uint64
	Pool   vk.DescriptorPool
}

func (h *DescriptorHeap) CPUBase() uint64 { return h.base }

func (h *DescriptorHeap) GPUBase() uint64 {
	if !h.kind.ShaderVisible() {
		return 0
	}
	return h.base
}

func (h *DescriptorHeap) Stride() uint64 { return 1 }

func (h *DescriptorHeap) Release() {
	if h.device == nil {
		return
	}
	if h.Pool != nil {
		vk.DestroyDescriptorPool(h.device.handle(), h.Pool, h.device.context.Allocator)
		h.Pool = nil
	}
	h.device.live.Add(-1)
	h.device = nil
}

func poolSizes(kind gpu.DescriptorKind, capacity uint32) []vk.DescriptorPoolSize {
	switch kind {
	case gpu.DescriptorKindCBVSRVUAV:
		return []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: capacity},
			{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: capacity},
			{Type: vk.DescriptorTypeSampledImage, DescriptorCount: capacity},
			{Type: vk.DescriptorTypeStorageImage, DescriptorCount: capacity},
		}
	case gpu.DescriptorKindSampler:
		return []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeSampler, DescriptorCount: capacity},
		}
	default:
		return nil
	}
}

func (d *Device) CreateDescriptorHeap(kind gpu.DescriptorKind, capacity uint32) (gpu.NativeDescriptorHeap, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	if kind >= gpu.DescriptorKindCount {
		return nil, fmt.Errorf("vulkan: unknown descriptor kind %s", kind)
	}
	heap := &DescriptorHeap{
		device: d,
		kind:   kind,
		base:   uint64(kind+1) << heapKindShift,
	}
	if sizes := poolSizes(kind, capacity); capacity > 0 && sizes != nil {
		var pool vk.DescriptorPool
		res := vk.CreateDescriptorPool(d.handle(), &vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       capacity,
			PoolSizeCount: uint32(len(sizes)),
			PPoolSizes:    sizes,
		}, d.context.Allocator, &pool)
		if res != vk.Success {
			return nil, d.check("vkCreateDescriptorPool", res)
		}
		heap.Pool = pool
	}
	d.live.Add(1)
	core.LogDebug("vulkan %s heap created with %d slots", kind, capacity)
	return heap, nil
}
