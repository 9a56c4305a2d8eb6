package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// Buffer is a VkBuffer with its own allocation. Upload and readback buffers
// stay mapped for their whole lifetime.
type Buffer struct {
	device *Device
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	mapped []byte
}

func (b *Buffer) Mapped() []byte {
	return b.mapped
}

func (b *Buffer) Release() {
	if b.Handle == nil {
		return
	}
	dev := b.device.handle()
	if b.mapped != nil {
		vk.UnmapMemory(dev, b.Memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(dev, b.Handle, b.device.context.Allocator)
	vk.FreeMemory(dev, b.Memory, b.device.context.Allocator)
	b.Handle = nil
	b.Memory = nil
	b.device.live.Add(-1)
}

// Texture is a single-mip 2D VkImage in optimal tiling.
type Texture struct {
	device *Device
	Handle vk.Image
	Memory vk.DeviceMemory
	Format vk.Format
	Aspect vk.ImageAspectFlagBits
	Width  uint32
	Height uint32
	// The first barrier discards the contents, see transitionImage.
	initialized bool
}

func (t *Texture) Mapped() []byte {
	return nil
}

func (t *Texture) Release() {
	if t.Handle == nil {
		return
	}
	vk.DestroyImage(t.device.handle(), t.Handle, t.device.context.Allocator)
	vk.FreeMemory(t.device.handle(), t.Memory, t.device.context.Allocator)
	t.Handle = nil
	t.Memory = nil
	t.device.live.Add(-1)
}

func bufferUsage(heap gpu.HeapType) vk.BufferUsageFlagBits {
	switch heap {
	case gpu.HeapTypeUpload:
		return vk.BufferUsageTransferSrcBit
	case gpu.HeapTypeReadback:
		return vk.BufferUsageTransferDstBit
	default:
		return vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit |
			vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit |
			vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit
	}
}

func memoryProperties(heap gpu.HeapType) vk.MemoryPropertyFlagBits {
	switch heap {
	case gpu.HeapTypeUpload:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	case gpu.HeapTypeReadback:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit
	default:
		return vk.MemoryPropertyDeviceLocalBit
	}
}

func (d *Device) allocate(requirements vk.MemoryRequirements, props vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	requirements.Deref()
	index := d.context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(props))
	if index < 0 && props&vk.MemoryPropertyHostCachedBit != 0 {
		props &^= vk.MemoryPropertyHostCachedBit
		index = d.context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(props))
	}
	if index < 0 {
		return nil, fmt.Errorf("vulkan: no memory type with properties %#x", uint32(props))
	}

	var memory vk.DeviceMemory
	err := d.context.locks.SafeCall(MemoryManagement, func() error {
		return d.check("vkAllocateMemory", vk.AllocateMemory(d.handle(), &vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  requirements.Size,
			MemoryTypeIndex: uint32(index),
		}, d.context.Allocator, &memory))
	})
	return memory, err
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.NativeResource, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("vulkan: buffer %q has zero size", desc.Name)
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(d.handle(), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(bufferUsage(desc.Heap)),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}, d.context.Allocator, &handle); res != vk.Success {
		return nil, d.check("vkCreateBuffer", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle(), handle, &requirements)
	memory, err := d.allocate(requirements, memoryProperties(desc.Heap))
	if err != nil {
		vk.DestroyBuffer(d.handle(), handle, d.context.Allocator)
		return nil, err
	}

	b := &Buffer{device: d, Handle: handle, Memory: memory, Size: desc.Size}
	err = d.context.locks.SafeCall(MemoryManagement, func() error {
		if err := d.check("vkBindBufferMemory", vk.BindBufferMemory(d.handle(), handle, memory, 0)); err != nil {
			return err
		}
		if desc.Heap == gpu.HeapTypeDefault {
			return nil
		}
		var ptr unsafe.Pointer
		if err := d.check("vkMapMemory", vk.MapMemory(d.handle(), memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)); err != nil {
			return err
		}
		b.mapped = unsafe.Slice((*byte)(ptr), desc.Size)
		return nil
	})
	if err != nil {
		vk.DestroyBuffer(d.handle(), handle, d.context.Allocator)
		vk.FreeMemory(d.handle(), memory, d.context.Allocator)
		return nil, err
	}

	d.live.Add(1)
	core.LogDebug("vulkan buffer %q created, %d bytes", desc.Name, desc.Size)
	return b, nil
}

func textureFormat(f gpu.Format) (vk.Format, vk.ImageAspectFlagBits, error) {
	switch f {
	case gpu.FormatR8Unorm:
		return vk.FormatR8Unorm, vk.ImageAspectColorBit, nil
	case gpu.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, vk.ImageAspectColorBit, nil
	case gpu.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm, vk.ImageAspectColorBit, nil
	case gpu.FormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat, vk.ImageAspectColorBit, nil
	case gpu.FormatD32Float:
		return vk.FormatD32Sfloat, vk.ImageAspectDepthBit, nil
	default:
		return vk.FormatUndefined, 0, fmt.Errorf("vulkan: unsupported texture format %d", f)
	}
}

func (d *Device) CreateTexture(desc gpu.TextureDesc) (gpu.NativeResource, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("vulkan: texture %q has zero extent", desc.Name)
	}
	format, aspect, err := textureFormat(desc.Format)
	if err != nil {
		return nil, err
	}

	usage := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit
	if aspect == vk.ImageAspectDepthBit {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	} else {
		usage |= vk.ImageUsageColorAttachmentBit | vk.ImageUsageStorageBit
	}

	var handle vk.Image
	if res := vk.CreateImage(d.handle(), &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, d.context.Allocator, &handle); res != vk.Success {
		return nil, d.check("vkCreateImage", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle(), handle, &requirements)
	memory, err := d.allocate(requirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.handle(), handle, d.context.Allocator)
		return nil, err
	}
	err = d.context.locks.SafeCall(MemoryManagement, func() error {
		return d.check("vkBindImageMemory", vk.BindImageMemory(d.handle(), handle, memory, 0))
	})
	if err != nil {
		vk.DestroyImage(d.handle(), handle, d.context.Allocator)
		vk.FreeMemory(d.handle(), memory, d.context.Allocator)
		return nil, err
	}

	d.live.Add(1)
	core.LogDebug("vulkan texture %q created, %dx%d", desc.Name, desc.Width, desc.Height)
	return &Texture{
		device: d,
		Handle: handle,
		Memory: memory,
		Format: format,
		Aspect: aspect,
		Width:  desc.Width,
		Height: desc.Height,
	}, nil
}

func bufferOf(r *gpu.Resource) *Buffer {
	b, ok := r.Native().(*Buffer)
	core.Assert(ok, core.ErrInvalidResource, "resource %q is not a vulkan buffer", r.Name())
	return b
}

func textureOf(r *gpu.Resource) *Texture {
	t, ok := r.Native().(*Texture)
	core.Assert(ok, core.ErrInvalidResource, "resource %q is not a vulkan texture", r.Name())
	return t
}
