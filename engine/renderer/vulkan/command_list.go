package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// CommandList owns a command pool with a single primary command buffer.
// It is created in the recording state.
type CommandList struct {
	device    *Device
	name      string
	pool      vk.CommandPool
	Handle    vk.CommandBuffer
	recording bool
	err       error
}

func (d *Device) CreateCommandList() (gpu.CommandList, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	cl := &CommandList{device: d, name: d.namer.Next("CommandList")}

	if res := vk.CreateCommandPool(d.handle(), &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.context.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, d.context.Allocator, &cl.pool); res != vk.Success {
		return nil, d.check("vkCreateCommandPool", res)
	}

	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.handle(), &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        cl.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers); res != vk.Success {
		vk.DestroyCommandPool(d.handle(), cl.pool, d.context.Allocator)
		return nil, d.check("vkAllocateCommandBuffers", res)
	}
	cl.Handle = buffers[0]
	d.live.Add(1)

	if err := cl.begin(); err != nil {
		cl.Release()
		return nil, err
	}
	return cl, nil
}

func (cl *CommandList) Name() string { return cl.name }

func (cl *CommandList) begin() error {
	if res := vk.BeginCommandBuffer(cl.Handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}); res != vk.Success {
		return cl.device.check("vkBeginCommandBuffer", res)
	}
	cl.recording = true
	return nil
}

func (cl *CommandList) fail(format string, args ...interface{}) {
	if cl.err == nil {
		cl.err = fmt.Errorf("%s: %s", cl.name, fmt.Sprintf(format, args...))
	}
}

func (cl *CommandList) assertRecording() {
	core.Assert(cl.recording, core.ErrInvalidResource, "%s: recording into a closed command list", cl.name)
}

func (cl *CommandList) ResourceBarrier(barriers ...gpu.Barrier) {
	cl.assertRecording()
	var batch barrierBatch
	for _, b := range barriers {
		core.Assert(b.Resource.IsLive(), core.ErrInvalidResource, "%s: barrier on released %q", cl.name, b.Resource.Name())
		switch native := b.Resource.Native().(type) {
		case *Buffer:
			batch.addBuffer(native, b.Before, b.After)
		case *Texture:
			batch.addImage(native, b.Before, b.After)
		default:
			cl.fail("barrier on foreign resource %q", b.Resource.Name())
		}
	}
	batch.record(cl.Handle)
}

func (cl *CommandList) CopyBufferRegion(dst *gpu.Resource, dstOffset uint64, src *gpu.Resource, srcOffset uint64, size uint64) {
	cl.assertRecording()
	d, s := bufferOf(dst), bufferOf(src)
	if dstOffset+size > d.Size || srcOffset+size > s.Size {
		cl.fail("copy of %d bytes from %q+%d to %q+%d is out of bounds", size, src.Name(), srcOffset, dst.Name(), dstOffset)
		return
	}
	vk.CmdCopyBuffer(cl.Handle, s.Handle, d.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

// CopyBufferToTexture expects dst to be in ResourceStateCopyDest.
func (cl *CommandList) CopyBufferToTexture(dst *gpu.Resource, src *gpu.Resource, fp gpu.TextureFootprint) {
	cl.assertRecording()
	t, s := textureOf(dst), bufferOf(src)
	bpp := fp.Format.BytesPerPixel()
	if bpp == 0 || fp.Width > t.Width || fp.Height > t.Height || fp.RowPitch%bpp != 0 {
		cl.fail("footprint %dx%d pitch %d does not fit %q", fp.Width, fp.Height, fp.RowPitch, dst.Name())
		return
	}
	if fp.Height > 0 && fp.Offset+uint64(fp.RowPitch)*uint64(fp.Height-1)+uint64(fp.Width)*uint64(bpp) > s.Size {
		cl.fail("footprint at %d overruns %q", fp.Offset, src.Name())
		return
	}
	vk.CmdCopyBufferToImage(cl.Handle, s.Handle, t.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset:      vk.DeviceSize(fp.Offset),
		BufferRowLength:   fp.RowPitch / bpp,
		BufferImageHeight: fp.Height,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(t.Aspect),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: fp.Width, Height: fp.Height, Depth: 1},
	}})
}

// Reset requires the GPU to be done with the previous recording.
func (cl *CommandList) Reset() error {
	if err := cl.device.checkLost(); err != nil {
		return err
	}
	if cl.recording {
		if res := vk.EndCommandBuffer(cl.Handle); res != vk.Success {
			return cl.device.check("vkEndCommandBuffer", res)
		}
		cl.recording = false
	}
	if res := vk.ResetCommandBuffer(cl.Handle, 0); res != vk.Success {
		return cl.device.check("vkResetCommandBuffer", res)
	}
	cl.err = nil
	return cl.begin()
}

func (cl *CommandList) Close() error {
	if cl.recording {
		cl.recording = false
		if res := vk.EndCommandBuffer(cl.Handle); res != vk.Success {
			return cl.device.check("vkEndCommandBuffer", res)
		}
	}
	return cl.err
}

func (cl *CommandList) Release() {
	if cl.pool == nil {
		return
	}
	dev := cl.device.handle()
	vk.FreeCommandBuffers(dev, cl.pool, 1, []vk.CommandBuffer{cl.Handle})
	vk.DestroyCommandPool(dev, cl.pool, cl.device.context.Allocator)
	cl.pool = nil
	cl.Handle = nil
	cl.device.live.Add(-1)
}
