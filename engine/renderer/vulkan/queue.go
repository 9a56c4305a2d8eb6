package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// Queue is the device's only VkQueue. Submissions are serialized through the
// queue lock group.
type Queue struct {
	device *Device
	handle vk.Queue
}

func (q *Queue) submit(info []vk.SubmitInfo, fence vk.Fence) error {
	return q.device.context.locks.SafeCall(QueueManagement, func() error {
		return q.device.check("vkQueueSubmit", vk.QueueSubmit(q.handle, uint32(len(info)), info, fence))
	})
}

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	if err := q.device.checkLost(); err != nil {
		return err
	}
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		core.Assert(ok, core.ErrInvalidResource, "vulkan queue cannot submit %T", l)
		core.Assert(!cl.recording, core.ErrInvalidResource, "%s submitted while still recording", cl.name)
		buffers = append(buffers, cl.Handle)
	}
	if len(buffers) == 0 {
		return nil
	}
	var noFence vk.Fence
	return q.submit([]vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}}, noFence)
}

// Signal submits an empty batch whose completion trips a VkFence standing
// for value.
func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	if err := q.device.checkLost(); err != nil {
		return err
	}
	f, ok := fence.(*Fence)
	core.Assert(ok, core.ErrInvalidResource, "vulkan queue cannot signal %T", fence)
	handle, err := f.acquire()
	if err != nil {
		return err
	}
	return f.commit(value, handle, q.submit(nil, handle))
}
