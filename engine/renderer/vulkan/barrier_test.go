package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

func TestEveryStateIsMapped(t *testing.T) {
	for s := gpu.ResourceStateCommon; s <= gpu.ResourceStateAccelerationStructure; s++ {
		_, ok := stateTable[s]
		assert.True(t, ok, "state %s has no vulkan mapping", s)
	}
}

func TestUnknownStateFallsBackToCommon(t *testing.T) {
	assert.Equal(t, stateTable[gpu.ResourceStateCommon], accessFor(gpu.ResourceState(200)))
}

func TestImageLayouts(t *testing.T) {
	tests := []struct {
		state  gpu.ResourceState
		layout vk.ImageLayout
	}{
		{gpu.ResourceStatePresent, vk.ImageLayoutPresentSrc},
		{gpu.ResourceStateRenderTarget, vk.ImageLayoutColorAttachmentOptimal},
		{gpu.ResourceStateCopyDest, vk.ImageLayoutTransferDstOptimal},
		{gpu.ResourceStateCopySource, vk.ImageLayoutTransferSrcOptimal},
		{gpu.ResourceStatePixelShaderResource, vk.ImageLayoutShaderReadOnlyOptimal},
		{gpu.ResourceStateDepthWrite, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{gpu.ResourceStateUnorderedAccess, vk.ImageLayoutGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.layout, accessFor(tt.state).Layout)
		})
	}
}

func TestFirstImageBarrierDiscardsContents(t *testing.T) {
	tex := &Texture{Aspect: vk.ImageAspectColorBit}
	var batch barrierBatch

	batch.addImage(tex, gpu.ResourceStateCommon, gpu.ResourceStateCopyDest)
	batch.addImage(tex, gpu.ResourceStateCopyDest, gpu.ResourceStatePixelShaderResource)

	require.Len(t, batch.images, 2)
	assert.Equal(t, vk.ImageLayoutUndefined, batch.images[0].OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, batch.images[0].NewLayout)
	assert.Equal(t, vk.AccessFlags(0), batch.images[0].SrcAccessMask)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, batch.images[1].OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, batch.images[1].NewLayout)
	assert.True(t, tex.initialized)
}

func TestBufferBarrierStages(t *testing.T) {
	var batch barrierBatch
	assert.True(t, batch.empty())

	batch.addBuffer(&Buffer{Size: 64}, gpu.ResourceStateCommon, gpu.ResourceStateCopyDest)

	require.Len(t, batch.buffers, 1)
	assert.False(t, batch.empty())
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), batch.buffers[0].DstAccessMask)
	assert.NotZero(t, batch.srcStages&vk.PipelineStageAllCommandsBit)
	assert.NotZero(t, batch.dstStages&vk.PipelineStageTransferBit)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), batch.buffers[0].SrcQueueFamilyIndex)
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError("op", vk.Success))
	assert.ErrorContains(t, resultError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory), "VK_ERROR_OUT_OF_DEVICE_MEMORY")
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc"))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc\x00"))
	assert.Equal(t, "layer", cString([]byte{'l', 'a', 'y', 'e', 'r', 0, 'x'}))
}

func TestResultErrorWrapsDeviceLost(t *testing.T) {
	err := resultError("vkQueueSubmit", vk.ErrorDeviceLost)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestFenceCommit(t *testing.T) {
	f := &Fence{}
	var handle vk.Fence

	err := f.commit(3, handle, resultError("vkQueueSubmit", vk.ErrorOutOfHostMemory))
	require.Error(t, err)
	assert.Empty(t, f.pending)
	assert.Len(t, f.free, 1, "failed signal recycles its VkFence")

	require.NoError(t, f.commit(4, handle, nil))
	require.Len(t, f.pending, 1)
	assert.Equal(t, uint64(4), f.pending[0].value)
}
