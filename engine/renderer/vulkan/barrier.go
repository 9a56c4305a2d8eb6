package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// stateAccess is what a resource state means to Vulkan.
type stateAccess struct {
	Layout vk.ImageLayout
	Access vk.AccessFlagBits
	Stage  vk.PipelineStageFlagBits
}

const (
	shaderStages = vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit
	memoryAccess = vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit
)

var stateTable = map[gpu.ResourceState]stateAccess{
	gpu.ResourceStateCommon: {
		Layout: vk.ImageLayoutGeneral,
		Access: memoryAccess,
		Stage:  vk.PipelineStageAllCommandsBit,
	},
	gpu.ResourceStatePresent: {
		Layout: vk.ImageLayoutPresentSrc,
		Access: vk.AccessMemoryReadBit,
		Stage:  vk.PipelineStageBottomOfPipeBit,
	},
	gpu.ResourceStateRenderTarget: {
		Layout: vk.ImageLayoutColorAttachmentOptimal,
		Access: vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit,
		Stage:  vk.PipelineStageColorAttachmentOutputBit,
	},
	gpu.ResourceStateDepthWrite: {
		Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		Access: vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
		Stage:  vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit,
	},
	gpu.ResourceStateDepthRead: {
		Layout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
		Access: vk.AccessDepthStencilAttachmentReadBit,
		Stage:  vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit,
	},
	gpu.ResourceStateCopySource: {
		Layout: vk.ImageLayoutTransferSrcOptimal,
		Access: vk.AccessTransferReadBit,
		Stage:  vk.PipelineStageTransferBit,
	},
	gpu.ResourceStateCopyDest: {
		Layout: vk.ImageLayoutTransferDstOptimal,
		Access: vk.AccessTransferWriteBit,
		Stage:  vk.PipelineStageTransferBit,
	},
	gpu.ResourceStateUnorderedAccess: {
		Layout: vk.ImageLayoutGeneral,
		Access: vk.AccessShaderReadBit | vk.AccessShaderWriteBit,
		Stage:  shaderStages,
	},
	gpu.ResourceStateGenericRead: {
		Layout: vk.ImageLayoutGeneral,
		Access: vk.AccessHostWriteBit | vk.AccessTransferReadBit,
		Stage:  vk.PipelineStageHostBit | vk.PipelineStageTransferBit,
	},
	gpu.ResourceStatePixelShaderResource: {
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
		Access: vk.AccessShaderReadBit,
		Stage:  vk.PipelineStageFragmentShaderBit,
	},
	gpu.ResourceStateNonPixelShaderResource: {
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
		Access: vk.AccessShaderReadBit,
		Stage:  vk.PipelineStageVertexShaderBit | vk.PipelineStageComputeShaderBit,
	},
	gpu.ResourceStateVertexAndConstantBuffer: {
		Layout: vk.ImageLayoutGeneral,
		Access: vk.AccessVertexAttributeReadBit | vk.AccessUniformReadBit,
		Stage:  vk.PipelineStageVertexInputBit | shaderStages,
	},
	gpu.ResourceStateIndexBuffer: {
		Layout: vk.ImageLayoutGeneral,
		Access: vk.AccessIndexReadBit,
		Stage:  vk.PipelineStageVertexInputBit,
	},
	gpu.ResourceStateAccelerationStructure: {
		Layout: vk.ImageLayoutGeneral,
		Access: memoryAccess,
		Stage:  vk.PipelineStageAllCommandsBit,
	},
}

func accessFor(state gpu.ResourceState) stateAccess {
	if a, ok := stateTable[state]; ok {
		return a
	}
	return stateTable[gpu.ResourceStateCommon]
}

// barrierBatch turns whole-resource transitions into the arguments of one
// vkCmdPipelineBarrier call.
type barrierBatch struct {
	srcStages vk.PipelineStageFlagBits
	dstStages vk.PipelineStageFlagBits
	buffers   []vk.BufferMemoryBarrier
	images    []vk.ImageMemoryBarrier
}

func (bb *barrierBatch) addBuffer(b *Buffer, before, after gpu.ResourceState) {
	src, dst := accessFor(before), accessFor(after)
	bb.srcStages |= src.Stage
	bb.dstStages |= dst.Stage
	bb.buffers = append(bb.buffers, vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(src.Access),
		DstAccessMask:       vk.AccessFlags(dst.Access),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.Handle,
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	})
}

// addImage discards the previous contents on the first transition of a
// texture, since its memory starts out undefined.
func (bb *barrierBatch) addImage(t *Texture, before, after gpu.ResourceState) {
	src, dst := accessFor(before), accessFor(after)
	oldLayout := src.Layout
	if !t.initialized {
		oldLayout = vk.ImageLayoutUndefined
		src.Access = 0
		src.Stage = vk.PipelineStageTopOfPipeBit
		t.initialized = true
	}
	bb.srcStages |= src.Stage
	bb.dstStages |= dst.Stage
	bb.images = append(bb.images, vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(src.Access),
		DstAccessMask:       vk.AccessFlags(dst.Access),
		OldLayout:           oldLayout,
		NewLayout:           dst.Layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(t.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	})
}

func (bb *barrierBatch) empty() bool {
	return len(bb.buffers) == 0 && len(bb.images) == 0
}

func (bb *barrierBatch) record(cmd vk.CommandBuffer) {
	if bb.empty() {
		return
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(bb.srcStages),
		vk.PipelineStageFlags(bb.dstStages),
		0, 0, nil,
		uint32(len(bb.buffers)), bb.buffers,
		uint32(len(bb.images)), bb.images)
}
