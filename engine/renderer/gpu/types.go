package gpu

import "fmt"

// DescriptorKind selects one of the fixed-capacity descriptor heaps.
type DescriptorKind uint8

const (
	DescriptorKindRTV DescriptorKind = iota
	DescriptorKindDSV
	DescriptorKindCBVSRVUAV
	DescriptorKindSampler

	DescriptorKindCount
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorKindRTV:
		return "RTV"
	case DescriptorKindDSV:
		return "DSV"
	case DescriptorKindCBVSRVUAV:
		return "CBV_SRV_UAV"
	case DescriptorKindSampler:
		return "Sampler"
	default:
		return fmt.Sprintf("DescriptorKind(%d)", uint8(k))
	}
}

// ShaderVisible reports whether slots of this kind are bound directly by
// shader code and therefore carry a GPU handle.
func (k DescriptorKind) ShaderVisible() bool {
	return k == DescriptorKindCBVSRVUAV || k == DescriptorKindSampler
}

// ResourceState is an access mode a resource must be in before a command
// uses it. The values are opaque tokens, backends map them to their own
// layouts and access masks.
type ResourceState uint32

const (
	ResourceStateCommon ResourceState = iota
	ResourceStatePresent
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateDepthRead
	ResourceStateCopySource
	ResourceStateCopyDest
	ResourceStateUnorderedAccess
	ResourceStateGenericRead
	ResourceStatePixelShaderResource
	ResourceStateNonPixelShaderResource
	ResourceStateVertexAndConstantBuffer
	ResourceStateIndexBuffer
	ResourceStateAccelerationStructure
)

var resourceStateNames = [...]string{
	ResourceStateCommon:                  "Common",
	ResourceStatePresent:                 "Present",
	ResourceStateRenderTarget:            "RenderTarget",
	ResourceStateDepthWrite:              "DepthWrite",
	ResourceStateDepthRead:               "DepthRead",
	ResourceStateCopySource:              "CopySource",
	ResourceStateCopyDest:                "CopyDest",
	ResourceStateUnorderedAccess:         "UnorderedAccess",
	ResourceStateGenericRead:             "GenericRead",
	ResourceStatePixelShaderResource:     "PixelShaderResource",
	ResourceStateNonPixelShaderResource:  "NonPixelShaderResource",
	ResourceStateVertexAndConstantBuffer: "VertexAndConstantBuffer",
	ResourceStateIndexBuffer:             "IndexBuffer",
	ResourceStateAccelerationStructure:   "AccelerationStructure",
}

func (s ResourceState) String() string {
	if int(s) < len(resourceStateNames) {
		return resourceStateNames[s]
	}
	return fmt.Sprintf("ResourceState(%d)", uint32(s))
}

// HeapType is the memory a resource lives in.
type HeapType uint8

const (
	HeapTypeDefault HeapType = iota
	// Host-visible, written by the CPU and only read by the GPU.
	HeapTypeUpload
	// Host-visible, written by the GPU through copies and read back by the CPU.
	HeapTypeReadback
)

type ResourceKind uint8

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
)

func (k ResourceKind) String() string {
	if k == ResourceKindTexture {
		return "Texture"
	}
	return "Buffer"
}

type Format uint8

const (
	FormatUnknown Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatD32Float
)

func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatD32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	default:
		return 0
	}
}

type BufferDesc struct {
	Name string
	Size uint64
	Heap HeapType
}

type TextureDesc struct {
	Name   string
	Width  uint32
	Height uint32
	Format Format
	// State the texture is created in. Ignored for swap chain images,
	// which always start in ResourceStatePresent.
	InitialState ResourceState
}

// TextureFootprint describes pixels staged in a buffer for a
// buffer-to-texture copy.
type TextureFootprint struct {
	Offset   uint64
	Width    uint32
	Height   uint32
	Format   Format
	RowPitch uint32
}

// Barrier transitions a whole resource from one state to another.
type Barrier struct {
	Resource *Resource
	Before   ResourceState
	After    ResourceState
}
