package testbed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"math"
	"os"

	"golang.org/x/image/bmp"

	"github.com/navkagleb/benzin-sub002/engine"
	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

const (
	textureSize   = 64
	vertexCount   = 3
	vertexStride  = 4 * 4
	constantsSize = 256
	// Every this many frames the texture is uploaded again.
	textureRefreshFrames = 30
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	angle float64
	frame uint64

	image    image.Image
	vertices *gpu.Resource
	readback *gpu.Resource
	texture  *gpu.Resource

	textureSRV gpu.DescriptorSlot
	sampler    gpu.DescriptorSlot
	target     gpu.DescriptorSlot

	barriers gpu.BarrierBatch
}

// NewTestGame builds the demo. texturePath may point at a BMP file; a
// generated checkerboard is used when it is empty or cannot be read.
func NewTestGame(app *engine.ApplicationConfig, texturePath string) (*TestGame, error) {
	img, err := loadTexture(texturePath)
	if err != nil {
		return nil, err
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{image: img},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(ctx *gpu.Context) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()

	var err error
	state.vertices, err = ctx.CreateBuffer(gpu.BufferDesc{
		Name: "TriangleVertices",
		Size: vertexCount * vertexStride,
		Heap: gpu.HeapTypeDefault,
	})
	if err != nil {
		return err
	}
	state.readback, err = ctx.CreateBuffer(gpu.BufferDesc{
		Name: "TriangleReadback",
		Size: vertexCount * vertexStride,
		Heap: gpu.HeapTypeReadback,
	})
	if err != nil {
		return err
	}
	b := state.image.Bounds()
	state.texture, err = ctx.CreateTexture(gpu.TextureDesc{
		Name:         "Checkerboard",
		Width:        uint32(b.Dx()),
		Height:       uint32(b.Dy()),
		Format:       gpu.FormatRGBA8Unorm,
		InitialState: gpu.ResourceStateCommon,
	})
	if err != nil {
		return err
	}

	state.textureSRV = ctx.AllocateDescriptor(gpu.DescriptorKindCBVSRVUAV)
	state.sampler = ctx.AllocateDescriptor(gpu.DescriptorKindSampler)
	state.target = ctx.AllocateDescriptor(gpu.DescriptorKindRTV)
	core.LogInfo("texture srv at cpu %#x gpu %#x", state.textureSRV.CPUHandle, state.textureSRV.GPUHandle)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.angle = math.Mod(state.angle+deltaTime, 2*math.Pi)
	return nil
}

func (g *TestGame) Render(ctx *gpu.Context, frame *gpu.Frame, deltaTime float64) error {
	state := g.state()

	// Per-frame constants live in the frame's upload arena.
	constants := make([]byte, 16)
	binary.LittleEndian.PutUint64(constants, state.frame)
	binary.LittleEndian.PutUint64(constants[8:], math.Float64bits(state.angle))
	offset := ctx.AllocateUploadSpace(constantsSize, 256)
	ctx.WriteUpload(offset, constants)

	// A transient descriptor for the constants, freed once the GPU is done.
	cbv := ctx.AllocateDescriptor(gpu.DescriptorKindCBVSRVUAV)
	ctx.FreeDescriptorDeferred(gpu.DescriptorKindCBVSRVUAV, cbv)

	ctx.UploadBuffer(state.vertices, 0, triangle(state.angle))

	if state.frame%textureRefreshFrames == 0 {
		ctx.UploadImage(state.texture, state.image)
		state.texture.TransitionTo(&state.barriers, gpu.ResourceStatePixelShaderResource)
	}

	state.vertices.TransitionTo(&state.barriers, gpu.ResourceStateCopySource)
	state.barriers.Flush(ctx.CommandList())
	ctx.CommandList().CopyBufferRegion(state.readback, 0, state.vertices, 0, state.vertices.Size())
	ctx.TransitionTo(state.vertices, gpu.ResourceStateVertexAndConstantBuffer)

	state.frame++
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width, state.height = width, height
	core.LogDebug("testbed framebuffer is now %dx%d", width, height)
	return nil
}

// Shutdown waits for the last copy and releases everything the game owns.
func (g *TestGame) Shutdown(ctx *gpu.Context) error {
	state := g.state()
	if err := ctx.FlushAll(); err != nil {
		return err
	}
	if state.readback != nil && state.frame > 0 {
		core.LogInfo("last triangle checksum %08x after %d frames", crc32.ChecksumIEEE(state.readback.Mapped()), state.frame)
	}

	if state.texture != nil {
		ctx.FreeDescriptor(gpu.DescriptorKindCBVSRVUAV, state.textureSRV)
		ctx.FreeDescriptor(gpu.DescriptorKindSampler, state.sampler)
		ctx.FreeDescriptor(gpu.DescriptorKindRTV, state.target)
	}
	for _, r := range []*gpu.Resource{state.vertices, state.readback, state.texture} {
		if r != nil {
			r.Release()
		}
	}
	state.vertices, state.readback, state.texture = nil, nil, nil
	return nil
}

// triangle returns the vertex positions of an equilateral triangle rotated
// by angle, as xyzw float32 values.
func triangle(angle float64) []byte {
	out := make([]byte, vertexCount*vertexStride)
	for i := 0; i < vertexCount; i++ {
		a := angle + float64(i)*2*math.Pi/vertexCount
		v := [4]float32{float32(math.Cos(a)), float32(math.Sin(a)), 0, 1}
		for j, f := range v {
			binary.LittleEndian.PutUint32(out[i*vertexStride+j*4:], math.Float32bits(f))
		}
	}
	return out
}

func loadTexture(path string) (image.Image, error) {
	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			img, err := bmp.Decode(f)
			if err != nil {
				return nil, fmt.Errorf("failed to decode texture %s: %w", path, err)
			}
			return img, nil
		}
		core.LogWarn("texture %s not found, generating one", path)
	}
	return checkerboard()
}

// checkerboard round-trips a generated image through the BMP codec so the
// same decode path as for files is exercised.
func checkerboard() (image.Image, error) {
	src := image.NewNRGBA(image.Rect(0, 0, textureSize, textureSize))
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			c := color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
			if (x/8+y/8)%2 == 0 {
				c = color.NRGBA{R: 0xf0, G: 0x90, B: 0x20, A: 0xff}
			}
			src.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, src); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(&buf)
	return img, err
}
