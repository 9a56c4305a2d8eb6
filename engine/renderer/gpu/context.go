package gpu

import (
	"fmt"
	"image"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

type Options struct {
	Capacities DescriptorCapacities
	// Bytes of upload memory per in-flight frame.
	ArenaSize uint64
	// Frames the CPU may record ahead of the GPU.
	InFlight uint32
	// Optional; presented from EndFrame before the fence is signaled.
	Presenter Presenter
	// Guard the descriptor heaps with a mutex.
	LockedDescriptors bool
}

func OptionsFromConfig(cfg *core.Config) Options {
	return Options{
		Capacities: DescriptorCapacities{
			DescriptorKindRTV:       cfg.Descriptors.RTV,
			DescriptorKindDSV:       cfg.Descriptors.DSV,
			DescriptorKindCBVSRVUAV: cfg.Descriptors.CBVSRVUAV,
			DescriptorKindSampler:   cfg.Descriptors.Sampler,
		},
		ArenaSize: cfg.Upload.ArenaSize,
		InFlight:  cfg.Frames.InFlight,
	}
}

// Context ties the descriptor allocator, the per-frame upload arenas, the
// state tracking and the frame pacer to one device. Rendering code records
// through it; lifecycle code calls OnResize and Shutdown.
type Context struct {
	device      Device
	namer       *core.Namer
	fence       Fence
	descriptors *DescriptorAllocator
	pacer       *FramePacer
	frames      *FrameRing
}

func NewContext(device Device, opts Options) (*Context, error) {
	namer := core.NewNamer()
	ctx := &Context{
		device: device,
		namer:  namer,
	}

	var daOpts []DescriptorAllocatorOption
	daOpts = append(daOpts, WithAllocatorName("DescriptorAllocator-"+namer.Short()))
	if opts.LockedDescriptors {
		daOpts = append(daOpts, WithLocking())
	}
	da, err := NewDescriptorAllocator(device, opts.Capacities, daOpts...)
	if err != nil {
		return nil, err
	}
	ctx.descriptors = da

	fence, err := device.CreateFence(0)
	if err != nil {
		da.Destroy()
		return nil, fmt.Errorf("failed to create frame fence: %w", err)
	}
	ctx.fence = fence

	var pacerOpts []FramePacerOption
	if opts.Presenter != nil {
		pacerOpts = append(pacerOpts, WithPresenter(opts.Presenter))
	}
	ctx.pacer = NewFramePacer(device.Queue(), fence, opts.InFlight, pacerOpts...)

	fr, err := NewFrameRing(device, ctx.pacer, da, opts.ArenaSize, namer)
	if err != nil {
		fence.Release()
		da.Destroy()
		return nil, err
	}
	ctx.frames = fr

	core.LogInfo("gpu context %s ready: %d frames in flight, %d byte upload arenas",
		namer.Short(), opts.InFlight, opts.ArenaSize)
	return ctx, nil
}

func (c *Context) Device() Device                    { return c.device }
func (c *Context) Descriptors() *DescriptorAllocator { return c.descriptors }
func (c *Context) Pacer() *FramePacer                { return c.pacer }
func (c *Context) Frames() *FrameRing                { return c.frames }

func (c *Context) currentFrame() *Frame {
	f := c.frames.Current()
	if f == nil {
		core.Fatal(core.ErrNoActiveFrame, "recording outside BeginFrame/EndFrame")
	}
	return f
}

// CommandList is the list of the frame being recorded.
func (c *Context) CommandList() CommandList {
	return c.currentFrame().CommandList()
}

func (c *Context) AllocateDescriptor(kind DescriptorKind) DescriptorSlot {
	return c.descriptors.Allocate(kind)
}

// FreeDescriptor releases slot immediately. Only safe when no submitted
// work references it; otherwise use FreeDescriptorDeferred.
func (c *Context) FreeDescriptor(kind DescriptorKind, slot DescriptorSlot) {
	c.descriptors.Deallocate(kind, slot)
}

// FreeDescriptorDeferred releases slot once the frame being recorded has
// completed on the GPU.
func (c *Context) FreeDescriptorDeferred(kind DescriptorKind, slot DescriptorSlot) {
	c.currentFrame().FreeDescriptorDeferred(kind, slot)
}

// AllocateUploadSpace reserves staging memory valid until this frame slot is
// recycled.
func (c *Context) AllocateUploadSpace(size, alignment uint64) uint64 {
	return c.currentFrame().Arena().Allocate(size, alignment)
}

// WriteUpload copies data into staging memory returned by AllocateUploadSpace.
func (c *Context) WriteUpload(offset uint64, data []byte) {
	c.currentFrame().Arena().Write(offset, data)
}

// TransitionTo records the barrier needed before r is used in state.
func (c *Context) TransitionTo(r *Resource, state ResourceState) bool {
	return r.TransitionTo(c.currentFrame().CommandList(), state)
}

func (c *Context) CreateBuffer(desc BufferDesc) (*Resource, error) {
	if desc.Name == "" {
		desc.Name = c.namer.Next("Buffer")
	}
	native, err := c.device.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", desc.Name, err)
	}
	return NewBufferResource(native, desc), nil
}

func (c *Context) CreateTexture(desc TextureDesc) (*Resource, error) {
	if desc.Name == "" {
		desc.Name = c.namer.Next("Texture")
	}
	native, err := c.device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", desc.Name, err)
	}
	return NewTextureResource(native, desc), nil
}

// UploadBuffer stages data and records a copy into dst at dstOffset. dst is
// left in ResourceStateCopyDest.
func (c *Context) UploadBuffer(dst *Resource, dstOffset uint64, data []byte) {
	f := c.currentFrame()
	core.Assert(dst.Kind() == ResourceKindBuffer, core.ErrInvalidResource, "%q is not a buffer", dst.Name())
	offset := f.Arena().Upload(data, 0)
	dst.TransitionTo(f.CommandList(), ResourceStateCopyDest)
	f.CommandList().CopyBufferRegion(dst, dstOffset, f.Arena().Buffer(), offset, uint64(len(data)))
}

// UploadTexture stages tightly packed pixels and records a copy into dst. dst
// is left in ResourceStateCopyDest.
func (c *Context) UploadTexture(dst *Resource, pixels []byte) {
	f := c.currentFrame()
	core.Assert(dst.Kind() == ResourceKindTexture, core.ErrInvalidResource, "%q is not a texture", dst.Name())
	fp := f.Arena().StageTexture(pixels, dst.Width(), dst.Height(), dst.Format())
	dst.TransitionTo(f.CommandList(), ResourceStateCopyDest)
	f.CommandList().CopyBufferToTexture(dst, f.Arena().Buffer(), fp)
}

// UploadImage converts img to RGBA8 and uploads it into dst, which must be
// an RGBA8 texture of the same size.
func (c *Context) UploadImage(dst *Resource, img image.Image) {
	b := img.Bounds()
	core.Assert(dst.Format() == FormatRGBA8Unorm && uint32(b.Dx()) == dst.Width() && uint32(b.Dy()) == dst.Height(),
		core.ErrTextureDataSize, "%dx%d image into %q (%dx%d)", b.Dx(), b.Dy(), dst.Name(), dst.Width(), dst.Height())
	rgba := ImageToRGBA(img)
	c.UploadTexture(dst, rgba.Pix[:4*b.Dx()*b.Dy()])
}

func (c *Context) BeginFrame() (*Frame, error) {
	return c.frames.Begin()
}

func (c *Context) EndFrame() error {
	return c.frames.End()
}

func (c *Context) WaitIfNecessary() error {
	return c.pacer.WaitIfNecessary()
}

func (c *Context) FlushAll() error {
	return c.pacer.FlushAll()
}

// OnResize drains the queue so size-dependent resources can be recreated.
func (c *Context) OnResize(width, height uint32) error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	core.LogInfo("gpu context %s flushed for resize to %dx%d", c.namer.Short(), width, height)
	return nil
}

// Shutdown drains the queue and destroys the per-frame resources and the
// descriptor heaps. Descriptors still allocated at this point are leaks.
func (c *Context) Shutdown() error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	c.frames.ReleaseDeferred()
	c.frames.Release()
	c.descriptors.Destroy()
	c.fence.Release()
	stats := c.pacer.Stats()
	core.LogInfo("gpu context %s shut down after %d frames (%d pacer waits, %s blocked)",
		c.namer.Short(), c.pacer.CPUFrameIndex(), stats.Waits, stats.Blocked)
	return nil
}
