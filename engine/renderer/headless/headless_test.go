package headless

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, dev *Device, opts ...func(*gpu.Options)) *gpu.Context {
	t.Helper()
	o := gpu.Options{
		Capacities: gpu.DescriptorCapacities{
			gpu.DescriptorKindRTV:       4,
			gpu.DescriptorKindDSV:       4,
			gpu.DescriptorKindCBVSRVUAV: 4,
			gpu.DescriptorKindSampler:   4,
		},
		ArenaSize: 64 << 10,
		InFlight:  2,
	}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, err := gpu.NewContext(dev, o)
	require.NoError(t, err)
	return ctx
}

func TestUploadBufferEndToEnd(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()
	ctx := newContext(t, dev)

	vb, err := ctx.CreateBuffer(gpu.BufferDesc{Name: "vertices", Size: 16})
	require.NoError(t, err)
	readback, err := ctx.CreateBuffer(gpu.BufferDesc{Name: "readback", Size: 16, Heap: gpu.HeapTypeReadback})
	require.NoError(t, err)

	_, err = ctx.BeginFrame()
	require.NoError(t, err)
	ctx.UploadBuffer(vb, 4, []byte{1, 2, 3, 4, 5})
	ctx.TransitionTo(vb, gpu.ResourceStateCopySource)
	ctx.CommandList().CopyBufferRegion(readback, 0, vb, 0, 16)
	require.NoError(t, ctx.EndFrame())
	require.NoError(t, ctx.FlushAll())

	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4, 5, 0, 0, 0, 0, 0, 0, 0}, readback.Mapped())
	assert.Nil(t, vb.Mapped())
	assert.Empty(t, dev.ValidationErrors())

	vb.Release()
	readback.Release()
	require.NoError(t, ctx.Shutdown())
	assert.Equal(t, int64(0), dev.LiveObjects())
}

func TestUploadImageEndToEnd(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()
	ctx := newContext(t, dev)

	tex, err := ctx.CreateTexture(gpu.TextureDesc{Width: 3, Height: 2, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}

	_, err = ctx.BeginFrame()
	require.NoError(t, err)
	ctx.UploadImage(tex, img)
	ctx.TransitionTo(tex, gpu.ResourceStatePixelShaderResource)
	require.NoError(t, ctx.EndFrame())
	require.NoError(t, ctx.FlushAll())

	native := tex.Native().(*Texture)
	assert.Equal(t, img.Pix, native.Texels())
	assert.Equal(t, gpu.ResourceStatePixelShaderResource, native.state)
	assert.Empty(t, dev.ValidationErrors())

	tex.Release()
	require.NoError(t, ctx.Shutdown())
}

func TestPacerBlocksOnHeldQueue(t *testing.T) {
	dev := NewDevice(WithHeldQueue())
	defer dev.Release()
	ctx := newContext(t, dev)
	q := dev.HeadlessQueue()

	for i := 0; i < 2; i++ {
		_, err := ctx.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, ctx.EndFrame())
	}
	assert.Equal(t, uint64(0), q.Executed())

	began := make(chan error, 1)
	go func() {
		_, err := ctx.BeginFrame()
		began <- err
	}()

	select {
	case <-began:
		t.Fatal("third frame began with two frames in flight")
	case <-time.After(50 * time.Millisecond):
	}

	q.Resume()
	select {
	case err := <-began:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("frame did not begin after the queue resumed")
	}
	require.NoError(t, ctx.EndFrame())
	require.NoError(t, ctx.Shutdown())
	assert.Equal(t, uint64(3), q.Executed())
	assert.Equal(t, uint64(1), ctx.Pacer().Stats().Waits)
}

func TestArenaReusedOnlyAfterFence(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()
	ctx := newContext(t, dev, func(o *gpu.Options) { o.InFlight = 1 })

	dst, err := ctx.CreateBuffer(gpu.BufferDesc{Name: "dst", Size: 4})
	require.NoError(t, err)

	// Every frame reuses offset 0 of the only arena. Each copy must still
	// see its own bytes.
	for i := byte(1); i <= 8; i++ {
		_, err := ctx.BeginFrame()
		require.NoError(t, err)
		off := ctx.AllocateUploadSpace(4, 0)
		assert.Equal(t, uint64(0), off)
		ctx.WriteUpload(off, []byte{i, i, i, i})
		ctx.UploadBuffer(dst, 0, []byte{i, i, i, i})
		require.NoError(t, ctx.EndFrame())
	}
	require.NoError(t, ctx.FlushAll())
	assert.Equal(t, []byte{8, 8, 8, 8}, dst.Native().(*Buffer).Contents())

	dst.Release()
	require.NoError(t, ctx.Shutdown())
}

func TestDeviceLost(t *testing.T) {
	dev := NewDevice(WithHeldQueue())
	defer dev.Release()
	ctx := newContext(t, dev)

	for i := 0; i < 2; i++ {
		_, err := ctx.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, ctx.EndFrame())
	}

	done := make(chan error, 1)
	go func() {
		done <- ctx.WaitIfNecessary()
	}()
	time.Sleep(10 * time.Millisecond)
	dev.LoseDevice()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrDeviceLost)
	case <-time.After(time.Second):
		t.Fatal("pacer did not observe device loss")
	}
	assert.ErrorIs(t, ctx.FlushAll(), core.ErrDeviceLost)
	assert.ErrorIs(t, ctx.Shutdown(), core.ErrDeviceLost)

	_, err := dev.CreateBuffer(gpu.BufferDesc{Size: 4})
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestValidationCatchesStaleBarrier(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()

	native, err := dev.CreateTexture(gpu.TextureDesc{Name: "rt", Width: 1, Height: 1, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)

	cl, err := dev.CreateCommandList()
	require.NoError(t, err)
	r := gpu.NewTextureResource(native, gpu.TextureDesc{Name: "rt", Width: 1, Height: 1, Format: gpu.FormatRGBA8Unorm})
	cl.ResourceBarrier(gpu.Barrier{Resource: r, Before: gpu.ResourceStateRenderTarget, After: gpu.ResourceStateCommon})
	require.NoError(t, cl.Close())

	q := dev.HeadlessQueue()
	require.NoError(t, q.Submit(cl))
	q.WaitIdle()

	errs := dev.ValidationErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "barrier expected RenderTarget")
}

func TestCommandListLifecycle(t *testing.T) {
	dev := NewDevice(WithHeldQueue())
	defer dev.Release()
	q := dev.HeadlessQueue()

	cl, err := dev.CreateCommandList()
	require.NoError(t, err)
	assert.Error(t, q.Submit(cl), "open list")

	require.NoError(t, cl.Close())
	require.NoError(t, q.Submit(cl))
	assert.Error(t, cl.Reset(), "still executing")

	q.Resume()
	q.WaitIdle()
	assert.NoError(t, cl.Reset())
	cl.Release()
}

func TestCopyOutOfBoundsFailsClose(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()

	a, err := dev.CreateBuffer(gpu.BufferDesc{Name: "a", Size: 8, Heap: gpu.HeapTypeUpload})
	require.NoError(t, err)
	b, err := dev.CreateBuffer(gpu.BufferDesc{Name: "b", Size: 4})
	require.NoError(t, err)
	cl, err := dev.CreateCommandList()
	require.NoError(t, err)

	src := gpu.NewBufferResource(a, gpu.BufferDesc{Name: "a", Size: 8, Heap: gpu.HeapTypeUpload})
	dst := gpu.NewBufferResource(b, gpu.BufferDesc{Name: "b", Size: 4})
	cl.CopyBufferRegion(dst, 0, src, 0, 8)
	assert.Error(t, cl.Close())
}

func TestDescriptorHeapsAreDisjoint(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()

	rtv, err := dev.CreateDescriptorHeap(gpu.DescriptorKindRTV, 16)
	require.NoError(t, err)
	srv, err := dev.CreateDescriptorHeap(gpu.DescriptorKindCBVSRVUAV, 16)
	require.NoError(t, err)

	assert.NotEqual(t, rtv.CPUBase(), srv.CPUBase())
	assert.Zero(t, rtv.GPUBase())
	assert.NotZero(t, srv.GPUBase())
	assert.Equal(t, uint64(descriptorStride), srv.Stride())
}

func TestPresenterRotatesBackBuffers(t *testing.T) {
	dev := NewDevice()
	defer dev.Release()
	ctx := newContext(t, dev)

	a, err := ctx.CreateTexture(gpu.TextureDesc{Width: 1, Height: 1, Format: gpu.FormatBGRA8Unorm, InitialState: gpu.ResourceStatePresent})
	require.NoError(t, err)
	b, err := ctx.CreateTexture(gpu.TextureDesc{Width: 1, Height: 1, Format: gpu.FormatBGRA8Unorm, InitialState: gpu.ResourceStatePresent})
	require.NoError(t, err)

	p := NewPresenter(a, b)
	assert.Equal(t, int32(2), a.RefCount())
	assert.Same(t, a, p.BackBuffer())
	require.NoError(t, p.Present())
	assert.Same(t, b, p.BackBuffer())
	assert.Equal(t, uint64(1), p.Presents())

	p.Release()
	a.Release()
	b.Release()
	assert.False(t, a.IsLive())
	require.NoError(t, ctx.Shutdown())
}

func signalMany(q *Queue, fence gpu.Fence, n int) <-chan error {
	done := make(chan error, 1)
	go func() {
		for i := 1; i <= n; i++ {
			if err := q.Signal(fence, uint64(i)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	return done
}

func TestResumeDrainsFullHeldQueue(t *testing.T) {
	dev := NewDevice(WithHeldQueue())
	defer dev.Release()
	q := dev.HeadlessQueue()
	fence, err := dev.CreateFence(0)
	require.NoError(t, err)
	defer fence.Release()

	n := queueDepth + 2
	done := signalMany(q, fence, n)
	select {
	case <-done:
		t.Fatal("signals were accepted past the channel depth while held")
	case <-time.After(50 * time.Millisecond):
	}

	resumed := make(chan struct{})
	go func() {
		q.Resume()
		close(resumed)
	}()
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("Resume blocked behind a sender waiting on the full queue")
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("queued signals did not drain after Resume")
	}
	require.NoError(t, fence.Wait(uint64(n)))
}

func TestReleaseWithBlockedSender(t *testing.T) {
	dev := NewDevice(WithHeldQueue())
	q := dev.HeadlessQueue()
	fence, err := dev.CreateFence(0)
	require.NoError(t, err)

	done := signalMany(q, fence, queueDepth+2)
	time.Sleep(20 * time.Millisecond)

	released := make(chan struct{})
	go func() {
		dev.Release()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("Release blocked behind a sender waiting on the full queue")
	}
	if err := <-done; err != nil {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
	assert.ErrorIs(t, q.Signal(fence, 1), ErrQueueClosed)
	fence.Release()
}
