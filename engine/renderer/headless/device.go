package headless

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

const (
	// Size of one simulated descriptor.
	descriptorStride = 32
	// Address space reserved for every simulated descriptor heap.
	heapAddressSpan = 1 << 32
)

// Device is an in-process GPU. Memory is plain byte slices and a single
// queue executes command lists on a worker goroutine, so the CPU and GPU
// timelines are as independent as on real hardware.
type Device struct {
	namer *core.Namer
	queue *Queue

	mu        sync.Mutex
	nextHeap  uint64
	lost      atomic.Bool
	fences    []*Fence
	live      atomic.Int64
	validator *validator
}

var (
	_ gpu.Device               = (*Device)(nil)
	_ gpu.Queue                = (*Queue)(nil)
	_ gpu.Fence                = (*Fence)(nil)
	_ gpu.CommandList          = (*CommandList)(nil)
	_ gpu.NativeDescriptorHeap = (*DescriptorHeap)(nil)
	_ gpu.NativeResource       = (*Buffer)(nil)
	_ gpu.NativeResource       = (*Texture)(nil)
	_ gpu.Presenter            = (*Presenter)(nil)
)

type Option func(*Device)

// WithHeldQueue starts the device with its queue paused, see Queue.Hold.
func WithHeldQueue() Option {
	return func(d *Device) {
		d.queue.Hold()
	}
}

func NewDevice(opts ...Option) *Device {
	d := &Device{
		namer:     core.NewNamer(),
		nextHeap:  1,
		validator: &validator{},
	}
	d.queue = newQueue(d)
	for _, opt := range opts {
		opt(d)
	}
	core.LogInfo("headless device %s created", d.namer.Short())
	return d
}

func (d *Device) checkLost() error {
	if d.lost.Load() {
		return fmt.Errorf("headless device %s: %w", d.namer.Short(), core.ErrDeviceLost)
	}
	return nil
}

func (d *Device) CreateDescriptorHeap(kind gpu.DescriptorKind, capacity uint32) (gpu.NativeDescriptorHeap, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	base := d.nextHeap * heapAddressSpan
	d.nextHeap++
	d.mu.Unlock()

	h := &DescriptorHeap{
		device:   d,
		name:     d.namer.Next(kind.String() + "Heap"),
		kind:     kind,
		capacity: capacity,
		cpuBase:  base,
	}
	if kind.ShaderVisible() {
		// GPU addresses live in the upper half of the heap's span.
		h.gpuBase = base + heapAddressSpan/2
	}
	d.live.Add(1)
	return h, nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.NativeResource, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Name)
	}
	b := &Buffer{
		device: d,
		name:   desc.Name,
		heap:   desc.Heap,
		data:   make([]byte, desc.Size),
	}
	switch desc.Heap {
	case gpu.HeapTypeUpload:
		b.state = gpu.ResourceStateGenericRead
	case gpu.HeapTypeReadback:
		b.state = gpu.ResourceStateCopyDest
	default:
		b.state = gpu.ResourceStateCommon
	}
	d.live.Add(1)
	return b, nil
}

func (d *Device) CreateTexture(desc gpu.TextureDesc) (gpu.NativeResource, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	bpp := desc.Format.BytesPerPixel()
	if bpp == 0 || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q: unsupported %dx%d format %d", desc.Name, desc.Width, desc.Height, desc.Format)
	}
	t := &Texture{
		device: d,
		name:   desc.Name,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		texels: make([]byte, uint64(desc.Width)*uint64(desc.Height)*uint64(bpp)),
		state:  desc.InitialState,
	}
	d.live.Add(1)
	return t, nil
}

func (d *Device) CreateCommandList() (gpu.CommandList, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	d.live.Add(1)
	return &CommandList{device: d, name: d.namer.Next("CommandList")}, nil
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	f := newFence(d, initial)
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	d.live.Add(1)
	return f, nil
}

func (d *Device) Queue() gpu.Queue {
	return d.queue
}

// HeadlessQueue exposes the queue controls used to script GPU timing.
func (d *Device) HeadlessQueue() *Queue {
	return d.queue
}

// LoseDevice simulates a removed device. Every pending and future fence wait
// fails with core.ErrDeviceLost and queued work is dropped.
func (d *Device) LoseDevice() {
	if d.lost.Swap(true) {
		return
	}
	core.LogError("headless device %s lost", d.namer.Short())
	d.queue.Resume()
	d.mu.Lock()
	fences := append([]*Fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.wake()
	}
}

func (d *Device) IsLost() bool {
	return d.lost.Load()
}

// LiveObjects is the number of created objects not yet released.
func (d *Device) LiveObjects() int64 {
	return d.live.Load()
}

// ValidationErrors lists barriers whose before state did not match the state
// the resource was actually in when the queue executed them.
func (d *Device) ValidationErrors() []string {
	return d.validator.errors()
}

func (d *Device) Release() {
	d.queue.shutdown()
	if n := d.live.Load(); n != 0 {
		core.LogWarn("headless device %s released with %d live objects", d.namer.Short(), n)
	}
	core.LogInfo("headless device %s released", d.namer.Short())
}

type validator struct {
	mu   sync.Mutex
	errs []string
}

func (v *validator) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogWarn("headless validation: %s", msg)
	v.mu.Lock()
	v.errs = append(v.errs, msg)
	v.mu.Unlock()
}

func (v *validator) errors() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.errs...)
}
