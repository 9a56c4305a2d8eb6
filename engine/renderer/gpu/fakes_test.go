package gpu

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/stretchr/testify/require"
)

// requireFatal runs fn and checks that it aborts with target.
func requireFatal(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a fatal %v", target)
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.ErrorIs(t, err, target)
		var ie *core.InvariantError
		require.True(t, errors.As(err, &ie))
	}()
	fn()
}

type fakeHeap struct {
	cpu, gpu, stride uint64
	released         bool
}

func (h *fakeHeap) CPUBase() uint64 { return h.cpu }
func (h *fakeHeap) GPUBase() uint64 { return h.gpu }
func (h *fakeHeap) Stride() uint64  { return h.stride }
func (h *fakeHeap) Release()        { h.released = true }

type fakeResource struct {
	data     []byte
	released int
}

func (r *fakeResource) Mapped() []byte { return r.data }
func (r *fakeResource) Release()       { r.released++ }

type fakeCopy struct {
	dst, src  *Resource
	dstOffset uint64
	srcOffset uint64
	size      uint64
	footprint *TextureFootprint
}

type fakeCommandList struct {
	barriers []Barrier
	copies   []fakeCopy
	resets   int
	closes   int
	released bool
}

func (cl *fakeCommandList) ResourceBarrier(barriers ...Barrier) {
	cl.barriers = append(cl.barriers, barriers...)
}

func (cl *fakeCommandList) CopyBufferRegion(dst *Resource, dstOffset uint64, src *Resource, srcOffset uint64, size uint64) {
	cl.copies = append(cl.copies, fakeCopy{dst: dst, dstOffset: dstOffset, src: src, srcOffset: srcOffset, size: size})
}

func (cl *fakeCommandList) CopyBufferToTexture(dst *Resource, src *Resource, footprint TextureFootprint) {
	fp := footprint
	cl.copies = append(cl.copies, fakeCopy{dst: dst, src: src, srcOffset: fp.Offset, footprint: &fp})
}

func (cl *fakeCommandList) Reset() error {
	cl.resets++
	cl.barriers = cl.barriers[:0]
	cl.copies = cl.copies[:0]
	return nil
}

func (cl *fakeCommandList) Close() error {
	cl.closes++
	return nil
}

func (cl *fakeCommandList) Release() { cl.released = true }

// fakeFence only advances when the test says so.
type fakeFence struct {
	mu       sync.Mutex
	cond     *sync.Cond
	value    uint64
	lost     bool
	waits    []uint64
	released bool
}

func newFakeFence(initial uint64) *fakeFence {
	f := &fakeFence{value: initial}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fakeFence) CompletedValue() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lost {
		return 0, fmt.Errorf("fake fence: %w", core.ErrDeviceLost)
	}
	return f.value, nil
}

func (f *fakeFence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, value)
	for f.value < value && !f.lost {
		f.cond.Wait()
	}
	if f.lost {
		return fmt.Errorf("fake fence: %w", core.ErrDeviceLost)
	}
	return nil
}

func (f *fakeFence) Release() { f.released = true }

func (f *fakeFence) Advance(value uint64) {
	f.mu.Lock()
	if value > f.value {
		f.value = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fakeFence) Lose() {
	f.mu.Lock()
	f.lost = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fakeFence) Waits() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.waits...)
}

// fakeQueue completes work instantly unless hold is set, in which case the
// signaled values pile up until release.
type fakeQueue struct {
	mu        sync.Mutex
	hold      bool
	submitted int
	signals   []uint64
	pending   map[*fakeFence]uint64
	submitErr error
}

func (q *fakeQueue) Submit(lists ...CommandList) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return q.submitErr
	}
	q.submitted += len(lists)
	return nil
}

func (q *fakeQueue) Signal(fence Fence, value uint64) error {
	f := fence.(*fakeFence)
	q.mu.Lock()
	q.signals = append(q.signals, value)
	hold := q.hold
	if hold {
		if q.pending == nil {
			q.pending = map[*fakeFence]uint64{}
		}
		q.pending[f] = value
	}
	q.mu.Unlock()
	if !hold {
		f.Advance(value)
	}
	return nil
}

func (q *fakeQueue) setHold(hold bool) {
	q.mu.Lock()
	q.hold = hold
	q.mu.Unlock()
}

type fakePresenter struct {
	presents int
}

func (p *fakePresenter) Present() error {
	p.presents++
	return nil
}

type fakeDevice struct {
	queue     *fakeQueue
	heaps     []*fakeHeap
	resources []*fakeResource
	lists     []*fakeCommandList
	fences    []*fakeFence
	heapErr   error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{queue: &fakeQueue{}}
}

func (d *fakeDevice) CreateDescriptorHeap(kind DescriptorKind, capacity uint32) (NativeDescriptorHeap, error) {
	if d.heapErr != nil {
		return nil, d.heapErr
	}
	h := &fakeHeap{
		cpu:    0x1000 * uint64(kind+1),
		gpu:    0x100000 * uint64(kind+1),
		stride: 32,
	}
	d.heaps = append(d.heaps, h)
	return h, nil
}

func (d *fakeDevice) CreateBuffer(desc BufferDesc) (NativeResource, error) {
	r := &fakeResource{}
	if desc.Heap != HeapTypeDefault {
		r.data = make([]byte, desc.Size)
	}
	d.resources = append(d.resources, r)
	return r, nil
}

func (d *fakeDevice) CreateTexture(desc TextureDesc) (NativeResource, error) {
	r := &fakeResource{}
	d.resources = append(d.resources, r)
	return r, nil
}

func (d *fakeDevice) CreateCommandList() (CommandList, error) {
	cl := &fakeCommandList{}
	d.lists = append(d.lists, cl)
	return cl, nil
}

func (d *fakeDevice) CreateFence(initial uint64) (Fence, error) {
	f := newFakeFence(initial)
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) Queue() Queue { return d.queue }
func (d *fakeDevice) Release()     {}

func capacities(rtv, dsv, cbv, sampler uint32) DescriptorCapacities {
	return DescriptorCapacities{
		DescriptorKindRTV:       rtv,
		DescriptorKindDSV:       dsv,
		DescriptorKindCBVSRVUAV: cbv,
		DescriptorKindSampler:   sampler,
	}
}

func newUploadBuffer(size uint64) *Resource {
	desc := BufferDesc{Name: "upload", Size: size, Heap: HeapTypeUpload}
	return NewBufferResource(&fakeResource{data: make([]byte, size)}, desc)
}
