package gpu

import (
	"sync/atomic"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

// Resource is a buffer or texture together with its tracked access state.
//
// A resource owns exactly one native handle. Resources shared between
// several consumers (a back buffer used by the swap chain and the renderer)
// are kept alive with Retain and the native handle is released once, when
// the last reference is dropped.
type Resource struct {
	name   string
	kind   ResourceKind
	heap   HeapType
	size   uint64
	width  uint32
	height uint32
	format Format

	native NativeResource
	refs   atomic.Int32

	tracker ResourceStateTracker
}

// NewBufferResource takes ownership of native. Backends use it for buffers
// they create outside a Context.
func NewBufferResource(native NativeResource, desc BufferDesc) *Resource {
	r := &Resource{
		name:   desc.Name,
		kind:   ResourceKindBuffer,
		heap:   desc.Heap,
		size:   desc.Size,
		native: native,
	}
	switch desc.Heap {
	case HeapTypeUpload:
		r.tracker = NewResourceStateTracker(ResourceStateGenericRead, true)
	case HeapTypeReadback:
		r.tracker = NewResourceStateTracker(ResourceStateCopyDest, true)
	default:
		r.tracker = NewResourceStateTracker(ResourceStateCommon, false)
	}
	r.refs.Store(1)
	return r
}

// NewTextureResource takes ownership of native, e.g. a swap chain image.
func NewTextureResource(native NativeResource, desc TextureDesc) *Resource {
	r := &Resource{
		name:    desc.Name,
		kind:    ResourceKindTexture,
		heap:    HeapTypeDefault,
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
		native:  native,
		tracker: NewResourceStateTracker(desc.InitialState, false),
	}
	r.refs.Store(1)
	return r
}

func (r *Resource) Name() string         { return r.name }
func (r *Resource) Kind() ResourceKind   { return r.kind }
func (r *Resource) Heap() HeapType       { return r.heap }
func (r *Resource) Size() uint64         { return r.size }
func (r *Resource) Width() uint32        { return r.width }
func (r *Resource) Height() uint32       { return r.height }
func (r *Resource) Format() Format       { return r.format }
func (r *Resource) State() ResourceState { return r.tracker.State() }

// Native returns the backend object, nil once released.
func (r *Resource) Native() NativeResource {
	return r.native
}

func (r *Resource) IsLive() bool {
	return r != nil && r.native != nil
}

// Mapped returns the host-visible bytes of an upload or readback resource.
func (r *Resource) Mapped() []byte {
	core.Assert(r.IsLive(), core.ErrInvalidResource, "mapping released resource %q", r.name)
	return r.native.Mapped()
}

// TransitionTo records a barrier moving r into state, unless it is already
// there. It reports whether a barrier was recorded.
func (r *Resource) TransitionTo(rec BarrierRecorder, state ResourceState) bool {
	if r == nil {
		core.Fatal(core.ErrInvalidResource, "transition of nil resource to %s", state)
	}
	core.Assert(r.native != nil, core.ErrInvalidResource, "transition of released resource %q to %s", r.name, state)
	return r.tracker.SetState(rec, r, state)
}

// Retain adds a reference for a consumer that shares the resource.
func (r *Resource) Retain() *Resource {
	core.Assert(r.refs.Add(1) > 1, core.ErrInvalidResource, "retain of released resource %q", r.name)
	return r
}

// Release drops one reference and frees the native handle with the last one.
func (r *Resource) Release() {
	n := r.refs.Add(-1)
	core.Assert(n >= 0, core.ErrInvalidResource, "release of released resource %q", r.name)
	if n == 0 {
		r.native.Release()
		r.native = nil
	}
}

func (r *Resource) RefCount() int32 {
	return r.refs.Load()
}
