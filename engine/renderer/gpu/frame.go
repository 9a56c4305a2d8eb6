package gpu

import (
	"fmt"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

type deferredDescriptor struct {
	kind DescriptorKind
	slot DescriptorSlot
}

// Frame holds the resources of one in-flight slot: a command list, an upload
// arena and the descriptors waiting for the GPU to let go of them.
type Frame struct {
	slot        uint32
	fenceValue  uint64
	commandList CommandList
	arenaBuffer *Resource
	arena       *UploadArena
	deferred    []deferredDescriptor
}

func (f *Frame) Slot() uint32             { return f.slot }
func (f *Frame) CommandList() CommandList { return f.commandList }
func (f *Frame) Arena() *UploadArena      { return f.arena }

// FenceValue is the fence value signaled when the last frame recorded into
// this slot completes.
func (f *Frame) FenceValue() uint64 { return f.fenceValue }

// FreeDescriptorDeferred releases slot once the GPU finished this frame.
func (f *Frame) FreeDescriptorDeferred(kind DescriptorKind, slot DescriptorSlot) {
	f.deferred = append(f.deferred, deferredDescriptor{kind: kind, slot: slot})
}

// FrameRing cycles through one Frame per in-flight frame.
type FrameRing struct {
	frames      []*Frame
	pacer       *FramePacer
	descriptors *DescriptorAllocator
	current     *Frame
}

func NewFrameRing(device Device, pacer *FramePacer, descriptors *DescriptorAllocator, arenaSize uint64, namer *core.Namer) (*FrameRing, error) {
	fr := &FrameRing{
		frames:      make([]*Frame, pacer.Budget()),
		pacer:       pacer,
		descriptors: descriptors,
	}
	for i := range fr.frames {
		cl, err := device.CreateCommandList()
		if err != nil {
			fr.Release()
			return nil, fmt.Errorf("failed to create command list for frame slot %d: %w", i, err)
		}
		desc := BufferDesc{
			Name: namer.Next("UploadArena"),
			Size: arenaSize,
			Heap: HeapTypeUpload,
		}
		native, err := device.CreateBuffer(desc)
		if err != nil {
			cl.Release()
			fr.Release()
			return nil, fmt.Errorf("failed to create upload arena for frame slot %d: %w", i, err)
		}
		buf := NewBufferResource(native, desc)
		fr.frames[i] = &Frame{
			slot:        uint32(i),
			commandList: cl,
			arenaBuffer: buf,
			arena:       NewUploadArena(buf),
		}
	}
	return fr, nil
}

func (fr *FrameRing) Current() *Frame {
	return fr.current
}

func (fr *FrameRing) Len() int {
	return len(fr.frames)
}

// Begin waits until the next slot is free, recycles it and starts recording.
func (fr *FrameRing) Begin() (*Frame, error) {
	core.Assert(fr.current == nil, core.ErrNoActiveFrame, "Begin called while frame slot %d is recording", fr.slotOf(fr.current))
	if err := fr.pacer.WaitIfNecessary(); err != nil {
		return nil, err
	}

	f := fr.frames[fr.pacer.FrameSlot()]
	done, err := fr.pacer.IsComplete(f.fenceValue)
	if err != nil {
		return nil, err
	}
	core.Assert(done, core.ErrFrameSlotBusy, "slot %d still waits for fence value %d (gpu at %d)",
		f.slot, f.fenceValue, fr.pacer.GPUFrameIndex())

	fr.releaseDeferred(f)
	if err := f.commandList.Reset(); err != nil {
		return nil, fmt.Errorf("failed to reset command list of frame slot %d: %w", f.slot, err)
	}
	f.arena.Reset()
	fr.pacer.BeginFrame()
	fr.current = f
	return f, nil
}

// End closes the current command list and submits it.
func (fr *FrameRing) End() error {
	f := fr.current
	core.Assert(f != nil, core.ErrNoActiveFrame, "End called without Begin")
	fr.current = nil
	if err := f.commandList.Close(); err != nil {
		return fmt.Errorf("failed to close command list of frame slot %d: %w", f.slot, err)
	}
	if err := fr.pacer.EndFrame(f.commandList); err != nil {
		return err
	}
	f.fenceValue = fr.pacer.CPUFrameIndex()
	return nil
}

func (fr *FrameRing) releaseDeferred(f *Frame) {
	for _, d := range f.deferred {
		fr.descriptors.Deallocate(d.kind, d.slot)
	}
	f.deferred = f.deferred[:0]
}

// ReleaseDeferred returns every pending descriptor to the allocator. The
// caller must have flushed the queue first.
func (fr *FrameRing) ReleaseDeferred() {
	for _, f := range fr.frames {
		if f != nil {
			fr.releaseDeferred(f)
		}
	}
}

// Release destroys the per-frame command lists and arenas. The caller must
// have flushed the queue first.
func (fr *FrameRing) Release() {
	for i, f := range fr.frames {
		if f == nil {
			continue
		}
		f.commandList.Release()
		f.arenaBuffer.Release()
		fr.frames[i] = nil
	}
	fr.current = nil
}

func (fr *FrameRing) slotOf(f *Frame) int {
	if f == nil {
		return -1
	}
	return int(f.slot)
}
