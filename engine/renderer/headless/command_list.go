package headless

import (
	"fmt"
	"sync/atomic"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

type command func()

// recording is an immutable copy of a closed command list, owned by the
// queue once submitted.
type recording struct {
	list     *CommandList
	commands []command
}

type stateful interface {
	resourceState() *gpu.ResourceState
}

func (b *Buffer) resourceState() *gpu.ResourceState  { return &b.state }
func (t *Texture) resourceState() *gpu.ResourceState { return &t.state }

// CommandList records commands as closures run later by the queue worker.
// Recording errors are reported by Close.
type CommandList struct {
	device   *Device
	name     string
	commands []command
	closed   bool
	err      error
	released bool

	// Submitted recordings not yet executed.
	pending atomic.Int32
}

func (cl *CommandList) Name() string { return cl.name }

func (cl *CommandList) record(cmd command) {
	core.Assert(!cl.closed, core.ErrInvalidResource, "%s: recording into a closed command list", cl.name)
	cl.commands = append(cl.commands, cmd)
}

func (cl *CommandList) fail(format string, args ...interface{}) {
	if cl.err == nil {
		cl.err = fmt.Errorf("%s: %s", cl.name, fmt.Sprintf(format, args...))
	}
}

func (cl *CommandList) ResourceBarrier(barriers ...gpu.Barrier) {
	for _, b := range barriers {
		core.Assert(b.Resource.IsLive(), core.ErrInvalidResource, "%s: barrier on released %q", cl.name, b.Resource.Name())
		s, ok := b.Resource.Native().(stateful)
		if !ok {
			cl.fail("barrier on foreign resource %q", b.Resource.Name())
			continue
		}
		name, before, after, v := b.Resource.Name(), b.Before, b.After, cl.device.validator
		cl.record(func() {
			state := s.resourceState()
			if *state != before {
				v.report("%q is %s, barrier expected %s", name, *state, before)
			}
			*state = after
		})
	}
}

func (cl *CommandList) CopyBufferRegion(dst *gpu.Resource, dstOffset uint64, src *gpu.Resource, srcOffset uint64, size uint64) {
	d, s := bufferOf(dst), bufferOf(src)
	if dstOffset+size > uint64(len(d.data)) || srcOffset+size > uint64(len(s.data)) {
		cl.fail("copy of %d bytes from %q+%d to %q+%d is out of bounds", size, src.Name(), srcOffset, dst.Name(), dstOffset)
		return
	}
	cl.record(func() {
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	})
}

func (cl *CommandList) CopyBufferToTexture(dst *gpu.Resource, src *gpu.Resource, fp gpu.TextureFootprint) {
	t, s := textureOf(dst), bufferOf(src)
	if fp.Format != t.format || fp.Width > t.width || fp.Height > t.height {
		cl.fail("footprint %dx%d format %d does not fit %q", fp.Width, fp.Height, fp.Format, dst.Name())
		return
	}
	tight := uint64(fp.Width) * uint64(t.format.BytesPerPixel())
	texPitch := uint64(t.width) * uint64(t.format.BytesPerPixel())
	if fp.Height > 0 && fp.Offset+uint64(fp.RowPitch)*uint64(fp.Height-1)+tight > uint64(len(s.data)) {
		cl.fail("footprint at %d overruns %q", fp.Offset, src.Name())
		return
	}
	cl.record(func() {
		for y := uint64(0); y < uint64(fp.Height); y++ {
			from := fp.Offset + y*uint64(fp.RowPitch)
			copy(t.texels[y*texPitch:y*texPitch+tight], s.data[from:from+tight])
		}
	})
}

// Reset fails if a previous recording is still waiting for the queue.
func (cl *CommandList) Reset() error {
	if n := cl.pending.Load(); n > 0 {
		return fmt.Errorf("%s: reset with %d submissions still executing", cl.name, n)
	}
	cl.commands = cl.commands[:0]
	cl.closed = false
	cl.err = nil
	return nil
}

func (cl *CommandList) Close() error {
	cl.closed = true
	return cl.err
}

func (cl *CommandList) snapshot() *recording {
	return &recording{
		list:     cl,
		commands: append([]command(nil), cl.commands...),
	}
}

func (cl *CommandList) Release() {
	if cl.released {
		return
	}
	cl.released = true
	cl.device.live.Add(-1)
}
