package gpu

import (
	"github.com/navkagleb/benzin-sub002/engine/core"
)

// UploadArena is a linear allocator over one host-visible buffer. Space is
// handed out by bumping an offset and reclaimed all at once by Reset, which
// the frame ring calls when the owning command list is reused.
type UploadArena struct {
	buffer      *Resource
	data        []byte
	capacity    uint64
	writeOffset uint64
}

// NewUploadArena wraps an upload-heap buffer. The arena does not own it.
func NewUploadArena(buffer *Resource) *UploadArena {
	core.Assert(buffer.IsLive(), core.ErrInvalidResource, "upload arena over released buffer")
	core.Assert(buffer.Heap() == HeapTypeUpload, core.ErrInvalidResource,
		"upload arena over %q which is not in the upload heap", buffer.Name())
	data := buffer.Mapped()
	return &UploadArena{
		buffer:   buffer,
		data:     data,
		capacity: uint64(len(data)),
	}
}

func (a *UploadArena) Buffer() *Resource { return a.buffer }
func (a *UploadArena) Capacity() uint64  { return a.capacity }
func (a *UploadArena) Offset() uint64    { return a.writeOffset }

func (a *UploadArena) Remaining() uint64 {
	return a.capacity - a.writeOffset
}

// Allocate reserves size bytes at an offset aligned to alignment and returns
// that offset. Running out of space is a sizing error and aborts.
func (a *UploadArena) Allocate(size, alignment uint64) uint64 {
	aligned := AlignUp(a.writeOffset, alignment)
	if aligned > a.capacity || size > a.capacity-aligned {
		core.Fatal(core.ErrUploadArenaFull, "%q: %d bytes at offset %d exceed capacity %d",
			a.buffer.Name(), size, aligned, a.capacity)
	}
	a.writeOffset = aligned + size
	return aligned
}

// Reset makes the whole buffer available again.
func (a *UploadArena) Reset() {
	a.writeOffset = 0
}

// Write copies data into the mapped buffer at offset. The range must have
// been returned by Allocate in the current cycle.
func (a *UploadArena) Write(offset uint64, data []byte) {
	end := offset + uint64(len(data))
	if end < offset || end > a.writeOffset {
		core.Fatal(core.ErrUploadArenaFull, "%q: write of %d bytes at %d is outside the allocated range [0, %d)",
			a.buffer.Name(), len(data), offset, a.writeOffset)
	}
	copy(a.data[offset:end], data)
}

// Bytes returns the mapped memory of an allocated range.
func (a *UploadArena) Bytes(offset, size uint64) []byte {
	end := offset + size
	if end < offset || end > a.writeOffset {
		core.Fatal(core.ErrUploadArenaFull, "%q: range [%d, %d) is outside the allocated range [0, %d)",
			a.buffer.Name(), offset, end, a.writeOffset)
	}
	return a.data[offset:end:end]
}

// Upload allocates room for data and copies it in.
func (a *UploadArena) Upload(data []byte, alignment uint64) uint64 {
	offset := a.Allocate(uint64(len(data)), alignment)
	a.Write(offset, data)
	return offset
}
