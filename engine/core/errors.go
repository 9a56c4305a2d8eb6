package core

import (
	"errors"
)

var (
	// Device-side failures. These are returned, never retried.
	ErrDeviceLost = errors.New("device lost")

	// Invariant violations. These are raised through Fatal.
	ErrDescriptorHeapFull   = errors.New("descriptor heap is full")
	ErrDescriptorDoubleFree = errors.New("descriptor slot freed twice")
	ErrDescriptorOutOfRange = errors.New("descriptor slot does not belong to the heap")
	ErrDescriptorLeak       = errors.New("descriptor heap destroyed with live slots")
	ErrUploadArenaFull      = errors.New("upload arena is full")
	ErrBadAlignment         = errors.New("alignment is not a power of two")
	ErrImmutableState       = errors.New("resource state cannot change for its heap type")
	ErrInvalidResource      = errors.New("resource has no live handle")
	ErrFrameSlotBusy        = errors.New("frame slot reused before the gpu finished it")
	ErrInvalidBudget        = errors.New("in-flight budget must be at least one")
	ErrNoActiveFrame        = errors.New("no frame is being recorded")
	ErrTextureDataSize      = errors.New("pixel data does not match the texture size")
)
