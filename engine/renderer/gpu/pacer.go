package gpu

import (
	"fmt"
	"time"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

type FrameState uint8

const (
	FrameStateIdle FrameState = iota
	FrameStateSubmitted
	FrameStateSignaled
)

func (s FrameState) String() string {
	switch s {
	case FrameStateSubmitted:
		return "Submitted"
	case FrameStateSignaled:
		return "Signaled"
	default:
		return "Idle"
	}
}

type PacerStats struct {
	// Number of times WaitIfNecessary had to block.
	Waits uint64
	// Total time spent blocked in WaitIfNecessary.
	Blocked time.Duration
	// Number of FlushAll calls.
	Flushes uint64
}

// FramePacer bounds how many frames the CPU may submit before the GPU has
// finished them. Frame N signals the fence with value N once its work is
// done, so the fence value is the number of frames the GPU completed.
type FramePacer struct {
	queue     Queue
	fence     Fence
	presenter Presenter

	budget        uint64
	cpuFrameIndex uint64
	gpuFrameIndex uint64
	state         FrameState

	stats PacerStats
}

type FramePacerOption func(*FramePacer)

// WithPresenter makes EndFrame present before signaling the fence.
func WithPresenter(p Presenter) FramePacerOption {
	return func(fp *FramePacer) {
		fp.presenter = p
	}
}

func NewFramePacer(queue Queue, fence Fence, inFlightBudget uint32, opts ...FramePacerOption) *FramePacer {
	core.Assert(inFlightBudget > 0, core.ErrInvalidBudget, "got %d", inFlightBudget)
	fp := &FramePacer{
		queue:  queue,
		fence:  fence,
		budget: uint64(inFlightBudget),
	}
	for _, opt := range opts {
		opt(fp)
	}
	return fp
}

func (fp *FramePacer) Budget() uint64        { return fp.budget }
func (fp *FramePacer) CPUFrameIndex() uint64 { return fp.cpuFrameIndex }
func (fp *FramePacer) GPUFrameIndex() uint64 { return fp.gpuFrameIndex }
func (fp *FramePacer) State() FrameState     { return fp.state }
func (fp *FramePacer) Stats() PacerStats     { return fp.stats }

// FrameSlot is the per-frame resource slot the next frame records into.
func (fp *FramePacer) FrameSlot() uint32 {
	return uint32(fp.cpuFrameIndex % fp.budget)
}

// InFlight is the number of submitted frames the GPU has not finished, as of
// the last fence poll.
func (fp *FramePacer) InFlight() uint64 {
	if fp.gpuFrameIndex >= fp.cpuFrameIndex {
		return 0
	}
	return fp.cpuFrameIndex - fp.gpuFrameIndex
}

// BeginFrame marks the start of recording. It never blocks.
func (fp *FramePacer) BeginFrame() {
	fp.state = FrameStateIdle
}

// EndFrame submits the recorded command lists, presents if a presenter is
// set, and enqueues the fence signal for the new frame index.
func (fp *FramePacer) EndFrame(lists ...CommandList) error {
	if len(lists) > 0 {
		if err := fp.queue.Submit(lists...); err != nil {
			return fmt.Errorf("frame pacer: submit frame %d: %w", fp.cpuFrameIndex+1, err)
		}
	}
	fp.state = FrameStateSubmitted

	if fp.presenter != nil {
		if err := fp.presenter.Present(); err != nil {
			return fmt.Errorf("frame pacer: present frame %d: %w", fp.cpuFrameIndex+1, err)
		}
	}

	fp.cpuFrameIndex++
	if err := fp.queue.Signal(fp.fence, fp.cpuFrameIndex); err != nil {
		return fmt.Errorf("frame pacer: signal frame %d: %w", fp.cpuFrameIndex, err)
	}
	fp.state = FrameStateSignaled
	return nil
}

func (fp *FramePacer) poll() error {
	v, err := fp.fence.CompletedValue()
	if err != nil {
		return fmt.Errorf("frame pacer: poll fence: %w", err)
	}
	fp.gpuFrameIndex = v
	return nil
}

// WaitIfNecessary blocks until at most budget-1 frames are in flight, which
// makes the slot of the next frame safe to reuse. It is the only blocking
// call of the steady-state loop.
func (fp *FramePacer) WaitIfNecessary() error {
	if err := fp.poll(); err != nil {
		return err
	}
	if fp.InFlight() > fp.budget-1 {
		target := fp.cpuFrameIndex - fp.budget + 1
		start := time.Now()
		if err := fp.fence.Wait(target); err != nil {
			return fmt.Errorf("frame pacer: wait for frame %d: %w", target, err)
		}
		fp.stats.Waits++
		fp.stats.Blocked += time.Since(start)
		if err := fp.poll(); err != nil {
			return err
		}
	}
	fp.state = FrameStateIdle
	return nil
}

// IsComplete reports whether the GPU finished the frame with the given fence
// value.
func (fp *FramePacer) IsComplete(value uint64) (bool, error) {
	if value <= fp.gpuFrameIndex {
		return true, nil
	}
	if err := fp.poll(); err != nil {
		return false, err
	}
	return value <= fp.gpuFrameIndex, nil
}

// FlushAll waits until the GPU finished every submitted frame. Used on
// shutdown and resize, never in the steady-state loop.
func (fp *FramePacer) FlushAll() error {
	if fp.cpuFrameIndex > 0 {
		if err := fp.fence.Wait(fp.cpuFrameIndex); err != nil {
			return fmt.Errorf("frame pacer: flush to frame %d: %w", fp.cpuFrameIndex, err)
		}
	}
	fp.stats.Flushes++
	if err := fp.poll(); err != nil {
		return err
	}
	fp.state = FrameStateIdle
	return nil
}
