package gpu

import "github.com/navkagleb/benzin-sub002/engine/core"

// ResourceStateTracker remembers the last recorded state of one resource.
// The state is authoritative as soon as the barrier is recorded: command
// lists execute in order on a single queue and a resource is only ever
// recorded from one thread.
type ResourceStateTracker struct {
	current ResourceState
	// Upload and readback resources never leave their initial state.
	fixed bool
}

func NewResourceStateTracker(initial ResourceState, fixed bool) ResourceStateTracker {
	return ResourceStateTracker{current: initial, fixed: fixed}
}

func (t *ResourceStateTracker) State() ResourceState {
	return t.current
}

// SetState records a whole-resource barrier for r into rec when newState
// differs from the current state, then adopts newState. Requesting the
// current state records nothing.
func (t *ResourceStateTracker) SetState(rec BarrierRecorder, r *Resource, newState ResourceState) bool {
	if t.current == newState {
		return false
	}
	if t.fixed {
		core.Fatal(core.ErrImmutableState, "%q cannot move from %s to %s", r.Name(), t.current, newState)
	}
	rec.ResourceBarrier(Barrier{Resource: r, Before: t.current, After: newState})
	t.current = newState
	return true
}

// BarrierBatch collects barriers and hands them to a recorder in one call.
// It can be passed anywhere a BarrierRecorder is expected.
type BarrierBatch struct {
	barriers []Barrier
}

func (b *BarrierBatch) ResourceBarrier(barriers ...Barrier) {
	b.barriers = append(b.barriers, barriers...)
}

func (b *BarrierBatch) Len() int {
	return len(b.barriers)
}

// Flush records the pending barriers into rec and empties the batch.
func (b *BarrierBatch) Flush(rec BarrierRecorder) {
	if len(b.barriers) == 0 {
		return
	}
	rec.ResourceBarrier(b.barriers...)
	b.barriers = b.barriers[:0]
}
