package headless

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// Depth of the submission channel. The frame pacer keeps the real depth far
// below this.
const queueDepth = 1024

var ErrQueueClosed = errors.New("headless queue is shut down")

type job struct {
	lists  []*recording
	fence  *Fence
	signal uint64
}

// Queue executes submitted work in order on a single worker goroutine.
type Queue struct {
	device *Device
	jobs   chan job
	wg     sync.WaitGroup
	idle   sync.WaitGroup

	// sendMu orders senders and guards closed. It is never taken by the
	// worker, so a sender blocked on a full channel cannot stall it.
	sendMu sync.Mutex
	closed bool

	mu   sync.Mutex
	cond *sync.Cond
	held bool

	executed atomic.Uint64
}

func newQueue(d *Device) *Queue {
	q := &Queue{
		device: d,
		jobs:   make(chan job, queueDepth),
	}
	q.cond = sync.NewCond(&q.mu)
	q.start()
	return q
}

func (q *Queue) start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for j := range q.jobs {
			q.waitUnheld()
			if !q.device.IsLost() {
				q.run(j)
			}
			q.idle.Done()
		}
	}()
}

func (q *Queue) run(j job) {
	for _, rec := range j.lists {
		for _, cmd := range rec.commands {
			cmd()
		}
		rec.list.pending.Add(-1)
		q.executed.Add(1)
	}
	if j.fence != nil {
		j.fence.Signal(j.signal)
	}
}

func (q *Queue) waitUnheld() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.held && !q.device.IsLost() {
		q.cond.Wait()
	}
}

func (q *Queue) enqueue(j job) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.idle.Add(1)
	q.jobs <- j
	return nil
}

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	if err := q.device.checkLost(); err != nil {
		return err
	}
	recs := make([]*recording, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("headless queue: foreign command list %T", l)
		}
		if !cl.closed {
			return fmt.Errorf("headless queue: %s submitted while recording", cl.name)
		}
		recs = append(recs, cl.snapshot())
	}
	for _, rec := range recs {
		rec.list.pending.Add(1)
	}
	return q.enqueue(job{lists: recs})
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	if err := q.device.checkLost(); err != nil {
		return err
	}
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("headless queue: foreign fence %T", fence)
	}
	return q.enqueue(job{fence: f, signal: value})
}

// Hold pauses the worker before its next job. Submissions keep queuing up,
// which lets tests stall the GPU timeline at a known point.
func (q *Queue) Hold() {
	q.mu.Lock()
	q.held = true
	q.mu.Unlock()
}

func (q *Queue) Resume() {
	q.mu.Lock()
	q.held = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// WaitIdle blocks until every submitted job ran. Never call it while held.
func (q *Queue) WaitIdle() {
	q.idle.Wait()
}

// Executed is the number of command lists the worker ran.
func (q *Queue) Executed() uint64 {
	return q.executed.Load()
}

func (q *Queue) shutdown() {
	q.Resume()
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.sendMu.Unlock()
	q.wg.Wait()
	core.LogDebug("headless queue drained after %d command lists", q.Executed())
}
