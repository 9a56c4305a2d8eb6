package headless

import (
	"sync/atomic"

	"github.com/navkagleb/benzin-sub002/engine/renderer/gpu"
)

// Presenter stands in for a swap chain. It rotates through its back buffers
// on every Present.
type Presenter struct {
	backBuffers []*gpu.Resource
	current     atomic.Uint32
	presents    atomic.Uint64
}

// NewPresenter shares backBuffers with the caller, which keeps its own
// references.
func NewPresenter(backBuffers ...*gpu.Resource) *Presenter {
	p := &Presenter{}
	for _, b := range backBuffers {
		p.backBuffers = append(p.backBuffers, b.Retain())
	}
	return p
}

func (p *Presenter) Present() error {
	p.presents.Add(1)
	if n := uint32(len(p.backBuffers)); n > 0 {
		p.current.Store((p.current.Load() + 1) % n)
	}
	return nil
}

// BackBuffer is the buffer the next frame renders into, nil without back
// buffers.
func (p *Presenter) BackBuffer() *gpu.Resource {
	if len(p.backBuffers) == 0 {
		return nil
	}
	return p.backBuffers[p.current.Load()]
}

func (p *Presenter) Presents() uint64 {
	return p.presents.Load()
}

// Release drops the presenter's references to the back buffers.
func (p *Presenter) Release() {
	for _, b := range p.backBuffers {
		b.Release()
	}
	p.backBuffers = nil
}
