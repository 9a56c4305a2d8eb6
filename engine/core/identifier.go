package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Namer hands out unique debug names ("Buffer#3") for the objects created
// by one owner. Counters live on the instance, so two devices or two
// allocators never share a sequence and tests can run in isolation.
type Namer struct {
	id       uuid.UUID
	mu       sync.Mutex
	counters map[string]uint32
}

func NewNamer() *Namer {
	return &Namer{
		id:       uuid.New(),
		counters: make(map[string]uint32),
	}
}

// Short is the first block of the owner id, enough to tell instances apart in logs.
func (n *Namer) Short() string {
	return n.id.String()[:8]
}

func (n *Namer) Next(kind string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := n.counters[kind]
	n.counters[kind] = c + 1
	return fmt.Sprintf("%s#%d", kind, c)
}
