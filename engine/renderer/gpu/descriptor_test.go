package gpu

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/navkagleb/benzin-sub002/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, caps DescriptorCapacities, opts ...DescriptorAllocatorOption) (*DescriptorAllocator, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	da, err := NewDescriptorAllocator(dev, caps, opts...)
	require.NoError(t, err)
	return da, dev
}

func TestDescriptorAllocateIsUnique(t *testing.T) {
	da, _ := newTestAllocator(t, capacities(0, 0, 64, 0))

	seen := map[uint32]bool{}
	handles := map[uint64]bool{}
	for i := 0; i < 64; i++ {
		s := da.Allocate(DescriptorKindCBVSRVUAV)
		assert.False(t, seen[s.HeapIndex], "index %d handed out twice", s.HeapIndex)
		assert.False(t, handles[s.CPUHandle])
		seen[s.HeapIndex] = true
		handles[s.CPUHandle] = true
	}
	assert.Equal(t, uint32(64), da.AllocatedCount(DescriptorKindCBVSRVUAV))
}

func TestDescriptorHandlesAreBasePlusIndexTimesStride(t *testing.T) {
	da, dev := newTestAllocator(t, capacities(4, 0, 4, 0))

	var rtvHeap, cbvHeap *fakeHeap
	for _, h := range dev.heaps {
		switch h.cpu {
		case 0x1000 * uint64(DescriptorKindRTV+1):
			rtvHeap = h
		case 0x1000 * uint64(DescriptorKindCBVSRVUAV+1):
			cbvHeap = h
		}
	}
	require.NotNil(t, rtvHeap)
	require.NotNil(t, cbvHeap)

	da.Allocate(DescriptorKindRTV)
	rtv := da.Allocate(DescriptorKindRTV)
	assert.Equal(t, uint32(1), rtv.HeapIndex)
	assert.Equal(t, rtvHeap.cpu+rtvHeap.stride, rtv.CPUHandle)
	assert.False(t, rtv.HasGPUHandle)
	assert.Zero(t, rtv.GPUHandle)

	da.Allocate(DescriptorKindCBVSRVUAV)
	da.Allocate(DescriptorKindCBVSRVUAV)
	cbv := da.Allocate(DescriptorKindCBVSRVUAV)
	assert.Equal(t, uint32(2), cbv.HeapIndex)
	assert.Equal(t, cbvHeap.cpu+2*cbvHeap.stride, cbv.CPUHandle)
	assert.True(t, cbv.HasGPUHandle)
	assert.Equal(t, cbvHeap.gpu+2*cbvHeap.stride, cbv.GPUHandle)
}

func TestDescriptorExhaustReleaseReuse(t *testing.T) {
	da, _ := newTestAllocator(t, capacities(0, 0, 4, 0))

	var slots []DescriptorSlot
	for i := 0; i < 4; i++ {
		s := da.Allocate(DescriptorKindCBVSRVUAV)
		assert.Equal(t, uint32(i), s.HeapIndex)
		slots = append(slots, s)
	}
	requireFatal(t, core.ErrDescriptorHeapFull, func() {
		da.Allocate(DescriptorKindCBVSRVUAV)
	})

	da.Deallocate(DescriptorKindCBVSRVUAV, slots[1])
	assert.Equal(t, uint32(3), da.AllocatedCount(DescriptorKindCBVSRVUAV))

	again := da.Allocate(DescriptorKindCBVSRVUAV)
	assert.Equal(t, uint32(1), again.HeapIndex)
	assert.Equal(t, slots[1].CPUHandle, again.CPUHandle)
	assert.Equal(t, uint32(4), da.AllocatedCount(DescriptorKindCBVSRVUAV))
}

func TestDescriptorRandomSequencesStayUnique(t *testing.T) {
	const capacity = 16
	for _, seed := range []uint64{1, 7, 42, 1234} {
		da, _ := newTestAllocator(t, capacities(0, 0, capacity, 0))
		rng := rand.New(rand.NewPCG(seed, 0))

		live := map[uint32]DescriptorSlot{}
		var order []uint32
		for step := 0; step < 4000; step++ {
			alloc := len(live) == 0 || (len(live) < capacity && rng.IntN(2) == 0)
			if alloc {
				s := da.Allocate(DescriptorKindCBVSRVUAV)
				_, dup := live[s.HeapIndex]
				require.False(t, dup, "seed %d step %d: index %d handed out twice", seed, step, s.HeapIndex)
				for _, other := range live {
					require.NotEqual(t, other.CPUHandle, s.CPUHandle, "seed %d step %d", seed, step)
				}
				live[s.HeapIndex] = s
				order = append(order, s.HeapIndex)
			} else {
				i := rng.IntN(len(order))
				index := order[i]
				order = append(order[:i], order[i+1:]...)
				da.Deallocate(DescriptorKindCBVSRVUAV, live[index])
				delete(live, index)
			}
			require.Equal(t, uint32(len(live)), da.AllocatedCount(DescriptorKindCBVSRVUAV), "seed %d step %d", seed, step)
			require.LessOrEqual(t, len(live), capacity)
		}
	}
}

func TestDescriptorFreeListIsOldestFirst(t *testing.T) {
	da, _ := newTestAllocator(t, capacities(0, 0, 8, 0))

	var slots []DescriptorSlot
	for i := 0; i < 5; i++ {
		slots = append(slots, da.Allocate(DescriptorKindCBVSRVUAV))
	}
	da.Deallocate(DescriptorKindCBVSRVUAV, slots[3])
	da.Deallocate(DescriptorKindCBVSRVUAV, slots[0])
	da.Deallocate(DescriptorKindCBVSRVUAV, slots[2])

	assert.Equal(t, uint32(3), da.Allocate(DescriptorKindCBVSRVUAV).HeapIndex)
	assert.Equal(t, uint32(0), da.Allocate(DescriptorKindCBVSRVUAV).HeapIndex)
	assert.Equal(t, uint32(2), da.Allocate(DescriptorKindCBVSRVUAV).HeapIndex)
	// Free list drained, the marker continues.
	assert.Equal(t, uint32(5), da.Allocate(DescriptorKindCBVSRVUAV).HeapIndex)
}

func TestDescriptorDoubleFree(t *testing.T) {
	da, _ := newTestAllocator(t, capacities(0, 4, 0, 0))

	s := da.Allocate(DescriptorKindDSV)
	da.Deallocate(DescriptorKindDSV, s)
	assert.False(t, da.Heap(DescriptorKindDSV).IsAllocated(s.HeapIndex))
	requireFatal(t, core.ErrDescriptorDoubleFree, func() {
		da.Deallocate(DescriptorKindDSV, s)
	})
}

func TestDescriptorForeignSlot(t *testing.T) {
	da, _ := newTestAllocator(t, capacities(4, 0, 4, 0))

	requireFatal(t, core.ErrDescriptorOutOfRange, func() {
		da.Deallocate(DescriptorKindRTV, DescriptorSlot{HeapIndex: 2})
	})

	cbv := da.Allocate(DescriptorKindCBVSRVUAV)
	da.Allocate(DescriptorKindRTV)
	requireFatal(t, core.ErrDescriptorOutOfRange, func() {
		da.Deallocate(DescriptorKindRTV, cbv)
	})
}

func TestDescriptorZeroCapacityHeap(t *testing.T) {
	da, dev := newTestAllocator(t, capacities(0, 0, 4, 0))

	assert.Len(t, dev.heaps, 1)
	assert.Equal(t, uint32(0), da.Capacity(DescriptorKindSampler))
	requireFatal(t, core.ErrDescriptorHeapFull, func() {
		da.Allocate(DescriptorKindSampler)
	})
}

func TestDescriptorDestroy(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		da, dev := newTestAllocator(t, capacities(2, 2, 2, 2))
		s := da.Allocate(DescriptorKindSampler)
		da.Deallocate(DescriptorKindSampler, s)
		da.Destroy()
		for _, h := range dev.heaps {
			assert.True(t, h.released)
		}
	})

	t.Run("leak", func(t *testing.T) {
		da, _ := newTestAllocator(t, capacities(2, 2, 2, 2))
		da.Allocate(DescriptorKindRTV)
		requireFatal(t, core.ErrDescriptorLeak, da.Destroy)
	})
}

func TestDescriptorLockedConcurrentUse(t *testing.T) {
	const (
		workers = 8
		perWork = 64
	)
	da, _ := newTestAllocator(t, capacities(0, 0, workers*perWork, 0), WithLocking(), WithAllocatorName("locked"))

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all = map[uint32]bool{}
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]DescriptorSlot, 0, perWork)
			for i := 0; i < perWork; i++ {
				local = append(local, da.Allocate(DescriptorKindCBVSRVUAV))
			}
			// Churn half of them.
			for _, s := range local[:perWork/2] {
				da.Deallocate(DescriptorKindCBVSRVUAV, s)
			}
			for i := 0; i < perWork/2; i++ {
				local[i] = da.Allocate(DescriptorKindCBVSRVUAV)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, s := range local {
				all[s.HeapIndex] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, all, workers*perWork)
	assert.Equal(t, uint32(workers*perWork), da.AllocatedCount(DescriptorKindCBVSRVUAV))
}
