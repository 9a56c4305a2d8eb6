package containers

// BitSet is a fixed-size set of small non-negative integers.
type BitSet struct {
	words []uint64
	n     uint32
}

func NewBitSet(n uint32) *BitSet {
	return &BitSet{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

func (b *BitSet) Has(i uint32) bool {
	if i >= b.n {
		return false
	}
	return b.words[i/64]&(1<<(i%64)) != 0
}

// Set adds i to the set and reports whether it was absent.
func (b *BitSet) Set(i uint32) bool {
	if i >= b.n {
		panic("containers.BitSet: index out of range")
	}
	w, m := &b.words[i/64], uint64(1)<<(i%64)
	if *w&m != 0 {
		return false
	}
	*w |= m
	return true
}

// Unset removes i from the set and reports whether it was present.
func (b *BitSet) Unset(i uint32) bool {
	if i >= b.n {
		return false
	}
	w, m := &b.words[i/64], uint64(1)<<(i%64)
	if *w&m == 0 {
		return false
	}
	*w &^= m
	return true
}
