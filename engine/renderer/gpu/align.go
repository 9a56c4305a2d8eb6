package gpu

import (
	"golang.org/x/exp/constraints"

	"github.com/navkagleb/benzin-sub002/engine/core"
)

func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignUp rounds v up to the next multiple of alignment, which has to be a
// power of two. An alignment of zero leaves v unchanged.
func AlignUp[T constraints.Unsigned](v, alignment T) T {
	if alignment == 0 {
		return v
	}
	if !IsPowerOfTwo(alignment) {
		core.Fatal(core.ErrBadAlignment, "alignment %d", alignment)
	}
	return (v + alignment - 1) &^ (alignment - 1)
}
