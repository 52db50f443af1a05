package matrix

const rawWords = (MaxKeys + 63) / 64

// RawState is one bit per position, indexed by Position.Index.
type RawState [rawWords]uint64

// Set marks index as pressed.
func (r *RawState) Set(index int) {
	r[index>>6] |= 1 << (uint(index) & 63)
}

// Clear marks index as released.
func (r *RawState) Clear(index int) {
	r[index>>6] &^= 1 << (uint(index) & 63)
}

// Get reports whether index is pressed.
func (r *RawState) Get(index int) bool {
	return r[index>>6]&(1<<(uint(index)&63)) != 0
}

// Any reports whether any position is pressed.
func (r *RawState) Any() bool {
	for _, w := range r {
		if w != 0 {
			return true
		}
	}
	return false
}

// Equal reports whether both states hold the same positions.
func (r *RawState) Equal(o *RawState) bool {
	return *r == *o
}
