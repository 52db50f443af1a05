package layout

// MaxStack bounds the number of simultaneously active layers, base included.
const MaxStack = 16

const (
	ownerBase    int16 = -2
	ownerToggled int16 = -1
)

type stackEntry struct {
	layer uint8
	owner int16 // position index that pushed it, or ownerBase/ownerToggled
}

// LayerStack is the ordered set of active layers. Entry 0 is the base layer
// and is never removed. Entries above it are removed by value, so a
// momentary key can release its layer even when it is no longer on top.
type LayerStack struct {
	entries [MaxStack]stackEntry
	n       uint8
	drops   uint32
}

// Reset leaves only base on the stack.
func (s *LayerStack) Reset(base uint8) {
	s.entries[0] = stackEntry{layer: base, owner: ownerBase}
	s.n = 1
}

// Base returns the base layer.
func (s *LayerStack) Base() uint8 {
	return s.entries[0].layer
}

// SetBase replaces the base layer.
func (s *LayerStack) SetBase(layer uint8) {
	s.entries[0].layer = layer
}

// Len returns the number of entries, base included.
func (s *LayerStack) Len() int {
	return int(s.n)
}

// At returns the layer at depth i, 0 being the base.
func (s *LayerStack) At(i int) uint8 {
	return s.entries[i].layer
}

// Top returns the top-most layer.
func (s *LayerStack) Top() uint8 {
	return s.entries[s.n-1].layer
}

// Drops returns the number of pushes rejected because the stack was full.
func (s *LayerStack) Drops() uint32 {
	return s.drops
}

// Push activates layer on behalf of the key at position index owner.
func (s *LayerStack) Push(layer uint8, owner int) bool {
	return s.push(stackEntry{layer: layer, owner: int16(owner)})
}

// Remove deactivates the entry pushed by owner for layer. It reports false,
// and leaves the stack untouched, when owner never pushed that layer.
func (s *LayerStack) Remove(layer uint8, owner int) bool {
	return s.remove(stackEntry{layer: layer, owner: int16(owner)})
}

// Toggle flips the toggled membership of layer and reports whether the
// layer is now toggled on. ok is false when the stack was full.
func (s *LayerStack) Toggle(layer uint8) (on bool, ok bool) {
	e := stackEntry{layer: layer, owner: ownerToggled}
	if s.remove(e) {
		return false, true
	}
	return true, s.push(e)
}

// Active reports whether layer is anywhere on the stack.
func (s *LayerStack) Active(layer uint8) bool {
	for i := 0; i < int(s.n); i++ {
		if s.entries[i].layer == layer {
			return true
		}
	}
	return false
}

func (s *LayerStack) push(e stackEntry) bool {
	if s.n == MaxStack {
		s.drops++
		return false
	}
	s.entries[s.n] = e
	s.n++
	return true
}

func (s *LayerStack) remove(e stackEntry) bool {
	for i := int(s.n) - 1; i > 0; i-- {
		if s.entries[i] != e {
			continue
		}
		copy(s.entries[i:s.n-1], s.entries[i+1:s.n])
		s.n--
		return true
	}
	return false
}
