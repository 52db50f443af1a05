package layout

import (
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// ActiveKey is what one position currently contributes to the report.
type ActiveKey struct {
	Code keys.Code
	Mods keys.Modifier
}

// ActiveKeys is the set of resolved keycodes and modifiers, one slot per
// position so iteration order is position order.
type ActiveKeys struct {
	slots [matrix.MaxKeys]ActiveKey
}

// Apply folds a key delta into the set and reports whether it changed.
// Layer and custom deltas never change it.
func (a *ActiveKeys) Apply(d Delta) bool {
	slot := &a.slots[d.Index]
	switch d.Kind {
	case KeyPress:
		next := ActiveKey{Code: d.Code, Mods: d.Mods}
		if *slot == next {
			return false
		}
		*slot = next
		return true
	case KeyRelease:
		if *slot == (ActiveKey{}) {
			return false
		}
		*slot = ActiveKey{}
		return true
	}
	return false
}

// At returns the contribution of the position at index.
func (a *ActiveKeys) At(index int) ActiveKey {
	return a.slots[index]
}

// Modifiers returns the combined modifier byte.
func (a *ActiveKeys) Modifiers() keys.Modifier {
	var m keys.Modifier
	for _, s := range a.slots {
		m |= s.Mods | s.Code.Modifier()
	}
	return m
}

// Empty reports whether nothing is held.
func (a *ActiveKeys) Empty() bool {
	for _, s := range a.slots {
		if s != (ActiveKey{}) {
			return false
		}
	}
	return true
}

// Reset releases everything.
func (a *ActiveKeys) Reset() {
	a.slots = [matrix.MaxKeys]ActiveKey{}
}

// Codes calls fn for every held non-modifier keycode in ascending position
// index order.
func (a *ActiveKeys) Codes(fn func(index int, code keys.Code)) {
	for i, s := range a.slots {
		if s.Code == keys.No || s.Code.IsModifier() {
			continue
		}
		fn(i, s.Code)
	}
}
