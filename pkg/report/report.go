// Package report builds 8-byte boot-protocol keyboard reports from the set
// of active keys.
package report

import (
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
)

const (
	Size     = 8
	MaxCodes = 6
)

// Report is the boot keyboard report: modifier byte, reserved byte and six
// keycode slots, unused slots zero.
type Report [Size]byte

// Modifiers returns the modifier byte.
func (r Report) Modifiers() keys.Modifier {
	return keys.Modifier(r[0])
}

// Codes returns the keycode slots.
func (r *Report) Codes() []byte {
	return r[2:]
}

// Contains reports whether code occupies a keycode slot.
func (r Report) Contains(code keys.Code) bool {
	for _, c := range r[2:] {
		if c == byte(code) {
			return code != keys.No
		}
	}
	return false
}

// Builder turns ActiveKeys into reports. When more than six keycodes are
// held the ones at the highest position indices are left out and counted.
type Builder struct {
	dropped uint32
}

// Build returns the report for active. It depends only on active, so the
// same set always produces the same bytes.
func (b *Builder) Build(active *layout.ActiveKeys) Report {
	var r Report
	r[0] = byte(active.Modifiers())

	n := 0
	over := false
	active.Codes(func(_ int, code keys.Code) {
		for _, c := range r[2 : 2+n] {
			if c == byte(code) {
				return
			}
		}
		if n == MaxCodes {
			over = true
			return
		}
		r[2+n] = byte(code)
		n++
	})
	if over {
		b.dropped++
	}
	return r
}

// Dropped counts builds that had to leave keycodes out.
func (b *Builder) Dropped() uint32 {
	return b.dropped
}
