// Package debounce turns raw matrix samples into confirmed key transitions.
//
// A position flips only after Threshold consecutive samples disagree with its
// confirmed state; any agreeing sample resets the count. Input lag is bounded
// by Threshold scan periods.
package debounce

import (
	"errors"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/event"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// DefaultThreshold matches a 5 ms window at a 1 kHz scan rate.
const DefaultThreshold = 5

var ErrThreshold = errors.New("debounce threshold must be at least 1")

type cell struct {
	count uint8
}

// Debouncer owns one counter per position.
type Debouncer struct {
	threshold uint8
	keys      int
	cols      int
	cells     [matrix.MaxKeys]cell
	stable    matrix.RawState
	out       [matrix.MaxKeys]event.KeyEvent
	bounces   uint32
}

// New creates a debouncer for a rows×cols matrix.
func New(rows, cols int, threshold uint8) (*Debouncer, error) {
	if threshold == 0 {
		return nil, ErrThreshold
	}
	if rows <= 0 || cols <= 0 || rows > matrix.MaxRows || cols > matrix.MaxCols {
		return nil, matrix.ErrDimensions
	}
	return &Debouncer{
		threshold: threshold,
		keys:      rows * cols,
		cols:      cols,
	}, nil
}

// Update feeds one raw sample. The returned events are in ascending position
// index and stay valid until the next call.
func (d *Debouncer) Update(raw matrix.RawState, now uint32) []event.KeyEvent {
	n := 0
	for idx := 0; idx < d.keys; idx++ {
		c := &d.cells[idx]
		pressed := raw.Get(idx)
		if pressed == d.stable.Get(idx) {
			if c.count != 0 {
				d.bounces++
				c.count = 0
			}
			continue
		}

		c.count++
		if c.count < d.threshold {
			continue
		}
		c.count = 0

		edge := event.Release
		if pressed {
			d.stable.Set(idx)
			edge = event.Press
		} else {
			d.stable.Clear(idx)
		}
		d.out[n] = event.KeyEvent{
			Pos:  matrix.PositionAt(idx, d.cols),
			Edge: edge,
			Time: now,
		}
		n++
	}
	return d.out[:n]
}

// State returns the confirmed logical state.
func (d *Debouncer) State() matrix.RawState {
	return d.stable
}

// Bounces returns how many partial transitions were rejected.
func (d *Debouncer) Bounces() uint32 {
	return d.bounces
}
