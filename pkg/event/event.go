// Package event carries debounced key transitions from the scan interrupt to
// the layout resolver.
package event

import (
	"errors"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/irq"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// Capacity is the number of events the queue holds.
const Capacity = 32

var ErrQueueFull = errors.New("event queue full")

// Edge is the direction of a transition.
type Edge uint8

const (
	Press Edge = iota
	Release
)

func (e Edge) String() string {
	if e == Press {
		return "press"
	}
	return "release"
}

// KeyEvent is one confirmed transition. Time is in milliseconds.
type KeyEvent struct {
	Pos  matrix.Position
	Edge Edge
	Time uint32
}

// Queue is a bounded single-producer single-consumer FIFO. Push is called
// from the scan interrupt, Pop from the resolver; neither ever blocks.
type Queue struct {
	buf       [Capacity]KeyEvent
	head      uint8 // next read
	count     uint8
	overflows uint32
}

// Push appends ev. When the queue is full ev is dropped, the overflow counter
// is incremented and ErrQueueFull is returned.
func (q *Queue) Push(ev KeyEvent) error {
	defer irq.Restore(irq.Disable())

	if q.count == Capacity {
		q.overflows++
		return ErrQueueFull
	}
	q.buf[(int(q.head)+int(q.count))%Capacity] = ev
	q.count++
	return nil
}

// Pop removes the oldest event. ok is false when the queue is empty.
func (q *Queue) Pop() (ev KeyEvent, ok bool) {
	defer irq.Restore(irq.Disable())

	if q.count == 0 {
		return KeyEvent{}, false
	}
	ev = q.buf[q.head]
	q.head = uint8((int(q.head) + 1) % Capacity)
	q.count--
	return ev, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	defer irq.Restore(irq.Disable())
	return int(q.count)
}

// Overflows returns the number of events dropped because the queue was full.
func (q *Queue) Overflows() uint32 {
	defer irq.Restore(irq.Disable())
	return q.overflows
}
