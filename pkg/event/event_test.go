package event

import (
	"sync"
	"testing"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

func TestQueueFIFO(t *testing.T) {
	var q Queue

	for i := 0; i < 5; i++ {
		ev := KeyEvent{Pos: matrix.Position{Row: uint8(i)}, Edge: Press, Time: uint32(i)}
		if err := q.Push(ev); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Expected 5 pending events, got %d", q.Len())
	}

	for i := 0; i < 5; i++ {
		ev, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue unexpectedly empty", i)
		}
		if ev.Time != uint32(i) {
			t.Errorf("Pop %d: expected time %d, got %d", i, i, ev.Time)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueueOverflowDropsNewest(t *testing.T) {
	var q Queue

	for i := 0; i < Capacity; i++ {
		if err := q.Push(KeyEvent{Time: uint32(i)}); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}

	if err := q.Push(KeyEvent{Time: 999}); err != ErrQueueFull {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if err := q.Push(KeyEvent{Time: 1000}); err != ErrQueueFull {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if q.Overflows() != 2 {
		t.Errorf("Expected 2 overflows, got %d", q.Overflows())
	}

	// The oldest events survive, the rejected ones never appear.
	for i := 0; i < Capacity; i++ {
		ev, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue unexpectedly empty", i)
		}
		if ev.Time != uint32(i) {
			t.Errorf("Pop %d: expected time %d, got %d", i, i, ev.Time)
		}
	}
}

func TestQueueWrapAround(t *testing.T) {
	var q Queue
	next := uint32(0)
	expected := uint32(0)

	for round := 0; round < 5; round++ {
		for i := 0; i < Capacity-3; i++ {
			q.Push(KeyEvent{Time: next})
			next++
		}
		for i := 0; i < Capacity-3; i++ {
			ev, ok := q.Pop()
			if !ok || ev.Time != expected {
				t.Fatalf("Round %d: expected time %d, got %d (ok=%v)", round, expected, ev.Time, ok)
			}
			expected++
		}
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	var q Queue
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if q.Push(KeyEvent{Time: uint32(i)}) == nil {
				i++
			}
		}
	}()

	expected := uint32(0)
	for expected < total {
		ev, ok := q.Pop()
		if !ok {
			continue
		}
		if ev.Time != expected {
			t.Fatalf("Expected time %d, got %d", expected, ev.Time)
		}
		expected++
	}
	wg.Wait()
}

func BenchmarkQueuePushPop(b *testing.B) {
	var q Queue
	ev := KeyEvent{Edge: Press}
	for i := 0; i < b.N; i++ {
		q.Push(ev)
		q.Pop()
	}
}
