package debounce

import (
	"testing"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/event"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

func state(indices ...int) matrix.RawState {
	var r matrix.RawState
	for _, i := range indices {
		r.Set(i)
	}
	return r
}

func TestThresholdRequired(t *testing.T) {
	if _, err := New(4, 4, 0); err != ErrThreshold {
		t.Errorf("Expected ErrThreshold, got %v", err)
	}
	if _, err := New(0, 4, 5); err != matrix.ErrDimensions {
		t.Errorf("Expected ErrDimensions, got %v", err)
	}
}

func TestPressAfterThreshold(t *testing.T) {
	d, _ := New(4, 4, 3)
	pressed := state(5)

	for tick := uint32(1); tick <= 2; tick++ {
		if evs := d.Update(pressed, tick); len(evs) != 0 {
			t.Fatalf("Tick %d: expected no events, got %v", tick, evs)
		}
	}

	evs := d.Update(pressed, 3)
	if len(evs) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Edge != event.Press || ev.Pos != (matrix.Position{Row: 1, Col: 1}) || ev.Time != 3 {
		t.Errorf("Unexpected event %+v", ev)
	}

	// Stable input produces nothing further.
	for tick := uint32(4); tick < 10; tick++ {
		if evs := d.Update(pressed, tick); len(evs) != 0 {
			t.Fatalf("Tick %d: expected no events, got %v", tick, evs)
		}
	}

	// Release needs the same number of samples.
	empty := state()
	d.Update(empty, 10)
	d.Update(empty, 11)
	evs = d.Update(empty, 12)
	if len(evs) != 1 || evs[0].Edge != event.Release {
		t.Fatalf("Expected one release event, got %v", evs)
	}
}

func TestSingleNoisySampleIgnored(t *testing.T) {
	d, _ := New(4, 4, 4)

	sequences := [][]matrix.RawState{
		{state(0), state(), state(), state(), state(), state()},
		{state(0), state(0), state(0), state(), state(0), state(0), state(0), state()},
		{state(), state(0), state(), state(0), state(), state(0)},
	}

	for i, seq := range sequences {
		for tick, raw := range seq {
			if evs := d.Update(raw, uint32(tick)); len(evs) != 0 {
				t.Errorf("Sequence %d tick %d: expected no events, got %v", i, tick, evs)
			}
		}
	}
	if d.Bounces() == 0 {
		t.Error("Expected rejected bounces to be counted")
	}
}

func TestBounceThenSettle(t *testing.T) {
	d, _ := New(4, 4, 3)
	seq := []matrix.RawState{state(2), state(), state(2), state(2), state(), state(2), state(2), state(2)}

	events := 0
	firedAt := -1
	for tick, raw := range seq {
		evs := d.Update(raw, uint32(tick))
		events += len(evs)
		if len(evs) > 0 && firedAt < 0 {
			firedAt = tick
		}
	}
	if events != 1 {
		t.Errorf("Expected exactly 1 event, got %d", events)
	}
	if firedAt != 7 {
		t.Errorf("Expected the press at tick 7, got %d", firedAt)
	}
}

func TestSimultaneousEventsAscending(t *testing.T) {
	d, _ := New(4, 4, 1)
	evs := d.Update(state(15, 0, 7, 3), 1)

	if len(evs) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(evs))
	}
	expected := []int{0, 3, 7, 15}
	for i, ev := range evs {
		if idx := ev.Pos.Index(4); idx != expected[i] {
			t.Errorf("Event %d: expected index %d, got %d", i, expected[i], idx)
		}
	}
}

// Property: for every random sequence, an event is only emitted after
// Threshold consecutive samples that disagree with the previous stable state.
func TestEventsOnlyAfterConsecutiveSamples(t *testing.T) {
	const threshold = 3
	d, _ := New(1, 1, threshold)

	seed := uint32(12345)
	stable := false
	run := 0
	for tick := 0; tick < 5000; tick++ {
		seed = seed*1664525 + 1013904223
		pressed := seed>>28 >= 6

		var raw matrix.RawState
		if pressed {
			raw.Set(0)
		}

		if pressed != stable {
			run++
		} else {
			run = 0
		}

		evs := d.Update(raw, uint32(tick))
		if len(evs) > 0 {
			if run != threshold {
				t.Fatalf("Tick %d: event after %d disagreeing samples", tick, run)
			}
			stable = pressed
			run = 0
		} else if run >= threshold {
			t.Fatalf("Tick %d: missing event after %d disagreeing samples", tick, run)
		}
	}
}

func BenchmarkUpdate(b *testing.B) {
	d, _ := New(matrix.MaxRows, matrix.MaxCols, DefaultThreshold)
	raw := state(1, 50, 100)
	for i := 0; i < b.N; i++ {
		d.Update(raw, uint32(i))
	}
}
