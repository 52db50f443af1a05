package layout

import (
	"errors"
	"testing"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/event"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

func pos(row, col uint8) matrix.Position {
	return matrix.Position{Row: row, Col: col}
}

func press(p matrix.Position, t uint32) event.KeyEvent {
	return event.KeyEvent{Pos: p, Edge: event.Press, Time: t}
}

func release(p matrix.Position, t uint32) event.KeyEvent {
	return event.KeyEvent{Pos: p, Edge: event.Release, Time: t}
}

// newTestKeymap builds a 4x4 keymap:
//
//	layer 0: (0,0)=A (0,1)=B (0,2)=hold-tap 0 (0,3)=hold-tap 1 (3,3)=MO(1) (3,2)=TG(2) (3,1)=MO(1)
//	layer 1: (0,0)=X, everything else transparent
//	layer 2: (0,1)=Y, (1,0)=DF(2), (3,2)=TG(2)
//
// hold-tap 0: tap Space, hold LShift, 200 ms. hold-tap 1: tap Escape, hold MO(1).
func newTestKeymap(t *testing.T) *Keymap {
	km := &Keymap{Rows: 4, Cols: 4, LayerCount: 3}
	ht0, err := km.AddHoldTap(HoldTap{Tap: Key(keys.Space), Hold: Key(keys.LShift), Timeout: 200})
	if err != nil {
		t.Fatalf("AddHoldTap failed: %v", err)
	}
	ht1, _ := km.AddHoldTap(HoldTap{Tap: Key(keys.Escape), Hold: Momentary(1), Timeout: 200})

	km.SetRow(0, 0, Key(keys.A), Key(keys.B), ht0, ht1)
	km.Set(0, pos(3, 3), Momentary(1))
	km.Set(0, pos(3, 2), Toggle(2))
	km.Set(0, pos(3, 1), Momentary(1))
	km.Set(1, pos(0, 0), Key(keys.X))
	km.Set(2, pos(0, 1), Key(keys.Y))
	km.Set(2, pos(1, 0), Default(2))
	km.Set(2, pos(3, 2), Toggle(2))
	return km
}

func newTestLayout(t *testing.T) (*Layout, *ActiveKeys) {
	l, err := New(newTestKeymap(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, &ActiveKeys{}
}

// collect resolves each event and copies the deltas out.
func collect(l *Layout, active *ActiveKeys, evs ...event.KeyEvent) []Delta {
	var all []Delta
	for _, ev := range evs {
		for _, d := range l.Resolve(ev) {
			active.Apply(d)
			all = append(all, d)
		}
	}
	return all
}

func expectKinds(t *testing.T, got []Delta, expected ...DeltaKind) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d deltas %v, got %d: %+v", len(expected), expected, len(got), got)
	}
	for i := range expected {
		if got[i].Kind != expected[i] {
			t.Errorf("Delta %d: expected %v, got %v", i, expected[i], got[i].Kind)
		}
	}
}

func TestMomentaryLayerScenario(t *testing.T) {
	l, active := newTestLayout(t)

	deltas := collect(l, active,
		press(pos(3, 3), 0),
		press(pos(0, 0), 10),
		release(pos(0, 0), 20),
		release(pos(3, 3), 30),
	)

	expectKinds(t, deltas, LayerPush, KeyPress, KeyRelease, LayerPop)
	if deltas[0].Layer != 1 || deltas[3].Layer != 1 {
		t.Errorf("Expected layer 1 push/pop, got %d/%d", deltas[0].Layer, deltas[3].Layer)
	}
	if deltas[1].Code != keys.X || deltas[2].Code != keys.X {
		t.Errorf("Expected (0,0) to resolve to X on layer 1, got %v/%v", deltas[1].Code, deltas[2].Code)
	}
	if l.Stack().Len() != 1 {
		t.Errorf("Expected only the base layer, got %d entries", l.Stack().Len())
	}
}

func TestTransparentFallsThrough(t *testing.T) {
	l, active := newTestLayout(t)

	deltas := collect(l, active, press(pos(3, 3), 0), press(pos(0, 1), 5))
	expectKinds(t, deltas, LayerPush, KeyPress)
	if deltas[1].Code != keys.B {
		t.Errorf("Expected B from the base layer, got %v", deltas[1].Code)
	}

	// Base is transparent at (2,2): nothing happens, release is consistent.
	deltas = collect(l, active, press(pos(2, 2), 6), release(pos(2, 2), 7))
	if len(deltas) != 0 {
		t.Errorf("Expected no deltas for an unmapped key, got %+v", deltas)
	}
	if l.Inconsistencies() != 0 {
		t.Errorf("Expected no inconsistencies, got %d", l.Inconsistencies())
	}
}

func TestKeycodeRoundTrip(t *testing.T) {
	l, active := newTestLayout(t)
	before := *active

	collect(l, active, press(pos(0, 0), 0))
	if active.At(0).Code != keys.A {
		t.Fatalf("Expected A active, got %v", active.At(0).Code)
	}
	collect(l, active, release(pos(0, 0), 1))

	if *active != before {
		t.Error("ActiveKeys did not return to its pre-press value")
	}
}

func TestReleaseUsesPressTimeAction(t *testing.T) {
	l, active := newTestLayout(t)

	// A is pressed on the base layer, then layer 1 (X at this position) is
	// activated. The release must still release A.
	deltas := collect(l, active,
		press(pos(0, 0), 0),
		press(pos(3, 3), 1),
		release(pos(0, 0), 2),
	)
	expectKinds(t, deltas, KeyPress, LayerPush, KeyRelease)
	if deltas[2].Code != keys.A {
		t.Errorf("Expected release of A, got %v", deltas[2].Code)
	}
}

func TestTapHoldTap(t *testing.T) {
	l, active := newTestLayout(t)

	if d := l.Resolve(press(pos(0, 2), 100)); len(d) != 0 {
		t.Fatalf("Expected no deltas on hold-tap press, got %+v", d)
	}
	if l.Pending() != 1 {
		t.Fatalf("Expected 1 pending hold-tap, got %d", l.Pending())
	}

	deltas := collect(l, active, release(pos(0, 2), 150))
	expectKinds(t, deltas, KeyPress, KeyRelease)
	for _, d := range deltas {
		if d.Code != keys.Space {
			t.Errorf("Expected only Space, got %v", d.Code)
		}
	}
	if !active.Empty() {
		t.Error("Expected nothing held after a tap")
	}
	if l.Pending() != 0 {
		t.Errorf("Expected no pending hold-tap, got %d", l.Pending())
	}
}

func TestTapHoldTimeout(t *testing.T) {
	l, active := newTestLayout(t)

	l.Resolve(press(pos(0, 2), 100))
	if d := l.Tick(299); len(d) != 0 {
		t.Fatalf("Expected nothing before the timeout, got %+v", d)
	}

	deltas := l.Tick(300)
	expectKinds(t, deltas, KeyPress)
	if deltas[0].Code != keys.LShift {
		t.Errorf("Expected LShift hold, got %v", deltas[0].Code)
	}
	active.Apply(deltas[0])
	if active.Modifiers() != keys.ModLShift {
		t.Errorf("Expected LShift modifier, got 0x%02X", uint8(active.Modifiers()))
	}

	// Held for a long time: nothing more until release.
	if d := l.Tick(5000); len(d) != 0 {
		t.Fatalf("Expected no deltas while held, got %+v", d)
	}

	deltas = collect(l, active, release(pos(0, 2), 5001))
	expectKinds(t, deltas, KeyRelease)
	if deltas[0].Code != keys.LShift {
		t.Errorf("Expected LShift release, got %v", deltas[0].Code)
	}
	if !active.Empty() {
		t.Error("Expected nothing held")
	}
}

func TestTapHoldTimeoutResolvedByLateEvent(t *testing.T) {
	l, active := newTestLayout(t)

	l.Resolve(press(pos(0, 2), 100))
	// No Tick ran; the release arrives after the deadline.
	deltas := collect(l, active, release(pos(0, 2), 400))
	expectKinds(t, deltas, KeyPress, KeyRelease)
	if deltas[0].Code != keys.LShift || deltas[1].Code != keys.LShift {
		t.Errorf("Expected hold press/release, got %+v", deltas)
	}
}

func TestTapHoldInterruptedByPress(t *testing.T) {
	l, active := newTestLayout(t)

	l.Resolve(press(pos(0, 2), 100))
	deltas := collect(l, active, press(pos(0, 0), 120))
	expectKinds(t, deltas, KeyPress, KeyPress)
	if deltas[0].Code != keys.LShift || deltas[0].Index != 2 {
		t.Errorf("Expected hold LShift first, got %+v", deltas[0])
	}
	if deltas[1].Code != keys.A {
		t.Errorf("Expected A second, got %+v", deltas[1])
	}

	deltas = collect(l, active, release(pos(0, 0), 130), release(pos(0, 2), 140))
	expectKinds(t, deltas, KeyRelease, KeyRelease)
	if !active.Empty() {
		t.Error("Expected nothing held")
	}
}

func TestTapHoldLayerHold(t *testing.T) {
	l, active := newTestLayout(t)

	// Hold-tap 1 holds layer 1; interrupting (0,0) must see layer 1.
	l.Resolve(press(pos(0, 3), 0))
	deltas := collect(l, active, press(pos(0, 0), 10))
	expectKinds(t, deltas, LayerPush, KeyPress)
	if deltas[1].Code != keys.X {
		t.Errorf("Expected X from layer 1, got %v", deltas[1].Code)
	}

	deltas = collect(l, active, release(pos(0, 3), 20), release(pos(0, 0), 30))
	expectKinds(t, deltas, LayerPop, KeyRelease)
}

func TestTapHoldSecondPressIgnored(t *testing.T) {
	l, _ := newTestLayout(t)

	l.Resolve(press(pos(0, 2), 0))
	if d := l.Resolve(press(pos(0, 2), 10)); len(d) != 0 {
		t.Errorf("Expected duplicate press to be ignored, got %+v", d)
	}
	if l.Ignored() != 1 {
		t.Errorf("Expected 1 ignored press, got %d", l.Ignored())
	}
	if l.Pending() != 1 {
		t.Errorf("Expected hold-tap still pending, got %d", l.Pending())
	}
}

func newIntervalLayout(t *testing.T, interval uint16) *Layout {
	km := &Keymap{Rows: 1, Cols: 1, LayerCount: 1}
	ht, _ := km.AddHoldTap(HoldTap{Tap: Key(keys.Space), Hold: Key(keys.LShift), Timeout: 200, TapHoldInterval: interval})
	km.SetRow(0, 0, ht)
	l, err := New(km)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestTapHoldQuickRepressRepeatsTap(t *testing.T) {
	l := newIntervalLayout(t, 200)
	active := &ActiveKeys{}

	collect(l, active, press(pos(0, 0), 0), release(pos(0, 0), 50))
	deltas := collect(l, active, press(pos(0, 0), 100))
	expectKinds(t, deltas, KeyPress)
	if deltas[0].Code != keys.Space {
		t.Errorf("Expected Space at once, got %v", deltas[0].Code)
	}
	if l.Pending() != 0 {
		t.Errorf("Expected no pending hold-tap, got %d", l.Pending())
	}

	for _, d := range l.Tick(400) {
		active.Apply(d)
	}
	if active.At(0).Code != keys.Space || active.Modifiers() != 0 {
		t.Errorf("Expected Space held without LShift, got 0x%02X mods 0x%02X",
			byte(active.At(0).Code), uint8(active.Modifiers()))
	}

	deltas = collect(l, active, release(pos(0, 0), 500))
	expectKinds(t, deltas, KeyRelease)
	if !active.Empty() {
		t.Error("Expected nothing held")
	}
}

func TestTapHoldRepressAfterInterval(t *testing.T) {
	for _, tc := range []struct {
		name     string
		interval uint16
		at       uint32
	}{
		{"expired", 200, 250},
		{"disabled", 0, 100},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newIntervalLayout(t, tc.interval)
			active := &ActiveKeys{}

			collect(l, active, press(pos(0, 0), 0), release(pos(0, 0), 50))
			if d := collect(l, active, press(pos(0, 0), tc.at)); len(d) != 0 {
				t.Fatalf("Expected the press to wait, got %+v", d)
			}
			deltas := l.Tick(tc.at + 200)
			expectKinds(t, deltas, KeyPress)
			if deltas[0].Code != keys.LShift {
				t.Errorf("Expected LShift hold, got %v", deltas[0].Code)
			}
		})
	}
}

func TestMultiplePendingResolveInPressOrder(t *testing.T) {
	l, _ := newTestLayout(t)

	l.Resolve(press(pos(0, 3), 0))
	l.Resolve(press(pos(0, 2), 5)) // interrupts (0,3)
	deltas := l.Tick(205)
	expectKinds(t, deltas, KeyPress)
	if deltas[0].Code != keys.LShift {
		t.Errorf("Expected LShift hold at timeout, got %v", deltas[0].Code)
	}
}

func TestReleaseWithoutPressIsDiscarded(t *testing.T) {
	l, _ := newTestLayout(t)

	if d := l.Resolve(release(pos(1, 1), 0)); len(d) != 0 {
		t.Errorf("Expected no deltas, got %+v", d)
	}
	if d := l.Resolve(release(pos(9, 9), 0)); len(d) != 0 {
		t.Errorf("Expected no deltas for out-of-range position, got %+v", d)
	}
	if l.Inconsistencies() != 2 {
		t.Errorf("Expected 2 inconsistencies, got %d", l.Inconsistencies())
	}
}

func TestMomentaryPopOutOfOrder(t *testing.T) {
	l, active := newTestLayout(t)

	// Two keys push layer 1, and a toggle pushes layer 2 on top.
	collect(l, active, press(pos(3, 3), 0), press(pos(3, 1), 1), press(pos(3, 2), 2))
	if l.Stack().Len() != 4 || l.Stack().Top() != 2 {
		t.Fatalf("Expected 4 entries with layer 2 on top, got %d/%d", l.Stack().Len(), l.Stack().Top())
	}

	// Releasing the first momentary key removes its entry, not the top.
	deltas := collect(l, active, release(pos(3, 3), 3))
	expectKinds(t, deltas, LayerPop)
	if l.Stack().Top() != 2 || !l.Stack().Active(1) {
		t.Error("Expected layer 2 on top and layer 1 still held by the other key")
	}

	collect(l, active, release(pos(3, 1), 4), release(pos(3, 2), 5))
	if l.Stack().Len() != 2 {
		t.Errorf("Expected base plus toggled layer, got %d", l.Stack().Len())
	}

	// Toggle again turns layer 2 off.
	deltas = collect(l, active, press(pos(3, 2), 6))
	expectKinds(t, deltas, LayerOff)
	if l.Stack().Len() != 1 {
		t.Errorf("Expected only the base layer, got %d", l.Stack().Len())
	}
}

func TestDefaultLayer(t *testing.T) {
	l, active := newTestLayout(t)

	collect(l, active, press(pos(3, 2), 0), release(pos(3, 2), 1))
	deltas := collect(l, active, press(pos(1, 0), 2))
	expectKinds(t, deltas, BaseLayer)
	if l.Stack().Base() != 2 {
		t.Errorf("Expected base layer 2, got %d", l.Stack().Base())
	}

	// Turn the toggle off; layer 2 is still the base.
	deltas = collect(l, active, release(pos(1, 0), 3), press(pos(3, 2), 4))
	expectKinds(t, deltas, LayerOff)
	if l.Stack().Len() != 1 {
		t.Errorf("Expected only the base layer, got %d", l.Stack().Len())
	}
	deltas = collect(l, active, press(pos(0, 1), 5))
	expectKinds(t, deltas, KeyPress)
	if deltas[0].Code != keys.Y {
		t.Errorf("Expected Y from the new base, got %v", deltas[0].Code)
	}
}

func TestCustomAction(t *testing.T) {
	km := &Keymap{Rows: 1, Cols: 1, LayerCount: 1}
	km.Set(0, pos(0, 0), CustomCode(7))
	l, err := New(km)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	deltas := collect(l, &ActiveKeys{}, press(pos(0, 0), 0), release(pos(0, 0), 1))
	expectKinds(t, deltas, CustomPress, CustomRelease)
	if deltas[0].Arg != 7 {
		t.Errorf("Expected custom code 7, got %d", deltas[0].Arg)
	}
}

func TestStackNeverEmpty(t *testing.T) {
	var s LayerStack
	s.Reset(0)

	if s.Remove(0, 5) {
		t.Error("Removing a layer that was never pushed must be a no-op")
	}
	s.Push(1, 5)
	if s.Remove(1, 6) {
		t.Error("Removing with the wrong owner must be a no-op")
	}
	if !s.Remove(1, 5) {
		t.Error("Expected owner removal to succeed")
	}
	if s.Remove(0, -2) {
		t.Error("The base layer must never be removed")
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", s.Len())
	}

	for i := 0; i < MaxStack+3; i++ {
		s.Push(1, i)
	}
	if s.Len() != MaxStack {
		t.Errorf("Expected a full stack of %d, got %d", MaxStack, s.Len())
	}
	if s.Drops() != 4 {
		t.Errorf("Expected 4 drops, got %d", s.Drops())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		build    func(km *Keymap)
		expected error
	}{
		{"valid", func(km *Keymap) {}, nil},
		{"no layers", func(km *Keymap) { km.LayerCount = 0 }, ErrNoLayers},
		{"zero rows", func(km *Keymap) { km.Rows = 0 }, ErrDimensions},
		{"too many cols", func(km *Keymap) { km.Cols = matrix.MaxCols + 1 }, ErrDimensions},
		{"layer range", func(km *Keymap) { km.Set(0, pos(1, 1), Momentary(3)) }, ErrLayerRange},
		{"hold-tap range", func(km *Keymap) { km.Set(1, pos(1, 1), HoldTapAt(9)) }, ErrHoldTapRange},
		{"nested hold-tap", func(km *Keymap) { km.HoldTaps[0].Hold = HoldTapAt(1) }, ErrNestedHoldTap},
		{"self hold-tap", func(km *Keymap) { km.HoldTaps[1].Tap = HoldTapAt(1) }, ErrNestedHoldTap},
		{"zero timeout", func(km *Keymap) { km.HoldTaps[0].Timeout = 0 }, ErrHoldTapTimeout},
		{"unknown kind", func(km *Keymap) { km.Set(0, pos(2, 2), Action{Kind: 200}) }, ErrUnknownKind},
	}

	for _, tt := range tests {
		km := newTestKeymap(t)
		tt.build(km)
		err := km.Validate()
		if tt.expected == nil {
			if err != nil {
				t.Errorf("%s: expected no error, got %v", tt.name, err)
			}
			continue
		}
		if !errors.Is(err, tt.expected) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, err)
		}
		if _, err := New(km); err == nil {
			t.Errorf("%s: New accepted an invalid keymap", tt.name)
		}
	}
}

func BenchmarkResolvePressRelease(b *testing.B) {
	km := &Keymap{Rows: 4, Cols: 4, LayerCount: 1}
	km.Set(0, pos(0, 0), Key(keys.A))
	l, _ := New(km)
	p := press(pos(0, 0), 0)
	r := release(pos(0, 0), 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Resolve(p)
		l.Resolve(r)
	}
}
