// Package layout resolves debounced key events into keycode, modifier and
// layer changes through a layered keymap with tap-hold keys.
//
// All state is held in fixed-size tables indexed by position so resolving
// never allocates. Resolution never fails: undefined mappings are no-ops and
// inconsistent input (a release without a press) is counted and discarded.
package layout

import (
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/event"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// DeltaKind is the kind of state change produced by the resolver.
type DeltaKind uint8

const (
	KeyPress DeltaKind = iota + 1
	KeyRelease
	LayerPush
	LayerPop
	LayerOn
	LayerOff
	BaseLayer
	CustomPress
	CustomRelease
)

func (k DeltaKind) String() string {
	switch k {
	case KeyPress:
		return "key-press"
	case KeyRelease:
		return "key-release"
	case LayerPush:
		return "layer-push"
	case LayerPop:
		return "layer-pop"
	case LayerOn:
		return "layer-on"
	case LayerOff:
		return "layer-off"
	case BaseLayer:
		return "base-layer"
	case CustomPress:
		return "custom-press"
	case CustomRelease:
		return "custom-release"
	default:
		return "unknown"
	}
}

// Delta is one change. Code/Mods are set for key deltas, Layer for layer
// deltas and Arg for custom deltas. Index is the flat position index.
type Delta struct {
	Kind  DeltaKind
	Pos   matrix.Position
	Index uint8
	Code  keys.Code
	Mods  keys.Modifier
	Layer uint8
	Arg   uint8
}

// maxDeltas covers the worst case of every pending hold-tap resolving at
// once plus a tap press/release pair.
const maxDeltas = matrix.MaxKeys + 4

type pressRecord struct {
	active bool
	action Action
}

type tapHoldState struct {
	pending   bool
	holdTap   uint8
	pressedAt uint32
	deadline  uint32
}

// lastTap remembers the release of a hold-tap resolved as Tap.
type lastTap struct {
	valid   bool
	holdTap uint8
	at      uint32
}

// Layout is the resolver state machine.
type Layout struct {
	km    *Keymap
	keys  int
	cols  int
	stack LayerStack

	records      [matrix.MaxKeys]pressRecord
	pending      [matrix.MaxKeys]tapHoldState
	pendingCount int
	tapped       [matrix.MaxKeys]lastTap

	out [maxDeltas]Delta
	n   int

	inconsistencies uint32
	ignored         uint32
	truncated       uint32
}

// New validates km and returns a resolver with only layer 0 active.
func New(km *Keymap) (*Layout, error) {
	if err := km.Validate(); err != nil {
		return nil, err
	}
	l := &Layout{
		km:   km,
		keys: km.Keys(),
		cols: int(km.Cols),
	}
	l.stack.Reset(0)
	return l, nil
}

// Stack returns the active layer stack.
func (l *Layout) Stack() *LayerStack {
	return &l.stack
}

// Pending returns the number of unresolved hold-tap keys.
func (l *Layout) Pending() int {
	return l.pendingCount
}

// Inconsistencies counts discarded events such as a release without press.
func (l *Layout) Inconsistencies() uint32 {
	return l.inconsistencies
}

// Ignored counts presses on a position that was already down.
func (l *Layout) Ignored() uint32 {
	return l.ignored
}

// Truncated counts deltas dropped because one pass produced too many.
func (l *Layout) Truncated() uint32 {
	return l.truncated
}

// Lookup returns the action for pos on the current stack: the top-most
// non-transparent entry, or None when every active layer is transparent.
func (l *Layout) Lookup(pos matrix.Position) Action {
	return l.lookup(pos.Index(l.cols))
}

func (l *Layout) lookup(idx int) Action {
	for i := l.stack.Len() - 1; i >= 0; i-- {
		a := l.km.Layers[l.stack.At(i)][idx]
		if a.Kind != Transparent {
			return a
		}
	}
	return None
}

// Resolve handles one key event. Hold-tap keys whose timeout elapsed before
// ev.Time are resolved first. The returned slice is valid until the next
// call to Resolve or Tick.
func (l *Layout) Resolve(ev event.KeyEvent) []Delta {
	l.n = 0
	l.resolvePending(ev.Time, -1)

	if int(ev.Pos.Row) >= int(l.km.Rows) || int(ev.Pos.Col) >= l.cols {
		l.inconsistencies++
		return l.out[:l.n]
	}
	idx := ev.Pos.Index(l.cols)

	switch ev.Edge {
	case event.Press:
		if l.pending[idx].pending || l.records[idx].active {
			l.ignored++
			break
		}
		l.resolvePending(ev.Time, idx)
		l.press(idx, l.lookup(idx), ev.Time)

	case event.Release:
		switch {
		case l.pending[idx].pending:
			l.resolveTap(idx, ev.Time)
		case l.records[idx].active:
			l.release(idx)
		default:
			l.inconsistencies++
		}
	}
	return l.out[:l.n]
}

// Tick resolves hold-tap keys whose timeout has elapsed at now. It is
// called once per processing pass even when no event arrived.
func (l *Layout) Tick(now uint32) []Delta {
	l.n = 0
	l.resolvePending(now, -1)
	return l.out[:l.n]
}

// resolvePending resolves pending hold-taps as Hold in press order. With
// interruptedBy < 0 only expired keys are resolved, otherwise every pending
// key other than interruptedBy is.
func (l *Layout) resolvePending(now uint32, interruptedBy int) {
	for l.pendingCount > 0 {
		best := -1
		for i := 0; i < l.keys; i++ {
			p := &l.pending[i]
			if !p.pending || i == interruptedBy {
				continue
			}
			if interruptedBy < 0 && !reached(now, p.deadline) {
				continue
			}
			if best < 0 || before(p.pressedAt, l.pending[best].pressedAt) {
				best = i
			}
		}
		if best < 0 {
			return
		}
		l.resolveHold(best, now)
	}
}

func (l *Layout) resolveHold(idx int, now uint32) {
	p := &l.pending[idx]
	ht := l.km.HoldTaps[p.holdTap]
	p.pending = false
	l.pendingCount--
	l.tapped[idx].valid = false
	l.press(idx, ht.Hold, now)
}

func (l *Layout) resolveTap(idx int, now uint32) {
	p := &l.pending[idx]
	ht := l.km.HoldTaps[p.holdTap]
	p.pending = false
	l.pendingCount--
	l.press(idx, ht.Tap, now)
	l.release(idx)
	l.tapped[idx] = lastTap{valid: true, holdTap: p.holdTap, at: now}
}

func (l *Layout) press(idx int, a Action, now uint32) {
	switch a.Kind {
	case TapHold:
		ht := l.km.HoldTaps[a.Arg]
		if last := &l.tapped[idx]; last.valid && last.holdTap == a.Arg {
			last.valid = false
			if ht.TapHoldInterval > 0 && before(now, last.at+uint32(ht.TapHoldInterval)) {
				l.press(idx, ht.Tap, now)
				return
			}
		}
		l.pending[idx] = tapHoldState{
			pending:   true,
			holdTap:   a.Arg,
			pressedAt: now,
			deadline:  now + uint32(ht.Timeout),
		}
		l.pendingCount++
		return
	case Keycode, Modifier:
		l.emit(Delta{Kind: KeyPress, Code: a.Code, Mods: a.Mods}, idx)
	case LayerMomentary:
		if l.stack.Push(a.Arg, idx) {
			l.emit(Delta{Kind: LayerPush, Layer: a.Arg}, idx)
		}
	case LayerToggle:
		if on, ok := l.stack.Toggle(a.Arg); ok {
			kind := LayerOff
			if on {
				kind = LayerOn
			}
			l.emit(Delta{Kind: kind, Layer: a.Arg}, idx)
		}
	case DefaultLayer:
		l.stack.SetBase(a.Arg)
		l.emit(Delta{Kind: BaseLayer, Layer: a.Arg}, idx)
	case Custom:
		l.emit(Delta{Kind: CustomPress, Arg: a.Arg}, idx)
	}
	l.records[idx] = pressRecord{active: true, action: a}
}

func (l *Layout) release(idx int) {
	rec := &l.records[idx]
	a := rec.action
	rec.active = false

	switch a.Kind {
	case Keycode, Modifier:
		l.emit(Delta{Kind: KeyRelease, Code: a.Code, Mods: a.Mods}, idx)
	case LayerMomentary:
		if l.stack.Remove(a.Arg, idx) {
			l.emit(Delta{Kind: LayerPop, Layer: a.Arg}, idx)
		}
	case Custom:
		l.emit(Delta{Kind: CustomRelease, Arg: a.Arg}, idx)
	}
}

func (l *Layout) emit(d Delta, idx int) {
	if l.n == len(l.out) {
		l.truncated++
		return
	}
	d.Index = uint8(idx)
	d.Pos = matrix.PositionAt(idx, l.cols)
	l.out[l.n] = d
	l.n++
}

// reached reports whether now is at or past deadline, tolerating wraparound
// of the millisecond clock.
func reached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

func before(a, b uint32) bool {
	return int32(a-b) < 0
}
