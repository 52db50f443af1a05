// Package keyboard wires the scan pipeline together.
//
// ScanTick runs in the periodic timer interrupt: it scans the matrix,
// debounces the sample and queues the resulting events. Process runs in the
// main loop: it drains the queue through the layout resolver, folds every
// delta into the active key set and hands a fresh report to the transport
// after each change. The event queue is the only state the two share.
package keyboard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/debounce"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/event"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/irq"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/report"
)

var ErrKeymapSize = errors.New("keymap does not match the matrix")

// Scanner reads the key matrix. *matrix.Scanner satisfies it.
type Scanner interface {
	Rows() int
	Cols() int
	Scan() matrix.RawState
}

// Transport receives built reports. *usbhid.Transport satisfies it.
type Transport interface {
	ReportReady(r report.Report)
	Coalesced() uint32
}

// CustomFunc handles Custom actions. It runs in the main loop.
type CustomFunc func(code uint8, pressed bool)

// Config holds the collaborators of a Keyboard.
type Config struct {
	Scanner   Scanner
	Keymap    *layout.Keymap
	Transport Transport

	// DebounceThreshold defaults to debounce.DefaultThreshold.
	DebounceThreshold uint8

	Custom CustomFunc
}

// Keyboard is the scan, resolve and report pipeline.
type Keyboard struct {
	scanner   Scanner
	deb       *debounce.Debouncer
	queue     event.Queue
	layout    *layout.Layout
	active    layout.ActiveKeys
	builder   report.Builder
	transport Transport
	custom    CustomFunc

	nextKeymap atomic.Pointer[layout.Keymap]
	reports    uint32
}

// New validates the configuration and builds the pipeline. Every error it
// returns is a configuration error and the firmware must not start.
func New(cfg Config) (*Keyboard, error) {
	rows, cols := cfg.Scanner.Rows(), cfg.Scanner.Cols()
	if err := checkKeymap(cfg.Keymap, rows, cols); err != nil {
		return nil, err
	}

	threshold := cfg.DebounceThreshold
	if threshold == 0 {
		threshold = debounce.DefaultThreshold
	}
	deb, err := debounce.New(rows, cols, threshold)
	if err != nil {
		return nil, fmt.Errorf("debouncer: %w", err)
	}
	l, err := layout.New(cfg.Keymap)
	if err != nil {
		return nil, fmt.Errorf("keymap: %w", err)
	}

	return &Keyboard{
		scanner:   cfg.Scanner,
		deb:       deb,
		layout:    l,
		transport: cfg.Transport,
		custom:    cfg.Custom,
	}, nil
}

func checkKeymap(km *layout.Keymap, rows, cols int) error {
	if int(km.Rows) != rows || int(km.Cols) != cols {
		return fmt.Errorf("%w: keymap %dx%d, matrix %dx%d", ErrKeymapSize, km.Rows, km.Cols, rows, cols)
	}
	return nil
}

// ScanTick samples the matrix once. It runs in the timer interrupt and
// never blocks; events that do not fit in the queue are dropped and counted.
func (k *Keyboard) ScanTick(now uint32) {
	raw := k.scanner.Scan()
	for _, ev := range k.debounce(raw, now) {
		_ = k.queue.Push(ev)
	}
}

func (k *Keyboard) debounce(raw matrix.RawState, now uint32) []event.KeyEvent {
	defer irq.Restore(irq.Disable())
	return k.deb.Update(raw, now)
}

// Process drains the event queue and resolves tap-hold timeouts at now.
func (k *Keyboard) Process(now uint32) {
	if km := k.nextKeymap.Swap(nil); km != nil {
		k.swapKeymap(km)
	}
	for {
		ev, ok := k.queue.Pop()
		if !ok {
			break
		}
		k.apply(k.layout.Resolve(ev))
	}
	k.apply(k.layout.Tick(now))
}

func (k *Keyboard) apply(deltas []layout.Delta) {
	for _, d := range deltas {
		switch d.Kind {
		case layout.CustomPress, layout.CustomRelease:
			if k.custom != nil {
				k.custom(d.Arg, d.Kind == layout.CustomPress)
			}
			continue
		}
		if k.active.Apply(d) {
			k.send()
		}
	}
}

func (k *Keyboard) send() {
	k.transport.ReportReady(k.builder.Build(&k.active))
	k.reports++
}

// UseKeymap schedules km to replace the current keymap at the start of the
// next Process call. It may be called from any goroutine. km must already
// be valid and must not be modified afterwards.
func (k *Keyboard) UseKeymap(km *layout.Keymap) error {
	if err := checkKeymap(km, k.scanner.Rows(), k.scanner.Cols()); err != nil {
		return err
	}
	if err := km.Validate(); err != nil {
		return err
	}
	k.nextKeymap.Store(km)
	return nil
}

// swapKeymap releases everything held under the old keymap so no key stays
// stuck on the host, then starts the new resolver from its base layer.
func (k *Keyboard) swapKeymap(km *layout.Keymap) {
	l, err := layout.New(km)
	if err != nil {
		return
	}
	k.layout = l
	if !k.active.Empty() {
		k.active.Reset()
		k.send()
	}
}

// Layout exposes the resolver for inspection from the main loop.
func (k *Keyboard) Layout() *layout.Layout {
	return k.layout
}

// Stats is a snapshot of the diagnostics counters.
type Stats struct {
	Overflows       uint32
	Bounces         uint32
	Inconsistencies uint32
	Ignored         uint32
	Truncated       uint32
	Rollover        uint32
	Coalesced       uint32
	StackDrops      uint32
	Reports         uint32
	Pending         int
	Base            uint8
	LayerCount      int
	Layers          [layout.MaxStack]uint8
}

// ActiveLayers returns the active layer stack, base first.
func (s *Stats) ActiveLayers() []uint8 {
	return s.Layers[:s.LayerCount]
}

// Stats collects the counters. Call it from the main loop.
func (k *Keyboard) Stats() Stats {
	stack := k.layout.Stack()
	s := Stats{
		Overflows:       k.queue.Overflows(),
		Bounces:         k.bounces(),
		Inconsistencies: k.layout.Inconsistencies(),
		Ignored:         k.layout.Ignored(),
		Truncated:       k.layout.Truncated(),
		Rollover:        k.builder.Dropped(),
		Coalesced:       k.transport.Coalesced(),
		StackDrops:      stack.Drops(),
		Reports:         k.reports,
		Pending:         k.layout.Pending(),
		Base:            stack.Base(),
		LayerCount:      stack.Len(),
	}
	for i := 0; i < stack.Len(); i++ {
		s.Layers[i] = stack.At(i)
	}
	return s
}

func (k *Keyboard) bounces() uint32 {
	defer irq.Restore(irq.Disable())
	return k.deb.Bounces()
}
