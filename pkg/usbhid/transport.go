// Package usbhid moves keyboard reports from the resolver to the USB HID
// interrupt endpoint.
//
// The resolver calls ReportReady after every pass that changed the active
// keys. The USB interrupt calls Poll whenever the endpoint finished a
// transfer. The two sides share only the Transport, and every access to it
// runs inside an irq critical section.
package usbhid

import (
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/irq"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/report"
)

const (
	// ReportID is the keyboard collection ID in the composite descriptor.
	ReportID = 2

	// RingSize bounds the number of reports waiting for the endpoint.
	RingSize = 8
)

// LED bits of the host output report.
const (
	LEDNumLock    uint8 = 1 << 0
	LEDCapsLock   uint8 = 1 << 1
	LEDScrollLock uint8 = 1 << 2
)

// Sender is the USB interrupt endpoint.
type Sender interface {
	// Ready reports whether the host finished enumeration.
	Ready() bool
	// SendReport starts an IN transfer of b and reports whether it was
	// accepted. It must not block.
	SendReport(b []byte) bool
}

// Transport queues reports for the endpoint. Every intermediate report
// reaches the host in order unless more than RingSize are waiting, in which
// case the newest waiting one is replaced and counted as coalesced.
type Transport struct {
	sender Sender

	ring  [RingSize]report.Report
	head  uint8
	count uint8

	current   report.Report
	pkt       [report.Size + 1]byte
	busy      bool
	connected bool
	leds      uint8

	sent      uint32
	coalesced uint32
	failed    uint32
}

// NewTransport returns a connected transport sending through s.
func NewTransport(s Sender) *Transport {
	t := &Transport{
		sender:    s,
		connected: true,
	}
	t.pkt[0] = ReportID
	return t
}

// ReportReady hands a freshly built report to the transport and starts a
// transfer if the endpoint is idle.
func (t *Transport) ReportReady(r report.Report) {
	defer irq.Restore(irq.Disable())

	t.current = r
	if !t.connected {
		return
	}
	if t.count == RingSize {
		t.ring[(int(t.head)+RingSize-1)%RingSize] = r
		t.coalesced++
	} else {
		t.ring[(int(t.head)+int(t.count))%RingSize] = r
		t.count++
	}
	if !t.busy {
		t.sendNext()
	}
}

// Poll is called from the USB interrupt when the previous transfer is
// complete. It sends the next waiting report, or the current one again when
// nothing is waiting, and reports whether a transfer started.
func (t *Transport) Poll() bool {
	defer irq.Restore(irq.Disable())

	t.busy = false
	return t.sendNext()
}

// RequestResend starts a transfer of the current report if the endpoint is
// idle. A busy endpoint picks it up on the next Poll. Used for GET_REPORT.
func (t *Transport) RequestResend() {
	defer irq.Restore(irq.Disable())

	if !t.busy {
		t.sendNext()
	}
}

// SetConnected records host attach and detach. Waiting reports are stale
// once the host is gone, so they are discarded; on reconnect the current
// report is sent so the host sees the keys that are held right now.
func (t *Transport) SetConnected(connected bool) {
	defer irq.Restore(irq.Disable())

	if connected == t.connected {
		return
	}
	t.connected = connected
	t.head, t.count = 0, 0
	t.busy = false
	if connected {
		t.sendNext()
	}
}

// Connected reports the last state given to SetConnected.
func (t *Transport) Connected() bool {
	defer irq.Restore(irq.Disable())
	return t.connected
}

// Last returns the most recently built report, all zero before the first.
func (t *Transport) Last() report.Report {
	defer irq.Restore(irq.Disable())
	return t.current
}

// Pending returns the number of reports waiting for the endpoint.
func (t *Transport) Pending() int {
	defer irq.Restore(irq.Disable())
	return int(t.count)
}

// Sent returns the number of transfers started.
func (t *Transport) Sent() uint32 {
	defer irq.Restore(irq.Disable())
	return t.sent
}

// Coalesced returns the number of waiting reports replaced by a newer one.
func (t *Transport) Coalesced() uint32 {
	defer irq.Restore(irq.Disable())
	return t.coalesced
}

// Failed returns the number of transfers the endpoint refused.
func (t *Transport) Failed() uint32 {
	defer irq.Restore(irq.Disable())
	return t.failed
}

// RxHandler receives HID output reports from the host. Only the LED report
// is understood.
func (t *Transport) RxHandler(b []byte) bool {
	defer irq.Restore(irq.Disable())

	switch {
	case len(b) >= 2 && b[0] == ReportID:
		t.leds = b[1]
	case len(b) == 1:
		t.leds = b[0]
	default:
		return false
	}
	return true
}

// LEDs returns the host LED state (LEDNumLock etc).
func (t *Transport) LEDs() uint8 {
	defer irq.Restore(irq.Disable())
	return t.leds
}

// sendNext must be called with interrupts disabled. A report leaves the
// ring only once the endpoint accepted it. With the ring empty the current
// report goes out again, all zero before the first.
func (t *Transport) sendNext() bool {
	if !t.connected || !t.sender.Ready() {
		return false
	}

	r := t.current
	fromRing := t.count > 0
	if fromRing {
		r = t.ring[t.head]
	}

	copy(t.pkt[1:], r[:])
	if !t.sender.SendReport(t.pkt[:]) {
		t.failed++
		return false
	}

	if fromRing {
		t.head = uint8((int(t.head) + 1) % RingSize)
		t.count--
	}
	t.busy = true
	t.sent++
	return true
}
