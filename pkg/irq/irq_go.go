//go:build !tinygo

package irq

import "sync"

// State is a placeholder for the interrupt mask on regular Go.
type State uintptr

// mu stands in for interrupt masking so host tests can drive the scan and
// USB sides from separate goroutines.
var mu sync.Mutex

// Disable enters the critical section.
func Disable() State {
	mu.Lock()
	return 0
}

// Restore leaves the critical section.
func Restore(state State) {
	mu.Unlock()
}
