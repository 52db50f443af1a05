// Package irq provides the scoped critical sections shared by the scan timer
// interrupt and the USB interrupt.
//
// Every caller pairs the two calls with defer so the section is released on
// all exit paths:
//
//	defer irq.Restore(irq.Disable())
//
// Sections must not nest.
package irq
