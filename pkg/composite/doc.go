// Package composite provides the USB descriptor for the keyboard. The
// descriptor itself is only built for TinyGo targets.
package composite
