//go:build tinygo

package usbhid

import (
	"machine"
	"machine/usb/descriptor"
	"machine/usb/hid"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/composite"
)

type endpoint struct{}

func (endpoint) Ready() bool {
	return machine.USBDev.InitEndpointComplete
}

func (endpoint) SendReport(b []byte) bool {
	hid.SendUSBPacket(b)
	return true
}

// device adapts Transport to the TinyGo HID handler interface.
type device struct {
	t *Transport
}

func (d device) TxHandler() bool {
	return d.t.Poll()
}

func (d device) RxHandler(b []byte) bool {
	return d.t.RxHandler(b)
}

// Install replaces the default CDC+HID descriptor with the keyboard one and
// registers a transport as the HID handler. It must run before the USB
// device is configured, so call it from init or early in main.
func Install() *Transport {
	descriptor.CDCHID = composite.USBDescriptor
	t := NewTransport(endpoint{})
	hid.SetHandler(device{t: t})
	return t
}
