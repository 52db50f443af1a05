//go:build tinygo

package board

import (
	"device/arm"
	"machine"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// GPIO0 and GPIO1 carry the display I2C bus.
var (
	rowPins = [Rows]machine.Pin{
		machine.GPIO2, machine.GPIO3, machine.GPIO4, machine.GPIO5, machine.GPIO6,
		machine.GPIO7, machine.GPIO8, machine.GPIO9, machine.GPIO10, machine.GPIO11,
	}
	colPins = [Cols]machine.Pin{
		machine.GPIO12, machine.GPIO13, machine.GPIO14, machine.GPIO15,
		machine.GPIO16, machine.GPIO17, machine.GPIO18,
	}
)

// StatusLED blinks the halt pattern.
const StatusLED = machine.LED

// MatrixConfig configures the row strobes as push-pull outputs and the
// column senses as pull-up inputs and returns the scanner wiring.
func MatrixConfig() matrix.Config {
	cfg := matrix.Config{Rows: Rows, Cols: Cols}
	for _, p := range rowPins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		cfg.Strobes = append(cfg.Strobes, p)
	}
	for _, p := range colPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		cfg.Senses = append(cfg.Senses, p)
	}
	cfg.Settle = settle
	return cfg
}

// settle busy-waits about 1 µs at 125 MHz.
func settle() {
	for i := 0; i < 40; i++ {
		arm.Asm("nop")
	}
}
