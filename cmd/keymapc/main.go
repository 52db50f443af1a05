// Command keymapc compiles HCL keymaps and manages the keymaps stored on a
// Narwhal keyboard over its USB serial port.
//
//	keymapc compile -o neo.bin neo.hcl
//	keymapc upload -device /dev/ttyACM0 -slot 1 -activate neo.hcl
//	keymapc list
//	keymapc stats
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, openPort); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openPort opens the keyboard's CDC port. The baud rate is ignored by USB
// CDC but tarm/serial requires one.
func openPort(device string) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        115200,
		ReadTimeout: 2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return port, nil
}
