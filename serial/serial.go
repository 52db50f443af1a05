// Package serial serves the USB CDC port. A frame starting with the
// protocol sync byte goes to the binary protocol handler; anything else is
// collected into a line and run as a console command.
package serial

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/config"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/logger"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/protocol"
)

// Port is the byte stream under the console. machine.Serial satisfies it.
// ReadByte returns an error other than io.EOF when no byte is waiting.
type Port interface {
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

type Serial struct {
	port     Port
	handler  *protocol.Handler
	device   protocol.Device
	idle     func()
	inIndex  int
	inBuffer [128]byte
}

// NewSerial builds a console on port. device may be nil.
func NewSerial(port Port, handler *protocol.Handler, device protocol.Device) *Serial {
	return &Serial{
		port:    port,
		handler: handler,
		device:  device,
		idle:    func() {},
	}
}

// OnIdle sets the function called while no input is waiting. The firmware
// passes a short sleep so the main loop keeps running.
func (s *Serial) OnIdle(fn func()) {
	s.idle = fn
}

// Handle serves the port until it reports io.EOF.
func (s *Serial) Handle() {
	for {
		b, err := s.port.ReadByte()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.idle()
			continue
		}

		if b == protocol.SyncByte && s.inIndex == 0 {
			if err := s.handler.ServeAfterSync(s); err != nil {
				logger.LogWarn(logger.ComponentSerial, "frame dropped", "err", err)
			}
			continue
		}

		if in, ok := s.collect(b); ok && in != "" {
			s.command(in)
		}
	}
}

// collect appends b to the line buffer and returns the line on '\n'.
func (s *Serial) collect(b byte) (string, bool) {
	if b == '\n' {
		in := strings.TrimRight(string(s.inBuffer[:s.inIndex]), "\r")
		s.inIndex = 0
		return in, true
	}

	if s.inIndex == len(s.inBuffer) {
		s.inIndex = 0
	}

	s.inBuffer[s.inIndex] = b
	s.inIndex++

	return "", false
}

// Read blocks until at least one byte is available. It lets the protocol
// reader treat the port as an io.Reader.
func (s *Serial) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		b, err := s.port.ReadByte()
		if err == io.EOF {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}
		if err != nil {
			if n > 0 {
				break
			}
			s.idle()
			continue
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *Serial) write(out string) {
	s.port.Write([]byte(out + "\n"))
}

func (s *Serial) writef(format string, args ...any) {
	s.write(fmt.Sprintf(format, args...))
}

var errUsage = errors.New("usage")

func (s *Serial) command(in string) {
	args, err := shlex.Split(in)
	if err != nil || len(args) == 0 {
		s.write("error: cannot parse command")
		return
	}

	switch args[0] {
	case "areyouanarwhal?":
		s.write("areyouanarwhal?yes")
	case "hello":
		s.writef("%s %d.%d", protocol.DeviceName, protocol.FirmwareMajor, protocol.FirmwareMinor)
	case "stats":
		err = s.stats()
	case "layers":
		err = s.layers()
	case "keymaps":
		err = s.keymaps()
	case "keymap":
		err = s.keymap(args[1:])
	case "log":
		err = s.logLevel(args[1:])
	case "bootloader":
		s.write("ok")
		if !s.handler.EnterBootloader() {
			s.write("error: bootloader not available")
		}
	case "help":
		s.write("commands: hello stats layers keymaps keymap <slot> log <level> bootloader help")
	default:
		s.writef("error: unknown command %q", args[0])
	}

	if err != nil {
		s.writef("error: %v", err)
	}
}

func (s *Serial) stats() error {
	if s.device == nil {
		return errors.New("no keyboard")
	}
	st := s.device.Stats()
	s.writef("reports=%d overflows=%d bounces=%d rollover=%d coalesced=%d",
		st.Reports, st.Overflows, st.Bounces, st.Rollover, st.Coalesced)
	s.writef("inconsistencies=%d ignored=%d truncated=%d stackdrops=%d pending=%d",
		st.Inconsistencies, st.Ignored, st.Truncated, st.StackDrops, st.Pending)
	return nil
}

func (s *Serial) layers() error {
	if s.device == nil {
		return errors.New("no keyboard")
	}
	st := s.device.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "base=%d active=", st.Base)
	for i, l := range st.ActiveLayers() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(l)))
	}
	s.write(b.String())
	return nil
}

func (s *Serial) keymaps() error {
	resp := s.handler.Handle(&protocol.Frame{Cmd: protocol.CmdListKeymaps})
	if resp.Status != protocol.StatusOK {
		return &protocol.ResponseError{Cmd: protocol.CmdListKeymaps, Status: resp.Status}
	}
	slots := resp.Payload[1:]
	if len(slots) == 0 {
		s.write("no keymaps stored")
		return nil
	}
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = strconv.Itoa(int(slot))
	}
	s.write("slots: " + strings.Join(parts, " "))
	return nil
}

// keymap switches the active slot through the protocol handler so the
// console and the host tool take the same path.
func (s *Serial) keymap(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: keymap <slot>", errUsage)
	}
	slot, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return fmt.Errorf("%w: slot must be 0-255", errUsage)
	}

	resp := s.handler.Handle(&protocol.Frame{Cmd: protocol.CmdGetDeviceConfig})
	if resp.Status != protocol.StatusOK {
		return &protocol.ResponseError{Cmd: protocol.CmdGetDeviceConfig, Status: resp.Status}
	}
	var cfg config.DeviceConfig
	if err := cfg.UnmarshalBinary(resp.Payload); err != nil {
		return err
	}

	exists := s.handler.Handle(&protocol.Frame{Cmd: protocol.CmdGetKeymap, Payload: []byte{uint8(slot)}})
	if exists.Status != protocol.StatusOK {
		return &protocol.ResponseError{Cmd: protocol.CmdGetKeymap, Status: exists.Status}
	}

	cfg.ActiveKeymap = uint8(slot)
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	resp = s.handler.Handle(&protocol.Frame{Cmd: protocol.CmdSetDeviceConfig, Payload: data})
	if resp.Status != protocol.StatusOK {
		return &protocol.ResponseError{Cmd: protocol.CmdSetDeviceConfig, Status: resp.Status}
	}
	s.writef("keymap %d active", slot)
	return nil
}

func (s *Serial) logLevel(args []string) error {
	if len(args) != 1 {
		s.writef("level=%s", logger.Level())
		return nil
	}
	logger.SetLevel(logger.ParseLevel(args[0]))
	s.writef("level=%s", logger.Level())
	return nil
}
