package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/config"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keymapfile"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/logger"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/protocol"
)

// dialFunc opens a connection to the keyboard.
type dialFunc func(device string) (io.ReadWriteCloser, error)

var errUsage = errors.New("usage: keymapc <compile|upload|list|delete|activate|stats|version|bootloader> [flags]")

func run(args []string, out io.Writer, dial dialFunc) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd := &command{out: out, dial: dial}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cmd.device, "device", "/dev/ttyACM0", "Serial device path")
	verbose := fs.Bool("v", false, "Enable debug logging")

	var handler func(fs *flag.FlagSet) error
	switch args[0] {
	case "compile":
		output := fs.String("o", "", "Output file (default: input with .bin)")
		handler = func(fs *flag.FlagSet) error { return cmd.compile(fs.Args(), *output) }
	case "upload":
		slot := fs.Uint("slot", 0, "Keymap slot")
		activate := fs.Bool("activate", false, "Make the slot active")
		handler = func(fs *flag.FlagSet) error { return cmd.upload(fs.Args(), *slot, *activate) }
	case "list":
		handler = func(*flag.FlagSet) error { return cmd.list() }
	case "delete":
		slot := fs.Uint("slot", 0, "Keymap slot")
		handler = func(*flag.FlagSet) error { return cmd.delete(*slot) }
	case "activate":
		slot := fs.Uint("slot", 0, "Keymap slot")
		handler = func(*flag.FlagSet) error { return cmd.activate(*slot) }
	case "stats":
		handler = func(*flag.FlagSet) error { return cmd.stats() }
	case "version":
		handler = func(*flag.FlagSet) error { return cmd.version() }
	case "bootloader":
		handler = func(*flag.FlagSet) error { return cmd.bootloader() }
	default:
		return errUsage
	}

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *verbose {
		logger.SetLevel(slog.LevelDebug)
	}
	logger.SetLogger(logger.NewLogger(os.Stderr))

	defer cmd.close()
	return handler(fs)
}

type command struct {
	out    io.Writer
	dial   dialFunc
	device string
	conn   io.ReadWriteCloser
}

func (c *command) close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// exchange connects on first use and checks the device identifies itself.
func (c *command) exchange(cmd uint8, payload []byte) (*protocol.Response, error) {
	if c.conn == nil {
		conn, err := c.dial(c.device)
		if err != nil {
			return nil, err
		}
		c.conn = conn

		resp, err := protocol.Exchange(conn, protocol.CmdDiscover, nil)
		if err != nil {
			return nil, fmt.Errorf("discover: %w", err)
		}
		if string(resp.Payload) != protocol.DeviceName {
			return nil, fmt.Errorf("%s is not a %s (got %q)", c.device, protocol.DeviceName, resp.Payload)
		}
		logger.LogDebug(logger.ComponentKeymap, "connected", "device", c.device)
	}
	logger.LogDebug(logger.ComponentKeymap, "exchange", "cmd", protocol.CmdName(cmd), "len", len(payload))
	return protocol.Exchange(c.conn, cmd, payload)
}

func checkSlot(slot uint) (uint8, error) {
	if slot > 255 {
		return 0, fmt.Errorf("slot %d out of range (0-255)", slot)
	}
	return uint8(slot), nil
}

// load reads a keymap from an .hcl source or a compiled .bin file.
func load(path string) (*config.KeymapProfile, error) {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var p config.KeymapProfile
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := p.Keymap.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &p, nil
	}
	return keymapfile.ParseFile(path)
}

func (c *command) compile(args []string, output string) error {
	if len(args) != 1 {
		return errors.New("usage: keymapc compile [-o out.bin] keymap.hcl")
	}
	p, err := keymapfile.ParseFile(args[0])
	if err != nil {
		return err
	}
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if output == "" {
		output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".bin"
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %q %dx%d, %d layers, %d hold-taps, %d bytes\n",
		output, p.GetName(), p.Keymap.Rows, p.Keymap.Cols, p.Keymap.LayerCount, p.Keymap.HoldTapCount, len(data))
	return nil
}

func (c *command) upload(args []string, slot uint, activate bool) error {
	if len(args) != 1 {
		return errors.New("usage: keymapc upload [-slot N] [-activate] keymap.hcl|keymap.bin")
	}
	s, err := checkSlot(slot)
	if err != nil {
		return err
	}
	p, err := load(args[0])
	if err != nil {
		return err
	}
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := c.exchange(protocol.CmdSetKeymap, append([]byte{s}, data...)); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "uploaded %q to slot %d\n", p.GetName(), s)

	if activate {
		return c.activate(slot)
	}
	return nil
}

func (c *command) list() error {
	resp, err := c.exchange(protocol.CmdListKeymaps, nil)
	if err != nil {
		return err
	}
	cfg, err := c.deviceConfig()
	if err != nil {
		return err
	}
	if len(resp.Payload) < 1 || len(resp.Payload) != 1+int(resp.Payload[0]) {
		return protocol.ErrInvalidFrame
	}
	for _, slot := range resp.Payload[1:] {
		km, err := c.exchange(protocol.CmdGetKeymap, []byte{slot})
		if err != nil {
			return err
		}
		var p config.KeymapProfile
		if err := p.UnmarshalBinary(km.Payload); err != nil {
			return err
		}
		marker := " "
		if slot == cfg.ActiveKeymap {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %3d  %-15s %dx%d %d layers\n", marker, slot, p.GetName(), p.Keymap.Rows, p.Keymap.Cols, p.Keymap.LayerCount)
	}
	if resp.Payload[0] == 0 {
		fmt.Fprintln(c.out, "no keymaps stored")
	}
	return nil
}

func (c *command) deviceConfig() (config.DeviceConfig, error) {
	var cfg config.DeviceConfig
	resp, err := c.exchange(protocol.CmdGetDeviceConfig, nil)
	if err != nil {
		return cfg, err
	}
	err = cfg.UnmarshalBinary(resp.Payload)
	return cfg, err
}

func (c *command) delete(slot uint) error {
	s, err := checkSlot(slot)
	if err != nil {
		return err
	}
	if _, err := c.exchange(protocol.CmdDeleteKeymap, []byte{s}); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "deleted slot %d\n", s)
	return nil
}

func (c *command) activate(slot uint) error {
	s, err := checkSlot(slot)
	if err != nil {
		return err
	}
	cfg, err := c.deviceConfig()
	if err != nil {
		return err
	}
	cfg.ActiveKeymap = s
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := c.exchange(protocol.CmdSetDeviceConfig, data); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "slot %d active\n", s)
	return nil
}

func (c *command) stats() error {
	resp, err := c.exchange(protocol.CmdGetDiagnostics, nil)
	if err != nil {
		return err
	}
	st, err := protocol.DecodeStats(resp.Payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "reports          %d\n", st.Reports)
	fmt.Fprintf(c.out, "queue overflows  %d\n", st.Overflows)
	fmt.Fprintf(c.out, "bounces          %d\n", st.Bounces)
	fmt.Fprintf(c.out, "rollover         %d\n", st.Rollover)
	fmt.Fprintf(c.out, "coalesced        %d\n", st.Coalesced)
	fmt.Fprintf(c.out, "inconsistencies  %d\n", st.Inconsistencies)
	fmt.Fprintf(c.out, "ignored          %d\n", st.Ignored)
	fmt.Fprintf(c.out, "truncated        %d\n", st.Truncated)
	fmt.Fprintf(c.out, "stack drops      %d\n", st.StackDrops)
	fmt.Fprintf(c.out, "pending holds    %d\n", st.Pending)
	fmt.Fprintf(c.out, "layers           base %d, active %v\n", st.Base, st.ActiveLayers())

	resp, err = c.exchange(protocol.CmdGetStorageStats, nil)
	if err != nil {
		return err
	}
	if len(resp.Payload) != 14 {
		return protocol.ErrInvalidFrame
	}
	total := binary.LittleEndian.Uint32(resp.Payload[0:])
	used := binary.LittleEndian.Uint32(resp.Payload[4:])
	fmt.Fprintf(c.out, "flash            %d/%d bytes, %d keymaps\n", used, total, resp.Payload[12])
	return nil
}

func (c *command) version() error {
	resp, err := c.exchange(protocol.CmdGetVersion, nil)
	if err != nil {
		return err
	}
	if len(resp.Payload) != 4 {
		return protocol.ErrInvalidFrame
	}
	fmt.Fprintf(c.out, "firmware %d.%d, config format %d\n",
		resp.Payload[0], resp.Payload[1], binary.LittleEndian.Uint16(resp.Payload[2:]))
	return nil
}

func (c *command) bootloader() error {
	if _, err := c.exchange(protocol.CmdEnterBootloader, nil); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "rebooting into the bootloader")
	return nil
}
