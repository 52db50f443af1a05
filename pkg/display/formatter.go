package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keyboard"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/protocol"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/usbhid"
)

// Text grid of the 128x64 panel.
const (
	Cols = 16
	Rows = 8
)

// Screen is one frame of text, a line per row.
type Screen [Rows]string

// Status is everything the status screen shows.
type Status struct {
	Stats     keyboard.Stats
	LEDs      uint8
	Connected bool
	LastCmd   uint8
	Handled   uint32
}

// Render lays out the status screen. Every line fits in Cols.
func Render(s Status) Screen {
	var scr Screen
	scr[0] = fmt.Sprintf("%s %d.%d", protocol.DeviceName, protocol.FirmwareMajor, protocol.FirmwareMinor)
	scr[1] = "L:" + formatLayers(s.Stats.ActiveLayers()) + " B:" + strconv.Itoa(int(s.Stats.Base))
	scr[2] = "LED:" + formatLEDs(s.LEDs) + " USB:" + formatLink(s.Connected)
	scr[3] = fmt.Sprintf("Rep:%d", s.Stats.Reports)
	scr[4] = fmt.Sprintf("Ovf:%d Bnc:%d", s.Stats.Overflows, s.Stats.Bounces)
	scr[5] = fmt.Sprintf("Rol:%d Coa:%d", s.Stats.Rollover, s.Stats.Coalesced)
	scr[6] = fmt.Sprintf("Pnd:%d Drp:%d", s.Stats.Pending, s.Stats.StackDrops)
	if s.Handled > 0 {
		scr[7] = fmt.Sprintf("%s #%d", ShortCmdName(s.LastCmd), s.Handled)
	}
	for i := range scr {
		scr[i] = truncate(scr[i], Cols)
	}
	return scr
}

func formatLayers(layers []uint8) string {
	var b strings.Builder
	for i, l := range layers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(l)))
	}
	return b.String()
}

func formatLEDs(leds uint8) string {
	out := []byte("---")
	if leds&usbhid.LEDNumLock != 0 {
		out[0] = 'N'
	}
	if leds&usbhid.LEDCapsLock != 0 {
		out[1] = 'C'
	}
	if leds&usbhid.LEDScrollLock != 0 {
		out[2] = 'S'
	}
	return string(out)
}

func formatLink(up bool) string {
	if up {
		return "up"
	}
	return "dn"
}

// ShortCmdName returns a display-sized name for a command code.
func ShortCmdName(cmd uint8) string {
	switch cmd {
	case protocol.CmdGetDeviceConfig:
		return "GetDevCfg"
	case protocol.CmdSetDeviceConfig:
		return "SetDevCfg"
	case protocol.CmdGetKeymap:
		return "GetKmap"
	case protocol.CmdSetKeymap:
		return "SetKmap"
	case protocol.CmdDeleteKeymap:
		return "DelKmap"
	case protocol.CmdListKeymaps:
		return "LstKmap"
	case protocol.CmdGetStorageStats:
		return "GetStor"
	case protocol.CmdPing:
		return "Ping"
	case protocol.CmdFactoryReset:
		return "FctRst"
	case protocol.CmdDiscover:
		return "Discvr"
	case protocol.CmdGetVersion:
		return "GetVer"
	case protocol.CmdGetDiagnostics:
		return "Diag"
	case protocol.CmdEnterBootloader:
		return "Boot"
	default:
		return fmt.Sprintf("Cmd%02X", cmd)
	}
}

// truncate limits a string to maxLen characters, adding ".." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 2 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}
