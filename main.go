//go:build tinygo

package main

import (
	"device/arm"
	"log/slog"
	"machine"
	"sync/atomic"
	"time"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/board"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/config"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/display"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keyboard"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/logger"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/protocol"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/storage"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/usbhid"
	"github.com/tuffrabit/tinygo-narwhal-kb/serial"
)

// Halt blink counts.
const (
	blinkConfig  = 2
	blinkStorage = 3
	blinkTimer   = 4
)

var (
	kb *keyboard.Keyboard

	// Written only by the SysTick handler.
	nowMs   atomic.Uint32
	tickUs  uint32
	tickAcc uint32
)

// The HID handler must be installed before the USB stack configures the
// device.
var transport = usbhid.Install()

//go:export SysTick_Handler
func handleSysTick() {
	tickAcc += tickUs
	now := nowMs.Load()
	for tickAcc >= 1000 {
		tickAcc -= 1000
		now++
	}
	nowMs.Store(now)
	if kb != nil {
		kb.ScanTick(now)
	}
}

// MAIN THREAD DUTIES
//
// The SysTick interrupt scans; this goroutine resolves, reports and drives
// the display; the serial goroutine serves the CDC port.

func main() {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{})
	logger.SetLogger(logger.NewLogger(uart))

	store, err := storage.New(machine.Flash, true)
	if err != nil {
		halt("storage unavailable", err, blinkStorage)
	}

	cfg := store.LoadDeviceOrDefaults()
	if err := cfg.Validate(); err != nil {
		logger.LogWarn(logger.ComponentKeyboard, "stored config invalid, using defaults", "err", err)
		cfg = config.Defaults()
	}
	if cfg.Flags&config.FlagVerbose != 0 {
		logger.SetLevel(slog.LevelDebug)
	}

	km := loadKeymap(store, &cfg)

	scanner, err := matrix.New(board.MatrixConfig())
	if err != nil {
		halt("matrix wiring", err, blinkConfig)
	}

	k, err := keyboard.New(keyboard.Config{
		Scanner:           scanner,
		Keymap:            km,
		Transport:         transport,
		DebounceThreshold: cfg.DebounceThreshold,
		Custom:            custom,
	})
	if err != nil {
		halt("keyboard config", err, blinkConfig)
	}
	kb = k

	handler := protocol.NewHandler(store, k)
	handler.OnBootloader(machine.EnterBootloader)
	handler.OnMissingKeymap(board.Default)

	console := serial.NewSerial(machine.Serial, handler, k)
	console.OnIdle(func() { time.Sleep(time.Millisecond) })
	go console.Handle()

	tickUs = uint32(cfg.ScanPeriodUs)
	if err := arm.SetupSystemTimer(machine.CPUFrequency() / (1000000 / uint32(cfg.ScanPeriodUs))); err != nil {
		halt("scan timer", err, blinkTimer)
	}
	logger.LogInfo(logger.ComponentKeyboard, "running",
		"rows", board.Rows, "cols", board.Cols, "layers", km.LayerCount, "scan_us", cfg.ScanPeriodUs)

	var panel *display.Manager
	if cfg.Flags&config.FlagDisplayOff == 0 {
		panel = display.NewManager()
	}

	var lastDraw uint32
	configured := false
	for {
		now := nowMs.Load()
		k.Process(now)

		if c := machine.USBDev.InitEndpointComplete; c != configured {
			configured = c
			transport.SetConnected(c)
			logger.LogInfo(logger.ComponentUSB, "link", "up", c)
		}

		if now-lastDraw >= 100 {
			lastDraw = now
			cmd, handled := handler.LastCmd()
			panel.Show(display.Render(display.Status{
				Stats:     k.Stats(),
				LEDs:      transport.LEDs(),
				Connected: transport.Connected(),
				LastCmd:   cmd,
				Handled:   handled,
			}))
		}

		time.Sleep(time.Millisecond)
	}
}

// loadKeymap returns the active stored keymap, or the built-in one when the
// slot is empty or unreadable.
func loadKeymap(store *storage.Manager, cfg *config.DeviceConfig) *layout.Keymap {
	var profile config.KeymapProfile
	err := store.LoadKeymap(cfg.ActiveKeymap, &profile)
	if err == nil && (profile.Keymap.Rows != board.Rows || profile.Keymap.Cols != board.Cols) {
		err = keyboard.ErrKeymapSize
	}
	if err == nil {
		err = profile.Keymap.Validate()
	}

	km := &profile.Keymap
	if err != nil {
		logger.LogInfo(logger.ComponentKeymap, "using built-in keymap", "slot", cfg.ActiveKeymap, "reason", err)
		km = board.Default()
	} else {
		logger.LogInfo(logger.ComponentKeymap, "loaded keymap", "slot", cfg.ActiveKeymap, "name", profile.GetName())
	}
	cfg.Apply(km)
	return km
}

// custom handles Custom actions. Bootloader entry waits for the release so
// the host sees the key go up first.
func custom(code uint8, pressed bool) {
	switch code {
	case board.CustomBootloader:
		if !pressed {
			machine.EnterBootloader()
		}
	default:
		logger.LogDebug(logger.ComponentKeyboard, "custom action", "code", code, "pressed", pressed)
	}
}

// halt logs a fatal error and blinks the status LED count times, forever.
func halt(msg string, err error, count int) {
	logger.LogError(logger.ComponentKeyboard, msg, "err", err)

	led := board.StatusLED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		for i := 0; i < count; i++ {
			led.High()
			time.Sleep(150 * time.Millisecond)
			led.Low()
			time.Sleep(150 * time.Millisecond)
		}
		time.Sleep(time.Second)
	}
}
