//go:build tinygo && !nodebug

// Package display drives the SSD1306 status panel: active layers, host LEDs,
// pipeline counters and the last configuration command.
//
// To build without display support (saves RAM and flash), use:
//
//	tinygo build -tags=nodebug -target=pico -o firmware.uf2 .
package display

import (
	"image/color"
	"machine"
	"time"

	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/logger"
)

const (
	// I2C configuration
	i2cAddress = 0x3C
	sclPin     = machine.GPIO1
	sdaPin     = machine.GPIO0

	screenWidth  = 128
	screenHeight = 64
	lineHeight   = screenHeight / Rows
	baseline     = 7
)

var (
	black = color.RGBA{0, 0, 0, 0}
	white = color.RGBA{255, 255, 255, 255}
)

// Manager owns the panel and redraws rows that changed.
type Manager struct {
	device *ssd1306.Device
	shown  Screen
}

// NewManager initializes the panel. It returns nil when the bus cannot be
// configured; every method accepts a nil Manager.
func NewManager() *Manager {
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 400000, // 400kHz fast mode
		SCL:       sclPin,
		SDA:       sdaPin,
	}); err != nil {
		logger.LogWarn(logger.ComponentDisplay, "i2c config failed", "err", err)
		return nil
	}

	// bus stabilization
	time.Sleep(10 * time.Millisecond)

	dev := ssd1306.NewI2C(i2c)
	dev.Configure(ssd1306.Config{
		Address: i2cAddress,
		Width:   screenWidth,
		Height:  screenHeight,
	})
	dev.ClearDisplay()

	return &Manager{device: dev}
}

// Show draws scr, touching only rows that differ from the last frame.
func (m *Manager) Show(scr Screen) {
	if m == nil {
		return
	}
	dirty := false
	for row, line := range scr {
		if m.shown[row] == line {
			continue
		}
		m.clearRow(row)
		tinyfont.WriteLine(m.device, &proggy.TinySZ8pt7b, 0, int16(row*lineHeight+baseline), line, white)
		m.shown[row] = line
		dirty = true
	}
	if dirty {
		m.device.Display()
	}
}

func (m *Manager) clearRow(row int) {
	yStart := int16(row * lineHeight)
	for y := yStart; y < yStart+lineHeight; y++ {
		for x := int16(0); x < screenWidth; x++ {
			m.device.SetPixel(x, y, black)
		}
	}
}
