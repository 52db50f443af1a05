// Package config defines the persisted configuration: the device settings
// and the keymap profiles. Both have fixed little-endian binary layouts so
// the firmware and the host tools share one codec.
package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// CurrentVersion is the config format version.
// Bump this when making breaking changes to the config format.
// When firmware boots and finds a different version in flash, configs are wiped.
const CurrentVersion uint16 = 3

// Errors
var (
	ErrInvalidSize  = errors.New("invalid config size")
	ErrVersion      = errors.New("unsupported config version")
	ErrInvalidValue = errors.New("config value out of range")
)

// Device flags.
const (
	FlagDisplayOff uint32 = 1 << 0 // leave the status display dark
	FlagVerbose    uint32 = 1 << 1 // debug level logging on UART
)

// DeviceConfigSize is the encoded size of DeviceConfig.
const DeviceConfigSize = 12

// Device global settings.
// Total size: 12 bytes
// Layout:
//
//	[0-1]:   Version (uint16)
//	[2-5]:   Flags (uint32)
//	[6]:     ActiveKeymap (uint8)
//	[7]:     DebounceThreshold (uint8)
//	[8-9]:   TapHoldTimeoutMs (uint16)
//	[10-11]: ScanPeriodUs (uint16)
type DeviceConfig struct {
	Version           uint16
	Flags             uint32
	ActiveKeymap      uint8  // keymap slot loaded on boot
	DebounceThreshold uint8  // consecutive agreeing scans
	TapHoldTimeoutMs  uint16 // overrides every hold-tap timeout when non-zero
	ScanPeriodUs      uint16 // matrix scan period
}

// Defaults returns the settings used when flash holds none.
func Defaults() DeviceConfig {
	return DeviceConfig{
		Version:           CurrentVersion,
		DebounceThreshold: 5,
		ScanPeriodUs:      1000,
	}
}

// Validate rejects settings the firmware cannot run with.
func (d *DeviceConfig) Validate() error {
	if d.DebounceThreshold == 0 {
		return fmt.Errorf("%w: debounce threshold 0", ErrInvalidValue)
	}
	if d.ScanPeriodUs < 250 || d.ScanPeriodUs > 10000 {
		return fmt.Errorf("%w: scan period %dus", ErrInvalidValue, d.ScanPeriodUs)
	}
	return nil
}

// Apply writes the device-wide overrides into km.
func (d *DeviceConfig) Apply(km *layout.Keymap) {
	if d.TapHoldTimeoutMs == 0 {
		return
	}
	for i := 0; i < int(km.HoldTapCount); i++ {
		km.HoldTaps[i].Timeout = d.TapHoldTimeoutMs
	}
}

// MarshalBinary implements encoding.BinaryMarshaler for DeviceConfig.
func (d *DeviceConfig) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DeviceConfigSize)
	binary.LittleEndian.PutUint16(buf[0:], d.Version)
	binary.LittleEndian.PutUint32(buf[2:], d.Flags)
	buf[6] = d.ActiveKeymap
	buf[7] = d.DebounceThreshold
	binary.LittleEndian.PutUint16(buf[8:], d.TapHoldTimeoutMs)
	binary.LittleEndian.PutUint16(buf[10:], d.ScanPeriodUs)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for DeviceConfig.
func (d *DeviceConfig) UnmarshalBinary(data []byte) error {
	if len(data) < DeviceConfigSize {
		return ErrInvalidSize
	}

	d.Version = binary.LittleEndian.Uint16(data[0:])
	d.Flags = binary.LittleEndian.Uint32(data[2:])
	d.ActiveKeymap = data[6]
	d.DebounceThreshold = data[7]
	d.TapHoldTimeoutMs = binary.LittleEndian.Uint16(data[8:])
	d.ScanPeriodUs = binary.LittleEndian.Uint16(data[10:])
	return nil
}

// Keymap profile encoding sizes.
const (
	KeymapHeaderSize = 24
	actionSize       = 4
	holdTapSize      = 2*actionSize + 4

	// MaxKeymapSize is the encoded size of the largest possible keymap.
	MaxKeymapSize = KeymapHeaderSize +
		layout.MaxLayers*matrix.MaxKeys*actionSize +
		layout.MaxHoldTaps*holdTapSize
)

// KeymapProfile is one stored keymap.
// Layout:
//
//	[0-1]:   Version (uint16)
//	[2]:     Rows
//	[3]:     Cols
//	[4]:     LayerCount
//	[5]:     HoldTapCount
//	[6-21]:  Name ([16]byte)
//	[22-23]: Reserved
//	then LayerCount*Rows*Cols actions of 4 bytes [Kind][Code][Mods][Arg],
//	then HoldTapCount hold-taps of 12 bytes
//	[Tap:4][Hold:4][Timeout:2][TapHoldInterval:2].
type KeymapProfile struct {
	Version uint16
	Name    [16]byte // UTF-8 name (null-terminated if shorter)
	Keymap  layout.Keymap
}

// Size returns the encoded size of p.
func (p *KeymapProfile) Size() int {
	km := &p.Keymap
	return KeymapHeaderSize +
		int(km.LayerCount)*km.Keys()*actionSize +
		int(km.HoldTapCount)*holdTapSize
}

func (p *KeymapProfile) checkShape() error {
	km := &p.Keymap
	if km.Rows == 0 || km.Cols == 0 || km.Rows > matrix.MaxRows || km.Cols > matrix.MaxCols ||
		km.LayerCount > layout.MaxLayers || km.HoldTapCount > layout.MaxHoldTaps {
		return fmt.Errorf("%w: %dx%d, %d layers, %d hold-taps", ErrInvalidValue,
			km.Rows, km.Cols, km.LayerCount, km.HoldTapCount)
	}
	return nil
}

func putAction(b []byte, a layout.Action) {
	b[0] = uint8(a.Kind)
	b[1] = uint8(a.Code)
	b[2] = uint8(a.Mods)
	b[3] = a.Arg
}

func getAction(b []byte) layout.Action {
	return layout.Action{
		Kind: layout.Kind(b[0]),
		Code: keys.Code(b[1]),
		Mods: keys.Modifier(b[2]),
		Arg:  b[3],
	}
}

// Marshal writes the profile to w in binary format.
// Returns the number of bytes written.
func (p *KeymapProfile) Marshal(w io.Writer) (int, error) {
	if err := p.checkShape(); err != nil {
		return 0, err
	}
	km := &p.Keymap

	var header [KeymapHeaderSize]byte
	binary.LittleEndian.PutUint16(header[0:], p.Version)
	header[2] = km.Rows
	header[3] = km.Cols
	header[4] = km.LayerCount
	header[5] = km.HoldTapCount
	copy(header[6:22], p.Name[:])

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}

	var b [holdTapSize]byte
	for layer := 0; layer < int(km.LayerCount); layer++ {
		for idx := 0; idx < km.Keys(); idx++ {
			putAction(b[:], km.Layers[layer][idx])
			m, err := w.Write(b[:actionSize])
			n += m
			if err != nil {
				return n, err
			}
		}
	}

	for i := 0; i < int(km.HoldTapCount); i++ {
		ht := km.HoldTaps[i]
		putAction(b[0:], ht.Tap)
		putAction(b[actionSize:], ht.Hold)
		binary.LittleEndian.PutUint16(b[2*actionSize:], ht.Timeout)
		binary.LittleEndian.PutUint16(b[2*actionSize+2:], ht.TapHoldInterval)
		m, err := w.Write(b[:])
		n += m
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// Unmarshal reads the profile from r in binary format. The keymap is
// checked for shape only; callers run layout.Keymap.Validate before use.
func (p *KeymapProfile) Unmarshal(r io.Reader) error {
	var header [KeymapHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return shortRead(err)
	}

	*p = KeymapProfile{}
	p.Version = binary.LittleEndian.Uint16(header[0:])
	if p.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrVersion, p.Version)
	}
	km := &p.Keymap
	km.Rows = header[2]
	km.Cols = header[3]
	km.LayerCount = header[4]
	km.HoldTapCount = header[5]
	copy(p.Name[:], header[6:22])
	if err := p.checkShape(); err != nil {
		return err
	}

	var b [holdTapSize]byte
	for layer := 0; layer < int(km.LayerCount); layer++ {
		for idx := 0; idx < km.Keys(); idx++ {
			if _, err := io.ReadFull(r, b[:actionSize]); err != nil {
				return shortRead(err)
			}
			km.Layers[layer][idx] = getAction(b[:])
		}
	}

	for i := 0; i < int(km.HoldTapCount); i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return shortRead(err)
		}
		km.HoldTaps[i] = layout.HoldTap{
			Tap:     getAction(b[0:]),
			Hold:    getAction(b[actionSize:]),
			Timeout: binary.LittleEndian.Uint16(b[2*actionSize:]),

			TapHoldInterval: binary.LittleEndian.Uint16(b[2*actionSize+2:]),
		}
	}

	return nil
}

func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrInvalidSize
	}
	return err
}

// MarshalBinary implements encoding.BinaryMarshaler for KeymapProfile.
func (p *KeymapProfile) MarshalBinary() ([]byte, error) {
	if err := p.checkShape(); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, p.Size()))
	if _, err := p.Marshal(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for KeymapProfile.
func (p *KeymapProfile) UnmarshalBinary(data []byte) error {
	if len(data) < KeymapHeaderSize {
		return ErrInvalidSize
	}
	return p.Unmarshal(bytes.NewReader(data))
}

// GetName returns the profile name as a string (up to null terminator).
func (p *KeymapProfile) GetName() string {
	for i, b := range p.Name {
		if b == 0 {
			return string(p.Name[:i])
		}
	}
	return string(p.Name[:])
}

// SetName sets the profile name from a string.
// If the name is longer than 15 bytes, it is truncated.
// The name is always null-terminated.
func (p *KeymapProfile) SetName(name string) {
	b := []byte(name)
	if len(b) > 15 {
		b = b[:15]
	}
	p.Name = [16]byte{}
	copy(p.Name[:], b)
}
