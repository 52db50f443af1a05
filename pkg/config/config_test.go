package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

func TestDeviceConfigMarshalUnmarshal(t *testing.T) {
	original := DeviceConfig{
		Version:           CurrentVersion,
		Flags:             0x12345678,
		ActiveKeymap:      5,
		DebounceThreshold: 7,
		TapHoldTimeoutMs:  180,
		ScanPeriodUs:      500,
	}

	// Marshal
	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	if len(data) != DeviceConfigSize {
		t.Errorf("Expected %d bytes, got %d", DeviceConfigSize, len(data))
	}

	// Unmarshal
	var decoded DeviceConfig
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}

	if decoded != original {
		t.Errorf("Expected %+v, got %+v", original, decoded)
	}
}

func TestDeviceConfigValidate(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("Defaults should be valid, got %v", err)
	}

	tests := []struct {
		name   string
		modify func(d *DeviceConfig)
	}{
		{"zero debounce", func(d *DeviceConfig) { d.DebounceThreshold = 0 }},
		{"scan too fast", func(d *DeviceConfig) { d.ScanPeriodUs = 100 }},
		{"scan too slow", func(d *DeviceConfig) { d.ScanPeriodUs = 20000 }},
	}
	for _, tt := range tests {
		d := Defaults()
		tt.modify(&d)
		if err := d.Validate(); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("%s: expected ErrInvalidValue, got %v", tt.name, err)
		}
	}
}

func TestDeviceConfigApply(t *testing.T) {
	km := &layout.Keymap{Rows: 1, Cols: 1, LayerCount: 1}
	km.AddHoldTap(layout.HoldTap{Tap: layout.Key(keys.A), Hold: layout.Key(keys.LCtrl), Timeout: 200})
	km.AddHoldTap(layout.HoldTap{Tap: layout.Key(keys.B), Hold: layout.Key(keys.LAlt), Timeout: 300})

	d := Defaults()
	d.Apply(km)
	if km.HoldTaps[0].Timeout != 200 {
		t.Errorf("Expected timeout untouched without override, got %d", km.HoldTaps[0].Timeout)
	}

	d.TapHoldTimeoutMs = 150
	d.Apply(km)
	for i := 0; i < 2; i++ {
		if km.HoldTaps[i].Timeout != 150 {
			t.Errorf("HoldTaps[%d]: expected timeout 150, got %d", i, km.HoldTaps[i].Timeout)
		}
	}
}

func testProfile() KeymapProfile {
	p := KeymapProfile{Version: CurrentVersion}
	p.SetName("Test Keymap")
	km := &p.Keymap
	km.Rows, km.Cols, km.LayerCount = 2, 3, 2
	ht, _ := km.AddHoldTap(layout.HoldTap{Tap: layout.Key(keys.Space), Hold: layout.Momentary(1), Timeout: 200, TapHoldInterval: 150})
	km.SetRow(0, 0, layout.Key(keys.A), layout.Chord(keys.ModLShift, keys.Kb1), ht)
	km.SetRow(0, 1, layout.Toggle(1), layout.Default(0), layout.CustomCode(9))
	km.Set(1, matrix.Position{Row: 1, Col: 2}, layout.Mod(keys.ModRAlt|keys.ModRCtrl))
	return p
}

func TestKeymapProfileMarshalUnmarshal(t *testing.T) {
	original := testProfile()

	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	expectedSize := KeymapHeaderSize + 2*6*4 + 1*12
	if len(data) != expectedSize || original.Size() != expectedSize {
		t.Errorf("Expected %d bytes, got %d (Size %d)", expectedSize, len(data), original.Size())
	}

	var decoded KeymapProfile
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}

	if decoded != original {
		t.Error("Decoded profile differs from the original")
	}
	if decoded.GetName() != "Test Keymap" {
		t.Errorf("Name: expected 'Test Keymap', got '%s'", decoded.GetName())
	}
	if ht := decoded.Keymap.HoldTaps[0]; ht.Timeout != 200 || ht.TapHoldInterval != 150 {
		t.Errorf("Hold-tap: expected timeout 200 interval 150, got %d and %d", ht.Timeout, ht.TapHoldInterval)
	}
	if err := decoded.Keymap.Validate(); err != nil {
		t.Errorf("Decoded keymap should validate, got %v", err)
	}
}

func TestKeymapProfileMarshalWriter(t *testing.T) {
	p := testProfile()

	var buf bytes.Buffer
	n, err := p.Marshal(&buf)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if n != p.Size() || buf.Len() != p.Size() {
		t.Errorf("Expected %d bytes written, got %d (buffer %d)", p.Size(), n, buf.Len())
	}

	var decoded KeymapProfile
	if err := decoded.Unmarshal(&buf); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Keymap.At(0, matrix.Position{Row: 0, Col: 1}) != layout.Chord(keys.ModLShift, keys.Kb1) {
		t.Error("Chord did not survive the round trip")
	}
}

func TestKeymapProfileRejects(t *testing.T) {
	p := testProfile()
	data, _ := p.MarshalBinary()

	var decoded KeymapProfile
	if err := decoded.UnmarshalBinary(data[:KeymapHeaderSize+5]); err != ErrInvalidSize {
		t.Errorf("Truncated body: expected ErrInvalidSize, got %v", err)
	}

	bad := append([]byte(nil), data...)
	bad[0] = 0x7F
	if err := decoded.UnmarshalBinary(bad); !errors.Is(err, ErrVersion) {
		t.Errorf("Wrong version: expected ErrVersion, got %v", err)
	}

	bad = append([]byte(nil), data...)
	bad[4] = layout.MaxLayers + 1
	if err := decoded.UnmarshalBinary(bad); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Too many layers: expected ErrInvalidValue, got %v", err)
	}

	p.Keymap.Rows = matrix.MaxRows + 1
	if _, err := p.MarshalBinary(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Marshal of oversized keymap: expected ErrInvalidValue, got %v", err)
	}
}

func TestKeymapProfileNameHandling(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Short", "Short"},
		{"ExactlyFifteen!", "ExactlyFifteen!"},                // 15 chars
		{"ThisIsAVeryLongNameThatExceeds", "ThisIsAVeryLong"}, // Truncated to 15
		{"", ""}, // Empty
	}

	for _, tt := range tests {
		p := KeymapProfile{}
		p.SetName("previous name that is long")
		p.SetName(tt.name)

		result := p.GetName()
		if result != tt.expected {
			t.Errorf("SetName('%s'): expected '%s', got '%s'", tt.name, tt.expected, result)
		}
	}
}

func TestUnmarshalInvalidSize(t *testing.T) {
	var profile KeymapProfile
	err := profile.UnmarshalBinary([]byte{1, 2, 3}) // Too short
	if err != ErrInvalidSize {
		t.Errorf("Expected ErrInvalidSize, got %v", err)
	}

	var device DeviceConfig
	err = device.UnmarshalBinary([]byte{1, 2}) // Too short
	if err != ErrInvalidSize {
		t.Errorf("Expected ErrInvalidSize, got %v", err)
	}
}

func fullProfile() KeymapProfile {
	p := KeymapProfile{Version: CurrentVersion}
	p.SetName("Benchmark")
	km := &p.Keymap
	km.Rows, km.Cols, km.LayerCount = matrix.MaxRows, matrix.MaxCols, layout.MaxLayers
	for layer := 0; layer < layout.MaxLayers; layer++ {
		for idx := 0; idx < matrix.MaxKeys; idx++ {
			km.Layers[layer][idx] = layout.Key(keys.A + keys.Code(idx%26))
		}
	}
	return p
}

func TestMaxKeymapSize(t *testing.T) {
	p := fullProfile()
	p.Keymap.HoldTapCount = layout.MaxHoldTaps
	if p.Size() != MaxKeymapSize {
		t.Errorf("Expected %d, got %d", MaxKeymapSize, p.Size())
	}
}

func BenchmarkKeymapProfileMarshal(b *testing.B) {
	p := fullProfile()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.MarshalBinary(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkKeymapProfileUnmarshal(b *testing.B) {
	p := fullProfile()
	data, _ := p.MarshalBinary()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var decoded KeymapProfile
		if err := decoded.UnmarshalBinary(data); err != nil {
			b.Fatal(err)
		}
	}
}
