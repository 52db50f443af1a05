package keys

import "testing"

func TestModifierBits(t *testing.T) {
	tests := []struct {
		code     Code
		expected Modifier
	}{
		{LCtrl, ModLCtrl},
		{LShift, ModLShift},
		{LAlt, ModLAlt},
		{LGui, ModLGui},
		{RCtrl, ModRCtrl},
		{RShift, ModRShift},
		{RAlt, ModRAlt},
		{RGui, ModRGui},
		{A, 0},
		{MediaPlayPause, 0},
	}

	for _, tt := range tests {
		if got := tt.code.Modifier(); got != tt.expected {
			t.Errorf("Code 0x%02X: expected modifier 0x%02X, got 0x%02X", uint8(tt.code), uint8(tt.expected), uint8(got))
		}
		if tt.code.IsModifier() != (tt.expected != 0) {
			t.Errorf("Code 0x%02X: IsModifier mismatch", uint8(tt.code))
		}
	}
}
