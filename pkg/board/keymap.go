// Package board holds the Narwhal wiring and its built-in keymap. The
// built-in keymap is used when flash holds none.
package board

import (
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
)

// Matrix dimensions. Rows 0-4 are the left half, rows 5-9 the right half.
const (
	Rows = 10
	Cols = 7
)

// Custom action codes.
const (
	CustomBootloader uint8 = 0
)

// Layers of the built-in keymap.
const (
	LayerBase uint8 = iota
	LayerSymbols
	LayerNav
	LayerFunction
	LayerQwerty
)

// Hold-tap timing of the built-in keymap in ms.
const (
	HoldTimeout  = 200
	HoldInterval = 200
)

func k(c keys.Code) layout.Action { return layout.Key(c) }

// s is c with left shift.
func s(c keys.Code) layout.Action { return layout.Chord(keys.ModLShift, c) }

// a is c with AltGr.
func a(c keys.Code) layout.Action { return layout.Chord(keys.ModRAlt, c) }

func mo(l uint8) layout.Action { return layout.Momentary(l) }

// Default builds the built-in keymap: a Neo-style base layer, symbols,
// navigation with a number pad, function keys with media and bootloader,
// and a QWERTY gaming layer selected as the default layer.
func Default() *layout.Keymap {
	km := &layout.Keymap{Rows: Rows, Cols: Cols, LayerCount: 5}
	t, n := layout.Trans, layout.None

	holdTap := func(tap, hold layout.Action) layout.Action {
		act, err := km.AddHoldTap(layout.HoldTap{Tap: tap, Hold: hold, Timeout: HoldTimeout, TapHoldInterval: HoldInterval})
		if err != nil {
			panic(err)
		}
		return act
	}
	shiftSpace := holdTap(k(keys.Space), k(keys.LShift))
	ctrlTab := holdTap(k(keys.Tab), k(keys.LCtrl))
	altEnter := holdTap(k(keys.Enter), k(keys.LAlt))
	playNext := holdTap(k(keys.MediaPlayPause), k(keys.MediaNextSong))
	boot := layout.CustomCode(CustomBootloader)

	layers := [5][Rows][Cols]layout.Action{
		LayerBase: {
			// left half
			{n, n, k(keys.Kb1), k(keys.Kb2), k(keys.Kb3), k(keys.Kb4), k(keys.Kb5)},
			{n, k(keys.J), k(keys.Y), k(keys.Z), k(keys.U), k(keys.A), k(keys.Q)},
			{mo(LayerSymbols), n, k(keys.C), k(keys.S), k(keys.I), k(keys.E), k(keys.O)},
			{k(keys.LGui), k(keys.V), k(keys.X), k(keys.LBracket), k(keys.Quote), k(keys.SColon), n},
			{t, t, t, t, mo(LayerNav), k(keys.LShift), ctrlTab},
			// right half
			{k(keys.Kb6), k(keys.Kb7), k(keys.Kb8), k(keys.Kb9), k(keys.Kb0), n, n},
			{k(keys.P), k(keys.B), k(keys.M), k(keys.L), k(keys.F), k(keys.Minus), n},
			{k(keys.D), k(keys.T), k(keys.N), k(keys.R), k(keys.H), n, mo(LayerSymbols)},
			{n, k(keys.W), k(keys.G), k(keys.Comma), k(keys.Dot), k(keys.K), k(keys.LGui)},
			{altEnter, shiftSpace, mo(LayerNav), t, t, t, t},
		},
		LayerSymbols: {
			{t, t, t, t, t, t, t},
			{t, t, a(keys.E), s(keys.Slash), a(keys.Kb8), a(keys.Kb9), k(keys.Grave)},
			{t, n, a(keys.Minus), s(keys.Kb7), a(keys.Kb7), a(keys.Kb0), s(keys.RBracket)},
			{t, k(keys.NonUsHash), s(keys.Kb4), a(keys.NonUsBslash), a(keys.RBracket), s(keys.Equal), t},
			{t, t, t, t, mo(LayerFunction), t, t},

			{t, t, t, t, t, t, t},
			{s(keys.Kb1), k(keys.NonUsBslash), s(keys.NonUsBslash), s(keys.Kb0), s(keys.Kb6), a(keys.Q), t},
			{s(keys.Minus), s(keys.Kb8), s(keys.Kb9), k(keys.Slash), s(keys.Dot), n, t},
			{n, k(keys.RBracket), s(keys.Kb5), s(keys.Kb2), s(keys.NonUsHash), s(keys.Comma), t},
			{t, t, mo(LayerFunction), t, t, t, t},
		},
		LayerNav: {
			{t, t, t, t, t, t, t},
			{t, t, k(keys.PgUp), k(keys.BSpace), k(keys.Up), k(keys.Delete), k(keys.PgDown)},
			{mo(LayerFunction), n, k(keys.Home), k(keys.Left), k(keys.Down), k(keys.Right), k(keys.End)},
			{t, t, k(keys.Escape), k(keys.Tab), n, k(keys.Enter), n},
			{t, t, t, t, t, t, t},

			{t, t, t, t, t, t, t},
			{n, k(keys.Kb7), k(keys.Kb8), k(keys.Kb9), k(keys.RBracket), k(keys.Slash), t},
			{n, k(keys.Kb4), k(keys.Kb5), k(keys.Kb6), k(keys.Dot), n, s(keys.RBracket)},
			{n, k(keys.Kb0), k(keys.Kb1), k(keys.Kb2), k(keys.Kb3), k(keys.Comma), s(keys.Kb7)},
			{t, t, t, t, t, t, t},
		},
		LayerFunction: {
			{t, t, t, t, t, t, t},
			{boot, n, n, n, n, k(keys.VolUp), n},
			{t, n, n, n, n, playNext, n},
			{t, n, n, n, n, k(keys.VolDown), n},
			{t, t, t, t, t, t, t},

			{t, t, t, t, t, t, t},
			{k(keys.F12), k(keys.F7), k(keys.F8), k(keys.F9), n, n, boot},
			{k(keys.F11), k(keys.F4), k(keys.F5), k(keys.F6), n, n, t},
			{n, k(keys.F10), k(keys.F1), k(keys.F2), k(keys.F3), n, t},
			{t, t, layout.Default(LayerQwerty), t, t, t, t},
		},
		LayerQwerty: {
			{t, t, t, t, t, t, t},
			{k(keys.Tab), n, k(keys.Q), k(keys.W), k(keys.E), k(keys.R), k(keys.T)},
			{k(keys.LCtrl), n, k(keys.A), k(keys.S), k(keys.D), k(keys.F), k(keys.G)},
			{k(keys.LShift), k(keys.Z), k(keys.X), k(keys.C), k(keys.V), k(keys.B), n},
			{n, n, n, n, k(keys.LGui), k(keys.LCtrl), k(keys.LAlt)},

			{t, t, t, t, t, t, t},
			{k(keys.Y), k(keys.U), k(keys.I), k(keys.O), k(keys.P), k(keys.BSpace), t},
			{k(keys.H), k(keys.J), k(keys.K), k(keys.L), k(keys.SColon), n, k(keys.Quote)},
			{n, k(keys.N), k(keys.M), k(keys.Comma), k(keys.Dot), k(keys.Slash), k(keys.Escape)},
			{k(keys.Enter), k(keys.Space), layout.Default(LayerBase), n, n, n, n},
		},
	}

	for l := range layers {
		for row := range layers[l] {
			km.SetRow(uint8(l), uint8(row), layers[l][row][:]...)
		}
	}
	return km
}
