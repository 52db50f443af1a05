package keymapfile

import (
	"strings"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
)

// keyNames maps lower-case names to usages. Single characters name the key
// that types them on a US layout.
var keyNames = map[string]keys.Code{
	"a": keys.A, "b": keys.B, "c": keys.C, "d": keys.D, "e": keys.E,
	"f": keys.F, "g": keys.G, "h": keys.H, "i": keys.I, "j": keys.J,
	"k": keys.K, "l": keys.L, "m": keys.M, "n": keys.N, "o": keys.O,
	"p": keys.P, "q": keys.Q, "r": keys.R, "s": keys.S, "t": keys.T,
	"u": keys.U, "v": keys.V, "w": keys.W, "x": keys.X, "y": keys.Y,
	"z": keys.Z,

	"1": keys.Kb1, "2": keys.Kb2, "3": keys.Kb3, "4": keys.Kb4, "5": keys.Kb5,
	"6": keys.Kb6, "7": keys.Kb7, "8": keys.Kb8, "9": keys.Kb9, "0": keys.Kb0,
	"kb1": keys.Kb1, "kb2": keys.Kb2, "kb3": keys.Kb3, "kb4": keys.Kb4, "kb5": keys.Kb5,
	"kb6": keys.Kb6, "kb7": keys.Kb7, "kb8": keys.Kb8, "kb9": keys.Kb9, "kb0": keys.Kb0,

	"enter": keys.Enter, "ret": keys.Enter,
	"escape": keys.Escape, "esc": keys.Escape,
	"bspace": keys.BSpace, "backspace": keys.BSpace,
	"tab":   keys.Tab,
	"space": keys.Space, "spc": keys.Space,
	"minus": keys.Minus, "-": keys.Minus,
	"equal": keys.Equal, "=": keys.Equal,
	"lbracket": keys.LBracket, "[": keys.LBracket,
	"rbracket": keys.RBracket, "]": keys.RBracket,
	"bslash": keys.Bslash, "\\": keys.Bslash,
	"nonushash": keys.NonUsHash,
	"scolon":    keys.SColon, ";": keys.SColon,
	"quote": keys.Quote, "'": keys.Quote,
	"grave": keys.Grave, "`": keys.Grave,
	"comma": keys.Comma, ",": keys.Comma,
	"dot": keys.Dot, ".": keys.Dot,
	"slash": keys.Slash, "/": keys.Slash,
	"capslock": keys.CapsLock,

	"f1": keys.F1, "f2": keys.F2, "f3": keys.F3, "f4": keys.F4,
	"f5": keys.F5, "f6": keys.F6, "f7": keys.F7, "f8": keys.F8,
	"f9": keys.F9, "f10": keys.F10, "f11": keys.F11, "f12": keys.F12,

	"pscreen": keys.PScreen, "scrolllock": keys.ScrollLock, "pause": keys.Pause,
	"insert": keys.Insert, "home": keys.Home, "pgup": keys.PgUp,
	"delete": keys.Delete, "del": keys.Delete, "end": keys.End, "pgdown": keys.PgDown,
	"right": keys.Right, "left": keys.Left, "down": keys.Down, "up": keys.Up,
	"numlock": keys.NumLock, "nonusbslash": keys.NonUsBslash, "application": keys.Application,
	"mute": keys.Mute, "volup": keys.VolUp, "voldown": keys.VolDown,

	"lctrl": keys.LCtrl, "lshift": keys.LShift, "lalt": keys.LAlt, "lgui": keys.LGui,
	"rctrl": keys.RCtrl, "rshift": keys.RShift, "ralt": keys.RAlt, "rgui": keys.RGui,

	"mediaplaypause": keys.MediaPlayPause, "mediastop": keys.MediaStop,
	"mediaprevsong": keys.MediaPrevSong, "medianextsong": keys.MediaNextSong,
}

// KeyCode looks up a key name, ignoring case.
func KeyCode(name string) (keys.Code, bool) {
	c, ok := keyNames[strings.ToLower(name)]
	return c, ok
}

// ModifierBit looks up a modifier key name such as LShift.
func ModifierBit(name string) (keys.Modifier, bool) {
	c, ok := KeyCode(name)
	if !ok || !c.IsModifier() {
		return 0, false
	}
	return c.Modifier(), true
}
