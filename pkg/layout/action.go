package layout

import "github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"

// Kind tags the Action variant.
type Kind uint8

const (
	// Transparent falls through to the next lower active layer. It is the
	// zero value so an unset keymap entry is transparent.
	Transparent Kind = iota
	// NoOp swallows the key without falling through.
	NoOp
	// Keycode sends Code, with Mods held for as long as the key is down.
	Keycode
	// Modifier holds Mods.
	Modifier
	// LayerMomentary activates layer Arg while the key is held.
	LayerMomentary
	// LayerToggle flips layer Arg on press.
	LayerToggle
	// DefaultLayer replaces the base layer with Arg on press.
	DefaultLayer
	// TapHold defers to Keymap.HoldTaps[Arg].
	TapHold
	// Custom reports Arg to the firmware on press and release.
	Custom

	kindCount
)

func (k Kind) String() string {
	switch k {
	case Transparent:
		return "transparent"
	case NoOp:
		return "noop"
	case Keycode:
		return "keycode"
	case Modifier:
		return "modifier"
	case LayerMomentary:
		return "momentary"
	case LayerToggle:
		return "toggle"
	case DefaultLayer:
		return "default"
	case TapHold:
		return "taphold"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Action is what a keymap entry does. It is four bytes and holds no
// pointers so keymaps can live in static tables and be stored verbatim.
type Action struct {
	Kind Kind
	Code keys.Code
	Mods keys.Modifier
	Arg  uint8
}

// Trans and None are the two actions that send nothing.
var (
	Trans = Action{Kind: Transparent}
	None  = Action{Kind: NoOp}
)

// Key sends a single usage. Modifier usages (LShift etc.) are allowed.
func Key(c keys.Code) Action {
	return Action{Kind: Keycode, Code: c}
}

// Chord sends c with mods held, e.g. Chord(keys.ModLShift, keys.Kb1) for '!'.
func Chord(mods keys.Modifier, c keys.Code) Action {
	return Action{Kind: Keycode, Code: c, Mods: mods}
}

// Mod holds mods.
func Mod(mods keys.Modifier) Action {
	return Action{Kind: Modifier, Mods: mods}
}

// Momentary activates layer while held.
func Momentary(layer uint8) Action {
	return Action{Kind: LayerMomentary, Arg: layer}
}

// Toggle flips layer on each press.
func Toggle(layer uint8) Action {
	return Action{Kind: LayerToggle, Arg: layer}
}

// Default makes layer the base layer.
func Default(layer uint8) Action {
	return Action{Kind: DefaultLayer, Arg: layer}
}

// HoldTapAt references Keymap.HoldTaps[index].
func HoldTapAt(index uint8) Action {
	return Action{Kind: TapHold, Arg: index}
}

// CustomCode reports code to the firmware's custom handler.
func CustomCode(code uint8) Action {
	return Action{Kind: Custom, Arg: code}
}

// HoldTap is a key that acts as Tap when pressed briefly and as Hold when
// held past Timeout milliseconds or interrupted by another key press.
//
// A press less than TapHoldInterval milliseconds after a tap of the same key
// is the Tap at once, so holding it auto-repeats. Zero disables this.
type HoldTap struct {
	Tap             Action
	Hold            Action
	Timeout         uint16
	TapHoldInterval uint16
}
