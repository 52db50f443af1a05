// Package keys defines USB HID keyboard usage codes and the modifier bitmask
// carried in the first byte of a keyboard report.
package keys

// Code is a usage ID on the HID keyboard/keypad page (0x07).
type Code uint8

// Modifier is the report modifier byte, one bit per modifier key.
type Modifier uint8

const (
	ModLCtrl  Modifier = 1 << 0
	ModLShift Modifier = 1 << 1
	ModLAlt   Modifier = 1 << 2
	ModLGui   Modifier = 1 << 3
	ModRCtrl  Modifier = 1 << 4
	ModRShift Modifier = 1 << 5
	ModRAlt   Modifier = 1 << 6
	ModRGui   Modifier = 1 << 7
)

const (
	No Code = 0x00

	A Code = 0x04
	B Code = 0x05
	C Code = 0x06
	D Code = 0x07
	E Code = 0x08
	F Code = 0x09
	G Code = 0x0A
	H Code = 0x0B
	I Code = 0x0C
	J Code = 0x0D
	K Code = 0x0E
	L Code = 0x0F
	M Code = 0x10
	N Code = 0x11
	O Code = 0x12
	P Code = 0x13
	Q Code = 0x14
	R Code = 0x15
	S Code = 0x16
	T Code = 0x17
	U Code = 0x18
	V Code = 0x19
	W Code = 0x1A
	X Code = 0x1B
	Y Code = 0x1C
	Z Code = 0x1D

	Kb1 Code = 0x1E
	Kb2 Code = 0x1F
	Kb3 Code = 0x20
	Kb4 Code = 0x21
	Kb5 Code = 0x22
	Kb6 Code = 0x23
	Kb7 Code = 0x24
	Kb8 Code = 0x25
	Kb9 Code = 0x26
	Kb0 Code = 0x27

	Enter       Code = 0x28
	Escape      Code = 0x29
	BSpace      Code = 0x2A
	Tab         Code = 0x2B
	Space       Code = 0x2C
	Minus       Code = 0x2D
	Equal       Code = 0x2E
	LBracket    Code = 0x2F
	RBracket    Code = 0x30
	Bslash      Code = 0x31
	NonUsHash   Code = 0x32
	SColon      Code = 0x33
	Quote       Code = 0x34
	Grave       Code = 0x35
	Comma       Code = 0x36
	Dot         Code = 0x37
	Slash       Code = 0x38
	CapsLock    Code = 0x39
	F1          Code = 0x3A
	F2          Code = 0x3B
	F3          Code = 0x3C
	F4          Code = 0x3D
	F5          Code = 0x3E
	F6          Code = 0x3F
	F7          Code = 0x40
	F8          Code = 0x41
	F9          Code = 0x42
	F10         Code = 0x43
	F11         Code = 0x44
	F12         Code = 0x45
	PScreen     Code = 0x46
	ScrollLock  Code = 0x47
	Pause       Code = 0x48
	Insert      Code = 0x49
	Home        Code = 0x4A
	PgUp        Code = 0x4B
	Delete      Code = 0x4C
	End         Code = 0x4D
	PgDown      Code = 0x4E
	Right       Code = 0x4F
	Left        Code = 0x50
	Down        Code = 0x51
	Up          Code = 0x52
	NumLock     Code = 0x53
	NonUsBslash Code = 0x64
	Application Code = 0x65
	Mute        Code = 0x7F
	VolUp       Code = 0x80
	VolDown     Code = 0x81

	LCtrl  Code = 0xE0
	LShift Code = 0xE1
	LAlt   Code = 0xE2
	LGui   Code = 0xE3
	RCtrl  Code = 0xE4
	RShift Code = 0xE5
	RAlt   Code = 0xE6
	RGui   Code = 0xE7

	// Media usages in the vendor range above the modifiers, as understood by
	// Linux and macOS hosts on the keyboard page.
	MediaPlayPause Code = 0xE8
	MediaStop      Code = 0xE9
	MediaPrevSong  Code = 0xEA
	MediaNextSong  Code = 0xEB
)

// IsModifier reports whether c is one of the eight modifier usages.
func (c Code) IsModifier() bool {
	return c >= LCtrl && c <= RGui
}

// Modifier returns the modifier bit for c, or 0 when c is not a modifier.
func (c Code) Modifier() Modifier {
	if !c.IsModifier() {
		return 0
	}
	return Modifier(1) << (c - LCtrl)
}
