// Package keymapfile reads keymaps written in HCL, the source format of the
// keymapc tool.
//
//	keymap "neo" {
//	  rows     = 2
//	  cols     = 3
//	  timeout  = 200
//	  interval = 200
//
//	  hold_tap "shift_space" {
//	    tap  = "Space"
//	    hold = "LShift"
//	  }
//
//	  layer "base" {
//	    keys = [
//	      ["A", "LShift+B", "ht:shift_space"],
//	      ["mo:nav", "_", "xx"],
//	    ]
//	  }
//	}
//
// Key tokens:
//
//	_ or trans          fall through to the layer below
//	xx or none          do nothing
//	A, Space, ;, F1     a key, see KeyCode
//	LCtrl+LShift+A      a key with modifiers
//	mo:L tg:L df:L      momentary, toggle and default layer; L is a layer
//	                    name or number
//	ht:NAME             a hold_tap block
//	custom:N            a firmware custom action
//
// timeout and interval may be set on the keymap and overridden per hold_tap.
// interval is the tap-hold interval: a press that soon after a tap repeats
// the tap. It is off unless set.
package keymapfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/config"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keys"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

// DefaultTimeout applies to hold-taps when neither the block nor the keymap
// sets one.
const DefaultTimeout = 200

var (
	ErrSyntax     = errors.New("keymap file syntax")
	ErrUnknownKey = errors.New("unknown key")
	ErrShape      = errors.New("keymap shape")
	ErrReference  = errors.New("unknown reference")
)

type fileSchema struct {
	Keymap keymapBlock `hcl:"keymap,block"`
}

type keymapBlock struct {
	Name     string          `hcl:"name,label"`
	Rows     int             `hcl:"rows"`
	Cols     int             `hcl:"cols"`
	Timeout  *int            `hcl:"timeout,optional"`
	Interval *int            `hcl:"interval,optional"`
	HoldTaps []*holdTapBlock `hcl:"hold_tap,block"`
	Layers   []*layerBlock   `hcl:"layer,block"`
}

type holdTapBlock struct {
	Name     string `hcl:"name,label"`
	Tap      string `hcl:"tap"`
	Hold     string `hcl:"hold"`
	Timeout  *int   `hcl:"timeout,optional"`
	Interval *int   `hcl:"interval,optional"`
}

type layerBlock struct {
	Name string         `hcl:"name,label"`
	Keys hcl.Expression `hcl:"keys"`
}

// ParseFile reads and compiles a keymap file.
func ParseFile(path string) (*config.KeymapProfile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(src, path)
}

// Parse compiles HCL source into a validated keymap profile. filename is
// only used in diagnostics.
func Parse(src []byte, filename string) (*config.KeymapProfile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, diags.Error())
	}

	var f fileSchema
	diags = gohcl.DecodeBody(file.Body, nil, &f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, diags.Error())
	}

	c, err := newCompiler(&f.Keymap)
	if err != nil {
		return nil, err
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	if err := c.km.Validate(); err != nil {
		return nil, err
	}

	profile := &config.KeymapProfile{Version: config.CurrentVersion, Keymap: *c.km}
	profile.SetName(f.Keymap.Name)
	return profile, nil
}

type compiler struct {
	src      *keymapBlock
	km       *layout.Keymap
	layers   map[string]uint8
	holdTaps map[string]uint8
}

func newCompiler(src *keymapBlock) (*compiler, error) {
	if src.Rows <= 0 || src.Rows > matrix.MaxRows || src.Cols <= 0 || src.Cols > matrix.MaxCols {
		return nil, fmt.Errorf("%w: %dx%d matrix (max %dx%d)", ErrShape, src.Rows, src.Cols, matrix.MaxRows, matrix.MaxCols)
	}
	if len(src.Layers) == 0 || len(src.Layers) > layout.MaxLayers {
		return nil, fmt.Errorf("%w: %d layers (1-%d)", ErrShape, len(src.Layers), layout.MaxLayers)
	}
	if len(src.HoldTaps) > layout.MaxHoldTaps {
		return nil, fmt.Errorf("%w: %d hold-taps (max %d)", ErrShape, len(src.HoldTaps), layout.MaxHoldTaps)
	}

	c := &compiler{
		src: src,
		km: &layout.Keymap{
			Rows:       uint8(src.Rows),
			Cols:       uint8(src.Cols),
			LayerCount: uint8(len(src.Layers)),
		},
		layers:   make(map[string]uint8, len(src.Layers)),
		holdTaps: make(map[string]uint8, len(src.HoldTaps)),
	}
	for i, l := range src.Layers {
		if _, dup := c.layers[l.Name]; dup {
			return nil, fmt.Errorf("%w: layer %q defined twice", ErrSyntax, l.Name)
		}
		c.layers[l.Name] = uint8(i)
	}
	return c, nil
}

func (c *compiler) compile() error {
	for _, ht := range c.src.HoldTaps {
		if err := c.addHoldTap(ht); err != nil {
			return err
		}
	}
	for i, l := range c.src.Layers {
		if err := c.fillLayer(uint8(i), l); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) addHoldTap(b *holdTapBlock) error {
	if _, dup := c.holdTaps[b.Name]; dup {
		return fmt.Errorf("%w: hold_tap %q defined twice", ErrSyntax, b.Name)
	}

	tap, err := c.action(b.Tap, false)
	if err != nil {
		return fmt.Errorf("hold_tap %q tap: %w", b.Name, err)
	}
	hold, err := c.action(b.Hold, false)
	if err != nil {
		return fmt.Errorf("hold_tap %q hold: %w", b.Name, err)
	}

	timeout := DefaultTimeout
	if c.src.Timeout != nil {
		timeout = *c.src.Timeout
	}
	if b.Timeout != nil {
		timeout = *b.Timeout
	}
	if timeout <= 0 || timeout > 0xFFFF {
		return fmt.Errorf("%w: hold_tap %q timeout %d", ErrSyntax, b.Name, timeout)
	}

	interval := 0
	if c.src.Interval != nil {
		interval = *c.src.Interval
	}
	if b.Interval != nil {
		interval = *b.Interval
	}
	if interval < 0 || interval > 0xFFFF {
		return fmt.Errorf("%w: hold_tap %q interval %d", ErrSyntax, b.Name, interval)
	}

	act, err := c.km.AddHoldTap(layout.HoldTap{
		Tap:             tap,
		Hold:            hold,
		Timeout:         uint16(timeout),
		TapHoldInterval: uint16(interval),
	})
	if err != nil {
		return err
	}
	c.holdTaps[b.Name] = act.Arg
	return nil
}

// fillLayer evaluates the keys expression, a list of rows of strings.
func (c *compiler) fillLayer(layer uint8, b *layerBlock) error {
	val, diags := b.Keys.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("%w: layer %q: %s", ErrSyntax, b.Name, diags.Error())
	}

	rows, err := sequence(val)
	if err != nil {
		return fmt.Errorf("layer %q: %w", b.Name, err)
	}
	if len(rows) != c.src.Rows {
		return fmt.Errorf("%w: layer %q has %d rows, want %d", ErrShape, b.Name, len(rows), c.src.Rows)
	}

	for r, rowVal := range rows {
		cells, err := sequence(rowVal)
		if err != nil {
			return fmt.Errorf("layer %q row %d: %w", b.Name, r, err)
		}
		if len(cells) != c.src.Cols {
			return fmt.Errorf("%w: layer %q row %d has %d keys, want %d", ErrShape, b.Name, r, len(cells), c.src.Cols)
		}
		for col, cell := range cells {
			if cell.IsNull() || cell.Type() != cty.String {
				return fmt.Errorf("%w: layer %q row %d col %d is not a string", ErrSyntax, b.Name, r, col)
			}
			act, err := c.action(cell.AsString(), true)
			if err != nil {
				return fmt.Errorf("layer %q row %d col %d: %w", b.Name, r, col, err)
			}
			c.km.Set(layer, matrix.Position{Row: uint8(r), Col: uint8(col)}, act)
		}
	}
	return nil
}

func sequence(val cty.Value) ([]cty.Value, error) {
	if val.IsNull() || !val.IsKnown() {
		return nil, fmt.Errorf("%w: expected a list", ErrSyntax)
	}
	ty := val.Type()
	if !ty.IsTupleType() && !ty.IsListType() {
		return nil, fmt.Errorf("%w: expected a list, got %s", ErrSyntax, ty.FriendlyName())
	}
	return val.AsValueSlice(), nil
}

// action parses one key token. Hold-tap references are only allowed in
// layers.
func (c *compiler) action(token string, allowHoldTap bool) (layout.Action, error) {
	token = strings.TrimSpace(token)
	switch strings.ToLower(token) {
	case "_", "trans":
		return layout.Trans, nil
	case "xx", "none":
		return layout.None, nil
	}

	if kind, arg, ok := strings.Cut(token, ":"); ok && len(kind) > 1 {
		switch strings.ToLower(kind) {
		case "mo", "tg", "df":
			l, err := c.layer(arg)
			if err != nil {
				return layout.Trans, err
			}
			switch strings.ToLower(kind) {
			case "mo":
				return layout.Momentary(l), nil
			case "tg":
				return layout.Toggle(l), nil
			default:
				return layout.Default(l), nil
			}
		case "ht":
			if !allowHoldTap {
				return layout.Trans, fmt.Errorf("%w: hold-tap %q inside a hold_tap", ErrSyntax, arg)
			}
			idx, ok := c.holdTaps[arg]
			if !ok {
				return layout.Trans, fmt.Errorf("%w: hold_tap %q", ErrReference, arg)
			}
			return layout.HoldTapAt(idx), nil
		case "custom":
			n, err := strconv.ParseUint(arg, 10, 8)
			if err != nil {
				return layout.Trans, fmt.Errorf("%w: custom code %q", ErrSyntax, arg)
			}
			return layout.CustomCode(uint8(n)), nil
		default:
			return layout.Trans, fmt.Errorf("%w: action %q", ErrSyntax, kind)
		}
	}

	return parseChord(token)
}

func (c *compiler) layer(ref string) (uint8, error) {
	if l, ok := c.layers[ref]; ok {
		return l, nil
	}
	n, err := strconv.ParseUint(ref, 10, 8)
	if err != nil || int(n) >= len(c.src.Layers) {
		return 0, fmt.Errorf("%w: layer %q", ErrReference, ref)
	}
	return uint8(n), nil
}

// parseChord parses "A" or "LCtrl+LShift+A". A lone "+" is not a chord.
func parseChord(token string) (layout.Action, error) {
	parts := []string{token}
	if len(token) > 1 {
		parts = strings.Split(token, "+")
	}

	last := parts[len(parts)-1]
	code, ok := KeyCode(last)
	if !ok {
		return layout.Trans, fmt.Errorf("%w: %q", ErrUnknownKey, last)
	}

	var mods keys.Modifier
	for _, name := range parts[:len(parts)-1] {
		m, ok := ModifierBit(name)
		if !ok {
			return layout.Trans, fmt.Errorf("%w: %q is not a modifier", ErrUnknownKey, name)
		}
		mods |= m
	}
	if mods == 0 {
		return layout.Key(code), nil
	}
	return layout.Chord(mods, code), nil
}
