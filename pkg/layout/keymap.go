package layout

import (
	"errors"
	"fmt"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/matrix"
)

const (
	MaxLayers   = 8
	MaxHoldTaps = 32
)

var (
	ErrDimensions     = errors.New("keymap dimensions out of range")
	ErrNoLayers       = errors.New("keymap has no layers")
	ErrLayerRange     = errors.New("layer reference out of range")
	ErrHoldTapRange   = errors.New("hold-tap reference out of range")
	ErrNestedHoldTap  = errors.New("hold-tap action refers to another hold-tap")
	ErrHoldTapTimeout = errors.New("hold-tap timeout must be positive")
	ErrUnknownKind    = errors.New("unknown action kind")
	ErrTooManyHolds   = errors.New("too many hold-tap definitions")
)

// Keymap is the read-only Layer × Position → Action table. Its size is
// fixed at build time.
type Keymap struct {
	Rows         uint8
	Cols         uint8
	LayerCount   uint8
	HoldTapCount uint8
	Layers       [MaxLayers][matrix.MaxKeys]Action
	HoldTaps     [MaxHoldTaps]HoldTap
}

// Keys returns the number of positions.
func (k *Keymap) Keys() int {
	return int(k.Rows) * int(k.Cols)
}

// At returns the action for a position on a layer.
func (k *Keymap) At(layer uint8, pos matrix.Position) Action {
	return k.Layers[layer][pos.Index(int(k.Cols))]
}

// Set stores the action for a position on a layer.
func (k *Keymap) Set(layer uint8, pos matrix.Position, a Action) {
	k.Layers[layer][pos.Index(int(k.Cols))] = a
}

// SetRow fills one row of a layer from the left.
func (k *Keymap) SetRow(layer, row uint8, actions ...Action) {
	for col, a := range actions {
		k.Set(layer, matrix.Position{Row: row, Col: uint8(col)}, a)
	}
}

// AddHoldTap appends a hold-tap definition and returns the action that
// refers to it.
func (k *Keymap) AddHoldTap(ht HoldTap) (Action, error) {
	if int(k.HoldTapCount) >= MaxHoldTaps {
		return Trans, ErrTooManyHolds
	}
	k.HoldTaps[k.HoldTapCount] = ht
	k.HoldTapCount++
	return HoldTapAt(k.HoldTapCount - 1), nil
}

// Validate rejects keymaps whose behaviour would be undefined at runtime.
func (k *Keymap) Validate() error {
	if k.Rows == 0 || k.Cols == 0 || k.Rows > matrix.MaxRows || k.Cols > matrix.MaxCols {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, k.Rows, k.Cols)
	}
	if k.LayerCount == 0 {
		return ErrNoLayers
	}
	if k.LayerCount > MaxLayers {
		return fmt.Errorf("%w: %d layers (max %d)", ErrLayerRange, k.LayerCount, MaxLayers)
	}
	if k.HoldTapCount > MaxHoldTaps {
		return fmt.Errorf("%w: %d definitions", ErrTooManyHolds, k.HoldTapCount)
	}

	for layer := 0; layer < int(k.LayerCount); layer++ {
		for idx := 0; idx < k.Keys(); idx++ {
			if err := k.validateAction(k.Layers[layer][idx], false); err != nil {
				pos := matrix.PositionAt(idx, int(k.Cols))
				return fmt.Errorf("layer %d (%d,%d): %w", layer, pos.Row, pos.Col, err)
			}
		}
	}

	for i := 0; i < int(k.HoldTapCount); i++ {
		ht := k.HoldTaps[i]
		if ht.Timeout == 0 {
			return fmt.Errorf("hold-tap %d: %w", i, ErrHoldTapTimeout)
		}
		if err := k.validateAction(ht.Tap, true); err != nil {
			return fmt.Errorf("hold-tap %d tap: %w", i, err)
		}
		if err := k.validateAction(ht.Hold, true); err != nil {
			return fmt.Errorf("hold-tap %d hold: %w", i, err)
		}
	}
	return nil
}

func (k *Keymap) validateAction(a Action, inHoldTap bool) error {
	switch a.Kind {
	case LayerMomentary, LayerToggle, DefaultLayer:
		if a.Arg >= k.LayerCount {
			return fmt.Errorf("%w: layer %d of %d", ErrLayerRange, a.Arg, k.LayerCount)
		}
	case TapHold:
		if inHoldTap {
			return ErrNestedHoldTap
		}
		if a.Arg >= k.HoldTapCount {
			return fmt.Errorf("%w: %d of %d", ErrHoldTapRange, a.Arg, k.HoldTapCount)
		}
	default:
		if a.Kind >= kindCount {
			return fmt.Errorf("%w: %d", ErrUnknownKind, a.Kind)
		}
	}
	return nil
}
