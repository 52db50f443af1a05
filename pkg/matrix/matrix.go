// Package matrix reads the switch grid. One Scan drives every strobe line in
// turn and samples every sense line, producing a RawState bitmap.
package matrix

import (
	"errors"
	"fmt"
)

// Matrix capacity. Every per-position table in the firmware is sized from
// MaxKeys so nothing is allocated after boot.
const (
	MaxRows = 12
	MaxCols = 12
	MaxKeys = MaxRows * MaxCols
)

var (
	ErrDimensions = errors.New("matrix dimensions out of range")
	ErrLineCount  = errors.New("line count does not match matrix dimensions")
)

// Position identifies one physical switch.
type Position struct {
	Row uint8
	Col uint8
}

// Index returns the flat position index for a matrix with cols columns.
func (p Position) Index(cols int) int {
	return int(p.Row)*cols + int(p.Col)
}

// PositionAt is the inverse of Index.
func PositionAt(index, cols int) Position {
	return Position{Row: uint8(index / cols), Col: uint8(index % cols)}
}

// Output is a strobe line. machine.Pin satisfies it.
type Output interface {
	Set(high bool)
}

// Input is a sense line. machine.Pin satisfies it.
type Input interface {
	Get() bool
}

// Config describes the wiring of one matrix.
type Config struct {
	Rows int
	Cols int

	// Strobes are driven one at a time; Senses are read for each strobe.
	// With ColumnStrobe unset there is one strobe per row and one sense per
	// column, otherwise the other way around.
	Strobes      []Output
	Senses       []Input
	ColumnStrobe bool

	// ActiveHigh drives the strobe high and treats a high sense line as
	// pressed. The default is active-low with pull-up sense inputs.
	ActiveHigh bool

	// Settle is called after a strobe is driven, before sensing. It must
	// only busy-wait the electrical settle time.
	Settle func()
}

// Validate checks the wiring against the matrix dimensions.
func (c *Config) Validate() error {
	if c.Rows <= 0 || c.Rows > MaxRows || c.Cols <= 0 || c.Cols > MaxCols {
		return fmt.Errorf("%w: %dx%d (max %dx%d)", ErrDimensions, c.Rows, c.Cols, MaxRows, MaxCols)
	}
	strobes, senses := c.Rows, c.Cols
	if c.ColumnStrobe {
		strobes, senses = c.Cols, c.Rows
	}
	if len(c.Strobes) != strobes || len(c.Senses) != senses {
		return fmt.Errorf("%w: %d strobes, %d senses for %dx%d", ErrLineCount, len(c.Strobes), len(c.Senses), c.Rows, c.Cols)
	}
	return nil
}

// Keys returns the number of positions in the matrix.
func (c *Config) Keys() int {
	return c.Rows * c.Cols
}

// Scanner reads the matrix.
type Scanner struct {
	cfg Config
}

// New validates cfg and releases every strobe line.
func New(cfg Config) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{cfg: cfg}
	for _, strobe := range cfg.Strobes {
		strobe.Set(!cfg.ActiveHigh)
	}
	return s, nil
}

// Rows returns the configured row count.
func (s *Scanner) Rows() int { return s.cfg.Rows }

// Cols returns the configured column count.
func (s *Scanner) Cols() int { return s.cfg.Cols }

// Scan reads the whole grid once.
func (s *Scanner) Scan() RawState {
	var state RawState
	active := s.cfg.ActiveHigh
	for i, strobe := range s.cfg.Strobes {
		strobe.Set(active)
		if s.cfg.Settle != nil {
			s.cfg.Settle()
		}
		for j, sense := range s.cfg.Senses {
			if sense.Get() != active {
				continue
			}
			row, col := i, j
			if s.cfg.ColumnStrobe {
				row, col = j, i
			}
			state.Set(row*s.cfg.Cols + col)
		}
		strobe.Set(!active)
	}
	return state
}
