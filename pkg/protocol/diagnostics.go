package protocol

import (
	"encoding/binary"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keyboard"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
)

// statsFixedSize is the part of an encoded Stats before the layer list.
const statsFixedSize = 9*4 + 2 + 1 + 1

// EncodeStats encodes keyboard diagnostics.
// Layout:
//
//	[0-35]:  Overflows, Bounces, Inconsistencies, Ignored, Truncated,
//	         Rollover, Coalesced, StackDrops, Reports (uint32 each)
//	[36-37]: Pending (uint16)
//	[38]:    Base layer
//	[39]:    LayerCount
//	[40-]:   active layers, base first
func EncodeStats(s keyboard.Stats) []byte {
	buf := make([]byte, statsFixedSize+s.LayerCount)
	counters := []uint32{
		s.Overflows, s.Bounces, s.Inconsistencies, s.Ignored, s.Truncated,
		s.Rollover, s.Coalesced, s.StackDrops, s.Reports,
	}
	for i, c := range counters {
		binary.LittleEndian.PutUint32(buf[i*4:], c)
	}
	binary.LittleEndian.PutUint16(buf[36:], uint16(s.Pending))
	buf[38] = s.Base
	buf[39] = uint8(s.LayerCount)
	copy(buf[statsFixedSize:], s.ActiveLayers())
	return buf
}

// DecodeStats is the inverse of EncodeStats.
func DecodeStats(data []byte) (keyboard.Stats, error) {
	var s keyboard.Stats
	if len(data) < statsFixedSize {
		return s, ErrInvalidFrame
	}
	n := int(data[39])
	if n > layout.MaxStack || len(data) < statsFixedSize+n {
		return s, ErrInvalidFrame
	}

	counters := []*uint32{
		&s.Overflows, &s.Bounces, &s.Inconsistencies, &s.Ignored, &s.Truncated,
		&s.Rollover, &s.Coalesced, &s.StackDrops, &s.Reports,
	}
	for i, c := range counters {
		*c = binary.LittleEndian.Uint32(data[i*4:])
	}
	s.Pending = int(binary.LittleEndian.Uint16(data[36:]))
	s.Base = data[38]
	s.LayerCount = n
	copy(s.Layers[:], data[statsFixedSize:statsFixedSize+n])
	return s, nil
}
