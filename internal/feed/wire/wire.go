// Package wire decodes the upstream market-data binary frame format: a
// length-prefixed sequence of fixed-layout tick packets.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Tick is a decoded instrument/price pair. Price is in rupees, converted
// from the wire's paise-scaled integer.
type Tick struct {
	InstrumentToken uint32
	Price           float64
}

// Decode parses one binary frame into its constituent ticks. Packets
// shorter than 8 bytes are skipped. A malformed frame (truncated header
// or packet body) returns the ticks successfully decoded so far alongside
// an error; callers treat this as a resync point, not a fatal condition.
func Decode(frame []byte) ([]Tick, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("wire: frame too short for packet count")
	}

	count := binary.BigEndian.Uint16(frame[0:2])
	offset := 2

	ticks := make([]Tick, 0, count)
	for i := 0; i < int(count); i++ {
		if offset+2 > len(frame) {
			return ticks, fmt.Errorf("wire: truncated length prefix for packet %d", i)
		}
		plen := int(binary.BigEndian.Uint16(frame[offset : offset+2]))
		offset += 2

		if offset+plen > len(frame) {
			return ticks, fmt.Errorf("wire: truncated packet %d body, want %d bytes", i, plen)
		}
		packet := frame[offset : offset+plen]
		offset += plen

		if plen < 8 {
			continue
		}

		token := binary.BigEndian.Uint32(packet[0:4])
		paise := binary.BigEndian.Uint32(packet[4:8])
		ticks = append(ticks, Tick{
			InstrumentToken: token,
			Price:           float64(paise) / 100.0,
		})
	}

	return ticks, nil
}
