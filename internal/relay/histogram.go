package relay

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Counts maps a byte value to the number of times it was seen.
type Counts map[byte]int

// String renders counts sorted by byte value, or "none" for an offset no
// packet reached.
func (c Counts) String() string {
	if c == nil {
		return "none"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range slices.Sorted(maps.Keys(c)) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "0x%02x: %d", v, c[v])
	}
	b.WriteByte('}')
	return b.String()
}

// Histogram counts byte values per packet offset. It only grows.
type Histogram struct {
	offsets []Counts
}

// Record adds every byte of data at its offset.
func (h *Histogram) Record(data []byte) {
	for len(h.offsets) < len(data) {
		h.offsets = append(h.offsets, make(Counts))
	}
	for i, b := range data {
		h.offsets[i][b]++
	}
}

// At returns the counts at offset, nil when no packet was that long.
func (h *Histogram) At(offset int) Counts {
	if offset < 0 || offset >= len(h.offsets) {
		return nil
	}
	return h.offsets[offset]
}

// Traffic holds one histogram per direction of the relay.
type Traffic struct {
	Client Histogram // packets sent by the client
	Server Histogram // packets sent by the server
}
