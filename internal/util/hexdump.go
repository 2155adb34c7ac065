package util

import (
	"encoding/hex"
	"fmt"
	"math/bits"
	"strings"
)

// Dumper renders a labelled packet view for the console.
type Dumper func(data []byte, indent int, label string) string

// IndentHexdump renders data as a classic hex dump under label, every line
// prefixed with indent spaces.
func IndentHexdump(data []byte, indent int, label string) string {
	return indentLines(hex.Dump(data), indent, label)
}

// IndentHexII renders data in HexII notation under label.
func IndentHexII(data []byte, indent int, label string) string {
	return indentLines(HexII(data), indent, label)
}

func indentLines(body string, indent int, label string) string {
	pad := strings.Repeat(" ", indent)

	var b strings.Builder
	b.WriteString(pad)
	b.WriteString(label)
	b.WriteByte('\n')
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(pad)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), " \n")
}

const hexIIWidth = 0x10

// HexII renders data sixteen bytes per line: printable ASCII as ".c", 0x00
// as blank, 0xFF as "##", anything else as two hex digits. A short final
// line is closed with " ]". Lines consisting only of zero bytes are skipped.
func HexII(data []byte) string {
	digits := (bits.Len(uint(len(data))) + 7) / 8 * 2
	if digits < 2 {
		digits = 2
	}

	var b strings.Builder
	for off := 0; off < len(data) || off == 0; off += hexIIWidth {
		end := min(off+hexIIWidth, len(data))
		chunk := data[off:end]

		cells := make([]string, 0, hexIIWidth)
		blank := true
		for _, v := range chunk {
			cell := hexIICell(v)
			if v != 0x00 {
				blank = false
			}
			cells = append(cells, cell)
		}
		if len(chunk) < hexIIWidth {
			cells = append(cells, " ]")
			blank = false
		}
		for len(cells) < hexIIWidth {
			cells = append(cells, "  ")
		}
		if blank {
			continue
		}

		fmt.Fprintf(&b, "%0*x | %s |\n", digits, off, strings.Join(cells, " "))
		if len(data) == 0 {
			break
		}
	}
	return b.String()
}

func hexIICell(v byte) string {
	switch {
	case v == 0x00:
		return "  "
	case v == 0xFF:
		return "##"
	case v > ' ' && v < 0x7f:
		return "." + string(rune(v))
	default:
		return fmt.Sprintf("%02x", v)
	}
}
