package util

import (
	"strings"
	"testing"
)

func TestHexIICells(t *testing.T) {
	testCases := []struct {
		in   byte
		want string
	}{
		{0x00, "  "},
		{0xFF, "##"},
		{'A', ".A"},
		{'~', ".~"},
		{' ', "20"},
		{0x7f, "7f"},
		{0x01, "01"},
	}

	for _, tc := range testCases {
		if got := hexIICell(tc.in); got != tc.want {
			t.Errorf("hexIICell(%#02x) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHexIIShortLine(t *testing.T) {
	out := HexII([]byte{'A', 0x00, 0xFF, 0x01})

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "00 | .A    ## 01  ]") {
		t.Errorf("unexpected line %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], " |") {
		t.Errorf("line not closed: %q", lines[0])
	}
}

func TestHexIISkipsZeroLines(t *testing.T) {
	data := make([]byte, 48)
	data[0] = 'x'
	data[40] = 'y'

	out := HexII(data)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "00 ") || !strings.HasPrefix(lines[1], "20 ") {
		t.Errorf("unexpected offsets:\n%s", out)
	}
}

func TestHexIIEmpty(t *testing.T) {
	if out := HexII(nil); !strings.Contains(out, " ]") {
		t.Errorf("empty dump lacks end marker: %q", out)
	}
}

func TestIndentHexdump(t *testing.T) {
	out := IndentHexdump([]byte("hello world, this is a test"), 5, "IN: 1.2.3.4:5")

	lines := strings.Split(out, "\n")
	if lines[0] != "     IN: 1.2.3.4:5" {
		t.Errorf("label line %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	for _, l := range lines[1:] {
		if !strings.HasPrefix(l, "     0000") {
			t.Errorf("line not indented: %q", l)
		}
	}
}
