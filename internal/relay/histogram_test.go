package relay

import "testing"

func TestHistogram(t *testing.T) {
	var h Histogram

	if got := h.At(0).String(); got != "none" {
		t.Errorf("empty histogram: %q", got)
	}

	h.Record([]byte{0x00, 0x10})
	h.Record([]byte{0xff})
	h.Record([]byte{0x00, 0x10, 0x20})

	testCases := []struct {
		offset int
		want   string
	}{
		{0, "{0x00: 2, 0xff: 1}"},
		{1, "{0x10: 2}"},
		{2, "{0x20: 1}"},
		{3, "none"},
		{-1, "none"},
	}
	for _, tc := range testCases {
		if got := h.At(tc.offset).String(); got != tc.want {
			t.Errorf("At(%d) = %q, want %q", tc.offset, got, tc.want)
		}
	}
}
