package remotezip

import "testing"

func TestRangeHeader(t *testing.T) {
	cases := []struct {
		rng  Range
		want string
	}{
		{AbsoluteRange(0, 10), "bytes=0-10"},
		{OpenRange(80), "bytes=80-"},
		{SuffixRange(123), "bytes=-123"},
	}
	for _, c := range cases {
		if got := c.rng.header(); got != c.want {
			t.Errorf("header() = %q, want %q", got, c.want)
		}
	}
}

func TestRangeIsSuffix(t *testing.T) {
	if !SuffixRange(10).isSuffix() {
		t.Error("SuffixRange(10).isSuffix() = false, want true")
	}
	if AbsoluteRange(0, 10).isSuffix() {
		t.Error("AbsoluteRange(0,10).isSuffix() = true, want false")
	}
	if OpenRange(10).isSuffix() {
		t.Error("OpenRange(10).isSuffix() = true, want false")
	}
}

func TestParseContentRange(t *testing.T) {
	cases := []struct {
		header   string
		min, max int64
		wantErr  bool
	}{
		{"bytes 0-11/12", 0, 11, false},
		{"bytes 10-21/40", 10, 21, false},
		{"bytes 10-21/*", 10, 21, false},
		{"malformed", 0, 0, true},
	}
	for _, c := range cases {
		min, max, err := parseContentRange(c.header)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseContentRange(%q) err = nil, want error", c.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseContentRange(%q): %v", c.header, err)
			continue
		}
		if min != c.min || max != c.max {
			t.Errorf("parseContentRange(%q) = (%d, %d), want (%d, %d)", c.header, min, max, c.min, c.max)
		}
	}
}
