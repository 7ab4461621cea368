package main

import "testing"

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		// Short enough to pass through
		{"image classification", 70, "image classification"},
		{"", 10, ""},

		// Exactly at the limit
		{"abcdefghij", 10, "abcdefghij"},

		// Truncated, ellipsis included in the budget
		{"abcdefghijk", 10, "abcdefg..."},
		{"natural language inference", 15, "natural lang..."},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			got := truncateString(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
			if len(got) > tt.maxLen {
				t.Errorf("truncateString(%q, %d) returned %d chars", tt.s, tt.maxLen, len(got))
			}
		})
	}
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{42, "42ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{1500, "1.5s"},
		{12000, "12.0s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatMillis(tt.ms); got != tt.want {
				t.Errorf("formatMillis(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}
