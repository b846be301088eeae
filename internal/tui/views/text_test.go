package views

import (
	"testing"
	"time"
)

func TestDisplayText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"thumbs \U0001F44D\U0001F3FB", "thumbs \U0001F44D"},
		{"family \U0001F468\u200D\U0001F469", "family \U0001F468\U0001F469"},
		{"heart \u2764\uFE0F", "heart \u2764"},
		{"\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"a\tb\nc", "a b\nc"},
		{"[red]tag", "[red[]tag"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := displayText(tt.in); got != tt.want {
			t.Errorf("displayText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := displayLine("line one\n  line two"); got != "line one line two" {
		t.Errorf("displayLine = %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 5, 10, 9, 7, 0, 0, time.UTC), "09:07"},
		{time.Date(2024, 3, 2, 9, 7, 0, 0, time.UTC), "Mar 02"},
		{time.Date(2023, 12, 31, 9, 7, 0, 0, time.UTC), "2023-12-31"},
	}
	for _, tt := range tests {
		if got := formatTimestamp(tt.at.UnixMilli(), now); got != tt.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
	if got := formatTimestamp(0, now); got != "" {
		t.Errorf("formatTimestamp(0) = %q, want empty", got)
	}
}
