package tui

import "testing"

func TestDaemonURL(t *testing.T) {
	tests := []struct {
		listen, want string
	}{
		{":5000", "http://127.0.0.1:5000"},
		{"0.0.0.0:8080", "http://127.0.0.1:8080"},
		{"[::]:8080", "http://127.0.0.1:8080"},
		{"localhost:5000", "http://localhost:5000"},
		{"[::1]:5000", "http://[::1]:5000"},
	}
	for _, tt := range tests {
		got, err := DaemonURL(tt.listen)
		if err != nil {
			t.Errorf("DaemonURL(%q): %v", tt.listen, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DaemonURL(%q) = %q, want %q", tt.listen, got, tt.want)
		}
	}
	if _, err := DaemonURL("5000"); err == nil {
		t.Error("address without port should fail")
	}
}
