package instance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirUsesHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	if got, want := Dir("main"), filepath.Join(base, "instances", "main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestDefaultBaseDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".inbox"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	tests := []struct {
		name   string
		got    string
		suffix string
	}{
		{"lock", LockPath("test"), filepath.Join("instances", "test", "LOCK")},
		{"db", DBPath("test"), filepath.Join("instances", "test", "inbox.db")},
		{"log", LogPath("test"), filepath.Join("instances", "test", "logs", "inboxd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.suffix) {
			t.Errorf("%s path = %q, want suffix %q", tt.name, tt.got, tt.suffix)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}
