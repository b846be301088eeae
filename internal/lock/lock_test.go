package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "inboxd")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "LOCK"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.Contains(string(data), "owner=inboxd") {
		t.Errorf("lock file = %q, want owner recorded", data)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "LOCK")); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, "inboxd")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir, "inboxctl")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var lockErr *LockHeldError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockHeldError, got %T: %v", err, err)
	}
	if lockErr.PID != os.Getpid() || lockErr.Owner != "inboxd" {
		t.Errorf("holder = %d/%q, want this process as inboxd", lockErr.PID, lockErr.Owner)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	tmpDir := t.TempDir()
	l, err := Acquire(tmpDir, "inboxctl")
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Release()

	l2, err := Acquire(tmpDir, "inboxd")
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = l2.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(t.TempDir(), "inboxd")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	pid, owner := parseHolder("pid=42\nowner=inboxd\ntime=2025-01-01T00:00:00Z\n")
	if pid != 42 || owner != "inboxd" {
		t.Errorf("parseHolder() = %d/%q", pid, owner)
	}
	pid, owner = parseHolder("garbage")
	if pid != 0 || owner != "" {
		t.Errorf("parseHolder(garbage) = %d/%q", pid, owner)
	}
}
