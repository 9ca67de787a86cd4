package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(dir, LockFileName)
	if lock.Path() != lockPath {
		t.Errorf("Path() = %q, want %q", lock.Path(), lockPath)
	}
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	info := parseLockInfo(string(content))
	if info["pid"] != fmt.Sprint(os.Getpid()) {
		t.Errorf("lock file pid = %q, want %d", info["pid"], os.Getpid())
	}
	if info["started"] == "" {
		t.Error("lock file should record the start time")
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected *LockError, got %T", err)
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) {
		t.Errorf("Expected EWOULDBLOCK cause, got %v", lockErr.Cause)
	}
	if !strings.Contains(lockErr.ExistingInfo, fmt.Sprintf("PID %d (running", os.Getpid())) {
		t.Errorf("holder description should name this process, got %q", lockErr.ExistingInfo)
	}
	if !strings.Contains(err.Error(), lockErr.LockPath) {
		t.Errorf("error should mention the lock path: %v", err)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestParseLockInfo(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantPID string
	}{
		{"pid and start", "pid=12345\nstarted=2026-01-01T00:00:00Z\n", "12345"},
		{"padded", "  pid=67890  \n", "67890"},
		{"no pid", "other=info", ""},
		{"empty content", "", ""},
		{"no equals", "pid12345", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLockInfo(tt.content)["pid"]; got != tt.wantPID {
				t.Errorf("pid = %q, want %q", got, tt.wantPID)
			}
		})
	}
}

func TestDescribeHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	if got := describeHolder(path); !strings.Contains(got, "unreadable") {
		t.Errorf("missing file: got %q", got)
	}
	os.WriteFile(path, []byte("garbage"), 0644)
	if got := describeHolder(path); !strings.Contains(got, "no process information") {
		t.Errorf("garbage file: got %q", got)
	}
	os.WriteFile(path, []byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0644)
	if got := describeHolder(path); got != fmt.Sprintf("PID %d (running)", os.Getpid()) {
		t.Errorf("own pid: got %q", got)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}

func TestNonExistentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Directory should have been created: %s", dir)
	}
}
