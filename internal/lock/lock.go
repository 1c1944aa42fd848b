// Package lock serializes huddle clients per user: the archive database and
// log files under a user directory tolerate only one writer.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another huddle process already runs for the
// same user.
type HeldError struct {
	PID  int
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("another client is running for this user, PID %d (%s)", e.PID, e.Path)
}

// Guard is an acquired per-user lock.
type Guard struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on the user directory's lock file.
// Returns HeldError when another process holds it.
func Acquire(userDir string) (*Guard, error) {
	lockPath := filepath.Join(userDir, "LOCK")

	if err := os.MkdirAll(userDir, 0700); err != nil {
		return nil, fmt.Errorf("create user dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		pid := holderPID(string(data))
		_ = f.Close()
		return nil, &HeldError{PID: pid, Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	stamp := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(stamp); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Guard{file: f, path: lockPath}, nil
}

// Release drops the lock and removes the file. Safe on a nil receiver and
// safe to call twice.
func (g *Guard) Release() error {
	if g == nil || g.file == nil {
		return nil
	}
	_ = os.Remove(g.path)
	err := g.file.Close()
	g.file = nil
	return err
}

func holderPID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ := strconv.Atoi(after)
			return pid
		}
	}
	return 0
}
