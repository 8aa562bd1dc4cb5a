package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// HeldError is returned when another raptd holds the session lock.
type HeldError struct {
	Holder Holder
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session lock held by PID %d since %s (%s)",
		e.Holder.PID, e.Holder.Since.Format(time.RFC3339), e.Path)
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID   int
	Since time.Time
}

// Alive reports whether the recorded process still exists. A lock file
// left behind by a crashed daemon has a dead holder.
func (h Holder) Alive() bool {
	if h.PID <= 0 {
		return false
	}
	err := syscall.Kill(h.PID, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Lock is an acquired session lock file. One raptd per session.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on <sessionDir>/LOCK and records the
// current PID in it.
func Acquire(sessionDir string) (*Lock, error) {
	lockPath := filepath.Join(sessionDir, fileName)

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		h, _ := Inspect(sessionDir)
		held := &HeldError{Path: lockPath}
		if h != nil {
			held.Holder = *h
		}
		return nil, held
	}

	if err := writeHolder(f, Holder{PID: os.Getpid(), Since: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: lockPath}, nil
}

// Inspect reads the holder recorded in a session's lock file without
// locking it. Returns nil, nil when there is no lock file.
func Inspect(sessionDir string) (*Holder, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, fileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h := parseHolder(string(data))
	return &h, nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before closing so a racing Acquire never reads a stale PID.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", h.PID, h.Since.Format(time.RFC3339))
	return err
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			h.PID, _ = strconv.Atoi(v)
		}
		if v, ok := strings.CutPrefix(line, "time="); ok {
			h.Since, _ = time.Parse(time.RFC3339, v)
		}
	}
	return h
}
