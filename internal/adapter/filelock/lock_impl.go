// Package filelock guards a spider directory with an exclusive lock file.
package filelock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pazars/grabeklis/internal/repository"
)

// DefaultStaleAfter is how old a lock file may get before it is taken over.
const DefaultStaleAfter = 6 * time.Hour

// RunLockImpl implements repository.RunLock with an O_EXCL lock file.
type RunLockImpl struct {
	path       string
	token      string
	staleAfter time.Duration
}

var _ repository.RunLock = (*RunLockImpl)(nil)

// New creates a lock at path (usually <spider dir>/.lock).
func New(path string) *RunLockImpl {
	return NewWithTTL(path, 0)
}

// NewWithTTL creates a lock whose file is considered stale after ttl.
// A zero ttl means DefaultStaleAfter.
func NewWithTTL(path string, ttl time.Duration) *RunLockImpl {
	if ttl <= 0 {
		ttl = DefaultStaleAfter
	}
	return &RunLockImpl{path: path, token: uuid.NewString(), staleAfter: ttl}
}

// Path returns the lock file location.
func (l *RunLockImpl) Path() string {
	return l.path
}

// Acquire creates the lock file, failing with ErrLocked if it already exists.
// A lock left behind by a dead process, or older than the TTL, is replaced.
func (l *RunLockImpl) Acquire(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	err := l.create()
	if !errors.Is(err, fs.ErrExist) {
		return err
	}
	holder, _ := os.ReadFile(l.path)
	if l.stale(holder) {
		if current, _ := os.ReadFile(l.path); bytes.Equal(current, holder) {
			if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return fmt.Errorf("remove stale lock file: %w", rmErr)
			}
			if err = l.create(); !errors.Is(err, fs.ErrExist) {
				return err
			}
			holder, _ = os.ReadFile(l.path)
		}
	}
	return fmt.Errorf("%w: %s (%s)", repository.ErrLocked, l.path, strings.TrimSpace(string(holder)))
}

func (l *RunLockImpl) create() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return err
	}
	if err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "pid=%d token=%s since=%s\n", os.Getpid(), l.token, time.Now().Format(time.RFC3339))
	return err
}

// stale reports whether the holder recorded in raw is gone or expired.
// Without a since= field the file modification time is used.
func (l *RunLockImpl) stale(raw []byte) bool {
	var (
		pid   int
		since time.Time
	)
	for _, field := range strings.Fields(string(raw)) {
		key, value, _ := strings.Cut(field, "=")
		switch key {
		case "pid":
			pid, _ = strconv.Atoi(value)
		case "since":
			since, _ = time.Parse(time.RFC3339, value)
		}
	}
	if since.IsZero() {
		if info, err := os.Stat(l.path); err == nil {
			since = info.ModTime()
		}
	}
	if !since.IsZero() && time.Since(since) > l.staleAfter {
		return true
	}
	return pid > 0 && !processAlive(pid)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

// Release removes the lock file if it still carries this instance's token.
func (l *RunLockImpl) Release(_ context.Context) error {
	raw, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock file: %w", err)
	}
	if !strings.Contains(string(raw), "token="+l.token) {
		return nil
	}
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
