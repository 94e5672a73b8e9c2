package repository

import (
	"context"
	"errors"
)

// ErrLocked is returned when another run already holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// RunLock provides cross-process exclusivity over a spider's data directory.
type RunLock interface {
	// Acquire takes the lock or returns ErrLocked.
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}
