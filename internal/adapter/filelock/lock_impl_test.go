package filelock_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pazars/grabeklis/internal/adapter/filelock"
	"github.com/pazars/grabeklis/internal/repository"
)

func TestRunLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lsm", ".lock")

	first := filelock.New(path)
	second := filelock.New(path)

	require.NoError(t, first.Acquire(ctx))
	assert.FileExists(t, path)

	err := second.Acquire(ctx)
	require.ErrorIs(t, err, repository.ErrLocked)
	assert.Contains(t, err.Error(), "pid=")

	require.NoError(t, second.Release(ctx))
	assert.FileExists(t, path, "a foreign lock is left alone")

	require.NoError(t, first.Release(ctx))
	assert.NoFileExists(t, path)
	require.NoError(t, first.Release(ctx), "releasing twice is fine")

	require.NoError(t, second.Acquire(ctx))
}

func TestRunLock_StaleTakeover(t *testing.T) {
	t.Parallel()

	const deadPID = 1 << 30
	recent := time.Now().Add(-time.Minute).Format(time.RFC3339)
	old := time.Now().Add(-7 * time.Hour).Format(time.RFC3339)

	tests := []struct {
		name   string
		holder string
		locked bool
	}{
		{name: "dead process", holder: fmt.Sprintf("pid=%d token=x since=%s\n", deadPID, recent)},
		{name: "expired", holder: fmt.Sprintf("pid=%d token=x since=%s\n", os.Getpid(), old)},
		{name: "live and fresh", holder: fmt.Sprintf("pid=%d token=x since=%s\n", os.Getpid(), recent), locked: true},
		{name: "empty file just created", holder: "", locked: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			path := filepath.Join(t.TempDir(), ".lock")
			require.NoError(t, os.WriteFile(path, []byte(tt.holder), 0o644))

			lock := filelock.New(path)
			err := lock.Acquire(ctx)
			if tt.locked {
				require.ErrorIs(t, err, repository.ErrLocked)
				raw, readErr := os.ReadFile(path)
				require.NoError(t, readErr)
				assert.Equal(t, tt.holder, string(raw), "a live lock is left alone")
				return
			}
			require.NoError(t, err)
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(raw), fmt.Sprintf("pid=%d ", os.Getpid()))
			require.NoError(t, lock.Release(ctx))
			assert.NoFileExists(t, path)
		})
	}
}

func TestRunLock_CustomTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".lock")
	since := time.Now().Add(-2 * time.Minute).Format(time.RFC3339)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("pid=%d token=x since=%s\n", os.Getpid(), since)), 0o644))

	require.ErrorIs(t, filelock.New(path).Acquire(ctx), repository.ErrLocked)
	require.NoError(t, filelock.NewWithTTL(path, time.Minute).Acquire(ctx))
}
