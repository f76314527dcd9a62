package coordinator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
)

func TestFileLockAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captn.lock")
	lock := NewFileLock(path)

	require.NoError(t, lock.Acquire(false))
	require.NoError(t, lock.Release())
}

func TestFileLockSecondAcquireWithoutForceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captn.lock")
	first := NewFileLock(path)
	require.NoError(t, first.Acquire(false))
	defer first.Release()

	second := NewFileLock(path)
	err := second.Acquire(false)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.LockHeld))
}

func TestFileLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "unused.lock"))
	assert.NoError(t, lock.Release())
}
