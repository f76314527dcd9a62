package coordinator

import (
	"fmt"
	"os"
	"syscall"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
)

// FileLock is the single-instance file lock from §4.11 step 1 and §5's
// "process-wide file lock guards against two Updater processes running
// concurrently against the same host". Backed directly by flock(2), the
// same OS-level-control justification already used for hooks.Runner's
// process-group signal handling — no pack library wraps advisory file
// locking.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns a lock bound to path, created on first Acquire.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire takes the lock, refusing with apperrors.LockHeld unless force
// is set, in which case the holder is stolen via a fresh exclusive flock.
func (l *FileLock) Acquire(force bool) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return apperrors.Wrap(apperrors.HostAccessDenied, err, "opening lock file "+l.path)
	}

	flags := syscall.LOCK_EX | syscall.LOCK_NB
	if flockErr := syscall.Flock(int(f.Fd()), flags); flockErr != nil {
		f.Close()
		if !force {
			return apperrors.New(apperrors.LockHeld, fmt.Sprintf("lock already held at %s", l.path))
		}
		return l.stealLock(flags)
	}

	l.file = f
	return nil
}

// stealLock is the --force override: reopen and take the lock again.
// The prior holder's file descriptor-based lock is released by the OS
// once that process exits or closes it; this is a best-effort override,
// not a guarantee the other process has stopped.
func (l *FileLock) stealLock(flags int) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return apperrors.Wrap(apperrors.HostAccessDenied, err, "force-reopening lock file "+l.path)
	}
	if err := syscall.Flock(int(f.Fd()), flags); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.LockHeld, err, "lock still held after force override")
	}
	l.file = f
	return nil
}

// Release drops the lock. Safe to call even if Acquire was never called
// or already failed.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
