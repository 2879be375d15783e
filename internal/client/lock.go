package client

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLockUnavailable reports that the advisory lock primitive itself failed.
// Acquisition blocks rather than timing out — a live shell holding the lock
// is waited out, not treated as an error — so this surfaces only when flock
// or the directory open errors. Match with errors.Is.
var ErrLockUnavailable = errors.New("history lock unavailable")

// dirLock is an exclusive advisory flock on the history file's directory,
// the same cooperative convention fish uses around its own history rewrites.
// A shell appending under a shared lock interleaves safely; the sync's final
// replace needs the exclusive variant.
type dirLock struct {
	f *os.File
}

// acquireDirLock blocks until the exclusive lock on dir is held.
func acquireDirLock(dir string) (*dirLock, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, dir, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: flock %s: %v", ErrLockUnavailable, dir, err)
	}
	return &dirLock{f: f}, nil
}

// release drops the lock. Closing the descriptor releases the flock even if
// the explicit unlock failed, so release cannot strand the lock.
func (l *dirLock) release() error {
	unlockErr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlock history dir: %w", unlockErr)
	}
	return closeErr
}
