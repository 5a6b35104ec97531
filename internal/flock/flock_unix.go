//go:build unix

// Package flock serializes processes through a lock file next to a shared
// resource.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const retryInterval = 25 * time.Millisecond

// Lock creates path if needed and takes an exclusive flock on it, waiting
// until the lock is free or ctx is done. The returned file must be passed
// to Unlock.
func Lock(ctx context.Context, path string) (*os.File, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		if err := acquire(ctx, f); err != nil {
			f.Close()
			return nil, err
		}

		// The previous holder removes the file on unlock. If that happened
		// between our open and our flock we hold a lock nobody else sees.
		current, err := os.Stat(path)
		if err == nil {
			opened, err := f.Stat()
			if err == nil && os.SameFile(current, opened) {
				return f, nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			release(f)
			return nil, fmt.Errorf("stat lock file: %w", err)
		}
		release(f)
	}
}

func acquire(ctx context.Context, f *os.File) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		default:
			return fmt.Errorf("flock %s: %w", f.Name(), err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock %s: %w", f.Name(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func release(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}

// Unlock removes the lock file and releases the lock. A nil file is ignored.
func Unlock(f *os.File) error {
	if f == nil {
		return nil
	}
	removeErr := os.Remove(f.Name())
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return removeErr
}
