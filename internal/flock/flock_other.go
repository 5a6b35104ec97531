//go:build !unix

package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

const retryInterval = 25 * time.Millisecond

// Lock creates path exclusively, waiting while another process holds it.
// Without flock a crashed holder leaves the file behind; it has to be
// removed by hand.
func Lock(ctx context.Context, path string) (*os.File, error) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Unlock closes and removes the lock file. A nil file is ignored.
func Unlock(f *os.File) error {
	if f == nil {
		return nil
	}
	closeErr := f.Close()
	if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}
