//go:build !unix

package store

import "errors"

// Lock is not available on non-Unix platforms.
type Lock struct{}

// AcquireLock returns an error on non-Unix platforms.
func AcquireLock(path, owner string) (*Lock, error) {
	return nil, errors.New("store: controller lock not supported on this platform")
}

// Release is not implemented on non-Unix platforms.
func (l *Lock) Release() error {
	return nil
}
