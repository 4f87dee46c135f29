package store

import "errors"

// ErrLocked is returned when another controller already holds the lock.
var ErrLocked = errors.New("controller lock held by another process")
