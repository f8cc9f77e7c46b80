package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyApplied is returned when an action is marked applied twice.
var ErrAlreadyApplied = errors.New("storage: action already applied")

// ErrNotInConflict is returned when resolving a sync queue item that is not
// in the Conflict state.
var ErrNotInConflict = errors.New("storage: sync item not in conflict")

// ErrRunNotFound wraps ErrNotFound so callers can use errors.Is(err, ErrNotFound) generically.
var ErrRunNotFound = fmt.Errorf("storage: run: %w", ErrNotFound)

// ErrSnapshotNotFound wraps ErrNotFound for snapshot lookups.
var ErrSnapshotNotFound = fmt.Errorf("storage: snapshot: %w", ErrNotFound)
