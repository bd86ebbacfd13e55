package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateVersionNumber is returned when concurrent version creation
// collides on (project_id, version_number) even after the internal retry.
// Callers should treat it as transient.
var ErrDuplicateVersionNumber = errors.New("storage: duplicate version number")

// ErrImmutable is returned when a caller tries to mutate a record that
// has left draft status.
var ErrImmutable = errors.New("storage: record is no longer mutable")
