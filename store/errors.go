package store

import "errors"

var (
	// ErrUnavailable wraps every backend (transport, IO, driver) failure.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrConflict reports that an atomic conditional write lost its race
	// after the backend's bounded retries. Callers re-read and decide.
	ErrConflict = errors.New("store: concurrent modification")
	// ErrDuplicate reports an insert whose natural key already exists.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrNotFound reports that a record addressed by ID does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTransition reports a status change outside the documented
	// direction of the record's state machine.
	ErrInvalidTransition = errors.New("store: invalid status transition")
)
