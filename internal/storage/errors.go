package storage

import "errors"

var (
	// ErrDuplicateOutcome means an outcome already exists for the
	// (register number, day) pair. The unique constraint raises it inside
	// the create transaction, so concurrent captures cannot both win.
	ErrDuplicateOutcome = errors.New("outcome already exists for person and day")

	// ErrDuplicatePerson means the register number is already taken.
	ErrDuplicatePerson = errors.New("person already exists")

	// ErrAlreadyResolved means the pending review reached its terminal
	// state earlier; resolutions are one-shot.
	ErrAlreadyResolved = errors.New("review already resolved")

	// ErrNotFound is returned for lookups of rows that do not exist where
	// the caller asked for a specific record.
	ErrNotFound = errors.New("record not found")
)
