package model

import "errors"

var (
	// ErrInvalidArgument is returned for rejected inputs (bad amount, duration,
	// rate, kind or class). State is never mutated when it is returned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned for unknown instrument, position or session ids.
	ErrNotFound = errors.New("not found")

	// ErrStaleTick is returned when a tick that was already processed is
	// submitted again.
	ErrStaleTick = errors.New("stale tick")

	// ErrInternalInvariant signals a corrupted simulation. Callers must halt
	// further advancement of the affected session.
	ErrInternalInvariant = errors.New("internal invariant violated")
)
