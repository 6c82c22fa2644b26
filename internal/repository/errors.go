package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrBusy means a row lock could not be taken within the lock timeout,
	// or the database aborted the transaction to resolve contention.
	ErrBusy = errors.New("resource busy")
)
