package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a conditional update finds the entity
	// no longer in the state the caller required.
	ErrConflict = errors.New("entity state changed")
)
