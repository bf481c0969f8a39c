package db

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSchema is returned when a migration step fails. The vault must
	// not be used after seeing it.
	ErrSchema = errors.New("schema migration failed")

	// ErrIndexInconsistency is returned by CheckSearchIndex when the
	// full-text index has drifted from the items table. It is repairable
	// with RebuildSearchIndex.
	ErrIndexInconsistency = errors.New("search index inconsistent with items")

	// ErrCycle is returned when a folder move would make a folder its own
	// descendant.
	ErrCycle = errors.New("move would create a folder cycle")
)
