// Package store defines the error taxonomy shared by every repository
// implementation. Backends map engine-specific failures onto these
// sentinels at the boundary so callers never see driver errors.
package store

import "errors"

var (
	ErrNotFound     = errors.New("store: not found")
	ErrConflict     = errors.New("store: already exists")
	ErrConstraint   = errors.New("store: constraint violation")
	ErrInvalidInput = errors.New("store: invalid input")
)
