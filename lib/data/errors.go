package data

import "errors"

// Sentinel errors returned (optionally wrapped) by the repositories so callers
// can translate store facts into API errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
