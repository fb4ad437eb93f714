package models

import "errors"

// Domain errors surfaced synchronously to callers. Everything after a run
// has started is reported through the session's last_error and the status
// projection instead.
var (
	// ErrValidation marks synchronous request validation failures. Wrap
	// it so transport layers can map the whole class.
	ErrValidation = errors.New("invalid request")

	// ErrBusy rejects a new run while one is in progress. Nothing is
	// mutated; the caller may retry after the current run ends.
	ErrBusy = errors.New("generation already running")

	// ErrNoBaseProduct rejects an edit before a successful create.
	ErrNoBaseProduct = errors.New("no base product available to edit")

	// ErrRewindOutOfRange rejects a rewind to an index outside the
	// iteration log.
	ErrRewindOutOfRange = errors.New("rewind index out of range")

	// ErrInvalidDimensions rejects non-positive package dimensions.
	ErrInvalidDimensions = errors.New("dimensions must be positive")

	// ErrTextureNotFound means no texture exists and none is being
	// generated for the panel.
	ErrTextureNotFound = errors.New("no texture found for panel")

	// ErrTextureInProgress means the panel's texture is still being
	// generated; distinct from never-requested.
	ErrTextureInProgress = errors.New("texture generation in progress")
)
