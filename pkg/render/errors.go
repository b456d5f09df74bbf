package render

import "errors"

var (
	// ErrMissingExtension is returned by Start when the display lacks an
	// extension the HDR path requires.
	ErrMissingExtension = errors.New("render: missing EGL extension")

	// ErrRendererStopped is returned by operations issued after Stop or
	// after a fatal draw error.
	ErrRendererStopped = errors.New("render: renderer stopped")

	// ErrNotStarted is returned by Attach before Start.
	ErrNotStarted = errors.New("render: not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("render: already started")
)
