package softgl

import "errors"

// EGL errors, named after the EGL error codes they stand for.
var (
	ErrNotInitialized  = errors.New("softgl: EGL_NOT_INITIALIZED")
	ErrBadConfig       = errors.New("softgl: EGL_BAD_CONFIG")
	ErrBadAttribute    = errors.New("softgl: EGL_BAD_ATTRIBUTE")
	ErrBadMatch        = errors.New("softgl: EGL_BAD_MATCH")
	ErrBadContext      = errors.New("softgl: EGL_BAD_CONTEXT")
	ErrBadSurface      = errors.New("softgl: EGL_BAD_SURFACE")
	ErrBadNativeWindow = errors.New("softgl: EGL_BAD_NATIVE_WINDOW")
	ErrBadAlloc        = errors.New("softgl: EGL_BAD_ALLOC")
)

// Stream texture errors.
var (
	ErrBadTexture       = errors.New("softgl: not an external texture of the current context")
	ErrNotCurrent       = errors.New("softgl: stream texture context is not current")
	ErrAbandoned        = errors.New("softgl: buffer queue abandoned")
	ErrProducerReleased = errors.New("softgl: producer surface released")
	ErrAlreadyAttached  = errors.New("softgl: stream texture already attached to a context")
	ErrNotAttached      = errors.New("softgl: stream texture is not attached")
)
