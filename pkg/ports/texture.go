package ports

import (
	"github.com/user/glhdr/pkg/media"
)

// Surface is the producer endpoint of a buffer queue. A decoder configured
// with a Surface queues pictures into it without a CPU-side pixel copy.
type Surface interface {
	// QueueBuffer hands a picture to the consumer side of the queue.
	QueueBuffer(pic *media.Picture) error

	// Release disconnects the producer.
	Release()
}

// StreamTexture is the consumer side of a buffer queue bound to an
// external GL texture.
type StreamTexture interface {
	// Surface returns the producer endpoint feeding this texture.
	Surface() Surface

	// SetDefaultBufferSize sets the size of buffers the producer allocates.
	SetDefaultBufferSize(width, height int)

	// SetOnFrameAvailableListener registers a function called from the
	// producer's goroutine every time a new buffer is queued.
	SetOnFrameAvailableListener(fn func())

	// AttachToGLContext binds the texture to the current context under tex.
	// Must be called on the GL goroutine.
	AttachToGLContext(tex uint32) error

	// DetachFromGLContext unbinds the texture from its current context.
	DetachFromGLContext() error

	// UpdateTexImage latches the most recently queued buffer into the
	// texture and reports whether one was queued. Must be called on the GL
	// goroutine.
	UpdateTexImage() (bool, error)

	// TransformMatrix writes the sampling transform of the latched buffer.
	TransformMatrix(m *[16]float32)

	// Timestamp returns the presentation time of the latched buffer in
	// nanoseconds.
	Timestamp() int64

	// Release frees the buffer queue.
	Release()
}
