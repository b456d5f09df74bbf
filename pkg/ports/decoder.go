package ports

import (
	"github.com/user/glhdr/pkg/media"
)

// DecoderCallback receives asynchronous decoder notifications. All methods
// are invoked from a single callback goroutine owned by the decoder, in the
// order the decoder produced them. Implementations must not block.
type DecoderCallback interface {
	OnInputBufferAvailable(index int)
	OnOutputBufferAvailable(index int, info media.BufferInfo)
	OnOutputFormatChanged(format media.Format)
	OnError(err error)
}

// VideoDecoder abstracts an asynchronous hardware video decoder whose
// output is rendered straight into a producer Surface.
type VideoDecoder interface {
	// SetCallback registers the asynchronous callback. Must be called
	// before Configure.
	SetCallback(cb DecoderCallback)

	// Configure prepares the decoder for the given stream; decoded
	// pictures are written to surface when released with render=true.
	Configure(format media.Format, surface Surface) error

	// Start begins delivering input buffer notifications.
	Start() error

	// InputBuffer returns the writable buffer for an input index.
	InputBuffer(index int) ([]byte, error)

	// QueueInputBuffer submits size bytes of the input buffer at index.
	QueueInputBuffer(index, offset, size int, timestampUs int64, flags media.SampleFlags) error

	// ReleaseOutputBuffer returns an output buffer; render sends it to the
	// configured surface.
	ReleaseOutputBuffer(index int, render bool) error

	// Flush discards all queued input and pending output. When Flush
	// returns, no callback referring to a buffer owned before the flush
	// will be delivered. Start must be called again to resume.
	Flush() error

	// Stop halts decoding; the decoder may be configured again.
	Stop() error

	// Release frees every resource held by the decoder.
	Release() error
}
