// Package nullsink provides a preview window that discards every frame.
package nullsink

import (
	"sync/atomic"

	"github.com/user/glhdr/pkg/ports"
)

// Window is a ports.NativeWindow that only counts presented frames. It
// stands in for a display when previewing headless.
type Window struct {
	width, height int
	frames        atomic.Int64
	lastNs        atomic.Int64
}

// New returns a window of the given size.
func New(width, height int) *Window {
	return &Window{width: width, height: height}
}

// Size returns the size passed to New.
func (w *Window) Size() (int, int) {
	return w.width, w.height
}

// Present drops the frame.
func (w *Window) Present(frame ports.PresentedFrame) error {
	w.frames.Add(1)
	w.lastNs.Store(frame.TimestampNs)
	return nil
}

// Frames returns how many frames were presented.
func (w *Window) Frames() int64 {
	return w.frames.Load()
}

// LastTimestamp returns the timestamp of the most recent frame.
func (w *Window) LastTimestamp() int64 {
	return w.lastNs.Load()
}

var _ ports.NativeWindow = (*Window)(nil)
