package mocks

import (
	"sync"
	"time"

	"github.com/user/glhdr/pkg/ports"
)

// Window is a mock implementation of ports.NativeWindow that keeps every
// presented frame.
type Window struct {
	Width       int
	Height      int
	PresentFunc func(frame ports.PresentedFrame) error

	mu     sync.Mutex
	frames []ports.PresentedFrame
	signal chan struct{}
}

// NewWindow creates a window of the given native size.
func NewWindow(width, height int) *Window {
	return &Window{Width: width, Height: height, signal: make(chan struct{}, 1)}
}

func (m *Window) Size() (int, int) {
	return m.Width, m.Height
}

func (m *Window) Present(frame ports.PresentedFrame) error {
	if m.PresentFunc != nil {
		if err := m.PresentFunc(frame); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.frames = append(m.frames, frame)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

// Frames returns a copy of the presented frames.
func (m *Window) Frames() []ports.PresentedFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.PresentedFrame(nil), m.frames...)
}

// Count returns the number of presented frames.
func (m *Window) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// WaitForFrames blocks until at least n frames were presented or timeout
// elapses. It reports whether n frames arrived.
func (m *Window) WaitForFrames(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if m.Count() >= n {
			return true
		}
		select {
		case <-m.signal:
		case <-deadline.C:
			return m.Count() >= n
		}
	}
}

var _ ports.NativeWindow = (*Window)(nil)
