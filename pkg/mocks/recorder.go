package mocks

import (
	"sync"

	"github.com/user/glhdr/pkg/ports"
)

// Recorder is a mock implementation of ports.Recorder backed by a Window.
type Recorder struct {
	PrepareFunc func(opts ports.RecorderOptions) error
	StartFunc   func() error
	StopFunc    func() error

	mu           sync.Mutex
	window       *Window
	Options      ports.RecorderOptions
	PrepareCalls int
	StartCalls   int
	StopCalls    int
	ReleaseCalls int
}

func (m *Recorder) Prepare(opts ports.RecorderOptions) error {
	m.mu.Lock()
	m.PrepareCalls++
	m.Options = opts
	m.mu.Unlock()
	if m.PrepareFunc != nil {
		if err := m.PrepareFunc(opts); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.window = NewWindow(opts.Width, opts.Height)
	m.mu.Unlock()
	return nil
}

// InputSurface returns the mock window created by Prepare.
func (m *Recorder) InputSurface() ports.NativeWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.window == nil {
		return nil
	}
	return m.window
}

// Window returns the input surface with its concrete type.
func (m *Recorder) Window() *Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

func (m *Recorder) Start() error {
	m.mu.Lock()
	m.StartCalls++
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return nil
}

func (m *Recorder) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *Recorder) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	return nil
}

// Calls returns the start, stop and release counts.
func (m *Recorder) Calls() (start, stop, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StartCalls, m.StopCalls, m.ReleaseCalls
}

var _ ports.Recorder = (*Recorder)(nil)
