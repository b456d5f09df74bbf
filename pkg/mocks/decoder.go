package mocks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

// QueuedInput records a call to QueueInputBuffer.
type QueuedInput struct {
	Index       int
	Data        []byte
	TimestampUs int64
	Flags       media.SampleFlags
}

// ReleasedOutput records a call to ReleaseOutputBuffer.
type ReleasedOutput struct {
	Index              int
	Render             bool
	PresentationTimeUs int64
}

// Decoder is a mock implementation of ports.VideoDecoder. Every queued
// input immediately produces one output with the same timestamp. Callbacks
// are delivered from a single goroutine, and Flush drops undelivered
// callbacks before returning.
type Decoder struct {
	InputBuffers    int
	InputBufferSize int
	ConfigureFunc   func(format media.Format, surface ports.Surface) error
	PictureFunc     func(format media.Format, info media.BufferInfo) *media.Picture

	mu         sync.Mutex
	cb         ports.DecoderCallback
	format     media.Format
	surface    ports.Surface
	configured bool
	started    bool
	released   bool
	epoch      int
	inputs     [][]byte
	owned      map[int]bool
	outputs    map[int]media.BufferInfo
	nextOut    int
	events     chan func()
	quit       chan struct{}

	queued       []QueuedInput
	releases     []ReleasedOutput
	flushCount   int
	startCount   int
	releaseCount int
}

func (m *Decoder) SetCallback(cb ports.DecoderCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

func (m *Decoder) Configure(format media.Format, surface ports.Surface) error {
	if m.ConfigureFunc != nil {
		if err := m.ConfigureFunc(format, surface); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cb == nil {
		return errors.New("mock decoder: callback not set")
	}
	if m.InputBuffers == 0 {
		m.InputBuffers = 4
	}
	if m.InputBufferSize == 0 {
		m.InputBufferSize = 1 << 16
	}
	m.format = format
	m.surface = surface
	m.inputs = make([][]byte, m.InputBuffers)
	for i := range m.inputs {
		m.inputs[i] = make([]byte, m.InputBufferSize)
	}
	m.owned = make(map[int]bool)
	m.outputs = make(map[int]media.BufferInfo)
	if !m.configured {
		m.events = make(chan func(), 4096)
		m.quit = make(chan struct{})
		go m.loop(m.events, m.quit)
	}
	m.configured = true
	return nil
}

func (m *Decoder) loop(events chan func(), quit chan struct{}) {
	for {
		select {
		case fn := <-events:
			fn()
		case <-quit:
			return
		}
	}
}

// post schedules fn on the callback goroutine; it is skipped if the
// decoder was flushed or stopped in the meantime. Must hold m.mu.
func (m *Decoder) post(fn func(cb ports.DecoderCallback)) {
	epoch := m.epoch
	events, quit := m.events, m.quit
	ev := func() {
		m.mu.Lock()
		ok := m.epoch == epoch && m.started
		cb := m.cb
		m.mu.Unlock()
		if ok {
			fn(cb)
		}
	}
	select {
	case events <- ev:
	case <-quit:
	}
}

// barrier waits until every callback posted so far has run or been dropped.
func (m *Decoder) barrier() {
	done := make(chan struct{})
	select {
	case m.events <- func() { close(done) }:
		<-done
	case <-m.quit:
	}
}

func (m *Decoder) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured || m.released {
		return errors.New("mock decoder: not configured")
	}
	m.started = true
	m.startCount++
	for i := range m.inputs {
		idx := i
		m.owned[idx] = true
		m.post(func(cb ports.DecoderCallback) { cb.OnInputBufferAvailable(idx) })
	}
	return nil
}

func (m *Decoder) InputBuffer(index int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.inputs) {
		return nil, fmt.Errorf("mock decoder: no input buffer %d", index)
	}
	return m.inputs[index], nil
}

func (m *Decoder) QueueInputBuffer(index, offset, size int, timestampUs int64, flags media.SampleFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errors.New("mock decoder: not started")
	}
	if !m.owned[index] {
		return fmt.Errorf("mock decoder: input buffer %d not owned by client", index)
	}
	delete(m.owned, index)

	data := append([]byte(nil), m.inputs[index][offset:offset+size]...)
	m.queued = append(m.queued, QueuedInput{Index: index, Data: data, TimestampUs: timestampUs, Flags: flags})

	info := media.BufferInfo{Size: size, PresentationTimeUs: timestampUs}
	if flags.Has(media.FlagEndOfStream) {
		info.Flags = media.FlagEndOfStream
		info.Size = 0
	}
	out := m.nextOut
	m.nextOut++
	m.outputs[out] = info
	m.post(func(cb ports.DecoderCallback) { cb.OnOutputBufferAvailable(out, info) })

	if !flags.Has(media.FlagEndOfStream) {
		m.owned[index] = true
		m.post(func(cb ports.DecoderCallback) { cb.OnInputBufferAvailable(index) })
	}
	return nil
}

func (m *Decoder) ReleaseOutputBuffer(index int, render bool) error {
	m.mu.Lock()
	info, ok := m.outputs[index]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("mock decoder: output buffer %d not owned by client", index)
	}
	delete(m.outputs, index)
	m.releases = append(m.releases, ReleasedOutput{Index: index, Render: render, PresentationTimeUs: info.PresentationTimeUs})
	surface, format := m.surface, m.format
	m.mu.Unlock()

	if !render || surface == nil || info.Size == 0 {
		return nil
	}
	var pic *media.Picture
	if m.PictureFunc != nil {
		pic = m.PictureFunc(format, info)
	} else {
		pic = media.NewPicture(max(format.Width, 2), max(format.Height, 2), 10)
		pic.Fill(512, 512, 512)
		pic.Color = format.Color
	}
	pic.TimestampUs = info.PresentationTimeUs
	return surface.QueueBuffer(pic)
}

func (m *Decoder) Flush() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return errors.New("mock decoder: flush while not executing")
	}
	m.epoch++
	m.started = false
	m.flushCount++
	m.owned = make(map[int]bool)
	m.outputs = make(map[int]media.BufferInfo)
	m.mu.Unlock()

	m.barrier()
	return nil
}

func (m *Decoder) Stop() error {
	m.mu.Lock()
	m.epoch++
	m.started = false
	configured := m.configured
	m.mu.Unlock()
	if configured {
		m.barrier()
	}
	return nil
}

func (m *Decoder) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCount++
	if m.released {
		return nil
	}
	m.released = true
	m.started = false
	m.epoch++
	if m.quit != nil {
		close(m.quit)
	}
	return nil
}

// EmitError delivers err through OnError.
func (m *Decoder) EmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.post(func(cb ports.DecoderCallback) { cb.OnError(err) })
}

// EmitFormatChanged delivers format through OnOutputFormatChanged.
func (m *Decoder) EmitFormatChanged(format media.Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.post(func(cb ports.DecoderCallback) { cb.OnOutputFormatChanged(format) })
}

// Queued returns a copy of the recorded input submissions.
func (m *Decoder) Queued() []QueuedInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QueuedInput(nil), m.queued...)
}

// Releases returns a copy of the recorded output releases.
func (m *Decoder) Releases() []ReleasedOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReleasedOutput(nil), m.releases...)
}

// Flushes returns how many times Flush succeeded.
func (m *Decoder) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushCount
}

// Starts returns how many times Start succeeded.
func (m *Decoder) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

// Released returns how many times Release was called.
func (m *Decoder) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseCount
}

var _ ports.VideoDecoder = (*Decoder)(nil)
