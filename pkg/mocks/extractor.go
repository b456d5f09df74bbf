package mocks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

// SeekCall records a call to SeekTo.
type SeekCall struct {
	TimeUs int64
	Mode   ports.SeekMode
}

// Extractor is a mock implementation of ports.Extractor serving in-memory
// samples for the track marked by VideoTrack.
type Extractor struct {
	Formats    []media.Format
	Samples    []media.CodedSample
	VideoTrack int

	SetDataSourceFunc func(path string) error

	mu       sync.Mutex
	selected int
	cursor   int

	// Recorded calls for verification
	Paths        []string
	SeekCalls    []SeekCall
	ReleaseCalls int
}

// NewVideoExtractor returns an extractor with one video track of n samples
// spaced by interval, with a sync sample every gop samples. Each sample
// payload is its index as a 4-byte big-endian integer.
func NewVideoExtractor(format media.Format, n int, interval time.Duration, gop int) *Extractor {
	samples := make([]media.CodedSample, n)
	for i := range samples {
		data := make([]byte, 4)
		binary.BigEndian.PutUint32(data, uint32(i))
		var flags media.SampleFlags
		if gop > 0 && i%gop == 0 {
			flags = media.FlagSync
		}
		samples[i] = media.CodedSample{
			Data:        data,
			TimestampUs: int64(i) * interval.Microseconds(),
			Flags:       flags,
		}
	}
	return &Extractor{Formats: []media.Format{format}, Samples: samples, selected: -1}
}

func (m *Extractor) SetDataSource(path string) error {
	m.mu.Lock()
	m.Paths = append(m.Paths, path)
	m.mu.Unlock()
	if m.SetDataSourceFunc != nil {
		return m.SetDataSourceFunc(path)
	}
	return nil
}

func (m *Extractor) SetDataSourceReader(r io.ReadSeeker) error {
	if r == nil {
		return errors.New("mock extractor: nil reader")
	}
	return m.SetDataSource("reader")
}

func (m *Extractor) TrackCount() int {
	return len(m.Formats)
}

func (m *Extractor) TrackFormat(index int) (media.Format, error) {
	if index < 0 || index >= len(m.Formats) {
		return media.Format{}, fmt.Errorf("mock extractor: no track %d", index)
	}
	return m.Formats[index], nil
}

func (m *Extractor) SelectTrack(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.Formats) {
		return fmt.Errorf("mock extractor: no track %d", index)
	}
	m.selected = index
	m.cursor = 0
	return nil
}

// current returns the sample under the cursor. Must hold m.mu.
func (m *Extractor) current() (media.CodedSample, bool) {
	if m.selected != m.VideoTrack || m.cursor >= len(m.Samples) {
		return media.CodedSample{}, false
	}
	return m.Samples[m.cursor], true
}

func (m *Extractor) ReadSampleData(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.current()
	if !ok {
		return -1, nil
	}
	if len(buf) < len(s.Data) {
		return 0, fmt.Errorf("mock extractor: buffer of %d bytes too small for %d", len(buf), len(s.Data))
	}
	return copy(buf, s.Data), nil
}

func (m *Extractor) SampleTime() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.current()
	if !ok {
		return -1
	}
	return s.TimestampUs
}

func (m *Extractor) SampleFlags() media.SampleFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, _ := m.current()
	return s.Flags
}

func (m *Extractor) Advance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor < len(m.Samples) {
		m.cursor++
	}
	return m.cursor < len(m.Samples)
}

func (m *Extractor) SeekTo(timeUs int64, mode ports.SeekMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SeekCalls = append(m.SeekCalls, SeekCall{TimeUs: timeUs, Mode: mode})

	prev, next := 0, len(m.Samples)
	for i, s := range m.Samples {
		if !s.Flags.Has(media.FlagSync) {
			continue
		}
		if s.TimestampUs <= timeUs {
			prev = i
		} else if next == len(m.Samples) {
			next = i
		}
	}
	switch mode {
	case ports.SeekNextSync:
		m.cursor = next
	case ports.SeekClosestSync:
		m.cursor = prev
		if next < len(m.Samples) && m.Samples[next].TimestampUs-timeUs < timeUs-m.Samples[prev].TimestampUs {
			m.cursor = next
		}
	default:
		m.cursor = prev
	}
	return nil
}

func (m *Extractor) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	return nil
}

// Seeks returns a copy of the recorded seeks.
func (m *Extractor) Seeks() []SeekCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SeekCall(nil), m.SeekCalls...)
}

// Released returns how many times Release was called.
func (m *Extractor) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReleaseCalls
}

var _ ports.Extractor = (*Extractor)(nil)
