// Package mp4extractor implements the container demuxer port over ISO BMFF
// files with github.com/Eyevinn/mp4ff. Progressive and fragmented files are
// supported; video samples are handed out in Annex B form.
package mp4extractor

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

var (
	// ErrNoSource is returned when samples are requested before a data
	// source was set.
	ErrNoSource = errors.New("mp4extractor: no data source")

	// ErrNoTrackSelected is returned by sample accessors before SelectTrack.
	ErrNoTrackSelected = errors.New("mp4extractor: no track selected")

	// ErrBufferTooSmall is returned by ReadSampleData when the sample does
	// not fit.
	ErrBufferTooSmall = errors.New("mp4extractor: buffer too small")
)

// Extractor implements ports.Extractor.
type Extractor struct {
	fs     ports.FileSystem
	logger ports.Logger

	mu       sync.Mutex
	src      io.ReadSeeker
	closer   io.Closer
	tracks   []*track
	selected int
	cursor   int
}

// New returns an extractor that opens paths through fs.
func New(fs ports.FileSystem, logger ports.Logger) *Extractor {
	return &Extractor{
		fs:       fs,
		logger:   logger.WithComponent("mp4extractor"),
		selected: -1,
	}
}

func (e *Extractor) SetDataSource(path string) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := e.SetDataSourceReader(f); err != nil {
		f.Close()
		return err
	}
	e.mu.Lock()
	e.closer = f
	e.mu.Unlock()
	return nil
}

func (e *Extractor) SetDataSourceReader(r io.ReadSeeker) error {
	if r == nil {
		return ErrNoSource
	}
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return fmt.Errorf("decode mp4: %w", err)
	}
	tracks, err := buildIndex(f)
	if err != nil {
		return err
	}
	e.logger.Debug("Container opened with %d tracks", len(tracks))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closer != nil {
		e.closer.Close()
		e.closer = nil
	}
	e.src = r
	e.tracks = tracks
	e.selected = -1
	e.cursor = 0
	return nil
}

func (e *Extractor) TrackCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tracks)
}

func (e *Extractor) TrackFormat(index int) (media.Format, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.tracks) {
		return media.Format{}, fmt.Errorf("mp4extractor: no track %d", index)
	}
	return e.tracks[index].format, nil
}

func (e *Extractor) SelectTrack(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.tracks) {
		return fmt.Errorf("mp4extractor: no track %d", index)
	}
	e.selected = index
	e.cursor = 0
	return nil
}

// current returns the sample under the cursor. Must hold e.mu.
func (e *Extractor) current() (*track, *sample) {
	if e.selected < 0 {
		return nil, nil
	}
	t := e.tracks[e.selected]
	if e.cursor >= len(t.samples) {
		return t, nil
	}
	return t, &t.samples[e.cursor]
}

// ReadSampleData copies the current sample into buf. Length-prefixed NAL
// units are rewritten to Annex B, and sync samples are preceded by the
// track's parameter sets.
func (e *Extractor) ReadSampleData(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0, ErrNoSource
	}
	t, s := e.current()
	if t == nil {
		return 0, ErrNoTrackSelected
	}
	if s == nil {
		return -1, nil
	}
	data, err := s.load(e.src)
	if err != nil {
		return 0, err
	}
	if t.nalus {
		annexB, err := media.LengthPrefixedToAnnexB(data)
		if err != nil {
			return 0, fmt.Errorf("sample at %dus: %w", s.ptsUs, err)
		}
		if s.sync && len(t.csd) > 0 {
			annexB = append(append(make([]byte, 0, len(t.csd)+len(annexB)), t.csd...), annexB...)
		}
		data = annexB
	}
	if len(buf) < len(data) {
		return 0, fmt.Errorf("%w: %d bytes for a %d byte sample", ErrBufferTooSmall, len(buf), len(data))
	}
	return copy(buf, data), nil
}

func (e *Extractor) SampleTime() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, s := e.current()
	if s == nil {
		return -1
	}
	return s.ptsUs
}

func (e *Extractor) SampleFlags() media.SampleFlags {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, s := e.current()
	if s == nil || !s.sync {
		return 0
	}
	return media.FlagSync
}

func (e *Extractor) Advance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, _ := e.current()
	if t == nil {
		return false
	}
	if e.cursor < len(t.samples) {
		e.cursor++
	}
	return e.cursor < len(t.samples)
}

// SeekTo moves the cursor to a sync sample around timeUs. Without a sync
// sample after timeUs, SeekNextSync leaves the cursor at end of stream.
func (e *Extractor) SeekTo(timeUs int64, mode ports.SeekMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, _ := e.current()
	if t == nil {
		return ErrNoTrackSelected
	}
	e.cursor = seekIndex(t.samples, timeUs, mode)
	return nil
}

func seekIndex(samples []sample, timeUs int64, mode ports.SeekMode) int {
	prev, next := -1, len(samples)
	for i := range samples {
		s := &samples[i]
		if !s.sync {
			continue
		}
		if s.ptsUs <= timeUs {
			prev = i
		} else if next == len(samples) {
			next = i
		}
	}
	if prev < 0 {
		// Nothing at or before the target; the first sync sample is the
		// earliest decodable position.
		prev = next
	}
	switch mode {
	case ports.SeekNextSync:
		if prev < len(samples) && samples[prev].ptsUs == timeUs {
			return prev
		}
		return next
	case ports.SeekClosestSync:
		if next < len(samples) && prev < len(samples) &&
			samples[next].ptsUs-timeUs < timeUs-samples[prev].ptsUs {
			return next
		}
		return prev
	default:
		return prev
	}
}

func (e *Extractor) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.closer != nil {
		err = e.closer.Close()
		e.closer = nil
	}
	e.src = nil
	e.tracks = nil
	e.selected = -1
	return err
}

var _ ports.Extractor = (*Extractor)(nil)
