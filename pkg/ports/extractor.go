// Package ports defines interfaces for external dependencies.
package ports

import (
	"io"

	"github.com/user/glhdr/pkg/media"
)

// SeekMode selects how Extractor.SeekTo snaps to a sample.
type SeekMode int

const (
	// SeekPreviousSync positions on the last sync sample at or before the target.
	SeekPreviousSync SeekMode = iota
	// SeekNextSync positions on the first sync sample at or after the target.
	SeekNextSync
	// SeekClosestSync positions on the sync sample nearest to the target.
	SeekClosestSync
)

// Extractor abstracts a container demuxer with a read cursor over the
// samples of the selected track.
type Extractor interface {
	// SetDataSource opens a container from a file path.
	SetDataSource(path string) error

	// SetDataSourceReader opens a container from an already-open reader.
	SetDataSourceReader(r io.ReadSeeker) error

	// TrackCount returns the number of tracks in the container.
	TrackCount() int

	// TrackFormat returns the format of the track at index.
	TrackFormat(index int) (media.Format, error)

	// SelectTrack makes the track at index the source of ReadSampleData.
	SelectTrack(index int) error

	// ReadSampleData copies the current sample into buf and returns its size,
	// or -1 once every sample has been read.
	ReadSampleData(buf []byte) (int, error)

	// SampleTime returns the presentation time of the current sample in
	// microseconds, or -1 at end of stream.
	SampleTime() int64

	// SampleFlags returns the flags of the current sample.
	SampleFlags() media.SampleFlags

	// Advance moves to the next sample and reports whether one exists.
	Advance() bool

	// SeekTo repositions the cursor relative to timeUs.
	SeekTo(timeUs int64, mode SeekMode) error

	// Release closes the container.
	Release() error
}
