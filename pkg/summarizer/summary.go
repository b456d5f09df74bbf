// Package summarizer provides summary generation for playback and capture runs.
package summarizer

import (
	"time"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/orchestrator"
)

// Summary contains all data collected during a session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time
	Mode        string

	// Source track
	Input InputInfo

	// Playback counters
	Playback PlaybackInfo

	// Capture output; empty for preview-only runs
	Output OutputInfo
}

// InputInfo describes the played track.
type InputInfo struct {
	Path     string
	MIME     string
	Width    int
	Height   int
	BitDepth int
	Color    media.ColorInfo
	Duration time.Duration
}

// PlaybackInfo contains frame counters of the run.
type PlaybackInfo struct {
	Shader          string
	FramesDecoded   int
	FramesDropped   int
	FramesPresented int64
	Ended           bool
	Elapsed         time.Duration
}

// OutputInfo contains information about the recorded file.
type OutputInfo struct {
	Path          string
	Width         int
	Height        int
	FPS           int
	BitrateBps    int
	HDR           bool
	FramesEncoded int64
	FileSize      int64
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithMode sets the session mode.
func (b *Builder) WithMode(mode string) *Builder {
	b.summary.Mode = mode
	return b
}

// WithInput sets the source track information.
func (b *Builder) WithInput(path string, track media.Track) *Builder {
	f := track.Format
	b.summary.Input = InputInfo{
		Path:     path,
		MIME:     f.MIME,
		Width:    f.Width,
		Height:   f.Height,
		BitDepth: f.BitDepth,
		Color:    f.Color,
		Duration: f.Duration,
	}
	return b
}

// WithPlayback sets playback counters.
func (b *Builder) WithPlayback(playback PlaybackInfo) *Builder {
	b.summary.Playback = playback
	return b
}

// WithOutput sets capture output information.
func (b *Builder) WithOutput(output OutputInfo) *Builder {
	b.summary.Output = output
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}

// FromRunResult builds a Summary from a finished session. fileSize is the
// size of the recorded file, or 0 when unknown.
func FromRunResult(r orchestrator.RunResult, fileSize int64) *Summary {
	b := NewBuilder().
		WithMode(string(r.Mode)).
		WithInput(r.InputPath, r.Track).
		WithPlayback(PlaybackInfo{
			Shader:          r.Variant.String(),
			FramesDecoded:   r.FramesDecoded,
			FramesDropped:   r.FramesDropped,
			FramesPresented: r.FramesPresented,
			Ended:           r.PlaybackEnded,
			Elapsed:         r.Elapsed,
		})
	if r.OutputPath != "" {
		b.WithOutput(OutputInfo{
			Path:          r.OutputPath,
			Width:         r.Width,
			Height:        r.Height,
			FPS:           r.FPS,
			BitrateBps:    r.BitrateBps,
			HDR:           r.HDR,
			FramesEncoded: r.FramesEncoded,
			FileSize:      fileSize,
		})
	}
	return b.Build()
}
