package framesource

import (
	"context"
	"time"
)

// DefaultPaceInterval is the delay after each rendered frame, about 30 fps.
const DefaultPaceInterval = 33 * time.Millisecond

// Pacer throttles the pump after a frame was released for rendering.
type Pacer interface {
	// Reset forgets timing history. Called whenever playback (re)starts.
	Reset()

	// Pace blocks after the frame with presentation time ptsUs was
	// released. It returns ctx.Err() if ctx ends first.
	Pace(ctx context.Context, ptsUs int64) error
}

// FixedPacer waits a constant interval after every frame.
type FixedPacer struct {
	Interval time.Duration
}

// NewFixedPacer returns a pacer with the given interval, or
// DefaultPaceInterval when interval is not positive.
func NewFixedPacer(interval time.Duration) *FixedPacer {
	if interval <= 0 {
		interval = DefaultPaceInterval
	}
	return &FixedPacer{Interval: interval}
}

func (p *FixedPacer) Reset() {}

func (p *FixedPacer) Pace(ctx context.Context, ptsUs int64) error {
	return sleep(ctx, p.Interval)
}

// PTSPacer holds each frame on screen for its own duration, measured from
// the stream's presentation timestamps and anchored to the wall clock so
// that scheduling delays do not accumulate. When timestamps are missing or
// go backwards it re-anchors and waits Fallback.
type PTSPacer struct {
	Fallback time.Duration

	now        func() time.Time
	anchored   bool
	anchorWall time.Time
	anchorPTS  int64
	lastPTS    int64
	lastDur    time.Duration
}

// NewPTSPacer returns a timestamp-driven pacer.
func NewPTSPacer(fallback time.Duration) *PTSPacer {
	if fallback <= 0 {
		fallback = DefaultPaceInterval
	}
	return &PTSPacer{Fallback: fallback, now: time.Now}
}

func (p *PTSPacer) Reset() {
	p.anchored = false
	p.lastDur = 0
}

func (p *PTSPacer) Pace(ctx context.Context, ptsUs int64) error {
	return sleep(ctx, p.delay(ptsUs, p.now()))
}

// delay returns how long to wait after releasing the frame at ptsUs at
// wall time now.
func (p *PTSPacer) delay(ptsUs int64, now time.Time) time.Duration {
	if !p.anchored || ptsUs < 0 || ptsUs <= p.lastPTS {
		p.anchored = ptsUs >= 0
		p.anchorWall = now
		p.anchorPTS = ptsUs
		p.lastPTS = ptsUs
		p.lastDur = 0
		return p.Fallback
	}

	p.lastDur = time.Duration(ptsUs-p.lastPTS) * time.Microsecond
	p.lastPTS = ptsUs

	// The next frame is due one frame duration after this one.
	due := p.anchorWall.Add(time.Duration(ptsUs-p.anchorPTS)*time.Microsecond + p.lastDur)
	if d := due.Sub(now); d > 0 {
		return d
	}
	return 0
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
