// Package framesource drives a container extractor and an asynchronous
// decoder, rendering decoded pictures into a producer surface.
//
// Decoder notifications are forwarded into an unbounded FIFO and consumed
// by a single pump goroutine, which is the only caller of decoder buffer
// operations. Control operations cancel and join the pump before touching
// the decoder or the extractor.
package framesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

// Output is the destination of decoded pictures, normally a texbridge.Bridge.
type Output interface {
	Surface() ports.Surface
	SetTextureSize(width, height int)
}

// Options configures a Source. Extractor, Decoder, Output and Logger are
// required.
type Options struct {
	Extractor ports.Extractor
	Decoder   ports.VideoDecoder
	Output    Output
	Pacer     Pacer
	Logger    ports.Logger
}

// Stats counts pump activity since Prepare.
type Stats struct {
	Queued    int
	Rendered  int
	Discarded int
	Flushes   int
	LastPTSUs int64
}

// Source plays the first video track of a container into an Output.
type Source struct {
	ext    ports.Extractor
	dec    ports.VideoDecoder
	out    Output
	pacer  Pacer
	logger ports.Logger

	c     *controller
	queue *eventQueue
	track media.Track

	// Owned by the running pump, or by a control operation after the join.
	eosQueued bool

	statsMu sync.Mutex
	stats   Stats

	onEvent func(gen uint64, ev Event)
}

// New creates an idle source.
func New(opts Options) *Source {
	pacer := opts.Pacer
	if pacer == nil {
		pacer = NewFixedPacer(DefaultPaceInterval)
	}
	return &Source{
		ext:    opts.Extractor,
		dec:    opts.Decoder,
		out:    opts.Output,
		pacer:  pacer,
		logger: opts.Logger.WithComponent("framesource"),
		c:      newController(),
		queue:  newEventQueue(),
	}
}

// SelectVideoTrack returns the first track whose MIME type starts with
// "video/".
func SelectVideoTrack(ext ports.Extractor) (media.Track, error) {
	for i := 0; i < ext.TrackCount(); i++ {
		f, err := ext.TrackFormat(i)
		if err != nil {
			return media.Track{}, fmt.Errorf("read track %d format: %w", i, err)
		}
		if f.IsVideo() {
			return media.Track{Index: i, Format: f}, nil
		}
	}
	return media.Track{}, ErrTrackNotFound
}

// Prepare opens the file at path and starts the decoder. On failure every
// resource is released and the source is unusable.
func (s *Source) Prepare(ctx context.Context, path string) error {
	return s.prepare(ctx, path, func() error { return s.ext.SetDataSource(path) })
}

// PrepareReader is Prepare for an already-open container.
func (s *Source) PrepareReader(ctx context.Context, r io.ReadSeeker) error {
	return s.prepare(ctx, "reader", func() error { return s.ext.SetDataSourceReader(r) })
}

// PrepareOpened is Prepare for an extractor whose data source the caller
// already set, for example to inspect the track before preparing.
func (s *Source) PrepareOpened(ctx context.Context) error {
	return s.prepare(ctx, "opened source", func() error { return nil })
}

func (s *Source) prepare(ctx context.Context, name string, open func() error) error {
	s.c.ctl.Lock()
	defer s.c.ctl.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	switch st, _ := s.c.current(); st {
	case StateIdle:
	case StateReleased:
		return ErrReleased
	default:
		return ErrAlreadyPrepared
	}

	if err := open(); err != nil {
		s.abort()
		return fmt.Errorf("open extractor: %w", err)
	}
	track, err := SelectVideoTrack(s.ext)
	if err != nil {
		s.abort()
		return err
	}
	if err := s.ext.SelectTrack(track.Index); err != nil {
		s.abort()
		return fmt.Errorf("select track %d: %w", track.Index, err)
	}

	f := track.Format
	s.out.SetTextureSize(f.Width, f.Height)
	s.dec.SetCallback(callback{q: s.queue})
	if err := s.dec.Configure(f, s.out.Surface()); err != nil {
		s.abort()
		return fmt.Errorf("configure decoder: %w", err)
	}
	if err := s.dec.Start(); err != nil {
		s.abort()
		return fmt.Errorf("start decoder: %w", err)
	}

	s.track = track
	s.c.setState(StatePrepared, nil)
	s.logger.Info("Prepared %s: track %d, %s %dx%d", name, track.Index, f.MIME, f.Width, f.Height)
	return nil
}

// abort releases everything after a failed Prepare. Must hold ctl.
func (s *Source) abort() {
	s.ext.Release()
	s.dec.Release()
	s.out.Surface().Release()
	s.c.setState(StateReleased, nil)
}

// Track returns the selected video track.
func (s *Source) Track() media.Track {
	s.c.ctl.Lock()
	defer s.c.ctl.Unlock()
	return s.track
}

// State returns the current playback state.
func (s *Source) State() State {
	st, _ := s.c.current()
	return st
}

// Err returns the error that moved the source to StateFailed, if any.
func (s *Source) Err() error {
	_, err := s.c.current()
	return err
}

// Done returns a channel closed when playback ends, fails or the source is
// destroyed. Play after the end replaces the channel.
func (s *Source) Done() <-chan struct{} {
	return s.c.doneChan()
}

// Stats returns a snapshot of the pump counters.
func (s *Source) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// takeControl stops the pump and returns the state it left behind, or the
// error that forbids a control operation in that state. Must hold ctl.
func (s *Source) takeControl() (State, error) {
	s.c.stopPump()
	st, err := s.c.current()
	switch st {
	case StateIdle:
		return st, ErrNotPrepared
	case StateReleased:
		return st, ErrReleased
	case StateFailed:
		return st, err
	}
	return st, nil
}

// Play starts or resumes playback. After the end of the stream it restarts
// from the beginning. It returns once the pump is running.
func (s *Source) Play() error {
	s.c.ctl.Lock()
	defer s.c.ctl.Unlock()

	st, err := s.takeControl()
	if err != nil {
		return err
	}
	if st == StateEnded {
		if err := s.reposition(0); err != nil {
			return s.fail(err)
		}
		s.c.rearm()
	}

	s.pacer.Reset()
	s.c.setState(StatePlaying, nil)
	s.logger.Debug("Play from %s", st)
	s.c.startPump(func(ctx context.Context, gen uint64) (State, error) {
		return s.pump(ctx, gen, -1)
	})
	return nil
}

// Pause stops the pump. The decoder stays configured and queued events are
// kept for the next Play.
func (s *Source) Pause() error {
	s.c.ctl.Lock()
	defer s.c.ctl.Unlock()

	st, err := s.takeControl()
	if err != nil {
		return err
	}
	if st != StateEnded {
		s.c.setState(StatePaused, nil)
	}
	return nil
}

// SeekTo positions playback at positionMs and renders the first frame at or
// after it, then pauses. A target behind the next sample flushes the
// decoder; a target ahead of it does not.
func (s *Source) SeekTo(positionMs int64) error {
	s.c.ctl.Lock()
	defer s.c.ctl.Unlock()

	if _, err := s.takeControl(); err != nil {
		return err
	}
	if positionMs < 0 {
		positionMs = 0
	}
	target := positionMs * 1000
	if err := s.reposition(target); err != nil {
		return s.fail(err)
	}

	s.c.rearm()
	s.c.setState(StateSeeking, nil)
	s.logger.Info("Seeking to %d ms", positionMs)
	s.c.startPump(func(ctx context.Context, gen uint64) (State, error) {
		return s.pump(ctx, gen, target)
	})
	return nil
}

// reposition moves the extractor to the sync sample at or before targetUs.
// The decoder is flushed and restarted when the target lies behind the
// next sample or the end of stream was already queued. Must hold ctl with
// no pump running.
func (s *Source) reposition(targetUs int64) error {
	next := s.ext.SampleTime()
	flush := s.eosQueued || next < 0 || next > targetUs

	if err := s.ext.SeekTo(targetUs, ports.SeekPreviousSync); err != nil {
		return fmt.Errorf("seek extractor to %d us: %w", targetUs, err)
	}
	if !flush {
		return nil
	}

	if err := s.dec.Flush(); err != nil {
		return &DecoderError{Op: "flush", Err: err}
	}
	dropped := s.queue.reset()
	if err := s.dec.Start(); err != nil {
		return &DecoderError{Op: "start", Err: err}
	}
	s.eosQueued = false

	s.statsMu.Lock()
	s.stats.Flushes++
	s.statsMu.Unlock()
	s.logger.Debug("Flushed decoder, dropped %d stale events", dropped)
	return nil
}

func (s *Source) fail(err error) error {
	s.logger.Error("Playback failed: %v", err)
	s.c.setState(StateFailed, err)
	return err
}

// Destroy stops the pump and releases the extractor, the decoder and the
// producer surface. It is safe to call more than once.
func (s *Source) Destroy() error {
	s.c.ctl.Lock()
	defer s.c.ctl.Unlock()

	s.c.stopPump()
	if st, _ := s.c.current(); st == StateReleased {
		return nil
	}

	var errs []error
	if err := s.ext.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release extractor: %w", err))
	}
	if err := s.dec.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release decoder: %w", err))
	}
	s.out.Surface().Release()
	s.queue.reset()
	s.c.setState(StateReleased, nil)
	s.logger.Debug("Released")
	return errors.Join(errs...)
}

// pump consumes decoder events until cancelled, the stream ends, the
// decoder fails, or, when seekUs >= 0, the first frame at or after seekUs
// was rendered.
func (s *Source) pump(ctx context.Context, gen uint64, seekUs int64) (State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return StatePaused, err
		}
		ev, err := s.queue.receive(ctx)
		if err != nil {
			return StatePaused, err
		}
		if s.onEvent != nil {
			s.onEvent(gen, ev)
		}

		switch e := ev.(type) {
		case InputBufferReady:
			if err := s.feed(e.Index); err != nil {
				return s.pumpFailed(err)
			}

		case OutputBufferReady:
			if e.Info.IsEndOfStream() {
				if err := s.dec.ReleaseOutputBuffer(e.Index, false); err != nil {
					return s.pumpFailed(&DecoderError{Op: "release output", Err: err})
				}
				s.logger.Info("Reached end of stream")
				return StateEnded, nil
			}

			pts := e.Info.PresentationTimeUs
			render := seekUs < 0 || pts >= seekUs
			if err := s.dec.ReleaseOutputBuffer(e.Index, render); err != nil {
				return s.pumpFailed(&DecoderError{Op: "release output", Err: err})
			}
			s.countOutput(pts, render)
			if !render {
				continue
			}
			if seekUs >= 0 {
				s.logger.Debug("Seek reached frame at %d us", pts)
				return StatePaused, nil
			}
			if err := s.pacer.Pace(ctx, pts); err != nil {
				return StatePaused, err
			}

		case OutputFormatChanged:
			s.logger.Debug("Output format changed to %dx%d", e.Format.Width, e.Format.Height)

		case DecoderFailed:
			return s.pumpFailed(&DecoderError{Op: "decode", Err: e.Err})
		}
	}
}

func (s *Source) pumpFailed(err error) (State, error) {
	s.logger.Error("Playback failed: %v", err)
	return StateFailed, err
}

// feed fills input buffer index with the next sample, or queues the end of
// stream once the track is exhausted.
func (s *Source) feed(index int) error {
	if s.eosQueued {
		return nil
	}
	buf, err := s.dec.InputBuffer(index)
	if err != nil {
		return &DecoderError{Op: "input buffer", Err: err}
	}
	n, err := s.ext.ReadSampleData(buf)
	if err != nil {
		return fmt.Errorf("read sample: %w", err)
	}
	if n < 0 {
		if err := s.dec.QueueInputBuffer(index, 0, 0, 0, media.FlagEndOfStream); err != nil {
			return &DecoderError{Op: "queue end of stream", Err: err}
		}
		s.eosQueued = true
		s.logger.Debug("Queued end of stream")
		return nil
	}

	pts := s.ext.SampleTime()
	flags := s.ext.SampleFlags() &^ media.FlagEndOfStream
	if err := s.dec.QueueInputBuffer(index, 0, n, pts, flags); err != nil {
		return &DecoderError{Op: "queue input", Err: err}
	}
	s.ext.Advance()

	s.statsMu.Lock()
	s.stats.Queued++
	s.statsMu.Unlock()
	return nil
}

func (s *Source) countOutput(ptsUs int64, rendered bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if rendered {
		s.stats.Rendered++
		s.stats.LastPTSUs = ptsUs
	} else {
		s.stats.Discarded++
	}
}
