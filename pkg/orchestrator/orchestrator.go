// Package orchestrator owns a playback session. It wires the frame source,
// the texture bridge, the shader pipeline and the renderer together, then
// drives a capture run, a preview run, or both from one GL context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/user/glhdr/pkg/framesource"
	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
	"github.com/user/glhdr/pkg/render"
	"github.com/user/glhdr/pkg/shader"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is returned by Run when the configuration or the
// dependencies cannot serve the requested mode.
var ErrInvalidConfig = errors.New("orchestrator: invalid config")

// Mode selects the render targets of a session.
type Mode string

const (
	ModeCapture Mode = "capture"
	ModePreview Mode = "preview"
	ModeBoth    Mode = "both"
)

// Captures reports whether the mode records into an encoder.
func (m Mode) Captures() bool { return m == ModeCapture || m == ModeBoth }

// Previews reports whether the mode draws into a preview window.
func (m Mode) Previews() bool { return m == ModePreview || m == ModeBoth }

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCapture, ModePreview, ModeBoth:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// Pacing selects how the frame source spaces rendered frames.
type Pacing string

const (
	PacingFixed Pacing = "fixed"
	PacingPTS   Pacing = "pts"
)

// Config contains all configuration for a session.
type Config struct {
	// Input
	Mode      Mode
	InputPath string
	OutputDir string

	// Encoding
	Width           int
	Height          int
	BitrateBps      int
	FPS             int
	CaptureDuration time.Duration
	HDR             bool

	// Playback
	Pacing       Pacing
	PaceInterval time.Duration

	// Preview; zero takes the window's native size.
	PreviewWidth  int
	PreviewHeight int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeCapture,
		OutputDir: ".",

		Width:           1920,
		Height:          1080,
		BitrateBps:      10_000_000,
		FPS:             30,
		CaptureDuration: 5 * time.Second,
		HDR:             true,

		Pacing:       PacingFixed,
		PaceInterval: framesource.DefaultPaceInterval,
	}
}

// Validate checks the configuration for a run.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.InputPath == "" {
		return fmt.Errorf("%w: input path is required", ErrInvalidConfig)
	}
	if c.Pacing != PacingFixed && c.Pacing != PacingPTS {
		return fmt.Errorf("%w: unknown pacing %q", ErrInvalidConfig, c.Pacing)
	}
	if c.Mode.Captures() {
		if c.Width <= 0 || c.Height <= 0 || c.FPS <= 0 || c.BitrateBps <= 0 {
			return fmt.Errorf("%w: capture needs a positive size, frame rate and bitrate", ErrInvalidConfig)
		}
		if c.CaptureDuration <= 0 {
			return fmt.Errorf("%w: capture duration must be positive", ErrInvalidConfig)
		}
	}
	return nil
}

// OutputFileName returns the name of a capture started at t.
func OutputFileName(t time.Time) string {
	return fmt.Sprintf("10bit_hdr_video_opengl_%d.mp4", t.UnixMilli())
}

// Deps are the collaborators of a session. Recorder is required for
// capture and Preview for preview.
type Deps struct {
	EGL        ports.EGL
	Extractor  ports.Extractor
	Decoder    ports.VideoDecoder
	Recorder   ports.Recorder
	Preview    ports.NativeWindow
	FileSystem ports.FileSystem
	Logger     ports.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Session coordinates one run over its dependencies.
type Session struct {
	deps   Deps
	logger ports.Logger
	now    func() time.Time
}

// New creates a new Session.
func New(deps Deps) *Session {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		deps:   deps,
		logger: deps.Logger,
		now:    now,
	}
}

// RunResult contains the results of a run for summary generation.
type RunResult struct {
	Mode       Mode
	InputPath  string
	OutputPath string

	// Source information
	Track   media.Track
	Variant shader.Variant

	// Frame counts
	FramesDecoded   int
	FramesDropped   int
	FramesPresented int64
	FramesEncoded   int64
	PlaybackEnded   bool

	// Encoding information
	Width      int
	Height     int
	FPS        int
	BitrateBps int
	HDR        bool

	Elapsed time.Duration
}

// Run plays the input into the targets of cfg.Mode. A capture run stops
// after cfg.CaptureDuration; a preview-only run stops when playback ends.
// Cancelling ctx stops either.
func (s *Session) Run(ctx context.Context, cfg Config) (result RunResult, err error) {
	if err := cfg.Validate(); err != nil {
		return RunResult{}, err
	}
	if cfg.Mode.Captures() && (s.deps.Recorder == nil || s.deps.FileSystem == nil) {
		return RunResult{}, fmt.Errorf("%w: capture needs a recorder and a file system", ErrInvalidConfig)
	}
	if cfg.Mode.Previews() && s.deps.Preview == nil {
		return RunResult{}, fmt.Errorf("%w: preview needs a window", ErrInvalidConfig)
	}

	start := s.now()
	s.logger.Info("Starting %s session for %s", cfg.Mode, cfg.InputPath)

	r := &run{gl: &glState{logger: s.logger}}
	defer func() {
		if cerr := r.close(); cerr != nil {
			s.logger.Error("Teardown failed: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	// 1. Video track, which decides the pipeline and the color space
	r.ext, r.dec = s.deps.Extractor, s.deps.Decoder
	if err := s.deps.Extractor.SetDataSource(cfg.InputPath); err != nil {
		return RunResult{}, fmt.Errorf("prepare source: open extractor: %w", err)
	}
	track, err := framesource.SelectVideoTrack(s.deps.Extractor)
	if err != nil {
		return RunResult{}, fmt.Errorf("prepare source: %w", err)
	}
	variant := selectVariant(cfg.HDR, track.Format)
	hdr := variant == shader.HDR10

	// 2. GL context, external texture and bridge
	r.renderer = render.New(s.deps.EGL, render.Options{HDR: hdr, Logger: s.logger})
	if err := r.renderer.RegisterContextCallback(r.gl); err != nil {
		return RunResult{}, err
	}
	if err := r.renderer.Start(ctx); err != nil {
		return RunResult{}, fmt.Errorf("start renderer: %w", err)
	}

	// 3. Source decoding into the bridge, and the shader pipeline
	r.source = framesource.New(framesource.Options{
		Extractor: s.deps.Extractor,
		Decoder:   s.deps.Decoder,
		Output:    r.gl.bridge,
		Pacer:     newPacer(cfg),
		Logger:    s.logger,
	})
	if err := r.source.PrepareOpened(ctx); err != nil {
		return RunResult{}, fmt.Errorf("prepare source: %w", err)
	}
	track = r.source.Track()

	err = r.renderer.Do(func(_ ports.EGL, gl ports.GL) error {
		return r.gl.buildPipeline(gl, variant)
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("build pipeline: %w", err)
	}
	s.logger.Info("Playing %s track %dx%d with %s shader", track.Format.MIME, track.Format.Width, track.Format.Height, variant)

	// 4. Render targets
	result = RunResult{
		Mode:       cfg.Mode,
		InputPath:  cfg.InputPath,
		Track:      track,
		Variant:    variant,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FPS:        cfg.FPS,
		BitrateBps: cfg.BitrateBps,
		HDR:        hdr,
	}
	var targets []*render.RenderTarget
	if cfg.Mode.Captures() {
		path, err := s.startRecording(r, cfg, hdr)
		if err != nil {
			return RunResult{}, err
		}
		result.OutputPath = path
		targets = append(targets, r.encoder)
	}
	if cfg.Mode.Previews() {
		r.preview, err = r.renderer.Attach(s.deps.Preview, cfg.PreviewWidth, cfg.PreviewHeight,
			&render.PreviewTarget{Drawer: r.gl, HDR: hdr})
		if err != nil {
			return RunResult{}, fmt.Errorf("attach preview: %w", err)
		}
		targets = append(targets, r.preview)
	}
	r.gl.bridge.OnFrameAvailable(func() {
		for _, t := range targets {
			t.RequestRender()
		}
	})

	// 5. Play until the run ends
	if err := r.source.Play(); err != nil {
		return RunResult{}, fmt.Errorf("play: %w", err)
	}
	if err := s.wait(ctx, cfg, r); err != nil {
		s.logger.Error("Session failed: %v", err)
		return RunResult{}, err
	}

	if err := r.close(); err != nil {
		return RunResult{}, err
	}
	stats := r.source.Stats()
	result.FramesDecoded = stats.Rendered
	result.FramesDropped = stats.Discarded
	result.PlaybackEnded = r.ended
	if r.preview != nil {
		result.FramesPresented = r.preview.Draws()
	}
	if r.encoder != nil {
		result.FramesEncoded = r.encoder.Draws()
	}
	result.Elapsed = s.now().Sub(start)
	s.logger.Info("Session completed in %s", result.Elapsed.Round(time.Millisecond))
	return result, nil
}

func (s *Session) startRecording(r *run, cfg Config, hdr bool) (string, error) {
	if err := s.deps.FileSystem.MkdirAll(cfg.OutputDir); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(cfg.OutputDir, OutputFileName(s.now()))

	r.recorder = s.deps.Recorder
	r.recorderPrepared = true
	err := r.recorder.Prepare(ports.RecorderOptions{
		OutputPath: path,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FPS:        cfg.FPS,
		BitrateBps: cfg.BitrateBps,
		HDR:        hdr,
	})
	if err != nil {
		return "", fmt.Errorf("prepare recorder: %w", err)
	}

	r.encoder, err = r.renderer.Attach(r.recorder.InputSurface(), cfg.Width, cfg.Height, &render.EncoderTarget{
		Drawer:    r.gl,
		HDR:       hdr,
		Timestamp: r.gl.bridge.Timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("attach encoder: %w", err)
	}
	if err := r.recorder.Start(); err != nil {
		return "", fmt.Errorf("start recorder: %w", err)
	}
	r.recorderStarted = true
	s.logger.Info("Recording to %s", path)
	return path, nil
}

// wait blocks until the capture clock runs out, playback ends in a
// preview-only run, rendering or playback fails, or ctx is cancelled.
func (s *Session) wait(ctx context.Context, cfg Config, r *run) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Mode.Captures() {
		g.Go(func() error {
			timer := time.NewTimer(cfg.CaptureDuration)
			defer timer.Stop()
			select {
			case <-timer.C:
				s.logger.Info("Capture duration of %s elapsed", cfg.CaptureDuration)
				stop()
			case <-gctx.Done():
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-r.source.Done():
			if err := r.source.Err(); err != nil {
				return fmt.Errorf("playback: %w", err)
			}
			r.ended = true
			s.logger.Info("Playback ended")
			if !cfg.Mode.Captures() {
				stop()
			}
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-r.renderer.Done():
			if err := r.renderer.Err(); err != nil {
				return fmt.Errorf("render: %w", err)
			}
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func newPacer(cfg Config) framesource.Pacer {
	if cfg.Pacing == PacingPTS {
		return framesource.NewPTSPacer(cfg.PaceInterval)
	}
	return framesource.NewFixedPacer(cfg.PaceInterval)
}

// selectVariant picks the 10-bit YUV shader for HDR output of a 10-bit or
// HDR-tagged track.
func selectVariant(hdr bool, f media.Format) shader.Variant {
	if hdr && (f.BitDepth >= 10 || f.Color.IsHDR()) {
		return shader.HDR10
	}
	return shader.Standard
}
