package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/glhdr/pkg/adapters/logger"
	"github.com/user/glhdr/pkg/adapters/softgl"
	"github.com/user/glhdr/pkg/framesource"
	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/mocks"
	"github.com/user/glhdr/pkg/ports"
	"github.com/user/glhdr/pkg/render"
	"github.com/user/glhdr/pkg/shader"
)

var hlgFormat = media.Format{
	MIME:     media.MIMEVideoHEVC,
	Width:    16,
	Height:   8,
	BitDepth: 10,
	Color:    media.BT2020HLG,
}

var avcFormat = media.Format{
	MIME:     media.MIMEVideoAVC,
	Width:    16,
	Height:   8,
	BitDepth: 8,
	Color: media.ColorInfo{
		Primaries: media.PrimariesBT709,
		Transfer:  media.TransferBT709,
		Matrix:    media.MatrixBT709,
	},
}

var startedAt = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	display *softgl.Display
	ext     *mocks.Extractor
	dec     *mocks.Decoder
	rec     *mocks.Recorder
	preview *mocks.Window
	fs      *mocks.FileSystem
}

func newFixture(frames int, opts ...softgl.Option) *fixture {
	return &fixture{
		display: softgl.NewDisplay(opts...),
		ext:     mocks.NewVideoExtractor(hlgFormat, frames, 33*time.Millisecond, 5),
		dec:     &mocks.Decoder{},
		rec:     &mocks.Recorder{},
		preview: mocks.NewWindow(24, 12),
		fs:      mocks.NewFileSystem(),
	}
}

func (f *fixture) session() *Session {
	return New(Deps{
		EGL:        f.display,
		Extractor:  f.ext,
		Decoder:    f.dec,
		Recorder:   f.rec,
		Preview:    f.preview,
		FileSystem: f.fs,
		Logger:     logger.NewNoop(),
		Now:        func() time.Time { return startedAt },
	})
}

func testConfig(mode Mode) Config {
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.InputPath = "/videos/hlg.mp4"
	cfg.OutputDir = "/captures"
	cfg.Width = 32
	cfg.Height = 18
	cfg.PaceInterval = time.Millisecond
	cfg.CaptureDuration = 500 * time.Millisecond
	return cfg
}

func (f *fixture) assertReleased(t *testing.T) {
	t.Helper()
	if f.ext.Released() != 1 || f.dec.Released() != 1 {
		t.Errorf("extractor released %d times, decoder %d times, want 1", f.ext.Released(), f.dec.Released())
	}
	if f.display.LiveContexts() != 0 || f.display.LiveSurfaces() != 0 {
		t.Errorf("leaked %d contexts, %d surfaces", f.display.LiveContexts(), f.display.LiveSurfaces())
	}
}

func TestSession_Capture(t *testing.T) {
	f := newFixture(10)

	result, err := f.session().Run(context.Background(), testConfig(ModeCapture))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantPath := "/captures/10bit_hdr_video_opengl_1700000000000.mp4"
	if result.OutputPath != wantPath {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, wantPath)
	}
	wantOpts := ports.RecorderOptions{
		OutputPath: wantPath,
		Width:      32,
		Height:     18,
		FPS:        30,
		BitrateBps: 10_000_000,
		HDR:        true,
	}
	if f.rec.Options != wantOpts {
		t.Errorf("recorder options = %+v, want %+v", f.rec.Options, wantOpts)
	}
	if exists, _ := f.fs.Exists("/captures"); !exists {
		t.Error("output directory was not created")
	}
	if start, stop, release := f.rec.Calls(); f.rec.PrepareCalls != 1 || start != 1 || stop != 1 || release != 1 {
		t.Errorf("recorder prepare/start/stop/release = %d/%d/%d/%d, want 1 each", f.rec.PrepareCalls, start, stop, release)
	}

	frames := f.rec.Window().Frames()
	if len(frames) == 0 {
		t.Fatal("no frame reached the encoder")
	}
	last := frames[len(frames)-1]
	if last.TimestampNs != 9*33_000*1000 {
		t.Errorf("last frame timestamp = %d ns, want %d", last.TimestampNs, 9*33_000*1000)
	}
	if last.ColorSpace != ports.ColorSpaceBT2020HLG {
		t.Errorf("ColorSpace = %s, want bt2020-hlg", last.ColorSpace)
	}
	if b := last.Image.Bounds(); b.Dx() != 32 || b.Dy() != 18 {
		t.Errorf("frame size = %v, want 32x18", b)
	}

	if result.FramesDecoded != 10 {
		t.Errorf("FramesDecoded = %d, want 10", result.FramesDecoded)
	}
	if result.FramesEncoded != int64(len(frames)) {
		t.Errorf("FramesEncoded = %d, want %d", result.FramesEncoded, len(frames))
	}
	if !result.PlaybackEnded {
		t.Error("PlaybackEnded = false, want true")
	}
	if result.Variant != shader.HDR10 {
		t.Errorf("Variant = %s, want hdr10", result.Variant)
	}
	if f.preview.Count() != 0 {
		t.Errorf("preview received %d frames in capture mode", f.preview.Count())
	}
	f.assertReleased(t)
}

func TestSession_PreviewStopsAtEndOfStream(t *testing.T) {
	f := newFixture(6)
	cfg := testConfig(ModePreview)
	cfg.CaptureDuration = time.Hour

	result, err := f.session().Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if f.preview.Count() == 0 {
		t.Fatal("no frame presented")
	}
	if result.FramesPresented != int64(f.preview.Count()) {
		t.Errorf("FramesPresented = %d, want %d", result.FramesPresented, f.preview.Count())
	}
	if b := f.preview.Frames()[0].Image.Bounds(); b.Dx() != 24 || b.Dy() != 12 {
		t.Errorf("preview frame size = %v, want the window's 24x12", b)
	}
	if result.OutputPath != "" || f.rec.PrepareCalls != 0 {
		t.Errorf("preview run touched the recorder: path %q, %d prepares", result.OutputPath, f.rec.PrepareCalls)
	}
	f.assertReleased(t)
}

func TestSession_BothTargetsShareOneContext(t *testing.T) {
	f := newFixture(6)

	result, err := f.session().Run(context.Background(), testConfig(ModeBoth))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.preview.Count() == 0 || f.rec.Window().Count() == 0 {
		t.Errorf("preview %d frames, encoder %d frames, want both > 0", f.preview.Count(), f.rec.Window().Count())
	}
	if result.FramesPresented == 0 || result.FramesEncoded == 0 {
		t.Errorf("result counts = %d/%d", result.FramesPresented, result.FramesEncoded)
	}
	f.assertReleased(t)
}

func TestSession_SDR(t *testing.T) {
	f := newFixture(3)
	cfg := testConfig(ModePreview)
	cfg.HDR = false

	result, err := f.session().Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Variant != shader.Standard {
		t.Errorf("Variant = %s, want standard", result.Variant)
	}
	if cs := f.preview.Frames()[0].ColorSpace; cs != ports.ColorSpaceSRGB {
		t.Errorf("ColorSpace = %s, want srgb", cs)
	}
}

func TestSession_DecoderErrorEndsCapture(t *testing.T) {
	f := newFixture(10)
	boom := errors.New("codec reset")
	f.rec.StartFunc = func() error {
		f.dec.EmitError(boom)
		return nil
	}
	cfg := testConfig(ModeCapture)
	cfg.CaptureDuration = time.Hour

	_, err := f.session().Run(context.Background(), cfg)
	if !errors.Is(err, framesource.ErrDecoder) || !errors.Is(err, boom) {
		t.Fatalf("expected a decoder error wrapping %v, got %v", boom, err)
	}
	if start, stop, release := f.rec.Calls(); start != 1 || stop != 1 || release != 1 {
		t.Errorf("recorder start/stop/release = %d/%d/%d, want 1 each", start, stop, release)
	}
	f.assertReleased(t)
}

func TestSession_MissingExtension(t *testing.T) {
	f := newFixture(3, softgl.WithExtensions("EGL_KHR_gl_colorspace"))

	_, err := f.session().Run(context.Background(), testConfig(ModeCapture))
	if !errors.Is(err, render.ErrMissingExtension) {
		t.Fatalf("expected ErrMissingExtension, got %v", err)
	}
	if f.rec.PrepareCalls != 0 {
		t.Errorf("recorder prepared %d times, want 0", f.rec.PrepareCalls)
	}
	f.assertReleased(t)
}

func TestSession_SDRSourceSkipsHLGExtensions(t *testing.T) {
	f := newFixture(3, softgl.WithExtensions("EGL_KHR_gl_colorspace"))
	f.ext = mocks.NewVideoExtractor(avcFormat, 3, 33*time.Millisecond, 5)

	if _, err := f.session().Run(context.Background(), testConfig(ModePreview)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	f.assertReleased(t)
}

func TestSession_SDRSourceUnderDefaultConfig(t *testing.T) {
	f := newFixture(0)
	f.ext = mocks.NewVideoExtractor(avcFormat, 5, 33*time.Millisecond, 5)

	result, err := f.session().Run(context.Background(), testConfig(ModeCapture))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Variant != shader.Standard || result.HDR {
		t.Errorf("Variant = %s, HDR = %t, want standard and false", result.Variant, result.HDR)
	}
	if f.rec.Options.HDR {
		t.Error("recorder prepared for HDR output from an 8-bit BT.709 source")
	}
	frames := f.rec.Window().Frames()
	if len(frames) == 0 {
		t.Fatal("no frame reached the encoder")
	}
	if cs := frames[len(frames)-1].ColorSpace; cs != ports.ColorSpaceSRGB {
		t.Errorf("ColorSpace = %s, want srgb", cs)
	}
	f.assertReleased(t)
}

func TestSession_NoVideoTrack(t *testing.T) {
	f := newFixture(0)
	f.ext = &mocks.Extractor{Formats: []media.Format{{MIME: media.MIMEAudioAAC}}}

	_, err := f.session().Run(context.Background(), testConfig(ModeCapture))
	if !errors.Is(err, framesource.ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
	if f.rec.PrepareCalls != 0 {
		t.Errorf("recorder prepared %d times, want 0", f.rec.PrepareCalls)
	}
	f.assertReleased(t)
}

func TestSession_Cancel(t *testing.T) {
	f := newFixture(100)
	cfg := testConfig(ModePreview)
	cfg.PaceInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		f.preview.WaitForFrames(1, 5*time.Second)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := f.session().Run(ctx, cfg)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	f.assertReleased(t)
}

func TestSession_InvalidDeps(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		deps func(f *fixture) Deps
	}{
		{"capture without recorder", ModeCapture, func(f *fixture) Deps {
			return Deps{EGL: f.display, Extractor: f.ext, Decoder: f.dec, FileSystem: f.fs, Logger: logger.NewNoop()}
		}},
		{"preview without window", ModePreview, func(f *fixture) Deps {
			return Deps{EGL: f.display, Extractor: f.ext, Decoder: f.dec, Logger: logger.NewNoop()}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(1)
			_, err := New(tt.deps(f)).Run(context.Background(), testConfig(tt.mode))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with input", func(*Config) {}, true},
		{"unknown mode", func(c *Config) { c.Mode = "stream" }, false},
		{"missing input", func(c *Config) { c.InputPath = "" }, false},
		{"unknown pacing", func(c *Config) { c.Pacing = "vsync" }, false},
		{"zero fps", func(c *Config) { c.FPS = 0 }, false},
		{"zero capture duration", func(c *Config) { c.CaptureDuration = 0 }, false},
		{"preview ignores encoder settings", func(c *Config) { c.Mode = ModePreview; c.FPS = 0 }, true},
		{"pts pacing", func(c *Config) { c.Pacing = PacingPTS }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.InputPath = "in.mp4"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestOutputFileName(t *testing.T) {
	got := OutputFileName(time.UnixMilli(1_700_000_000_123))
	if want := "10bit_hdr_video_opengl_1700000000123.mp4"; got != want {
		t.Errorf("OutputFileName = %q, want %q", got, want)
	}
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name   string
		hdr    bool
		format media.Format
		want   shader.Variant
	}{
		{"10-bit hlg", true, hlgFormat, shader.HDR10},
		{"8-bit bt709", true, media.Format{BitDepth: 8}, shader.Standard},
		{"8-bit tagged hlg", true, media.Format{BitDepth: 8, Color: media.BT2020HLG}, shader.HDR10},
		{"sdr output", false, hlgFormat, shader.Standard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectVariant(tt.hdr, tt.format); got != tt.want {
				t.Errorf("selectVariant = %s, want %s", got, tt.want)
			}
		})
	}
}
