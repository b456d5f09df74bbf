// Package hevcrecorder records frames presented to an input surface into a
// 10-bit HEVC MP4 file. Frames are piped to ffmpeg's libx265 encoder and
// the elementary stream is muxed with github.com/Eyevinn/mp4ff.
package hevcrecorder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"sync"

	xdraw "golang.org/x/image/draw"

	"github.com/user/glhdr/pkg/adapters/ffmpegcodec"
	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

var (
	// ErrInvalidOptions is returned by Prepare for unusable options.
	ErrInvalidOptions = errors.New("hevcrecorder: invalid options")

	// ErrInvalidState is returned when calls do not follow Prepare, Start,
	// Stop, Release.
	ErrInvalidState = errors.New("hevcrecorder: invalid state")

	// ErrEncodeFailed is returned when ffmpeg fails.
	ErrEncodeFailed = errors.New("hevcrecorder: encoding failed")
)

type state int

const (
	stateIdle state = iota
	statePrepared
	stateRecording
	stateStopped
	stateReleased
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithFFmpegPath uses path instead of searching for ffmpeg.
func WithFFmpegPath(path string) Option {
	return func(r *Recorder) { r.path = path }
}

// WithStartFunc replaces the process launcher.
func WithStartFunc(start ffmpegcodec.StartFunc) Option {
	return func(r *Recorder) { r.start = start }
}

// Recorder implements ports.Recorder.
type Recorder struct {
	fs     ports.FileSystem
	logger ports.Logger
	path   string
	start  ffmpegcodec.StartFunc
	mux    func(w io.Writer, t *muxTrack) error

	mu         sync.Mutex
	state      state
	opts       ports.RecorderOptions
	window     *inputWindow
	proc       ffmpegcodec.Process
	stream     bytes.Buffer
	copied     chan error
	timestamps []int64
	scratch    *image.RGBA64
	dropped    int
}

// New returns a recorder writing its output through fs.
func New(fs ports.FileSystem, logger ports.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		fs:     fs,
		logger: logger.WithComponent("hevcrecorder"),
		start:  ffmpegcodec.StartProcess,
		mux:    writeMP4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EncodeArgs returns the ffmpeg arguments that read big-endian RGBA64
// frames from stdin and write an HEVC elementary stream with an access
// unit delimiter before every picture to stdout.
func EncodeArgs(opts ports.RecorderOptions) []string {
	pixFmt, matrix, params := "yuv420p", "bt709", "bframes=0:aud=1:repeat-headers=1"
	if opts.HDR {
		pixFmt, matrix = "yuv420p10le", "bt2020"
		params += ":colorprim=bt2020:transfer=arib-std-b67:colormatrix=bt2020nc"
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba64be",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.Itoa(opts.FPS),
		"-i", "pipe:0",
		"-vf", "scale=out_color_matrix=" + matrix + ":out_range=tv",
		"-c:v", "libx265",
		"-pix_fmt", pixFmt,
		"-b:v", strconv.Itoa(opts.BitrateBps),
		"-x265-params", params,
		"-f", "hevc",
		"pipe:1",
	}
}

func (r *Recorder) Prepare(opts ports.RecorderOptions) error {
	switch {
	case opts.OutputPath == "":
		return fmt.Errorf("%w: empty output path", ErrInvalidOptions)
	case opts.Width <= 0 || opts.Height <= 0 || opts.Width%2 != 0 || opts.Height%2 != 0:
		return fmt.Errorf("%w: size %dx%d must be positive and even", ErrInvalidOptions, opts.Width, opts.Height)
	case opts.FPS <= 0:
		return fmt.Errorf("%w: fps %d", ErrInvalidOptions, opts.FPS)
	case opts.BitrateBps <= 0:
		return fmt.Errorf("%w: bitrate %d", ErrInvalidOptions, opts.BitrateBps)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateIdle {
		return fmt.Errorf("%w: prepare called twice", ErrInvalidState)
	}
	if r.path == "" {
		path, err := ffmpegcodec.FindFFmpeg()
		if err != nil {
			return err
		}
		r.path = path
	}
	r.opts = opts
	r.window = &inputWindow{r: r, width: opts.Width, height: opts.Height}
	r.state = statePrepared
	return nil
}

func (r *Recorder) InputSurface() ports.NativeWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.window == nil {
		return nil
	}
	return r.window
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePrepared {
		return fmt.Errorf("%w: start before prepare", ErrInvalidState)
	}
	proc, err := r.start(r.path, EncodeArgs(r.opts))
	if err != nil {
		return err
	}
	r.proc = proc
	r.copied = make(chan error, 1)
	go func(out io.Reader, copied chan<- error) {
		_, err := io.Copy(&r.stream, out)
		copied <- err
	}(proc.Stdout(), r.copied)
	r.state = stateRecording
	r.logger.Debug("Encoder started: %dx%d at %d fps, %d bps", r.opts.Width, r.opts.Height, r.opts.FPS, r.opts.BitrateBps)
	return nil
}

// write sends one frame to the encoder. Frames presented outside of
// recording are counted and dropped.
func (r *Recorder) write(frame ports.PresentedFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		r.dropped++
		return nil
	}
	pix := r.pixels(frame.Image)
	if _, err := r.proc.Stdin().Write(pix); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrEncodeFailed, err)
	}
	r.timestamps = append(r.timestamps, frame.TimestampNs)
	return nil
}

// pixels returns img as tightly packed RGBA64 rows of the recording size,
// scaling when the presented size differs. Must hold r.mu.
func (r *Recorder) pixels(img *image.RGBA64) []byte {
	w, h := r.opts.Width, r.opts.Height
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h && img.Stride == 8*w {
		return img.Pix[img.PixOffset(b.Min.X, b.Min.Y):][:8*w*h]
	}
	if r.scratch == nil {
		r.scratch = image.NewRGBA64(image.Rect(0, 0, w, h))
	}
	xdraw.ApproxBiLinear.Scale(r.scratch, r.scratch.Bounds(), img, b, xdraw.Src, nil)
	return r.scratch.Pix
}

// Stop ends the ffmpeg input, waits for the encoded stream and writes the
// MP4 file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.state != stateRecording {
		r.mu.Unlock()
		return fmt.Errorf("%w: stop while not recording", ErrInvalidState)
	}
	r.state = stateStopped
	proc, copied, opts := r.proc, r.copied, r.opts
	timestamps := append([]int64(nil), r.timestamps...)
	dropped := r.dropped
	r.mu.Unlock()

	closeErr := proc.Stdin().Close()
	copyErr := <-copied
	if err := proc.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := errors.Join(closeErr, copyErr); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	units := media.SplitAccessUnits(r.stream.Bytes())
	if len(units) != len(timestamps) {
		r.logger.Warn("Encoder produced %d pictures for %d frames", len(units), len(timestamps))
	}
	track, err := buildTrack(units, timestamps, opts.Width, opts.Height, opts.FPS, opts.HDR)
	if err != nil {
		return err
	}

	f, err := r.fs.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.OutputPath, err)
	}
	if err := r.mux(f, track); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", opts.OutputPath, err)
	}
	r.logger.Info("Recorded %d frames to %s (%d dropped)", len(track.samples), opts.OutputPath, dropped)
	return nil
}

// Release kills a running encoder. Later calls do nothing.
func (r *Recorder) Release() error {
	r.mu.Lock()
	if r.state == stateReleased {
		r.mu.Unlock()
		return nil
	}
	recording := r.state == stateRecording
	r.state = stateReleased
	proc, copied := r.proc, r.copied
	r.proc = nil
	r.window = nil
	r.mu.Unlock()

	if recording && proc != nil {
		_ = proc.Kill()
		<-copied
		_ = proc.Wait()
	}
	return nil
}

// Frames returns how many frames were sent to the encoder.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timestamps)
}

// inputWindow is the native window GL presents recorded frames to.
type inputWindow struct {
	r             *Recorder
	width, height int
}

func (w *inputWindow) Size() (int, int) { return w.width, w.height }

func (w *inputWindow) Present(frame ports.PresentedFrame) error {
	return w.r.write(frame)
}

var (
	_ ports.Recorder     = (*Recorder)(nil)
	_ ports.NativeWindow = (*inputWindow)(nil)
)
