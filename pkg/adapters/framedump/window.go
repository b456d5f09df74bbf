// Package framedump provides a preview window that saves presented frames
// as image files.
package framedump

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/glhdr/pkg/ports"
)

// ErrInvalidOptions is returned by New for unusable options.
var ErrInvalidOptions = errors.New("framedump: invalid options")

// Options configures a Window.
type Options struct {
	Dir     string
	Width   int
	Height  int
	Every   int     // save one frame out of Every; 0 or 1 saves all
	Scale   float64 // output scale; 0 means 1
	Overlay bool    // annotate with frame number, timestamp and colour space
	Format  ports.ImageFormat
}

// Window implements ports.NativeWindow.
type Window struct {
	fs       ports.FileSystem
	renderer ports.ImageRenderer
	logger   ports.Logger
	opts     Options

	mu      sync.Mutex
	frames  int
	written []string
}

// New returns a window of the given size that writes into opts.Dir.
func New(fs ports.FileSystem, renderer ports.ImageRenderer, logger ports.Logger, opts Options) (*Window, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrInvalidOptions)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidOptions, opts.Width, opts.Height)
	}
	if opts.Scale < 0 || opts.Every < 0 {
		return nil, fmt.Errorf("%w: scale %v every %d", ErrInvalidOptions, opts.Scale, opts.Every)
	}
	if opts.Every == 0 {
		opts.Every = 1
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if err := fs.MkdirAll(opts.Dir); err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Dir, err)
	}
	return &Window{
		fs:       fs,
		renderer: renderer,
		logger:   logger.WithComponent("framedump"),
		opts:     opts,
	}, nil
}

func (w *Window) Size() (int, int) {
	return w.opts.Width, w.opts.Height
}

// Present saves every opts.Every-th frame, starting with the first.
func (w *Window) Present(frame ports.PresentedFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames++
	n := w.frames
	if (n-1)%w.opts.Every != 0 {
		return nil
	}

	var img image.Image = frame.Image
	if w.opts.Scale != 1 {
		b := frame.Image.Bounds()
		sw := max(1, int(float64(b.Dx())*w.opts.Scale))
		sh := max(1, int(float64(b.Dy())*w.opts.Scale))
		img = w.renderer.ResizeImage(img, sw, sh)
	}
	if w.opts.Overlay {
		img = w.annotate(img, n, frame)
	}

	data, err := w.renderer.EncodeImage(img, w.opts.Format, 90)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", n, err)
	}
	path := filepath.Join(w.opts.Dir, fmt.Sprintf("frame_%05d.%s", n, w.opts.Format))
	if err := w.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.written = append(w.written, path)
	w.logger.Debug("Saved preview frame %d to %s", n, path)
	return nil
}

var (
	labelBackground = color.RGBA{0, 0, 0, 160}
	labelText       = color.RGBA{255, 255, 255, 255}
)

func (w *Window) annotate(img image.Image, n int, frame ports.PresentedFrame) image.Image {
	b := img.Bounds()
	canvas := w.renderer.CreateCanvas(b.Dx(), b.Dy(), color.Transparent)
	canvas.DrawImage(img, 0, 0)

	style := ports.TextStyle{FontSize: 13, Color: labelText}
	label := fmt.Sprintf("#%d  %s  %s", n, time.Duration(frame.TimestampNs).Round(time.Millisecond), frame.ColorSpace)
	tw, th := canvas.MeasureText(label, style)
	pad := 4
	canvas.DrawRoundedRect(pad, pad, int(tw)+2*pad, int(th)+2*pad, pad, labelBackground)
	canvas.DrawText(label, 2*pad, 2*pad+int(th)/2, style)
	return canvas.ToImage()
}

// Frames returns how many frames were presented.
func (w *Window) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Written returns the paths of the saved frames.
func (w *Window) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

var _ ports.NativeWindow = (*Window)(nil)
