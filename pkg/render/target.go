package render

import (
	"fmt"
	"time"

	"github.com/user/glhdr/pkg/ports"
)

// DrawContext is handed to Target.Draw with the target's surface current.
type DrawContext struct {
	EGL     ports.EGL
	GL      ports.GL
	Surface ports.EGLSurface
	Width   int
	Height  int
}

// Target is a render destination. Both methods run on the GL goroutine.
type Target interface {
	// CreateSurface creates the window surface the target draws into.
	CreateSurface(egl ports.EGL, config ports.EGLConfig, window ports.NativeWindow) (ports.EGLSurface, error)

	// Draw renders one frame into the current surface.
	Draw(dc DrawContext) error
}

// Drawer renders the scene shared by every target.
type Drawer interface {
	DrawFrame(gl ports.GL, width, height int) error
}

// DrawerFunc adapts a function to Drawer.
type DrawerFunc func(gl ports.GL, width, height int) error

func (f DrawerFunc) DrawFrame(gl ports.GL, width, height int) error {
	return f(gl, width, height)
}

// SurfaceAttributes returns the window surface attributes for the
// requested colour space.
func SurfaceAttributes(hdr bool) []int32 {
	if !hdr {
		return []int32{ports.EGL_NONE}
	}
	return []int32{
		ports.EGL_GL_COLORSPACE_KHR, ports.EGL_GL_COLORSPACE_BT2020_HLG_EXT,
		ports.EGL_NONE,
	}
}

// PreviewTarget draws into an on-screen window.
type PreviewTarget struct {
	Drawer Drawer
	HDR    bool
}

func (t *PreviewTarget) CreateSurface(egl ports.EGL, config ports.EGLConfig, window ports.NativeWindow) (ports.EGLSurface, error) {
	surf, err := egl.CreateWindowSurface(config, window, SurfaceAttributes(t.HDR))
	if err != nil {
		return ports.NoSurface, fmt.Errorf("create preview surface: %w", err)
	}
	return surf, nil
}

func (t *PreviewTarget) Draw(dc DrawContext) error {
	return t.Drawer.DrawFrame(dc.GL, dc.Width, dc.Height)
}

// EncoderTarget draws into an encoder's input surface and stamps every
// frame with a presentation time. Without Timestamp the time elapsed since
// the first frame is used.
type EncoderTarget struct {
	Drawer    Drawer
	HDR       bool
	Timestamp func() int64

	start time.Time
}

func (t *EncoderTarget) CreateSurface(egl ports.EGL, config ports.EGLConfig, window ports.NativeWindow) (ports.EGLSurface, error) {
	surf, err := egl.CreateWindowSurface(config, window, SurfaceAttributes(t.HDR))
	if err != nil {
		return ports.NoSurface, fmt.Errorf("create encoder surface: %w", err)
	}
	return surf, nil
}

func (t *EncoderTarget) Draw(dc DrawContext) error {
	if err := t.Drawer.DrawFrame(dc.GL, dc.Width, dc.Height); err != nil {
		return err
	}
	if err := dc.EGL.SetPresentationTime(dc.Surface, t.timestamp()); err != nil {
		return fmt.Errorf("set presentation time: %w", err)
	}
	return nil
}

func (t *EncoderTarget) timestamp() int64 {
	if t.Timestamp != nil {
		return t.Timestamp()
	}
	if t.start.IsZero() {
		t.start = time.Now()
	}
	return time.Since(t.start).Nanoseconds()
}
