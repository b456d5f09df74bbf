package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/glhdr/pkg/adapters/logger"
	"github.com/user/glhdr/pkg/adapters/softgl"
	"github.com/user/glhdr/pkg/mocks"
	"github.com/user/glhdr/pkg/ports"
)

func clearTo(r, g, b float32) DrawerFunc {
	return func(gl ports.GL, width, height int) error {
		gl.Viewport(0, 0, int32(width), int32(height))
		gl.ClearColor(r, g, b, 1)
		gl.Clear(ports.GL_COLOR_BUFFER_BIT)
		return nil
	}
}

// gate blocks every draw until release is called.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) DrawFrame(gl ports.GL, width, height int) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("draw never started")
	}
}

func startRenderer(t *testing.T, hdr bool, opts ...softgl.Option) (*Renderer, *softgl.Display) {
	t.Helper()
	d := softgl.NewDisplay(opts...)
	r := New(d, Options{HDR: hdr, Logger: logger.NewNoop()})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { r.Stop() })
	return r, d
}

func TestRenderer_PreviewFrame(t *testing.T) {
	r, _ := startRenderer(t, true)
	win := mocks.NewWindow(8, 4)

	rt, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: clearTo(1, 0, 0), HDR: true})
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if w, h := rt.Size(); w != 8 || h != 4 {
		t.Errorf("Size = %dx%d, want window size 8x4", w, h)
	}
	if rt.State() != TargetConfigured {
		t.Errorf("State = %s, want configured", rt.State())
	}

	rt.RequestRender()
	if !win.WaitForFrames(1, 5*time.Second) {
		t.Fatal("no frame presented")
	}

	f := win.Frames()[0]
	if f.ColorSpace != ports.ColorSpaceBT2020HLG {
		t.Errorf("ColorSpace = %s, want bt2020-hlg", f.ColorSpace)
	}
	if c := f.Image.RGBA64At(7, 3); c.R != 0xffff || c.G != 0 || c.B != 0 {
		t.Errorf("pixel = %+v, want red", c)
	}
	if rt.State() != TargetRendering {
		t.Errorf("State = %s, want rendering", rt.State())
	}
}

func TestRenderer_SDRUsesDefaultColorSpace(t *testing.T) {
	r, _ := startRenderer(t, false)
	win := mocks.NewWindow(2, 2)

	rt, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: clearTo(0, 1, 0)})
	if err != nil {
		t.Fatal(err)
	}
	rt.RequestRender()
	if !win.WaitForFrames(1, 5*time.Second) {
		t.Fatal("no frame presented")
	}
	if cs := win.Frames()[0].ColorSpace; cs != ports.ColorSpaceSRGB {
		t.Errorf("ColorSpace = %s, want srgb", cs)
	}
}

func TestRenderer_MissingExtension(t *testing.T) {
	tests := []struct {
		name    string
		ext     []string
		missing string
	}{
		{"no hlg colorspace", []string{"EGL_KHR_gl_colorspace", ports.ExtYUVSurface}, ports.ExtColorspaceBT2020HLG},
		{"no yuv surface", []string{"EGL_KHR_gl_colorspace", ports.ExtColorspaceBT2020HLG}, ports.ExtYUVSurface},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := softgl.NewDisplay(softgl.WithExtensions(tt.ext...))
			r := New(d, Options{HDR: true, Logger: logger.NewNoop()})

			err := r.Start(context.Background())
			if !errors.Is(err, ErrMissingExtension) {
				t.Fatalf("expected ErrMissingExtension, got %v", err)
			}
			if got := err.Error(); got != ErrMissingExtension.Error()+": "+tt.missing {
				t.Errorf("error = %q", got)
			}
			if d.LiveContexts() != 0 || d.LiveSurfaces() != 0 {
				t.Errorf("leaked %d contexts, %d surfaces", d.LiveContexts(), d.LiveSurfaces())
			}
			if _, err := r.Attach(mocks.NewWindow(1, 1), 0, 0, &PreviewTarget{Drawer: clearTo(0, 0, 0)}); !errors.Is(err, ErrRendererStopped) {
				t.Errorf("Attach after failed Start: expected ErrRendererStopped, got %v", err)
			}
		})
	}
}

func TestRenderer_SDRIgnoresExtensions(t *testing.T) {
	startRenderer(t, false, softgl.WithExtensions())
}

func TestRenderer_StartTwice(t *testing.T) {
	r, _ := startRenderer(t, true)
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRenderer_AttachBeforeStart(t *testing.T) {
	r := New(softgl.NewDisplay(), Options{Logger: logger.NewNoop()})
	if _, err := r.Attach(mocks.NewWindow(1, 1), 0, 0, &PreviewTarget{Drawer: clearTo(0, 0, 0)}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestRenderTarget_RequestsCoalesce(t *testing.T) {
	r, _ := startRenderer(t, true)
	win := mocks.NewWindow(2, 2)
	g := newGate()
	defer g.open()

	rt, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: g, HDR: true})
	if err != nil {
		t.Fatal(err)
	}

	rt.RequestRender()
	g.waitEntered(t)
	for i := 0; i < 5; i++ {
		rt.RequestRender()
	}
	g.open()

	if !win.WaitForFrames(2, 5*time.Second) {
		t.Fatalf("presented %d frames, want 2", win.Count())
	}
	time.Sleep(50 * time.Millisecond)
	if n := win.Count(); n != 2 {
		t.Errorf("presented %d frames, want 2", n)
	}
	if rt.Draws() != 2 || r.Draws() != 2 {
		t.Errorf("Draws = %d/%d, want 2", rt.Draws(), r.Draws())
	}
}

func TestEncoderTarget_PresentationTime(t *testing.T) {
	r, _ := startRenderer(t, true)
	win := mocks.NewWindow(2, 2)

	var next int64
	target := &EncoderTarget{
		Drawer: clearTo(0, 0, 1),
		HDR:    true,
		Timestamp: func() int64 {
			next += 33_333_333
			return next
		},
	}
	rt, err := r.Attach(win, 0, 0, target)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		rt.RequestRender()
		if !win.WaitForFrames(i, 5*time.Second) {
			t.Fatalf("frame %d not presented", i)
		}
	}
	for i, f := range win.Frames() {
		if want := int64(i+1) * 33_333_333; f.TimestampNs != want {
			t.Errorf("frame %d TimestampNs = %d, want %d", i, f.TimestampNs, want)
		}
	}
}

func TestEncoderTarget_DefaultTimestampStartsAtZero(t *testing.T) {
	target := &EncoderTarget{}
	first := target.timestamp()
	if first < 0 || first > int64(time.Second) {
		t.Errorf("first timestamp = %d", first)
	}
	time.Sleep(2 * time.Millisecond)
	if second := target.timestamp(); second <= first {
		t.Errorf("timestamps not increasing: %d then %d", first, second)
	}
}

func TestRenderer_StopSkipsQueuedDraws(t *testing.T) {
	r, d := startRenderer(t, true)
	g := newGate()
	defer g.open()
	winA := mocks.NewWindow(2, 2)
	winB := mocks.NewWindow(2, 2)

	a, err := r.Attach(winA, 0, 0, &PreviewTarget{Drawer: g, HDR: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Attach(winB, 0, 0, &PreviewTarget{Drawer: clearTo(1, 1, 1), HDR: true})
	if err != nil {
		t.Fatal(err)
	}

	a.RequestRender()
	g.waitEntered(t)
	b.RequestRender()

	stopped := make(chan error, 1)
	go func() { stopped <- r.Stop() }()
	for !r.stopping.Load() {
		time.Sleep(time.Millisecond)
	}
	g.open()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	if winB.Count() != 0 {
		t.Errorf("queued draw ran after Stop: %d frames", winB.Count())
	}
	if a.State() != TargetDestroyed || b.State() != TargetDestroyed {
		t.Errorf("states = %s, %s, want destroyed", a.State(), b.State())
	}
	if d.LiveSurfaces() != 0 || d.LiveContexts() != 0 {
		t.Errorf("leaked %d surfaces, %d contexts", d.LiveSurfaces(), d.LiveContexts())
	}
	select {
	case <-r.Done():
	default:
		t.Error("Done not closed after Stop")
	}

	if err := r.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	b.RequestRender()
	if _, err := r.Attach(mocks.NewWindow(1, 1), 0, 0, &PreviewTarget{Drawer: clearTo(0, 0, 0)}); !errors.Is(err, ErrRendererStopped) {
		t.Errorf("Attach after Stop: expected ErrRendererStopped, got %v", err)
	}
	if err := r.Do(func(ports.EGL, ports.GL) error { return nil }); !errors.Is(err, ErrRendererStopped) {
		t.Errorf("Do after Stop: expected ErrRendererStopped, got %v", err)
	}
}

func TestRenderer_DrawErrorIsFatal(t *testing.T) {
	r, _ := startRenderer(t, true)
	win := mocks.NewWindow(2, 2)
	boom := errors.New("boom")

	var calls int
	rt, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: DrawerFunc(func(ports.GL, int, int) error {
		calls++
		return boom
	})})
	if err != nil {
		t.Fatal(err)
	}

	rt.RequestRender()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after draw error")
	}
	if !errors.Is(r.Err(), boom) {
		t.Errorf("Err = %v, want boom", r.Err())
	}

	rt.RequestRender()
	if err := r.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if calls != 1 || win.Count() != 0 {
		t.Errorf("calls = %d, frames = %d, want 1 and 0", calls, win.Count())
	}
}

func TestRenderer_PresentErrorIsFatal(t *testing.T) {
	r, _ := startRenderer(t, true)
	win := mocks.NewWindow(2, 2)
	win.PresentFunc = func(ports.PresentedFrame) error { return errors.New("encoder gone") }

	rt, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: clearTo(0, 0, 0), HDR: true})
	if err != nil {
		t.Fatal(err)
	}
	rt.RequestRender()
	<-r.Done()
	if r.Err() == nil {
		t.Fatal("expected an error")
	}
}

type recordingCallback struct {
	name string
	log  *[]string
	gl   ports.GL
}

func (c *recordingCallback) OnContextCreated(egl ports.EGL, gl ports.GL) error {
	c.gl = gl
	*c.log = append(*c.log, "created "+c.name)
	return nil
}

func (c *recordingCallback) OnContextDestroyed(gl ports.GL) {
	*c.log = append(*c.log, "destroyed "+c.name)
}

func TestRenderer_ContextCallbacks(t *testing.T) {
	d := softgl.NewDisplay()
	r := New(d, Options{HDR: true, Logger: logger.NewNoop()})

	var log []string
	first := &recordingCallback{name: "first", log: &log}
	second := &recordingCallback{name: "second", log: &log}

	if err := r.RegisterContextCallback(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterContextCallback(second); err != nil {
		t.Fatal(err)
	}
	if first.gl == nil || second.gl == nil {
		t.Error("callback did not receive a GL")
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	want := []string{"created first", "created second", "destroyed second", "destroyed first"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

type failingCallback struct{}

func (failingCallback) OnContextCreated(ports.EGL, ports.GL) error { return errors.New("no shader") }
func (failingCallback) OnContextDestroyed(ports.GL)                {}

func TestRenderer_CallbackFailureRollsBack(t *testing.T) {
	d := softgl.NewDisplay()
	r := New(d, Options{HDR: true, Logger: logger.NewNoop()})
	if err := r.RegisterContextCallback(failingCallback{}); err != nil {
		t.Fatal(err)
	}

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	if d.LiveContexts() != 0 || d.LiveSurfaces() != 0 {
		t.Errorf("leaked %d contexts, %d surfaces", d.LiveContexts(), d.LiveSurfaces())
	}
}

func TestRenderTarget_Detach(t *testing.T) {
	r, d := startRenderer(t, true)
	win := mocks.NewWindow(2, 2)
	before := d.LiveSurfaces()

	rt, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: clearTo(0, 0, 0), HDR: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if rt.State() != TargetDestroyed {
		t.Errorf("State = %s, want destroyed", rt.State())
	}
	if d.LiveSurfaces() != before {
		t.Errorf("LiveSurfaces = %d, want %d", d.LiveSurfaces(), before)
	}

	rt.RequestRender()
	if err := rt.Detach(); err != nil {
		t.Errorf("second Detach: %v", err)
	}

	again, err := r.Attach(win, 0, 0, &PreviewTarget{Drawer: clearTo(0, 0, 0), HDR: true})
	if err != nil {
		t.Fatalf("reattach failed: %v", err)
	}
	again.RequestRender()
	if !win.WaitForFrames(1, 5*time.Second) {
		t.Error("reattached target did not present")
	}
}

func TestRenderer_DoRunsWithContextCurrent(t *testing.T) {
	r, d := startRenderer(t, true)

	var tex []uint32
	err := r.Do(func(egl ports.EGL, gl ports.GL) error {
		tex = gl.GenTextures(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tex) != 1 || tex[0] == 0 {
		t.Errorf("GenTextures = %v", tex)
	}
	if d.CurrentContext().LiveObjects() == 0 {
		t.Error("texture was not created on the renderer's context")
	}
}
