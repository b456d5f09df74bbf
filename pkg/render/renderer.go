// Package render owns the GL goroutine. One EGL context lives on a locked OS
// thread; render targets attach window surfaces to it and request draws,
// which are queued and executed in order on that goroutine.
package render

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/user/glhdr/pkg/ports"
)

// ContextCallback observes the lifetime of the shared GL context. Both
// methods run on the GL goroutine with the context current.
type ContextCallback interface {
	OnContextCreated(egl ports.EGL, gl ports.GL) error
	OnContextDestroyed(gl ports.GL)
}

// Options configures a Renderer.
type Options struct {
	// HDR selects a 10-bit framebuffer and requires the BT.2020 HLG and
	// YUV surface extensions.
	HDR    bool
	Logger ports.Logger
}

// Renderer runs every EGL and GL call of a session on one goroutine.
type Renderer struct {
	egl    ports.EGL
	opts   Options
	logger ports.Logger
	queue  *taskQueue

	// Owned by the GL goroutine.
	config  ports.EGLConfig
	context ports.EGLContext
	pbuffer ports.EGLSurface
	torn    bool

	mu        sync.Mutex
	started   bool
	ready     bool
	callbacks []ContextCallback
	targets   []*RenderTarget
	err       error

	stopping atomic.Bool
	draws    atomic.Int64
	done     chan struct{}
	doneOnce sync.Once
	loopDone chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New returns a renderer over egl. Call Start before attaching targets.
func New(egl ports.EGL, opts Options) *Renderer {
	return &Renderer{
		egl:      egl,
		opts:     opts,
		logger:   opts.Logger.WithComponent("render"),
		queue:    newTaskQueue(),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// RegisterContextCallback adds cb. If the context already exists,
// OnContextCreated runs before RegisterContextCallback returns.
func (r *Renderer) RegisterContextCallback(cb ContextCallback) error {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	ready := r.ready
	r.mu.Unlock()
	if !ready {
		return nil
	}
	return r.Do(func(egl ports.EGL, gl ports.GL) error {
		return cb.OnContextCreated(egl, gl)
	})
}

// Start launches the GL goroutine and creates the context on it.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	if r.stopping.Load() {
		r.mu.Unlock()
		return ErrRendererStopped
	}
	r.started = true
	r.mu.Unlock()

	go r.loop()

	if err := r.call(ctx, r.setup); err != nil {
		r.Stop()
		return err
	}
	return nil
}

func (r *Renderer) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.loopDone)

	for {
		task, ok := r.queue.next()
		if !ok {
			return
		}
		task()
	}
}

// setup runs on the GL goroutine.
func (r *Renderer) setup() (err error) {
	defer func() {
		if err != nil {
			r.teardown()
		}
	}()

	if err := r.egl.Initialize(); err != nil {
		return fmt.Errorf("initialize display: %w", err)
	}
	if r.opts.HDR {
		if err := requireExtensions(r.egl.Extensions(), ports.ExtColorspaceBT2020HLG, ports.ExtYUVSurface); err != nil {
			return err
		}
	}

	attrs := ports.RGBA8888
	if r.opts.HDR {
		attrs = ports.RGBA1010102
	}
	attrs.RenderableType = ports.EGL_OPENGL_ES3_BIT_KHR
	attrs.SurfaceType = ports.EGL_WINDOW_BIT | ports.EGL_PBUFFER_BIT
	cfg, err := r.egl.ChooseConfig(attrs)
	if err != nil {
		return fmt.Errorf("choose config: %w", err)
	}
	r.config = cfg

	r.context, err = r.egl.CreateContext(cfg, ports.NoContext,
		[]int32{ports.EGL_CONTEXT_CLIENT_VERSION, 3, ports.EGL_NONE})
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	r.pbuffer, err = r.egl.CreatePbufferSurface(cfg, 1, 1)
	if err != nil {
		return fmt.Errorf("create pbuffer: %w", err)
	}
	if err := r.egl.MakeCurrent(r.pbuffer, r.context); err != nil {
		return fmt.Errorf("make current: %w", err)
	}

	r.mu.Lock()
	callbacks := append([]ContextCallback(nil), r.callbacks...)
	r.ready = true
	r.mu.Unlock()

	gl := r.egl.GL()
	for _, cb := range callbacks {
		if err := cb.OnContextCreated(r.egl, gl); err != nil {
			return fmt.Errorf("context callback: %w", err)
		}
	}

	r.logger.Info("Renderer started: R%dG%dB%dA%d, HDR %t",
		cfg.Attributes.RedSize, cfg.Attributes.GreenSize, cfg.Attributes.BlueSize, cfg.Attributes.AlphaSize, r.opts.HDR)
	return nil
}

func requireExtensions(have []string, names ...string) error {
	for _, name := range names {
		found := false
		for _, h := range have {
			if h == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrMissingExtension, name)
		}
	}
	return nil
}

// teardown runs on the GL goroutine and releases everything setup created.
func (r *Renderer) teardown() error {
	if r.torn {
		return nil
	}
	r.torn = true

	r.mu.Lock()
	ready := r.ready
	r.ready = false
	callbacks := append([]ContextCallback(nil), r.callbacks...)
	targets := r.targets
	r.targets = nil
	r.mu.Unlock()

	var errs []error
	if ready && r.context != ports.NoContext {
		if err := r.egl.MakeCurrent(r.pbuffer, r.context); err != nil {
			errs = append(errs, fmt.Errorf("make current: %w", err))
		} else {
			gl := r.egl.GL()
			for i := len(callbacks) - 1; i >= 0; i-- {
				callbacks[i].OnContextDestroyed(gl)
			}
		}
	}
	for _, t := range targets {
		if err := t.destroySurface(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.context != ports.NoContext {
		if err := r.egl.MakeCurrent(ports.NoSurface, ports.NoContext); err != nil {
			errs = append(errs, fmt.Errorf("release current: %w", err))
		}
	}
	if r.pbuffer != ports.NoSurface {
		if err := r.egl.DestroySurface(r.pbuffer); err != nil {
			errs = append(errs, fmt.Errorf("destroy pbuffer: %w", err))
		}
		r.pbuffer = ports.NoSurface
	}
	if r.context != ports.NoContext {
		if err := r.egl.DestroyContext(r.context); err != nil {
			errs = append(errs, fmt.Errorf("destroy context: %w", err))
		}
		r.context = ports.NoContext
	}
	if err := r.egl.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate: %w", err))
	}
	return errors.Join(errs...)
}

// call runs fn on the GL goroutine and waits for its result. It must not
// be called from the GL goroutine.
func (r *Renderer) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	ok := r.queue.push(func() {
		if r.torn {
			res <- ErrRendererStopped
			return
		}
		res <- fn()
	})
	if !ok {
		return ErrRendererStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the GL goroutine with the context current and waits for it.
// It must not be called from the GL goroutine.
func (r *Renderer) Do(fn func(egl ports.EGL, gl ports.GL) error) error {
	if r.stopping.Load() {
		return ErrRendererStopped
	}
	return r.call(context.Background(), func() error {
		return fn(r.egl, r.egl.GL())
	})
}

// Attach creates a surface for window and returns a target that draws into
// it. A zero width or height takes the window's native size.
func (r *Renderer) Attach(window ports.NativeWindow, width, height int, target Target) (*RenderTarget, error) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	if r.stopping.Load() {
		return nil, ErrRendererStopped
	}
	if width <= 0 || height <= 0 {
		width, height = window.Size()
	}

	rt := &RenderTarget{r: r, target: target, window: window, width: width, height: height}
	err := r.call(context.Background(), func() error {
		surf, err := target.CreateSurface(r.egl, r.config, window)
		if err != nil {
			return err
		}
		rt.surface = surf
		rt.state.Store(int32(TargetConfigured))
		r.mu.Lock()
		r.targets = append(r.targets, rt)
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Attached render target %dx%d", width, height)
	return rt, nil
}

func (r *Renderer) removeTarget(rt *RenderTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.targets {
		if t == rt {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			return
		}
	}
}

// fail records the first fatal error. Later draws are skipped.
func (r *Renderer) fail(err error) {
	r.mu.Lock()
	first := r.err == nil
	if first {
		r.err = err
	}
	r.mu.Unlock()
	if first {
		r.logger.Error("Draw failed: %v", err)
		r.stopping.Store(true)
		r.doneOnce.Do(func() { close(r.done) })
	}
}

// Err returns the error that stopped rendering, if any.
func (r *Renderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the renderer stops or a draw fails.
func (r *Renderer) Done() <-chan struct{} {
	return r.done
}

// Draws returns the number of frames swapped across all targets.
func (r *Renderer) Draws() int64 {
	return r.draws.Load()
}

// Stop skips queued draws, runs the context-destroyed callbacks, releases
// every surface and the context, and waits for the GL goroutine to exit.
// It is safe to call more than once.
func (r *Renderer) Stop() error {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		r.mu.Lock()
		started := r.started
		r.mu.Unlock()

		if started {
			res := make(chan error, 1)
			if r.queue.push(func() { res <- r.teardown() }) {
				r.stopErr = <-res
			}
			r.queue.close()
			<-r.loopDone
		}
		r.doneOnce.Do(func() { close(r.done) })
		r.logger.Debug("Renderer stopped after %d draws", r.draws.Load())
	})
	return r.stopErr
}

// TargetState is the lifecycle state of a RenderTarget.
type TargetState int32

const (
	TargetUninitialized TargetState = iota
	TargetConfigured
	TargetRendering
	TargetDestroyed
)

func (s TargetState) String() string {
	switch s {
	case TargetConfigured:
		return "configured"
	case TargetRendering:
		return "rendering"
	case TargetDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// RenderTarget is a window surface attached to a Renderer.
type RenderTarget struct {
	r      *Renderer
	target Target
	window ports.NativeWindow
	width  int
	height int

	// Owned by the GL goroutine.
	surface ports.EGLSurface

	pending atomic.Bool
	state   atomic.Int32
	draws   atomic.Int64
}

// Size returns the drawing size.
func (t *RenderTarget) Size() (int, int) {
	return t.width, t.height
}

// State returns the lifecycle state.
func (t *RenderTarget) State() TargetState {
	return TargetState(t.state.Load())
}

// Draws returns the number of frames swapped into this target.
func (t *RenderTarget) Draws() int64 {
	return t.draws.Load()
}

// RequestRender schedules a draw. Requests made while a draw is already
// queued collapse into it. Safe to call from any goroutine.
func (t *RenderTarget) RequestRender() {
	if t.r.stopping.Load() || t.State() == TargetDestroyed {
		return
	}
	if !t.pending.CompareAndSwap(false, true) {
		return
	}
	if !t.r.queue.push(t.draw) {
		t.pending.Store(false)
	}
}

// draw runs on the GL goroutine.
func (t *RenderTarget) draw() {
	t.pending.Store(false)
	r := t.r
	if r.torn || r.stopping.Load() || t.State() == TargetDestroyed {
		r.logger.Debug("Skipped draw")
		return
	}

	if err := r.egl.MakeCurrent(t.surface, r.context); err != nil {
		r.fail(fmt.Errorf("make current: %w", err))
		return
	}
	dc := DrawContext{
		EGL:     r.egl,
		GL:      r.egl.GL(),
		Surface: t.surface,
		Width:   t.width,
		Height:  t.height,
	}
	if err := t.target.Draw(dc); err != nil {
		r.fail(err)
		return
	}
	if err := r.egl.SwapBuffers(t.surface); err != nil {
		r.fail(fmt.Errorf("swap buffers: %w", err))
		return
	}
	t.state.Store(int32(TargetRendering))
	t.draws.Add(1)
	r.draws.Add(1)
}

// Detach destroys the target's surface. The window can be attached again.
func (t *RenderTarget) Detach() error {
	if t.State() == TargetDestroyed {
		return nil
	}
	err := t.r.call(context.Background(), func() error {
		t.r.removeTarget(t)
		if err := t.destroySurface(); err != nil {
			return err
		}
		if err := t.r.egl.MakeCurrent(t.r.pbuffer, t.r.context); err != nil {
			return fmt.Errorf("make current: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrRendererStopped) {
		return nil
	}
	return err
}

// destroySurface runs on the GL goroutine.
func (t *RenderTarget) destroySurface() error {
	if TargetState(t.state.Swap(int32(TargetDestroyed))) == TargetDestroyed {
		return nil
	}
	if t.surface == ports.NoSurface {
		return nil
	}
	surf := t.surface
	t.surface = ports.NoSurface
	if err := t.r.egl.DestroySurface(surf); err != nil {
		return fmt.Errorf("destroy surface: %w", err)
	}
	return nil
}
