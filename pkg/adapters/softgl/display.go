// Package softgl implements EGL and OpenGL ES 3.0 in software. It executes
// the texture-sampling shader programs of this module on the CPU, renders
// into RGBA 8888 or 1010102 surfaces, and hands swapped frames to native
// windows. Stream textures stand in for a zero-copy decoder output queue.
package softgl

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/user/glhdr/pkg/ports"
)

// Extension strings reported by default.
var DefaultExtensions = []string{
	"EGL_KHR_gl_colorspace",
	"EGL_KHR_surfaceless_context",
	"EGL_ANDROID_presentation_time",
	"EGL_ANDROID_recordable",
	ports.ExtColorspaceBT2020HLG,
	ports.ExtYUVSurface,
}

const (
	extColorspace    = "EGL_KHR_gl_colorspace"
	extSurfaceless   = "EGL_KHR_surfaceless_context"
	extPresentation  = "EGL_ANDROID_presentation_time"
	renderableAll    = ports.EGL_OPENGL_ES2_BIT | ports.EGL_OPENGL_ES3_BIT_KHR
	surfaceTypeAll   = ports.EGL_WINDOW_BIT | ports.EGL_PBUFFER_BIT
	defaultClientVer = 1
)

// Option configures a Display.
type Option func(*Display)

// WithExtensions replaces the reported extension list.
func WithExtensions(ext ...string) Option {
	return func(d *Display) {
		d.extensions = append([]string(nil), ext...)
	}
}

// WithConfigs replaces the available framebuffer configurations. Renderable
// and surface type bits left zero are filled in with every supported value.
func WithConfigs(attrs ...ports.ConfigAttributes) Option {
	return func(d *Display) {
		d.configs = d.configs[:0]
		for _, a := range attrs {
			d.addConfig(a)
		}
	}
}

// Display is an EGL display. It implements ports.EGL. The current
// context binding is held per display rather than per thread, so a display
// should be driven from one goroutine.
type Display struct {
	mu sync.Mutex

	initialized bool
	extensions  []string
	configs     []ports.EGLConfig
	next        uint64
	epoch       time.Time

	contexts map[ports.EGLContext]*Context
	surfaces map[ports.EGLSurface]*surface
	windows  map[ports.NativeWindow]ports.EGLSurface

	curSurface *surface
	curContext *Context
	detached   *Context
}

// NewDisplay returns an uninitialized display.
func NewDisplay(opts ...Option) *Display {
	d := &Display{
		extensions: append([]string(nil), DefaultExtensions...),
		contexts:   make(map[ports.EGLContext]*Context),
		surfaces:   make(map[ports.EGLSurface]*surface),
		windows:    make(map[ports.NativeWindow]ports.EGLSurface),
		detached:   newContext(0, 3),
		epoch:      time.Now(),
	}
	d.addConfig(ports.RGBA8888)
	d.addConfig(ports.RGBA1010102)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Display) addConfig(a ports.ConfigAttributes) {
	if a.RenderableType == 0 {
		a.RenderableType = renderableAll
	}
	if a.SurfaceType == 0 {
		a.SurfaceType = surfaceTypeAll
	}
	a.Recordable = true
	d.configs = append(d.configs, ports.EGLConfig{ID: len(d.configs) + 1, Attributes: a})
}

func (d *Display) hasExtension(name string) bool {
	for _, e := range d.extensions {
		if e == name {
			return true
		}
	}
	return false
}

// Initialize initializes the display.
func (d *Display) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = true
	return nil
}

// Extensions returns the display extension strings.
func (d *Display) Extensions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil
	}
	return append([]string(nil), d.extensions...)
}

// ChooseConfig returns the first configuration with exactly the requested
// channel sizes and at least the requested renderable and surface types.
func (d *Display) ChooseConfig(attrs ports.ConfigAttributes) (ports.EGLConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ports.EGLConfig{}, ErrNotInitialized
	}
	for _, cfg := range d.configs {
		a := cfg.Attributes
		if a.RedSize != attrs.RedSize || a.GreenSize != attrs.GreenSize ||
			a.BlueSize != attrs.BlueSize || a.AlphaSize != attrs.AlphaSize {
			continue
		}
		if a.RenderableType&attrs.RenderableType != attrs.RenderableType {
			continue
		}
		if a.SurfaceType&attrs.SurfaceType != attrs.SurfaceType {
			continue
		}
		if attrs.Recordable && !a.Recordable {
			continue
		}
		return cfg, nil
	}
	return ports.EGLConfig{}, fmt.Errorf("%w: no config for R%dG%dB%dA%d",
		ErrBadConfig, attrs.RedSize, attrs.GreenSize, attrs.BlueSize, attrs.AlphaSize)
}

func (d *Display) lookupConfig(cfg ports.EGLConfig) (ports.EGLConfig, bool) {
	for _, c := range d.configs {
		if c.ID == cfg.ID {
			return c, true
		}
	}
	return ports.EGLConfig{}, false
}

// CreateContext creates a GLES context. The only accepted attribute is
// EGL_CONTEXT_CLIENT_VERSION with value 2 or 3.
func (d *Display) CreateContext(config ports.EGLConfig, share ports.EGLContext, attribs []int32) (ports.EGLContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ports.NoContext, ErrNotInitialized
	}
	cfg, ok := d.lookupConfig(config)
	if !ok {
		return ports.NoContext, ErrBadConfig
	}
	if share != ports.NoContext {
		if _, ok := d.contexts[share]; !ok {
			return ports.NoContext, ErrBadContext
		}
	}

	version := defaultClientVer
	err := eachAttrib(attribs, func(name, value int32) error {
		if name != ports.EGL_CONTEXT_CLIENT_VERSION {
			return fmt.Errorf("%w: 0x%x", ErrBadAttribute, name)
		}
		if value != 2 && value != 3 {
			return fmt.Errorf("%w: client version %d", ErrBadAttribute, value)
		}
		version = int(value)
		return nil
	})
	if err != nil {
		return ports.NoContext, err
	}
	if version < 2 {
		return ports.NoContext, fmt.Errorf("%w: GLES 1.x is not supported", ErrBadAttribute)
	}
	if version == 3 && cfg.Attributes.RenderableType&ports.EGL_OPENGL_ES3_BIT_KHR == 0 {
		return ports.NoContext, ErrBadMatch
	}

	d.next++
	id := ports.EGLContext(d.next)
	d.contexts[id] = newContext(id, version)
	return id, nil
}

// CreateWindowSurface creates a surface presenting to window. The only
// accepted attribute is EGL_GL_COLORSPACE_KHR.
func (d *Display) CreateWindowSurface(config ports.EGLConfig, window ports.NativeWindow, attribs []int32) (ports.EGLSurface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ports.NoSurface, ErrNotInitialized
	}
	cfg, ok := d.lookupConfig(config)
	if !ok {
		return ports.NoSurface, ErrBadConfig
	}
	if cfg.Attributes.SurfaceType&ports.EGL_WINDOW_BIT == 0 {
		return ports.NoSurface, ErrBadMatch
	}
	if window == nil {
		return ports.NoSurface, ErrBadNativeWindow
	}
	if _, ok := d.windows[window]; ok {
		return ports.NoSurface, fmt.Errorf("%w: window already has a surface", ErrBadAlloc)
	}
	w, h := window.Size()
	if w <= 0 || h <= 0 {
		return ports.NoSurface, ErrBadNativeWindow
	}

	cs := ports.ColorSpaceSRGB
	err := eachAttrib(attribs, func(name, value int32) error {
		if name != ports.EGL_GL_COLORSPACE_KHR || !d.hasExtension(extColorspace) {
			return fmt.Errorf("%w: 0x%x", ErrBadAttribute, name)
		}
		switch value {
		case ports.EGL_GL_COLORSPACE_SRGB_KHR, ports.EGL_GL_COLORSPACE_LINEAR_KHR:
			cs = ports.ColorSpaceSRGB
		case ports.EGL_GL_COLORSPACE_BT2020_HLG_EXT:
			if !d.hasExtension(ports.ExtColorspaceBT2020HLG) {
				return fmt.Errorf("%w: colorspace 0x%x needs %s", ErrBadAttribute, value, ports.ExtColorspaceBT2020HLG)
			}
			cs = ports.ColorSpaceBT2020HLG
		default:
			return fmt.Errorf("%w: colorspace 0x%x", ErrBadAttribute, value)
		}
		return nil
	})
	if err != nil {
		return ports.NoSurface, err
	}

	d.next++
	id := ports.EGLSurface(d.next)
	d.surfaces[id] = newSurface(id, cfg, window, w, h, cs)
	d.windows[window] = id
	return id, nil
}

// CreatePbufferSurface creates an offscreen surface.
func (d *Display) CreatePbufferSurface(config ports.EGLConfig, width, height int) (ports.EGLSurface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ports.NoSurface, ErrNotInitialized
	}
	cfg, ok := d.lookupConfig(config)
	if !ok {
		return ports.NoSurface, ErrBadConfig
	}
	if cfg.Attributes.SurfaceType&ports.EGL_PBUFFER_BIT == 0 {
		return ports.NoSurface, ErrBadMatch
	}
	if width <= 0 || height <= 0 {
		return ports.NoSurface, ErrBadAttribute
	}
	d.next++
	id := ports.EGLSurface(d.next)
	d.surfaces[id] = newSurface(id, cfg, nil, width, height, ports.ColorSpaceSRGB)
	return id, nil
}

// MakeCurrent binds ctx and its draw surface. Passing NoSurface and
// NoContext releases the current binding.
func (d *Display) MakeCurrent(surf ports.EGLSurface, ctx ports.EGLContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	if ctx == ports.NoContext {
		if surf != ports.NoSurface {
			return ErrBadMatch
		}
		d.release()
		return nil
	}

	c, ok := d.contexts[ctx]
	if !ok {
		return ErrBadContext
	}
	var s *surface
	if surf != ports.NoSurface {
		if s, ok = d.surfaces[surf]; !ok {
			return ErrBadSurface
		}
	} else if !d.hasExtension(extSurfaceless) {
		return ErrBadMatch
	}

	if d.curContext != nil && d.curContext != c {
		d.curContext.bind(nil)
	}
	c.bind(s)
	d.curContext = c
	d.curSurface = s
	return nil
}

// release drops the current binding. Must hold d.mu.
func (d *Display) release() {
	if d.curContext != nil {
		d.curContext.bind(nil)
	}
	d.curContext = nil
	d.curSurface = nil
}

// SetPresentationTime sets the timestamp attached to the next swap.
func (d *Display) SetPresentationTime(surf ports.EGLSurface, ns int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasExtension(extPresentation) {
		return ErrBadMatch
	}
	s, ok := d.surfaces[surf]
	if !ok || s.window == nil {
		return ErrBadSurface
	}
	s.presentNs = ns
	s.hasPresent = true
	return nil
}

// SwapBuffers presents the current draw surface to its window.
func (d *Display) SwapBuffers(surf ports.EGLSurface) error {
	d.mu.Lock()
	s, ok := d.surfaces[surf]
	if !ok || s != d.curSurface {
		d.mu.Unlock()
		return ErrBadSurface
	}
	if s.window == nil {
		d.mu.Unlock()
		return nil
	}

	d.curContext.mu.Lock()
	frame := ports.PresentedFrame{
		Image:       cloneRGBA64(s.img),
		ColorSpace:  s.colorSpace,
		TimestampNs: s.presentNs,
	}
	d.curContext.mu.Unlock()
	if !s.hasPresent {
		frame.TimestampNs = time.Since(d.epoch).Nanoseconds()
	}
	s.hasPresent = false
	window := s.window
	d.mu.Unlock()

	if err := window.Present(frame); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// DestroySurface destroys a surface, unbinding it first if current.
func (d *Display) DestroySurface(surf ports.EGLSurface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.surfaces[surf]
	if !ok {
		return ErrBadSurface
	}
	if d.curSurface == s {
		d.curContext.bind(nil)
		d.curSurface = nil
	}
	if s.window != nil {
		delete(d.windows, s.window)
	}
	delete(d.surfaces, surf)
	return nil
}

// DestroyContext destroys a context, releasing it first if current.
func (d *Display) DestroyContext(ctx ports.EGLContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.contexts[ctx]
	if !ok {
		return ErrBadContext
	}
	if d.curContext == c {
		d.release()
	}
	delete(d.contexts, ctx)
	return nil
}

// Terminate releases every context and surface of the display.
func (d *Display) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release()
	d.contexts = make(map[ports.EGLContext]*Context)
	d.surfaces = make(map[ports.EGLSurface]*surface)
	d.windows = make(map[ports.NativeWindow]ports.EGLSurface)
	d.initialized = false
	return nil
}

// GL returns the current context. With no context current it returns a
// detached context that is never bound to a surface.
func (d *Display) GL() ports.GL {
	return d.CurrentContext()
}

// CurrentContext is GL with the concrete type, for inspection in tests.
func (d *Display) CurrentContext() *Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.curContext == nil {
		return d.detached
	}
	return d.curContext
}

func (d *Display) currentContext() *Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.curContext
}

// CreateStreamTexture creates a stream texture attached to the external
// texture tex of the current context.
func (d *Display) CreateStreamTexture(tex uint32) (ports.StreamTexture, error) {
	c := d.currentContext()
	if c == nil {
		return nil, ErrNotCurrent
	}
	if !c.hasTexture(tex) {
		return nil, ErrBadTexture
	}
	return newStreamTexture(d, c, tex), nil
}

// LiveSurfaces returns the number of surfaces not yet destroyed.
func (d *Display) LiveSurfaces() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.surfaces)
}

// LiveContexts returns the number of contexts not yet destroyed.
func (d *Display) LiveContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.contexts)
}

// eachAttrib walks name/value pairs up to EGL_NONE.
func eachAttrib(attribs []int32, fn func(name, value int32) error) error {
	for i := 0; i < len(attribs); i += 2 {
		if attribs[i] == ports.EGL_NONE {
			return nil
		}
		if i+1 >= len(attribs) {
			return fmt.Errorf("%w: attribute 0x%x has no value", ErrBadAttribute, attribs[i])
		}
		if err := fn(attribs[i], attribs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func cloneRGBA64(src *image.RGBA64) *image.RGBA64 {
	dst := image.NewRGBA64(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

var _ ports.EGL = (*Display)(nil)
