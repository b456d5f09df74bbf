package ports

import (
	"image"
)

// EGL attribute names and values.
const (
	EGL_NONE                         int32 = 0x3038
	EGL_ALPHA_SIZE                   int32 = 0x3021
	EGL_BLUE_SIZE                    int32 = 0x3022
	EGL_GREEN_SIZE                   int32 = 0x3023
	EGL_RED_SIZE                     int32 = 0x3024
	EGL_SURFACE_TYPE                 int32 = 0x3033
	EGL_RENDERABLE_TYPE              int32 = 0x3040
	EGL_CONTEXT_CLIENT_VERSION       int32 = 0x3098
	EGL_GL_COLORSPACE_KHR            int32 = 0x309D
	EGL_GL_COLORSPACE_SRGB_KHR       int32 = 0x3089
	EGL_GL_COLORSPACE_LINEAR_KHR     int32 = 0x308A
	EGL_GL_COLORSPACE_BT2020_HLG_EXT int32 = 0x3540
	EGL_RECORDABLE_ANDROID           int32 = 0x3142

	EGL_PBUFFER_BIT        int32 = 0x0001
	EGL_WINDOW_BIT         int32 = 0x0004
	EGL_OPENGL_ES2_BIT     int32 = 0x0004
	EGL_OPENGL_ES3_BIT_KHR int32 = 0x0040
)

// Extensions required by the 10-bit HDR pipeline.
const (
	ExtColorspaceBT2020HLG = "EGL_EXT_gl_colorspace_bt2020_hlg"
	ExtYUVSurface          = "EGL_EXT_yuv_surface"
)

// EGLContext and EGLSurface are opaque EGL object handles.
type (
	EGLContext uint64
	EGLSurface uint64
)

// NoSurface and NoContext are the null handles.
const (
	NoSurface EGLSurface = 0
	NoContext EGLContext = 0
)

// ConfigAttributes are the framebuffer configuration criteria.
type ConfigAttributes struct {
	RedSize        int32
	GreenSize      int32
	BlueSize       int32
	AlphaSize      int32
	RenderableType int32
	SurfaceType    int32
	Recordable     bool
}

// RGBA8888 requests an 8-bit per channel framebuffer.
var RGBA8888 = ConfigAttributes{RedSize: 8, GreenSize: 8, BlueSize: 8, AlphaSize: 8}

// RGBA1010102 requests a 10-bit per colour channel framebuffer.
var RGBA1010102 = ConfigAttributes{RedSize: 10, GreenSize: 10, BlueSize: 10, AlphaSize: 2}

// EGLConfig is a framebuffer configuration returned by ChooseConfig.
type EGLConfig struct {
	ID         int
	Attributes ConfigAttributes
}

// ColorSpace tags the pixels a window surface presents.
type ColorSpace int

const (
	ColorSpaceSRGB ColorSpace = iota
	ColorSpaceBT2020HLG
)

// String returns the name of the colour space.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT2020HLG:
		return "bt2020-hlg"
	default:
		return "srgb"
	}
}

// PresentedFrame is the content of a window surface after a buffer swap.
type PresentedFrame struct {
	Image       *image.RGBA64
	ColorSpace  ColorSpace
	TimestampNs int64
}

// NativeWindow is a platform surface an EGL window surface presents to.
type NativeWindow interface {
	// Size returns the native size of the window.
	Size() (width, height int)

	// Present receives the frame produced by a buffer swap.
	Present(frame PresentedFrame) error
}

// EGL abstracts display, configuration, context and surface management.
// Context-bound calls act on the calling goroutine.
type EGL interface {
	Initialize() error
	Extensions() []string
	ChooseConfig(attrs ConfigAttributes) (EGLConfig, error)
	CreateContext(config EGLConfig, share EGLContext, attribs []int32) (EGLContext, error)
	CreateWindowSurface(config EGLConfig, window NativeWindow, attribs []int32) (EGLSurface, error)
	CreatePbufferSurface(config EGLConfig, width, height int) (EGLSurface, error)
	MakeCurrent(surface EGLSurface, ctx EGLContext) error
	SetPresentationTime(surface EGLSurface, ns int64) error
	SwapBuffers(surface EGLSurface) error
	DestroySurface(surface EGLSurface) error
	DestroyContext(ctx EGLContext) error
	Terminate() error

	// GL returns the GLES entry points of the current context.
	GL() GL

	// CreateStreamTexture creates a buffer queue whose consumer is the
	// external texture tex of the current context.
	CreateStreamTexture(tex uint32) (StreamTexture, error)
}
