package softgl

import (
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/user/glhdr/pkg/colorspace"
	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/mocks"
	"github.com/user/glhdr/pkg/ports"
)

var es3 = []int32{ports.EGL_CONTEXT_CLIENT_VERSION, 3, ports.EGL_NONE}

func hlgAttribs() []int32 {
	return []int32{ports.EGL_GL_COLORSPACE_KHR, ports.EGL_GL_COLORSPACE_BT2020_HLG_EXT, ports.EGL_NONE}
}

func initDisplay(t *testing.T, opts ...Option) *Display {
	t.Helper()
	d := NewDisplay(opts...)
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return d
}

func currentDisplay(t *testing.T) (*Display, *mocks.Window, ports.EGLSurface) {
	t.Helper()
	d := initDisplay(t)
	cfg, err := d.ChooseConfig(ports.RGBA1010102)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := d.CreateContext(cfg, ports.NoContext, es3)
	if err != nil {
		t.Fatal(err)
	}
	win := mocks.NewWindow(4, 4)
	surf, err := d.CreateWindowSurface(cfg, win, hlgAttribs())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.MakeCurrent(surf, ctx); err != nil {
		t.Fatal(err)
	}
	return d, win, surf
}

func TestChooseConfig(t *testing.T) {
	d := initDisplay(t)

	cfg, err := d.ChooseConfig(ports.RGBA1010102)
	if err != nil {
		t.Fatalf("ChooseConfig failed: %v", err)
	}
	if cfg.Attributes.RedSize != 10 || cfg.Attributes.AlphaSize != 2 {
		t.Errorf("got %+v", cfg.Attributes)
	}

	want := ports.RGBA8888
	want.RenderableType = ports.EGL_OPENGL_ES3_BIT_KHR
	want.SurfaceType = ports.EGL_WINDOW_BIT | ports.EGL_PBUFFER_BIT
	if _, err := d.ChooseConfig(want); err != nil {
		t.Errorf("ChooseConfig(8888, es3, window|pbuffer) failed: %v", err)
	}
}

func TestChooseConfig_Unavailable(t *testing.T) {
	d := initDisplay(t, WithConfigs(ports.RGBA8888))

	_, err := d.ChooseConfig(ports.RGBA1010102)
	if !errors.Is(err, ErrBadConfig) {
		t.Errorf("expected ErrBadConfig, got %v", err)
	}
}

func TestNotInitialized(t *testing.T) {
	d := NewDisplay()
	if _, err := d.ChooseConfig(ports.RGBA8888); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if ext := d.Extensions(); ext != nil {
		t.Errorf("Extensions before Initialize = %v, want nil", ext)
	}
}

func TestCreateContext_ClientVersion(t *testing.T) {
	d := initDisplay(t)
	cfg, _ := d.ChooseConfig(ports.RGBA8888)

	tests := []struct {
		name    string
		attribs []int32
		wantErr error
	}{
		{"version 3", es3, nil},
		{"version 2", []int32{ports.EGL_CONTEXT_CLIENT_VERSION, 2, ports.EGL_NONE}, nil},
		{"version 4", []int32{ports.EGL_CONTEXT_CLIENT_VERSION, 4, ports.EGL_NONE}, ErrBadAttribute},
		{"no version", nil, ErrBadAttribute},
		{"unknown attribute", []int32{0x1234, 1, ports.EGL_NONE}, ErrBadAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateContext(cfg, ports.NoContext, tt.attribs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateContext() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateWindowSurface_HLGNeedsExtension(t *testing.T) {
	d := initDisplay(t, WithExtensions("EGL_KHR_gl_colorspace"))
	cfg, _ := d.ChooseConfig(ports.RGBA1010102)

	_, err := d.CreateWindowSurface(cfg, mocks.NewWindow(4, 4), hlgAttribs())
	if !errors.Is(err, ErrBadAttribute) {
		t.Errorf("expected ErrBadAttribute, got %v", err)
	}
	if d.LiveSurfaces() != 0 {
		t.Error("no surface should be created")
	}
}

func TestCreateWindowSurface_WindowConnectedOnce(t *testing.T) {
	d := initDisplay(t)
	cfg, _ := d.ChooseConfig(ports.RGBA8888)
	win := mocks.NewWindow(4, 4)

	surf, err := d.CreateWindowSurface(cfg, win, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateWindowSurface(cfg, win, nil); !errors.Is(err, ErrBadAlloc) {
		t.Errorf("expected ErrBadAlloc, got %v", err)
	}
	if err := d.DestroySurface(surf); err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateWindowSurface(cfg, win, nil); err != nil {
		t.Errorf("surface after destroy failed: %v", err)
	}
}

func TestSwapBuffers_PresentsFrame(t *testing.T) {
	d, win, surf := currentDisplay(t)

	gl := d.GL()
	gl.ClearColor(1, 0, 0, 1)
	gl.Clear(ports.GL_COLOR_BUFFER_BIT)
	if err := d.SetPresentationTime(surf, 42_000); err != nil {
		t.Fatal(err)
	}
	if err := d.SwapBuffers(surf); err != nil {
		t.Fatal(err)
	}

	frames := win.Frames()
	if len(frames) != 1 {
		t.Fatalf("presented %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.TimestampNs != 42_000 {
		t.Errorf("TimestampNs = %d, want 42000", f.TimestampNs)
	}
	if f.ColorSpace != ports.ColorSpaceBT2020HLG {
		t.Errorf("ColorSpace = %s", f.ColorSpace)
	}
	c := f.Image.RGBA64At(0, 0)
	if c.R != 0xffff || c.G != 0 || c.A != 0xffff {
		t.Errorf("pixel = %+v, want opaque red", c)
	}
}

func TestSwapBuffers_NotCurrent(t *testing.T) {
	d, _, surf := currentDisplay(t)
	if err := d.MakeCurrent(ports.NoSurface, ports.NoContext); err != nil {
		t.Fatal(err)
	}
	if err := d.SwapBuffers(surf); !errors.Is(err, ErrBadSurface) {
		t.Errorf("expected ErrBadSurface, got %v", err)
	}
}

func TestTerminate(t *testing.T) {
	d, _, _ := currentDisplay(t)
	if err := d.Terminate(); err != nil {
		t.Fatal(err)
	}
	if d.LiveSurfaces() != 0 || d.LiveContexts() != 0 {
		t.Errorf("surfaces=%d contexts=%d after Terminate", d.LiveSurfaces(), d.LiveContexts())
	}
}

func TestGetError_FirstErrorSticks(t *testing.T) {
	d, _, _ := currentDisplay(t)
	gl := d.GL()

	gl.BindBuffer(0x1234, 0)  // INVALID_ENUM
	gl.Viewport(0, 0, -1, -1) // INVALID_VALUE, not recorded
	if code := gl.GetError(); code != ports.GL_INVALID_ENUM {
		t.Errorf("GetError = 0x%x, want INVALID_ENUM", code)
	}
	if code := gl.GetError(); code != ports.GL_NO_ERROR {
		t.Errorf("GetError after read = 0x%x, want NO_ERROR", code)
	}
}

func TestCompileGLSL(t *testing.T) {
	const tenBitFragment = `#version 300 es
#extension GL_EXT_YUV_target : require
precision mediump float;
uniform __samplerExternal2DY2YEXT sTexture;
in vec2 vTextureCoord;
out vec3 outColor;
void main() {
  outColor = texture(sTexture, vTextureCoord).xyz;
}`

	tests := []struct {
		name    string
		kind    uint32
		source  string
		wantErr string
	}{
		{
			name:   "yuv fragment",
			kind:   ports.GL_FRAGMENT_SHADER,
			source: tenBitFragment,
		},
		{
			name:    "version not first",
			kind:    ports.GL_FRAGMENT_SHADER,
			source:  "precision mediump float;\n" + tenBitFragment,
			wantErr: "#version",
		},
		{
			name:    "unsupported extension",
			kind:    ports.GL_FRAGMENT_SHADER,
			source:  strings.Replace(tenBitFragment, "GL_EXT_YUV_target", "GL_EXT_unknown", 1),
			wantErr: "not supported",
		},
		{
			name:    "gl_FragColor in 3.00",
			kind:    ports.GL_FRAGMENT_SHADER,
			source:  strings.Replace(tenBitFragment, "outColor = ", "gl_FragColor.rgb = ", 1),
			wantErr: "gl_FragColor",
		},
		{
			name:    "attribute in 3.00",
			kind:    ports.GL_VERTEX_SHADER,
			source:  "#version 300 es\nattribute vec4 aPosition;\nvoid main() {\n  gl_Position = aPosition;\n}",
			wantErr: "attribute",
		},
		{
			name:    "unbalanced braces",
			kind:    ports.GL_VERTEX_SHADER,
			source:  "attribute vec4 aPosition;\nvoid main() {\n  gl_Position = aPosition;\n",
			wantErr: "syntax error",
		},
		{
			name:    "no main",
			kind:    ports.GL_VERTEX_SHADER,
			source:  "attribute vec4 aPosition;\n",
			wantErr: "main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, log := compileGLSL(tt.kind, tt.source)
			if tt.wantErr == "" {
				if log != "" {
					t.Errorf("unexpected log: %s", log)
				}
				return
			}
			if !strings.Contains(log, tt.wantErr) {
				t.Errorf("log %q does not mention %q", log, tt.wantErr)
			}
		})
	}
}

func TestParseTransform_MatchesReference(t *testing.T) {
	src := `#version 300 es
#extension GL_EXT_YUV_target : require
precision mediump float;
uniform __samplerExternal2DY2YEXT sTexture;
in vec2 vTextureCoord;
out vec3 outColor;
vec3 yuvToRgb(vec3 yuv) {
  const vec3 yuvOffset = vec3(0.0625, 0.5, 0.5);
  const mat3 yuvToRgbColorTransform = mat3(
    1.1689f, 1.1689f, 1.1689f,
    0.0000f, -0.1881f, 2.1502f,
    1.6853f, -0.6530f, 0.0000f
  );
  return clamp(yuvToRgbColorTransform * (yuv - yuvOffset), 0.0, 1.0);
}
void main() {
  outColor = yuvToRgb(texture(sTexture, vTextureCoord).xyz);
}`
	info, log := compileGLSL(ports.GL_FRAGMENT_SHADER, src)
	if log != "" {
		t.Fatalf("compile: %s", log)
	}
	if info.kernel != kernelYUVTransform {
		t.Fatalf("kernel = %d, want kernelYUVTransform", info.kernel)
	}
	if info.transform.Offset != colorspace.BT2020.Offset {
		t.Errorf("offset = %v, want %v", info.transform.Offset, colorspace.BT2020.Offset)
	}
	if info.transform.Matrix != colorspace.BT2020.Matrix {
		t.Errorf("matrix = %v, want %v", info.transform.Matrix, colorspace.BT2020.Matrix)
	}
}

func TestStreamTexture_LatestBufferWins(t *testing.T) {
	d, _, _ := currentDisplay(t)
	gl := d.GL()
	tex := gl.GenTextures(1)[0]
	gl.BindTexture(ports.GL_TEXTURE_EXTERNAL_OES, tex)

	stIface, err := d.CreateStreamTexture(tex)
	if err != nil {
		t.Fatal(err)
	}
	st := stIface.(*StreamTexture)

	notified := 0
	st.SetOnFrameAvailableListener(func() { notified++ })

	for i := int64(1); i <= 2; i++ {
		pic := media.NewPicture(2, 2, 10)
		pic.TimestampUs = i * 1000
		if err := st.Surface().QueueBuffer(pic); err != nil {
			t.Fatal(err)
		}
	}
	if latched, err := st.UpdateTexImage(); err != nil || !latched {
		t.Fatalf("UpdateTexImage = %t, %v", latched, err)
	}
	if latched, err := st.UpdateTexImage(); err != nil || latched {
		t.Errorf("second UpdateTexImage = %t, %v, want nothing latched", latched, err)
	}

	if notified != 2 {
		t.Errorf("listener called %d times, want 2", notified)
	}
	if st.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped())
	}
	if ts := st.Timestamp(); ts != 2_000_000 {
		t.Errorf("Timestamp = %d, want 2000000", ts)
	}
}

func TestStreamTexture_UpdateRequiresCurrentContext(t *testing.T) {
	d, _, _ := currentDisplay(t)
	tex := d.GL().GenTextures(1)[0]
	st, err := d.CreateStreamTexture(tex)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.MakeCurrent(ports.NoSurface, ports.NoContext); err != nil {
		t.Fatal(err)
	}
	if _, err := st.UpdateTexImage(); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("expected ErrNotCurrent, got %v", err)
	}
}

func TestStreamTexture_DetachAttach(t *testing.T) {
	d, _, _ := currentDisplay(t)
	names := d.GL().GenTextures(2)
	st, err := d.CreateStreamTexture(names[0])
	if err != nil {
		t.Fatal(err)
	}

	if err := st.AttachToGLContext(names[1]); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("attach while attached: %v", err)
	}
	if err := st.DetachFromGLContext(); err != nil {
		t.Fatal(err)
	}
	if err := st.AttachToGLContext(names[1]); err != nil {
		t.Errorf("attach after detach: %v", err)
	}
}

func TestStreamTexture_ReleasedQueueFails(t *testing.T) {
	d, _, _ := currentDisplay(t)
	tex := d.GL().GenTextures(1)[0]
	st, _ := d.CreateStreamTexture(tex)
	st.Release()

	if err := st.Surface().QueueBuffer(media.NewPicture(2, 2, 10)); !errors.Is(err, ErrAbandoned) {
		t.Errorf("expected ErrAbandoned, got %v", err)
	}
}

func TestStreamTexture_ReleasedProducerDetaches(t *testing.T) {
	d, _, _ := currentDisplay(t)
	tex := d.GL().GenTextures(1)[0]
	st, err := d.CreateStreamTexture(tex)
	if err != nil {
		t.Fatal(err)
	}

	pic := media.NewPicture(2, 2, 10)
	pic.TimestampUs = 7
	if err := st.Surface().QueueBuffer(pic); err != nil {
		t.Fatal(err)
	}
	st.Surface().Release()

	if err := st.Surface().QueueBuffer(media.NewPicture(2, 2, 10)); !errors.Is(err, ErrProducerReleased) {
		t.Errorf("queue after producer release: expected ErrProducerReleased, got %v", err)
	}
	if latched, err := st.UpdateTexImage(); err != nil || !latched {
		t.Errorf("buffer queued before release: UpdateTexImage = %t, %v", latched, err)
	}
	if ts := st.Timestamp(); ts != 7000 {
		t.Errorf("Timestamp = %d, want 7000", ts)
	}
}

func TestCropTransform(t *testing.T) {
	pic := media.NewPicture(1920, 1088, 10)
	pic.Crop = image.Rect(0, 0, 1920, 1080)

	m := cropTransform(pic)

	if m[0] != 1 {
		t.Errorf("m[0] = %v, want 1", m[0])
	}
	if want := -float32(1080) / 1088; m[5] != want {
		t.Errorf("m[5] = %v, want %v", m[5], want)
	}
	if want := float32(1080) / 1088; m[13] != want {
		t.Errorf("m[13] = %v, want %v", m[13], want)
	}
	if m[12] != 0 || m[15] != 1 {
		t.Errorf("translation = (%v, %v), w = %v", m[12], m[13], m[15])
	}
}
