package shader

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/user/glhdr/pkg/adapters/softgl"
	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/mocks"
	"github.com/user/glhdr/pkg/ports"
)

type glEnv struct {
	display *softgl.Display
	ctx     *softgl.Context
	window  *mocks.Window
	surface ports.EGLSurface
}

func newGLEnv(t *testing.T, cfgAttrs ports.ConfigAttributes, colorspace int32, w, h int) *glEnv {
	t.Helper()
	d := softgl.NewDisplay()
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	cfg, err := d.ChooseConfig(cfgAttrs)
	if err != nil {
		t.Fatalf("ChooseConfig: %v", err)
	}
	ctx, err := d.CreateContext(cfg, ports.NoContext, []int32{ports.EGL_CONTEXT_CLIENT_VERSION, 3, ports.EGL_NONE})
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	win := mocks.NewWindow(w, h)
	surf, err := d.CreateWindowSurface(cfg, win, []int32{ports.EGL_GL_COLORSPACE_KHR, colorspace, ports.EGL_NONE})
	if err != nil {
		t.Fatalf("CreateWindowSurface: %v", err)
	}
	if err := d.MakeCurrent(surf, ctx); err != nil {
		t.Fatalf("MakeCurrent: %v", err)
	}
	return &glEnv{display: d, ctx: d.CurrentContext(), window: win, surface: surf}
}

func newHDREnv(t *testing.T, w, h int) *glEnv {
	return newGLEnv(t, ports.RGBA1010102, ports.EGL_GL_COLORSPACE_BT2020_HLG_EXT, w, h)
}

// drawPicture runs a full pipeline over pic and returns the presented frame.
func (e *glEnv) drawPicture(t *testing.T, variant Variant, pic *media.Picture) ports.PresentedFrame {
	t.Helper()
	tex, err := CreateExternalTexture(e.ctx)
	if err != nil {
		t.Fatalf("CreateExternalTexture: %v", err)
	}
	st, err := e.display.CreateStreamTexture(tex)
	if err != nil {
		t.Fatalf("CreateStreamTexture: %v", err)
	}
	if err := st.Surface().QueueBuffer(pic); err != nil {
		t.Fatalf("QueueBuffer: %v", err)
	}
	if _, err := st.UpdateTexImage(); err != nil {
		t.Fatalf("UpdateTexImage: %v", err)
	}
	var m [16]float32
	st.TransformMatrix(&m)

	p, err := New(e.ctx, variant, tex)
	if err != nil {
		t.Fatalf("New(%s): %v", variant, err)
	}
	defer p.Release()

	w, h := e.window.Size()
	if err := p.Draw(w, h, &m); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if err := e.display.SwapBuffers(e.surface); err != nil {
		t.Fatalf("SwapBuffers: %v", err)
	}
	frames := e.window.Frames()
	return frames[len(frames)-1]
}

func channel(v uint32) float64 {
	return float64(v) / 0xffff
}

func TestCompile_AllVariants(t *testing.T) {
	env := newHDREnv(t, 4, 4)

	for _, v := range []Variant{Standard, HDR10} {
		t.Run(v.String(), func(t *testing.T) {
			vs, fs := v.Sources()
			prog, err := Compile(env.ctx, vs, fs)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			defer prog.Delete(env.ctx)

			loc, err := ResolveLocations(env.ctx, prog.Handle)
			if err != nil {
				t.Fatalf("ResolveLocations failed: %v", err)
			}
			if loc.Position < 0 || loc.TextureCoord < 0 || loc.TexMatrix < 0 || loc.Sampler < 0 {
				t.Errorf("unexpected locations %+v", loc)
			}
		})
	}

	if n := env.ctx.LiveObjects(); n != 0 {
		t.Errorf("LiveObjects = %d after deleting programs, want 0", n)
	}
}

func TestCompile_Failures(t *testing.T) {
	tests := []struct {
		name      string
		vertex    string
		fragment  string
		wantStage Stage
		wantLink  bool
	}{
		{
			name:      "vertex syntax error",
			vertex:    "attribute vec4 aPosition;\nvoid main( {\n gl_Position = aPosition;\n}",
			fragment:  DefaultFragmentShader,
			wantStage: StageVertex,
		},
		{
			name:      "fragment without YUV extension",
			vertex:    TenBitVertexShader,
			fragment:  "#version 300 es\nprecision mediump float;\nuniform __samplerExternal2DY2YEXT sTexture;\nin vec2 vTextureCoord;\nout vec3 outColor;\nvoid main() {\n  outColor = texture(sTexture, vTextureCoord).xyz;\n}",
			wantStage: StageFragment,
		},
		{
			name:     "version mismatch",
			vertex:   TenBitVertexShader,
			fragment: DefaultFragmentShader,
			wantLink: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHDREnv(t, 4, 4)

			_, err := Compile(env.ctx, tt.vertex, tt.fragment)
			if err == nil {
				t.Fatal("expected error")
			}

			if tt.wantLink {
				var le *ProgramLinkError
				if !errors.As(err, &le) {
					t.Fatalf("expected *ProgramLinkError, got %T: %v", err, err)
				}
				if le.Log == "" {
					t.Error("expected a link log")
				}
				if !errors.Is(err, ErrProgramLink) {
					t.Error("expected errors.Is(err, ErrProgramLink)")
				}
			} else {
				var ce *ShaderCompileError
				if !errors.As(err, &ce) {
					t.Fatalf("expected *ShaderCompileError, got %T: %v", err, err)
				}
				if ce.Stage != tt.wantStage {
					t.Errorf("Stage = %s, want %s", ce.Stage, tt.wantStage)
				}
				if !errors.Is(err, ErrShaderCompile) {
					t.Error("expected errors.Is(err, ErrShaderCompile)")
				}
			}

			if n := env.ctx.LiveObjects(); n != 0 {
				t.Errorf("LiveObjects = %d after failed compile, want 0", n)
			}
		})
	}
}

func TestResolveLocations_Missing(t *testing.T) {
	env := newHDREnv(t, 4, 4)

	vertex := `attribute vec4 aPos;
attribute vec4 aTextureCoord;
uniform mat4 uTexMatrix;
varying vec2 vTextureCoord;
void main() {
    gl_Position = aPos;
    vTextureCoord = (uTexMatrix * aTextureCoord).xy;
}`
	prog, err := Compile(env.ctx, vertex, DefaultFragmentShader)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	defer prog.Delete(env.ctx)

	_, err = ResolveLocations(env.ctx, prog.Handle)
	var me *MissingLocationError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MissingLocationError, got %v", err)
	}
	if me.Name != AttribPosition {
		t.Errorf("Name = %q, want %q", me.Name, AttribPosition)
	}
	if !errors.Is(err, ErrMissingLocation) {
		t.Error("expected errors.Is(err, ErrMissingLocation)")
	}
}

func TestCreateExternalTexture(t *testing.T) {
	env := newHDREnv(t, 4, 4)

	tex, err := CreateExternalTexture(env.ctx)
	if err != nil {
		t.Fatalf("CreateExternalTexture failed: %v", err)
	}
	if tex == 0 {
		t.Error("expected a non-zero texture name")
	}
	if n := env.ctx.LiveObjects(); n != 1 {
		t.Errorf("LiveObjects = %d, want 1", n)
	}
}

func TestCreateExternalTexture_GLError(t *testing.T) {
	env := newHDREnv(t, 4, 4)
	env.ctx.InjectError("TexParameteri", ports.GL_INVALID_ENUM)

	_, err := CreateExternalTexture(env.ctx)
	var ge *GPUStateError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *GPUStateError, got %v", err)
	}
	if ge.Op != "glTexParameter" || ge.Code != ports.GL_INVALID_ENUM {
		t.Errorf("got %+v", ge)
	}
	if n := env.ctx.LiveObjects(); n != 0 {
		t.Errorf("LiveObjects = %d, want 0", n)
	}
}

func TestPipeline_HDR10MidGray(t *testing.T) {
	env := newHDREnv(t, 8, 8)

	pic := media.NewPicture(8, 8, 10)
	pic.Fill(512, 512, 512)
	pic.Color = media.BT2020HLG

	frame := env.drawPicture(t, HDR10, pic)

	if frame.ColorSpace != ports.ColorSpaceBT2020HLG {
		t.Errorf("ColorSpace = %s, want bt2020-hlg", frame.ColorSpace)
	}
	want := (512.0/1023.0 - 0.0625) * 1.1689
	for _, pt := range [][2]int{{0, 0}, {4, 4}, {7, 7}} {
		c := frame.Image.RGBA64At(pt[0], pt[1])
		for i, v := range []uint16{c.R, c.G, c.B} {
			if got := channel(uint32(v)); math.Abs(got-want) > 0.01 {
				t.Errorf("pixel %v channel %d = %.4f, want %.4f", pt, i, got, want)
			}
		}
	}
}

func TestPipeline_HDR10Red(t *testing.T) {
	env := newHDREnv(t, 4, 4)

	pic := media.NewPicture(4, 4, 10)
	pic.Fill(294, 386, 959)

	frame := env.drawPicture(t, HDR10, pic)

	c := frame.Image.RGBA64At(1, 1)
	if r := channel(uint32(c.R)); r < 0.97 {
		t.Errorf("R = %.4f, want ~1", r)
	}
	if g := channel(uint32(c.G)); g > 0.03 {
		t.Errorf("G = %.4f, want ~0", g)
	}
	if b := channel(uint32(c.B)); b > 0.03 {
		t.Errorf("B = %.4f, want ~0", b)
	}
}

func TestPipeline_Orientation(t *testing.T) {
	env := newHDREnv(t, 4, 4)

	pic := media.NewPicture(4, 4, 10)
	pic.Fill(64, 512, 512)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			pic.Y[y*4+x] = 940
		}
	}

	frame := env.drawPicture(t, HDR10, pic)

	top := channel(uint32(frame.Image.RGBA64At(2, 0).R))
	bottom := channel(uint32(frame.Image.RGBA64At(2, 3).R))
	if top < 0.9 {
		t.Errorf("top row = %.3f, want bright", top)
	}
	if bottom > 0.1 {
		t.Errorf("bottom row = %.3f, want dark", bottom)
	}
}

func TestPipeline_Standard8Bit(t *testing.T) {
	env := newGLEnv(t, ports.RGBA8888, ports.EGL_GL_COLORSPACE_SRGB_KHR, 4, 4)

	pic := media.NewPicture(4, 4, 10)
	pic.Fill(512, 512, 512)
	pic.Color = media.BT2020HLG

	frame := env.drawPicture(t, Standard, pic)

	if frame.ColorSpace != ports.ColorSpaceSRGB {
		t.Errorf("ColorSpace = %s, want srgb", frame.ColorSpace)
	}
	c := frame.Image.RGBA64At(2, 2)
	if c.R&0xff != c.R>>8 {
		t.Errorf("R = 0x%04x is not an 8-bit value", c.R)
	}
	if got := channel(uint32(c.G)); math.Abs(got-0.512) > 0.01 {
		t.Errorf("G = %.4f, want ~0.512", got)
	}
}

func TestPipeline_DrawGLError(t *testing.T) {
	env := newHDREnv(t, 4, 4)
	tex, err := CreateExternalTexture(env.ctx)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(env.ctx, HDR10, tex)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	env.ctx.InjectError("DrawArrays", ports.GL_INVALID_OPERATION)

	var m [16]float32
	err = p.Draw(4, 4, &m)
	var ge *GPUStateError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *GPUStateError, got %v", err)
	}
	if ge.Op != "glDrawArrays" || ge.Code != ports.GL_INVALID_OPERATION {
		t.Errorf("got %+v", ge)
	}
	if !errors.Is(err, ErrGPUState) {
		t.Error("expected errors.Is(err, ErrGPUState)")
	}
}

func TestNew_RollsBackOnFailure(t *testing.T) {
	env := newHDREnv(t, 4, 4)
	tex, err := CreateExternalTexture(env.ctx)
	if err != nil {
		t.Fatal(err)
	}

	env.ctx.InjectError("VertexAttribPointer", ports.GL_INVALID_VALUE)
	if _, err := New(env.ctx, HDR10, tex); err == nil {
		t.Fatal("expected error")
	}

	if n := env.ctx.LiveObjects(); n != 1 {
		t.Errorf("LiveObjects = %d, want 1 (the texture)", n)
	}
}

func TestPipeline_Release(t *testing.T) {
	env := newHDREnv(t, 4, 4)
	tex, err := CreateExternalTexture(env.ctx)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(env.ctx, HDR10, tex)
	if err != nil {
		t.Fatal(err)
	}
	if n := env.ctx.LiveObjects(); n <= 1 {
		t.Fatalf("LiveObjects = %d, want program objects allocated", n)
	}

	p.Release()

	if n := env.ctx.LiveObjects(); n != 1 {
		t.Errorf("LiveObjects = %d after Release, want 1", n)
	}
}

func TestTenBitFragmentShader_Constants(t *testing.T) {
	for _, lit := range []string{
		"vec3(0.0625, 0.5, 0.5)",
		"1.1689f, 1.1689f, 1.1689f",
		"0.0000f, -0.1881f, 2.1502f",
		"1.6853f, -0.6530f, 0.0000f",
	} {
		if !strings.Contains(TenBitFragmentShader, lit) {
			t.Errorf("fragment shader is missing %q", lit)
		}
	}
}
