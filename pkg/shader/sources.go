package shader

// Variable names shared by every program variant.
const (
	AttribPosition     = "aPosition"
	AttribTextureCoord = "aTextureCoord"
	UniformTexMatrix   = "uTexMatrix"
	UniformTexture     = "sTexture"
	VaryingTexCoord    = "vTextureCoord"
)

// Variant selects the shader pair used to sample the external texture.
type Variant int

const (
	// Standard samples the texture as RGB through samplerExternalOES and
	// lets the driver convert to 8-bit RGB.
	Standard Variant = iota
	// HDR10 samples raw Y'CbCr through the YUV target extension and
	// converts to RGB in the fragment shader, keeping 10-bit precision.
	HDR10
)

func (v Variant) String() string {
	if v == HDR10 {
		return "hdr10"
	}
	return "standard"
}

// Sources returns the vertex and fragment shader of the variant.
func (v Variant) Sources() (vertex, fragment string) {
	if v == HDR10 {
		return TenBitVertexShader, TenBitFragmentShader
	}
	return DefaultVertexShader, DefaultFragmentShader
}

// DefaultVertexShader is the GLSL ES 1.00 vertex shader.
const DefaultVertexShader = `uniform mat4 uTexMatrix;
attribute vec4 aPosition;
attribute vec4 aTextureCoord;
varying vec2 vTextureCoord;
void main() {
    gl_Position = aPosition;
    vTextureCoord = (uTexMatrix * aTextureCoord).xy;
}`

// TenBitVertexShader is the GLSL ES 3.00 vertex shader.
const TenBitVertexShader = `#version 300 es
in vec4 aPosition;
in vec4 aTextureCoord;
uniform mat4 uTexMatrix;
out vec2 vTextureCoord;
void main() {
  gl_Position = aPosition;
  vTextureCoord = (uTexMatrix * aTextureCoord).xy;
}`

// DefaultFragmentShader samples an external texture as RGB.
const DefaultFragmentShader = `#extension GL_OES_EGL_image_external : require
precision mediump float;
varying vec2 vTextureCoord;
uniform samplerExternalOES sTexture;
void main() {
    gl_FragColor = texture2D(sTexture, vTextureCoord);
}`

// TenBitFragmentShader samples Y'CbCr and applies the limited-range
// BT.2020 transform. The mat3 literal is column-major.
const TenBitFragmentShader = `#version 300 es
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
