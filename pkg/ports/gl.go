package ports

// OpenGL ES enums used by the shader pipeline.
const (
	GL_NO_ERROR          uint32 = 0
	GL_INVALID_ENUM      uint32 = 0x0500
	GL_INVALID_VALUE     uint32 = 0x0501
	GL_INVALID_OPERATION uint32 = 0x0502
	GL_OUT_OF_MEMORY     uint32 = 0x0505

	GL_FALSE int32 = 0
	GL_TRUE  int32 = 1

	GL_FRAGMENT_SHADER  uint32 = 0x8B30
	GL_VERTEX_SHADER    uint32 = 0x8B31
	GL_COMPILE_STATUS   uint32 = 0x8B81
	GL_LINK_STATUS      uint32 = 0x8B82
	GL_INFO_LOG_LENGTH  uint32 = 0x8B84
	GL_ATTACHED_SHADERS uint32 = 0x8B85

	GL_TEXTURE_2D           uint32 = 0x0DE1
	GL_TEXTURE_EXTERNAL_OES uint32 = 0x8D65
	GL_TEXTURE0             uint32 = 0x84C0
	GL_TEXTURE_MAG_FILTER   uint32 = 0x2800
	GL_TEXTURE_MIN_FILTER   uint32 = 0x2801
	GL_TEXTURE_WRAP_S       uint32 = 0x2802
	GL_TEXTURE_WRAP_T       uint32 = 0x2803
	GL_NEAREST              int32  = 0x2600
	GL_LINEAR               int32  = 0x2601
	GL_CLAMP_TO_EDGE        int32  = 0x812F

	GL_ARRAY_BUFFER uint32 = 0x8892
	GL_STATIC_DRAW  uint32 = 0x88E4
	GL_FLOAT        uint32 = 0x1406

	GL_TRIANGLES      uint32 = 0x0004
	GL_TRIANGLE_STRIP uint32 = 0x0005

	GL_COLOR_BUFFER_BIT uint32 = 0x4000
	GL_SCISSOR_TEST     uint32 = 0x0C11
)

// GL abstracts the subset of OpenGL ES 3.0 used to draw an external
// texture. Every method acts on the context current on the calling
// goroutine and records failures for GetError rather than returning them.
type GL interface {
	CreateShader(kind uint32) uint32
	ShaderSource(shader uint32, source string)
	CompileShader(shader uint32)
	GetShaderiv(shader uint32, pname uint32) int32
	GetShaderInfoLog(shader uint32) string
	DeleteShader(shader uint32)

	CreateProgram() uint32
	AttachShader(program, shader uint32)
	LinkProgram(program uint32)
	GetProgramiv(program uint32, pname uint32) int32
	GetProgramInfoLog(program uint32) string
	DeleteProgram(program uint32)
	UseProgram(program uint32)

	GetAttribLocation(program uint32, name string) int32
	GetUniformLocation(program uint32, name string) int32
	Uniform1i(location int32, v int32)
	UniformMatrix4fv(location int32, transpose bool, m []float32)

	GenTextures(n int) []uint32
	DeleteTextures(textures ...uint32)
	BindTexture(target, texture uint32)
	ActiveTexture(unit uint32)
	TexParameteri(target, pname uint32, param int32)

	GenVertexArrays(n int) []uint32
	DeleteVertexArrays(arrays ...uint32)
	BindVertexArray(array uint32)

	GenBuffers(n int) []uint32
	DeleteBuffers(buffers ...uint32)
	BindBuffer(target, buffer uint32)
	BufferData(target uint32, data []float32, usage uint32)
	EnableVertexAttribArray(index uint32)
	VertexAttribPointer(index uint32, size int32, kind uint32, normalized bool, stride int32, offset int)

	Viewport(x, y, width, height int32)
	Scissor(x, y, width, height int32)
	Enable(capability uint32)
	ClearColor(r, g, b, a float32)
	Clear(mask uint32)
	DrawArrays(mode uint32, first, count int32)

	GetError() uint32
}
