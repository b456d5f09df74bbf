package shader

import (
	"github.com/user/glhdr/pkg/ports"
)

// Full-screen quad drawn as a triangle strip: bottom left, bottom right,
// top left, top right.
var (
	quadVertices  = []float32{-1, -1, 1, -1, -1, 1, 1, 1}
	quadTexCoords = []float32{0, 0, 1, 0, 0, 1, 1, 1}
)

const (
	coordsPerVertex = 2
	quadVertexCount = 4
)

// CreateExternalTexture creates an external OES texture sampled with
// nearest minification, linear magnification and clamped edges.
func CreateExternalTexture(gl ports.GL) (uint32, error) {
	names := gl.GenTextures(1)
	if err := checkGLError(gl, "glGenTextures"); err != nil {
		return 0, err
	}
	tex := names[0]

	gl.BindTexture(ports.GL_TEXTURE_EXTERNAL_OES, tex)
	if err := checkGLError(gl, "glBindTexture"); err != nil {
		gl.DeleteTextures(tex)
		return 0, err
	}
	gl.TexParameteri(ports.GL_TEXTURE_EXTERNAL_OES, ports.GL_TEXTURE_MIN_FILTER, ports.GL_NEAREST)
	gl.TexParameteri(ports.GL_TEXTURE_EXTERNAL_OES, ports.GL_TEXTURE_MAG_FILTER, ports.GL_LINEAR)
	gl.TexParameteri(ports.GL_TEXTURE_EXTERNAL_OES, ports.GL_TEXTURE_WRAP_S, ports.GL_CLAMP_TO_EDGE)
	gl.TexParameteri(ports.GL_TEXTURE_EXTERNAL_OES, ports.GL_TEXTURE_WRAP_T, ports.GL_CLAMP_TO_EDGE)
	if err := checkGLError(gl, "glTexParameter"); err != nil {
		gl.DeleteTextures(tex)
		return 0, err
	}
	return tex, nil
}

// Geometry holds the vertex state created by ConfigureGeometry.
type Geometry struct {
	VAO  uint32
	VBOs [2]uint32
}

// Release deletes the buffers and the vertex array.
func (g Geometry) Release(gl ports.GL) {
	var bufs []uint32
	for _, b := range g.VBOs {
		if b != 0 {
			bufs = append(bufs, b)
		}
	}
	if len(bufs) > 0 {
		gl.DeleteBuffers(bufs...)
	}
	if g.VAO != 0 {
		gl.DeleteVertexArrays(g.VAO)
	}
}

// ConfigureGeometry makes program current, binds texture to unit 0 and
// uploads the quad. The HDR10 variant records the attribute state in a
// vertex array object.
func ConfigureGeometry(gl ports.GL, program Program, loc Locations, texture uint32, variant Variant) (geom Geometry, err error) {
	defer func() {
		if err != nil {
			geom.Release(gl)
			geom = Geometry{}
		}
	}()

	gl.UseProgram(program.Handle)
	if err = checkGLError(gl, "glUseProgram"); err != nil {
		return geom, err
	}

	gl.ActiveTexture(ports.GL_TEXTURE0)
	gl.BindTexture(ports.GL_TEXTURE_EXTERNAL_OES, texture)
	gl.Uniform1i(loc.Sampler, 0)
	if err = checkGLError(gl, "glUniform1i"); err != nil {
		return geom, err
	}

	if variant == HDR10 {
		vaos := gl.GenVertexArrays(1)
		if err = checkGLError(gl, "glGenVertexArrays"); err != nil {
			return geom, err
		}
		geom.VAO = vaos[0]
		gl.BindVertexArray(geom.VAO)
		if err = checkGLError(gl, "glBindVertexArray"); err != nil {
			return geom, err
		}
	}

	bufs := gl.GenBuffers(2)
	if err = checkGLError(gl, "glGenBuffers"); err != nil {
		return geom, err
	}
	copy(geom.VBOs[:], bufs)

	if err = uploadAttrib(gl, geom.VBOs[0], uint32(loc.Position), quadVertices); err != nil {
		return geom, err
	}
	if err = uploadAttrib(gl, geom.VBOs[1], uint32(loc.TextureCoord), quadTexCoords); err != nil {
		return geom, err
	}
	return geom, nil
}

func uploadAttrib(gl ports.GL, buf, index uint32, data []float32) error {
	gl.BindBuffer(ports.GL_ARRAY_BUFFER, buf)
	if err := checkGLError(gl, "glBindBuffer"); err != nil {
		return err
	}
	gl.BufferData(ports.GL_ARRAY_BUFFER, data, ports.GL_STATIC_DRAW)
	if err := checkGLError(gl, "glBufferData"); err != nil {
		return err
	}
	gl.EnableVertexAttribArray(index)
	if err := checkGLError(gl, "glEnableVertexAttribArray"); err != nil {
		return err
	}
	gl.VertexAttribPointer(index, coordsPerVertex, ports.GL_FLOAT, false, 0, 0)
	return checkGLError(gl, "glVertexAttribPointer")
}

// Draw renders the quad into a width x height viewport using the texture
// transform m.
func Draw(gl ports.GL, width, height int, texMatrixLoc int32, m *[16]float32) error {
	gl.Viewport(0, 0, int32(width), int32(height))
	if err := checkGLError(gl, "glViewport"); err != nil {
		return err
	}
	gl.Scissor(0, 0, int32(width), int32(height))
	if err := checkGLError(gl, "glScissor"); err != nil {
		return err
	}
	gl.UniformMatrix4fv(texMatrixLoc, false, m[:])
	if err := checkGLError(gl, "glUniformMatrix4fv"); err != nil {
		return err
	}
	gl.DrawArrays(ports.GL_TRIANGLE_STRIP, 0, quadVertexCount)
	return checkGLError(gl, "glDrawArrays")
}
