// Package shader compiles and drives the GLES programs that draw a decoded
// external texture onto the current surface.
package shader

import (
	"github.com/user/glhdr/pkg/ports"
)

// Pipeline is a ready-to-draw program bound to one external texture.
// All methods must be called on the goroutine owning the GL context.
type Pipeline struct {
	gl       ports.GL
	variant  Variant
	program  Program
	loc      Locations
	geometry Geometry
	texture  uint32
}

// New compiles the variant, resolves its locations and configures the
// quad geometry for texture. Nothing is left allocated on failure.
func New(gl ports.GL, variant Variant, texture uint32) (*Pipeline, error) {
	vs, fs := variant.Sources()
	prog, err := Compile(gl, vs, fs)
	if err != nil {
		return nil, err
	}

	loc, err := ResolveLocations(gl, prog.Handle)
	if err != nil {
		prog.Delete(gl)
		return nil, err
	}

	geom, err := ConfigureGeometry(gl, prog, loc, texture, variant)
	if err != nil {
		prog.Delete(gl)
		return nil, err
	}

	return &Pipeline{
		gl:       gl,
		variant:  variant,
		program:  prog,
		loc:      loc,
		geometry: geom,
		texture:  texture,
	}, nil
}

// Variant returns the shader variant of the pipeline.
func (p *Pipeline) Variant() Variant { return p.variant }

// Locations returns the resolved attribute and uniform locations.
func (p *Pipeline) Locations() Locations { return p.loc }

// Draw renders the texture into a width x height viewport.
func (p *Pipeline) Draw(width, height int, m *[16]float32) error {
	p.gl.UseProgram(p.program.Handle)
	p.gl.BindVertexArray(p.geometry.VAO)
	p.gl.ActiveTexture(ports.GL_TEXTURE0)
	p.gl.BindTexture(ports.GL_TEXTURE_EXTERNAL_OES, p.texture)
	if err := checkGLError(p.gl, "glBindTexture"); err != nil {
		return err
	}
	return Draw(p.gl, width, height, p.loc.TexMatrix, m)
}

// Release deletes every GL object the pipeline created. The texture is
// owned by the caller and left alone.
func (p *Pipeline) Release() {
	p.geometry.Release(p.gl)
	p.program.Delete(p.gl)
	p.geometry = Geometry{}
	p.program = Program{}
}
