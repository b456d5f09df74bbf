package shader

import (
	"fmt"

	"github.com/user/glhdr/pkg/ports"
)

// Program holds the GL names of a linked program and its shaders.
type Program struct {
	Vertex   uint32
	Fragment uint32
	Handle   uint32
}

// Delete releases the program and both shaders.
func (p Program) Delete(gl ports.GL) {
	if p.Handle != 0 {
		gl.DeleteProgram(p.Handle)
	}
	if p.Vertex != 0 {
		gl.DeleteShader(p.Vertex)
	}
	if p.Fragment != 0 {
		gl.DeleteShader(p.Fragment)
	}
}

// Compile compiles both stages and links them. On failure every object
// created so far is deleted before the error is returned.
func Compile(gl ports.GL, vertexSrc, fragmentSrc string) (prog Program, err error) {
	defer func() {
		if err != nil {
			prog.Delete(gl)
			prog = Program{}
		}
	}()

	if prog.Vertex, err = loadShader(gl, StageVertex, vertexSrc); err != nil {
		return prog, err
	}
	if prog.Fragment, err = loadShader(gl, StageFragment, fragmentSrc); err != nil {
		return prog, err
	}

	prog.Handle = gl.CreateProgram()
	if err = checkGLError(gl, "glCreateProgram"); err != nil {
		return prog, err
	}
	gl.AttachShader(prog.Handle, prog.Vertex)
	if err = checkGLError(gl, "glAttachShader"); err != nil {
		return prog, err
	}
	gl.AttachShader(prog.Handle, prog.Fragment)
	if err = checkGLError(gl, "glAttachShader"); err != nil {
		return prog, err
	}
	gl.LinkProgram(prog.Handle)
	if gl.GetProgramiv(prog.Handle, ports.GL_LINK_STATUS) != ports.GL_TRUE {
		return prog, &ProgramLinkError{Log: gl.GetProgramInfoLog(prog.Handle)}
	}
	return prog, nil
}

func loadShader(gl ports.GL, stage Stage, source string) (uint32, error) {
	kind := ports.GL_VERTEX_SHADER
	if stage == StageFragment {
		kind = ports.GL_FRAGMENT_SHADER
	}

	sh := gl.CreateShader(kind)
	if err := checkGLError(gl, fmt.Sprintf("glCreateShader type=%d", kind)); err != nil {
		return 0, err
	}
	gl.ShaderSource(sh, source)
	gl.CompileShader(sh)
	if gl.GetShaderiv(sh, ports.GL_COMPILE_STATUS) != ports.GL_TRUE {
		log := gl.GetShaderInfoLog(sh)
		gl.DeleteShader(sh)
		return 0, &ShaderCompileError{Stage: stage, Log: log}
	}
	return sh, nil
}

// Locations are the attribute and uniform locations of a linked program.
type Locations struct {
	Position     int32
	TextureCoord int32
	TexMatrix    int32
	Sampler      int32
}

// ResolveLocations looks up every attribute and uniform the draw needs.
func ResolveLocations(gl ports.GL, program uint32) (Locations, error) {
	var loc Locations
	var err error

	if loc.Position, err = attribLocation(gl, program, AttribPosition); err != nil {
		return Locations{}, err
	}
	if loc.TextureCoord, err = attribLocation(gl, program, AttribTextureCoord); err != nil {
		return Locations{}, err
	}
	if loc.TexMatrix, err = uniformLocation(gl, program, UniformTexMatrix); err != nil {
		return Locations{}, err
	}
	if loc.Sampler, err = uniformLocation(gl, program, UniformTexture); err != nil {
		return Locations{}, err
	}
	return loc, nil
}

func attribLocation(gl ports.GL, program uint32, name string) (int32, error) {
	loc := gl.GetAttribLocation(program, name)
	if loc < 0 {
		return -1, &MissingLocationError{Name: name}
	}
	return loc, nil
}

func uniformLocation(gl ports.GL, program uint32, name string) (int32, error) {
	loc := gl.GetUniformLocation(program, name)
	if loc < 0 {
		return -1, &MissingLocationError{Name: name}
	}
	return loc, nil
}

// checkGLError turns a pending glGetError into a *GPUStateError.
func checkGLError(gl ports.GL, op string) error {
	if code := gl.GetError(); code != ports.GL_NO_ERROR {
		return &GPUStateError{Op: op, Code: code}
	}
	return nil
}
