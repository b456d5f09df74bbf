package shader

import (
	"errors"
	"fmt"
)

var (
	// ErrShaderCompile is returned when a shader stage fails to compile.
	ErrShaderCompile = errors.New("shader: compile failed")

	// ErrProgramLink is returned when a program fails to link.
	ErrProgramLink = errors.New("shader: link failed")

	// ErrMissingLocation is returned when a required attribute or uniform
	// is not active in a linked program.
	ErrMissingLocation = errors.New("shader: location not found")

	// ErrGPUState is returned when glGetError reports an error after a call.
	ErrGPUState = errors.New("shader: GL error")
)

// Stage identifies a shader stage.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
)

func (s Stage) String() string {
	if s == StageFragment {
		return "fragment"
	}
	return "vertex"
}

// ShaderCompileError carries the info log of a failed compile.
type ShaderCompileError struct {
	Stage Stage
	Log   string
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("shader: could not compile %s shader: %s", e.Stage, e.Log)
}

func (e *ShaderCompileError) Unwrap() error { return ErrShaderCompile }

// ProgramLinkError carries the info log of a failed link.
type ProgramLinkError struct {
	Log string
}

func (e *ProgramLinkError) Error() string {
	return "shader: could not link program: " + e.Log
}

func (e *ProgramLinkError) Unwrap() error { return ErrProgramLink }

// MissingLocationError names the attribute or uniform that was not found.
type MissingLocationError struct {
	Name string
}

func (e *MissingLocationError) Error() string {
	return fmt.Sprintf("shader: unable to locate '%s' in program", e.Name)
}

func (e *MissingLocationError) Unwrap() error { return ErrMissingLocation }

// GPUStateError reports the GL call after which an error was pending.
type GPUStateError struct {
	Op   string
	Code uint32
}

func (e *GPUStateError) Error() string {
	return fmt.Sprintf("shader: %s: GL error 0x%x", e.Op, e.Code)
}

func (e *GPUStateError) Unwrap() error { return ErrGPUState }
