package softgl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/user/glhdr/pkg/colorspace"
	"github.com/user/glhdr/pkg/ports"
)

// Extensions the shader compiler accepts in #extension directives.
var supportedGLSLExtensions = map[string]bool{
	"GL_OES_EGL_image_external":       true,
	"GL_OES_EGL_image_external_essl3": true,
	"GL_EXT_YUV_target":               true,
}

const (
	samplerExternalOES = "samplerExternalOES"
	samplerYUV         = "__samplerExternal2DY2YEXT"
)

var (
	reVersion   = regexp.MustCompile(`^#version\s+(\d+)(\s+es)?\s*$`)
	reExtension = regexp.MustCompile(`^#extension\s+(\w+)\s*:\s*(\w+)\s*$`)
	reDecl      = regexp.MustCompile(`^(?:(?:lowp|mediump|highp)\s+)?(uniform|attribute|varying|in|out)\s+(?:(?:lowp|mediump|highp)\s+)?(\w+)\s+(\w+)\s*;`)
	reMain      = regexp.MustCompile(`void\s+main\s*\(\s*(void)?\s*\)`)

	rePosition = regexp.MustCompile(`gl_Position\s*=\s*(\w+)\s*;`)
	reTexCoord = regexp.MustCompile(`(\w+)\s*=\s*\(\s*(\w+)\s*\*\s*(\w+)\s*\)\s*\.xy\s*;`)
	reSample   = regexp.MustCompile(`\b(texture2D|texture)\s*\(\s*(\w+)\s*,\s*(\w+)\s*\)`)
	reOffset   = regexp.MustCompile(`vec3\s+\w+\s*=\s*vec3\s*\(([^)]*)\)`)
	reMat3     = regexp.MustCompile(`mat3\s+\w+\s*=\s*mat3\s*\(([^)]*)\)`)
)

type decl struct {
	qualifier string
	typ       string
	name      string
}

// fragKernel is the fragment computation a compiled shader was recognised as.
type fragKernel int

const (
	kernelNone fragKernel = iota
	// kernelRGB samples an external texture with driver colour conversion.
	kernelRGB
	// kernelYUVRaw outputs the raw Y'CbCr sample.
	kernelYUVRaw
	// kernelYUVTransform applies a constant offset and 3x3 matrix.
	kernelYUVTransform
)

// shaderInfo is the result of compiling one shader stage.
type shaderInfo struct {
	kind       uint32
	version    int
	extensions []string
	decls      []decl

	// vertex stage
	positionAttr string
	texCoordAttr string
	matrix       string
	varyingOut   string

	// fragment stage
	sampler   string
	varyingIn string
	kernel    fragKernel
	transform colorspace.Transform
}

func (s *shaderInfo) lookup(name string, qualifiers ...string) (decl, bool) {
	for _, d := range s.decls {
		if d.name != name {
			continue
		}
		for _, q := range qualifiers {
			if d.qualifier == q {
				return d, true
			}
		}
	}
	return decl{}, false
}

func (s *shaderInfo) inputs() []decl {
	var out []decl
	for _, d := range s.decls {
		if d.qualifier == "in" || d.qualifier == "attribute" {
			out = append(out, d)
		}
	}
	return out
}

func (s *shaderInfo) hasExtension(name string) bool {
	for _, e := range s.extensions {
		if e == name {
			return true
		}
	}
	return false
}

// compileGLSL checks a GLSL ES 1.00 or 3.00 source for the constructs this
// implementation can execute. It returns an info log on failure.
func compileGLSL(kind uint32, source string) (*shaderInfo, string) {
	info := &shaderInfo{kind: kind, version: 100}

	if strings.TrimSpace(source) == "" {
		return nil, "ERROR: 0:0: empty shader source"
	}

	depth, parens := 0, 0
	firstLine := true
	for n, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		lineNo := n + 1

		if strings.HasPrefix(line, "#version") {
			if !firstLine {
				return nil, fmt.Sprintf("ERROR: 0:%d: #version directive must occur before anything else", lineNo)
			}
			m := reVersion.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Sprintf("ERROR: 0:%d: malformed #version directive", lineNo)
			}
			v, _ := strconv.Atoi(m[1])
			if v != 100 && !(v == 300 && m[2] != "") {
				return nil, fmt.Sprintf("ERROR: 0:%d: version '%s' is not supported", lineNo, m[1])
			}
			info.version = v
			firstLine = false
			continue
		}
		firstLine = false

		if strings.HasPrefix(line, "#extension") {
			m := reExtension.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Sprintf("ERROR: 0:%d: malformed #extension directive", lineNo)
			}
			if !supportedGLSLExtensions[m[1]] {
				if m[2] == "require" {
					return nil, fmt.Sprintf("ERROR: 0:%d: extension '%s' is not supported", lineNo, m[1])
				}
				continue
			}
			info.extensions = append(info.extensions, m[1])
			continue
		}

		if depth == 0 {
			if m := reDecl.FindStringSubmatch(line); m != nil {
				d := decl{qualifier: m[1], typ: m[2], name: m[3]}
				if log := checkQualifier(info, d, lineNo); log != "" {
					return nil, log
				}
				info.decls = append(info.decls, d)
			}
		}

		for _, r := range line {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
			case '(':
				parens++
			case ')':
				parens--
			}
			if depth < 0 || parens < 0 {
				return nil, fmt.Sprintf("ERROR: 0:%d: syntax error, unexpected '%c'", lineNo, r)
			}
		}
	}
	if depth != 0 || parens != 0 {
		return nil, "ERROR: 0:0: syntax error, unexpected end of file"
	}
	if !reMain.MatchString(source) {
		return nil, "ERROR: 0:0: missing main function"
	}

	if kind == ports.GL_VERTEX_SHADER {
		return info, recogniseVertex(info, source)
	}
	return info, recogniseFragment(info, source)
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

func checkQualifier(info *shaderInfo, d decl, lineNo int) string {
	switch d.qualifier {
	case "in", "out":
		if info.version != 300 {
			return fmt.Sprintf("ERROR: 0:%d: '%s' : storage qualifier supported in GLSL ES 3.00 only", lineNo, d.qualifier)
		}
	case "attribute", "varying":
		if info.version == 300 {
			return fmt.Sprintf("ERROR: 0:%d: '%s' : storage qualifier not supported in GLSL ES 3.00", lineNo, d.qualifier)
		}
		if d.qualifier == "attribute" && info.kind == ports.GL_FRAGMENT_SHADER {
			return fmt.Sprintf("ERROR: 0:%d: 'attribute' : supported in vertex shaders only", lineNo)
		}
	}

	switch d.typ {
	case samplerExternalOES:
		if !info.hasExtension("GL_OES_EGL_image_external") && !info.hasExtension("GL_OES_EGL_image_external_essl3") {
			return fmt.Sprintf("ERROR: 0:%d: '%s' : requires extension GL_OES_EGL_image_external", lineNo, d.typ)
		}
	case samplerYUV:
		if !info.hasExtension("GL_EXT_YUV_target") || info.version != 300 {
			return fmt.Sprintf("ERROR: 0:%d: '%s' : requires extension GL_EXT_YUV_target in GLSL ES 3.00", lineNo, d.typ)
		}
	}
	return ""
}

func recogniseVertex(info *shaderInfo, source string) string {
	m := rePosition.FindStringSubmatch(source)
	if m == nil {
		return "ERROR: 0:0: gl_Position is never written"
	}
	info.positionAttr = m[1]

	if t := reTexCoord.FindStringSubmatch(source); t != nil {
		info.varyingOut = t[1]
		info.matrix = t[2]
		info.texCoordAttr = t[3]
	}
	return ""
}

func recogniseFragment(info *shaderInfo, source string) string {
	if info.version == 300 {
		if strings.Contains(source, "gl_FragColor") {
			return "ERROR: 0:0: 'gl_FragColor' : undeclared identifier"
		}
		outs := 0
		for _, d := range info.decls {
			if d.qualifier == "out" {
				outs++
			}
		}
		if outs == 0 {
			return "ERROR: 0:0: fragment shader has no output"
		}
	} else if !strings.Contains(source, "gl_FragColor") {
		return "ERROR: 0:0: gl_FragColor is never written"
	}

	m := reSample.FindStringSubmatch(source)
	if m == nil {
		return ""
	}
	info.sampler = m[2]
	info.varyingIn = m[3]

	d, ok := info.lookup(info.sampler, "uniform")
	if !ok {
		return fmt.Sprintf("ERROR: 0:0: '%s' : undeclared identifier", info.sampler)
	}
	switch d.typ {
	case samplerExternalOES:
		info.kernel = kernelRGB
	case samplerYUV:
		info.kernel = kernelYUVRaw
		if t, ok := parseTransform(source); ok {
			info.kernel = kernelYUVTransform
			info.transform = t
		}
	}
	return ""
}

// parseTransform extracts the constant offset and column-major matrix of a
// YUV to RGB conversion function.
func parseTransform(source string) (colorspace.Transform, bool) {
	om := reOffset.FindStringSubmatch(source)
	mm := reMat3.FindStringSubmatch(source)
	if om == nil || mm == nil || !strings.Contains(source, "clamp(") {
		return colorspace.Transform{}, false
	}
	offset, ok := parseFloats(om[1], 3)
	if !ok {
		return colorspace.Transform{}, false
	}
	matrix, ok := parseFloats(mm[1], 9)
	if !ok {
		return colorspace.Transform{}, false
	}

	t := colorspace.Transform{Name: "shader"}
	copy(t.Offset[:], offset)
	copy(t.Matrix[:], matrix)
	return t, true
}

func parseFloats(list string, want int) ([]float32, bool) {
	parts := strings.Split(list, ",")
	if len(parts) != want {
		return nil, false
	}
	out := make([]float32, 0, want)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimRight(p, "fF")
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, false
		}
		out = append(out, float32(v))
	}
	return out, true
}

// linkedProgram is the executable form of a linked vertex + fragment pair.
type linkedProgram struct {
	vertex   *shaderInfo
	fragment *shaderInfo
	attribs  map[string]int32
	uniforms map[string]int32
}

// linkGLSL checks interface matching between two compiled stages.
func linkGLSL(vs, fs *shaderInfo) (*linkedProgram, string) {
	if vs == nil || fs == nil {
		return nil, "ERROR: program requires a compiled vertex and fragment shader"
	}
	if vs.version != fs.version {
		return nil, fmt.Sprintf("ERROR: shader versions differ (%d and %d)", vs.version, fs.version)
	}

	inQual, outQual, attrQual := "varying", "varying", "attribute"
	if vs.version == 300 {
		inQual, outQual, attrQual = "in", "out", "in"
	}

	for _, in := range fs.decls {
		if in.qualifier != inQual {
			continue
		}
		out, ok := vs.lookup(in.name, outQual)
		if !ok {
			return nil, fmt.Sprintf("ERROR: fragment input '%s' is not written by the vertex shader", in.name)
		}
		if out.typ != in.typ {
			return nil, fmt.Sprintf("ERROR: type of '%s' differs between stages", in.name)
		}
	}

	if _, ok := vs.lookup(vs.positionAttr, attrQual); !ok {
		return nil, fmt.Sprintf("ERROR: unsupported vertex stage: '%s' is not an attribute", vs.positionAttr)
	}
	if vs.varyingOut == "" {
		return nil, "ERROR: unsupported vertex stage: no texture coordinate output"
	}
	if d, ok := vs.lookup(vs.matrix, "uniform"); !ok || d.typ != "mat4" {
		return nil, fmt.Sprintf("ERROR: unsupported vertex stage: '%s' is not a mat4 uniform", vs.matrix)
	}
	if _, ok := vs.lookup(vs.texCoordAttr, attrQual); !ok {
		return nil, fmt.Sprintf("ERROR: unsupported vertex stage: '%s' is not an attribute", vs.texCoordAttr)
	}
	if fs.kernel == kernelNone {
		return nil, "ERROR: unsupported fragment stage"
	}
	if fs.varyingIn != vs.varyingOut {
		return nil, fmt.Sprintf("ERROR: fragment samples at '%s' but the vertex stage writes '%s'", fs.varyingIn, vs.varyingOut)
	}

	lp := &linkedProgram{
		vertex:   vs,
		fragment: fs,
		attribs:  make(map[string]int32),
		uniforms: make(map[string]int32),
	}
	for i, d := range vs.inputs() {
		lp.attribs[d.name] = int32(i)
	}
	for _, st := range []*shaderInfo{vs, fs} {
		for _, d := range st.decls {
			if d.qualifier != "uniform" {
				continue
			}
			if _, ok := lp.uniforms[d.name]; !ok {
				lp.uniforms[d.name] = int32(len(lp.uniforms))
			}
		}
	}
	return lp, ""
}
