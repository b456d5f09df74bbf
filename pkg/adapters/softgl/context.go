package softgl

import (
	"sync"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

const (
	maxVertexAttribs = 16
	maxTextureUnits  = 8
)

type shaderObject struct {
	kind     uint32
	source   string
	compiled bool
	info     *shaderInfo
	log      string
}

type programObject struct {
	attached []uint32
	linked   *linkedProgram
	log      string
	sampler  map[int32]int32
	matrices map[int32][16]float32
}

type textureObject struct {
	target    uint32
	minFilter int32
	magFilter int32
	wrapS     int32
	wrapT     int32
	image     *media.Picture
}

type vertexAttrib struct {
	enabled bool
	buffer  uint32
	size    int32
	stride  int32
	offset  int
}

type vertexArray struct {
	attribs [maxVertexAttribs]vertexAttrib
}

type textureUnit struct {
	external uint32
	tex2D    uint32
}

// Context is a GLES 3.0 rendering context. It implements ports.GL.
type Context struct {
	mu sync.Mutex

	id      ports.EGLContext
	version int
	err     uint32
	next    uint32

	shaders  map[uint32]*shaderObject
	programs map[uint32]*programObject
	textures map[uint32]*textureObject
	buffers  map[uint32][]float32
	vaos     map[uint32]*vertexArray

	program     uint32
	activeUnit  int
	units       [maxTextureUnits]textureUnit
	arrayBuffer uint32
	vao         uint32

	viewport    [4]int32
	scissor     [4]int32
	scissorTest bool
	clearColor  [4]float32

	draw      *surface
	injected  map[string]uint32
	drawCalls int
}

func newContext(id ports.EGLContext, version int) *Context {
	return &Context{
		id:       id,
		version:  version,
		shaders:  make(map[uint32]*shaderObject),
		programs: make(map[uint32]*programObject),
		textures: make(map[uint32]*textureObject),
		buffers:  make(map[uint32][]float32),
		vaos:     map[uint32]*vertexArray{0: {}},
		injected: make(map[string]uint32),
	}
}

// InjectError makes the next call of the named GL function fail with code
// instead of executing. Names are the GL function names without the "gl"
// prefix, such as "DrawArrays".
func (c *Context) InjectError(op string, code uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injected[op] = code
}

// LiveObjects returns the number of shaders, programs, textures, buffers
// and vertex arrays not yet deleted.
func (c *Context) LiveObjects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.shaders) + len(c.programs) + len(c.textures) + len(c.buffers) + len(c.vaos) - 1
}

// DrawCalls returns the number of DrawArrays calls that reached the
// rasterizer.
func (c *Context) DrawCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawCalls
}

// failed consumes an injected error for op. Must hold c.mu.
func (c *Context) failed(op string) bool {
	code, ok := c.injected[op]
	if !ok {
		return false
	}
	delete(c.injected, op)
	c.setError(code)
	return true
}

// setError records the first error since the last GetError. Must hold c.mu.
func (c *Context) setError(code uint32) {
	if c.err == ports.GL_NO_ERROR {
		c.err = code
	}
}

func (c *Context) genName() uint32 {
	c.next++
	return c.next
}

// GetError returns and clears the recorded error.
func (c *Context) GetError() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := c.err
	c.err = ports.GL_NO_ERROR
	return code
}

// Shaders

func (c *Context) CreateShader(kind uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("CreateShader") {
		return 0
	}
	if kind != ports.GL_VERTEX_SHADER && kind != ports.GL_FRAGMENT_SHADER {
		c.setError(ports.GL_INVALID_ENUM)
		return 0
	}
	name := c.genName()
	c.shaders[name] = &shaderObject{kind: kind}
	return name
}

func (c *Context) ShaderSource(shader uint32, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sh, ok := c.shaders[shader]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	sh.source = source
}

func (c *Context) CompileShader(shader uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sh, ok := c.shaders[shader]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	info, log := compileGLSL(sh.kind, sh.source)
	sh.log = log
	sh.compiled = log == ""
	sh.info = nil
	if sh.compiled {
		sh.info = info
	}
}

func (c *Context) GetShaderiv(shader uint32, pname uint32) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	sh, ok := c.shaders[shader]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return 0
	}
	switch pname {
	case ports.GL_COMPILE_STATUS:
		if sh.compiled {
			return ports.GL_TRUE
		}
		return ports.GL_FALSE
	case ports.GL_INFO_LOG_LENGTH:
		if sh.log == "" {
			return 0
		}
		return int32(len(sh.log) + 1)
	}
	c.setError(ports.GL_INVALID_ENUM)
	return 0
}

func (c *Context) GetShaderInfoLog(shader uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sh, ok := c.shaders[shader]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return ""
	}
	return sh.log
}

func (c *Context) DeleteShader(shader uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if shader == 0 {
		return
	}
	if _, ok := c.shaders[shader]; !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	delete(c.shaders, shader)
}

// Programs

func (c *Context) CreateProgram() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("CreateProgram") {
		return 0
	}
	name := c.genName()
	c.programs[name] = &programObject{
		sampler:  make(map[int32]int32),
		matrices: make(map[int32][16]float32),
	}
	return name
}

func (c *Context) AttachShader(program, shader uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("AttachShader") {
		return
	}
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	sh, ok := c.shaders[shader]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	for _, a := range p.attached {
		if a == shader || c.shaders[a] != nil && c.shaders[a].kind == sh.kind {
			c.setError(ports.GL_INVALID_OPERATION)
			return
		}
	}
	p.attached = append(p.attached, shader)
}

func (c *Context) LinkProgram(program uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	var vs, fs *shaderInfo
	for _, name := range p.attached {
		sh := c.shaders[name]
		if sh == nil || !sh.compiled {
			continue
		}
		if sh.kind == ports.GL_VERTEX_SHADER {
			vs = sh.info
		} else {
			fs = sh.info
		}
	}
	p.linked, p.log = linkGLSL(vs, fs)
	p.sampler = make(map[int32]int32)
	p.matrices = make(map[int32][16]float32)
}

func (c *Context) GetProgramiv(program uint32, pname uint32) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return 0
	}
	switch pname {
	case ports.GL_LINK_STATUS:
		if p.linked != nil {
			return ports.GL_TRUE
		}
		return ports.GL_FALSE
	case ports.GL_ATTACHED_SHADERS:
		return int32(len(p.attached))
	case ports.GL_INFO_LOG_LENGTH:
		if p.log == "" {
			return 0
		}
		return int32(len(p.log) + 1)
	}
	c.setError(ports.GL_INVALID_ENUM)
	return 0
}

func (c *Context) GetProgramInfoLog(program uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return ""
	}
	return p.log
}

func (c *Context) DeleteProgram(program uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if program == 0 {
		return
	}
	if _, ok := c.programs[program]; !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	delete(c.programs, program)
	if c.program == program {
		c.program = 0
	}
}

func (c *Context) UseProgram(program uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("UseProgram") {
		return
	}
	if program == 0 {
		c.program = 0
		return
	}
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	if p.linked == nil {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}
	c.program = program
}

func (c *Context) GetAttribLocation(program uint32, name string) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return -1
	}
	if p.linked == nil {
		c.setError(ports.GL_INVALID_OPERATION)
		return -1
	}
	if loc, ok := p.linked.attribs[name]; ok {
		return loc
	}
	return -1
}

func (c *Context) GetUniformLocation(program uint32, name string) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.programs[program]
	if !ok {
		c.setError(ports.GL_INVALID_VALUE)
		return -1
	}
	if p.linked == nil {
		c.setError(ports.GL_INVALID_OPERATION)
		return -1
	}
	if loc, ok := p.linked.uniforms[name]; ok {
		return loc
	}
	return -1
}

// currentUniform validates loc against the program in use. Must hold c.mu.
func (c *Context) currentUniform(loc int32) (*programObject, bool) {
	p := c.programs[c.program]
	if p == nil {
		c.setError(ports.GL_INVALID_OPERATION)
		return nil, false
	}
	if loc == -1 {
		return nil, false
	}
	if loc < 0 || int(loc) >= len(p.linked.uniforms) {
		c.setError(ports.GL_INVALID_OPERATION)
		return nil, false
	}
	return p, true
}

func (c *Context) Uniform1i(location int32, v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("Uniform1i") {
		return
	}
	p, ok := c.currentUniform(location)
	if !ok {
		return
	}
	if v < 0 || v >= maxTextureUnits {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	p.sampler[location] = v
}

func (c *Context) UniformMatrix4fv(location int32, transpose bool, m []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("UniformMatrix4fv") {
		return
	}
	p, ok := c.currentUniform(location)
	if !ok {
		return
	}
	if len(m) != 16 || (transpose && c.version < 3) {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	var mat [16]float32
	if transpose {
		for col := 0; col < 4; col++ {
			for row := 0; row < 4; row++ {
				mat[col*4+row] = m[row*4+col]
			}
		}
	} else {
		copy(mat[:], m)
	}
	p.matrices[location] = mat
}

// Textures

func (c *Context) GenTextures(n int) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]uint32, n)
	if c.failed("GenTextures") {
		return names
	}
	for i := range names {
		names[i] = c.genName()
		c.textures[names[i]] = &textureObject{
			minFilter: ports.GL_LINEAR,
			magFilter: ports.GL_LINEAR,
			wrapS:     ports.GL_CLAMP_TO_EDGE,
			wrapT:     ports.GL_CLAMP_TO_EDGE,
		}
	}
	return names
}

func (c *Context) DeleteTextures(textures ...uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range textures {
		delete(c.textures, t)
		for i := range c.units {
			if c.units[i].external == t {
				c.units[i].external = 0
			}
			if c.units[i].tex2D == t {
				c.units[i].tex2D = 0
			}
		}
	}
}

func (c *Context) BindTexture(target, texture uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("BindTexture") {
		return
	}
	if target != ports.GL_TEXTURE_EXTERNAL_OES && target != ports.GL_TEXTURE_2D {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	if texture != 0 {
		t, ok := c.textures[texture]
		if !ok {
			c.setError(ports.GL_INVALID_OPERATION)
			return
		}
		if t.target != 0 && t.target != target {
			c.setError(ports.GL_INVALID_OPERATION)
			return
		}
		t.target = target
	}
	if target == ports.GL_TEXTURE_EXTERNAL_OES {
		c.units[c.activeUnit].external = texture
	} else {
		c.units[c.activeUnit].tex2D = texture
	}
}

func (c *Context) ActiveTexture(unit uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if unit < ports.GL_TEXTURE0 || unit >= ports.GL_TEXTURE0+maxTextureUnits {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	c.activeUnit = int(unit - ports.GL_TEXTURE0)
}

func (c *Context) TexParameteri(target, pname uint32, param int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("TexParameteri") {
		return
	}
	var name uint32
	switch target {
	case ports.GL_TEXTURE_EXTERNAL_OES:
		name = c.units[c.activeUnit].external
	case ports.GL_TEXTURE_2D:
		name = c.units[c.activeUnit].tex2D
	default:
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	t := c.textures[name]
	if t == nil {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}

	filter := param == ports.GL_NEAREST || param == ports.GL_LINEAR
	switch pname {
	case ports.GL_TEXTURE_MIN_FILTER:
		if !filter {
			c.setError(ports.GL_INVALID_ENUM)
			return
		}
		t.minFilter = param
	case ports.GL_TEXTURE_MAG_FILTER:
		if !filter {
			c.setError(ports.GL_INVALID_ENUM)
			return
		}
		t.magFilter = param
	case ports.GL_TEXTURE_WRAP_S, ports.GL_TEXTURE_WRAP_T:
		// External textures only support clamp-to-edge.
		if param != ports.GL_CLAMP_TO_EDGE {
			c.setError(ports.GL_INVALID_ENUM)
			return
		}
		if pname == ports.GL_TEXTURE_WRAP_S {
			t.wrapS = param
		} else {
			t.wrapT = param
		}
	default:
		c.setError(ports.GL_INVALID_ENUM)
	}
}

// setExternalImage latches pic into an external texture.
func (c *Context) setExternalImage(texture uint32, pic *media.Picture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[texture]
	if !ok {
		return ErrBadTexture
	}
	if t.target != 0 && t.target != ports.GL_TEXTURE_EXTERNAL_OES {
		return ErrBadTexture
	}
	t.target = ports.GL_TEXTURE_EXTERNAL_OES
	t.image = pic
	return nil
}

// hasTexture reports whether texture names a live texture object.
func (c *Context) hasTexture(texture uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.textures[texture]
	return ok
}

// Vertex state

func (c *Context) GenVertexArrays(n int) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]uint32, n)
	if c.failed("GenVertexArrays") {
		return names
	}
	if c.version < 3 {
		c.setError(ports.GL_INVALID_OPERATION)
		return names
	}
	for i := range names {
		names[i] = c.genName()
		c.vaos[names[i]] = &vertexArray{}
	}
	return names
}

func (c *Context) DeleteVertexArrays(arrays ...uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range arrays {
		if a == 0 {
			continue
		}
		delete(c.vaos, a)
		if c.vao == a {
			c.vao = 0
		}
	}
}

func (c *Context) BindVertexArray(array uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("BindVertexArray") {
		return
	}
	if _, ok := c.vaos[array]; !ok {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}
	c.vao = array
}

func (c *Context) GenBuffers(n int) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]uint32, n)
	if c.failed("GenBuffers") {
		return names
	}
	for i := range names {
		names[i] = c.genName()
		c.buffers[names[i]] = nil
	}
	return names
}

func (c *Context) DeleteBuffers(buffers ...uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range buffers {
		delete(c.buffers, b)
		if c.arrayBuffer == b {
			c.arrayBuffer = 0
		}
	}
}

func (c *Context) BindBuffer(target, buffer uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("BindBuffer") {
		return
	}
	if target != ports.GL_ARRAY_BUFFER {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	if _, ok := c.buffers[buffer]; !ok && buffer != 0 {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}
	c.arrayBuffer = buffer
}

func (c *Context) BufferData(target uint32, data []float32, usage uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("BufferData") {
		return
	}
	if target != ports.GL_ARRAY_BUFFER {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	if c.arrayBuffer == 0 {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}
	c.buffers[c.arrayBuffer] = append([]float32(nil), data...)
}

func (c *Context) EnableVertexAttribArray(index uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("EnableVertexAttribArray") {
		return
	}
	if index >= maxVertexAttribs {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	c.vaos[c.vao].attribs[index].enabled = true
}

func (c *Context) VertexAttribPointer(index uint32, size int32, kind uint32, normalized bool, stride int32, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("VertexAttribPointer") {
		return
	}
	if index >= maxVertexAttribs || size < 1 || size > 4 || stride < 0 {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	if kind != ports.GL_FLOAT {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	if c.arrayBuffer == 0 && c.vao != 0 {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}
	a := &c.vaos[c.vao].attribs[index]
	a.buffer = c.arrayBuffer
	a.size = size
	a.stride = stride
	a.offset = offset
}

// Framebuffer state

func (c *Context) Viewport(x, y, width, height int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("Viewport") {
		return
	}
	if width < 0 || height < 0 {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	c.viewport = [4]int32{x, y, width, height}
}

func (c *Context) Scissor(x, y, width, height int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("Scissor") {
		return
	}
	if width < 0 || height < 0 {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	c.scissor = [4]int32{x, y, width, height}
}

func (c *Context) Enable(capability uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if capability != ports.GL_SCISSOR_TEST {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	c.scissorTest = true
}

func (c *Context) ClearColor(r, g, b, a float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearColor = [4]float32{r, g, b, a}
}

func (c *Context) Clear(mask uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mask&^ports.GL_COLOR_BUFFER_BIT != 0 {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	if c.draw == nil {
		return
	}
	c.draw.fill(c.clearColor, c.scissorRect())
}

func (c *Context) DrawArrays(mode uint32, first, count int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed("DrawArrays") {
		return
	}
	if mode != ports.GL_TRIANGLE_STRIP && mode != ports.GL_TRIANGLES {
		c.setError(ports.GL_INVALID_ENUM)
		return
	}
	if first < 0 || count < 0 {
		c.setError(ports.GL_INVALID_VALUE)
		return
	}
	p := c.programs[c.program]
	if p == nil {
		c.setError(ports.GL_INVALID_OPERATION)
		return
	}
	c.drawCalls++
	if c.draw == nil {
		return
	}
	c.rasterize(p, mode, int(first), int(count))
}

// bind attaches the context to a draw surface. A nil surface detaches it.
func (c *Context) bind(s *surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draw = s
	if s != nil && c.viewport == [4]int32{} {
		c.viewport = [4]int32{0, 0, int32(s.width), int32(s.height)}
		c.scissor = c.viewport
	}
}

var _ ports.GL = (*Context)(nil)
