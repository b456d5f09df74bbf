package softgl

import (
	"image"
	"math"

	"github.com/user/glhdr/pkg/colorspace"
	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

// surface is a draw target. Row 0 of img is the top of the window, while
// GL window coordinates have their origin at the bottom left.
type surface struct {
	id         ports.EGLSurface
	config     ports.EGLConfig
	window     ports.NativeWindow
	width      int
	height     int
	colorSpace ports.ColorSpace
	img        *image.RGBA64
	presentNs  int64
	hasPresent bool
}

func newSurface(id ports.EGLSurface, cfg ports.EGLConfig, window ports.NativeWindow, w, h int, cs ports.ColorSpace) *surface {
	return &surface{
		id:         id,
		config:     cfg,
		window:     window,
		width:      w,
		height:     h,
		colorSpace: cs,
		img:        image.NewRGBA64(image.Rect(0, 0, w, h)),
	}
}

// store quantizes a channel to the surface bit depth and widens it to 16 bits.
func store(v float32, bits int32) uint16 {
	switch bits {
	case 0:
		return 0xffff
	case 2:
		return colorspace.Quantize(v, 2) * 0x5555
	case 8:
		return colorspace.Quantize(v, 8) * 0x0101
	case 10:
		q := colorspace.Quantize(v, 10)
		return q<<6 | q>>4
	default:
		return colorspace.Quantize(v, 16)
	}
}

// set writes a pixel at window coordinates (x, y).
func (s *surface) set(x, y int, r, g, b, a float32) {
	attrs := s.config.Attributes
	i := s.img.PixOffset(x, s.height-1-y)
	px := s.img.Pix[i : i+8 : i+8]
	put := func(o int, v uint16) {
		px[o] = uint8(v >> 8)
		px[o+1] = uint8(v)
	}
	put(0, store(r, attrs.RedSize))
	put(2, store(g, attrs.GreenSize))
	put(4, store(b, attrs.BlueSize))
	put(6, store(a, attrs.AlphaSize))
}

// fill clears the window-coordinate rectangle r.
func (s *surface) fill(c [4]float32, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			s.set(x, y, c[0], c[1], c[2], c[3])
		}
	}
}

func (s *surface) bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// scissorRect returns the writable area in window coordinates. Must hold c.mu.
func (c *Context) scissorRect() image.Rectangle {
	r := c.draw.bounds()
	if c.scissorTest {
		r = r.Intersect(image.Rect(int(c.scissor[0]), int(c.scissor[1]),
			int(c.scissor[0]+c.scissor[2]), int(c.scissor[1]+c.scissor[3])))
	}
	return r
}

type vertex struct {
	x, y float32 // window coordinates
	u, v float32 // texture coordinates after the vertex stage
}

// fetch reads generic attribute index for vertex i of the bound vertex
// array. Missing components take their defaults (0, 0, 0, 1).
func (c *Context) fetch(va *vertexArray, index int32, i int) [4]float32 {
	out := [4]float32{0, 0, 0, 1}
	if index < 0 || index >= maxVertexAttribs {
		return out
	}
	a := va.attribs[index]
	if !a.enabled || a.buffer == 0 {
		return out
	}
	data := c.buffers[a.buffer]
	stride := int(a.stride)
	if stride == 0 {
		stride = int(a.size) * 4
	}
	base := (a.offset + i*stride) / 4
	for k := 0; k < int(a.size); k++ {
		if base+k >= len(data) {
			return [4]float32{0, 0, 0, 1}
		}
		out[k] = data[base+k]
	}
	return out
}

func mulMat4(m [16]float32, v [4]float32) [4]float32 {
	var out [4]float32
	for row := 0; row < 4; row++ {
		out[row] = m[row]*v[0] + m[4+row]*v[1] + m[8+row]*v[2] + m[12+row]*v[3]
	}
	return out
}

// rasterize runs the linked program over count vertices. Must hold c.mu.
func (c *Context) rasterize(p *programObject, mode uint32, first, count int) {
	lp := p.linked
	va := c.vaos[c.vao]
	posLoc := lp.attribs[lp.vertex.positionAttr]
	texLoc := lp.attribs[lp.vertex.texCoordAttr]
	matrix := p.matrices[lp.uniforms[lp.vertex.matrix]]

	vx, vy := float32(c.viewport[0]), float32(c.viewport[1])
	vw, vh := float32(c.viewport[2]), float32(c.viewport[3])

	verts := make([]vertex, 0, count)
	for i := first; i < first+count; i++ {
		pos := c.fetch(va, posLoc, i)
		w := pos[3]
		if w == 0 {
			w = 1
		}
		tc := mulMat4(matrix, c.fetch(va, texLoc, i))
		verts = append(verts, vertex{
			x: (pos[0]/w+1)/2*vw + vx,
			y: (pos[1]/w+1)/2*vh + vy,
			u: tc[0],
			v: tc[1],
		})
	}

	unit := p.sampler[lp.uniforms[lp.fragment.sampler]]
	tex := c.textures[c.units[unit].external]
	shade := fragmentStage(lp.fragment, tex, int(c.viewport[2]), int(c.viewport[3]))

	clip := c.scissorRect().Intersect(image.Rect(int(c.viewport[0]), int(c.viewport[1]),
		int(c.viewport[0]+c.viewport[2]), int(c.viewport[1]+c.viewport[3])))

	switch mode {
	case ports.GL_TRIANGLE_STRIP:
		for i := 0; i+2 < len(verts); i++ {
			c.triangle(verts[i], verts[i+1], verts[i+2], clip, shade)
		}
	case ports.GL_TRIANGLES:
		for i := 0; i+2 < len(verts); i += 3 {
			c.triangle(verts[i], verts[i+1], verts[i+2], clip, shade)
		}
	}
}

func edge(a, b vertex, x, y float32) float32 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

// triangle fills the pixels whose centres lie inside a, b, c.
func (c *Context) triangle(a, b, v vertex, clip image.Rectangle, shade func(u, v float32) [3]float32) {
	area := edge(a, b, v.x, v.y)
	if area == 0 {
		return
	}
	minX := int(math.Floor(float64(min(a.x, b.x, v.x))))
	maxX := int(math.Ceil(float64(max(a.x, b.x, v.x))))
	minY := int(math.Floor(float64(min(a.y, b.y, v.y))))
	maxY := int(math.Ceil(float64(max(a.y, b.y, v.y))))
	box := image.Rect(minX, minY, maxX, maxY).Intersect(clip)

	const eps = -1e-4
	for y := box.Min.Y; y < box.Max.Y; y++ {
		py := float32(y) + 0.5
		for x := box.Min.X; x < box.Max.X; x++ {
			px := float32(x) + 0.5
			w0 := edge(b, v, px, py) / area
			w1 := edge(v, a, px, py) / area
			w2 := edge(a, b, px, py) / area
			if w0 < eps || w1 < eps || w2 < eps {
				continue
			}
			u := w0*a.u + w1*b.u + w2*v.u
			t := w0*a.v + w1*b.v + w2*v.v
			rgb := shade(u, t)
			c.draw.set(x, y, rgb[0], rgb[1], rgb[2], 1)
		}
	}
}

// fragmentStage returns the per-fragment function of a compiled fragment
// shader sampling tex.
func fragmentStage(fs *shaderInfo, tex *textureObject, viewW, viewH int) func(u, v float32) [3]float32 {
	if tex == nil || tex.image == nil {
		return func(u, v float32) [3]float32 { return [3]float32{} }
	}
	pic := tex.image
	filter := tex.magFilter
	if pic.Width > viewW && pic.Height > viewH {
		filter = tex.minFilter
	}
	linear := filter == ports.GL_LINEAR

	var convert func(y, cb, cr float32) (float32, float32, float32)
	switch fs.kernel {
	case kernelRGB:
		convert = colorspace.ForColor(pic.Color).Apply
	case kernelYUVTransform:
		convert = fs.transform.Apply
	default:
		convert = func(y, cb, cr float32) (float32, float32, float32) { return y, cb, cr }
	}

	return func(u, v float32) [3]float32 {
		y, cb, cr := samplePicture(pic, u, v, linear)
		r, g, b := convert(y, cb, cr)
		return [3]float32{r, g, b}
	}
}

// samplePicture samples normalized Y'CbCr at texture coordinates (u, v)
// with clamp-to-edge wrapping. t = 0 addresses the first row.
func samplePicture(pic *media.Picture, u, v float32, linear bool) (float32, float32, float32) {
	x := clampUnit(u) * float32(pic.Width)
	y := clampUnit(v) * float32(pic.Height)
	if !linear {
		return pic.At(int(x), int(y))
	}

	x -= 0.5
	y -= 0.5
	x0 := float32(math.Floor(float64(x)))
	y0 := float32(math.Floor(float64(y)))
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)

	var out [3]float32
	taps := [4]struct {
		dx, dy int
		w      float32
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	}
	for _, t := range taps {
		if t.w == 0 {
			continue
		}
		a, b, c := pic.At(ix+t.dx, iy+t.dy)
		out[0] += a * t.w
		out[1] += b * t.w
		out[2] += c * t.w
	}
	return out[0], out[1], out[2]
}

func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
