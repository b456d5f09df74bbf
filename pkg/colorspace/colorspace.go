// Package colorspace holds the limited-range Y'CbCr to R'G'B' transforms
// applied by the shader pipeline, as CPU reference implementations.
package colorspace

import (
	"github.com/user/glhdr/pkg/media"
)

// Transform converts normalized limited-range Y'CbCr to R'G'B'.
// Matrix is column-major, as uploaded to a GLSL mat3.
type Transform struct {
	Name   string
	Offset [3]float32
	Matrix [9]float32
}

// BT2020 is the transform used by the 10-bit fragment shader. The
// coefficients are the BT.2020 non-constant luminance matrix scaled for
// 10-bit limited range.
var BT2020 = Transform{
	Name:   "bt2020",
	Offset: [3]float32{0.0625, 0.5, 0.5},
	Matrix: [9]float32{
		1.1689, 1.1689, 1.1689,
		0.0000, -0.1881, 2.1502,
		1.6853, -0.6530, 0.0000,
	},
}

// BT709 is the limited-range BT.709 transform drivers apply when an
// external texture is sampled as RGB.
var BT709 = Transform{
	Name:   "bt709",
	Offset: [3]float32{0.0625, 0.5, 0.5},
	Matrix: [9]float32{
		1.1644, 1.1644, 1.1644,
		0.0000, -0.2132, 2.1124,
		1.7927, -0.5329, 0.0000,
	},
}

// ForColor selects the transform matching the matrix coefficients of a
// stream. Unknown coefficients fall back to BT.709.
func ForColor(c media.ColorInfo) Transform {
	if c.Matrix == media.MatrixBT2020NCL || c.Primaries == media.PrimariesBT2020 {
		return BT2020
	}
	return BT709
}

// Apply converts one sample and clamps the result to [0, 1].
func (t Transform) Apply(y, cb, cr float32) (r, g, b float32) {
	v := [3]float32{y - t.Offset[0], cb - t.Offset[1], cr - t.Offset[2]}
	m := t.Matrix
	r = m[0]*v[0] + m[3]*v[1] + m[6]*v[2]
	g = m[1]*v[0] + m[4]*v[1] + m[7]*v[2]
	b = m[2]*v[0] + m[5]*v[1] + m[8]*v[2]
	return clamp01(r), clamp01(g), clamp01(b)
}

// YUVToRGB applies the BT.2020 transform.
func YUVToRGB(y, cb, cr float32) (r, g, b float32) {
	return BT2020.Apply(y, cb, cr)
}

// Quantize rounds a normalized value to an unsigned integer of the given
// bit depth.
func Quantize(v float32, bits int) uint16 {
	maxv := float32(int(1)<<bits - 1)
	q := clamp01(v)*maxv + 0.5
	return uint16(q)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
