package media

import (
	"fmt"
	"image"
)

// Picture is a decoded 4:2:0 planar frame with up to 16 bits per sample.
// Samples are stored unscaled, so a 10-bit picture holds values 0..1023.
type Picture struct {
	Width       int
	Height      int
	BitDepth    int
	Color       ColorInfo
	Y           []uint16
	Cb          []uint16
	Cr          []uint16
	Crop        image.Rectangle
	TimestampUs int64
}

// NewPicture allocates a picture with the given geometry.
func NewPicture(width, height, bitDepth int) *Picture {
	cw, ch := ChromaSize(width, height)
	return &Picture{
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
		Y:        make([]uint16, width*height),
		Cb:       make([]uint16, cw*ch),
		Cr:       make([]uint16, cw*ch),
		Crop:     image.Rect(0, 0, width, height),
	}
}

// ChromaSize returns the chroma plane dimensions for 4:2:0 subsampling.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// FrameSize10 returns the byte size of a yuv420p10le frame.
func FrameSize10(width, height int) int {
	cw, ch := ChromaSize(width, height)
	return (width*height + 2*cw*ch) * 2
}

// MaxValue returns the largest code value for the picture's bit depth.
func (p *Picture) MaxValue() float32 {
	return float32(int(1)<<p.BitDepth - 1)
}

// At returns normalized Y', Cb', Cr' at luma coordinates (x, y).
func (p *Picture) At(x, y int) (float32, float32, float32) {
	if x < 0 {
		x = 0
	} else if x >= p.Width {
		x = p.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.Height {
		y = p.Height - 1
	}
	cw, _ := ChromaSize(p.Width, p.Height)
	scale := p.MaxValue()
	ci := (y/2)*cw + x/2
	return float32(p.Y[y*p.Width+x]) / scale,
		float32(p.Cb[ci]) / scale,
		float32(p.Cr[ci]) / scale
}

// Fill sets every sample of the picture to the given code values.
func (p *Picture) Fill(y, cb, cr uint16) {
	for i := range p.Y {
		p.Y[i] = y
	}
	for i := range p.Cb {
		p.Cb[i] = cb
		p.Cr[i] = cr
	}
}

// ParseYUV420P10LE decodes a raw yuv420p10le frame into a picture.
func ParseYUV420P10LE(data []byte, width, height int) (*Picture, error) {
	if len(data) != FrameSize10(width, height) {
		return nil, fmt.Errorf("yuv420p10le frame: got %d bytes, want %d", len(data), FrameSize10(width, height))
	}
	p := NewPicture(width, height, 10)
	off := 0
	read := func(dst []uint16) {
		for i := range dst {
			dst[i] = uint16(data[off]) | uint16(data[off+1])<<8
			off += 2
		}
	}
	read(p.Y)
	read(p.Cb)
	read(p.Cr)
	return p, nil
}
