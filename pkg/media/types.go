// Package media defines the data model shared by the decode pump, the
// texture hand-off and the encoder sink.
package media

import (
	"strings"
	"time"
)

// MIME types for the codecs the extractor can identify.
const (
	MIMEVideoHEVC = "video/hevc"
	MIMEVideoAVC  = "video/avc"
	MIMEVideoAV1  = "video/av01"
	MIMEAudioAAC  = "audio/mp4a-latm"
)

// SampleFlags describe a coded sample or a decoded output buffer.
type SampleFlags uint32

const (
	// FlagSync marks a sample from which decoding can start.
	FlagSync SampleFlags = 1 << iota
	// FlagEndOfStream marks the last buffer of the stream.
	FlagEndOfStream
	// FlagCodecConfig marks a buffer that carries parameter sets only.
	FlagCodecConfig
)

// Has reports whether all bits of f are set.
func (s SampleFlags) Has(f SampleFlags) bool {
	return s&f == f
}

// ColorInfo carries ISO/IEC 23091-2 colour description code points.
type ColorInfo struct {
	Primaries uint16
	Transfer  uint16
	Matrix    uint16
	FullRange bool
}

// Code points used by this module.
const (
	PrimariesBT709  = 1
	PrimariesBT2020 = 9
	TransferBT709   = 1
	TransferPQ      = 16
	TransferHLG     = 18
	MatrixBT709     = 1
	MatrixBT2020NCL = 9
)

// IsHDR reports whether the transfer function is PQ or HLG.
func (c ColorInfo) IsHDR() bool {
	return c.Transfer == TransferHLG || c.Transfer == TransferPQ
}

// BT2020HLG is the colour description written for 10-bit HLG output.
var BT2020HLG = ColorInfo{
	Primaries: PrimariesBT2020,
	Transfer:  TransferHLG,
	Matrix:    MatrixBT2020NCL,
}

// Format describes an elementary stream or the decoder output.
type Format struct {
	MIME      string
	Width     int
	Height    int
	BitDepth  int
	Color     ColorInfo
	Timescale uint32
	Duration  time.Duration

	// CSD holds codec-specific data (VPS/SPS/PPS) in Annex B form.
	CSD []byte
}

// IsVideo reports whether the format is a video elementary stream.
func (f Format) IsVideo() bool {
	return strings.HasPrefix(f.MIME, "video/")
}

// Track identifies the active video stream selected from a container.
type Track struct {
	Index  int
	Format Format
}

// CodedSample is one compressed access unit read from the container.
type CodedSample struct {
	Data        []byte
	TimestampUs int64
	Flags       SampleFlags
}

// BufferInfo accompanies a decoder output buffer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              SampleFlags
}

// IsEndOfStream reports whether this is the final output buffer.
func (b BufferInfo) IsEndOfStream() bool {
	return b.Flags.Has(FlagEndOfStream)
}
