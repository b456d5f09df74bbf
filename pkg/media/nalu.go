package media

import (
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
)

// ErrTruncatedNALU is returned when a length-prefixed sample ends inside a
// NAL unit.
var ErrTruncatedNALU = errors.New("media: truncated NAL unit")

var startCode = []byte{0, 0, 0, 1}

// AnnexB joins NAL units with four byte start codes.
func AnnexB(nalus ...[]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += len(startCode) + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, startCode...)
		out = append(out, n...)
	}
	return out
}

// LengthPrefixedToAnnexB rewrites a sample of 4-byte length-prefixed NAL
// units, as stored in MP4 files, into Annex B form. The sample is not
// modified.
func LengthPrefixedToAnnexB(sample []byte) ([]byte, error) {
	if len(sample) == 0 {
		return nil, nil
	}
	nalus, err := avc.GetNalusFromSample(sample)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedNALU, err)
	}
	return AnnexB(nalus...), nil
}

// AnnexBToLengthPrefixed rewrites an Annex B access unit into 4-byte
// length-prefixed NAL units. Units for which drop returns true are left out.
// data is not modified.
func AnnexBToLengthPrefixed(data []byte, drop func(nalu []byte) bool) []byte {
	var kept [][]byte
	for _, n := range avc.ExtractNalusFromByteStream(data) {
		if len(n) == 0 || (drop != nil && drop(n)) {
			continue
		}
		kept = append(kept, n)
	}
	if len(kept) == 0 {
		return nil
	}
	// AnnexB allocates, and four byte start codes convert in place.
	return avc.ConvertByteStreamToNaluSample(AnnexB(kept...))
}

// SplitAccessUnits splits an HEVC Annex B elementary stream into access
// units at access unit delimiters. Bytes before the first delimiter form
// their own unit.
func SplitAccessUnits(stream []byte) [][]byte {
	var units [][]byte
	var cur [][]byte
	for _, n := range avc.ExtractNalusFromByteStream(stream) {
		if len(n) > 0 && hevc.GetNaluType(n[0]) == hevc.NALU_AUD && len(cur) > 0 {
			units = append(units, AnnexB(cur...))
			cur = nil
		}
		cur = append(cur, n)
	}
	if len(cur) > 0 {
		units = append(units, AnnexB(cur...))
	}
	return units
}
