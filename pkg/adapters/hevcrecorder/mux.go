package hevcrecorder

import (
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/glhdr/pkg/media"
)

const timescale = 90000

// ErrNoFrames is returned by Stop when nothing was encoded.
var ErrNoFrames = errors.New("hevcrecorder: no frames to mux")

// muxSample is one access unit ready for the mdat box.
type muxSample struct {
	data       []byte // length-prefixed NAL units
	decodeTime uint64
	dur        uint32
	sync       bool
}

// muxTrack is everything written to the output file.
type muxTrack struct {
	width, height int
	hdr           bool
	vps, sps, pps []byte
	samples       []muxSample
}

// buildTrack pairs encoded access units with the presentation timestamps
// of the frames that produced them. The encoder runs without B-frames, so
// output order is input order. Parameter sets move to the sample entry.
func buildTrack(units [][]byte, timestampsNs []int64, width, height, fps int, hdr bool) (*muxTrack, error) {
	n := min(len(units), len(timestampsNs))
	if n == 0 {
		return nil, ErrNoFrames
	}
	t := &muxTrack{width: width, height: height, hdr: hdr}
	frameDur := uint32(timescale / max(fps, 1))
	base := timestampsNs[0]

	for i := 0; i < n; i++ {
		vpss, spss, ppss := hevc.GetParameterSetsFromByteStream(units[i])
		t.vps = firstOf(t.vps, vpss)
		t.sps = firstOf(t.sps, spss)
		t.pps = firstOf(t.pps, ppss)
		data := media.AnnexBToLengthPrefixed(units[i], dropFromSample)

		dur := frameDur
		if i+1 < n {
			if d := nsToTicks(timestampsNs[i+1] - timestampsNs[i]); d > 0 {
				dur = uint32(d)
			}
		}
		t.samples = append(t.samples, muxSample{
			data:       data,
			decodeTime: uint64(max(nsToTicks(timestampsNs[i]-base), 0)),
			dur:        dur,
			sync:       hevc.IsRAPSample(data),
		})
	}
	if t.vps == nil || t.sps == nil || t.pps == nil {
		return nil, errors.New("hevcrecorder: stream has no parameter sets")
	}
	if !t.samples[0].sync {
		return nil, errors.New("hevcrecorder: stream does not start with a random access picture")
	}
	return t, nil
}

func firstOf(cur []byte, nalus [][]byte) []byte {
	if cur != nil || len(nalus) == 0 {
		return cur
	}
	return append([]byte(nil), nalus[0]...)
}

// dropFromSample leaves parameter sets to the sample entry and drops
// delimiters, which MP4 samples do not carry.
func dropFromSample(nalu []byte) bool {
	switch hevc.GetNaluType(nalu[0]) {
	case hevc.NALU_VPS, hevc.NALU_SPS, hevc.NALU_PPS, hevc.NALU_AUD:
		return true
	}
	return false
}

func nsToTicks(ns int64) int64 {
	return ns * timescale / 1_000_000_000
}

// writeMP4 writes ftyp, moov and a single fragment holding every sample.
func writeMP4(w io.Writer, t *muxTrack) error {
	hvcC, err := mp4.CreateHvcC([][]byte{t.vps}, [][]byte{t.sps}, [][]byte{t.pps}, true, true, true, true)
	if err != nil {
		return fmt.Errorf("create hvcC: %w", err)
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")
	trak := init.Moov.Trak
	hvc1 := mp4.CreateVisualSampleEntryBox("hvc1", uint16(t.width), uint16(t.height), hvcC)
	if t.hdr {
		hvc1.AddChild(&mp4.ColrBox{
			ColorType:               "nclx",
			ColorPrimaries:          media.PrimariesBT2020,
			TransferCharacteristics: media.TransferHLG,
			MatrixCoefficients:      media.MatrixBT2020NCL,
		})
	}
	trak.Mdia.Minf.Stbl.Stsd.AddChild(hvc1)
	trak.Tkhd.Width = mp4.Fixed32(t.width << 16)
	trak.Tkhd.Height = mp4.Fixed32(t.height << 16)

	frag, err := mp4.CreateFragment(1, trak.Tkhd.TrackID)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}
	for _, s := range t.samples {
		flags := mp4.NonSyncSampleFlags
		if s.sync {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Size:  uint32(len(s.data)),
				Dur:   s.dur,
			},
			DecodeTime: s.decodeTime,
			Data:       s.data,
		})
	}

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "hvc1", "mp41"})
	if err := ftyp.Encode(w); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(w); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}
	if err := frag.Encode(w); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	return nil
}
