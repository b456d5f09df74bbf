package mp4extractor

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/glhdr/pkg/media"
)

// ErrNoMovie is returned for files without a moov box.
var ErrNoMovie = errors.New("mp4extractor: no moov box found")

// sample locates one coded sample. Progressive files are read lazily from
// the source; fragmented samples are kept in memory by mp4ff.
type sample struct {
	offset int64
	size   uint32
	data   []byte
	ptsUs  int64
	durUs  int64
	sync   bool
}

// track is one demuxed track with its samples in decode order.
type track struct {
	id      uint32
	format  media.Format
	csd     []byte
	nalus   bool // samples hold length-prefixed NAL units
	shiftUs int64
	samples []sample
}

// buildIndex lists every track and sample of a decoded file.
func buildIndex(f *mp4.File) ([]*track, error) {
	if f.IsFragmented() {
		return indexFragmented(f)
	}
	return indexProgressive(f)
}

func indexProgressive(f *mp4.File) ([]*track, error) {
	if f.Moov == nil {
		return nil, ErrNoMovie
	}
	var tracks []*track
	for _, trak := range f.Moov.Traks {
		t, ok := newTrack(trak, movieTimescale(f.Moov))
		if !ok {
			continue
		}
		stbl := trak.Mdia.Minf.Stbl
		samples, err := progressiveSamples(stbl, t.format.Timescale, t.shiftUs)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", t.id, err)
		}
		t.samples = samples
		t.format.Duration = trackDuration(samples)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func progressiveSamples(stbl *mp4.StblBox, timescale uint32, shiftUs int64) ([]sample, error) {
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return nil, errors.New("missing stsz or stsc box")
	}
	count := stbl.Stsz.SampleNumber
	syncs := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncs[nr] = true
		}
	}

	samples := make([]sample, 0, count)
	var chunkNr int
	var next int64
	for nr := uint32(1); nr <= count; nr++ {
		cnr, first, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", nr, err)
		}
		if cnr != chunkNr || int(nr) == first {
			off, err := chunkOffset(stbl, cnr)
			if err != nil {
				return nil, fmt.Errorf("sample %d: %w", nr, err)
			}
			chunkNr = cnr
			next = int64(off)
		}
		size := stbl.Stsz.GetSampleSize(int(nr))

		var dts uint64
		var dur uint32
		if stbl.Stts != nil {
			dts, dur = stbl.Stts.GetDecodeTime(nr)
		}
		pts := int64(dts)
		if stbl.Ctts != nil {
			pts += int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}
		samples = append(samples, sample{
			offset: next,
			size:   size,
			ptsUs:  toMicros(pts, timescale) - shiftUs,
			durUs:  toMicros(int64(dur), timescale),
			sync:   stbl.Stss == nil || syncs[nr],
		})
		next += int64(size)
	}
	return samples, nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	switch {
	case stbl.Stco != nil:
		return stbl.Stco.GetOffset(chunkNr)
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk %d out of range", chunkNr)
		}
		return stbl.Co64.ChunkOffset[chunkNr-1], nil
	}
	return 0, errors.New("no stco or co64 box")
}

func indexFragmented(f *mp4.File) ([]*track, error) {
	if f.Init == nil || f.Init.Moov == nil {
		return nil, ErrNoMovie
	}
	moov := f.Init.Moov
	byID := make(map[uint32]*track)
	trexs := make(map[uint32]*mp4.TrexBox)
	var tracks []*track
	for _, trak := range moov.Traks {
		t, ok := newTrack(trak, movieTimescale(moov))
		if !ok {
			continue
		}
		byID[t.id] = t
		tracks = append(tracks, t)
	}
	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			trexs[trex.TrackID] = trex
		}
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				t := byID[traf.Tfhd.TrackID]
				if t == nil {
					continue
				}
				full, err := frag.GetFullSamples(trexs[t.id])
				if err != nil {
					return nil, fmt.Errorf("track %d: get samples: %w", t.id, err)
				}
				for i := range full {
					fs := &full[i]
					pts := int64(fs.DecodeTime) + int64(fs.CompositionTimeOffset)
					t.samples = append(t.samples, sample{
						size:  uint32(len(fs.Data)),
						data:  fs.Data,
						ptsUs: toMicros(pts, t.format.Timescale) - t.shiftUs,
						durUs: toMicros(int64(fs.Dur), t.format.Timescale),
						sync:  fs.IsSync(),
					})
				}
			}
		}
	}
	for _, t := range tracks {
		t.format.Duration = trackDuration(t.samples)
	}
	return tracks, nil
}

// newTrack reads the format and edit shift of a video or audio track.
// Other handler types are skipped.
func newTrack(trak *mp4.TrakBox, movieTimescale uint32) (*track, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Minf == nil ||
		trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return nil, false
	}
	t := &track{id: trak.Tkhd.TrackID}
	if trak.Mdia.Mdhd != nil {
		t.format.Timescale = trak.Mdia.Mdhd.Timescale
	}
	if t.format.Timescale == 0 {
		t.format.Timescale = 1000
	}
	t.shiftUs = editShift(trak.Edts, movieTimescale, t.format.Timescale)

	switch trak.Mdia.Hdlr.HandlerType {
	case "vide":
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				describeVideo(t, vse)
				return t, true
			}
		}
	case "soun":
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			if ase, ok := child.(*mp4.AudioSampleEntryBox); ok {
				t.format.MIME = audioMIME(ase.Type())
				return t, true
			}
		}
	}
	return nil, false
}

func describeVideo(t *track, vse *mp4.VisualSampleEntryBox) {
	t.format.MIME = videoMIME(vse.Type())
	t.format.Width = int(vse.Width)
	t.format.Height = int(vse.Height)
	t.format.BitDepth = 8

	switch {
	case vse.HvcC != nil:
		var nalus [][]byte
		for _, arr := range vse.HvcC.NaluArrays {
			nalus = append(nalus, arr.Nalus...)
		}
		t.csd = media.AnnexB(nalus...)
		t.format.BitDepth = int(vse.HvcC.BitDepthLumaMinus8) + 8
		t.nalus = true
	case vse.AvcC != nil:
		nalus := append([][]byte{}, vse.AvcC.SPSnalus...)
		nalus = append(nalus, vse.AvcC.PPSnalus...)
		t.csd = media.AnnexB(nalus...)
		t.nalus = true
	}
	t.format.CSD = t.csd

	for _, child := range vse.Children {
		if colr, ok := child.(*mp4.ColrBox); ok && colr.ColorType == "nclx" {
			t.format.Color = media.ColorInfo{
				Primaries: colr.ColorPrimaries,
				Transfer:  colr.TransferCharacteristics,
				Matrix:    colr.MatrixCoefficients,
				FullRange: colr.FullRangeFlag,
			}
		}
	}
}

func movieTimescale(moov *mp4.MoovBox) uint32 {
	if moov.Mvhd == nil {
		return 0
	}
	return moov.Mvhd.Timescale
}

// editShift returns how many microseconds the edit list moves presentation
// times back. Leading empty edits delay the track; the first media edit
// starts it at its media_time. Edits after that are not applied.
func editShift(edts *mp4.EdtsBox, movieTimescale, mediaTimescale uint32) int64 {
	if edts == nil || len(edts.Elst) == 0 {
		return 0
	}
	var delayUs int64
	for _, e := range edts.Elst[0].Entries {
		if e.MediaTime < 0 {
			if movieTimescale > 0 {
				delayUs += toMicros(int64(e.SegmentDuration), movieTimescale)
			}
			continue
		}
		return toMicros(e.MediaTime, mediaTimescale) - delayUs
	}
	return 0
}

func videoMIME(entry string) string {
	switch entry {
	case "hvc1", "hev1", "dvh1", "dvhe":
		return media.MIMEVideoHEVC
	case "avc1", "avc3":
		return media.MIMEVideoAVC
	case "av01":
		return media.MIMEVideoAV1
	}
	return "video/" + entry
}

func audioMIME(entry string) string {
	if entry == "mp4a" {
		return media.MIMEAudioAAC
	}
	return "audio/" + entry
}

func toMicros(v int64, timescale uint32) int64 {
	return v * 1_000_000 / int64(timescale)
}

func trackDuration(samples []sample) time.Duration {
	var end int64
	for _, s := range samples {
		end = max(end, s.ptsUs+s.durUs)
	}
	return time.Duration(end) * time.Microsecond
}

// load returns the payload of s, reading it from r when needed.
func (s *sample) load(r io.ReadSeeker) ([]byte, error) {
	if s.data != nil {
		return s.data, nil
	}
	if _, err := r.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to sample: %w", err)
	}
	data := make([]byte, s.size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return data, nil
}
