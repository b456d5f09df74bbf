package media

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Eyevinn/mp4ff/hevc"
)

func TestLengthPrefixedRoundTrip(t *testing.T) {
	sample := []byte{
		0, 0, 0, 2, 0x26, 0x01,
		0, 0, 0, 3, 0x02, 0x01, 0xff,
	}
	orig := append([]byte(nil), sample...)
	annexB, err := LengthPrefixedToAnnexB(sample)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 1, 0x26, 0x01, 0, 0, 0, 1, 0x02, 0x01, 0xff}
	if !bytes.Equal(annexB, want) {
		t.Fatalf("annex b = %x, want %x", annexB, want)
	}
	if !bytes.Equal(sample, orig) {
		t.Errorf("input sample was modified: %x", sample)
	}
	if back := AnnexBToLengthPrefixed(annexB, nil); !bytes.Equal(back, sample) {
		t.Errorf("length prefixed = %x, want %x", back, sample)
	}
	if !bytes.Equal(annexB, want) {
		t.Errorf("input stream was modified: %x", annexB)
	}
}

func TestLengthPrefixedToAnnexB_Truncated(t *testing.T) {
	for _, sample := range [][]byte{{0, 0, 1}, {0, 0, 0, 9, 1, 2}} {
		if _, err := LengthPrefixedToAnnexB(sample); !errors.Is(err, ErrTruncatedNALU) {
			t.Errorf("%x: err = %v, want ErrTruncatedNALU", sample, err)
		}
	}
}

func TestAnnexBToLengthPrefixed_DropsParameterSets(t *testing.T) {
	vps := []byte{0x40, 0x01, 0x0c}
	slice := []byte{0x26, 0x01, 0xaf}
	dropVPS := func(nalu []byte) bool { return hevc.GetNaluType(nalu[0]) == hevc.NALU_VPS }

	// Three byte start codes split the same way.
	stream := []byte{0, 0, 1, 0x40, 0x01, 0x0c, 0, 0, 1, 0x26, 0x01, 0xaf}
	for _, data := range [][]byte{AnnexB(vps, slice), stream} {
		out := AnnexBToLengthPrefixed(data, dropVPS)
		want := []byte{0, 0, 0, 3, 0x26, 0x01, 0xaf}
		if !bytes.Equal(out, want) {
			t.Errorf("%x: got %x, want %x", data, out, want)
		}
	}
	if out := AnnexBToLengthPrefixed(AnnexB(vps), dropVPS); len(out) != 0 {
		t.Errorf("all units dropped: got %x", out)
	}
}

func TestSplitAccessUnits(t *testing.T) {
	aud := []byte{0x46, 0x01, 0x10}
	vps := []byte{0x40, 0x01, 0x0c}
	idr := []byte{0x26, 0x01, 0xaf}
	trail := []byte{0x02, 0x01, 0xd0}
	stream := AnnexB(aud, vps, idr, aud, trail, aud, trail)

	units := SplitAccessUnits(stream)
	if len(units) != 3 {
		t.Fatalf("got %d access units, want 3", len(units))
	}
	if want := AnnexB(aud, vps, idr); !bytes.Equal(units[0], want) {
		t.Errorf("unit 0 = %x, want %x", units[0], want)
	}
	if want := AnnexB(aud, trail); !bytes.Equal(units[2], want) {
		t.Errorf("unit 2 = %x, want %x", units[2], want)
	}
}

func TestSplitAccessUnits_NoStartCode(t *testing.T) {
	if got := SplitAccessUnits([]byte{1, 2, 3}); len(got) != 0 {
		t.Errorf("got %d units, want 0", len(got))
	}
}
