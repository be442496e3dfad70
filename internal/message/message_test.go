package message

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeMC(t *testing.T) {
	mc := MC{Channel: ChannelISDU, Rw: Write, Address: 0x10}
	b := EncodeMC(mc)
	got := DecodeMC(b)
	if got != mc {
		t.Errorf("round trip mismatch: want %+v, got %+v", mc, got)
	}
}

func TestCKTRoundTrip(t *testing.T) {
	pd := []byte{0x01, 0x02, 0x03}
	od := []byte{0xAA}
	mc := EncodeMC(MC{Channel: ChannelISDU, Rw: Read, Address: 0x01})

	ckt := CKT(1, mc, pd, od)
	if !VerifyCKT(ckt, 1, mc, pd, od) {
		t.Errorf("VerifyCKT rejected a checksum it just computed")
	}

	// Flipping any payload byte must be detected.
	od[0] ^= 0xFF
	if VerifyCKT(ckt, 1, mc, pd, od) {
		t.Errorf("VerifyCKT accepted a corrupted OD segment")
	}
}

func TestParseShortFrame(t *testing.T) {
	_, _, err := Parse([]byte{0x00, 0x00}, 2, 1)
	if err == nil {
		t.Fatalf("expected ErrShortFrame, got nil")
	}
	if _, ok := err.(*ErrShortFrame); !ok {
		t.Fatalf("expected *ErrShortFrame, got %T", err)
	}
}

func TestBuildThenParse(t *testing.T) {
	pd := []byte{0x11, 0x22}
	od := []byte{0x33}
	mc := EncodeMC(MC{Channel: ChannelProcess, Address: 0})

	scratch := make([]byte, 0, 16)
	wire := Build(scratch, 2, mc, pd, od)

	f, rest, err := Parse(wire, len(pd), len(od))
	if err != nil {
		t.Fatalf("Parse failed on freshly built frame: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no remainder, got %d bytes", len(rest))
	}
	if !bytes.Equal(f.PD, pd) || !bytes.Equal(f.OD, od) {
		t.Errorf("decoded payload mismatch: PD=%v OD=%v", f.PD, f.OD)
	}
	if !VerifyCKT(f.CKTByte, 2, f.MCByte, f.PD, f.OD) {
		t.Errorf("built frame failed its own checksum verification")
	}
}

func TestBuildReusesBackingArray(t *testing.T) {
	scratch := make([]byte, 0, 8)
	out1 := Build(scratch, 0, 0x00, []byte{1}, nil)
	out2 := Build(out1, 0, 0x00, []byte{2}, nil)
	if &out1[0] != &out2[0] {
		t.Errorf("expected Build to reuse the same backing array across calls")
	}
}
