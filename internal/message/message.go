// Package message implements M-sequence frame encoding, decoding, and the
// CKT checksum for the IO-Link physical layer.
package message

import "fmt"

// MC holds a decoded Master Command byte: the addressed channel and the
// per-channel sub-fields IO-Link defines for that channel.
type MC struct {
	Channel     Channel
	Address     uint8 // ISDU/process data address bits, channel-dependent
	Rw          RW    // read/write direction for the ISDU channel
}

// Channel identifies the OD channel a master command addresses.
type Channel uint8

const (
	ChannelProcess Channel = iota
	ChannelPage
	ChannelDiagnosis
	ChannelISDU
)

// RW is the read/write direction encoded in an ISDU MC byte.
type RW uint8

const (
	Read RW = iota
	Write
)

// DecodeMC splits a raw MC byte into its channel, address, and direction
// fields per IO-Link's bit layout: bits 7-6 channel, bit 5 rw, bits 4-0
// address.
func DecodeMC(b byte) MC {
	return MC{
		Channel: Channel((b >> 6) & 0x03),
		Rw:      RW((b >> 5) & 0x01),
		Address: b & 0x1F,
	}
}

// EncodeMC packs an MC struct back into its wire byte.
func EncodeMC(mc MC) byte {
	return byte(mc.Channel)<<6 | byte(mc.Rw)<<5 | (mc.Address & 0x1F)
}

// CKT computes the IO-Link checksum/type byte over an M-sequence's MC byte
// plus its PD and OD segments. The low 6 bits are an XOR-folded checksum of
// the covered bytes; the top 2 bits carry the frame type, supplied by the
// caller since it is not derivable from the payload alone.
func CKT(frameType uint8, mc byte, pd, od []byte) byte {
	x := mc
	for _, b := range pd {
		x ^= b
	}
	for _, b := range od {
		x ^= b
	}
	// XOR-fold byte down to 6 bits.
	folded := (x ^ (x << 4)) >> 2 & 0x3F
	return (frameType&0x03)<<6 | folded
}

// VerifyCKT reports whether a received CKT byte matches what CKT would
// compute for the same frame type, MC, and PD/OD segments.
func VerifyCKT(ckt, frameType, mc byte, pd, od []byte) bool {
	return ckt == CKT(frameType, mc, pd, od)
}

// Frame is a fully decoded M-sequence: the master's MC/CKT/OD segment and
// whatever PD segment accompanied it.
type Frame struct {
	MCByte  byte
	CKTByte byte
	PD      []byte
	OD      []byte
}

// ErrShortFrame is returned by Parse when fewer bytes are available than
// the M-sequence type requires.
type ErrShortFrame struct {
	Want, Got int
}

func (e *ErrShortFrame) Error() string {
	return fmt.Sprintf("message: short frame: want %d bytes, got %d", e.Want, e.Got)
}

// Parse decodes one M-sequence frame out of buf given the number of PD and
// OD bytes the negotiated M-sequence type carries. It returns the frame and
// the remainder of buf following it.
func Parse(buf []byte, pdLen, odLen int) (Frame, []byte, error) {
	want := 2 + pdLen + odLen
	if len(buf) < want {
		return Frame{}, buf, &ErrShortFrame{Want: want, Got: len(buf)}
	}
	f := Frame{
		MCByte:  buf[0],
		CKTByte: buf[1],
		PD:      buf[2 : 2+pdLen],
		OD:      buf[2+pdLen : 2+pdLen+odLen],
	}
	return f, buf[want:], nil
}

// Build serializes a device response M-sequence: MC echoed back, a freshly
// computed CKT over the echoed MC plus PD/OD segments, then PD followed by
// OD. dst is the caller's fixed-capacity scratch buffer, reset to len 0
// before the append chain so no cycle grows the backing array.
func Build(dst []byte, frameType, mc byte, pd, od []byte) []byte {
	ckt := CKT(frameType, mc, pd, od)
	dst = dst[:0]
	dst = append(dst, mc, ckt)
	dst = append(dst, pd...)
	dst = append(dst, od...)
	return dst
}
