package rx

import "fmt"

// PID is a 4-bit USB packet identifier, transmitted on the wire as an
// 8-bit byte {pid, ~pid} for integrity.
type PID byte

// Recognized packet identifiers (USB 1.1 full-speed subset: no PING,
// SPLIT, ERR, or high-speed-only PIDs).
const (
	PIDSetup PID = 0b1101
	PIDOut   PID = 0b0001
	PIDIn    PID = 0b1001
	PIDSOF   PID = 0b0101

	PIDData0 PID = 0b0011
	PIDData1 PID = 0b1011

	PIDAck   PID = 0b0010
	PIDNak   PID = 0b1010
	PIDStall PID = 0b1110
)

func (p PID) String() string {
	switch p {
	case PIDSetup:
		return "SETUP"
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSOF:
		return "SOF"
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDAck:
		return "ACK"
	case PIDNak:
		return "NAK"
	case PIDStall:
		return "STALL"
	default:
		return fmt.Sprintf("PID(%#x)", byte(p))
	}
}

// PIDType is the low two bits of a PID, grouping it as a token, data, or
// handshake packet. A fourth grouping, reserved, covers the PID space
// this subset never transmits (PING/SPLIT/ERR and friends in the full
// USB 2.0 PID table) so the header decoder can name an out-of-scope PID
// rather than silently miscategorize it.
type PIDType byte

const (
	PIDTypeReserved  PIDType = 0b00
	PIDTypeToken     PIDType = 0b01
	PIDTypeHandshake PIDType = 0b10
	PIDTypeData      PIDType = 0b11

	pidTypeMask = 0b0011
)

// Type extracts p's PIDType from its low two bits.
func (p PID) Type() PIDType {
	return PIDType(p & pidTypeMask)
}

func (t PIDType) String() string {
	switch t {
	case PIDTypeToken:
		return "token"
	case PIDTypeData:
		return "data"
	case PIDTypeHandshake:
		return "handshake"
	default:
		return "reserved"
	}
}

// DecodePIDByte splits a received PID byte into its nibble and
// complement, reporting ok as false when low4 != ^high4.
func DecodePIDByte(b byte) (pid PID, ok bool) {
	low := b & 0x0F
	high := (b >> 4) & 0x0F
	if low != (^high & 0x0F) {
		return 0, false
	}
	return PID(low), true
}

// EncodePIDByte builds the 8-bit wire form of pid: the 4-bit code
// followed by its bitwise complement.
func EncodePIDByte(pid PID) byte {
	low := byte(pid) & 0x0F
	high := (^low) & 0x0F
	return low | (high << 4)
}
