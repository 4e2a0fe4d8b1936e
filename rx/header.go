package rx

import "github.com/ardnew/eptri/pkg"

// Header is the decoded result of a token packet: device address,
// endpoint number, and the CRC5 field as received (unvalidated; the
// caller runs it through crc.NewToken5 and crc.TokenField).
type Header struct {
	PID  PID
	Addr uint8 // 7 bits
	Endp uint8 // 4 bits
	CRC5 uint8 // 5 bits, as received
}

type decoderState int

const (
	stateExpectPID decoderState = iota
	stateToken1
	stateToken2
	stateData
	stateAbandoned
)

// HeaderDecoder implements the packet header decoder (C6). Driven one
// complete byte at a time from the RX shifter, it classifies the PID,
// and for token packets assembles ADDR/ENDP/CRC5 from the two bytes
// that follow. Data packets are recognized but their payload bytes are
// reported back to the caller rather than captured here; the caller
// routes them to the OUT FIFO or matches them against the expected
// DATA0/DATA1 toggle.
type HeaderDecoder struct {
	state   decoderState
	hdr     Header
	endpLow uint8
}

// NewHeaderDecoder returns a HeaderDecoder ready for Start.
func NewHeaderDecoder() *HeaderDecoder {
	return &HeaderDecoder{}
}

// Start begins decoding a new packet, called on the packet detector's
// pkt_start pulse: the next byte delivered to PutByte is the PID.
func (d *HeaderDecoder) Start() {
	d.state = stateExpectPID
	d.hdr = Header{}
	d.endpLow = 0
}

// PID returns the PID byte decoded for the packet currently in
// progress, valid as soon as the first byte has been consumed. For a
// data packet this is the only way to recover DATA0/DATA1 once PutByte
// has moved on to reporting payload bytes.
func (d *HeaderDecoder) PID() PID {
	return d.hdr.PID
}

// PutByte advances the decoder by one complete byte from the RX
// shifter. done reports that hdr now holds a fully decoded token or
// handshake header. isPayload reports that b is a data-packet payload
// byte (hdr is not meaningful in that case). err is non-nil only for a
// PID complement mismatch, at which point the packet must be abandoned
// upstream; PutByte itself simply stops producing further output until
// the next Start.
func (d *HeaderDecoder) PutByte(b byte) (done bool, hdr Header, payload byte, isPayload bool, err error) {
	switch d.state {
	case stateExpectPID:
		pid, ok := DecodePIDByte(b)
		if !ok {
			d.state = stateAbandoned
			return false, Header{}, 0, false, pkg.ErrPIDMismatch
		}
		d.hdr.PID = pid
		switch pid.Type() {
		case PIDTypeHandshake:
			return true, d.hdr, 0, false, nil
		case PIDTypeToken:
			d.state = stateToken1
			return false, Header{}, 0, false, nil
		case PIDTypeData:
			d.state = stateData
			return false, Header{}, 0, false, nil
		default:
			d.state = stateAbandoned
			return false, Header{}, 0, false, nil
		}

	case stateToken1:
		d.hdr.Addr = b & 0x7F
		d.endpLow = (b >> 7) & 1
		d.state = stateToken2
		return false, Header{}, 0, false, nil

	case stateToken2:
		endpHigh := b & 0x07
		d.hdr.Endp = (endpHigh << 1) | d.endpLow
		d.hdr.CRC5 = (b >> 3) & 0x1F
		d.state = stateExpectPID
		return true, d.hdr, 0, false, nil

	case stateData:
		return false, Header{}, b, true, nil

	default: // stateAbandoned
		return false, Header{}, 0, false, nil
	}
}
