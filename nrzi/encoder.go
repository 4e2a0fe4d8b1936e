package nrzi

import "github.com/ardnew/eptri/line"

// Encoder implements the NRZI encode stage (C11). It tracks the line
// state currently being driven; the idle state before the first bit of a
// packet is J, so the first transmitted bit (always the leading 0 of
// SYNC) causes the first edge, as required by the wire protocol.
type Encoder struct {
	cur line.Sample
}

// NewEncoder returns an Encoder driving the idle J state.
func NewEncoder() *Encoder {
	return &Encoder{cur: line.J}
}

// Reset returns the encoder to the idle J state, as performed after an
// end-of-packet sequence.
func (e *Encoder) Reset() {
	e.cur = line.J
}

// Encode maps one data bit to the next line sample: a transition (J<->K)
// for 0, no transition for 1.
func (e *Encoder) Encode(bit byte) line.Sample {
	if bit == 0 {
		if e.cur == line.J {
			e.cur = line.K
		} else {
			e.cur = line.J
		}
	}
	return e.cur
}

// EOP is the fixed three bit-time end-of-packet sequence: SE0, SE0, J.
// The caller drives these three samples in order and then calls Reset
// (J is already the idle state EOP ends on, Reset keeps the two
// in agreement going into the next packet).
var EOP = [3]line.Sample{line.SE0, line.SE0, line.J}
