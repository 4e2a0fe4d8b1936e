package nrzi

import "github.com/ardnew/eptri/line"

// Decoder implements the NRZI decode stage (C2). It consumes one valid
// {J, K, SE0} line sample at a time and has one sample of latency: the
// very first sample is compared against an assumed idle J reference, so
// the first post-sync bit decodes correctly without a warm-up period.
type Decoder struct {
	prev line.Sample
}

// NewDecoder returns a Decoder with the idle (J) reference state.
func NewDecoder() *Decoder {
	return &Decoder{prev: line.J}
}

// Reset re-arms the decoder to the idle reference state, as performed at
// the start of every packet.
func (d *Decoder) Reset() {
	d.prev = line.J
}

// Decode maps one line sample to a data bit. se0 is forwarded as a
// side-channel flag so downstream stages (bit unstuffer, packet
// detector) can recognize end-of-packet without being given a bit value
// for it. An illegal SE1 sample decodes to bit 0 without asserting se0
// and without disturbing the transition reference, so downstream noise
// from a single SE1 glitch does not cascade into a wrong decode of the
// next legal sample.
func (d *Decoder) Decode(s line.Sample) (bit byte, se0 bool) {
	switch s {
	case line.SE0:
		return 0, true
	case line.SE1:
		return 0, false
	default:
		if s == d.prev {
			return 1, false
		}
		d.prev = s
		return 0, false
	}
}
