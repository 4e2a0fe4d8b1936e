// Package nrzi implements the NRZI decode (C2) and encode (C11) stages of
// the USB full-speed PHY pipeline. NRZI (non-return-to-zero inverted)
// encodes a data bit as the presence or absence of a line transition
// rather than as an absolute level: 0 is a transition, 1 is no
// transition. [Decoder] and [Encoder] are exact duals of one another, so
// nrzi.Decode(nrzi.Encode(bits)) == bits for any bit string (spec
// property P7).
package nrzi
