// Package tx implements the transmit-side bit shifter (C8): bytes in,
// bits out, LSB first, requesting the next byte one bit time before the
// current one is exhausted so the CRC generator and bit stuffer have a
// chance to hold the line steady without a gap.
package tx
