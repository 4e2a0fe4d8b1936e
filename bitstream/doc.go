// Package bitstream implements the bit-unstuffer (C3) and bit-stuffer
// (C10) stages of the USB full-speed PHY pipeline. Bit stuffing inserts a
// 0 after every six consecutive 1s on the wire so the receiver's clock
// recovery sees a guaranteed edge at least every seven bit times;
// [Unstuffer] removes it again on receive.
package bitstream
