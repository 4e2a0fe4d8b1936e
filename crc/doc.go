// Package crc implements the bit-serial CRC checker (C7) and generator (C9)
// stages shared by the receive and transmit packet paths: CRC5 over token
// fields (address + endpoint) and CRC16 over data payloads.
//
// Both directions run the identical Galois-style LFSR update one bit at a
// time; only the seed, width, and polynomial differ between CRC5 and
// CRC16, and only the final residual comparison (RX) versus the
// bit-reversed, inverted readout (TX) differs in how the register is
// consumed.
package crc
