// Package simhost is the in-process simulated USB host used by
// integration tests: it drives one side of a [line.Loopback] with the
// same wire-level leaf packages (line, nrzi, bitstream, rx, tx, crc)
// core.Core uses on the device side, framing tokens/data/handshakes and
// decoding whatever the device drives back, without a transaction FSM
// of its own since a host schedules transactions rather than reacting
// to them. It plays the role the teacher's host/hal/fifo plays
// relative to device/hal/fifo, but looped back in-process instead of
// over named pipes.
package simhost
