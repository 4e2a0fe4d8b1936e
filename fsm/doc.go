// Package fsm implements the transaction FSM (C12), the sequencer that
// drives a single token/data/handshake exchange to completion: it
// decides addressing, response-PID selection, and data-toggle commit,
// and dispatches to the SETUP/IN/OUT handlers (package eptri) through
// the narrow Endpoints view and to the transmit path through
// Transmitter.
//
// The wire-level pipeline (packages line, nrzi, bitstream, rx, tx, crc)
// stays cycle-accurate; this package is driven at the decoded
// byte/event level, the looser granularity the spec explicitly allows
// for endpoint-handler logic.
package fsm
