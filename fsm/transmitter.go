package fsm

import "github.com/ardnew/eptri/rx"

// Transmitter is the transaction FSM's view of the transmit path (C8
// through C11): framing a complete packet — SYNC, PID, payload, CRC,
// EOP — is the core's concern, not the FSM's, so entering SEND_DATA or
// SEND_HAND reduces to one call here.
type Transmitter interface {
	// SendHandshake transmits a zero-payload handshake packet with the
	// given PID (ACK, NAK, or STALL).
	SendHandshake(pid rx.PID)
	// SendData transmits a data packet with the given PID (DATA0 or
	// DATA1) and payload.
	SendData(pid rx.PID, payload []byte)
}
