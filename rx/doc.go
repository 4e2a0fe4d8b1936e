// Package rx implements the receive-side bit-level pipeline: the packet
// detector (C4), the RX shifter (C5), and the packet header decoder (C6).
// These stages consume the NRZI-decoded, bit-unstuffed data stream and
// produce byte-aligned PID/ADDR/ENDP headers plus a payload boundary for
// the transaction FSM and FIFO handlers.
package rx
