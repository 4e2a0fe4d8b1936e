package eptri

import "sync"

// SetupFIFODepth is the SETUP FIFO depth: 8 payload bytes (the standard
// USB setup packet) plus the 2-byte CRC16 trailer.
const SetupFIFODepth = 10

// Setup implements the SETUP handler (C13): a 10-byte FIFO, unconditionally
// cleared and refilled on every SETUP token, plus the ready/reset events.
type Setup struct {
	mu sync.Mutex

	fifo    [SetupFIFODepth]byte
	written int // bytes pushed since the last OnToken
	read    int // bytes popped by the host

	epno uint8

	ready Event
	reset Event
}

// NewSetup returns an empty Setup handler.
func NewSetup() *Setup {
	return &Setup{}
}

// OnToken unconditionally clears the FIFO for a new SETUP token addressed
// to endp, per spec: "a SETUP that arrives while the EP0 FIFOs are
// non-empty must still be accepted."
func (s *Setup) OnToken(endp uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = 0
	s.read = 0
	s.epno = endp
}

// Push appends the next byte of the SETUP payload/CRC trailer. full
// reports whether this was the 10th byte, in which case the ready event
// is raised.
func (s *Setup) Push(b byte) (full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written < SetupFIFODepth {
		s.fifo[s.written] = b
		s.written++
	}
	if s.written == SetupFIFODepth {
		s.ready.Raise()
		return true
	}
	return false
}

// ReadData pops the next byte for the host, mirroring setup.data.
func (s *Setup) ReadData() (b byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read >= s.written {
		return 0, false
	}
	b = s.fifo[s.read]
	s.read++
	return b, true
}

// Status reports setup.status: the addressed endpoint, whether unread
// bytes remain, whether the ready event is pending, the request
// direction (bmRequestType bit 7), and whether wLength is non-zero.
func (s *Setup) Status() (epno uint8, have, pend, isIn, hasData bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	epno = s.epno
	have = s.read < s.written
	pend = s.ready.Pending
	if s.written >= 8 {
		isIn = s.fifo[0]&0x80 != 0
		hasData = s.fifo[6] != 0 || s.fifo[7] != 0
	}
	return epno, have, pend, isIn, hasData
}

// RaiseReset asserts the reset event, performed when a wire-level USB
// reset is observed (independent of SETUP FIFO traffic).
func (s *Setup) RaiseReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset.Raise()
}

// AckReady clears the ready event. The FIFO contents are left as they
// are.
func (s *Setup) AckReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready.Ack()
}

// AckReset clears the reset event.
func (s *Setup) AckReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset.Ack()
}

// SetReadyEnable configures the ready event's host-controlled mask.
func (s *Setup) SetReadyEnable(enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready.Enable = enable
}

// SetResetEnable configures the reset event's host-controlled mask.
func (s *Setup) SetResetEnable(enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset.Enable = enable
}

// ReadyFires reports whether the ready event currently contributes to
// the shared interrupt line.
func (s *Setup) ReadyFires() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Fires()
}

// ResetFires reports whether the reset event currently contributes to
// the shared interrupt line.
func (s *Setup) ResetFires() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset.Fires()
}

// Reset clears the FIFO and both events, performed on a wire-level USB
// reset (spec §4.16) in addition to RaiseReset.
func (s *Setup) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = 0
	s.read = 0
	s.epno = 0
	s.ready = Event{Enable: s.ready.Enable}
	s.reset = Event{Enable: s.reset.Enable}
}
