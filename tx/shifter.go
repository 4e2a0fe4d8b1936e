package tx

// Shifter implements the TX shifter (C8), the dual of rx.Shifter: a byte
// is loaded, then emitted one bit at a time, LSB first. Empty fires on
// the tick that consumes the last bit of the loaded byte, telling the
// producer (the transaction FSM, by way of the FIFO being drained) to
// supply the next byte before the following Shift call or end the
// packet.
type Shifter struct {
	byt  byte
	bits int
}

// NewShifter returns an empty Shifter with nothing loaded.
func NewShifter() *Shifter {
	return &Shifter{}
}

// Load installs a new byte to shift out, discarding any bits remaining
// from a previous byte.
func (s *Shifter) Load(b byte) {
	s.byt = b
	s.bits = 8
}

// Empty reports whether all 8 bits of the loaded byte have been shifted
// out; Shift must not be called again until Load supplies a new byte.
func (s *Shifter) Empty() bool {
	return s.bits == 0
}

// Shift emits the next bit (LSB first) of the loaded byte. empty is true
// when this was the last bit of the byte.
func (s *Shifter) Shift() (bit byte, empty bool) {
	bit = s.byt & 1
	s.byt >>= 1
	s.bits--
	return bit, s.bits == 0
}
