package bitstream

import "github.com/ardnew/eptri/pkg"

// StuffInterval is the number of consecutive 1 bits after which a stuff
// bit is inserted (TX) or expected and removed (RX).
const StuffInterval = 6

// Unstuffer implements the bit unstuffer (C3). It counts consecutive 1
// bits in the incoming stream; on the seventh consecutive 1, that bit is
// consumed rather than emitted and the counter resets. If the consumed
// bit is a 1 instead of the mandatory stuffed 0, [pkg.ErrBitStuff] is
// returned; the stream position is otherwise undisturbed, leaving the
// caller (the packet detector / header decoder) to decide whether to
// abandon the packet.
type Unstuffer struct {
	ones int
}

// NewUnstuffer returns an Unstuffer with no consecutive-1 history.
func NewUnstuffer() *Unstuffer {
	return &Unstuffer{}
}

// Reset clears the consecutive-1 counter, as performed on SE0 / packet
// end.
func (u *Unstuffer) Reset() {
	u.ones = 0
}

// Put advances the unstuffer by one bit. ok is false when bit was
// consumed as a stuff bit (or its erroneous 1 substitute) and must not be
// forwarded downstream.
func (u *Unstuffer) Put(bit byte) (out byte, ok bool, err error) {
	if u.ones == StuffInterval {
		u.ones = 0
		if bit == 1 {
			return 0, false, pkg.ErrBitStuff
		}
		return 0, false, nil
	}
	if bit == 1 {
		u.ones++
	} else {
		u.ones = 0
	}
	return bit, true, nil
}
