package eptri

import "sync"

// InFIFODepth is the IN FIFO depth: one device-to-host data stage at a
// time.
const InFIFODepth = 64

// In implements the IN handler (C14): a 64-byte TX FIFO the host fills
// ahead of time, plus the per-endpoint stall/dtb/queued bitmaps and the
// done event. Only one endpoint's data may be in flight through the
// FIFO at a time, matching the single active transfer the transaction
// FSM ever drives.
type In struct {
	mu sync.Mutex

	fifo  [InFIFODepth]byte
	write int
	read  int

	stall  [16]bool
	dtb    [16]bool
	queued [16]bool
	armed  uint8

	done Event
}

// NewIn returns an In handler with dtb[0] set (EP0 begins at DATA1 per
// spec §3's lifecycle rule).
func NewIn() *In {
	in := &In{}
	in.dtb[0] = true
	return in
}

// Push appends one byte to the FIFO (in.data write). Overflow past
// InFIFODepth is silently dropped; spec §7 leaves FIFO-overflow handling
// implementation-defined and recommends exactly this (clamp).
func (in *In) Push(b byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.write < InFIFODepth {
		in.fifo[in.write] = b
		in.write++
	}
}

// Ctrl implements in.ctrl: epno selects the target endpoint. reset
// clears the FIFO and that endpoint's queued flag; otherwise stall sets
// or clears stall[epno], and clearing stall arms queued[epno] and
// records epno as the endpoint the FIFO contents belong to.
func (in *In) Ctrl(epno uint8, reset, stall bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	epno &= 0x0F
	if reset {
		in.write, in.read = 0, 0
		in.queued[epno] = false
		return
	}
	if stall {
		in.stall[epno] = true
		return
	}
	in.stall[epno] = false
	in.queued[epno] = true
	in.armed = epno
}

// Status implements in.status: idle reports no endpoint currently armed
// with queued data, have reports unread FIFO bytes remain, pend reports
// the done event is pending.
func (in *In) Status() (idle, have, pend bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	idle = !in.queued[in.armed]
	have = in.read < in.write
	pend = in.done.Pending
	return idle, have, pend
}

// Queued reports whether the host has armed endpoint epno with data to
// send.
func (in *In) Queued(epno uint8) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.queued[epno&0x0F]
}

// Stalled reports whether epno is stalled.
func (in *In) Stalled(epno uint8) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stall[epno&0x0F]
}

// DTB reports the expected DATA0/DATA1 toggle for epno's next transfer.
func (in *In) DTB(epno uint8) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dtb[epno&0x0F]
}

// PopByte drains the next FIFO byte for C8 to transmit.
func (in *In) PopByte() (b byte, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.read >= in.write {
		return 0, false
	}
	b = in.fifo[in.read]
	in.read++
	return b, true
}

// Commit finalizes a successful IN transaction for epno (host returned
// ACK): clears queued, flips dtb, empties the FIFO, and raises done.
func (in *In) Commit(epno uint8) {
	in.mu.Lock()
	defer in.mu.Unlock()
	epno &= 0x0F
	in.queued[epno] = false
	in.dtb[epno] = !in.dtb[epno]
	in.write, in.read = 0, 0
	in.done.Raise()
}

// OnSetup applies the SETUP-token invariant for the IN direction:
// stall[0] clears, dtb[0] forces to DATA1, and any armed EP0 IN transfer
// is abandoned.
func (in *In) OnSetup() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stall[0] = false
	in.dtb[0] = true
	in.queued[0] = false
}

// resetAll clears every resettable field to its power-up value (spec
// §4.16's USB-reset invariant): all bitmaps to 0 except dtb[0]=1.
func (in *In) resetAll() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stall = [16]bool{}
	in.queued = [16]bool{}
	in.dtb = [16]bool{}
	in.dtb[0] = true
	in.armed = 0
	in.write, in.read = 0, 0
	in.done.Pending = false
}

// SetDoneEnable configures the done event's host-controlled mask.
func (in *In) SetDoneEnable(enable bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.done.Enable = enable
}

// AckDone clears the done event.
func (in *In) AckDone() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.done.Ack()
}

// DoneFires reports whether the done event currently contributes to the
// shared interrupt line.
func (in *In) DoneFires() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.done.Fires()
}
