package eptri

import "sync"

// OutFIFODepth is the OUT FIFO depth: 64 payload bytes plus the 2-byte
// CRC16 trailer, which is left in place for the host to discard.
const OutFIFODepth = 66

// Out implements the OUT handler (C15): a 66-byte RX FIFO the host
// drains, plus the per-endpoint stall/enable/dtb bitmaps and the done
// event. A transaction's bytes are staged during reception so a
// mid-packet CRC failure can be discarded without disturbing FIFO
// contents the host has not yet read.
type Out struct {
	mu sync.Mutex

	fifo  [OutFIFODepth]byte
	write int
	read  int

	staging  [OutFIFODepth]byte
	stageLen int

	stall  [16]bool
	enable [16]bool
	dtb    [16]bool
	epno   uint8

	done Event
}

// NewOut returns an Out handler with dtb[0] set (EP0 begins at DATA1).
func NewOut() *Out {
	o := &Out{}
	o.dtb[0] = true
	return o
}

// BeginWrite starts staging a new OUT transaction's bytes for epno.
func (o *Out) BeginWrite(epno uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epno = epno & 0x0F
	o.stageLen = 0
}

// StageByte appends one received byte (payload or CRC16 trailer) to the
// in-progress transaction.
func (o *Out) StageByte(b byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stageLen < OutFIFODepth {
		o.staging[o.stageLen] = b
		o.stageLen++
	}
}

// CommitWrite publishes the staged transaction to the FIFO (ACK sent):
// clears enable[epno], flips dtb[epno], and raises done.
func (o *Out) CommitWrite() {
	o.mu.Lock()
	defer o.mu.Unlock()
	copy(o.fifo[:], o.staging[:o.stageLen])
	o.write = o.stageLen
	o.read = 0
	o.enable[o.epno] = false
	o.dtb[o.epno] = !o.dtb[o.epno]
	o.done.Raise()
}

// DiscardWrite abandons the staged transaction (bit-stuff, PID
// complement, or CRC16 error mid-packet): the committed FIFO is left
// untouched.
func (o *Out) DiscardWrite() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stageLen = 0
}

// ReadData pops the next byte for the host (out.data read).
func (o *Out) ReadData() (b byte, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.read >= o.write {
		return 0, false
	}
	b = o.fifo[o.read]
	o.read++
	return b, true
}

// Ctrl implements out.ctrl. reset clears the FIFO; otherwise enable and
// stall are written directly for epno (enable=1,stall=0 arms; enable=0,
// stall=1 STALLs).
func (o *Out) Ctrl(epno uint8, enable, reset, stall bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	epno &= 0x0F
	if reset {
		o.write, o.read = 0, 0
		return
	}
	o.enable[epno] = enable
	o.stall[epno] = stall
}

// Status implements out.status: the last-received endpoint, whether
// unread FIFO bytes remain, and whether done is pending.
func (o *Out) Status() (epno uint8, have, pend bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epno, o.read < o.write, o.done.Pending
}

// Enabled reports whether epno is armed to accept an OUT data packet.
func (o *Out) Enabled(epno uint8) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enable[epno&0x0F]
}

// Stalled reports whether epno is stalled.
func (o *Out) Stalled(epno uint8) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stall[epno&0x0F]
}

// DTB reports the expected DATA0/DATA1 toggle for epno's next transfer.
func (o *Out) DTB(epno uint8) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dtb[epno&0x0F]
}

// DrainPending reports whether the done event is still unacknowledged;
// while true, further OUT tokens to any endpoint receive NAK.
func (o *Out) DrainPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done.Pending
}

// OnSetup applies the SETUP-token invariant for the OUT direction:
// stall[0] and enable[0] clear, dtb[0] forces to DATA1.
func (o *Out) OnSetup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stall[0] = false
	o.enable[0] = false
	o.dtb[0] = true
}

// resetAll clears every resettable field to its power-up value (spec
// §4.16's USB-reset invariant): all bitmaps to 0 except dtb[0]=1.
func (o *Out) resetAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stall = [16]bool{}
	o.enable = [16]bool{}
	o.dtb = [16]bool{}
	o.dtb[0] = true
	o.epno = 0
	o.write, o.read = 0, 0
	o.stageLen = 0
	o.done.Pending = false
}

// SetDoneEnable configures the done event's host-controlled mask.
func (o *Out) SetDoneEnable(enable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done.Enable = enable
}

// AckDone clears the done event.
func (o *Out) AckDone() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done.Ack()
}

// DoneFires reports whether the done event currently contributes to the
// shared interrupt line.
func (o *Out) DoneFires() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done.Fires()
}
