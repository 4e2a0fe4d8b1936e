package eptri

import "sync"

// EventKind names which of the four host-visible events next_ev should
// report. Exactly one bit is ever set, per spec §6's "next_ev — exactly
// one bit set"; ties are broken by priority (reset first, then setup,
// then the data endpoints), a decision not pinned by the distilled
// spec and recorded in the design ledger.
type EventKind int

// Event priority order, highest first.
const (
	EventNone EventKind = iota
	EventReset
	EventSetup
	EventOut
	EventIn
)

func (k EventKind) String() string {
	switch k {
	case EventReset:
		return "reset"
	case EventSetup:
		return "setup"
	case EventOut:
		return "out"
	case EventIn:
		return "in"
	default:
		return "none"
	}
}

// Registers aggregates the SETUP/IN/OUT handlers and the device address
// register behind the host's register-access interface (spec §6) and
// the transaction FSM's narrower view of the same state (fsm.Endpoints).
type Registers struct {
	mu      sync.Mutex
	address uint8

	Setup *Setup
	In    *In
	Out   *Out
}

// NewRegisters returns a Registers with freshly reset handlers.
func NewRegisters() *Registers {
	return &Registers{
		Setup: NewSetup(),
		In:    NewIn(),
		Out:   NewOut(),
	}
}

// Address returns the device's current bus address.
func (r *Registers) Address() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

// SetAddress implements address.addr: the low 7 bits are significant.
func (r *Registers) SetAddress(addr uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.address = addr & 0x7F
}

// OnSetupToken applies the SETUP-token invariant (spec §3) across all
// three handlers: the SETUP FIFO is cleared and re-armed for endp, EP0's
// IN/OUT stall clear, EP0 IN's queued clears, EP0 OUT's enable clears,
// and both directions' dtb[0] force to 1 (DATA1).
func (r *Registers) OnSetupToken(endp uint8) {
	r.Setup.OnToken(endp)
	r.In.OnSetup()
	r.Out.OnSetup()
}

// OnWireReset applies the full USB-reset invariant (spec §4.16): the
// device address clears, every handler's resettable bitmap returns to
// its power-up value, and the SETUP handler's reset event fires.
func (r *Registers) OnWireReset() {
	r.mu.Lock()
	r.address = 0
	r.mu.Unlock()

	r.Setup.Reset()
	r.In.resetAll()
	r.Out.resetAll()
	r.Setup.RaiseReset()
}

// NextEvent reports the highest-priority pending, enabled event.
func (r *Registers) NextEvent() EventKind {
	switch {
	case r.Setup.ResetFires():
		return EventReset
	case r.Setup.ReadyFires():
		return EventSetup
	case r.Out.DoneFires():
		return EventOut
	case r.In.DoneFires():
		return EventIn
	default:
		return EventNone
	}
}

// IRQ reports the shared interrupt line: the OR of every enabled,
// pending event across all three handlers.
func (r *Registers) IRQ() bool {
	return r.Setup.ReadyFires() || r.Setup.ResetFires() ||
		r.In.DoneFires() || r.Out.DoneFires()
}

// The following flat wrappers give fsm.Machine a narrow, single-level
// view of endpoint state (fsm.Endpoints), the same dependency-inversion
// shape the teacher uses between its transfer logic and hal.DeviceHAL.

// SetupPush appends one byte of the in-progress SETUP payload.
func (r *Registers) SetupPush(b byte) bool { return r.Setup.Push(b) }

// InQueued reports whether epno has armed IN data ready.
func (r *Registers) InQueued(epno uint8) bool { return r.In.Queued(epno) }

// InStalled reports whether epno (IN) is stalled.
func (r *Registers) InStalled(epno uint8) bool { return r.In.Stalled(epno) }

// InDTB reports the expected toggle for epno's next IN transfer.
func (r *Registers) InDTB(epno uint8) bool { return r.In.DTB(epno) }

// InPopByte drains the next IN FIFO byte to transmit.
func (r *Registers) InPopByte() (byte, bool) { return r.In.PopByte() }

// InCommit finalizes a successful IN transaction for epno.
func (r *Registers) InCommit(epno uint8) { r.In.Commit(epno) }

// OutEnabled reports whether epno is armed to accept OUT data.
func (r *Registers) OutEnabled(epno uint8) bool { return r.Out.Enabled(epno) }

// OutStalled reports whether epno (OUT) is stalled.
func (r *Registers) OutStalled(epno uint8) bool { return r.Out.Stalled(epno) }

// OutDTB reports the expected toggle for epno's next OUT transfer.
func (r *Registers) OutDTB(epno uint8) bool { return r.Out.DTB(epno) }

// OutDrainPending reports whether the OUT done event is still
// unacknowledged, during which further OUT tokens to any endpoint NAK.
func (r *Registers) OutDrainPending() bool { return r.Out.DrainPending() }

// OutBeginWrite starts staging a new OUT transaction's bytes for epno.
func (r *Registers) OutBeginWrite(epno uint8) { r.Out.BeginWrite(epno) }

// OutStageByte appends one received byte to the in-progress transaction.
func (r *Registers) OutStageByte(b byte) { r.Out.StageByte(b) }

// OutCommitWrite publishes the staged OUT transaction to the FIFO.
func (r *Registers) OutCommitWrite() { r.Out.CommitWrite() }

// OutDiscardWrite abandons the staged OUT transaction.
func (r *Registers) OutDiscardWrite() { r.Out.DiscardWrite() }
