package fsm

// Endpoints is the transaction FSM's narrow view of the SETUP/IN/OUT
// handlers (package eptri), the same dependency-inversion shape the
// teacher uses between its transfer logic and hal.DeviceHAL. It is
// satisfied by *eptri.Registers.
type Endpoints interface {
	// Address returns the device's current bus address, latched by the
	// FSM only at CHECK_TOK so an in-flight transaction is never affected
	// by a SET_ADDRESS that completes mid-transfer.
	Address() uint8

	// OnSetupToken applies the cross-handler SETUP-token invariant: the
	// SETUP FIFO clears and re-arms, and both IN/OUT directions' stall
	// clear and dtb[0] force to DATA1.
	OnSetupToken(endp uint8)
	// SetupPush appends one byte of the SETUP data stage.
	SetupPush(b byte) bool

	InQueued(epno uint8) bool
	InStalled(epno uint8) bool
	InDTB(epno uint8) bool
	InPopByte() (byte, bool)
	InCommit(epno uint8)

	OutEnabled(epno uint8) bool
	OutStalled(epno uint8) bool
	OutDTB(epno uint8) bool
	OutDrainPending() bool
	OutBeginWrite(epno uint8)
	OutStageByte(b byte)
	OutCommitWrite()
	OutDiscardWrite()
}
