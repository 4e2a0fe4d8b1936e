package fsm

import (
	"sync"

	"github.com/ardnew/eptri/pkg"
	"github.com/ardnew/eptri/rx"
)

// Machine is the transaction FSM (C12): a Mealy machine sequencing one
// token/data/handshake exchange at a time across the SETUP/IN/OUT
// handlers. It is driven by decoded header/payload events from the RX
// pipeline and drives packet transmission through a Transmitter.
type Machine struct {
	mu    sync.Mutex
	state State

	ep Endpoints
	tx Transmitter

	pid      rx.PID
	addr     uint8
	endp     uint8
	response response
}

// NewMachine returns a Machine in the IDLE state.
func NewMachine(ep Endpoints, tx Transmitter) *Machine {
	return &Machine{ep: ep, tx: tx}
}

// State returns the FSM's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token handles a fully decoded, CRC5-validated token packet (SETUP,
// OUT, IN, or SOF). Entry rules: a token not addressed to this device
// is silently ignored; while unconfigured (device address 0) only EP0
// is answered, matching the "endpoint out of range" case the spec
// leaves as an implementation choice.
func (m *Machine) Token(pid rx.PID, addr, endp uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pid == rx.PIDSOF {
		// Left untouched: a SOF arriving mid-transaction (e.g. between a
		// SETUP token and its data stage) must not disturb whatever state
		// that transaction is already in.
		pkg.LogDebug(pkg.ComponentFSM, "SOF ignored")
		return
	}
	m.state = StateCheckTok

	device := m.ep.Address()
	if addr != device {
		pkg.LogDebug(pkg.ComponentFSM, "token addressed to another device", "token_addr", addr, "device_addr", device)
		m.state = StateIdle
		return
	}
	if device == 0 && endp != 0 {
		pkg.LogDebug(pkg.ComponentFSM, "endpoint unreachable while unconfigured", "endp", endp)
		m.state = StateIdle
		return
	}

	m.pid, m.addr, m.endp = pid, addr, endp

	switch pid {
	case rx.PIDSetup:
		m.response = responseACK
		m.ep.OnSetupToken(endp)
		m.state = StateWaitData

	case rx.PIDOut:
		m.ep.OutBeginWrite(endp)
		switch {
		case m.ep.OutStalled(endp):
			m.response = responseSTALL
		case m.ep.OutDrainPending():
			// A prior OUT's done event is still unacknowledged: the spec
			// requires NAKing every endpoint until the host services it.
			m.response = responseNAK
		case m.ep.OutEnabled(endp):
			m.response = responseACK
		default:
			m.response = responseNAK
		}
		m.state = StateWaitData

	case rx.PIDIn:
		m.beginINLocked(endp)

	default:
		pkg.LogWarn(pkg.ComponentFSM, "token with non-token PID", "pid", pid)
		m.state = StateIdle
	}
}

// DataStart marks the beginning of the data packet following a SETUP or
// OUT token, called once its PID byte has been consumed.
func (m *Machine) DataStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateWaitData {
		return
	}
	m.state = StateRecvData
}

// DataByte delivers one payload byte of the data packet. Bytes are
// stored only when the latched response is ACK; a NAK or STALL
// response was already fixed at Token time, matching the reference
// design's "response_pid decided at token, data stored only if ACK".
func (m *Machine) DataByte(b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecvData || m.response != responseACK {
		return
	}
	if m.pid == rx.PIDSetup {
		m.ep.SetupPush(b)
	} else {
		m.ep.OutStageByte(b)
	}
}

// DataEnd completes the data stage. ok reports whether the packet
// passed bit-stuffing, PID-complement, and CRC16 checks; a failure
// aborts the transaction with no handshake transmitted; the host will
// time out and retry.
func (m *Machine) DataEnd(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecvData {
		return
	}
	if !ok {
		m.abortLocked()
		return
	}
	if m.response == responseACK && m.pid != rx.PIDSetup {
		m.ep.OutCommitWrite()
	}
	m.state = StateSendHand
	m.sendHandshakeLocked()
}

// Abort aborts the transaction in progress due to a bit-stuff error or
// a PID-complement mismatch discovered by the caller before the data
// stage would otherwise complete. No handshake is transmitted.
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abortLocked()
}

func (m *Machine) abortLocked() {
	if m.pid == rx.PIDOut {
		m.ep.OutDiscardWrite()
	}
	pkg.LogDebug(pkg.ComponentFSM, "transaction aborted", "state", m.state, "pid", m.pid)
	m.state = StateIdle
}

// Handshake delivers the host's handshake PID in response to a
// transmitted IN data packet. A non-ACK response (never produced by a
// compliant host in this phase) leaves the IN FIFO queued for retry.
func (m *Machine) Handshake(pid rx.PID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateWaitHand {
		return
	}
	if pid == rx.PIDAck {
		m.ep.InCommit(m.endp)
	}
	m.state = StateIdle
}

func (m *Machine) beginINLocked(endp uint8) {
	switch {
	case m.ep.InStalled(endp):
		m.response = responseSTALL
		m.state = StateSendHand
		m.sendHandshakeLocked()
	case m.ep.InQueued(endp):
		m.response = responseACK
		m.state = StateSendData
		m.sendDataLocked(endp)
	default:
		m.response = responseNAK
		m.state = StateSendHand
		m.sendHandshakeLocked()
	}
}

func (m *Machine) sendDataLocked(endp uint8) {
	pid := rx.PIDData0
	if m.ep.InDTB(endp) {
		pid = rx.PIDData1
	}
	var payload []byte
	for {
		b, ok := m.ep.InPopByte()
		if !ok {
			break
		}
		payload = append(payload, b)
	}
	m.tx.SendData(pid, payload)
	m.state = StateWaitHand
}

func (m *Machine) sendHandshakeLocked() {
	var pid rx.PID
	switch m.response {
	case responseACK:
		pid = rx.PIDAck
	case responseNAK:
		pid = rx.PIDNak
	case responseSTALL:
		pid = rx.PIDStall
	}
	m.tx.SendHandshake(pid)
	m.state = StateIdle
}
