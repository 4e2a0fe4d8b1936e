package eptri

// Event is a level-sensitive, enable-gated flag: Pending records that the
// condition has occurred; Enable is a host-controlled mask. The shared
// interrupt line is the OR of Fires() across every event in Registers.
// This splits the "edge event" fields of the host register interface
// (setup.ev, in.ev, out.ev) into their two independently addressable
// halves, the same split the reference CPU interface's event manager
// exposes.
type Event struct {
	Pending bool
	Enable  bool
}

// Raise asserts the event, performed by the handler on the condition
// that defines it (FIFO full, transaction committed, wire reset
// observed).
func (e *Event) Raise() {
	e.Pending = true
}

// Ack clears Pending, performed by the host writing 1 to ev.pending.
func (e *Event) Ack() {
	e.Pending = false
}

// Fires reports whether this event currently contributes to the shared
// interrupt line.
func (e *Event) Fires() bool {
	return e.Pending && e.Enable
}
