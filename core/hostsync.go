package core

import "github.com/ardnew/eptri/cdc"

// hostSync wires a representative slice of the host-visible register
// surface (the 7-bit device address) through a clock-domain-crossing
// synchronizer, exercising the cdc package when a Core is built with
// WithHostClockDomain. Only the address register is modeled this way;
// every other host-facing write in this implementation already goes
// through eptri.Registers' own mutex, which gives the same atomicity
// guarantee a per-register BusSync would (see DESIGN.md).
type hostSync struct {
	addr *cdc.BusSync
}

func newHostSync() *hostSync {
	return &hostSync{addr: cdc.NewBusSync(7)}
}

// HostSetAddress applies a SET_ADDRESS write arriving from the host
// domain. With no host clock domain configured it lands immediately;
// otherwise it is only staged, and crosses into the bit domain the next
// time drainHostSync samples it stable.
func (c *Core) HostSetAddress(addr uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hostSync == nil {
		c.registers.SetAddress(addr)
		return
	}
	c.hostSync.addr.Put(uint32(addr))
}

// drainHostSync is the host-domain tick: it samples the address
// synchronizer once and applies whatever value has crossed.
func (c *Core) drainHostSync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hostSync == nil {
		return
	}
	c.registers.SetAddress(uint8(c.hostSync.addr.Sample()))
}
