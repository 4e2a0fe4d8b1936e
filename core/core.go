// Package core wires the leaf packages (line, nrzi, bitstream, rx, tx,
// crc, fsm, eptri) into a single USB 1.1 full-speed device controller:
// Core plays the role the teacher's device.Stack plays for a class-level
// USB device, except the thing being driven one tick at a time is the
// wire itself rather than a transfer queue.
package core

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/eptri/bitstream"
	"github.com/ardnew/eptri/crc"
	"github.com/ardnew/eptri/eptri"
	"github.com/ardnew/eptri/fsm"
	"github.com/ardnew/eptri/line"
	"github.com/ardnew/eptri/nrzi"
	"github.com/ardnew/eptri/pkg"
	"github.com/ardnew/eptri/rx"
	"github.com/ardnew/eptri/tx"
)

// DefaultClockRatio is the number of 48MHz line ticks per 12MHz bit
// time, the stock full-speed oversampling factor.
const DefaultClockRatio = 4

// syncByte is the SYNC field's wire byte: 7 zeros then a 1, shifted LSB
// first, the standard USB value 0x80.
const syncByte = 0x80

// packetKind tracks what, if anything, is in flight between a packet's
// start pulse and its end pulse, so a mid-packet bit-stuff or PID error
// knows whether the transaction FSM has a data stage to abort.
type packetKind int

const (
	packetNone packetKind = iota
	packetData
)

// txStep is one 48MHz tick's worth of queued transmit output: either a
// line sample to drive, or a release (oe=false) marking the end of a
// framed packet.
type txStep struct {
	oe bool
	s  line.Sample
}

// Core is the synchronous pipeline described by spec §2/§4: one Tick
// call per 48MHz line-domain edge, fanning out to the bit-domain
// decoders on every valid recovered sample and to the transaction FSM on
// every decoded byte.
type Core struct {
	mu sync.Mutex

	ln line.Line

	recovery *line.Recovery
	nrziDec  *nrzi.Decoder
	nrziEnc  *nrzi.Encoder
	unstuff  *bitstream.Unstuffer
	stuff    *bitstream.Stuffer

	detector  *rx.Detector
	rxShifter *rx.Shifter
	header    *rx.HeaderDecoder
	datCRC    *crc.CRC

	txShifter *tx.Shifter
	txQueue   []txStep

	registers *eptri.Registers
	ep        fsm.Endpoints
	machine   *fsm.Machine

	kind packetKind

	clockRatio    int
	addressFilter func(addr uint8) bool
	pendingAddr   uint8

	hostSync  *hostSync
	hostTick  chan struct{}
	tickCount int

	running bool
	cancel  context.CancelFunc
}

// hostTickRatio is the number of line-domain ticks between host-register
// synchronizer drains when a host clock domain is configured, an
// arbitrary but plausible sub-multiple of the bit clock.
const hostTickRatio = DefaultClockRatio * 8

// Option configures a Core at construction time.
type Option func(*Core)

// WithClockRatio sets the number of line-domain (48MHz) ticks per
// bit-domain (12MHz) tick used when framing a transmitted packet.
// Default DefaultClockRatio.
func WithClockRatio(n int) Option {
	return func(c *Core) { c.clockRatio = n }
}

// WithAddressFilter overrides the device-address comparison the
// transaction FSM uses to accept a token, accepting any address for
// which filter reports true in addition to the address configured by a
// prior SET_ADDRESS. Intended for test harnesses that want a Core to
// answer to more than one address; production use leaves this unset and
// relies solely on eptri.Registers.SetAddress.
func WithAddressFilter(filter func(addr uint8) bool) Option {
	return func(c *Core) { c.addressFilter = filter }
}

// WithHostClockDomain wires a cdc.BusSync synchronizer between the
// host-visible device-address register and the bit domain (see
// hostsync.go), for a core modeling a host interface clocked
// independently of the USB bit clock (spec §5). No other register is
// synchronized and cdc.PulseSync is not used. Left unset, host and bit are the same domain and the
// cdc package goes unused, relying on eptri.Registers' own mutex for
// atomicity instead (see DESIGN.md).
func WithHostClockDomain(enable bool) Option {
	return func(c *Core) {
		if enable {
			c.hostSync = newHostSync()
			c.hostTick = make(chan struct{}, 1)
		} else {
			c.hostSync = nil
			c.hostTick = nil
		}
	}
}

// New returns a Core driving ln, configured by opts.
func New(ln line.Line, opts ...Option) *Core {
	c := &Core{
		ln: ln,

		recovery: line.NewRecovery(),
		nrziDec:  nrzi.NewDecoder(),
		nrziEnc:  nrzi.NewEncoder(),
		unstuff:  bitstream.NewUnstuffer(),
		stuff:    bitstream.NewStuffer(),

		detector:  rx.NewDetector(),
		rxShifter: rx.NewShifter(),
		header:    rx.NewHeaderDecoder(),
		datCRC:    crc.NewData16(),

		txShifter: tx.NewShifter(),

		registers: eptri.NewRegisters(),

		clockRatio: DefaultClockRatio,
	}
	c.ep = c.registers
	for _, opt := range opts {
		opt(c)
	}
	if c.addressFilter != nil {
		c.ep = &addressView{Registers: c.registers, core: c}
	}
	c.machine = fsm.NewMachine(c.ep, c)
	return c
}

// Registers exposes the host-visible register surface (spec §6).
func (c *Core) Registers() *eptri.Registers { return c.registers }

// addressView overrides fsm.Endpoints.Address so a configured
// WithAddressFilter can accept tokens addressed to more than the single
// value eptri.Registers.SetAddress currently holds.
type addressView struct {
	*eptri.Registers
	core *Core
}

func (a *addressView) Address() uint8 {
	if a.core.addressFilter != nil && a.core.addressFilter(a.core.pendingAddr) {
		return a.core.pendingAddr
	}
	return a.Registers.Address()
}

var _ fsm.Endpoints = (*eptri.Registers)(nil)
var _ fsm.Endpoints = (*addressView)(nil)
var _ fsm.Transmitter = (*Core)(nil)

// Run drives Tick in a loop until ctx is cancelled or the line reports
// an error, using errgroup to additionally supervise the host-domain
// register synchronizer drain when WithHostClockDomain is configured.
func (c *Core) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return pkg.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	c.ln.PullupEnable(true)
	pkg.LogInfo(pkg.ComponentLine, "core started")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := c.Tick(ctx); err != nil {
				return err
			}
		}
	})

	if c.hostSync != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-c.hostTick:
					c.drainHostSync()
				}
			}
		})
	}

	err := g.Wait()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.ln.PullupEnable(false)
	pkg.LogInfo(pkg.ComponentLine, "core stopped", "err", err)

	return err
}

// Stop cancels a running Core's Run loop.
func (c *Core) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return pkg.ErrNotRunning
	}
	c.cancel()
	return nil
}

// Tick advances the core by exactly one 48MHz line-domain edge: it
// drains a queued transmit step if one is pending, otherwise samples the
// line and runs the receive pipeline.
func (c *Core) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hostTick != nil {
		c.tickCount++
		if c.tickCount >= hostTickRatio {
			c.tickCount = 0
			select {
			case c.hostTick <- struct{}{}:
			default:
			}
		}
	}

	if len(c.txQueue) > 0 {
		return c.driveTick(ctx)
	}
	return c.sampleTick(ctx)
}

func (c *Core) sampleTick(ctx context.Context) error {
	dp, dn, err := c.ln.Sample(ctx)
	if err != nil {
		return err
	}

	sample, valid, reset := c.recovery.Tick(dp, dn)
	if reset {
		c.onReset()
	}
	if !valid {
		return nil
	}

	bit, se0 := c.nrziDec.Decode(sample)
	c.onBit(bit, se0)
	return nil
}

// onReset applies the §4.16 bus-reset invariant: every stage re-arms to
// its power-up state and any transaction in flight is abandoned.
func (c *Core) onReset() {
	pkg.LogInfo(pkg.ComponentLine, "bus reset detected")
	c.registers.OnWireReset()
	c.detector.Reset()
	c.unstuff.Reset()
	c.rxShifter.Reset()
	c.nrziDec.Reset()
	c.kind = packetNone
	c.txQueue = nil
}

// onBit runs one decoded bit (plus its se0 side channel) through the
// packet detector, bit unstuffer, and RX shifter in turn.
func (c *Core) onBit(bit byte, se0 bool) {
	start, end, active := c.detector.Put(bit, se0)

	if start {
		// The bit that completes SYNC terminates the SYNC field itself;
		// it is not the first bit of the PID byte that follows.
		c.nrziDec.Reset()
		c.rxShifter.Reset()
		c.header.Start()
		c.kind = packetNone
		return
	}

	if active {
		out, ok, err := c.unstuff.Put(bit)
		if err != nil {
			pkg.LogDebug(pkg.ComponentRX, "bit-stuff error, packet abandoned", "err", err)
			if c.kind == packetData {
				c.machine.Abort()
			}
			c.kind = packetNone
			return
		}
		if ok {
			if b, full := c.rxShifter.Put(out); full {
				c.onByte(b)
			}
		}
	}

	if end {
		c.onPacketEnd()
	}
}

// onByte runs one assembled byte through the header decoder, dispatching
// a completed token or handshake to the transaction FSM and forwarding
// data-packet payload bytes (which include the trailing CRC16, per the
// eptri FIFOs' documented contents) to it one at a time.
func (c *Core) onByte(b byte) {
	done, hdr, payload, isPayload, err := c.header.PutByte(b)
	if err != nil {
		pkg.LogDebug(pkg.ComponentRX, "PID complement mismatch, packet abandoned", "err", err)
		if c.kind == packetData {
			c.machine.Abort()
		}
		c.kind = packetNone
		return
	}

	if isPayload {
		if c.kind == packetNone {
			c.kind = packetData
			c.datCRC.Reset()
			c.machine.DataStart()
		}
		c.datCRC.ShiftByte(payload)
		c.machine.DataByte(payload)
		return
	}

	if !done {
		return
	}

	switch hdr.PID.Type() {
	case rx.PIDTypeToken:
		if !tokenCRC5Good(hdr) {
			pkg.LogDebug(pkg.ComponentRX, "CRC5 mismatch, token dropped", "addr", hdr.Addr, "endp", hdr.Endp)
			return
		}
		c.pendingAddr = hdr.Addr
		c.machine.Token(hdr.PID, hdr.Addr, hdr.Endp)

	case rx.PIDTypeHandshake:
		c.machine.Handshake(hdr.PID)

	default:
		pkg.LogWarn(pkg.ComponentRX, "reserved PID type, packet dropped", "pid", hdr.PID)
	}
}

// tokenCRC5Good reports whether hdr's received CRC5 field matches the
// one computed from its address and endpoint.
func tokenCRC5Good(hdr rx.Header) bool {
	want := crc.GenerateToken5(hdr.Addr, hdr.Endp)
	var packed uint8
	for i, bit := range want {
		packed |= bit << uint(i)
	}
	return packed == hdr.CRC5
}

// onPacketEnd finalizes the packet that the detector's SE0 just closed.
func (c *Core) onPacketEnd() {
	if c.kind == packetData {
		c.machine.DataEnd(c.datCRC.Good())
	}
	c.kind = packetNone
	c.unstuff.Reset()
}

// driveTick pops and presents one queued transmit step.
func (c *Core) driveTick(ctx context.Context) error {
	step := c.txQueue[0]
	c.txQueue = c.txQueue[1:]

	if !step.oe {
		return c.ln.Drive(ctx, false, 0, 0)
	}
	dp, dn := step.s.Bits()
	return c.ln.Drive(ctx, true, dp, dn)
}

// SendHandshake implements fsm.Transmitter. It is always called from
// within the same Tick call that is driving the transaction FSM, so no
// locking is needed beyond what Tick already holds.
func (c *Core) SendHandshake(pid rx.PID) {
	c.enqueueTX(c.framePacket(pid, nil, false))
}

// SendData implements fsm.Transmitter.
func (c *Core) SendData(pid rx.PID, payload []byte) {
	c.enqueueTX(c.framePacket(pid, payload, true))
}

// enqueueTX expands one bit time per sample into clockRatio line ticks
// and appends a release step so the pads tri-state once the framed
// packet has fully gone out.
func (c *Core) enqueueTX(samples []line.Sample) {
	ratio := c.clockRatio
	if ratio <= 0 {
		ratio = DefaultClockRatio
	}
	steps := make([]txStep, 0, len(samples)*ratio+1)
	for _, s := range samples {
		for i := 0; i < ratio; i++ {
			steps = append(steps, txStep{oe: true, s: s})
		}
	}
	steps = append(steps, txStep{oe: false})
	c.txQueue = append(c.txQueue, steps...)
}

// framePacket builds the complete bit-stuffed, NRZI-encoded line-sample
// sequence for one packet: SYNC, PID, optional payload and CRC16
// trailer, and EOP. The framing decision runs synchronously rather than
// one call per real tick (an intentional simplification of the
// cycle-accurate TX timing model, see DESIGN.md); enqueueTX is what
// actually paces it back out onto the line domain.
func (c *Core) framePacket(pid rx.PID, payload []byte, withCRC16 bool) []line.Sample {
	c.stuff.Reset()
	c.nrziEnc.Reset()

	var samples []line.Sample
	emit := func(b byte) {
		c.txShifter.Load(b)
		for {
			bit, byteEmpty := c.txShifter.Shift()
			for {
				out, stalled := c.stuff.Put(bit)
				samples = append(samples, c.nrziEnc.Encode(out))
				if !stalled {
					break
				}
			}
			if byteEmpty {
				break
			}
		}
	}

	emit(syncByte)
	emit(rx.EncodePIDByte(pid))
	for _, b := range payload {
		emit(b)
	}
	if withCRC16 {
		for _, b := range packBits(crc.GenerateData16(payload)) {
			emit(b)
		}
	}

	samples = append(samples, nrzi.EOP[:]...)
	c.nrziEnc.Reset()
	return samples
}

// packBits packs a slice of 0/1 bytes into LSB-first-per-byte wire
// bytes, the inverse of how tx.Shifter.Shift unpacks a loaded byte.
func packBits(bits []byte) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
