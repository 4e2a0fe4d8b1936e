package simhost

import (
	"context"
	"sync"

	"github.com/ardnew/eptri/bitstream"
	"github.com/ardnew/eptri/crc"
	"github.com/ardnew/eptri/line"
	"github.com/ardnew/eptri/nrzi"
	"github.com/ardnew/eptri/pkg"
	"github.com/ardnew/eptri/rx"
	"github.com/ardnew/eptri/tx"
)

// DefaultClockRatio matches core.DefaultClockRatio: four 48MHz line
// ticks per 12MHz bit time.
const DefaultClockRatio = 4

const syncByte = 0x80

// txStep is one queued line-domain tick of transmit output.
type txStep struct {
	oe bool
	s  line.Sample
}

// packet is one fully decoded receive result, delivered to whichever
// goroutine is blocked in WaitPacket.
type packet struct {
	pid     rx.PID
	payload []byte
	crcGood bool
}

// Option configures a Host at construction time.
type Option func(*Host)

// WithClockRatio sets the number of line ticks per bit time used when
// framing a transmitted packet. Default DefaultClockRatio.
func WithClockRatio(n int) Option {
	return func(h *Host) { h.clockRatio = n }
}

// Host is the in-process simulated USB host (see package doc).
type Host struct {
	mu sync.Mutex

	ln         line.Line
	clockRatio int

	stuff     *bitstream.Stuffer
	nrziEnc   *nrzi.Encoder
	txShifter *tx.Shifter
	txQueue   []txStep

	recovery  *line.Recovery
	nrziDec   *nrzi.Decoder
	unstuff   *bitstream.Unstuffer
	detector  *rx.Detector
	rxShifter *rx.Shifter
	header    *rx.HeaderDecoder
	datCRC    *crc.CRC
	inData    bool
	payload   []byte

	recv chan packet

	running bool
	cancel  context.CancelFunc
}

// New returns a Host driving ln, configured by opts.
func New(ln line.Line, opts ...Option) *Host {
	h := &Host{
		ln: ln,

		stuff:     bitstream.NewStuffer(),
		nrziEnc:   nrzi.NewEncoder(),
		txShifter: tx.NewShifter(),

		recovery:  line.NewRecovery(),
		nrziDec:   nrzi.NewDecoder(),
		unstuff:   bitstream.NewUnstuffer(),
		detector:  rx.NewDetector(),
		rxShifter: rx.NewShifter(),
		header:    rx.NewHeaderDecoder(),
		datCRC:    crc.NewData16(),

		recv: make(chan packet, 8),

		clockRatio: DefaultClockRatio,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives Tick in a loop until ctx is cancelled or the line reports
// an error, mirroring core.Core.Run's lifecycle so the two can be
// supervised together by an errgroup in an integration test.
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return pkg.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	h.running = true
	h.cancel = cancel
	h.mu.Unlock()

	pkg.LogInfo(pkg.ComponentHost, "simulated host started")

	var err error
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		default:
			err = h.Tick(ctx)
		}
		if err != nil {
			break
		}
	}

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
	pkg.LogInfo(pkg.ComponentHost, "simulated host stopped", "err", err)
	return err
}

// Stop cancels a running Host's Run loop.
func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return pkg.ErrNotRunning
	}
	h.cancel()
	return nil
}

// Tick advances the host by exactly one line-domain tick.
func (h *Host) Tick(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.txQueue) > 0 {
		return h.driveTick(ctx)
	}
	return h.sampleTick(ctx)
}

func (h *Host) sampleTick(ctx context.Context) error {
	dp, dn, err := h.ln.Sample(ctx)
	if err != nil {
		return err
	}
	sample, valid, _ := h.recovery.Tick(dp, dn)
	if !valid {
		return nil
	}
	bit, se0 := h.nrziDec.Decode(sample)
	h.onBit(bit, se0)
	return nil
}

func (h *Host) onBit(bit byte, se0 bool) {
	start, end, active := h.detector.Put(bit, se0)

	if start {
		h.nrziDec.Reset()
		h.rxShifter.Reset()
		h.header.Start()
		h.inData = false
		return
	}

	if active {
		out, ok, err := h.unstuff.Put(bit)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHost, "bit-stuff error, packet abandoned", "err", err)
			h.inData = false
			return
		}
		if ok {
			if b, full := h.rxShifter.Put(out); full {
				h.onByte(b)
			}
		}
	}

	if end {
		h.onPacketEnd()
	}
}

func (h *Host) onByte(b byte) {
	done, hdr, payload, isPayload, err := h.header.PutByte(b)
	if err != nil {
		pkg.LogDebug(pkg.ComponentHost, "PID complement mismatch, packet abandoned", "err", err)
		h.inData = false
		return
	}

	if isPayload {
		if !h.inData {
			h.inData = true
			h.datCRC.Reset()
			h.payload = h.payload[:0]
		}
		h.datCRC.ShiftByte(payload)
		h.payload = append(h.payload, payload)
		return
	}

	if !done {
		return
	}

	if hdr.PID.Type() == rx.PIDTypeHandshake {
		h.deliver(packet{pid: hdr.PID})
	}
	// A device never sends a token; one arriving here is out of scope
	// for this harness and is simply not delivered.
}

// onPacketEnd finalizes a data packet on the detector's SE0 pulse: the
// header decoder never reports "done" for a data packet, since a data
// packet's length isn't known until the line goes idle (mirrors
// core.Core.onPacketEnd).
func (h *Host) onPacketEnd() {
	if h.inData {
		n := len(h.payload)
		good := h.datCRC.Good()
		var data []byte
		if n >= 2 {
			data = append([]byte(nil), h.payload[:n-2]...)
		}
		h.deliver(packet{pid: h.header.PID(), payload: data, crcGood: good})
	}
	h.inData = false
	h.unstuff.Reset()
}

func (h *Host) deliver(p packet) {
	select {
	case h.recv <- p:
	default:
		pkg.LogWarn(pkg.ComponentHost, "receive queue full, packet dropped")
	}
}

func (h *Host) driveTick(ctx context.Context) error {
	step := h.txQueue[0]
	h.txQueue = h.txQueue[1:]
	if !step.oe {
		return h.ln.Drive(ctx, false, 0, 0)
	}
	dp, dn := step.s.Bits()
	return h.ln.Drive(ctx, true, dp, dn)
}

// SendToken frames and queues a token packet (SETUP/OUT/IN/SOF).
func (h *Host) SendToken(pid rx.PID, addr, endp uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueTX(h.frameToken(pid, addr, endp))
}

// SendData frames and queues a DATA0/DATA1 packet with its CRC16
// trailer.
func (h *Host) SendData(pid rx.PID, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueTX(h.framePacket(pid, payload, true))
}

// SendHandshake frames and queues a handshake packet.
func (h *Host) SendHandshake(pid rx.PID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueTX(h.framePacket(pid, nil, false))
}

// WaitPacket blocks until the device drives a complete handshake or
// data packet, or ctx is done.
func (h *Host) WaitPacket(ctx context.Context) (pid rx.PID, payload []byte, crcGood bool, err error) {
	select {
	case <-ctx.Done():
		return 0, nil, false, ctx.Err()
	case p := <-h.recv:
		return p.pid, p.payload, p.crcGood, nil
	}
}

func (h *Host) enqueueTX(samples []line.Sample) {
	ratio := h.clockRatio
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
	h.txQueue = append(h.txQueue, steps...)
}

// framePacket builds the bit-stuffed, NRZI-encoded sample sequence for
// a data or handshake packet: SYNC, PID, optional payload and CRC16
// trailer, EOP. A standalone twin of core.Core.framePacket since the
// host speaks the identical wire format but owns no fsm.Transmitter.
func (h *Host) framePacket(pid rx.PID, payload []byte, withCRC16 bool) []line.Sample {
	h.stuff.Reset()
	h.nrziEnc.Reset()

	var samples []line.Sample
	emit := func(b byte) {
		h.txShifter.Load(b)
		for {
			bit, byteEmpty := h.txShifter.Shift()
			for {
				out, stalled := h.stuff.Put(bit)
				samples = append(samples, h.nrziEnc.Encode(out))
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
	h.nrziEnc.Reset()
	return samples
}

// frameToken builds the wire form of a token packet: SYNC, PID, the
// packed ADDR/ENDP/CRC5 byte pair, EOP.
func (h *Host) frameToken(pid rx.PID, addr, endp uint8) []line.Sample {
	h.stuff.Reset()
	h.nrziEnc.Reset()

	var samples []line.Sample
	emit := func(b byte) {
		h.txShifter.Load(b)
		for {
			bit, byteEmpty := h.txShifter.Shift()
			for {
				out, stalled := h.stuff.Put(bit)
				samples = append(samples, h.nrziEnc.Encode(out))
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

	crc5 := crc.GenerateToken5(addr, endp)
	var crc5Packed uint8
	for i, bit := range crc5 {
		crc5Packed |= bit << uint(i)
	}
	byte1 := (addr & 0x7F) | ((endp & 0x01) << 7)
	byte2 := ((endp >> 1) & 0x07) | (crc5Packed << 3)
	emit(byte1)
	emit(byte2)

	samples = append(samples, nrzi.EOP[:]...)
	h.nrziEnc.Reset()
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
