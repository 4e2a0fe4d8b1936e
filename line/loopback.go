package line

import (
	"context"
	"sync"
)

// Loopback connects two in-process Line participants back to back, the
// role a real differential pair plays between a host and a device,
// wired here for integration tests instead of to pads (spec §1's Line
// boundary, looped onto itself). Each side's Sample observes whatever
// the other side is currently driving; a side that releases its pads
// (oe=false) is not distinguished from one that was never driven, so an
// idle bus reads as J on both sides, matching the pull-up's resting
// state.
type Loopback struct {
	mu sync.Mutex
	s  [2]drivenState
}

type drivenState struct {
	oe     bool
	dp, dn byte
}

// NewLoopback returns a Loopback with both sides idle (undriven).
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Side returns a Line endpoint for one side of the loopback: 0 or 1.
// Side(0) samples whatever Side(1) drives, and vice versa.
func (l *Loopback) Side(side int) Line {
	if side != 0 && side != 1 {
		panic("line: Loopback.Side takes 0 or 1")
	}
	return &loopbackSide{lb: l, self: side, peer: 1 - side}
}

type loopbackSide struct {
	lb         *Loopback
	self, peer int
}

func (s *loopbackSide) Sample(ctx context.Context) (dp, dn byte, err error) {
	s.lb.mu.Lock()
	defer s.lb.mu.Unlock()
	peer := s.lb.s[s.peer]
	if !peer.oe {
		return 1, 0, nil // J: undriven bus rests at the D+ pull-up
	}
	return peer.dp, peer.dn, nil
}

func (s *loopbackSide) Drive(ctx context.Context, oe bool, dp, dn byte) error {
	s.lb.mu.Lock()
	defer s.lb.mu.Unlock()
	s.lb.s[s.self] = drivenState{oe: oe, dp: dp, dn: dn}
	return nil
}

func (s *loopbackSide) PullupEnable(enable bool) {}

var _ Line = (*loopbackSide)(nil)
