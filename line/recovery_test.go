package line

import "testing"

func TestRecoveryValidCadenceNoEdges(t *testing.T) {
	r := NewRecovery()
	var validIdx []int
	for i := 0; i < 20; i++ {
		_, valid, _ := r.Tick(J.Bits())
		if valid {
			validIdx = append(validIdx, i)
		}
	}
	if len(validIdx) < 2 {
		t.Fatalf("expected multiple valid strobes, got %v", validIdx)
	}
	for i := 1; i < len(validIdx); i++ {
		if gap := validIdx[i] - validIdx[i-1]; gap != 4 {
			t.Errorf("valid strobe gap = %d, want 4 (indices %v)", gap, validIdx)
		}
	}
}

func TestRecoveryResyncOnEdge(t *testing.T) {
	r := NewRecovery()

	// Hold J for a few ticks, then transition to K.
	for i := 0; i < 5; i++ {
		r.Tick(J.Bits())
	}
	dp, dn := K.Bits()
	_, valid, _ := r.Tick(dp, dn)
	if valid {
		t.Fatalf("edge tick must not be valid")
	}

	// The tick immediately after an edge must commit the re-sampled state.
	_, valid, _ = r.Tick(dp, dn)
	if !valid {
		t.Fatalf("tick after edge must be valid (re-sampled commit)")
	}

	// Cadence resumes at 4 ticks after resync.
	var validIdx []int
	for i := 0; i < 12; i++ {
		s, v, _ := r.Tick(dp, dn)
		if s != K {
			t.Errorf("tick %d sample = %v, want K", i, s)
		}
		if v {
			validIdx = append(validIdx, i)
		}
	}
	for i := 1; i < len(validIdx); i++ {
		if gap := validIdx[i] - validIdx[i-1]; gap != 4 {
			t.Errorf("post-resync gap = %d, want 4", gap)
		}
	}
}

func TestRecoverySE1Tolerated(t *testing.T) {
	r := NewRecovery()
	for i := 0; i < 8; i++ {
		s, _, _ := r.Tick(J.Bits())
		if s != J {
			t.Fatalf("expected J, got %v", s)
		}
	}
	// A glitch to SE1 must classify without panicking and without
	// corrupting the recovered state once it passes.
	s, _, _ := r.Tick(1, 1)
	if s != SE1 {
		t.Fatalf("expected SE1 classification, got %v", s)
	}
}

func TestRecoveryBusReset(t *testing.T) {
	r := NewRecovery()

	var resetAt = -1
	for i := 0; i < ResetTicks+10; i++ {
		_, _, reset := r.Tick(SE0.Bits())
		if reset {
			if resetAt != -1 {
				t.Fatalf("reset fired more than once: first at %d, again at %d", resetAt, i)
			}
			resetAt = i
		}
	}
	if resetAt != ResetTicks-1 {
		t.Errorf("reset fired at tick %d, want %d", resetAt, ResetTicks-1)
	}

	// Returning to J clears the run; a fresh 2.5us SE0 fires again.
	r.Tick(J.Bits())
	resetAt = -1
	for i := 0; i < ResetTicks+5; i++ {
		_, _, reset := r.Tick(SE0.Bits())
		if reset {
			resetAt = i
		}
	}
	if resetAt != ResetTicks-1 {
		t.Errorf("second reset fired at tick %d, want %d", resetAt, ResetTicks-1)
	}
}
