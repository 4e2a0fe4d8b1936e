package rx

import "testing"

// feed replays a sequence of 0/1 bits (no SE0) through a fresh Detector,
// returning the index of the start pulse or -1.
func feed(bits []byte) (startAt int) {
	d := NewDetector()
	for i, b := range bits {
		start, _, _ := d.Put(b, false)
		if start {
			return i
		}
	}
	return -1
}

func TestDetectorSyncStartsOnTrailingOne(t *testing.T) {
	// 5 zeros then a 1.
	bits := []byte{0, 0, 0, 0, 0, 1}
	if at := feed(bits); at != 5 {
		t.Fatalf("start at %d, want 5", at)
	}
}

func TestDetectorToleratesLongerZeroRun(t *testing.T) {
	bits := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	if at := feed(bits); at != 7 {
		t.Fatalf("start at %d, want 7", at)
	}
}

func TestDetectorShortZeroRunDoesNotStart(t *testing.T) {
	bits := []byte{0, 0, 0, 1}
	if at := feed(bits); at != -1 {
		t.Fatalf("unexpected start at %d", at)
	}
}

func TestDetectorInterruptedRunRestartsCount(t *testing.T) {
	// A short run broken by a 1, then a valid run.
	bits := []byte{0, 0, 1, 0, 0, 0, 0, 0, 1}
	if at := feed(bits); at != 8 {
		t.Fatalf("start at %d, want 8", at)
	}
}

func TestDetectorActiveUntilSE0(t *testing.T) {
	d := NewDetector()
	for _, b := range []byte{0, 0, 0, 0, 0, 1} {
		d.Put(b, false)
	}
	if !d.Active() {
		t.Fatal("detector must be active after pkt_start")
	}
	// Payload bits keep it active.
	for i := 0; i < 16; i++ {
		_, end, active := d.Put(byte(i % 2), false)
		if end {
			t.Fatal("unexpected pkt_end mid-payload")
		}
		if !active {
			t.Fatal("detector must stay active mid-payload")
		}
	}
	_, end, active := d.Put(0, true)
	if !end {
		t.Fatal("SE0 must assert pkt_end")
	}
	if active {
		t.Fatal("detector must not be active after pkt_end")
	}
}

func TestDetectorSE0DuringIdleIsNoop(t *testing.T) {
	d := NewDetector()
	d.Put(0, false)
	d.Put(0, false)
	_, end, active := d.Put(0, true)
	if end {
		t.Fatal("SE0 before any packet started must not emit pkt_end")
	}
	if active {
		t.Fatal("detector must remain idle")
	}
}
