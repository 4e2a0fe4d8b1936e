package line

// Sample is the instantaneous classification of the differential D+/D-
// pair. SE1 (both lines high) is electrically illegal but must be
// tolerated without corrupting recovery state.
type Sample uint8

// Line states (USB 2.0 Spec Table 7-2, full-speed signaling levels).
const (
	J   Sample = iota // Full-speed idle: D+ high, D- low
	K                 // Full-speed opposite: D+ low, D- high
	SE0               // Single-ended zero: both lines low (EOP, reset)
	SE1               // Single-ended one: both lines high (illegal)
)

// String returns a human-readable line state name.
func (s Sample) String() string {
	switch s {
	case J:
		return "J"
	case K:
		return "K"
	case SE0:
		return "SE0"
	case SE1:
		return "SE1"
	default:
		return "?"
	}
}

// Classify maps a raw (D+, D-) bit pair to a line [Sample].
func Classify(dp, dn byte) Sample {
	switch {
	case dp != 0 && dn == 0:
		return J
	case dp == 0 && dn != 0:
		return K
	case dp == 0 && dn == 0:
		return SE0
	default:
		return SE1
	}
}

// Bits returns the raw (D+, D-) pair that encodes s. SE1 is returned as
// (1, 1) even though no component of this core ever drives it.
func (s Sample) Bits() (dp, dn byte) {
	switch s {
	case J:
		return 1, 0
	case K:
		return 0, 1
	case SE0:
		return 0, 0
	default:
		return 1, 1
	}
}
