package line

import "context"

// Line is the boundary between the core and the physical pads. It is
// deliberately minimal: pad tri-stating, pull-up electrical behavior, and
// any analog front end are external collaborators specified only at this
// interface (spec section 1).
//
// Exactly one of Sample or Drive is called per 48MHz tick by core.Core's
// Tick (or an equivalent driver loop), depending on whether the core is
// transmitting; a single call to Sample must not block waiting on Drive
// or vice versa.
type Line interface {
	// Sample returns the raw (D+, D-) pair for the current tick.
	Sample(ctx context.Context) (dp, dn byte, err error)

	// Drive presents the given (D+, D-) pair for the current tick. When oe
	// is false the pads must release (high impedance) and dp/dn are
	// ignored.
	Drive(ctx context.Context, oe bool, dp, dn byte) error

	// PullupEnable attaches or detaches the 1.5kOhm D+ pull-up that
	// signals full-speed attach to the host.
	PullupEnable(enable bool)
}
