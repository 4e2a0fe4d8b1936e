// Package cdc provides the optional clock-domain-crossing glue (C16)
// used only when the host register interface runs in a clock domain
// distinct from bit (core.WithHostClockDomain). The default
// configuration collapses host==bit and leaves this package unused but
// present, matching spec §5's "may be identical to bit" option.
package cdc
