// Package eptri implements the CPU-facing register surface of the
// device controller (C13 SETUP handler, C14 IN handler, C15 OUT
// handler): three small FIFOs plus per-endpoint stall/enable/queued/dtb
// bitmaps, addressed the way a host processor would through a
// register-access interface (8-bit fields, strobed reads/writes,
// level-sensitive events OR'd onto a shared interrupt line).
//
// The name and register shape mirror the reference implementation's
// "eptri" CPU interface: one tri-FIFO block (setup/in/out) rather than
// one FIFO pair per configured endpoint.
package eptri
