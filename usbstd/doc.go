// Package usbstd holds the standard USB request and descriptor
// constants a control endpoint's SETUP stage is built from, plus the
// SetupPacket codec for the 8-byte wire form (USB 2.0 Spec Table 9-2
// through 9-6). It has no dependency on the device-controller core:
// it exists so callers building SETUP payloads (tests and any future
// firmware layer above [github.com/ardnew/eptri/eptri]) spell out
// "GET_DESCRIPTOR" rather than a bare 0x06.
package usbstd
