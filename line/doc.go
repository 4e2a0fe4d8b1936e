// Package line implements the clock/data recovery stage (C1) of the USB
// full-speed PHY pipeline: classifying the raw D+/D- pair into a line
// state, recovering the bit-center sample strobe, and detecting the
// 2.5us SE0 condition that signals a USB bus reset.
//
// It runs in the 48MHz "line" clock domain: [Recovery.Tick] is called once
// per tick and, on average, strobes a valid sample once every four calls.
package line
