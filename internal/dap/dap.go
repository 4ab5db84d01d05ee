// Package dap provides register and memory access to a debug target
// through a debug access port probe.
package dap

import "time"

// Client is the register access facade the target sequencers run on.
// Implementations map the calls onto a concrete debug transport.
type Client interface {
	// ReadWord reads a single 32-bit word from the target address space.
	ReadWord(addr uint32) (uint32, error)
	// WriteWord writes a single 32-bit word to the target address space.
	WriteWord(addr, value uint32) error
	// ReadBlock fills data with sequential bytes starting at addr.
	// addr and len(data) must be word aligned.
	ReadBlock(addr uint32, data []byte) error
	// WriteBlock writes data to sequential addresses starting at addr.
	// addr and len(data) must be word aligned.
	WriteBlock(addr uint32, data []byte) error
	// Sleep pauses for the given duration, letting the target settle.
	Sleep(d time.Duration)
}
