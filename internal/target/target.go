// Package target contains types and functions used for multi target family
// support. It acts as a bridge between the operation dispatch and the
// family specific sequencers.
package target

import (
	"github.com/fwtools/atsamflash/internal/options"
)

// Target is the operation table a device family driver implements.
// Select establishes the session every other operation runs in; calling
// any of them without a selected target fails with ErrNoSession.
// Operations are synchronous and must not be called concurrently.
type Target interface {
	// Select halts the core, identifies the device and stores a copy of
	// the operation options for the session.
	Select(op *options.Operation) error
	// Deselect resumes the core and releases the session. It is safe to
	// call after a failed operation.
	Deselect() error
	// Erase performs a full chip erase, clearing the security bit.
	Erase() error
	// Lock sets the security bit. Takes effect after reset.
	Lock() error
	// Program writes the session's image buffer to flash.
	Program() error
	// Verify compares flash contents against the session's image buffer.
	Verify() error
	// Read reads flash into a buffer and saves it to the session's file.
	Read() error
	// Fuse executes the fuse request of the session options.
	Fuse() error
}

// FileStore persists flash and fuse row images for a target.
type FileStore interface {
	Load(path string) ([]byte, error)
	Save(path string, data []byte) error
}

// Progress is called once per completed work unit of a long running
// operation, one call per flash row or page.
type Progress func()
