package target

import (
	"errors"
	"fmt"
)

// ErrNoSession indicates an operation was invoked without a selected target.
var ErrNoSession = errors.New("no target selected")

// ErrLocked indicates the device security bit is set; flash cannot be
// programmed until a chip erase clears it.
var ErrLocked = errors.New("device is locked, perform a chip erase before programming")

// ErrFuseRangeRequired indicates a fuse verify was requested without a bit
// range or a reference file, leaving nothing to compare against.
var ErrFuseRangeRequired = errors.New("please specify a fuse bit range for verification")

// NotRecognizedError indicates the device identification value matched no
// device table entry.
type NotRecognizedError struct {
	DID uint32
}

func (e *NotRecognizedError) Error() string {
	return fmt.Sprintf("unknown target device (DSU_DID = 0x%08x)", e.DID)
}

// VerificationError indicates a flash byte mismatch between the image and
// the device contents.
type VerificationError struct {
	Addr     uint32
	Expected byte
	Got      byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed at address 0x%x: expected 0x%02x, read 0x%02x",
		e.Addr, e.Expected, e.Got)
}

// FuseSectionError indicates a fuse request for a section the target does
// not have.
type FuseSectionError struct {
	Section int
}

func (e *FuseSectionError) Error() string {
	return fmt.Sprintf("unsupported fuse section %d", e.Section)
}

// FuseVerificationError indicates a fuse row mismatch after a write.
// Index is the byte index for whole-row compares and -1 for bit field
// compares.
type FuseVerificationError struct {
	Index    int
	Expected uint32
	Got      uint32
}

func (e *FuseVerificationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("fuse verification failed: byte %d expected 0x%02x, got 0x%02x",
			e.Index, e.Expected, e.Got)
	}
	return fmt.Sprintf("fuse verification failed: expected 0x%x (%d), got 0x%x (%d)",
		e.Expected, e.Expected, e.Got, e.Got)
}
