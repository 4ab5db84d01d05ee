// Package options contains the program options.
package options

import "fmt"

// ReadAll marks a fuse access without a bit range, addressing the
// whole fuse row.
const ReadAll = -1

// Program contains the command line level options of the flasher.
type Program struct {
	Target string // target family to operate on
	Serial string // serial number of the debug probe to use
	File   string // image file to program, verify against or read into

	Erase   bool
	Program bool
	Verify  bool
	Read    bool
	Lock    bool
	Fuse    string // raw fuse operation spec, see cli.ParseFuseSpec

	Offset uint32 // byte offset into flash
	Size   uint32 // number of bytes to read

	Debug bool
	Quiet bool
}

// Operation holds the per-session operation options consumed by the
// target sequencers. A target copies it at selection time, so the
// session stays valid regardless of later changes by the caller.
type Operation struct {
	Offset uint32
	Data   []byte // image buffer for program and verify
	Size   uint32 // read length
	Name   string // destination file for read

	Fuse *Fuse
}

// Fuse describes a single fuse row access.
type Fuse struct {
	Read   bool
	Write  bool
	Verify bool

	Section int

	// Start/End select an inclusive bit range inside the row.
	// Start == ReadAll addresses the whole row instead.
	Start int
	End   int
	Value uint32

	Name string // file backing a whole-row read or write
	Data []byte // whole-row write buffer loaded from Name
}

// Validate checks the operation options against the geometry of the
// selected device. It runs once at selection time.
func (op *Operation) Validate(flashSize, rowSize uint32, fuseRowSize int) error {
	if op.Offset%rowSize != 0 {
		return fmt.Errorf("offset 0x%x is not a multiple of the row size %d", op.Offset, rowSize)
	}
	if op.Offset >= flashSize {
		return fmt.Errorf("offset 0x%x is outside the %d byte flash", op.Offset, flashSize)
	}
	if size := uint32(len(op.Data)); size > 0 && op.Offset+size > flashSize {
		return fmt.Errorf("image of %d bytes at offset 0x%x does not fit the %d byte flash",
			size, op.Offset, flashSize)
	}
	if op.Size > 0 && op.Offset+op.Size > flashSize {
		return fmt.Errorf("read of %d bytes at offset 0x%x exceeds the %d byte flash",
			op.Size, op.Offset, flashSize)
	}

	if op.Fuse == nil {
		return nil
	}
	return op.Fuse.validate(fuseRowSize)
}

func (f *Fuse) validate(rowSize int) error {
	if f.Start == ReadAll {
		return nil
	}

	bits := rowSize * 8
	if f.Start < 0 || f.End < f.Start || f.End >= bits {
		return fmt.Errorf("fuse bit range %d:%d is outside the %d bit fuse row", f.Start, f.End, bits)
	}
	width := f.End - f.Start + 1
	if width > 32 {
		return fmt.Errorf("fuse bit range %d:%d spans %d bits, at most 32 are supported", f.Start, f.End, width)
	}
	if width < 32 && f.Value >= 1<<width {
		return fmt.Errorf("fuse value 0x%x does not fit into %d bits", f.Value, width)
	}
	return nil
}
