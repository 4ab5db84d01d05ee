package atsame5x

import (
	"fmt"
	"strings"

	"github.com/fwtools/atsamflash/internal/bitfield"
	"github.com/fwtools/atsamflash/internal/options"
	"github.com/fwtools/atsamflash/internal/target"
)

// Fuse executes the fuse request of the session options against the
// user row. Writes are read-modify-write over the whole row, since the
// row is the erase granularity of the fuse memory.
func (t *Target) Fuse() error {
	if !t.selected {
		return target.ErrNoSession
	}

	req := t.op.Fuse
	if req == nil {
		return fmt.Errorf("no fuse request in session options")
	}
	if req.Section != 0 {
		return &target.FuseSectionError{Section: req.Section}
	}

	readAll := req.Start == options.ReadAll

	row := make([]byte, userRowSize)
	if err := t.dap.ReadBlock(userRowAddr, row); err != nil {
		return fmt.Errorf("reading user row: %w", err)
	}

	if req.Read {
		if err := t.fuseRead(req, row, readAll); err != nil {
			return err
		}
	}

	if req.Write {
		if err := t.fuseWrite(req, row); err != nil {
			return err
		}
	}

	if req.Verify {
		if err := t.fuseVerify(req, readAll); err != nil {
			return err
		}
	}

	return nil
}

func (t *Target) fuseRead(req *options.Fuse, row []byte, readAll bool) error {
	switch {
	case req.Name != "":
		if err := t.files.Save(req.Name, row); err != nil {
			return fmt.Errorf("saving user row: %w", err)
		}

	case readAll:
		var sb strings.Builder
		for _, b := range row {
			fmt.Fprintf(&sb, "%02x ", b)
		}
		fmt.Printf("Fuses (user row): %s\n", strings.TrimRight(sb.String(), " "))

	default:
		value := bitfield.Extract(row, req.Start, req.End)
		fmt.Printf("Fuses: 0x%x (%d)\n", value, value)
	}

	return nil
}

func (t *Target) fuseWrite(req *options.Fuse, row []byte) error {
	if req.Name != "" {
		size := len(req.Data)
		if size > userRowSize {
			size = userRowSize
		}
		copy(row[:size], req.Data)
	} else {
		bitfield.Apply(row, req.Value, req.Start, req.End)
	}

	if err := t.dap.WriteWord(nvmctrlAddr, userRowAddr); err != nil {
		return err
	}
	if err := t.command(cmdErasePage); err != nil {
		return fmt.Errorf("erasing user row: %w", err)
	}
	if err := t.command(cmdPageBufferClear); err != nil {
		return fmt.Errorf("clearing page buffer: %w", err)
	}

	addr := uint32(userRowAddr)
	offs := 0

	for i := 0; i < userRowSize/userRowPageSize; i++ {
		if err := t.dap.WriteWord(nvmctrlAddr, userRowAddr); err != nil {
			return err
		}
		if err := t.dap.WriteBlock(addr, row[offs:offs+userRowPageSize]); err != nil {
			return fmt.Errorf("loading user row quad word at 0x%x: %w", addr, err)
		}
		if err := t.command(cmdWriteQuadWord); err != nil {
			return fmt.Errorf("writing user row quad word at 0x%x: %w", addr, err)
		}

		addr += userRowPageSize
		offs += userRowPageSize
	}

	return nil
}

func (t *Target) fuseVerify(req *options.Fuse, readAll bool) error {
	row := make([]byte, userRowSize)
	if err := t.dap.ReadBlock(userRowAddr, row); err != nil {
		return fmt.Errorf("re-reading user row: %w", err)
	}

	switch {
	case req.Name != "":
		size := len(req.Data)
		if size > userRowSize {
			size = userRowSize
		}
		for i := 0; i < size; i++ {
			if req.Data[i] != row[i] {
				return &target.FuseVerificationError{
					Index:    i,
					Expected: uint32(req.Data[i]),
					Got:      uint32(row[i]),
				}
			}
		}

	case readAll:
		return target.ErrFuseRangeRequired

	default:
		value := bitfield.Extract(row, req.Start, req.End)
		if req.Value != value {
			return &target.FuseVerificationError{
				Index:    -1,
				Expected: req.Value,
				Got:      value,
			}
		}
	}

	return nil
}
