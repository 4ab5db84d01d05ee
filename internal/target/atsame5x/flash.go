package atsame5x

import (
	"fmt"
	"time"

	"github.com/fwtools/atsamflash/internal/target"
	"github.com/retroenv/retrogolib/log"
)

const chipEraseSettle = 100 * time.Millisecond

// Erase performs a full chip erase through the device service unit.
// This is the only operation that clears the security bit.
func (t *Target) Erase() error {
	if !t.selected {
		return target.ErrNoSession
	}

	if err := t.dap.WriteWord(dsuCtrlStatus, dsuCtrlChipErase); err != nil {
		return fmt.Errorf("starting chip erase: %w", err)
	}
	t.dap.Sleep(chipEraseSettle)

	for {
		status, err := t.dap.ReadWord(dsuCtrlStatus)
		if err != nil {
			return fmt.Errorf("polling chip erase: %w", err)
		}
		if status&dsuStatusADone != 0 {
			return nil
		}
	}
}

// Lock sets the security bit. Fire and forget, the hardware gives no
// completion signal for this command.
func (t *Target) Lock() error {
	if !t.selected {
		return target.ErrNoSession
	}
	return t.dap.WriteWord(nvmctrlCtrlA, cmdSetSecurityBit)
}

// Program writes the session image to flash row by row. Each row is
// unlocked and erased, then loaded page by page through the page buffer.
func (t *Target) Program() error {
	if !t.selected {
		return target.ErrNoSession
	}

	buf := t.op.Data
	size := uint32(len(buf))
	addr := uint32(flashAddr) + t.op.Offset

	status, err := t.dap.ReadWord(dsuCtrlStatus)
	if err != nil {
		return fmt.Errorf("reading protection status: %w", err)
	}
	if status&dsuStatusBProt != 0 {
		return target.ErrLocked
	}

	// manual write mode with both cache ways disabled, so a verify pass
	// reads committed flash instead of stale cache lines
	ctrlA := uint32(ctrlAAutoWS | ctrlAWModeMan | ctrlAPRMManual | ctrlACacheDis0 | ctrlACacheDis1)
	if err := t.dap.WriteWord(nvmctrlCtrlA, ctrlA); err != nil {
		return fmt.Errorf("configuring nvm controller: %w", err)
	}

	rows := (size + flashRowSize - 1) / flashRowSize
	t.logger.Debug("Programming flash",
		log.String("device", t.device.name),
		log.Hex("address", addr),
		log.Hex("size", size),
	)

	var offs uint32
	for row := uint32(0); row < rows; row++ {
		if err := t.dap.WriteWord(nvmctrlAddr, addr); err != nil {
			return err
		}
		if err := t.command(cmdUnlockRegion); err != nil {
			return fmt.Errorf("unlocking row at 0x%x: %w", addr, err)
		}
		if err := t.command(cmdEraseBlock); err != nil {
			return fmt.Errorf("erasing row at 0x%x: %w", addr, err)
		}

		rowEnd := uint32(flashAddr) + t.op.Offset + (row+1)*flashRowSize
		for offs < size && addr < rowEnd {
			if err := t.dap.WriteWord(nvmctrlAddr, addr); err != nil {
				return err
			}
			if err := t.command(cmdPageBufferClear); err != nil {
				return fmt.Errorf("clearing page buffer at 0x%x: %w", addr, err)
			}

			if err := t.dap.WriteBlock(addr, page(buf, offs)); err != nil {
				return fmt.Errorf("loading page at 0x%x: %w", addr, err)
			}
			if err := t.command(cmdWritePage); err != nil {
				return fmt.Errorf("writing page at 0x%x: %w", addr, err)
			}

			addr += flashPageSize
			offs += flashPageSize
		}

		t.progress()
	}

	return nil
}

// page returns the flashPageSize bytes of buf starting at offs, padded
// with erased flash bytes past the end of the image.
func page(buf []byte, offs uint32) []byte {
	if int(offs)+flashPageSize <= len(buf) {
		return buf[offs : offs+flashPageSize]
	}

	padded := make([]byte, flashPageSize)
	for i := range padded {
		padded[i] = 0xff
	}
	copy(padded, buf[offs:])
	return padded
}

// Verify compares the flash contents page by page against the session
// image and stops at the first diverging byte.
func (t *Target) Verify() error {
	if !t.selected {
		return target.ErrNoSession
	}

	buf := t.op.Data
	size := uint32(len(buf))
	addr := uint32(flashAddr) + t.op.Offset
	readBuf := make([]byte, flashPageSize)

	var offs uint32
	for size > 0 {
		if err := t.dap.ReadBlock(addr, readBuf); err != nil {
			return fmt.Errorf("reading page at 0x%x: %w", addr, err)
		}

		blockSize := uint32(flashPageSize)
		if size < blockSize {
			blockSize = size
		}

		for i := uint32(0); i < blockSize; i++ {
			if buf[offs+i] != readBuf[i] {
				return &target.VerificationError{
					Addr:     addr + i,
					Expected: buf[offs+i],
					Got:      readBuf[i],
				}
			}
		}

		addr += flashPageSize
		offs += flashPageSize
		size -= blockSize

		t.progress()
	}

	return nil
}

// Read reads the requested flash range page by page and saves it to the
// session's destination file.
func (t *Target) Read() error {
	if !t.selected {
		return target.ErrNoSession
	}

	size := t.op.Size
	addr := uint32(flashAddr) + t.op.Offset

	// read whole pages, trim afterwards
	pages := (size + flashPageSize - 1) / flashPageSize
	buf := make([]byte, pages*flashPageSize)

	for offs := uint32(0); offs < uint32(len(buf)); offs += flashPageSize {
		if err := t.dap.ReadBlock(addr, buf[offs:offs+flashPageSize]); err != nil {
			return fmt.Errorf("reading page at 0x%x: %w", addr, err)
		}
		addr += flashPageSize
		t.progress()
	}

	if err := t.files.Save(t.op.Name, buf[:size]); err != nil {
		return fmt.Errorf("saving read image: %w", err)
	}
	return nil
}
