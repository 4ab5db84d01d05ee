package atsame5x

import (
	"fmt"

	"github.com/fwtools/atsamflash/internal/dap"
	"github.com/fwtools/atsamflash/internal/options"
	"github.com/fwtools/atsamflash/internal/target"
	"github.com/retroenv/retrogolib/log"
)

// Family is the name this driver is dispatched under.
const Family = "atsame5x"

// Flash geometry of the family. The row is the erase granularity, the
// page the write granularity.
const (
	flashAddr     = 0
	flashRowSize  = 8192
	flashPageSize = 512

	userRowAddr     = 0x00804000
	userRowSize     = 512
	userRowPageSize = 16
)

// Cortex-M debug and reset unit registers.
const (
	dhcsr = 0xe000edf0
	demcr = 0xe000edfc
	aircr = 0xe000ed0c

	dhcsrHalt          = 0xa05f0003
	demcrCoreResetTrap = 0x00000001
	aircrSysResetReq   = 0x05fa0004
)

// Device service unit registers.
const (
	dsuCtrlStatus = 0x41002100
	dsuDID        = 0x41002118

	dsuCtrlChipErase = 1 << 4
	dsuStatusADone   = 1 << 8
	dsuStatusBProt   = 1 << 16
)

// NVM controller registers and command words.
const (
	nvmctrlCtrlA         = 0x41004000
	nvmctrlCtrlB         = 0x41004004
	nvmctrlIntflagStatus = 0x41004010
	nvmctrlAddr          = 0x41004014

	nvmctrlStatusReady = 1 << 16

	ctrlAAutoWS    = 1 << 2
	ctrlAWModeMan  = 0 << 4
	ctrlAPRMManual = 3 << 6
	ctrlACacheDis0 = 1 << 14
	ctrlACacheDis1 = 1 << 15

	cmdErasePage       = 0xa500
	cmdEraseBlock      = 0xa501
	cmdWritePage       = 0xa503
	cmdWriteQuadWord   = 0xa504
	cmdUnlockRegion    = 0xa512
	cmdPageBufferClear = 0xa515
	cmdSetSecurityBit  = 0xa516
)

// The mask drops the silicon revision nibble so all revisions of a
// family member match one table entry.
const (
	deviceIDMask   = 0xfffff0ff
	deviceRevShift = 8
	deviceRevMask  = 0xf
)

// device describes one family member of the device table.
type device struct {
	did   uint32
	name  string
	flash uint32
}

var devices = []device{
	{0x61840000, "SAM E54P20A", 1024 * 1024},
	{0x61840001, "SAM E54P19A", 512 * 1024},
	{0x61840002, "SAM E54N20A", 1024 * 1024},
	{0x61840003, "SAM E54N19A", 512 * 1024},
	{0x60060000, "SAM D51P20A", 1024 * 1024},
	{0x60060001, "SAM D51P19A", 512 * 1024},
	{0x60060002, "SAM D51N20A", 1024 * 1024},
	{0x60060003, "SAM D51N19A", 512 * 1024},
	{0x60060004, "SAM D51J20A", 1024 * 1024},
	{0x60060005, "SAM D51J19A", 512 * 1024},
	{0x60060006, "SAM D51G19A", 512 * 1024},
	{0x60060007, "SAM D51G18A", 256 * 1024},
}

func lookup(id uint32) (device, bool) {
	for _, dev := range devices {
		if dev.did == id {
			return dev, true
		}
	}
	return device{}, false
}

func revisionLetter(rev uint32) string {
	return string(rune('A' + rev))
}

// Target drives the flash and fuse sequencers of one attached device.
// A session runs from a successful Select to the matching Deselect;
// operations outside a session fail with target.ErrNoSession.
type Target struct {
	dap      dap.Client
	files    target.FileStore
	logger   *log.Logger
	progress target.Progress

	selected bool
	device   device
	op       options.Operation
}

// New creates a driver instance on top of the given register access
// client. files may be nil if no operation touches the filesystem,
// progress may be nil.
func New(client dap.Client, files target.FileStore, logger *log.Logger, progress target.Progress) *Target {
	if progress == nil {
		progress = func() {}
	}
	return &Target{
		dap:      client,
		files:    files,
		logger:   logger,
		progress: progress,
	}
}

// Select halts the core, reads the device identification register and
// matches it against the device table. On success the session holds a
// copy of the matched descriptor and of the operation options.
func (t *Target) Select(op *options.Operation) error {
	// stop the core and trap it on the coming reset
	if err := t.dap.WriteWord(dhcsr, dhcsrHalt); err != nil {
		return fmt.Errorf("halting core: %w", err)
	}
	if err := t.dap.WriteWord(demcr, demcrCoreResetTrap); err != nil {
		return fmt.Errorf("enabling reset trap: %w", err)
	}
	if err := t.dap.WriteWord(aircr, aircrSysResetReq); err != nil {
		return fmt.Errorf("requesting reset: %w", err)
	}

	did, err := t.dap.ReadWord(dsuDID)
	if err != nil {
		return fmt.Errorf("reading device identification: %w", err)
	}

	id := did & deviceIDMask
	rev := (did >> deviceRevShift) & deviceRevMask

	dev, ok := lookup(id)
	if !ok {
		return &target.NotRecognizedError{DID: did}
	}

	t.logger.Info("Target selected",
		log.String("name", dev.name),
		log.String("revision", revisionLetter(rev)),
	)

	t.device = dev
	t.op = *op
	if op.Fuse != nil {
		fuse := *op.Fuse
		t.op.Fuse = &fuse
	}

	if err := t.op.Validate(dev.flash, flashRowSize, userRowSize); err != nil {
		t.op = options.Operation{}
		return err
	}

	t.selected = true
	return nil
}

// Deselect clears the reset trap, resets the device to resume normal
// execution and releases the session. Best effort, safe to call after a
// failed operation.
func (t *Target) Deselect() error {
	t.selected = false
	t.op = options.Operation{}

	if err := t.dap.WriteWord(demcr, 0x00000000); err != nil {
		return fmt.Errorf("clearing reset trap: %w", err)
	}
	if err := t.dap.WriteWord(aircr, aircrSysResetReq); err != nil {
		return fmt.Errorf("resetting device: %w", err)
	}
	return nil
}

// command issues an NVM controller command and blocks until the
// controller reports ready. The hardware has no failure signal, an
// unresponsive device hangs here just like it hangs the real bus.
func (t *Target) command(cmd uint32) error {
	if err := t.dap.WriteWord(nvmctrlCtrlB, cmd); err != nil {
		return err
	}
	return t.waitReady()
}

func (t *Target) waitReady() error {
	for {
		status, err := t.dap.ReadWord(nvmctrlIntflagStatus)
		if err != nil {
			return err
		}
		if status&nvmctrlStatusReady != 0 {
			return nil
		}
	}
}
