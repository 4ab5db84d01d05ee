package atsame5x

import (
	"errors"
	"testing"

	"github.com/fwtools/atsamflash/internal/options"
	"github.com/fwtools/atsamflash/internal/target"
	"github.com/retroenv/retrogolib/assert"
)

func newTestTarget(t *testing.T, client *spyClient) (*Target, *spyStore) {
	t.Helper()

	store := newSpyStore()
	return New(client, store, testLogger(t), nil), store
}

func TestSelect(t *testing.T) {
	client := newSpyClient()
	// SAM E54N19A with silicon revision 3 in bits 8-11
	client.regs[dsuDID] = 0x61840303

	tgt, _ := newTestTarget(t, client)
	assert.NoError(t, tgt.Select(&options.Operation{}))

	assert.Equal(t, "SAM E54N19A", tgt.device.name)

	// the core is halted and reset before identification
	assert.Equal(t, wordWrite{addr: dhcsr, value: dhcsrHalt}, client.writes[0])
	assert.Equal(t, wordWrite{addr: demcr, value: demcrCoreResetTrap}, client.writes[1])
	assert.Equal(t, wordWrite{addr: aircr, value: aircrSysResetReq}, client.writes[2])
}

func TestSelectMaskDropsRevision(t *testing.T) {
	client := newSpyClient()
	// revision nibble f on top of the SAM E54P20A identification
	client.regs[dsuDID] = 0x61840f00

	tgt, _ := newTestTarget(t, client)
	assert.NoError(t, tgt.Select(&options.Operation{}))
	assert.Equal(t, "SAM E54P20A", tgt.device.name)
	assert.Equal(t, uint32(1024*1024), tgt.device.flash)
}

func TestSelectUnknownDevice(t *testing.T) {
	client := newSpyClient()
	client.regs[dsuDID] = 0xdeadbeef

	tgt, _ := newTestTarget(t, client)
	err := tgt.Select(&options.Operation{})

	var notRecognized *target.NotRecognizedError
	assert.True(t, errors.As(err, &notRecognized))
	assert.Equal(t, uint32(0xdeadbeef), notRecognized.DID)
	assert.False(t, tgt.selected)
}

func TestSelectRejectsInvalidOptions(t *testing.T) {
	client := newSpyClient()
	client.regs[dsuDID] = 0x61840000

	tgt, _ := newTestTarget(t, client)
	err := tgt.Select(&options.Operation{Offset: 123}) // not row aligned
	assert.Error(t, err)
	assert.False(t, tgt.selected)
}

func TestSelectCopiesOptions(t *testing.T) {
	client := newSpyClient()
	client.regs[dsuDID] = 0x61840000

	tgt, _ := newTestTarget(t, client)
	op := &options.Operation{Fuse: &options.Fuse{Read: true, Start: options.ReadAll}}
	assert.NoError(t, tgt.Select(op))

	// mutating the caller's options must not affect the session
	op.Offset = 0xffffffff
	op.Fuse.Section = 9
	assert.Equal(t, uint32(0), tgt.op.Offset)
	assert.Equal(t, 0, tgt.op.Fuse.Section)
}

func TestDeselect(t *testing.T) {
	client := newSpyClient()
	client.regs[dsuDID] = 0x61840000

	tgt, _ := newTestTarget(t, client)
	assert.NoError(t, tgt.Select(&options.Operation{}))
	assert.NoError(t, tgt.Deselect())

	last := client.writes[len(client.writes)-1]
	assert.Equal(t, wordWrite{addr: aircr, value: aircrSysResetReq}, last)
	trap := client.writes[len(client.writes)-2]
	assert.Equal(t, wordWrite{addr: demcr, value: 0}, trap)

	// the session is gone
	assert.Equal(t, target.ErrNoSession, tgt.Erase())
}

func TestOperationsRequireSession(t *testing.T) {
	tgt, _ := newTestTarget(t, newSpyClient())

	assert.Equal(t, target.ErrNoSession, tgt.Erase())
	assert.Equal(t, target.ErrNoSession, tgt.Lock())
	assert.Equal(t, target.ErrNoSession, tgt.Program())
	assert.Equal(t, target.ErrNoSession, tgt.Verify())
	assert.Equal(t, target.ErrNoSession, tgt.Read())
	assert.Equal(t, target.ErrNoSession, tgt.Fuse())
}

func TestRevisionLetter(t *testing.T) {
	assert.Equal(t, "A", revisionLetter(0))
	assert.Equal(t, "B", revisionLetter(1))
	assert.Equal(t, "P", revisionLetter(15))
}

func TestLookup(t *testing.T) {
	dev, ok := lookup(0x61840000)
	assert.True(t, ok)
	assert.Equal(t, "SAM E54P20A", dev.name)

	_, ok = lookup(0x12345678)
	assert.False(t, ok)
}
