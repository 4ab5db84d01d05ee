package atsame5x

import (
	"testing"
	"time"

	"github.com/retroenv/retrogolib/log"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.NewTestLogger(t)
}

// wordWrite is one recorded 32-bit register write.
type wordWrite struct {
	addr  uint32
	value uint32
}

// blockWrite is one recorded block transfer.
type blockWrite struct {
	addr uint32
	data []byte
}

// spyClient is an in-memory register access client. Word reads are
// served from regs with optional per-address value queues, block
// transfers run against a byte backing store defaulting to erased
// flash. All writes are recorded in order.
type spyClient struct {
	regs     map[uint32]uint32
	regQueue map[uint32][]uint32
	mem      map[uint32]byte

	writes      []wordWrite
	blockWrites []blockWrite
	slept       []time.Duration
}

func newSpyClient() *spyClient {
	return &spyClient{
		regs: map[uint32]uint32{
			// the controller is always ready and chip erases finish
			nvmctrlIntflagStatus: nvmctrlStatusReady,
			dsuCtrlStatus:        dsuStatusADone,
		},
		regQueue: map[uint32][]uint32{},
		mem:      map[uint32]byte{},
	}
}

func (c *spyClient) ReadWord(addr uint32) (uint32, error) {
	if queue := c.regQueue[addr]; len(queue) > 0 {
		value := queue[0]
		c.regQueue[addr] = queue[1:]
		return value, nil
	}
	return c.regs[addr], nil
}

func (c *spyClient) WriteWord(addr, value uint32) error {
	c.writes = append(c.writes, wordWrite{addr: addr, value: value})
	return nil
}

func (c *spyClient) ReadBlock(addr uint32, data []byte) error {
	for i := range data {
		b, ok := c.mem[addr+uint32(i)]
		if !ok {
			b = 0xff
		}
		data[i] = b
	}
	return nil
}

func (c *spyClient) WriteBlock(addr uint32, data []byte) error {
	recorded := make([]byte, len(data))
	copy(recorded, data)
	c.blockWrites = append(c.blockWrites, blockWrite{addr: addr, data: recorded})

	for i, b := range data {
		c.mem[addr+uint32(i)] = b
	}
	return nil
}

func (c *spyClient) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
}

// commandWrites returns the values written to the NVM command register.
func (c *spyClient) commandWrites() []uint32 {
	var cmds []uint32
	for _, w := range c.writes {
		if w.addr == nvmctrlCtrlB {
			cmds = append(cmds, w.value)
		}
	}
	return cmds
}

func (c *spyClient) countCommand(cmd uint32) int {
	count := 0
	for _, value := range c.commandWrites() {
		if value == cmd {
			count++
		}
	}
	return count
}

// spyStore records saved files and serves preloaded ones.
type spyStore struct {
	loaded map[string][]byte
	saved  map[string][]byte
}

func newSpyStore() *spyStore {
	return &spyStore{
		loaded: map[string][]byte{},
		saved:  map[string][]byte{},
	}
}

func (s *spyStore) Load(path string) ([]byte, error) {
	return s.loaded[path], nil
}

func (s *spyStore) Save(path string, data []byte) error {
	saved := make([]byte, len(data))
	copy(saved, data)
	s.saved[path] = saved
	return nil
}
