package dap

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/karalabe/hid"
)

// CMSIS-DAP command bytes.
const (
	cmdInfo              = 0x00
	cmdHostStatus        = 0x01
	cmdConnect           = 0x02
	cmdDisconnect        = 0x03
	cmdTransferConfigure = 0x04
	cmdTransfer          = 0x05
	cmdTransferBlock     = 0x06
	cmdWriteAbort        = 0x08
	cmdSWJClock          = 0x11
	cmdSWJSequence       = 0x12
	cmdSWDConfigure      = 0x13
)

const (
	infoPacketSize = 0xff

	connectPortSWD = 0x01

	transferAckOK    = 0x01
	transferAckWait  = 0x02
	transferAckFault = 0x04
)

// Transfer request bits.
const (
	reqAP   = 0x01
	reqRead = 0x02
)

// Debug port registers.
const (
	dpIDCode   = 0x00 // read
	dpAbort    = 0x00 // write
	dpCtrlStat = 0x04
	dpSelect   = 0x08
)

// MEM-AP registers.
const (
	apCSW = 0x00
	apTAR = 0x04
	apDRW = 0x0c
)

const (
	abortClearErrors = 0x0000001e

	ctrlStatPowerReq = 0x50000000 // CDBGPWRUPREQ | CSYSPWRUPREQ
	ctrlStatPowerAck = 0xa0000000 // CDBGPWRUPACK | CSYSPWRUPACK

	// 32-bit accesses, single auto-increment, master debug
	cswWordAutoInc = 0x23000052

	// TAR auto-increment is only guaranteed within a 1 KB page
	autoIncPage = 1024

	swdClockHz = 16000000
)

// Probe is a CMSIS-DAP debug probe attached over USB HID.
type Probe struct {
	dev        *hid.Device
	product    string
	packetSize int
}

// Open enumerates the attached HID devices and opens the first CMSIS-DAP
// probe found, or the one matching the given serial number if set.
func Open(serial string) (*Probe, error) {
	for _, info := range hid.Enumerate(0, 0) {
		if !strings.Contains(info.Product, "CMSIS-DAP") {
			continue
		}
		if serial != "" && info.Serial != serial {
			continue
		}

		dev, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("opening probe %q: %w", info.Product, err)
		}

		probe := &Probe{
			dev:        dev,
			product:    info.Product,
			packetSize: 64,
		}
		if err := probe.init(); err != nil {
			_ = dev.Close()
			return nil, err
		}
		return probe, nil
	}

	return nil, fmt.Errorf("no CMSIS-DAP probe found")
}

// Product returns the probe's USB product string.
func (p *Probe) Product() string {
	return p.product
}

// Close disconnects the debug port and releases the HID device.
func (p *Probe) Close() error {
	_, _ = p.command([]byte{cmdDisconnect})
	_, _ = p.command([]byte{cmdHostStatus, 0x00, 0x00})
	return p.dev.Close()
}

func (p *Probe) init() error {
	resp, err := p.command([]byte{cmdInfo, infoPacketSize})
	if err != nil {
		return fmt.Errorf("reading probe info: %w", err)
	}
	if len(resp) >= 4 && resp[1] == 2 {
		if size := int(binary.LittleEndian.Uint16(resp[2:4])); size > 0 {
			p.packetSize = size
		}
	}

	var clock [5]byte
	clock[0] = cmdSWJClock
	binary.LittleEndian.PutUint32(clock[1:], swdClockHz)
	if err := p.checkedCommand(clock[:]); err != nil {
		return fmt.Errorf("setting clock: %w", err)
	}

	if err := p.checkedCommand([]byte{cmdTransferConfigure, 0x00, 0x80, 0x00, 0x00, 0x00}); err != nil {
		return fmt.Errorf("configuring transfers: %w", err)
	}
	if err := p.checkedCommand([]byte{cmdSWDConfigure, 0x00}); err != nil {
		return fmt.Errorf("configuring swd: %w", err)
	}

	resp, err = p.command([]byte{cmdConnect, connectPortSWD})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	if len(resp) < 2 || resp[1] != connectPortSWD {
		return fmt.Errorf("probe did not switch to swd mode")
	}

	return p.resetLink()
}

// resetLink performs the SWD line reset and JTAG-to-SWD switch sequence,
// then powers up the debug domain and configures the memory access port.
func (p *Probe) resetLink() error {
	seq := []byte{
		cmdSWJSequence, 136,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x9e, 0xe7,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x00,
	}
	if err := p.checkedCommand(seq); err != nil {
		return fmt.Errorf("swd line reset: %w", err)
	}

	idcode, err := p.readReg(0, dpIDCode)
	if err != nil {
		return fmt.Errorf("reading dp idcode: %w", err)
	}
	if idcode == 0 || idcode == 0xffffffff {
		return fmt.Errorf("no debug port present (IDCODE = 0x%08x)", idcode)
	}

	if err := p.writeReg(0, dpAbort, abortClearErrors); err != nil {
		return err
	}
	if err := p.writeReg(0, dpSelect, 0); err != nil {
		return err
	}
	if err := p.writeReg(0, dpCtrlStat, ctrlStatPowerReq); err != nil {
		return err
	}
	for {
		status, err := p.readReg(0, dpCtrlStat)
		if err != nil {
			return err
		}
		if status&ctrlStatPowerAck == ctrlStatPowerAck {
			break
		}
	}

	return p.writeReg(reqAP, apCSW, cswWordAutoInc)
}

// ReadWord reads a single 32-bit word from the target address space.
func (p *Probe) ReadWord(addr uint32) (uint32, error) {
	if err := p.writeReg(reqAP, apTAR, addr); err != nil {
		return 0, err
	}
	return p.readReg(reqAP, apDRW)
}

// WriteWord writes a single 32-bit word to the target address space.
func (p *Probe) WriteWord(addr, value uint32) error {
	if err := p.writeReg(reqAP, apTAR, addr); err != nil {
		return err
	}
	return p.writeReg(reqAP, apDRW, value)
}

// ReadBlock fills data with sequential bytes starting at addr.
func (p *Probe) ReadBlock(addr uint32, data []byte) error {
	if addr%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("block read of %d bytes at 0x%08x is not word aligned", len(data), addr)
	}

	for len(data) > 0 {
		chunk := p.chunkSize(addr, len(data))
		if err := p.transferBlockRead(addr, data[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

// WriteBlock writes data to sequential addresses starting at addr.
func (p *Probe) WriteBlock(addr uint32, data []byte) error {
	if addr%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("block write of %d bytes at 0x%08x is not word aligned", len(data), addr)
	}

	for len(data) > 0 {
		chunk := p.chunkSize(addr, len(data))
		if err := p.transferBlockWrite(addr, data[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

// Sleep pauses the calling goroutine; part of the Client facade so mock
// transports can elide delays.
func (p *Probe) Sleep(d time.Duration) {
	time.Sleep(d)
}

// chunkSize limits a block transfer to the probe packet capacity and to
// the TAR auto-increment page the transfer starts in.
func (p *Probe) chunkSize(addr uint32, remaining int) int {
	max := (p.packetSize - 5) / 4 * 4
	if remaining < max {
		max = remaining
	}
	if untilPage := int(autoIncPage - addr%autoIncPage); untilPage < max {
		max = untilPage
	}
	return max
}

func (p *Probe) transferBlockRead(addr uint32, data []byte) error {
	if err := p.writeReg(reqAP, apTAR, addr); err != nil {
		return err
	}

	words := len(data) / 4
	req := make([]byte, 5)
	req[0] = cmdTransferBlock
	req[1] = 0x00 // DAP index
	binary.LittleEndian.PutUint16(req[2:4], uint16(words))
	req[4] = reqAP | reqRead | apDRW

	resp, err := p.command(req)
	if err != nil {
		return err
	}
	if err := checkBlockResponse(resp, words); err != nil {
		return fmt.Errorf("block read at 0x%08x: %w", addr, err)
	}

	copy(data, resp[4:4+len(data)])
	return nil
}

func (p *Probe) transferBlockWrite(addr uint32, data []byte) error {
	if err := p.writeReg(reqAP, apTAR, addr); err != nil {
		return err
	}

	words := len(data) / 4
	req := make([]byte, 5+len(data))
	req[0] = cmdTransferBlock
	req[1] = 0x00
	binary.LittleEndian.PutUint16(req[2:4], uint16(words))
	req[4] = reqAP | apDRW
	copy(req[5:], data)

	resp, err := p.command(req)
	if err != nil {
		return err
	}
	if err := checkBlockResponse(resp, words); err != nil {
		return fmt.Errorf("block write at 0x%08x: %w", addr, err)
	}
	return nil
}

func checkBlockResponse(resp []byte, words int) error {
	if len(resp) < 4 {
		return fmt.Errorf("short response (%d bytes)", len(resp))
	}
	if ack := resp[3]; ack != transferAckOK {
		return ackError(ack)
	}
	if done := int(binary.LittleEndian.Uint16(resp[1:3])); done != words {
		return fmt.Errorf("transferred %d of %d words", done, words)
	}
	return nil
}

// readReg performs a single DP or AP register read.
func (p *Probe) readReg(port byte, reg byte) (uint32, error) {
	resp, err := p.command([]byte{cmdTransfer, 0x00, 0x01, port | reqRead | reg})
	if err != nil {
		return 0, err
	}
	if len(resp) < 7 || resp[1] != 1 {
		return 0, fmt.Errorf("register read failed (reg 0x%02x)", reg)
	}
	if ack := resp[2]; ack != transferAckOK {
		return 0, ackError(ack)
	}
	return binary.LittleEndian.Uint32(resp[3:7]), nil
}

// writeReg performs a single DP or AP register write.
func (p *Probe) writeReg(port byte, reg byte, value uint32) error {
	req := make([]byte, 8)
	req[0] = cmdTransfer
	req[1] = 0x00
	req[2] = 0x01
	req[3] = port | reg
	binary.LittleEndian.PutUint32(req[4:], value)

	resp, err := p.command(req)
	if err != nil {
		return err
	}
	if len(resp) < 3 || resp[1] != 1 {
		return fmt.Errorf("register write failed (reg 0x%02x)", reg)
	}
	if ack := resp[2]; ack != transferAckOK {
		return ackError(ack)
	}
	return nil
}

func ackError(ack byte) error {
	switch ack {
	case transferAckWait:
		return fmt.Errorf("transfer stalled (WAIT)")
	case transferAckFault:
		return fmt.Errorf("transfer fault (FAULT)")
	default:
		return fmt.Errorf("transfer failed (ack 0x%02x)", ack)
	}
}

// checkedCommand sends a command that answers with a single DAP status
// byte and fails unless the probe reports DAP_OK.
func (p *Probe) checkedCommand(req []byte) error {
	resp, err := p.command(req)
	if err != nil {
		return err
	}
	if len(resp) < 2 || resp[1] != 0x00 {
		return fmt.Errorf("command 0x%02x rejected by probe", req[0])
	}
	return nil
}

// command sends one CMSIS-DAP packet and returns the response packet.
// The response always echoes the command byte first.
func (p *Probe) command(req []byte) ([]byte, error) {
	if len(req) > p.packetSize {
		return nil, fmt.Errorf("command 0x%02x exceeds packet size", req[0])
	}

	// report number 0 followed by a full-size report
	out := make([]byte, p.packetSize+1)
	copy(out[1:], req)
	if _, err := p.dev.Write(out); err != nil {
		return nil, fmt.Errorf("writing hid report: %w", err)
	}

	resp := make([]byte, p.packetSize)
	n, err := p.dev.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("reading hid report: %w", err)
	}
	resp = resp[:n]

	if len(resp) == 0 || resp[0] != req[0] {
		return nil, fmt.Errorf("unexpected response to command 0x%02x", req[0])
	}
	return resp, nil
}
