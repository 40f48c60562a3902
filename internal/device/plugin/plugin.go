/*
 * yams - External plugin bridge device
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package plugin bridges memory-mapped I/O to an external process across
// a stream socket, one 32-bit network-order command word at a time, per
// SPEC_FULL.md §4.5. A single socket carries several devices multiplexed
// by tag: Connect performs the INIT handshake and reads back one
// PLUGIO_REPLY_DEVICE record per tag until the LAST flag, then New wraps
// each tag as its own device.Device. On any protocol violation the whole
// connection is declared fatal; there is no attempt to recover.
package plugin

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/yams-go/yams/internal/device"
)

// Command words, core -> plugin.
const (
	cmdInit   uint32 = 1
	cmdMMAP   uint32 = 3
	cmdPortR  uint32 = 10
	cmdPortW  uint32 = 11
	cmdDataR  uint32 = 12
	cmdDataW  uint32 = 13
	cmdADelay uint32 = 14
	cmdAlarm  uint32 = 15
)

// Reply words, plugin -> core. replyDevice only appears during Connect.
const (
	replyDevice uint32 = 2
	replyOK     uint32 = 100
	replyWord   uint32 = 101
	replyData   uint32 = 102
	replyDelay  uint32 = 103
	replyIRQ    uint32 = 104
	replyCPUIRQ uint32 = 105
	replyCLIRQ  uint32 = 106
	replyDMAW   uint32 = 107
	replyDMAR   uint32 = 108
	replyTimer  uint32 = 109
)

// Command-word flag bits (top byte).
const (
	flagLast    uint32 = 1 << 31
	flagAsync   uint32 = 1 << 30
	flagWordsLE uint32 = 1 << 29
)

func cmdOf(word uint32) uint32 { return (word >> 8) & 0xFF }
func tagOf(word uint32) uint32 { return (word >> 16) & 0xFF }
func cpuOf(word uint32) uint32 { return word & 0xFF }

func makeCmd(flags, tag, cmd, cpu uint32) uint32 {
	return flags | cpu | (tag << 16) | (cmd << 8)
}

// ProtocolError is fatal: per spec, any malformed frame or lost
// connection terminates the simulator outright.
type ProtocolError struct {
	Tag uint32
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("plugin protocol violation (tag %d): %s", e.Tag, e.Msg)
}

// DeviceInfo is one tagged device enumerated during the INIT handshake.
type DeviceInfo struct {
	Tag      uint32
	TypeCode uint16
	Vendor   [8]byte
	IRQ      int
	NPorts   int
	MMAPSize uint32
}

// conn is the shared socket state a Connect call hands to every Plugin
// built from it, so writes from different tags still interleave onto one
// net.Conn without corrupting a partially-written command word.
type conn struct {
	nc      net.Conn
	wordsLE bool
	fatal   error
}

func (c *conn) writeWords(words ...uint32) error {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint32(buf[4*i:], w)
	}
	_, err := c.nc.Write(buf)
	return err
}

func (c *conn) writeBytes(b []byte) error {
	_, err := c.nc.Write(b)
	return err
}

func (c *conn) readWord() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.nc, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (c *conn) readBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.nc, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Connect performs the INIT handshake on nc (irqBase is this socket's
// configured IRQ line, async requests the plugin route its unsolicited
// events back non-blocking, options is the free-form per-socket config
// string) and enumerates the tagged devices the remote offers.
func Connect(nc net.Conn, numCPUs int, memSize uint32, irqBase int, async bool, options string) (*conn, []DeviceInfo, error) {
	c := &conn{nc: nc}

	flags := uint32(0)
	if async {
		flags |= flagAsync
	}
	// We always speak/expect big-endian words on the wire. The INIT word
	// carries only the async flag: flagWordsLE is never set, so the remote
	// is not told the guest's memory byte order.
	if err := c.writeWords(makeCmd(flags, 0, cmdInit, 0)); err != nil {
		return nil, nil, err
	}
	if err := c.writeWords(uint32(numCPUs), memSize, uint32(irqBase)); err != nil {
		return nil, nil, err
	}
	optBytes := []byte(options)
	if err := c.writeWords(uint32(len(optBytes))); err != nil {
		return nil, nil, err
	}
	if len(optBytes) > 0 {
		if err := c.writeBytes(optBytes); err != nil {
			return nil, nil, err
		}
	}

	var infos []DeviceInfo
	for {
		word, err := c.readWord()
		if err != nil {
			return nil, nil, err
		}
		if cmdOf(word) != replyDevice {
			return nil, nil, &ProtocolError{Tag: tagOf(word), Msg: "expected DEVICE reply during INIT"}
		}
		rest, err := c.readBytes(24) // type, nports, irq, vendor[8], mmap
		if err != nil {
			return nil, nil, err
		}
		info := DeviceInfo{
			Tag:      tagOf(word),
			TypeCode: uint16(binary.BigEndian.Uint32(rest[0:4])),
			NPorts:   int(binary.BigEndian.Uint32(rest[4:8])),
			IRQ:      int(int32(binary.BigEndian.Uint32(rest[8:12]))),
			MMAPSize: binary.BigEndian.Uint32(rest[20:24]),
		}
		copy(info.Vendor[:], rest[12:20])
		infos = append(infos, info)
		if word&flagLast != 0 {
			break
		}
	}
	return c, infos, nil
}

// Plugin is one tagged device multiplexed over a shared plugin socket.
type Plugin struct {
	sys  device.System
	desc device.Descriptor
	c    *conn
	tag  uint32

	mmapBase uint32
	mmapSize uint32

	delayCycle uint64
	delayArmed bool
	alarmCycle uint64
	alarmArmed bool
	clockHz    uint64

	irqPending  bool
	irqLine     int
	irqCPU      int
	irqExplicit bool // set by a CPUIRQ reply naming its own target CPU
}

// New wraps one tag from a Connect'd socket as a device.Device.
// portBase/portLength describe this tag's port window; mmapBase/mmapSize
// (both zero if none) describe its slice of the plugin MMAP region.
func New(sys device.System, c *conn, info DeviceInfo, portBase, portLength uint32, mmapBase uint32, clockHz uint64) *Plugin {
	p := &Plugin{
		sys:      sys,
		c:        c,
		tag:      info.Tag,
		mmapBase: mmapBase,
		mmapSize: info.MMAPSize,
		irqLine:  info.IRQ,
		clockHz:  clockHz,
		desc: device.Descriptor{
			TypeCode:   info.TypeCode,
			Vendor:     info.Vendor,
			IRQ:        info.IRQ,
			PortBase:   portBase,
			PortLength: portLength,
		},
	}
	if mmapBase != 0 {
		if err := c.writeWords(makeCmd(0, p.tag, cmdMMAP, 0), mmapBase); err != nil {
			c.fatal = err
		}
	}
	return p
}

func (p *Plugin) Descriptor() device.Descriptor { return p.desc }

// Fatal reports a latched protocol violation or I/O failure shared by
// every Plugin on this socket; the scheduler checks it after every tick
// and, per spec, prints and exits rather than attempting to continue.
func (p *Plugin) Fatal() error { return p.c.fatal }

func (p *Plugin) fail(err error) {
	if p.c.fatal == nil {
		p.c.fatal = err
	}
}

func (p *Plugin) ReadPort(port uint32) (uint32, bool) {
	if p.c.fatal != nil {
		return 0, false
	}
	ioPort := (port - p.desc.PortBase) >> 2
	if err := p.c.writeWords(makeCmd(0, p.tag, cmdPortR, 0), ioPort); err != nil {
		p.fail(err)
		return 0, false
	}
	var word uint32
	if err := p.handleReplies(&word, false); err != nil {
		p.fail(err)
		return 0, false
	}
	return word, true
}

func (p *Plugin) WritePort(port uint32, value uint32) bool {
	if p.c.fatal != nil {
		return false
	}
	ioPort := (port - p.desc.PortBase) >> 2
	if err := p.c.writeWords(makeCmd(0, p.tag, cmdPortW, 0), ioPort, value); err != nil {
		p.fail(err)
		return false
	}
	if err := p.handleReplies(nil, false); err != nil {
		p.fail(err)
		return false
	}
	return true
}

// ReadMMAP and WriteMMAP satisfy bus.PluginDevice, serving accesses that
// land in this tag's MMAP slice. width is the access size in bytes (1,
// 2, or 4); the remote always sees a DATAR/DATAW of exactly that many
// bytes, packed into the low bytes of the returned word.
func (p *Plugin) ReadMMAP(offset uint32, width int) (uint32, error) {
	if p.c.fatal != nil {
		return 0, p.c.fatal
	}
	if err := p.c.writeWords(makeCmd(0, p.tag, cmdDataR, 0), offset, uint32(width)); err != nil {
		p.fail(err)
		return 0, err
	}
	buf := make([]byte, width)
	if err := p.handleRepliesData(buf); err != nil {
		p.fail(err)
		return 0, err
	}
	var v uint32
	for _, b := range buf {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

func (p *Plugin) WriteMMAP(offset uint32, width int, value uint32) error {
	if p.c.fatal != nil {
		return p.c.fatal
	}
	data := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		data[i] = byte(value)
		value >>= 8
	}
	if err := p.c.writeWords(makeCmd(0, p.tag, cmdDataW, 0), offset, uint32(width)); err != nil {
		p.fail(err)
		return err
	}
	if err := p.c.writeBytes(data); err != nil {
		p.fail(err)
		return err
	}
	if err := p.handleReplies(nil, false); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

func (p *Plugin) Tick() {
	if p.c.fatal != nil {
		return
	}
	cycle := p.sys.Cycles()

	if p.delayArmed && cycle >= p.delayCycle {
		p.delayArmed = false
		if err := p.c.writeWords(makeCmd(0, p.tag, cmdADelay, 0)); err != nil {
			p.fail(err)
			return
		}
		if err := p.handleReplies(nil, false); err != nil {
			p.fail(err)
			return
		}
	}
	if p.alarmArmed && cycle >= p.alarmCycle {
		p.alarmArmed = false
		if err := p.c.writeWords(makeCmd(0, p.tag, cmdAlarm, 0)); err != nil {
			p.fail(err)
			return
		}
		if err := p.handleReplies(nil, false); err != nil {
			p.fail(err)
			return
		}
	}

	if p.irqPending {
		if p.irqExplicit {
			if t, ok := p.sys.(cpuTargeter); ok {
				t.RaiseIRQOn(p.irqCPU, p.irqLine)
			} else {
				p.sys.RaiseIRQ(p.irqLine)
			}
		} else {
			p.sys.RaiseIRQ(p.irqLine)
		}
	}
}

// cpuTargeter lets a CPUIRQ reply raise an IRQ on one specific CPU rather
// than the round-robin choice device.System.RaiseIRQ makes; satisfied
// structurally by the scheduler, mirroring cpuinfo.Targeter.
type cpuTargeter interface {
	RaiseIRQOn(cpu int, line int)
}

// handleReplies mirrors the original handle_replies loop: read command
// words until the LAST flag, demultiplexing ASYNC replies by tag and
// applying every side-effecting reply along the way. word, if non-nil,
// receives the payload of a WORD reply.
func (p *Plugin) handleReplies(word *uint32, onlyAsync bool) error {
	for {
		cmdWord, err := p.c.readWord()
		if err != nil {
			return err
		}
		last := cmdWord&flagLast != 0
		async := cmdWord&flagAsync != 0
		if !onlyAsync && async {
			// An async event interleaved into a synchronous wait does not
			// end our wait; keep reading for the reply we actually want.
			last = false
		}
		tag := tagOf(cmdWord)
		if tag != p.tag {
			return &ProtocolError{Tag: tag, Msg: "reply addressed to an unknown tag on this socket"}
		}
		switch cmdOf(cmdWord) {
		case replyOK:
		case replyWord:
			v, err := p.c.readWord()
			if err != nil {
				return err
			}
			if word != nil {
				*word = v
			}
		case replyData:
			size, err := p.c.readWord()
			if err != nil {
				return err
			}
			if _, err := p.c.readBytes(int(size)); err != nil {
				return err
			}
		default:
			if err := p.applySideEffect(cmdWord); err != nil {
				return err
			}
		}
		if last {
			return nil
		}
	}
}

// handleRepliesData is handleReplies specialized for a DATA reply whose
// payload is copied into dst.
func (p *Plugin) handleRepliesData(dst []byte) error {
	for {
		cmdWord, err := p.c.readWord()
		if err != nil {
			return err
		}
		last := cmdWord&flagLast != 0
		tag := tagOf(cmdWord)
		if tag != p.tag {
			return &ProtocolError{Tag: tag, Msg: "reply addressed to an unknown tag on this socket"}
		}
		switch cmdOf(cmdWord) {
		case replyData:
			size, err := p.c.readWord()
			if err != nil {
				return err
			}
			buf, err := p.c.readBytes(int(size))
			if err != nil {
				return err
			}
			copy(dst, buf)
		default:
			if err := p.applySideEffect(cmdWord); err != nil {
				return err
			}
		}
		if last {
			return nil
		}
	}
}

// applySideEffect interprets a reply that schedules a timer or raises/
// clears/performs DMA rather than answering the request directly.
func (p *Plugin) applySideEffect(cmdWord uint32) error {
	switch cmdOf(cmdWord) {
	case replyDelay, replyTimer:
		w0, err := p.c.readWord()
		if err != nil {
			return err
		}
		w1, err := p.c.readWord()
		if err != nil {
			return err
		}
		var cycle uint64
		if w0 == 0 {
			cycle = p.sys.Cycles() + uint64(w1)*p.clockHz/1000
		} else {
			cycle = p.sys.Cycles() + uint64(w0)
			_ = w1 // present on the wire, ignored in this branch
		}
		if cmdOf(cmdWord) == replyDelay {
			p.delayCycle, p.delayArmed = cycle, true
		} else {
			p.alarmCycle, p.alarmArmed = cycle, true
		}
	case replyIRQ:
		v, err := p.c.readWord()
		if err != nil {
			return err
		}
		if int32(v) >= 0 && v <= 5 {
			p.irqLine = int(v)
		}
		p.irqPending = true
		p.irqExplicit = false
	case replyCPUIRQ:
		cpu, err := p.c.readWord()
		if err != nil {
			return err
		}
		v, err := p.c.readWord()
		if err != nil {
			return err
		}
		if int32(v) >= 0 && v <= 5 {
			p.irqLine = int(v)
		}
		p.irqCPU = int(cpu)
		p.irqPending = true
		p.irqExplicit = true
	case replyCLIRQ:
		p.irqPending = false
		p.sys.ClearIRQ(p.irqLine)
	case replyDMAW:
		addr, err := p.c.readWord()
		if err != nil {
			return err
		}
		size, err := p.c.readWord()
		if err != nil {
			return err
		}
		buf, err := p.c.readBytes(int(size))
		if err != nil {
			return err
		}
		copy(p.sys.Memory().Slice(addr, int(size)), buf)
	case replyDMAR:
		addr, err := p.c.readWord()
		if err != nil {
			return err
		}
		size, err := p.c.readWord()
		if err != nil {
			return err
		}
		buf := p.sys.Memory().Slice(addr, int(size))
		if err := p.c.writeWords(makeCmd(0, p.tag, replyData, 0), size); err != nil {
			return err
		}
		if err := p.c.writeBytes(buf); err != nil {
			return err
		}
	default:
		return &ProtocolError{Tag: tagOf(cmdWord), Msg: "unrecognized opcode"}
	}
	return nil
}
