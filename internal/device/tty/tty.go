/*
 * yams - Virtual serial console device
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

// Package tty is the guest's serial console: a three-port device backed
// by any io.ReadWriter (a TCP connection, a pty, or the host terminal),
// generalized from the teacher's model1052 inquiry console per
// SPEC_FULL.md §4.5.
package tty

import (
	"io"

	"github.com/yams-go/yams/internal/asyncio"
	"github.com/yams-go/yams/internal/device"
)

// Port offsets inside the device's window.
const (
	PortStatus  = 0
	PortCommand = 4
	PortData    = 8
)

// STATUS bits.
const (
	statusInReady uint32 = 1 << 0
	statusOutFull uint32 = 1 << 1
	statusErr     uint32 = 1 << 2
)

// COMMAND bits.
const (
	cmdResetRIRQ   uint32 = 1 << 0
	cmdResetWIRQ   uint32 = 1 << 1
	cmdEnableWIRQ  uint32 = 1 << 2
	cmdDisableWIRQ uint32 = 1 << 3
)

// TTY is one serial console, reachable over conn.
type TTY struct {
	sys  device.System
	desc device.Descriptor

	conn  io.ReadWriter
	fd    int // -1 if conn has no pollable fd
	async *asyncio.Helper

	clock     int
	sendDelay int
	ticks     uint64

	inbuf   byte
	inValid bool

	outbuf  byte
	outValid bool

	writeIRQEnabled bool
	readIRQPending  bool
	writeIRQPending bool
	errLatched      bool
}

// New creates a TTY. sendDelay and clock set the output-flush period:
// (sendDelay * clock / 1000) + 1 ticks, per SPEC_FULL.md §4.5. fd is the
// pollable file descriptor backing conn, or -1 if input can't be polled
// (in which case reads only happen through Verify-less best effort).
func New(sys device.System, async *asyncio.Helper, conn io.ReadWriter, fd int, portBase uint32, irq int, sendDelay, clock int) *TTY {
	t := &TTY{
		sys:       sys,
		conn:      conn,
		fd:        fd,
		async:     async,
		clock:     clock,
		sendDelay: sendDelay,
		desc: device.Descriptor{
			TypeCode:   0x0100,
			IRQ:        irq,
			PortBase:   portBase,
			PortLength: 12,
		},
	}
	if fd >= 0 {
		async.Register(fd)
	}
	return t
}

func (t *TTY) Descriptor() device.Descriptor { return t.desc }

func (t *TTY) ReadPort(port uint32) (uint32, bool) {
	switch port - t.desc.PortBase {
	case PortStatus:
		v := uint32(0)
		if t.inValid {
			v |= statusInReady
		}
		if t.outValid {
			v |= statusOutFull
		}
		if t.errLatched {
			v |= statusErr
		}
		return v, true
	case PortData:
		if !t.inValid {
			return 0, true
		}
		v := uint32(t.inbuf)
		t.inValid = false
		return v, true
	default:
		return 0, false
	}
}

func (t *TTY) WritePort(port uint32, value uint32) bool {
	switch port - t.desc.PortBase {
	case PortCommand:
		if value&cmdResetRIRQ != 0 {
			t.readIRQPending = false
		}
		if value&cmdResetWIRQ != 0 {
			t.writeIRQPending = false
		}
		if value&cmdEnableWIRQ != 0 {
			t.writeIRQEnabled = true
		}
		if value&cmdDisableWIRQ != 0 {
			t.writeIRQEnabled = false
		}
		return true
	case PortData:
		if t.outValid {
			return true // outbuf full: write silently dropped
		}
		t.outbuf = byte(value)
		t.outValid = true
		return true
	default:
		return false
	}
}

func (t *TTY) Tick() {
	t.ticks++
	period := uint64(t.sendDelay)*uint64(t.clock)/1000 + 1
	if t.outValid && t.ticks%period == 0 {
		if _, err := t.conn.Write([]byte{t.outbuf}); err != nil {
			t.errLatched = true
		} else {
			t.outValid = false
			if t.writeIRQEnabled {
				t.writeIRQPending = true
			}
		}
	}

	if !t.inValid && t.fd >= 0 && t.async.Check(t.fd) {
		var buf [1]byte
		if n, err := t.conn.Read(buf[:]); err == nil && n == 1 {
			t.inbuf = buf[0]
			t.inValid = true
			t.readIRQPending = true
		}
	}

	if t.readIRQPending || t.writeIRQPending {
		t.sys.RaiseIRQ(t.desc.IRQ)
	} else {
		t.sys.ClearIRQ(t.desc.IRQ)
	}
}
