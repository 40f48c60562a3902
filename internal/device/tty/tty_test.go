/*
 * yams - Virtual serial console device test set.
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

package tty

import (
	"bytes"
	"errors"
	"testing"

	"github.com/yams-go/yams/internal/asyncio"
	"github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/memory"
)

type fakeSystem struct {
	mem         *memory.Memory
	raisedLines []int
	cleared     int
}

func newFakeSystem() *fakeSystem { return &fakeSystem{mem: memory.New(1, bits.Big)} }

func (f *fakeSystem) RaiseIRQ(line int) int { f.raisedLines = append(f.raisedLines, line); return 0 }
func (f *fakeSystem) ClearIRQ(line int)     { f.cleared++ }
func (f *fakeSystem) Cycles() uint64        { return 0 }
func (f *fakeSystem) Memory() *memory.Memory { return f.mem }
func (f *fakeSystem) Order() bits.Order      { return bits.Big }

type failingConn struct{}

func (failingConn) Read([]byte) (int, error)  { return 0, errors.New("no input") }
func (failingConn) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func newTestTTY(conn *bytes.Buffer) *TTY {
	sys := newFakeSystem()
	async := asyncio.New(asyncio.BackendPoll, 1000)
	return New(sys, async, conn, -1, 0x7000, 3, 0, 1000)
}

func TestWriteThenTickFlushesToConn(t *testing.T) {
	var conn bytes.Buffer
	ttyDev := newTestTTY(&conn)
	ttyDev.WritePort(0x7000+PortData, 'A')

	st, _ := ttyDev.ReadPort(0x7000 + PortStatus)
	if st&statusOutFull == 0 {
		t.Fatal("status should report OutFull right after the write")
	}

	ttyDev.Tick() // sendDelay=0, clock=1000 -> period = 1, flushes every tick

	if conn.String() != "A" {
		t.Errorf("conn received %q, want %q", conn.String(), "A")
	}
	st, _ = ttyDev.ReadPort(0x7000 + PortStatus)
	if st&statusOutFull != 0 {
		t.Error("OutFull should clear once flushed")
	}
}

func TestWriteWhileOutputBufferFullIsDropped(t *testing.T) {
	var conn bytes.Buffer
	ttyDev := newTestTTY(&conn)
	ttyDev.WritePort(0x7000+PortData, 'A')
	ttyDev.WritePort(0x7000+PortData, 'B') // dropped: outbuf still holds 'A'

	ttyDev.Tick()
	if conn.String() != "A" {
		t.Errorf("conn received %q, want %q (the dropped byte must not appear)", conn.String(), "A")
	}
}

func TestTickRaisesIRQOnWriteCompletionWhenEnabled(t *testing.T) {
	var conn bytes.Buffer
	ttyDev := newTestTTY(&conn)
	ttyDev.WritePort(0x7000+PortCommand, cmdEnableWIRQ)
	ttyDev.WritePort(0x7000+PortData, 'A')
	ttyDev.Tick()

	sys := ttyDev.sys.(*fakeSystem)
	if len(sys.raisedLines) == 0 {
		t.Fatal("write-complete IRQ should have been raised")
	}
}

func TestResetWIRQClearsPending(t *testing.T) {
	var conn bytes.Buffer
	ttyDev := newTestTTY(&conn)
	ttyDev.WritePort(0x7000+PortCommand, cmdEnableWIRQ)
	ttyDev.WritePort(0x7000+PortData, 'A')
	ttyDev.Tick()
	if !ttyDev.writeIRQPending {
		t.Fatal("setup: writeIRQPending should be true")
	}
	ttyDev.WritePort(0x7000+PortCommand, cmdResetWIRQ)
	if ttyDev.writeIRQPending {
		t.Error("cmdResetWIRQ should clear writeIRQPending")
	}
}

func TestConnWriteErrorLatchesErr(t *testing.T) {
	sys := newFakeSystem()
	async := asyncio.New(asyncio.BackendPoll, 1000)
	ttyDev := New(sys, async, failingConn{}, -1, 0x7000, 3, 0, 1000)
	ttyDev.WritePort(0x7000+PortData, 'A')
	ttyDev.Tick()

	st, _ := ttyDev.ReadPort(0x7000 + PortStatus)
	if st&statusErr == 0 {
		t.Error("a failed conn.Write should latch statusErr")
	}
}

func TestReadPortClearsInValid(t *testing.T) {
	var conn bytes.Buffer
	ttyDev := newTestTTY(&conn)
	ttyDev.inbuf = 'Q'
	ttyDev.inValid = true

	v, ok := ttyDev.ReadPort(0x7000 + PortData)
	if !ok || v != 'Q' {
		t.Fatalf("ReadPort(PortData) = %d,%v, want 'Q',true", v, ok)
	}
	if ttyDev.inValid {
		t.Error("reading PortData should clear inValid")
	}
}
