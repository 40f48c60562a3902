/*
 * yams - Virtual disk device test set.
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

package disk

import (
	"testing"

	"github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/memory"
)

type fakeSystem struct {
	cycles       uint64
	mem          *memory.Memory
	raisedLines  []int
	clearedLines []int
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{mem: memory.New(1, bits.Big)}
}

func (f *fakeSystem) RaiseIRQ(line int) int { f.raisedLines = append(f.raisedLines, line); return 0 }
func (f *fakeSystem) ClearIRQ(line int)     { f.clearedLines = append(f.clearedLines, line) }
func (f *fakeSystem) Cycles() uint64        { return f.cycles }
func (f *fakeSystem) Memory() *memory.Memory { return f.mem }
func (f *fakeSystem) Order() bits.Order      { return bits.Big }

type byteImage []byte

func (b byteImage) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, b[off:])
	return n, nil
}

func (b byteImage) WriteAt(p []byte, off int64) (int, error) {
	n := copy(b[off:], p)
	return n, nil
}

func flatGeometry() Geometry {
	return Geometry{Cylinders: 1, SectorsPerCyl: 4, SectorSize: 16, FullSeekCycles: 0, RotationCycles: 0}
}

func TestGetCommandsReportGeometry(t *testing.T) {
	sys := newFakeSystem()
	img := make(byteImage, 64)
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)

	cases := []struct {
		cmd  uint32
		port uint32
		want uint32
	}{
		{CmdGetSec, PortData, 4},
		{CmdGetSecSize, PortData, 16},
		{CmdGetSecPerCyl, PortData, 4},
		{CmdGetRot, PortData, 0},
		{CmdGetSeek, PortData, 0},
	}
	for _, c := range cases {
		d.WritePort(0x6000+PortCommand, c.cmd)
		got, ok := d.ReadPort(0x6000 + c.port)
		if !ok || got != c.want {
			t.Errorf("cmd %d: ReadPort(PortData) = %d,%v, want %d,true", c.cmd, got, ok, c.want)
		}
	}
}

func TestReadCommandCompletesAndRaisesIRQ(t *testing.T) {
	sys := newFakeSystem()
	img := byteImage("ABCDEFGHIJKLMNOP")
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)

	d.WritePort(0x6000+PortTSector, 0)
	d.WritePort(0x6000+PortDMAAddr, 0)
	d.WritePort(0x6000+PortCommand, CmdRead)

	st, _ := d.ReadPort(0x6000 + PortStatus)
	if st&statusRBusy == 0 {
		t.Fatal("status should report RBusy immediately after CmdRead")
	}

	d.Tick() // reading1 -> reading2
	d.Tick() // reading2 -> idle, raises IRQ

	st, _ = d.ReadPort(0x6000 + PortStatus)
	if st&statusRBusy != 0 {
		t.Error("RBusy should clear once the read completes")
	}
	if st&statusRIRQ == 0 {
		t.Error("status should report RIRQ once the read completes")
	}
	if len(sys.raisedLines) != 1 || sys.raisedLines[0] != 2 {
		t.Errorf("raised IRQ lines = %v, want [2]", sys.raisedLines)
	}
	got := sys.mem.Slice(0, 16)
	if string(got) != "ABCDEFGHIJKLMNOP" {
		t.Errorf("DMA'd data = %q, want %q", got, "ABCDEFGHIJKLMNOP")
	}
}

func TestWriteCommandCompletesAndWritesImage(t *testing.T) {
	sys := newFakeSystem()
	img := make(byteImage, 64)
	copy(sys.mem.Slice(0, 16), []byte("ZYXWVUTSRQPONMLK"))
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)

	d.WritePort(0x6000+PortTSector, 1)
	d.WritePort(0x6000+PortDMAAddr, 0)
	d.WritePort(0x6000+PortCommand, CmdWrite)
	d.Tick()
	d.Tick()

	st, _ := d.ReadPort(0x6000 + PortStatus)
	if st&statusWIRQ == 0 {
		t.Error("status should report WIRQ once the write completes")
	}
	want := "ZYXWVUTSRQPONMLK"
	got := string(img[16:32])
	if got != want {
		t.Errorf("image after write = %q, want %q", got, want)
	}
}

func TestCmdRejectedWhileBusy(t *testing.T) {
	sys := newFakeSystem()
	img := make(byteImage, 64)
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)

	d.WritePort(0x6000+PortCommand, CmdRead)
	d.WritePort(0x6000+PortCommand, CmdRead) // second command while the first is in flight

	st, _ := d.ReadPort(0x6000 + PortStatus)
	if st&statusEBusy == 0 {
		t.Error("a command issued while busy should set EBusy")
	}
}

func TestCmdOutOfRangeSectorSetsEBnds(t *testing.T) {
	sys := newFakeSystem()
	img := make(byteImage, 64)
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)

	d.WritePort(0x6000+PortTSector, 1000) // past Cylinders*SectorsPerCyl
	d.WritePort(0x6000+PortCommand, CmdRead)

	st, _ := d.ReadPort(0x6000 + PortStatus)
	if st&statusEBnds == 0 {
		t.Error("an out-of-range sector should set EBnds")
	}
}

func TestUnknownCommandSetsEComm(t *testing.T) {
	sys := newFakeSystem()
	img := make(byteImage, 64)
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)

	d.WritePort(0x6000+PortCommand, 0xFF)

	st, _ := d.ReadPort(0x6000 + PortStatus)
	if st&statusEComm == 0 {
		t.Error("an unrecognized command should set EComm")
	}
}

func TestResetRIRQClearsTheBit(t *testing.T) {
	sys := newFakeSystem()
	img := byteImage(make([]byte, 64))
	d := New(sys, img, img, flatGeometry(), 0x6000, 2)
	d.WritePort(0x6000+PortCommand, CmdRead)
	d.Tick()
	d.Tick()

	d.WritePort(0x6000+PortCommand, CmdResetRIRQ)
	st, _ := d.ReadPort(0x6000 + PortStatus)
	if st&statusRIRQ != 0 {
		t.Error("CmdResetRIRQ should clear RIRQ")
	}
}
