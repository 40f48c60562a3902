/*
 * yams - Virtual disk device
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

// Package disk is a geometry-aware virtual disk with a seek/rotation
// timing model, generalized from the teacher's modelTape/sys_channel
// staged-command shape per SPEC_FULL.md §4.5.
package disk

import (
	"io"

	"github.com/yams-go/yams/internal/device"
)

// Port offsets inside the device's window.
const (
	PortStatus  = 0
	PortCommand = 4
	PortData    = 8
	PortTSector = 12
	PortDMAAddr = 16
)

// Commands written to PortCommand.
const (
	CmdRead = iota + 1
	CmdWrite
	CmdResetRIRQ
	CmdResetWIRQ
	CmdGetSec
	CmdGetSecSize
	CmdGetSecPerCyl
	CmdGetRot
	CmdGetSeek
)

// STATUS bits.
const (
	statusRBusy uint32 = 1 << 0
	statusWBusy uint32 = 1 << 1
	statusRIRQ  uint32 = 1 << 2
	statusWIRQ  uint32 = 1 << 3
	statusEBusy uint32 = 1 << 4 // command rejected, a transfer already pending
	statusEBnds uint32 = 1 << 5 // target sector/DMA address out of range
	statusEIRQ  uint32 = 1 << 6 // command rejected, IRQ already pending
	statusEComm uint32 = 1 << 7 // unrecognized command
)

type phase int

const (
	idle phase = iota
	reading1
	reading2
	writing1
	writing2
)

// Geometry is the disk image's fixed physical shape and timing model, in
// absolute cycles (already scaled from milliseconds by the configured
// clock rate).
type Geometry struct {
	Cylinders      int
	SectorsPerCyl  int
	SectorSize     int
	FullSeekCycles uint64
	RotationCycles uint64 // 0 disables rotational-latency modeling
}

// Disk is one virtual drive backed by a flat image file.
type Disk struct {
	sys  device.System
	desc device.Descriptor
	img  io.ReaderAt
	imgW io.WriterAt
	geo  Geometry

	curCyl int

	stagedSector uint32
	stagedDMA    uint32

	st            phase
	dataReadback  uint32
	committedSec  uint32
	committedDMA  uint32
	nextInterest  uint64
	errBits       uint32
	commandResult uint32
}

// New creates a Disk device over img (which must also support WriteAt for
// write commands to succeed).
func New(sys device.System, img io.ReaderAt, imgW io.WriterAt, geo Geometry, portBase uint32, irq int) *Disk {
	return &Disk{
		sys:  sys,
		img:  img,
		imgW: imgW,
		geo:  geo,
		desc: device.Descriptor{
			TypeCode:   0x0200,
			IRQ:        irq,
			PortBase:   portBase,
			PortLength: 20,
		},
	}
}

func (d *Disk) Descriptor() device.Descriptor { return d.desc }

func (d *Disk) ReadPort(port uint32) (uint32, bool) {
	switch port - d.desc.PortBase {
	case PortStatus:
		v := d.errBits
		if d.st == reading1 || d.st == reading2 {
			v |= statusRBusy
		}
		if d.st == writing1 || d.st == writing2 {
			v |= statusWBusy
		}
		return v, true
	case PortData:
		return d.dataReadback, true
	case PortTSector:
		return d.stagedSector, true
	case PortDMAAddr:
		return d.stagedDMA, true
	default:
		return 0, false
	}
}

func (d *Disk) WritePort(port uint32, value uint32) bool {
	switch port - d.desc.PortBase {
	case PortCommand:
		d.execCommand(value)
		return true
	case PortTSector:
		d.stagedSector = value
		return true
	case PortDMAAddr:
		d.stagedDMA = value
		return true
	default:
		return false
	}
}

func (d *Disk) execCommand(cmd uint32) {
	d.errBits &^= statusEBusy | statusEBnds | statusEIRQ | statusEComm
	switch cmd {
	case CmdRead, CmdWrite:
		if d.st != idle {
			d.errBits |= statusEBusy
			return
		}
		if (d.st == reading1 || d.st == reading2) && d.errBits&statusRIRQ != 0 {
			d.errBits |= statusEIRQ
			return
		}
		secOff := uint64(d.stagedSector) * uint64(d.geo.SectorSize)
		if int(d.stagedSector) < 0 || d.geo.SectorsPerCyl <= 0 {
			d.errBits |= statusEBnds
			return
		}
		targetCyl := int(d.stagedSector) / d.geo.SectorsPerCyl
		targetSec := d.stagedSector % uint32(d.geo.SectorsPerCyl)
		if targetCyl >= d.geo.Cylinders {
			d.errBits |= statusEBnds
			return
		}
		d.committedSec = d.stagedSector
		d.committedDMA = d.stagedDMA
		_ = secOff
		d.nextInterest = d.sys.Cycles() + d.latency(targetCyl, targetSec)
		d.curCyl = targetCyl
		if cmd == CmdRead {
			d.st = reading1
		} else {
			d.st = writing1
		}
	case CmdResetRIRQ:
		d.errBits &^= statusRIRQ
	case CmdResetWIRQ:
		d.errBits &^= statusWIRQ
	case CmdGetSec:
		d.dataReadback = uint32(d.geo.Cylinders * d.geo.SectorsPerCyl)
	case CmdGetSecSize:
		d.dataReadback = uint32(d.geo.SectorSize)
	case CmdGetSecPerCyl:
		d.dataReadback = uint32(d.geo.SectorsPerCyl)
	case CmdGetRot:
		d.dataReadback = uint32(d.geo.RotationCycles)
	case CmdGetSeek:
		d.dataReadback = uint32(d.geo.FullSeekCycles)
	default:
		d.errBits |= statusEComm
	}
}

// latency implements SPEC_FULL.md §4.5's seek-time model.
func (d *Disk) latency(targetCyl int, targetSector uint32) uint64 {
	seek := uint64(abs(d.curCyl-targetCyl)) * d.geo.FullSeekCycles / uint64(d.geo.Cylinders)
	if d.geo.RotationCycles == 0 {
		return seek
	}
	now := d.sys.Cycles()
	rot := d.rotLatency(now, targetSector)
	if seek > rot {
		rot = d.rotLatency(now+seek, targetSector)
	}
	return seek + rot
}

func (d *Disk) rotLatency(now uint64, targetSector uint32) uint64 {
	sectorTime := d.geo.RotationCycles / uint64(d.geo.SectorsPerCyl)
	pos := (now % d.geo.RotationCycles) / sectorTime
	delta := (uint64(targetSector) + uint64(d.geo.SectorsPerCyl) - pos) % uint64(d.geo.SectorsPerCyl)
	return delta * sectorTime
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (d *Disk) Tick() {
	if d.st == idle {
		return
	}
	if d.sys.Cycles() < d.nextInterest {
		return
	}
	switch d.st {
	case reading1:
		buf := d.sys.Memory().Slice(d.committedDMA, d.geo.SectorSize)
		_, _ = d.img.ReadAt(buf, int64(d.committedSec)*int64(d.geo.SectorSize))
		d.advanceToPhase2(reading2)
	case writing1:
		buf := d.sys.Memory().Slice(d.committedDMA, d.geo.SectorSize)
		if d.imgW != nil {
			_, _ = d.imgW.WriteAt(buf, int64(d.committedSec)*int64(d.geo.SectorSize))
		}
		d.advanceToPhase2(writing2)
	case reading2:
		d.finish(statusRIRQ)
	case writing2:
		d.finish(statusWIRQ)
	}
}

func (d *Disk) advanceToPhase2(next phase) {
	passThrough := uint64(0)
	if d.geo.RotationCycles > 0 && d.geo.SectorsPerCyl > 0 {
		passThrough = d.geo.RotationCycles / uint64(d.geo.SectorsPerCyl)
	}
	d.nextInterest = d.sys.Cycles() + passThrough
	d.st = next
}

func (d *Disk) finish(irqBit uint32) {
	if d.errBits&(statusRIRQ|statusWIRQ) == 0 {
		d.sys.RaiseIRQ(d.desc.IRQ)
	}
	d.errBits |= irqBit
	d.st = idle
}
