/*
 * yams - Per-CPU topology and inter-CPU interrupt device
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

// Package cpuinfo exposes the CPU count and a software inter-CPU
// interrupt: writing a target CPU number to the SIGNAL port raises the
// configured IRQ line on that specific CPU (bypassing the usual
// round-robin selection), per SPEC_FULL.md §4.5.
package cpuinfo

import "github.com/yams-go/yams/internal/device"

// Port offsets inside the device's window.
const (
	PortNumCPUs = 0
	PortSignal  = 4 // write: target CPU id to raise the inter-CPU IRQ on
	PortClear   = 8 // write: target CPU id to clear the inter-CPU IRQ on
)

// Targeter raises or clears an IRQ line on one specific CPU, bypassing
// round-robin selection -- the capability RaiseIRQ/ClearIRQ on
// device.System don't offer, since they always pick the line's owner.
type Targeter interface {
	RaiseIRQOn(cpu int, line int)
	ClearIRQOn(cpu int, line int)
}

// CPUInfo is the topology/inter-CPU-interrupt device.
type CPUInfo struct {
	desc    device.Descriptor
	target  Targeter
	numCPUs int
	irqLine int
}

func New(target Targeter, numCPUs int, irqLine int, portBase uint32, irq int) *CPUInfo {
	return &CPUInfo{
		target:  target,
		numCPUs: numCPUs,
		irqLine: irqLine,
		desc: device.Descriptor{
			TypeCode:   0x0600,
			IRQ:        irq,
			PortBase:   portBase,
			PortLength: 12,
		},
	}
}

func (c *CPUInfo) Descriptor() device.Descriptor { return c.desc }

func (c *CPUInfo) ReadPort(port uint32) (uint32, bool) {
	if port-c.desc.PortBase != PortNumCPUs {
		return 0, false
	}
	return uint32(c.numCPUs), true
}

func (c *CPUInfo) WritePort(port uint32, value uint32) bool {
	switch port - c.desc.PortBase {
	case PortSignal:
		if int(value) < c.numCPUs {
			c.target.RaiseIRQOn(int(value), c.irqLine)
		}
		return true
	case PortClear:
		if int(value) < c.numCPUs {
			c.target.ClearIRQOn(int(value), c.irqLine)
		}
		return true
	default:
		return false
	}
}

func (c *CPUInfo) Tick() {}
