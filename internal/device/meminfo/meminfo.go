/*
 * yams - Physical memory size device
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

// Package meminfo is a trivial, read-only device exposing the guest's
// physical RAM size, per SPEC_FULL.md §4.5.
package meminfo

import "github.com/yams-go/yams/internal/device"

const PortSize = 0

// MemInfo reports RAM size.
type MemInfo struct {
	desc device.Descriptor
	size uint32
}

func New(portBase uint32, sizeBytes uint32) *MemInfo {
	return &MemInfo{
		size: sizeBytes,
		desc: device.Descriptor{
			TypeCode:   0x0500,
			IRQ:        device.NoIRQ,
			PortBase:   portBase,
			PortLength: 4,
		},
	}
}

func (m *MemInfo) Descriptor() device.Descriptor { return m.desc }

func (m *MemInfo) ReadPort(port uint32) (uint32, bool) {
	if port-m.desc.PortBase != PortSize {
		return 0, false
	}
	return m.size, true
}

func (m *MemInfo) WritePort(uint32, uint32) bool { return false }

func (m *MemInfo) Tick() {}
