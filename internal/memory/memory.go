/*
 * yams - Physical memory
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

// Package memory is the simulator's contiguous physical-byte array, plus
// the two small reserved pages the bus serves directly: the device
// descriptor directory and the kernel boot-parameter page. Unlike the
// teacher's emu/memory (a package-level global array), this is an owned
// value threaded explicitly through the machine, per SPEC_FULL.md §9.
package memory

import (
	"fmt"

	"github.com/yams-go/yams/internal/bits"
)

const PageSize = 4096

// DescSize is the size in bytes of one device-descriptor record.
const DescSize = 32

// Memory owns the guest's physical RAM and the two reserved pages.
type Memory struct {
	order Order
	ram   []byte
	desc  [PageSize]byte
	param [PageSize]byte
	descN int // bytes of desc already filled
}

// Order is re-exported so callers need not import internal/bits directly
// just to build a Memory.
type Order = bits.Order

// New allocates a Memory backing numPages pages of RAM.
func New(numPages int, order Order) *Memory {
	if numPages <= 0 {
		numPages = 1
	}
	return &Memory{
		order: order,
		ram:   make([]byte, numPages*PageSize),
	}
}

// Size returns the size of physical RAM in bytes.
func (m *Memory) Size() uint32 { return uint32(len(m.ram)) }

// Order returns the simulator's configured guest endianness.
func (m *Memory) Order() Order { return m.order }

// InRange reports whether a physical RAM access of width bytes starting at
// paddr is entirely inside RAM.
func (m *Memory) InRange(paddr uint32, width int) bool {
	return paddr < m.Size() && uint64(paddr)+uint64(width) <= uint64(m.Size())
}

// ReadWord reads a 32-bit RAM word in guest byte order. Caller must have
// checked InRange.
func (m *Memory) ReadWord(paddr uint32) uint32 {
	return m.order.Uint32(m.ram[paddr : paddr+4])
}

// WriteWord writes a 32-bit RAM word in guest byte order.
func (m *Memory) WriteWord(paddr uint32, v uint32) {
	m.order.PutUint32(m.ram[paddr:paddr+4], v)
}

// ReadHalf reads a 16-bit RAM halfword in guest byte order.
func (m *Memory) ReadHalf(paddr uint32) uint16 {
	return m.order.Uint16(m.ram[paddr : paddr+2])
}

// WriteHalf writes a 16-bit RAM halfword in guest byte order.
func (m *Memory) WriteHalf(paddr uint32, v uint16) {
	m.order.PutUint16(m.ram[paddr:paddr+2], v)
}

// ReadByte reads a single RAM byte.
func (m *Memory) ReadByte(paddr uint32) byte { return m.ram[paddr] }

// WriteByte writes a single RAM byte.
func (m *Memory) WriteByte(paddr uint32, v byte) { m.ram[paddr] = v }

// Slice returns a direct, mutable view of [paddr, paddr+length) for device
// DMA. The caller must have validated InRange(paddr, length) first.
func (m *Memory) Slice(paddr uint32, length int) []byte {
	return m.ram[paddr : paddr+uint32(length)]
}

// ReadDescriptorByte serves the read-only device descriptor page; offsets
// past the filled records read back as zero.
func (m *Memory) ReadDescriptorByte(off uint32) byte {
	if int(off) >= m.descN {
		return 0
	}
	return m.desc[off]
}

// ReadParamByte serves the read-only kernel-parameter page.
func (m *Memory) ReadParamByte(off uint32) byte {
	return m.param[off]
}

// SetParam installs the NUL-terminated boot-argument string. Truncated to
// fit the page, always NUL terminated.
func (m *Memory) SetParam(args string) {
	for i := range m.param {
		m.param[i] = 0
	}
	n := copy(m.param[:PageSize-1], args)
	m.param[n] = 0
}

// DeviceDescriptor mirrors the fixed 32-byte on-the-wire record in the
// guest's descriptor page: {typecode, io_base, io_length, irq, vendor[8],
// reserved[8]}.
type DeviceDescriptor struct {
	TypeCode uint32
	IOBase   uint32
	IOLength uint32
	IRQ      uint32
	Vendor   [8]byte
}

// AppendDescriptor serializes d into the next free slot of the descriptor
// page. Returns an error if the page is full (4096/32 = 128 devices, far
// more than any configuration will ever register).
func (m *Memory) AppendDescriptor(d DeviceDescriptor) error {
	if m.descN+DescSize > PageSize {
		return fmt.Errorf("device descriptor page full")
	}
	b := m.desc[m.descN : m.descN+DescSize]
	m.order.PutUint32(b[0:4], d.TypeCode)
	m.order.PutUint32(b[4:8], d.IOBase)
	m.order.PutUint32(b[8:12], d.IOLength)
	m.order.PutUint32(b[12:16], d.IRQ)
	copy(b[16:24], d.Vendor[:])
	m.descN += DescSize
	return nil
}
