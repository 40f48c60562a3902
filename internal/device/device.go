/*
 * yams - Device trait shared by every memory-mapped peripheral
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

// Package device declares the polymorphic capability set every virtual
// peripheral satisfies, generalized from the teacher's C function-table
// (io_read/io_write/update) per SPEC_FULL.md §9. Concrete variants: TTY,
// Disk, NIC, RTC, CPU-info, Mem-info, Shutdown, Plugin.
package device

import (
	"github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/memory"
)

// NoIRQ marks a device with no interrupt line.
const NoIRQ = -1

// Descriptor is the device's entry in the guest's read-only descriptor
// page: {typecode, io_base, io_length, irq, vendor[8], reserved[8]}.
type Descriptor struct {
	TypeCode   uint16
	Vendor     [8]byte
	IRQ        int // 0..5, or NoIRQ
	PortBase   uint32
	PortLength uint32
}

// Device is the common entry-point set every peripheral implements. All
// three are synchronous, and all are called from the main loop under the
// async-input helper's lock.
type Device interface {
	// Descriptor returns this device's descriptor-page record and port
	// window size, fixed for the device's lifetime.
	Descriptor() Descriptor

	// ReadPort reads a 4-byte-aligned port inside the device's window.
	// ok is false for a port the device does not recognize; the bus
	// asserts on this (caller's bug), matching SPEC_FULL.md §4.5.
	ReadPort(port uint32) (value uint32, ok bool)

	// WritePort writes a 4-byte-aligned port inside the device's window.
	WritePort(port uint32, value uint32) (ok bool)

	// Tick is called exactly once per simulated cycle, after every CPU has
	// advanced. It may raise IRQs and schedule future wake-ups.
	Tick()
}

// System is the weak handle to the hardware root every device is given at
// construction time, used for the handful of callbacks devices need:
// raising an IRQ, reading the cycle counter, and reaching physical memory
// for DMA. Devices never get a strong reference to the machine.
type System interface {
	// RaiseIRQ marks line (0..5) pending and returns the CPU number chosen
	// to see it. Selection is round-robin across the configured CPUs,
	// computed once when the line first becomes pending; subsequent raises
	// while still pending reuse the same CPU.
	RaiseIRQ(line int) int

	// ClearIRQ clears line on whichever CPU was chosen for it.
	ClearIRQ(line int)

	// Cycles returns the current monotonic cycle counter.
	Cycles() uint64

	// Memory returns the shared physical memory for DMA transfers.
	Memory() *memory.Memory

	// Order returns the simulator's configured guest endianness.
	Order() bits.Order
}

// Lane picks byte b (0..3) out of word w per the port-width quirk
// (SPEC_FULL.md §4.1): device ports are word-wired, so 1/2-byte accesses
// select a sub-lane of the full word.
func Lane(order bits.Order, w uint32, b int) byte {
	return byte(w >> order.Lane(b))
}

// SetLane returns w with byte b replaced by v, per the same quirk.
func SetLane(order bits.Order, w uint32, b int, v byte) uint32 {
	shift := order.Lane(b)
	mask := uint32(0xFF) << shift
	return (w &^ mask) | (uint32(v) << shift)
}
