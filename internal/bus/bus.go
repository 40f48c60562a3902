/*
 * yams - Memory bus: segment decode, TLB translation, device dispatch
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

// Package bus resolves a virtual access through segment rules and the TLB,
// then dispatches to RAM, the descriptor page, the kernel-parameter page,
// a device's port window, or a plugin MMAP region. It satisfies the small
// Bus interface the cpu package declares, without importing cpu -- the two
// packages are wired together only by the machine package, so there is no
// import cycle between "the thing that executes instructions" and "the
// thing that serves their memory accesses".
package bus

import (
	"fmt"

	"github.com/yams-go/yams/internal/cp0"
	"github.com/yams-go/yams/internal/device"
	"github.com/yams-go/yams/internal/except"
	"github.com/yams-go/yams/internal/memory"
)

const (
	segMapped2Base  uint32 = 0xC000_0000
	segKUnmappedUC  uint32 = 0xA000_0000 // kseg1
	segKUnmappedC   uint32 = 0x8000_0000 // kseg0
	descBase        uint32 = 0xB000_0000
	descEnd         uint32 = 0xB000_1000
	paramBase       uint32 = 0xB000_1000
	paramEnd        uint32 = 0xB000_2000
	DefaultPortBase uint32 = 0xB000_8000
)

// MMAPRegion is a page-aligned window of physical I/O address space owned
// by a plugin bridge device; accesses are dispatched to its ReadMMAP/
// WriteMMAP instead of a normal port read/write.
type MMAPRegion struct {
	Base   uint32
	Length uint32
	Device PluginDevice
}

// PluginDevice is the subset of the plugin bridge a MMAP region dispatches
// into; kept separate from device.Device so the bus need not know about
// the rest of the plugin protocol.
type PluginDevice interface {
	ReadMMAP(offset uint32, width int) (uint32, error)
	WriteMMAP(offset uint32, width int, value uint32) error
}

// portDevice is one device's slot in the port window.
type portDevice struct {
	base   uint32
	length uint32
	dev    device.Device
}

// Bus ties physical memory, the port window, and plugin MMAP regions
// together and exposes the translated read/write contract the CPU
// interpreter requires.
type Bus struct {
	mem      *memory.Memory
	cp0s     []*cp0.CP0 // one per CPU, for TLB lookups and LL/SC invalidation
	devices  []portDevice
	mmaps    []MMAPRegion
	portNext uint32
	mmapNext uint32
}

// New creates a Bus over mem, with TLB translation served by cp0s (indexed
// by CPU number).
func New(mem *memory.Memory, cp0s []*cp0.CP0) *Bus {
	return &Bus{
		mem:      mem,
		cp0s:     cp0s,
		portNext: DefaultPortBase,
		mmapNext: 0, // assigned once the port window's extent is known
	}
}

// AddDevice appends dev to the port window, placing it at the next free
// 4-byte-aligned offset, and records its descriptor in the memory's
// descriptor page.
func (b *Bus) AddDevice(dev device.Device) error {
	d := dev.Descriptor()
	base := b.portNext
	b.devices = append(b.devices, portDevice{base: base, length: d.PortLength, dev: dev})
	b.portNext += d.PortLength
	if b.portNext%4 != 0 {
		b.portNext += 4 - b.portNext%4
	}
	return b.mem.AppendDescriptor(memory.DeviceDescriptor{
		TypeCode: uint32(d.TypeCode),
		IOBase:   base,
		IOLength: d.PortLength,
		IRQ:      irqField(d.IRQ),
		Vendor:   d.Vendor,
	})
}

func irqField(irq int) uint32 {
	if irq == device.NoIRQ {
		return 0xFFFF_FFFF
	}
	return uint32(irq)
}

// AddMMAP reserves a page-aligned plugin MMAP window after the port
// window and any prior MMAP regions.
func (b *Bus) AddMMAP(length uint32, dev PluginDevice) MMAPRegion {
	if b.mmapNext == 0 {
		b.mmapNext = b.portNext
		if b.mmapNext%memory.PageSize != 0 {
			b.mmapNext += memory.PageSize - b.mmapNext%memory.PageSize
		}
	}
	pages := (length + memory.PageSize - 1) / memory.PageSize
	r := MMAPRegion{Base: b.mmapNext, Length: pages * memory.PageSize, Device: dev}
	b.mmaps = append(b.mmaps, r)
	b.mmapNext += r.Length
	return r
}

// Devices returns the registered port devices in insertion order, for the
// scheduler's per-tick Tick() pass.
func (b *Bus) Devices() []device.Device {
	out := make([]device.Device, len(b.devices))
	for i, d := range b.devices {
		out[i] = d.dev
	}
	return out
}

// Read performs a translated load of width bytes (1, 2, or 4; 0 is a
// permission probe that performs no data movement).
func (b *Bus) Read(vaddr uint32, width int, cpu int, kernel bool) (uint32, except.Code) {
	return b.access(vaddr, width, cpu, kernel, except.RefLoad, 0)
}

// ReadFetch is like Read but for instruction fetch: a BusErrorData from
// the underlying access is promoted here to BusErrorInstr, per
// SPEC_FULL.md §4.3 step 2.
func (b *Bus) ReadFetch(vaddr uint32, cpu int, kernel bool) (uint32, except.Code) {
	v, code := b.access(vaddr, 4, cpu, kernel, except.RefFetch, 0)
	if code == except.BusErrorData {
		code = except.BusErrorInstr
	}
	return v, code
}

// Write performs a translated store of width bytes.
func (b *Bus) Write(vaddr uint32, width int, cpu int, kernel bool, value uint32) except.Code {
	_, code := b.access(vaddr, width, cpu, kernel, except.RefStore, value)
	return code
}

// Probe performs a zero-width permission check only: AddressLoad/Store,
// TLB, and segment errors are returned, but no data moves.
func (b *Bus) Probe(vaddr uint32, cpu int, kernel bool, store bool) except.Code {
	ref := except.RefLoad
	if store {
		ref = except.RefStore
	}
	_, code := b.access(vaddr, 0, cpu, kernel, ref, 0)
	return code
}

func (b *Bus) access(vaddr uint32, width int, cpu int, kernel bool, ref except.RefType, value uint32) (uint32, except.Code) {
	if width != 0 && vaddr%uint32(width) != 0 {
		if ref == except.RefStore {
			return 0, except.AddressStore
		}
		return 0, except.AddressLoad
	}

	var paddr uint32
	switch {
	case vaddr >= segMapped2Base:
		if !kernel {
			return b.addrFault(ref)
		}
		p, code := b.translate(cpu, vaddr, ref)
		if code != except.None {
			return 0, code
		}
		paddr = p

	case vaddr >= segKUnmappedUC:
		if !kernel {
			return b.addrFault(ref)
		}
		return b.accessUncached(vaddr, width, ref, value)

	case vaddr >= segKUnmappedC:
		if !kernel {
			return b.addrFault(ref)
		}
		paddr = vaddr - segKUnmappedC

	default:
		p, code := b.translate(cpu, vaddr, ref)
		if code != except.None {
			return 0, code
		}
		paddr = p
	}

	return b.accessPhysical(paddr, width, ref, value)
}

func (b *Bus) addrFault(ref except.RefType) (uint32, except.Code) {
	if ref == except.RefStore {
		return 0, except.AddressStore
	}
	return 0, except.AddressLoad
}

func (b *Bus) translate(cpu int, vaddr uint32, ref except.RefType) (uint32, except.Code) {
	if cpu < 0 || cpu >= len(b.cp0s) {
		return 0, except.TLBLoad
	}
	paddr, code := b.cp0s[cpu].Translate(vaddr, ref)
	if code != except.None {
		b.cp0s[cpu].SetBadVAddr(vaddr)
	}
	return paddr, code
}

// accessUncached serves the kseg1 window: descriptor page, parameter
// page, port window, plugin MMAP, or a dropped/zero-returning tail.
func (b *Bus) accessUncached(vaddr uint32, width int, ref except.RefType, value uint32) (uint32, except.Code) {
	switch {
	case vaddr >= descBase && vaddr < descEnd:
		return b.accessPage(b.mem.ReadDescriptorByte, vaddr-descBase, width, ref), except.None

	case vaddr >= paramBase && vaddr < paramEnd:
		return b.accessPage(b.mem.ReadParamByte, vaddr-paramBase, width, ref), except.None

	default:
		if port, dev, ok := b.lookupPort(vaddr); ok {
			return b.accessDevicePort(dev, port, width, ref, value)
		}
		if region, ok := b.lookupMMAP(vaddr); ok {
			v, err := b.accessMMAP(region, vaddr-region.Base, width, ref, value)
			if err != nil {
				return 0, except.BusErrorData
			}
			return v, except.None
		}
		if vaddr >= descBase {
			// Anything else >= 0xB000_0000: reads return 0, writes dropped.
			return 0, except.None
		}
		return b.accessPhysical(vaddr-segKUnmappedUC, width, ref, value)
	}
}

func (b *Bus) accessPage(read func(uint32) byte, off uint32, width int, ref except.RefType) uint32 {
	if width == 0 {
		return 0
	}
	if ref == except.RefStore {
		// Read-only pages: writes succeed silently.
		return 0
	}
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(read(off+uint32(i))) << (8 * i)
	}
	return v
}

func (b *Bus) lookupPort(vaddr uint32) (uint32, *portDevice, bool) {
	for i := range b.devices {
		d := &b.devices[i]
		if vaddr >= d.base && vaddr < d.base+d.length {
			return vaddr - d.base, d, true
		}
	}
	return 0, nil, false
}

func (b *Bus) lookupMMAP(vaddr uint32) (MMAPRegion, bool) {
	for _, r := range b.mmaps {
		if vaddr >= r.Base && vaddr < r.Base+r.Length {
			return r, true
		}
	}
	return MMAPRegion{}, false
}

func (b *Bus) accessDevicePort(d *portDevice, port uint32, width int, ref except.RefType, value uint32) (uint32, except.Code) {
	if width == 0 {
		return 0, except.None
	}
	wordPort := port &^ 3
	lane := int(port & 3)
	order := b.mem.Order()

	if ref == except.RefStore {
		cur, ok := d.dev.ReadPort(wordPort)
		if !ok {
			panic(fmt.Sprintf("bus: write to non-existent port %#x", wordPort))
		}
		var w uint32
		switch width {
		case 4:
			w = value
		case 2:
			w = device.SetLane(order, cur, lane, byte(value))
			w = device.SetLane(order, w, lane+1, byte(value>>8))
		case 1:
			w = device.SetLane(order, cur, lane, byte(value))
		}
		if ok := d.dev.WritePort(wordPort, w); !ok {
			panic(fmt.Sprintf("bus: write to non-existent port %#x", wordPort))
		}
		return 0, except.None
	}

	w, ok := d.dev.ReadPort(wordPort)
	if !ok {
		panic(fmt.Sprintf("bus: read from non-existent port %#x", wordPort))
	}
	switch width {
	case 4:
		return w, except.None
	case 2:
		v := uint32(device.Lane(order, w, lane)) | uint32(device.Lane(order, w, lane+1))<<8
		return v, except.None
	default:
		return uint32(device.Lane(order, w, lane)), except.None
	}
}

func (b *Bus) accessMMAP(r MMAPRegion, off uint32, width int, ref except.RefType, value uint32) (uint32, error) {
	if width == 0 {
		return 0, nil
	}
	if ref == except.RefStore {
		return 0, r.Device.WriteMMAP(off, width, value)
	}
	return r.Device.ReadMMAP(off, width)
}

func (b *Bus) accessPhysical(paddr uint32, width int, ref except.RefType, value uint32) (uint32, except.Code) {
	if width == 0 {
		return 0, except.None
	}
	if !b.mem.InRange(paddr, width) {
		return 0, except.BusErrorData
	}
	if ref == except.RefStore {
		b.storeInvalidateLL(paddr, width)
		switch width {
		case 4:
			b.mem.WriteWord(paddr, value)
		case 2:
			b.mem.WriteHalf(paddr, uint16(value))
		case 1:
			b.mem.WriteByte(paddr, byte(value))
		}
		return 0, except.None
	}
	switch width {
	case 4:
		return b.mem.ReadWord(paddr), except.None
	case 2:
		return uint32(b.mem.ReadHalf(paddr)), except.None
	default:
		return uint32(b.mem.ReadByte(paddr)), except.None
	}
}

// storeInvalidateLL invalidates every CPU's outstanding LL reservation that
// covers the word being stored, per SPEC_FULL.md §3/§8 invariant 4/5.
func (b *Bus) storeInvalidateLL(paddr uint32, width int) {
	wordAddr := paddr &^ 3
	for _, c := range b.cp0s {
		if c.LLAddr() == wordAddr {
			c.InvalidateLL()
		}
	}
	_ = width
}

// resolveRAM computes a physical address for vaddr without dispatching to
// devices, for LL/SC, which operate on a physical word of RAM.
func (b *Bus) resolveRAM(vaddr uint32, cpu int, kernel bool, ref except.RefType) (uint32, except.Code) {
	if vaddr%4 != 0 {
		return b.addrFault(ref)
	}
	switch {
	case vaddr >= segMapped2Base:
		if !kernel {
			return b.addrFault(ref)
		}
		return b.translate(cpu, vaddr, ref)
	case vaddr >= segKUnmappedUC:
		if !kernel {
			return b.addrFault(ref)
		}
		return 0, except.BusErrorData
	case vaddr >= segKUnmappedC:
		if !kernel {
			return b.addrFault(ref)
		}
		return vaddr - segKUnmappedC, except.None
	default:
		return b.translate(cpu, vaddr, ref)
	}
}

// ReadLL performs the LL instruction's load and also returns the
// translated physical address, recorded into LLAddr by the caller.
func (b *Bus) ReadLL(vaddr uint32, cpu int, kernel bool) (uint32, uint32, except.Code) {
	paddr, code := b.resolveRAM(vaddr, cpu, kernel, except.RefLoad)
	if code != except.None {
		return 0, 0, code
	}
	if !b.mem.InRange(paddr, 4) {
		return 0, 0, except.BusErrorData
	}
	return b.mem.ReadWord(paddr), paddr, except.None
}

// WriteSC performs the SC instruction: translate the effective address,
// and only if it matches expectedLLAddr (the CPU's recorded reservation)
// commit the store and invalidate every CPU's matching reservation. A
// translation fault is reported even when the reservation would have
// failed, matching real hardware.
func (b *Bus) WriteSC(vaddr uint32, cpu int, kernel bool, expectedLLAddr uint32, value uint32) (stored bool, code except.Code) {
	paddr, code := b.resolveRAM(vaddr, cpu, kernel, except.RefStore)
	if code != except.None {
		return false, code
	}
	if !b.mem.InRange(paddr, 4) {
		return false, except.BusErrorData
	}
	if paddr != expectedLLAddr {
		return false, except.None
	}
	b.storeInvalidateLL(paddr, 4)
	b.mem.WriteWord(paddr, value)
	return true, except.None
}

// ReadDirect / WriteDirect bypass translation entirely, for the loader and
// the debugger's memwrite/memread/poke commands.
func (b *Bus) ReadDirect(paddr uint32, width int) (uint32, bool) {
	if !b.mem.InRange(paddr, width) {
		return 0, false
	}
	switch width {
	case 4:
		return b.mem.ReadWord(paddr), true
	case 2:
		return uint32(b.mem.ReadHalf(paddr)), true
	default:
		return uint32(b.mem.ReadByte(paddr)), true
	}
}

func (b *Bus) WriteDirect(paddr uint32, width int, value uint32) bool {
	if !b.mem.InRange(paddr, width) {
		return false
	}
	switch width {
	case 4:
		b.mem.WriteWord(paddr, value)
	case 2:
		b.mem.WriteHalf(paddr, uint16(value))
	default:
		b.mem.WriteByte(paddr, byte(value))
	}
	b.storeInvalidateLL(paddr, width)
	return true
}

// Memory exposes the backing physical memory, for the loader and DMA.
func (b *Bus) Memory() *memory.Memory { return b.mem }
