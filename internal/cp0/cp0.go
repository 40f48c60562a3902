/*
 * yams - Coprocessor-0 registers and the 16-entry software TLB
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

package cp0

import "github.com/yams-go/yams/internal/except"

// Register numbers, classical MIPS32 numbering.
const (
	RegIndex    = 0
	RegRandom   = 1
	RegEntryLo0 = 2
	RegEntryLo1 = 3
	RegContext  = 4
	RegPageMask = 5
	RegWired    = 6
	RegBadVAddr = 8
	RegCount    = 9
	RegEntryHi  = 10
	RegCompare  = 11
	RegStatus   = 12
	RegCause    = 13
	RegEPC      = 14
	RegPRId     = 15
	RegConfig   = 16
	RegLLAddr   = 17
	RegConfig1  = 16 // sel 1
	RegErrorEPC = 30
)

// NumTLBEntries is the fixed TLB size.
const NumTLBEntries = 16

// Status register bit masks.
const (
	StatusIE  uint32 = 1 << 0
	StatusEXL uint32 = 1 << 1
	StatusERL uint32 = 1 << 2
	StatusRP  uint32 = 1 << 27
	StatusBEV uint32 = 1 << 22
	StatusIM0 uint32 = 1 << 8 // IM[0:7] occupy bits 8..15
)

// Cause register bit masks.
const (
	CauseBD uint32 = 1 << 31
	CauseIV uint32 = 1 << 23
	CauseIP0 uint32 = 1 << 8 // IP[0:7] occupy bits 8..15
)

const (
	statusWriteMask uint32 = 0x1040_FF17
	causeWriteMask  uint32 = 0x0080_0300
	causePreserve   uint32 = 0xB000_FC7C
	entryHiMask     uint32 = 0xFFFF_E0FF
	entryLoMask     uint32 = 0x03FF_FFFF // low 26 bits
)

// Half is one of the even/odd 4K pages covered by a TLB entry.
type Half struct {
	PFN uint32
	C   uint8
	D   bool
	V   bool
}

// Entry is one 16-row TLB line, covering two consecutive 4 KiB pages.
type Entry struct {
	VPN2 uint32 // bits 31:13 of the covered virtual address
	ASID uint8
	G    bool
	Even Half
	Odd  Half
}

// CP0 is the per-CPU coprocessor-0 register file and TLB.
type CP0 struct {
	id   int
	reg  [32]uint32 // sel-0 registers only; RegConfig1 shares Config's slot
	tlb  [NumTLBEntries]Entry
	reqTimerInterrupt bool
}

// New creates a CP0 for the given CPU number, with the architectural
// startup state from SPEC_FULL.md §4.3.
func New(cpuID int) *CP0 {
	c := &CP0{id: cpuID}
	c.reg[RegStatus] = 0x1040_0004 // BEV=1, ERL=1
	c.reg[RegPRId] = 0x00FF_0000 | (uint32(cpuID) << 24)
	c.reg[RegRandom] = NumTLBEntries - 1
	c.reg[RegWired] = 0
	return c
}

// Status returns the current Status register.
func (c *CP0) Status() uint32 { return c.reg[RegStatus] }

// Cause returns the current Cause register.
func (c *CP0) Cause() uint32 { return c.reg[RegCause] }

// EPC / ErrorEPC / BadVAddr / Count / Compare / EntryHi getters used by the
// CPU and by the console's regdump.
func (c *CP0) EPC() uint32      { return c.reg[RegEPC] }
func (c *CP0) ErrorEPC() uint32 { return c.reg[RegErrorEPC] }
func (c *CP0) BadVAddr() uint32 { return c.reg[RegBadVAddr] }
func (c *CP0) Count() uint32    { return c.reg[RegCount] }
func (c *CP0) Compare() uint32  { return c.reg[RegCompare] }
func (c *CP0) LLAddr() uint32   { return c.reg[RegLLAddr] }
func (c *CP0) ASID() uint8      { return uint8(c.reg[RegEntryHi] & 0xFF) }

func (c *CP0) SetEPC(v uint32)      { c.reg[RegEPC] = v }
func (c *CP0) SetErrorEPC(v uint32) { c.reg[RegErrorEPC] = v }
func (c *CP0) SetBadVAddr(v uint32) { c.reg[RegBadVAddr] = v }
func (c *CP0) SetLLAddr(v uint32)   { c.reg[RegLLAddr] = v }

// InvalidateLL clears the load-linked reservation, as ERET and any
// matching store must.
func (c *CP0) InvalidateLL() { c.reg[RegLLAddr] = 0xFFFFFFFF }

// KernelMode reports whether the CPU currently runs privileged: EXL, ERL,
// or Status.KSU (bits 4:3) == 0 (kernel). The Status write mask lets
// MTC0 set only bit 4 of KSU, so that bit alone selects user mode.
func (c *CP0) KernelMode() bool {
	s := c.reg[RegStatus]
	if s&StatusEXL != 0 || s&StatusERL != 0 {
		return true
	}
	return (s>>3)&0x3 == 0
}

// IE reports Status.IE.
func (c *CP0) IE() bool { return c.reg[RegStatus]&StatusIE != 0 }

// EXL / ERL report the exception-level latches.
func (c *CP0) EXL() bool { return c.reg[RegStatus]&StatusEXL != 0 }
func (c *CP0) ERL() bool { return c.reg[RegStatus]&StatusERL != 0 }

// BEV reports Status.BEV (bootstrap exception vector).
func (c *CP0) BEV() bool { return c.reg[RegStatus]&StatusBEV != 0 }

// RP reports Status.RP (set by WAIT while the CPU is stalled).
func (c *CP0) RP() bool { return c.reg[RegStatus]&StatusRP != 0 }

// SetRP sets or clears Status.RP.
func (c *CP0) SetRP(v bool) {
	if v {
		c.reg[RegStatus] |= StatusRP
	} else {
		c.reg[RegStatus] &^= StatusRP
	}
}

// SetEXL sets or clears Status.EXL.
func (c *CP0) SetEXL(v bool) {
	if v {
		c.reg[RegStatus] |= StatusEXL
	} else {
		c.reg[RegStatus] &^= StatusEXL
	}
}

// SetERL sets or clears Status.ERL.
func (c *CP0) SetERL(v bool) {
	if v {
		c.reg[RegStatus] |= StatusERL
	} else {
		c.reg[RegStatus] &^= StatusERL
	}
}

// PendingInterrupt reports whether Cause.IP & Status.IM != 0 and interrupts
// are currently enabled (IE=1, EXL=ERL=0).
func (c *CP0) PendingInterrupt() bool {
	if !c.IE() || c.EXL() || c.ERL() {
		return false
	}
	ip := (c.reg[RegCause] >> 8) & 0xFF
	im := (c.reg[RegStatus] >> 8) & 0xFF
	return ip&im != 0
}

// RaiseIRQ sets Cause.IP[line+2] (line 0..5), one bit-set operation as
// SPEC_FULL.md §4.4 requires.
func (c *CP0) RaiseIRQ(line int) {
	c.reg[RegCause] |= CauseIP0 << uint(line+2)
}

// ClearIRQ clears Cause.IP[line+2].
func (c *CP0) ClearIRQ(line int) {
	c.reg[RegCause] &^= CauseIP0 << uint(line+2)
}

// SetSoftIRQ sets IP0 or IP1 (software interrupts 0/1), used by the
// console's "interrupt" command.
func (c *CP0) SetSoftIRQ(n int) {
	if n == 0 || n == 1 {
		c.reg[RegCause] |= CauseIP0 << uint(n)
	}
}

// ExcCode / SetExcCode access Cause.ExcCode (bits 6:2).
func (c *CP0) ExcCode() except.Code {
	return except.Code((c.reg[RegCause] >> 2) & 0x1F)
}

func (c *CP0) SetExcCode(code except.Code) {
	c.reg[RegCause] = (c.reg[RegCause] &^ (0x1F << 2)) | (uint32(code&0x1F) << 2)
}

// SetCE writes Cause.CE (bits 29:28), meaningful only alongside a
// CoprocessorUnusable exception.
func (c *CP0) SetCE(cp uint8) {
	c.reg[RegCause] = (c.reg[RegCause] &^ (0x3 << 28)) | (uint32(cp&0x3) << 28)
}

// SetBD sets or clears Cause.BD (branch-delay indicator for EPC).
func (c *CP0) SetBD(v bool) {
	if v {
		c.reg[RegCause] |= CauseBD
	} else {
		c.reg[RegCause] &^= CauseBD
	}
}

func (c *CP0) BD() bool { return c.reg[RegCause]&CauseBD != 0 }

func (c *CP0) IV() bool { return c.reg[RegCause]&CauseIV != 0 }

// TimerTick advances Count by one and sets the Compare-match latch.
// Returns whether the latch transitioned to set this tick (caller raises
// Cause.IP7 accordingly).
func (c *CP0) TimerTick() bool {
	c.reg[RegCause] &^= 0xFC00 // hardware IP bits re-derived by devices/timer each tick
	c.reg[RegCount]++
	if c.reg[RegCount] == c.reg[RegCompare] {
		c.reqTimerInterrupt = true
	}
	if c.reqTimerInterrupt {
		c.RaiseIRQ(5) // IP7 = line 5
	}
	return c.reqTimerInterrupt
}

// MFC0 reads a coprocessor-0 register. Out-of-range/unimplemented selects
// read back zero, matching "out-of-range cp0 register numbers ... are
// silently no-ops".
func (c *CP0) MFC0(rd uint32, _ uint32) uint32 {
	if rd > 31 {
		return 0
	}
	if rd == RegEntryLo0 || rd == RegEntryLo1 {
		return c.reg[rd] & entryLoMask
	}
	return c.reg[rd]
}

// MTC0 writes a coprocessor-0 register, applying the architectural write
// mask for rd per SPEC_FULL.md §4.2. Out-of-range rd is a silent no-op.
func (c *CP0) MTC0(rd uint32, val uint32) {
	if rd > 31 {
		return
	}
	switch rd {
	case RegIndex:
		top := c.reg[RegIndex] & 0x8000_0000
		c.reg[RegIndex] = top | (val % NumTLBEntries)
	case RegEntryLo0, RegEntryLo1:
		c.reg[rd] = val & entryLoMask
	case RegContext:
		badVPN2 := c.reg[RegContext] & 0x7FFFF
		c.reg[RegContext] = (val &^ 0x7FFFF) | badVPN2
	case RegWired:
		c.reg[RegWired] = val % NumTLBEntries
		c.reg[RegRandom] = NumTLBEntries - 1
	case RegEntryHi:
		c.reg[RegEntryHi] = val & entryHiMask
	case RegStatus:
		c.reg[RegStatus] = val & statusWriteMask
	case RegCause:
		c.reg[RegCause] = (val & causeWriteMask) | (c.reg[RegCause] & causePreserve)
	case RegCompare:
		c.reg[RegCompare] = val
		c.reqTimerInterrupt = false
		c.ClearIRQ(5)
	case RegEPC, RegCount, RegErrorEPC:
		c.reg[rd] = val
	default:
		c.reg[rd] = val
	}
}

// Translate performs the linear 16-entry TLB scan described in
// SPEC_FULL.md §4.2.
func (c *CP0) Translate(vaddr uint32, ref except.RefType) (uint32, except.Code) {
	vpn2 := vaddr >> 13
	asid := c.ASID()
	for i := range c.tlb {
		e := &c.tlb[i]
		if e.VPN2 != vpn2 {
			continue
		}
		if !e.G && e.ASID != asid {
			continue
		}
		half := &e.Even
		if vaddr&0x1000 != 0 {
			half = &e.Odd
		}
		if !half.V {
			if ref == except.RefStore {
				return 0, except.TLBStoreInvalid()
			}
			return 0, except.TLBLoadInvalid()
		}
		if !half.D && ref == except.RefStore {
			return 0, except.TLBModification
		}
		paddr := (half.PFN << 12) | (vaddr & 0xFFF)
		return paddr, except.None
	}
	if ref == except.RefStore {
		return 0, except.TLBStore
	}
	return 0, except.TLBLoad
}

// ReadTLB returns TLB row idx, for TLBR and tlbdump.
func (c *CP0) ReadTLB(idx int) Entry { return c.tlb[idx%NumTLBEntries] }

// TLBR reconstructs EntryHi/EntryLo0/EntryLo1 from the row Index names,
// implementing TLBR.
func (c *CP0) TLBR() {
	idx := int(c.reg[RegIndex] % NumTLBEntries)
	e := c.tlb[idx]
	c.reg[RegEntryHi] = (e.VPN2 << 13) | uint32(e.ASID)
	c.reg[RegEntryLo0] = packLo(e.Even, e.G)
	c.reg[RegEntryLo1] = packLo(e.Odd, e.G)
}

func packLo(h Half, g bool) uint32 {
	v := h.PFN << 6
	if h.C != 0 {
		v |= uint32(h.C&0x7) << 3
	}
	if h.D {
		v |= 1 << 2
	}
	if h.V {
		v |= 1 << 1
	}
	if g {
		v |= 1
	}
	return v & entryLoMask
}

func unpackLo(v uint32) (h Half, g bool) {
	h.PFN = (v >> 6) & 0xFFFFF
	h.C = uint8((v >> 3) & 0x7)
	h.D = v&(1<<2) != 0
	h.V = v&(1<<1) != 0
	g = v&1 != 0
	return
}

func (c *CP0) entryFromRegs() Entry {
	var e Entry
	e.VPN2 = c.reg[RegEntryHi] >> 13
	e.ASID = uint8(c.reg[RegEntryHi] & 0xFF)
	lo0 := c.reg[RegEntryLo0]
	lo1 := c.reg[RegEntryLo1]
	even, g0 := unpackLo(lo0)
	odd, g1 := unpackLo(lo1)
	e.Even, e.Odd = even, odd
	e.G = g0 && g1
	return e
}

// TLBWI writes the indexed row, implementing TLBWI.
func (c *CP0) TLBWI() {
	idx := int(c.reg[RegIndex] % NumTLBEntries)
	c.tlb[idx] = c.entryFromRegs()
}

// TLBWR writes the row addressed by Random, then decrements Random with a
// floor of Wired and wrap to NumTLBEntries-1, implementing TLBWR.
func (c *CP0) TLBWR() {
	idx := int(c.reg[RegRandom] % NumTLBEntries)
	c.tlb[idx] = c.entryFromRegs()
	wired := c.reg[RegWired] % NumTLBEntries
	if c.reg[RegRandom] <= wired {
		c.reg[RegRandom] = NumTLBEntries - 1
	} else {
		c.reg[RegRandom]--
	}
}

// TLBP searches for an entry matching EntryHi, implementing TLBP: sets
// Index's high (probe) bit, then on a match clears it and sets Index to
// the row number.
func (c *CP0) TLBP() {
	c.reg[RegIndex] |= 0x8000_0000
	vpn2 := c.reg[RegEntryHi] >> 13
	asid := uint8(c.reg[RegEntryHi] & 0xFF)
	for i := range c.tlb {
		e := &c.tlb[i]
		if e.VPN2 == vpn2 && (e.G || e.ASID == asid) {
			c.reg[RegIndex] = uint32(i)
			return
		}
	}
}

// CPUID returns the owning CPU's number.
func (c *CP0) CPUID() int { return c.id }
